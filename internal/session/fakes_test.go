package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/config"
	"github.com/abduss/labportal/internal/tokenstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("identity-service-secret"))
	require.NoError(t, err)
	return token
}

func testUser(role auth.Role) auth.User {
	return auth.User{
		ID:         "u-1",
		Username:   "jane",
		Email:      "jane@example.com",
		FirstName:  "Jane",
		LastName:   "Doe",
		Role:       role,
		IsActive:   true,
		IsVerified: true,
	}
}

// fakeIdentity is an in-memory identity service. Nil hooks succeed with defaults.
type fakeIdentity struct {
	mu sync.Mutex

	user    auth.User
	access  string
	refresh string

	loginFn   func(ctx context.Context, creds auth.Credentials) (auth.Result, error)
	refreshFn func(ctx context.Context, token string) (auth.TokenPair, error)
	meFn      func(ctx context.Context) (auth.User, error)
	updateFn  func(ctx context.Context, update auth.ProfileUpdate) (auth.User, error)
	changeErr error
	logoutErr error

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	logoutTokens []string
}

func (f *fakeIdentity) result() auth.Result {
	return auth.Result{
		User:   f.user,
		Tokens: auth.TokenPair{AccessToken: f.access, RefreshToken: f.refresh, TokenType: "bearer", ExpiresIn: 1800},
	}
}

func (f *fakeIdentity) Login(ctx context.Context, creds auth.Credentials) (auth.Result, error) {
	f.loginCalls.Add(1)
	if f.loginFn != nil {
		return f.loginFn(ctx, creds)
	}
	return f.result(), nil
}

func (f *fakeIdentity) Register(ctx context.Context, reg auth.Registration) (auth.Result, error) {
	return f.Login(ctx, auth.Credentials{Username: reg.Username, Password: reg.Password})
}

func (f *fakeIdentity) Refresh(ctx context.Context, token string) (auth.TokenPair, error) {
	f.refreshCalls.Add(1)
	if f.refreshFn != nil {
		return f.refreshFn(ctx, token)
	}
	return auth.TokenPair{AccessToken: f.access, RefreshToken: f.refresh}, nil
}

func (f *fakeIdentity) Logout(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutTokens = append(f.logoutTokens, accessToken)
	return f.logoutErr
}

func (f *fakeIdentity) CurrentUser(ctx context.Context) (auth.User, error) {
	if f.meFn != nil {
		return f.meFn(ctx)
	}
	return f.user, nil
}

func (f *fakeIdentity) UpdateProfile(ctx context.Context, update auth.ProfileUpdate) (auth.User, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, update)
	}
	return f.user, nil
}

func (f *fakeIdentity) ChangePassword(context.Context, auth.PasswordChange) error {
	return f.changeErr
}

func (f *fakeIdentity) logouts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logoutTokens...)
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		Timeout:            30 * time.Minute,
		RefreshWarning:     5 * time.Minute,
		AutoRefresh:        true,
		CheckInterval:      time.Hour,
		ActivityResolution: time.Second,
		MaxLoginAttempts:   5,
		LoginLockout:       15 * time.Minute,
	}
}

type harness struct {
	ctrl     *Controller
	store    *tokenstore.Store
	identity *fakeIdentity
	clock    *manualClock
}

func newHarness(t *testing.T, cfg config.SessionConfig, opts ...Option) *harness {
	t.Helper()
	clock := newManualClock()
	store := tokenstore.New(tokenstore.NewMemoryStorage(), tokenstore.WithClock(clock.Now))
	identity := &fakeIdentity{
		user:    testUser(auth.RoleUser),
		access:  makeToken(t, clock.Now().Add(30*time.Minute)),
		refresh: "refresh-1",
	}
	ctrl := NewController(identity, store, cfg, append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(ctrl.Close)
	return &harness{ctrl: ctrl, store: store, identity: identity, clock: clock}
}

// runCheck performs one watchdog pass for the current session.
func (h *harness) runCheck(ctx context.Context) {
	h.ctrl.mu.Lock()
	gen := h.ctrl.generation
	h.ctrl.mu.Unlock()
	h.ctrl.check(ctx, gen)
}
