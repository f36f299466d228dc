// Package session owns the authentication state machine: it drives the identity
// service, persists tokens, and expires idle or unrefreshable sessions.
//
// All state changes go through reduce. Calls to the identity service are made
// without holding the controller lock; each result is applied only if the
// session generation it started under is still current, so a Logout always
// wins over an in-flight login, refresh or profile update.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	opInit           = "init"
	opLogin          = "login"
	opRegister       = "register"
	opLogout         = "logout"
	opRefresh        = "refresh"
	opUpdateProfile  = "update_profile"
	opChangePassword = "change_password"
)

const (
	reasonIdleTimeout   = "idle_timeout"
	reasonRefreshFailed = "refresh_failed"
	reasonNoRefresh     = "refresh_unavailable"
)

// identityService is satisfied by *authclient.Client.
type identityService interface {
	Login(ctx context.Context, creds auth.Credentials) (auth.Result, error)
	Register(ctx context.Context, reg auth.Registration) (auth.Result, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	CurrentUser(ctx context.Context) (auth.User, error)
	UpdateProfile(ctx context.Context, update auth.ProfileUpdate) (auth.User, error)
	ChangePassword(ctx context.Context, change auth.PasswordChange) error
}

// tokenStore is satisfied by *tokenstore.Store.
type tokenStore interface {
	Set(ctx context.Context, access, refresh string) error
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	Clear(ctx context.Context)
	HasValidAccess(ctx context.Context) bool
	ExpiresAt(token string) (time.Time, bool)
}

// Controller is the session state machine. Construct one per application
// session and pass it explicitly to its consumers.
type Controller struct {
	client  identityService
	tokens  tokenStore
	cfg     config.SessionConfig
	logger  *zap.Logger
	metrics *Metrics
	nowFunc func() time.Time
	newID   func() string

	mu          sync.Mutex
	state       State
	generation  uint64
	authRunning bool
	subscribers map[int]func(State)
	nextSubID   int
	closed      bool

	refreshGroup singleflight.Group

	rootCtx        context.Context
	rootCancel     context.CancelFunc
	watchdogCancel context.CancelFunc
	watchdogs      sync.WaitGroup
	activeWatchdog atomic.Int32
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.nowFunc = now
	}
}

// WithLogger sets the audit logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController creates a Controller in the initial unauthenticated state.
func NewController(client identityService, tokens tokenStore, cfg config.SessionConfig, opts ...Option) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.RefreshWarning < 0 {
		cfg.RefreshWarning = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:      client,
		tokens:      tokens,
		cfg:         cfg,
		logger:      zap.NewNop(),
		nowFunc:     time.Now,
		newID:       uuid.NewString,
		state:       initialState(),
		subscribers: make(map[int]func(State)),
		rootCtx:     ctx,
		rootCancel:  cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start ties the controller's background work to ctx: when ctx ends the controller is closed.
func (c *Controller) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.rootCtx.Done():
		}
	}()
}

// Close stops background checks and waits for them to exit. Session state and tokens are left as they are.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopWatchdogLocked()
	c.mu.Unlock()

	c.rootCancel()
	c.watchdogs.Wait()
}

// State returns a snapshot of the current session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// HasRole reports whether the current user has role.
func (c *Controller) HasRole(role auth.Role) bool {
	return c.State().HasRole(role)
}

// HasPermission reports whether the current session grants perm.
func (c *Controller) HasPermission(perm string) bool {
	return c.State().HasPermission(perm)
}

// TimeUntilExpiry is the time left before the idle timeout fires, or 0 when not authenticated.
func (c *Controller) TimeUntilExpiry() time.Duration {
	st := c.State()
	if !st.IsAuthenticated {
		return 0
	}
	remaining := st.LastActivity.Add(c.cfg.Timeout).Sub(c.nowFunc())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsSessionExpiring reports whether the idle timeout is within the refresh warning window.
func (c *Controller) IsSessionExpiring() bool {
	if !c.State().IsAuthenticated {
		return false
	}
	return c.TimeUntilExpiry() <= c.cfg.RefreshWarning
}

// Subscribe registers fn to be called with a snapshot after every state change.
// fn runs on the goroutine that made the change and must not block.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

// Init restores a persisted session. Without a valid stored access token any
// leftover tokens are cleared and the controller stays unauthenticated.
func (c *Controller) Init(ctx context.Context) error {
	if !c.tokens.HasValidAccess(ctx) {
		c.mu.Lock()
		if !c.state.IsAuthenticated && !c.authRunning {
			c.tokens.Clear(ctx)
		}
		c.mu.Unlock()
		return nil
	}

	gen, err := c.beginAuth()
	if err != nil {
		c.metrics.operation(opInit, outcomeRejected)
		return err
	}
	defer c.endAuth()

	user, err := c.client.CurrentUser(ctx)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.metrics.operation(opInit, outcomeSuperseded)
		return ErrSessionSuperseded
	}
	if err != nil {
		switch auth.KindOf(err) {
		case auth.KindUnauthorized, auth.KindInvalidCredentials, auth.KindForbidden:
			c.tokens.Clear(ctx)
		}
		c.generation++
		c.metrics.setAuthenticated(false)
		c.apply(event{kind: eventFailed, err: err, at: c.nowFunc()})
		c.metrics.operation(opInit, outcomeFailure)
		c.logger.Info("session.expired",
			zap.String("reason", "restore_failed"),
			zap.String("error_kind", auth.KindOf(err).String()),
		)
		return err
	}

	st := c.beginSessionLocked(&user)
	c.metrics.operation(opInit, outcomeSuccess)
	c.audit("session.login", st, zap.String("reason", "restored"))
	return nil
}

// Login authenticates with credentials. On failure the error is also recorded in the state and
// stored tokens are left untouched.
func (c *Controller) Login(ctx context.Context, creds auth.Credentials) error {
	return c.authenticate(ctx, opLogin, func(ctx context.Context) (auth.Result, error) {
		return c.client.Login(ctx, creds)
	})
}

// Register creates an account and signs it in.
func (c *Controller) Register(ctx context.Context, reg auth.Registration) error {
	return c.authenticate(ctx, opRegister, func(ctx context.Context) (auth.Result, error) {
		return c.client.Register(ctx, reg)
	})
}

func (c *Controller) authenticate(ctx context.Context, op string, call func(context.Context) (auth.Result, error)) error {
	gen, err := c.beginAuth()
	if err != nil {
		c.metrics.operation(op, outcomeRejected)
		return err
	}
	defer c.endAuth()

	result, err := call(ctx)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.metrics.operation(op, outcomeSuperseded)
		if err != nil {
			return err
		}
		return ErrSessionSuperseded
	}
	if err == nil {
		if setErr := c.tokens.Set(ctx, result.Tokens.AccessToken, result.Tokens.RefreshToken); setErr != nil {
			err = fmt.Errorf("persist tokens: %w", setErr)
		}
	}
	if err != nil {
		c.generation++
		c.metrics.setAuthenticated(false)
		st := c.apply(event{kind: eventFailed, err: err, countFailure: true, at: c.nowFunc()})
		c.metrics.operation(op, outcomeFailure)
		c.logger.Info("session.login_failed",
			zap.String("operation", op),
			zap.String("error_kind", auth.KindOf(err).String()),
			zap.Int("failed_attempts", st.FailedAttempts),
		)
		return err
	}

	st := c.beginSessionLocked(&result.User)
	c.metrics.operation(op, outcomeSuccess)
	c.audit("session."+op, st)
	return nil
}

// beginAuth marks an init, login or register as running and enters the loading state.
func (c *Controller) beginAuth() (uint64, error) {
	c.mu.Lock()
	if c.authRunning {
		c.mu.Unlock()
		return 0, ErrOperationInProgress
	}
	c.authRunning = true
	// Whatever the outcome, the current session does not survive this call, so work tied to
	// it (refreshes, watchdog passes, profile updates) must not land.
	c.generation++
	c.stopWatchdogLocked()
	gen := c.generation
	c.apply(event{kind: eventStarted})
	return gen, nil
}

func (c *Controller) endAuth() {
	c.mu.Lock()
	c.authRunning = false
	c.mu.Unlock()
}

// beginSessionLocked installs user as a fresh authenticated session, invalidating work tied to
// the previous one, and unlocks c.mu.
func (c *Controller) beginSessionLocked(user *auth.User) State {
	c.generation++
	c.startWatchdogLocked()
	c.metrics.setAuthenticated(true)
	return c.apply(event{
		kind:      eventAuthenticated,
		user:      user,
		sessionID: c.newID(),
		at:        c.nowFunc(),
	})
}

// Logout ends the session locally, then makes a best-effort remote logout. It never fails.
func (c *Controller) Logout(ctx context.Context) {
	access := c.tokens.AccessToken(ctx)

	c.mu.Lock()
	prev := c.state.clone()
	c.endSessionLocked(ctx)

	c.metrics.operation(opLogout, outcomeSuccess)
	if prev.IsAuthenticated {
		c.audit("session.logout", prev, zap.String("reason", "user"))
	}

	if access == "" {
		return
	}
	if err := c.client.Logout(ctx, access); err != nil {
		c.logger.Warn("remote logout failed",
			zap.String("session_id", prev.SessionID),
			zap.String("error_kind", auth.KindOf(err).String()),
			zap.Error(err),
		)
	}
}

// expire forces a logout for the session generation gen, if it is still current.
func (c *Controller) expire(ctx context.Context, gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.generation || !c.state.IsAuthenticated {
		c.mu.Unlock()
		return
	}
	prev := c.state.clone()
	c.endSessionLocked(ctx)

	c.metrics.forcedLogout(reason)
	c.audit("session.expired", prev, zap.String("reason", reason))
}

// endSessionLocked resets to the initial state, clears tokens and unlocks c.mu.
func (c *Controller) endSessionLocked(ctx context.Context) {
	c.generation++
	c.stopWatchdogLocked()
	c.tokens.Clear(context.WithoutCancel(ctx))
	c.apply(event{kind: eventLoggedOut})
	c.metrics.setAuthenticated(false)
}

// Refresh exchanges the refresh token for a new pair and counts as activity.
// Any failure other than a missing refresh token ends the session.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.refresh(ctx, true)
}

func (c *Controller) refresh(ctx context.Context, stamp bool) error {
	c.mu.Lock()
	if !c.state.IsAuthenticated {
		c.mu.Unlock()
		c.metrics.operation(opRefresh, outcomeRejected)
		return ErrNotAuthenticated
	}
	if c.authRunning {
		c.mu.Unlock()
		c.metrics.operation(opRefresh, outcomeRejected)
		return ErrOperationInProgress
	}
	gen := c.generation
	c.mu.Unlock()

	refreshToken := c.tokens.RefreshToken(ctx)
	if refreshToken == "" {
		c.metrics.operation(opRefresh, outcomeRejected)
		return ErrNoRefreshToken
	}

	key := strconv.FormatUint(gen, 10)
	_, err, _ := c.refreshGroup.Do(key, func() (any, error) {
		return nil, c.doRefresh(ctx, gen, refreshToken)
	})
	if err != nil {
		return err
	}

	if stamp {
		c.mu.Lock()
		if gen == c.generation {
			c.apply(event{kind: eventActivity, at: c.nowFunc()})
		} else {
			c.mu.Unlock()
		}
	}
	return nil
}

func (c *Controller) doRefresh(ctx context.Context, gen uint64, refreshToken string) error {
	c.mu.Lock()
	if gen != c.generation || !c.state.IsAuthenticated {
		c.mu.Unlock()
		return ErrSessionSuperseded
	}
	c.apply(event{kind: eventStarted})

	pair, err := c.client.Refresh(ctx, refreshToken)

	c.mu.Lock()
	if gen != c.generation || !c.state.IsAuthenticated {
		c.mu.Unlock()
		c.metrics.operation(opRefresh, outcomeSuperseded)
		return ErrSessionSuperseded
	}
	if err == nil {
		next := pair.RefreshToken
		if next == "" {
			next = refreshToken
		}
		if setErr := c.tokens.Set(ctx, pair.AccessToken, next); setErr != nil {
			err = fmt.Errorf("persist tokens: %w", setErr)
		}
	}
	if err != nil && ctx.Err() != nil {
		// The caller went away; that says nothing about the session itself.
		c.apply(event{kind: eventRefreshed, pending: c.authRunning})
		c.metrics.operation(opRefresh, outcomeSuperseded)
		return fmt.Errorf("refresh session: %w", err)
	}
	if err != nil {
		c.mu.Unlock()
		c.metrics.operation(opRefresh, outcomeFailure)
		c.expire(ctx, gen, reasonRefreshFailed)
		return fmt.Errorf("refresh session: %w", err)
	}

	st := c.apply(event{kind: eventRefreshed, pending: c.authRunning, at: c.nowFunc()})
	c.metrics.operation(opRefresh, outcomeSuccess)
	c.audit("session.refresh", st)
	return nil
}

// UpdateProfile updates the user remotely and replaces the cached copy. Failures are returned
// without touching the session state.
func (c *Controller) UpdateProfile(ctx context.Context, update auth.ProfileUpdate) (auth.User, error) {
	c.mu.Lock()
	if !c.state.IsAuthenticated {
		c.mu.Unlock()
		c.metrics.operation(opUpdateProfile, outcomeRejected)
		return auth.User{}, ErrNotAuthenticated
	}
	gen := c.generation
	c.mu.Unlock()

	user, err := c.client.UpdateProfile(ctx, update)
	if err != nil {
		c.metrics.operation(opUpdateProfile, outcomeFailure)
		return auth.User{}, err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.metrics.operation(opUpdateProfile, outcomeSuperseded)
		return auth.User{}, ErrSessionSuperseded
	}
	c.apply(event{kind: eventUserUpdated, user: &user, at: c.nowFunc()})
	c.metrics.operation(opUpdateProfile, outcomeSuccess)
	return user, nil
}

// ChangePassword delegates to the identity service. The session state is not changed.
func (c *Controller) ChangePassword(ctx context.Context, change auth.PasswordChange) error {
	if !c.State().IsAuthenticated {
		c.metrics.operation(opChangePassword, outcomeRejected)
		return ErrNotAuthenticated
	}
	if err := c.client.ChangePassword(ctx, change); err != nil {
		c.metrics.operation(opChangePassword, outcomeFailure)
		return err
	}
	c.metrics.operation(opChangePassword, outcomeSuccess)
	return nil
}

// ClearError drops the recorded error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	if c.state.Err == nil {
		c.mu.Unlock()
		return
	}
	c.apply(event{kind: eventErrorCleared})
}

// apply reduces e into the state, unlocks c.mu and notifies subscribers. It must be called
// with c.mu held and returns the new snapshot.
func (c *Controller) apply(e event) State {
	c.state = reduce(c.state, e)
	snapshot := c.state.clone()
	subs := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot.clone())
	}
	return snapshot
}

func (c *Controller) audit(name string, st State, extra ...zap.Field) {
	fields := []zap.Field{zap.String("session_id", st.SessionID)}
	if st.User != nil {
		fields = append(fields,
			zap.String("user_id", st.User.ID),
			zap.String("role", string(st.User.Role)),
		)
	}
	c.logger.Info(name, append(fields, extra...)...)
}

// isNoRefresh reports whether err means the session cannot be extended at all.
func isNoRefresh(err error) bool {
	return errors.Is(err, ErrNoRefreshToken)
}
