// Package tokenstore persists the access/refresh token pair and answers expiry
// questions about the access token without verifying its signature.
package tokenstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultNamespace prefixes the persisted keys when no namespace is configured.
const DefaultNamespace = "labportal"

const (
	accessKeySuffix  = ".access_token"
	refreshKeySuffix = ".refresh_token"
)

// Store owns the token pair. It is safe for concurrent use when its Storage is.
type Store struct {
	storage   Storage
	namespace string
	nowFunc   func() time.Time
	logger    *zap.Logger
	parser    *jwt.Parser
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithNamespace changes the key namespace.
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		if ns := strings.TrimSpace(namespace); ns != "" {
			s.namespace = ns
		}
	}
}

// WithLogger sets the logger used for swallowed storage errors.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store over storage.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:   storage,
		namespace: DefaultNamespace,
		nowFunc:   time.Now,
		logger:    zap.NewNop(),
		parser:    jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessKey is the storage key holding the access token.
func (s *Store) AccessKey() string {
	return s.namespace + accessKeySuffix
}

// RefreshKey is the storage key holding the refresh token.
func (s *Store) RefreshKey() string {
	return s.namespace + refreshKeySuffix
}

// Set persists both tokens, replacing any existing pair. An empty refresh token removes the stored one.
func (s *Store) Set(ctx context.Context, access, refresh string) error {
	if strings.TrimSpace(access) == "" {
		return ErrEmptyToken
	}
	if err := s.storage.Save(ctx, s.AccessKey(), access); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	if refresh == "" {
		if err := s.storage.Delete(ctx, s.RefreshKey()); err != nil {
			return fmt.Errorf("delete refresh token: %w", err)
		}
		return nil
	}
	if err := s.storage.Save(ctx, s.RefreshKey(), refresh); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// AccessToken returns the stored access token or "" when absent.
func (s *Store) AccessToken(ctx context.Context) string {
	return s.load(ctx, s.AccessKey())
}

// RefreshToken returns the stored refresh token or "" when absent.
func (s *Store) RefreshToken(ctx context.Context) string {
	return s.load(ctx, s.RefreshKey())
}

// Clear removes both tokens. It never fails; storage errors are logged.
func (s *Store) Clear(ctx context.Context) {
	for _, key := range []string{s.AccessKey(), s.RefreshKey()} {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("token storage delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// HasValidAccess reports whether both tokens are present and the access token has not expired.
func (s *Store) HasValidAccess(ctx context.Context) bool {
	access := s.AccessToken(ctx)
	if access == "" || s.RefreshToken(ctx) == "" {
		return false
	}
	return !s.IsExpired(access)
}

// ExpiresAt decodes the exp claim of token. ok is false for malformed tokens or a missing exp.
func (s *Store) ExpiresAt(token string) (time.Time, bool) {
	if strings.TrimSpace(token) == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := s.parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsExpired reports whether token is past its exp. Tokens that cannot be decoded count as expired.
func (s *Store) IsExpired(token string) bool {
	exp, ok := s.ExpiresAt(token)
	if !ok {
		return true
	}
	return !s.nowFunc().Before(exp)
}

// Ping checks the underlying storage.
func (s *Store) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

func (s *Store) load(ctx context.Context, key string) string {
	value, ok, err := s.storage.Load(ctx, key)
	if err != nil {
		s.logger.Warn("token storage load failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return value
}
