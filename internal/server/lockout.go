package server

import (
	"time"

	"github.com/abduss/labportal/internal/config"
	"github.com/abduss/labportal/internal/session"
)

// lockoutRemaining returns how long new login attempts stay blocked, or 0.
func lockoutRemaining(st session.State, cfg config.SessionConfig, now time.Time) time.Duration {
	if cfg.MaxLoginAttempts <= 0 || cfg.LoginLockout <= 0 {
		return 0
	}
	if st.FailedAttempts < cfg.MaxLoginAttempts || st.LastFailureAt.IsZero() {
		return 0
	}
	remaining := st.LastFailureAt.Add(cfg.LoginLockout).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
