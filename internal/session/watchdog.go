package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startWatchdogLocked replaces any running watchdog with one bound to the current generation.
func (c *Controller) startWatchdogLocked() {
	c.stopWatchdogLocked()
	if c.closed {
		return
	}

	ctx, cancel := context.WithCancel(c.rootCtx)
	c.watchdogCancel = cancel
	gen := c.generation

	c.watchdogs.Add(1)
	c.activeWatchdog.Add(1)
	go c.runWatchdog(ctx, gen)
}

func (c *Controller) stopWatchdogLocked() {
	if c.watchdogCancel != nil {
		c.watchdogCancel()
		c.watchdogCancel = nil
	}
}

func (c *Controller) runWatchdog(ctx context.Context, gen uint64) {
	defer c.watchdogs.Done()
	defer c.activeWatchdog.Add(-1)

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.check(ctx, gen)
		}
	}
}

// check runs one watchdog pass: idle timeout first, then token refresh.
func (c *Controller) check(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.generation || !c.state.IsAuthenticated {
		c.mu.Unlock()
		return
	}
	last := c.state.LastActivity
	loading := c.state.IsLoading
	c.mu.Unlock()

	now := c.nowFunc()
	if now.Sub(last) >= c.cfg.Timeout {
		c.expire(ctx, gen, reasonIdleTimeout)
		return
	}

	if !c.cfg.AutoRefresh || loading || !c.accessExpiresWithin(ctx, now, c.cfg.RefreshWarning) {
		return
	}

	// Background refreshes do not count as activity, so the idle timeout still applies.
	if err := c.refresh(ctx, false); err != nil {
		if isNoRefresh(err) {
			c.expire(ctx, gen, reasonNoRefresh)
			return
		}
		c.logger.Debug("background refresh did not complete", zap.Error(err))
	}
}

func (c *Controller) accessExpiresWithin(ctx context.Context, now time.Time, window time.Duration) bool {
	exp, ok := c.tokens.ExpiresAt(c.tokens.AccessToken(ctx))
	if !ok {
		return true
	}
	return exp.Sub(now) <= window
}
