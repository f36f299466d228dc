package session

import (
	"strings"

	"go.uber.org/zap"
)

// Signal is a user interaction that counts as activity.
type Signal int

const (
	SignalPointerMove Signal = iota
	SignalPointerDown
	SignalKeyPress
	SignalScroll
	SignalTouch
	SignalRequest
)

var signalNames = map[Signal]string{
	SignalPointerMove: "pointer_move",
	SignalPointerDown: "pointer_down",
	SignalKeyPress:    "key_press",
	SignalScroll:      "scroll",
	SignalTouch:       "touch",
	SignalRequest:     "request",
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSignal maps a signal name such as "scroll" to its Signal.
func ParseSignal(name string) (Signal, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for sig, n := range signalNames {
		if n == name {
			return sig, true
		}
	}
	return 0, false
}

// RecordActivity stamps LastActivity when authenticated. Stamps closer together than the
// configured activity resolution are coalesced; it reports whether the state changed.
func (c *Controller) RecordActivity() bool {
	now := c.nowFunc()

	c.mu.Lock()
	if !c.state.IsAuthenticated {
		c.mu.Unlock()
		return false
	}
	if res := c.cfg.ActivityResolution; res > 0 && now.Sub(c.state.LastActivity) < res {
		c.mu.Unlock()
		return false
	}
	c.apply(event{kind: eventActivity, at: now})
	return true
}

// RecordSignal is RecordActivity for adapters that know which interaction occurred.
func (c *Controller) RecordSignal(sig Signal) bool {
	recorded := c.RecordActivity()
	if recorded {
		c.logger.Debug("activity", zap.Stringer("signal", sig))
	}
	return recorded
}
