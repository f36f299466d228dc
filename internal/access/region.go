package access

import (
	"sync"

	"github.com/abduss/labportal/internal/session"
)

// Subscriber is a StateSource that pushes change notifications.
type Subscriber interface {
	StateSource
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Region keeps a guard decision current by re-evaluating it on every
// session change. OnChange, if set, runs synchronously when the outcome
// differs from the previous one.
type Region struct {
	Name     string
	Location string

	gate     Gate
	guard    Guard
	source   Subscriber
	onChange func(Decision)

	mu          sync.RWMutex
	decision    Decision
	unsubscribe func()
}

// NewRegion evaluates guard immediately and subscribes to further changes.
func NewRegion(name, location string, gate Gate, source Subscriber, guard Guard, onChange func(Decision)) *Region {
	r := &Region{
		Name:     name,
		Location: location,
		gate:     gate,
		guard:    guard,
		source:   source,
		onChange: onChange,
	}
	r.decision = gate.Evaluate(source.State(), guard, location)
	r.unsubscribe = source.Subscribe(func(session.State) { r.reevaluate() })
	return r
}

// Decision returns the latest decision.
func (r *Region) Decision() Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decision
}

// Guard returns the guard protecting the region.
func (r *Region) Guard() Guard {
	return r.guard
}

// Close stops listening for session changes.
func (r *Region) Close() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Notifications are not ordered across goroutines, so the state is re-read
// instead of trusting the pushed snapshot.
func (r *Region) reevaluate() {
	d := r.gate.Evaluate(r.source.State(), r.guard, r.Location)

	r.mu.Lock()
	changed := !sameDecision(r.decision, d)
	r.decision = d
	r.mu.Unlock()

	if changed && r.onChange != nil {
		r.onChange(d)
	}
}

func sameDecision(a, b Decision) bool {
	if a.Outcome != b.Outcome || a.Path != b.Path || a.From != b.From {
		return false
	}
	if a.Denial == nil || b.Denial == nil {
		return a.Denial == b.Denial
	}
	return a.Denial.Reason == b.Denial.Reason &&
		a.Denial.RequiredRole == b.Denial.RequiredRole &&
		a.Denial.ActualRole == b.Denial.ActualRole &&
		a.Denial.Check == b.Denial.Check
}
