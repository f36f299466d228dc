package session

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeSuccess    = "success"
	outcomeFailure    = "failure"
	outcomeSuperseded = "superseded"
	outcomeRejected   = "rejected"
)

// Metrics holds the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	forcedLogouts *prometheus.CounterVec
	authenticated prometheus.Gauge
}

// NewMetrics creates the session collectors and registers them with reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labportal",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session operations by outcome.",
		}, []string{"operation", "outcome"}),
		forcedLogouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labportal",
			Subsystem: "session",
			Name:      "forced_logouts_total",
			Help:      "Sessions ended without an explicit logout.",
		}, []string{"reason"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "labportal",
			Subsystem: "session",
			Name:      "authenticated",
			Help:      "1 while a session is authenticated.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.forcedLogouts, m.authenticated)
	}
	return m
}

func (m *Metrics) operation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) forcedLogout(reason string) {
	if m == nil {
		return
	}
	m.forcedLogouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) setAuthenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}
