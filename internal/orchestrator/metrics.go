package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report session activity.
type Metrics struct {
	sessionsActive    prometheus.Gauge
	remindersTotal    prometheus.Counter
	terminationsTotal *prometheus.CounterVec
	handoffsTotal     prometheus.Counter
	toolInvocations   *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when multiple sessions start.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Callers supply a fresh registry when unique metric names are required (for
// example in tests). Registration errors panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "parley",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Number of live call sessions.",
	})
	remindersTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "sessions",
		Name:      "reminders_total",
		Help:      "Idle reminders spoken across all sessions.",
	})
	terminationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "sessions",
		Name:      "terminations_total",
		Help:      "Session terminations by reason.",
	}, []string{"reason"})
	handoffsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "sessions",
		Name:      "handoffs_total",
		Help:      "Sessions handed off to another assistant.",
	})
	toolInvocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "tools",
		Name:      "invocations_total",
		Help:      "Tool invocations by tool name and outcome.",
	}, []string{"tool", "status"})

	collectors := []prometheus.Collector{
		sessionsActive, remindersTotal, terminationsTotal, handoffsTotal, toolInvocations,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case sessionsActive:
					sessionsActive = already.ExistingCollector.(prometheus.Gauge)
				case remindersTotal:
					remindersTotal = already.ExistingCollector.(prometheus.Counter)
				case terminationsTotal:
					terminationsTotal = already.ExistingCollector.(*prometheus.CounterVec)
				case handoffsTotal:
					handoffsTotal = already.ExistingCollector.(prometheus.Counter)
				case toolInvocations:
					toolInvocations = already.ExistingCollector.(*prometheus.CounterVec)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		sessionsActive:    sessionsActive,
		remindersTotal:    remindersTotal,
		terminationsTotal: terminationsTotal,
		handoffsTotal:     handoffsTotal,
		toolInvocations:   toolInvocations,
	}
}

// IncActiveSessions marks a session as live.
func (m *Metrics) IncActiveSessions() {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Inc()
}

// DecActiveSessions marks a session as retired.
func (m *Metrics) DecActiveSessions() {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Dec()
}

// IncReminder records a spoken idle reminder.
func (m *Metrics) IncReminder() {
	if m == nil || m.remindersTotal == nil {
		return
	}
	m.remindersTotal.Inc()
}

// IncTermination records a session termination with its reason.
func (m *Metrics) IncTermination(reason string) {
	if m == nil || m.terminationsTotal == nil {
		return
	}
	m.terminationsTotal.WithLabelValues(reason).Inc()
}

// IncHandoff records a completed assistant handoff.
func (m *Metrics) IncHandoff() {
	if m == nil || m.handoffsTotal == nil {
		return
	}
	m.handoffsTotal.Inc()
}

// IncToolInvocation records a tool call outcome.
func (m *Metrics) IncToolInvocation(tool, status string) {
	if m == nil || m.toolInvocations == nil {
		return
	}
	m.toolInvocations.WithLabelValues(tool, status).Inc()
}
