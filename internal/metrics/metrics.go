// Package metrics exposes authentication and session counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrlokans/gatekeeper/internal/auth"
)

const outcomeSuccess = "success"

// Metrics holds the gatekeeper collectors. It implements auth.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	AuthAttemptsTotal      *prometheus.CounterVec
	SessionsCreatedTotal   prometheus.Counter
	SessionsDestroyedTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with registry. A nil registry
// gets a fresh one with the Go and process collectors.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: registry,
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_auth_attempts_total",
				Help: "Total number of authentication attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_sessions_created_total",
				Help: "Total number of sessions bound to a user",
			},
		),
		SessionsDestroyedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_sessions_destroyed_total",
				Help: "Total number of sessions destroyed by reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		m.AuthAttemptsTotal,
		m.SessionsCreatedTotal,
		m.SessionsDestroyedTotal,
	)

	return m
}

// AuthAttempt counts one attempt. An empty reason is a success.
func (m *Metrics) AuthAttempt(strategy string, reason auth.FailureReason) {
	outcome := string(reason)
	if outcome == "" {
		outcome = outcomeSuccess
	}
	m.AuthAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) SessionCreated() {
	m.SessionsCreatedTotal.Inc()
}

func (m *Metrics) SessionDestroyed(reason string) {
	m.SessionsDestroyedTotal.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ auth.Recorder = (*Metrics)(nil)
