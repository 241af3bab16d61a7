// Package metrics holds the prometheus collectors for remote calls, circuit
// breakers and enrichment outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/resilience"
)

const namespace = "trainline"

// Collectors groups the service's own metrics. Router metrics are registered
// separately by the messaging package.
type Collectors struct {
	remoteAttempts     *prometheus.CounterVec
	remoteLatency      *prometheus.HistogramVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	enrichmentResults  *prometheus.CounterVec
	stopsCreated       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		remoteAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "attempts_total",
			Help:      "Attempts against a remote dependency by outcome kind.",
		}, []string{"dependency", "kind"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of single attempts against a remote dependency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dependency"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Current breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"dependency"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "transitions_total",
			Help:      "Breaker state transitions.",
		}, []string{"dependency", "from", "to"}),
		enrichmentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "results_total",
			Help:      "Enrichment results observed on the response topic.",
		}, []string{"outcome", "stop_state"}),
		stopsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stops",
			Name:      "create_requests_total",
			Help:      "Accepted stop creation requests by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		c.remoteAttempts,
		c.remoteLatency,
		c.breakerState,
		c.breakerTransitions,
		c.enrichmentResults,
		c.stopsCreated,
	)
	return c
}

// ObserveAttempt matches resilience.AttemptObserver.
func (c *Collectors) ObserveAttempt(dependency string, kind resilience.Kind, elapsed time.Duration) {
	c.remoteAttempts.WithLabelValues(dependency, string(kind)).Inc()
	if kind != resilience.KindCircuitOpen && kind != resilience.KindBulkheadFull {
		c.remoteLatency.WithLabelValues(dependency).Observe(elapsed.Seconds())
	}
}

// BreakerTransition matches resilience.StateListener.
func (c *Collectors) BreakerTransition(dependency string, from, to resilience.State) {
	c.breakerState.WithLabelValues(dependency).Set(float64(to))
	c.breakerTransitions.WithLabelValues(dependency, from.String(), to.String()).Inc()
}

// CountResult implements service.ResultCounter.
func (c *Collectors) CountResult(res domain.EnrichmentResult) {
	c.enrichmentResults.WithLabelValues(string(res.Status), string(res.StopState)).Inc()
}

// CountCreate records how a create request was satisfied.
func (c *Collectors) CountCreate(status domain.CreateStatus) {
	var label string
	switch status {
	case domain.CreateResolved:
		label = "resolved"
	case domain.CreateAccepted:
		label = "accepted"
	case domain.CreateReplayed:
		label = "replayed"
	default:
		label = "unknown"
	}
	c.stopsCreated.WithLabelValues(label).Inc()
}
