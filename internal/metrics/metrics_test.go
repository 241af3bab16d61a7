package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/metrics"
	"github.com/blackstrype/trainline/internal/resilience"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	c.ObserveAttempt("station-service", resilience.KindOK, 10*time.Millisecond)
	c.ObserveAttempt("station-service", resilience.KindCircuitOpen, 0)
	c.BreakerTransition("station-service", resilience.StateClosed, resilience.StateOpen)
	c.CountResult(domain.EnrichmentResult{Status: domain.OutcomeFail, StopState: domain.StatusDeleted})
	c.CountCreate(domain.CreateAccepted)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["trainline_remote_attempts_total"])
	assert.True(t, names["trainline_circuit_breaker_state"])
	assert.True(t, names["trainline_enrichment_results_total"])

	n, err := testutil.GatherAndCount(reg, "trainline_remote_attempt_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
