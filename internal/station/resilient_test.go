package station_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/resilience"
	"github.com/blackstrype/trainline/internal/station"
)

// stationServer answers with the scripted status codes in order, then 200.
type stationServer struct {
	calls  atomic.Int32
	script []int
	delay  time.Duration
}

func (s *stationServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(s.calls.Add(1))
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if n <= len(s.script) {
		w.WriteHeader(s.script[n-1])
		return
	}
	_, _ = w.Write([]byte(`{"id":"PAR","name":"Paris"}`))
}

func testPolicy() resilience.Policy {
	return resilience.Policy{
		Timeout: time.Second,
		Retry:   resilience.RetryPolicy{MaxRetries: 3, Delay: time.Millisecond},
		CircuitBreaker: resilience.BreakerConfig{
			WindowSize:       10,
			FailureRatio:     0.6,
			Delay:            time.Minute,
			SuccessThreshold: 2,
		},
	}
}

func newResilient(t *testing.T, h http.Handler, policy resilience.Policy, opts ...station.Option) (*station.ResilientClient, *resilience.Registry) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	reg := resilience.NewRegistry()
	p := resilience.NewPipeline[station.Result](station.DependencyName, policy, reg)
	return station.NewResilientClient(station.NewClient(srv.URL, nil), p, opts...), reg
}

func TestResilientClient_RetriesThenSucceeds(t *testing.T) {
	srv := &stationServer{script: []int{500, 500}}
	c, _ := newResilient(t, srv, testPolicy())

	res, err := c.Fetch(context.Background(), "PAR", station.UnavailableUnlessNotFound("PAR"))

	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "Paris", res.Station.Name)
	assert.EqualValues(t, 3, srv.calls.Load())
}

func TestResilientClient_NotFoundIsNotRetried(t *testing.T) {
	srv := &stationServer{script: []int{404}}
	c, reg := newResilient(t, srv, testPolicy())

	_, err := c.Fetch(context.Background(), "404-X", station.UnavailableUnlessNotFound("404-X"))

	require.ErrorIs(t, err, station.ErrNotFound)
	assert.EqualValues(t, 1, srv.calls.Load())

	b, ok := reg.Lookup(station.DependencyName)
	require.True(t, ok)
	assert.Equal(t, 0, b.Snapshot().Failures, "not found counts as a healthy answer")
}

func TestResilientClient_AlwaysUnavailableAbsorbsNotFound(t *testing.T) {
	srv := &stationServer{script: []int{404}}
	c, _ := newResilient(t, srv, testPolicy())

	res, err := c.Fetch(context.Background(), "404-X", station.AlwaysUnavailable("404-X"))

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, domain.StationUnavailable, res.Station.Name)
	assert.Equal(t, "404-X", res.Station.ID)
	assert.ErrorIs(t, res.Cause, station.ErrNotFound)
}

func TestResilientClient_ExhaustedRetriesFallBack(t *testing.T) {
	srv := &stationServer{script: []int{503, 503, 503, 503, 503}}
	c, _ := newResilient(t, srv, testPolicy())

	res, err := c.Fetch(context.Background(), "PAR", station.UnavailableUnlessNotFound("PAR"))

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, domain.StationUnavailable, res.Station.Name)
	assert.ErrorIs(t, res.Cause, resilience.ErrRemoteError)
	assert.EqualValues(t, 4, srv.calls.Load(), "first attempt plus three retries")
}

func TestResilientClient_TimeoutFallsBack(t *testing.T) {
	srv := &stationServer{delay: 200 * time.Millisecond}
	policy := testPolicy()
	policy.Timeout = 20 * time.Millisecond
	policy.Retry.MaxRetries = 1
	c, _ := newResilient(t, srv, policy)

	res, err := c.Fetch(context.Background(), "PAR", station.UnavailableUnlessNotFound("PAR"))

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.ErrorIs(t, res.Cause, resilience.ErrTimeout)
}

func TestResilientClient_OpenCircuitSkipsRemote(t *testing.T) {
	script := make([]int, 100)
	for i := range script {
		script[i] = 500
	}
	srv := &stationServer{script: script}
	policy := testPolicy()
	policy.Retry.MaxRetries = 0
	c, reg := newResilient(t, srv, policy)

	for range 10 {
		_, _ = c.Fetch(context.Background(), "PAR", nil)
	}
	b, _ := reg.Lookup(station.DependencyName)
	require.Equal(t, resilience.StateOpen, b.State())
	before := srv.calls.Load()

	res, err := c.Fetch(context.Background(), "PAR", station.UnavailableUnlessNotFound("PAR"))

	require.NoError(t, err)
	assert.Equal(t, before, srv.calls.Load())
	assert.ErrorIs(t, res.Cause, resilience.ErrCircuitOpen)
}

// memCache is an in-process Cache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string]domain.Station
}

var _ station.Cache = (*memCache)(nil)

func (m *memCache) Get(_ context.Context, id string) (domain.Station, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.data[id]
	return st, ok, nil
}

func (m *memCache) Set(_ context.Context, st domain.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[st.ID] = st
	return nil
}

func TestResilientClient_Cache(t *testing.T) {
	srv := &stationServer{}
	cache := &memCache{data: map[string]domain.Station{}}
	c, _ := newResilient(t, srv, testPolicy(), station.WithCache(cache))

	for range 3 {
		res, err := c.Fetch(context.Background(), "PAR", nil)
		require.NoError(t, err)
		assert.Equal(t, "Paris", res.Station.Name)
	}
	assert.EqualValues(t, 1, srv.calls.Load(), "later lookups served from cache")
}

func TestResilientClient_DegradedResultNotCached(t *testing.T) {
	srv := &stationServer{script: []int{500, 500, 500, 500}}
	cache := &memCache{data: map[string]domain.Station{}}
	c, _ := newResilient(t, srv, testPolicy(), station.WithCache(cache))

	res, err := c.Fetch(context.Background(), "PAR", station.UnavailableUnlessNotFound("PAR"))
	require.NoError(t, err)
	require.True(t, res.Degraded)
	assert.Empty(t, cache.data)
}
