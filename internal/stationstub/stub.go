// Package stationstub is a local stand-in for the station service. It serves
// GET /stations/{id} with configurable misbehaviour so the resilience
// pipeline and the enrichment exchange can be exercised without the real
// dependency.
package stationstub

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blackstrype/trainline/internal/domain"
)

// Modes.
const (
	ModeOK    = "ok"
	ModeFlaky = "flaky"
	ModeSlow  = "slow"
	ModeDown  = "down"
)

// NotFoundPrefix marks station ids the stub always answers with 404.
const NotFoundPrefix = "404"

// Config tunes the stub.
type Config struct {
	Mode string
	// FailureRate is the share of requests answered 503 in flaky mode.
	FailureRate float64
	// Latency is added to every response in slow mode.
	Latency time.Duration
	// Rand decides flaky failures; nil uses math/rand/v2.
	Rand func() float64
}

var catalogue = map[string]string{
	"8503000": "Zürich HB",
	"8507000": "Bern",
	"8500010": "Basel SBB",
	"8501008": "Genève",
	"8505000": "Luzern",
}

// Stub serves the station endpoints and counts the requests it answered.
type Stub struct {
	cfg   Config
	calls atomic.Int64
}

// New returns a Stub for cfg. An empty Mode is treated as ModeOK.
func New(cfg Config) *Stub {
	if cfg.Mode == "" {
		cfg.Mode = ModeOK
	}
	if cfg.FailureRate <= 0 || cfg.FailureRate > 1 {
		cfg.FailureRate = 0.5
	}
	if cfg.Latency <= 0 {
		cfg.Latency = 3 * time.Second
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Stub{cfg: cfg}
}

// Calls returns how many station lookups have been served.
func (s *Stub) Calls() int64 { return s.calls.Load() }

// Handler returns the stub's routes.
func (s *Stub) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/stations/{id}", s.getStation)
	return r
}

func (s *Stub) getStation(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	id := chi.URLParam(r, "id")

	switch s.cfg.Mode {
	case ModeDown:
		http.Error(w, "station service down", http.StatusServiceUnavailable)
		return
	case ModeFlaky:
		if s.cfg.Rand() < s.cfg.FailureRate {
			http.Error(w, "transient failure", http.StatusServiceUnavailable)
			return
		}
	case ModeSlow:
		select {
		case <-time.After(s.cfg.Latency):
		case <-r.Context().Done():
			return
		}
	}

	if strings.HasPrefix(id, NotFoundPrefix) {
		http.Error(w, "station not found", http.StatusNotFound)
		return
	}

	name, ok := catalogue[id]
	if !ok {
		name = "Station " + id
	}
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck // the client has gone away if this fails.
	json.NewEncoder(w).Encode(domain.Station{ID: id, Name: name})
}
