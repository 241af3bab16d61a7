package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blackstrype/trainline/internal/resilience"
)

// ListBreakers handles GET /circuit-breakers.
func (s *Server) ListBreakers(w http.ResponseWriter, _ *http.Request) {
	snaps := s.breakers.Snapshot()
	if snaps == nil {
		snaps = []resilience.BreakerSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// ResetBreaker handles POST /circuit-breakers/{name}/reset.
// It forces the named breaker closed and returns its fresh snapshot.
func (s *Server) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b, ok := s.breakers.Lookup(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, notFoundBody("circuit breaker "+name+" not found"))
		return
	}
	b.Reset()
	s.log.InfoContext(r.Context(), "circuit breaker reset", "dependency", name)
	writeJSON(w, http.StatusOK, b.Snapshot())
}
