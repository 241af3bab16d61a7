// Package handler implements the HTTP handlers for the train stop API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, stop.go, export.go, breaker.go) but all share the same
// Server struct so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/resilience"
	"github.com/blackstrype/trainline/internal/service"
	"github.com/blackstrype/trainline/spec"
)

// StopServicer defines the business operations the stop handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the database or service layer.
type StopServicer interface {
	Create(ctx context.Context, in service.CreateStopInput) (domain.TrainStop, domain.CreateStatus, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.TrainStop, error)
	List(ctx context.Context, p domain.PaginationParams) ([]domain.TrainStop, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExportServicer produces the flat stop export.
type ExportServicer interface {
	Export(ctx context.Context) ([]domain.ExportRow, error)
}

// BreakerRegistry exposes circuit breaker state for the operator endpoints.
type BreakerRegistry interface {
	Snapshot() []resilience.BreakerSnapshot
	Lookup(name string) (*resilience.CircuitBreaker, bool)
}

// CreateCounter counts create outcomes. Satisfied by *metrics.Collectors.
type CreateCounter interface {
	CountCreate(status domain.CreateStatus)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves every API endpoint.
// Methods are in domain-specific files but all operate on this struct.
type Server struct {
	stops    StopServicer
	export   ExportServicer
	breakers BreakerRegistry
	counter  CreateCounter
	pinger   Pinger
	log      *slog.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithCreateCounter records every successful create.
func WithCreateCounter(c CreateCounter) Option {
	return func(s *Server) { s.counter = c }
}

// WithPinger makes GET /healthz report 503 when p fails.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithLogger sets the logger used for unexpected errors.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer constructs the Server with all its dependencies.
func NewServer(stops StopServicer, export ExportServicer, breakers BreakerRegistry, opts ...Option) *Server {
	s := &Server{
		stops:    stops,
		export:   export,
		breakers: breakers,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", serveOpenAPI)

	r.Route("/stops", func(r chi.Router) {
		r.Post("/", s.CreateStop)
		r.Get("/", s.ListStops)
		r.Get("/export", s.GetExport)
		r.Get("/{stopId}", s.GetStop)
		r.Delete("/{stopId}", s.DeleteStop)
	})

	r.Get("/circuit-breakers", s.ListBreakers)
	r.Post("/circuit-breakers/{name}/reset", s.ResetBreaker)
}

// Handler returns a chi router with every endpoint registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(spec.OpenAPI)
}
