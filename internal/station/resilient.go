package station

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/resilience"
)

// DependencyName keys the station service in the breaker registry and in
// resilience configuration.
const DependencyName = "station-service"

// Result is the outcome of a Fetch. Degraded is set when a fallback
// substituted the unavailable sentinel; Cause then holds the absorbed error.
type Result struct {
	Station  domain.Station
	Degraded bool
	Cause    error
}

// Fallback decides what a failed Fetch returns.
type Fallback = resilience.Fallback[Result]

// Fetcher is satisfied by *Client and by test doubles.
type Fetcher interface {
	GetStation(ctx context.Context, id string) (domain.Station, error)
}

// Cache is a read-through store of successfully resolved stations.
// A miss is reported as ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, id string) (domain.Station, bool, error)
	Set(ctx context.Context, st domain.Station) error
}

// ResilientClient fetches stations through a resilience pipeline.
type ResilientClient struct {
	remote   Fetcher
	pipeline *resilience.Pipeline[Result]
	cache    Cache
	log      *slog.Logger
}

// Option customises a ResilientClient.
type Option func(*ResilientClient)

// WithCache consults c before calling the station service and fills it on success.
func WithCache(c Cache) Option {
	return func(rc *ResilientClient) { rc.cache = c }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(rc *ResilientClient) {
		if l != nil {
			rc.log = l
		}
	}
}

// NewResilientClient wraps remote with pipeline.
func NewResilientClient(remote Fetcher, pipeline *resilience.Pipeline[Result], opts ...Option) *ResilientClient {
	c := &ResilientClient{remote: remote, pipeline: pipeline, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch resolves stationID. Raw failures from the pipeline are
// resilience.ErrTimeout, ErrNotFound, resilience.ErrRemoteError and
// resilience.ErrCircuitOpen (or ErrBulkheadFull); fallback may turn any of
// them into a substitute Result.
func (c *ResilientClient) Fetch(ctx context.Context, stationID string, fallback Fallback) (Result, error) {
	ctx, span := otel.Tracer("github.com/blackstrype/trainline/internal/station").Start(ctx, "station.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("station.id", stationID))

	if st, ok := c.cached(ctx, stationID); ok {
		span.SetAttributes(attribute.Bool("station.cache_hit", true))
		return Result{Station: st}, nil
	}

	res, err := c.pipeline.Execute(ctx, func(ctx context.Context) (Result, error) {
		st, err := c.remote.GetStation(ctx, stationID)
		if err != nil {
			return Result{}, err
		}
		return Result{Station: st}, nil
	}, fallback)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(resilience.KindOf(err)))
		return Result{}, err
	}

	if res.Degraded {
		span.SetAttributes(attribute.String("station.fallback_cause", string(resilience.KindOf(res.Cause))))
		c.log.WarnContext(ctx, "station lookup degraded to fallback",
			"station_id", stationID,
			"kind", resilience.KindOf(res.Cause),
			"error", res.Cause,
		)
		return res, nil
	}

	c.store(ctx, res.Station)
	return res, nil
}

func (c *ResilientClient) cached(ctx context.Context, id string) (domain.Station, bool) {
	if c.cache == nil {
		return domain.Station{}, false
	}
	st, ok, err := c.cache.Get(ctx, id)
	if err != nil {
		c.log.WarnContext(ctx, "station cache read failed", "station_id", id, "error", err)
		return domain.Station{}, false
	}
	return st, ok
}

func (c *ResilientClient) store(ctx context.Context, st domain.Station) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, st); err != nil {
		c.log.WarnContext(ctx, "station cache write failed", "station_id", st.ID, "error", err)
	}
}

// AlwaysUnavailable substitutes the unavailable sentinel for every failure,
// including not-found. The synchronous create path uses it so remote errors
// never reach the HTTP caller.
func AlwaysUnavailable(stationID string) Fallback {
	return func(_ context.Context, err error) (Result, error) {
		return unavailable(stationID, err), nil
	}
}

// UnavailableUnlessNotFound propagates a not-found answer, which the
// enrichment consumer compensates by deleting the stop, and substitutes the
// unavailable sentinel for everything else.
func UnavailableUnlessNotFound(stationID string) Fallback {
	return func(_ context.Context, err error) (Result, error) {
		if errors.Is(err, resilience.ErrRemoteNotFound) {
			return Result{}, err
		}
		return unavailable(stationID, err), nil
	}
}

func unavailable(stationID string, cause error) Result {
	return Result{
		Station:  domain.Station{ID: stationID, Name: domain.StationUnavailable},
		Degraded: true,
		Cause:    cause,
	}
}
