package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/repo"
	"github.com/blackstrype/trainline/internal/resilience"
	"github.com/blackstrype/trainline/internal/station"
)

// EnrichmentConsumer applies the asynchronous resolution step to one
// EnrichmentRequest. Handle is safe to call repeatedly for the same request:
// a stop that is absent or already terminal is left alone and nothing is emitted.
type EnrichmentConsumer struct {
	stops       repo.StopRepo
	stations    StationFetcher
	publisher   ResultPublisher
	resultRetry resilience.RetryPolicy
	log         *slog.Logger
}

// ConsumerOption configures an EnrichmentConsumer.
type ConsumerOption func(*EnrichmentConsumer)

// WithResultRetry sets the retry policy for publishing a result once the stop
// has been written. A redelivered request finds the stop terminal and emits
// nothing, so this is the only chance to get the result out.
func WithResultRetry(p resilience.RetryPolicy) ConsumerOption {
	return func(c *EnrichmentConsumer) { c.resultRetry = p }
}

// DefaultResultRetry is used unless WithResultRetry overrides it.
var DefaultResultRetry = resilience.RetryPolicy{
	MaxRetries:  5,
	Delay:       100 * time.Millisecond,
	Jitter:      25 * time.Millisecond,
	MaxDuration: 5 * time.Second,
}

// NewEnrichmentConsumer constructs an EnrichmentConsumer.
func NewEnrichmentConsumer(stops repo.StopRepo, stations StationFetcher, publisher ResultPublisher, log *slog.Logger, opts ...ConsumerOption) *EnrichmentConsumer {
	if log == nil {
		log = slog.Default()
	}
	c := &EnrichmentConsumer{
		stops:       stops,
		stations:    stations,
		publisher:   publisher,
		resultRetry: DefaultResultRetry,
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle processes req. It returns an error only for local faults (store or
// publish failures, cancellation) so the caller can redeliver; remote failures
// are absorbed into the stop's terminal state.
func (c *EnrichmentConsumer) Handle(ctx context.Context, req domain.EnrichmentRequest) error {
	log := c.log.With("stop_id", req.StopID, "station_id", req.StationID)

	stop, err := c.stops.GetByID(ctx, req.StopID)
	if errors.Is(err, domain.ErrNotFound) {
		log.InfoContext(ctx, "stop no longer exists, discarding request")
		return nil
	}
	if err != nil {
		return fmt.Errorf("service.EnrichmentConsumer.Handle: load stop: %w", err)
	}
	if !stop.IsPending() {
		log.InfoContext(ctx, "stop already terminal, discarding request", "status", stop.Status())
		return nil
	}

	res, err := c.stations.Fetch(ctx, stop.StationID, station.UnavailableUnlessNotFound(stop.StationID))
	if ctx.Err() != nil {
		return fmt.Errorf("service.EnrichmentConsumer.Handle: %w", context.Cause(ctx))
	}
	switch {
	case errors.Is(err, resilience.ErrRemoteNotFound):
		return c.compensate(ctx, log, stop)
	case err != nil:
		return fmt.Errorf("service.EnrichmentConsumer.Handle: fetch station: %w", err)
	case res.Degraded:
		return c.resolve(ctx, log, stop, res.Station.Name, domain.EnrichmentResult{
			Status:    domain.OutcomeFail,
			Detail:    res.Cause.Error(),
			StopState: domain.StatusUnavailable,
		})
	default:
		return c.resolve(ctx, log, stop, res.Station.Name, domain.EnrichmentResult{
			Status:    domain.OutcomeSuccess,
			Detail:    res.Station.Name,
			StopState: domain.StatusResolved,
		})
	}
}

// compensate undoes the provisional creation of a stop whose station does not exist.
func (c *EnrichmentConsumer) compensate(ctx context.Context, log *slog.Logger, stop domain.TrainStop) error {
	err := c.stops.DeletePending(ctx, stop.ID)
	if errors.Is(err, domain.ErrNotFound) {
		log.InfoContext(ctx, "stop resolved or removed concurrently, skipping compensation")
		return nil
	}
	if err != nil {
		return fmt.Errorf("service.EnrichmentConsumer.Handle: compensate: %w", err)
	}

	log.InfoContext(ctx, "station not found, stop deleted")
	return c.emit(ctx, domain.EnrichmentResult{
		StopID:    stop.ID,
		StationID: stop.StationID,
		Status:    domain.OutcomeFail,
		Detail:    fmt.Sprintf("station %s not found (404)", stop.StationID),
		StopState: domain.StatusDeleted,
	})
}

func (c *EnrichmentConsumer) resolve(ctx context.Context, log *slog.Logger, stop domain.TrainStop, name string, result domain.EnrichmentResult) error {
	_, err := c.stops.Resolve(ctx, stop.ID, name)
	if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrNotFound) {
		log.InfoContext(ctx, "stop resolved or removed concurrently, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("service.EnrichmentConsumer.Handle: resolve: %w", err)
	}

	log.InfoContext(ctx, "stop enriched", "status", result.StopState, "outcome", result.Status)
	result.StopID = stop.ID
	result.StationID = stop.StationID
	return c.emit(ctx, result)
}

func (c *EnrichmentConsumer) emit(ctx context.Context, result domain.EnrichmentResult) error {
	attempts := 0
	err := c.resultRetry.Do(ctx, func(ctx context.Context) error {
		attempts++
		return c.publisher.PublishResult(ctx, result)
	}, func(error) bool { return true })
	if err != nil {
		c.log.ErrorContext(ctx, "enrichment result lost",
			"stop_id", result.StopID, "stop_state", result.StopState, "attempts", attempts, "error", err)
		return fmt.Errorf("service.EnrichmentConsumer.Handle: publish result: %w", err)
	}
	return nil
}
