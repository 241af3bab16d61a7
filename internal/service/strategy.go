package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/repo"
	"github.com/blackstrype/trainline/internal/station"
)

// StationFetcher is satisfied by *station.ResilientClient.
type StationFetcher interface {
	Fetch(ctx context.Context, stationID string, fallback station.Fallback) (station.Result, error)
}

// RequestPublisher sends an EnrichmentRequest. Delivery is at-least-once.
type RequestPublisher interface {
	PublishRequest(ctx context.Context, req domain.EnrichmentRequest) error
}

// ResultPublisher sends an EnrichmentResult. Delivery is at-least-once.
type ResultPublisher interface {
	PublishResult(ctx context.Context, res domain.EnrichmentResult) error
}

// ResolutionStrategy decides how a freshly persisted pending stop gets its
// station name. It is chosen once at construction time.
type ResolutionStrategy interface {
	Resolve(ctx context.Context, stop domain.TrainStop) (domain.TrainStop, domain.CreateStatus, error)
}

// SyncStrategy resolves the station inside the creating request. Every remote
// failure, not-found included, degrades to the unavailable sentinel so the
// caller always receives a terminal stop.
type SyncStrategy struct {
	stops    repo.StopRepo
	stations StationFetcher
	log      *slog.Logger
}

// NewSyncStrategy constructs a SyncStrategy.
func NewSyncStrategy(stops repo.StopRepo, stations StationFetcher, log *slog.Logger) *SyncStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &SyncStrategy{stops: stops, stations: stations, log: log}
}

// Resolve fetches the station and writes its name onto stop. When the caller
// gives up before the name is written, the pending stop is withdrawn so it
// neither stays pending without a request nor records a remote failure that
// never happened.
func (s *SyncStrategy) Resolve(ctx context.Context, stop domain.TrainStop) (domain.TrainStop, domain.CreateStatus, error) {
	res, err := s.stations.Fetch(ctx, stop.StationID, station.AlwaysUnavailable(stop.StationID))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.withdraw(ctx, stop)
		return domain.TrainStop{}, 0, fmt.Errorf("service.SyncStrategy.Resolve: %w", err)
	}
	if res.Degraded {
		s.log.WarnContext(ctx, "stop resolved without station details",
			"stop_id", stop.ID, "station_id", stop.StationID, "cause", res.Cause)
	}

	resolved, err := s.stops.Resolve(ctx, stop.ID, res.Station.Name)
	if errors.Is(err, domain.ErrAlreadyResolved) {
		current, err := s.stops.GetByID(ctx, stop.ID)
		if err != nil {
			return domain.TrainStop{}, 0, fmt.Errorf("service.SyncStrategy.Resolve: %w", err)
		}
		return current, domain.CreateResolved, nil
	}
	if err != nil {
		s.withdraw(ctx, stop)
		return domain.TrainStop{}, 0, fmt.Errorf("service.SyncStrategy.Resolve: %w", err)
	}
	return resolved, domain.CreateResolved, nil
}

// withdraw deletes stop if it is still pending. It runs detached from ctx,
// which may already be cancelled.
func (s *SyncStrategy) withdraw(ctx context.Context, stop domain.TrainStop) {
	err := s.stops.DeletePending(context.WithoutCancel(ctx), stop.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.log.ErrorContext(ctx, "failed to withdraw unresolved stop", "stop_id", stop.ID, "error", err)
		return
	}
	s.log.WarnContext(ctx, "stop withdrawn before resolution", "stop_id", stop.ID, "station_id", stop.StationID)
}

// AsyncStrategy hands the stop to the enrichment consumer by publishing an
// EnrichmentRequest and returns while the stop is still pending.
type AsyncStrategy struct {
	stops     repo.StopRepo
	publisher RequestPublisher
	log       *slog.Logger
}

// NewAsyncStrategy constructs an AsyncStrategy.
func NewAsyncStrategy(stops repo.StopRepo, publisher RequestPublisher, log *slog.Logger) *AsyncStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &AsyncStrategy{stops: stops, publisher: publisher, log: log}
}

// Resolve publishes the enrichment request for stop. If publishing fails the
// pending stop is removed again so no stop waits on a request that was never sent.
func (s *AsyncStrategy) Resolve(ctx context.Context, stop domain.TrainStop) (domain.TrainStop, domain.CreateStatus, error) {
	req := domain.EnrichmentRequest{StopID: stop.ID, StationID: stop.StationID}
	if err := s.publisher.PublishRequest(ctx, req); err != nil {
		if derr := s.stops.DeletePending(context.WithoutCancel(ctx), stop.ID); derr != nil && !errors.Is(derr, domain.ErrNotFound) {
			s.log.ErrorContext(ctx, "failed to withdraw unpublished stop", "stop_id", stop.ID, "error", derr)
		}
		return domain.TrainStop{}, 0, fmt.Errorf("service.AsyncStrategy.Resolve: publish: %w", err)
	}

	s.log.InfoContext(ctx, "enrichment requested", "stop_id", stop.ID, "station_id", stop.StationID)
	return stop, domain.CreateAccepted, nil
}
