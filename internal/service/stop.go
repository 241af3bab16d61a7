// Package service contains the business logic of the train stop service.
// Services validate inputs, enforce the enrichment lifecycle, and orchestrate
// repo, station and messaging calls through interfaces.
// No SQL lives here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/repo"
)

// CreateStopInput is a creation request as received at the boundary.
// ArrivalTime is a pointer so a missing value can be told apart from the zero time.
type CreateStopInput struct {
	StationID   string
	ArrivalTime *time.Time
}

func (in CreateStopInput) validate() error {
	verr := domain.NewValidationError()
	if strings.TrimSpace(in.StationID) == "" {
		verr.Add("stationId", "stationId is required")
	}
	if in.ArrivalTime == nil || in.ArrivalTime.IsZero() {
		verr.Add("arrivalTime", "arrivalTime is required")
	}
	return verr.OrNil()
}

// StopService implements the create and read operations for train stops.
type StopService struct {
	stops    repo.StopRepo
	strategy ResolutionStrategy
	log      *slog.Logger
}

// NewStopService constructs a StopService. strategy decides how a freshly
// persisted stop gets its station name.
func NewStopService(stops repo.StopRepo, strategy ResolutionStrategy, log *slog.Logger) *StopService {
	if log == nil {
		log = slog.Default()
	}
	return &StopService{stops: stops, strategy: strategy, log: log}
}

// Create validates in, persists a pending stop and hands it to the resolution
// strategy. A request matching an existing (stationId, arrivalTime) returns the
// existing stop unchanged with domain.CreateReplayed.
func (s *StopService) Create(ctx context.Context, in CreateStopInput) (domain.TrainStop, domain.CreateStatus, error) {
	if err := in.validate(); err != nil {
		return domain.TrainStop{}, 0, fmt.Errorf("service.StopService.Create: %w", err)
	}
	stationID := strings.TrimSpace(in.StationID)
	arrival := in.ArrivalTime.UTC()

	existing, err := s.stops.FindByStationAndArrival(ctx, stationID, arrival)
	switch {
	case err == nil:
		s.log.InfoContext(ctx, "replaying existing stop", "stop_id", existing.ID, "station_id", stationID)
		return existing, domain.CreateReplayed, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.TrainStop{}, 0, fmt.Errorf("service.StopService.Create: %w", err)
	}

	created, err := s.stops.Create(ctx, domain.TrainStop{
		ID:          uuid.New(),
		StationID:   stationID,
		ArrivalTime: arrival,
	})
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent request with the same key won the insert.
		existing, err := s.stops.FindByStationAndArrival(ctx, stationID, arrival)
		if err != nil {
			return domain.TrainStop{}, 0, fmt.Errorf("service.StopService.Create: reread after conflict: %w", err)
		}
		return existing, domain.CreateReplayed, nil
	}
	if err != nil {
		return domain.TrainStop{}, 0, fmt.Errorf("service.StopService.Create: %w", err)
	}

	stop, status, err := s.strategy.Resolve(ctx, created)
	if err != nil {
		return domain.TrainStop{}, 0, fmt.Errorf("service.StopService.Create: %w", err)
	}
	return stop, status, nil
}

// GetByID returns a single stop by ID.
func (s *StopService) GetByID(ctx context.Context, id uuid.UUID) (domain.TrainStop, error) {
	stop, err := s.stops.GetByID(ctx, id)
	if err != nil {
		return domain.TrainStop{}, fmt.Errorf("service.StopService.GetByID: %w", err)
	}
	return stop, nil
}

// List returns one page of stops and the total count.
func (s *StopService) List(ctx context.Context, p domain.PaginationParams) ([]domain.TrainStop, int64, error) {
	stops, total, err := s.stops.List(ctx, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.StopService.List: %w", err)
	}
	return stops, total, nil
}

// Delete removes a stop by ID.
func (s *StopService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.stops.Delete(ctx, id); err != nil {
		return fmt.Errorf("service.StopService.Delete: %w", err)
	}
	return nil
}
