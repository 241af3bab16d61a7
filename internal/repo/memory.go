package repo

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackstrype/trainline/internal/domain"
)

// MemoryStopRepo is a StopRepo held in process memory. All operations are
// serialised by one mutex, which makes Resolve and DeletePending atomic.
type MemoryStopRepo struct {
	now func() time.Time

	mu    sync.Mutex
	stops map[uuid.UUID]domain.TrainStop
}

var _ StopRepo = (*MemoryStopRepo)(nil)

// NewMemoryStopRepo returns an empty in-memory store.
func NewMemoryStopRepo() *MemoryStopRepo {
	return &MemoryStopRepo{
		now:   func() time.Time { return time.Now().UTC() },
		stops: make(map[uuid.UUID]domain.TrainStop),
	}
}

func (r *MemoryStopRepo) Create(_ context.Context, stop domain.TrainStop) (domain.TrainStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.stops {
		if s.StationID == stop.StationID && s.ArrivalTime.Equal(stop.ArrivalTime) {
			return domain.TrainStop{}, fmt.Errorf("repo.MemoryStopRepo.Create: %w", domain.ErrConflict)
		}
	}
	if stop.ID == uuid.Nil {
		stop.ID = uuid.New()
	}
	if _, exists := r.stops[stop.ID]; exists {
		return domain.TrainStop{}, fmt.Errorf("repo.MemoryStopRepo.Create: %w", domain.ErrConflict)
	}

	now := r.now()
	stop.ArrivalTime = stop.ArrivalTime.UTC()
	stop.StationName = cloneName(stop.StationName)
	stop.CreatedAt, stop.UpdatedAt = now, now
	r.stops[stop.ID] = stop
	return copyStop(stop), nil
}

func (r *MemoryStopRepo) GetByID(_ context.Context, id uuid.UUID) (domain.TrainStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stops[id]
	if !ok {
		return domain.TrainStop{}, fmt.Errorf("repo.MemoryStopRepo.GetByID: %w", domain.ErrNotFound)
	}
	return copyStop(s), nil
}

func (r *MemoryStopRepo) FindByStationAndArrival(_ context.Context, stationID string, arrival time.Time) (domain.TrainStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.stops {
		if s.StationID == stationID && s.ArrivalTime.Equal(arrival) {
			return copyStop(s), nil
		}
	}
	return domain.TrainStop{}, fmt.Errorf("repo.MemoryStopRepo.FindByStationAndArrival: %w", domain.ErrNotFound)
}

func (r *MemoryStopRepo) List(_ context.Context, p domain.PaginationParams) ([]domain.TrainStop, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.sorted()
	total := int64(len(all))
	start := min(max(p.Offset(), 0), len(all))
	end := min(start+p.Limit, len(all))
	return all[start:end], total, nil
}

func (r *MemoryStopRepo) ListAll(_ context.Context) ([]domain.TrainStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(), nil
}

func (r *MemoryStopRepo) Resolve(_ context.Context, id uuid.UUID, stationName string) (domain.TrainStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stops[id]
	if !ok {
		return domain.TrainStop{}, fmt.Errorf("repo.MemoryStopRepo.Resolve: %w", domain.ErrNotFound)
	}
	if !s.IsPending() {
		return domain.TrainStop{}, fmt.Errorf("repo.MemoryStopRepo.Resolve: %w", domain.ErrAlreadyResolved)
	}
	s.StationName = &stationName
	s.UpdatedAt = r.now()
	r.stops[id] = s
	return copyStop(s), nil
}

func (r *MemoryStopRepo) DeletePending(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stops[id]
	if !ok || !s.IsPending() {
		return fmt.Errorf("repo.MemoryStopRepo.DeletePending: %w", domain.ErrNotFound)
	}
	delete(r.stops, id)
	return nil
}

func (r *MemoryStopRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stops[id]; !ok {
		return fmt.Errorf("repo.MemoryStopRepo.Delete: %w", domain.ErrNotFound)
	}
	delete(r.stops, id)
	return nil
}

// sorted must be called with mu held.
func (r *MemoryStopRepo) sorted() []domain.TrainStop {
	out := make([]domain.TrainStop, 0, len(r.stops))
	for _, s := range r.stops {
		out = append(out, copyStop(s))
	}
	slices.SortFunc(out, func(a, b domain.TrainStop) int {
		if c := a.ArrivalTime.Compare(b.ArrivalTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func copyStop(s domain.TrainStop) domain.TrainStop {
	s.StationName = cloneName(s.StationName)
	return s
}

func cloneName(n *string) *string {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
