package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/repo"
	"github.com/blackstrype/trainline/internal/service"
	"github.com/blackstrype/trainline/internal/station"
)

// mockStopRepo is a hand-written test double for repo.StopRepo.
// Each method is a function field; set only the ones your test needs.
type mockStopRepo struct {
	create                  func(ctx context.Context, stop domain.TrainStop) (domain.TrainStop, error)
	getByID                 func(ctx context.Context, id uuid.UUID) (domain.TrainStop, error)
	findByStationAndArrival func(ctx context.Context, stationID string, arrival time.Time) (domain.TrainStop, error)
	list                    func(ctx context.Context, p domain.PaginationParams) ([]domain.TrainStop, int64, error)
	listAll                 func(ctx context.Context) ([]domain.TrainStop, error)
	resolve                 func(ctx context.Context, id uuid.UUID, name string) (domain.TrainStop, error)
	deletePending           func(ctx context.Context, id uuid.UUID) error
	delete                  func(ctx context.Context, id uuid.UUID) error
}

func (m *mockStopRepo) Create(ctx context.Context, stop domain.TrainStop) (domain.TrainStop, error) {
	return m.create(ctx, stop)
}
func (m *mockStopRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.TrainStop, error) {
	return m.getByID(ctx, id)
}
func (m *mockStopRepo) FindByStationAndArrival(ctx context.Context, stationID string, arrival time.Time) (domain.TrainStop, error) {
	return m.findByStationAndArrival(ctx, stationID, arrival)
}
func (m *mockStopRepo) List(ctx context.Context, p domain.PaginationParams) ([]domain.TrainStop, int64, error) {
	return m.list(ctx, p)
}
func (m *mockStopRepo) ListAll(ctx context.Context) ([]domain.TrainStop, error) {
	return m.listAll(ctx)
}
func (m *mockStopRepo) Resolve(ctx context.Context, id uuid.UUID, name string) (domain.TrainStop, error) {
	return m.resolve(ctx, id, name)
}
func (m *mockStopRepo) DeletePending(ctx context.Context, id uuid.UUID) error {
	return m.deletePending(ctx, id)
}
func (m *mockStopRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, id)
}

// compile-time check: mockStopRepo must satisfy repo.StopRepo.
var _ repo.StopRepo = (*mockStopRepo)(nil)

// stubFetcher answers every Fetch with the same raw outcome and applies the
// caller's fallback, the way the real pipeline does after retries.
type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	station domain.Station
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context, stationID string, fallback station.Fallback) (station.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err == nil {
		return station.Result{Station: f.station}, nil
	}
	if fallback == nil {
		return station.Result{}, f.err
	}
	return fallback(ctx, f.err)
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var _ service.StationFetcher = (*stubFetcher)(nil)

// recordingPublisher captures everything published to it.
type recordingPublisher struct {
	mu       sync.Mutex
	requests []domain.EnrichmentRequest
	results  []domain.EnrichmentResult
	err      error
}

func (p *recordingPublisher) PublishRequest(_ context.Context, req domain.EnrichmentRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, req)
	return nil
}

func (p *recordingPublisher) PublishResult(_ context.Context, res domain.EnrichmentResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.results = append(p.results, res)
	return nil
}

func (p *recordingPublisher) Results() []domain.EnrichmentResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.EnrichmentResult(nil), p.results...)
}

var (
	_ service.RequestPublisher = (*recordingPublisher)(nil)
	_ service.ResultPublisher  = (*recordingPublisher)(nil)
)

// ---- helpers ---------------------------------------------------------------

var arrival = time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func validInput(stationID string) service.CreateStopInput {
	return service.CreateStopInput{StationID: stationID, ArrivalTime: ptr(arrival)}
}

var _ service.ResultPublisher = (*flakyResultPublisher)(nil)

// flakyResultPublisher fails the first failures PublishResult calls.
type flakyResultPublisher struct {
	failures int
	calls    int
	results  []domain.EnrichmentResult
}

func (p *flakyResultPublisher) PublishResult(_ context.Context, res domain.EnrichmentResult) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("broker unavailable")
	}
	p.results = append(p.results, res)
	return nil
}
