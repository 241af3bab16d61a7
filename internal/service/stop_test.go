package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/repo"
	"github.com/blackstrype/trainline/internal/resilience"
	"github.com/blackstrype/trainline/internal/service"
	"github.com/blackstrype/trainline/internal/station"
)

func syncService(stops repo.StopRepo, fetcher service.StationFetcher) *service.StopService {
	return service.NewStopService(stops, service.NewSyncStrategy(stops, fetcher, nil), nil)
}

func asyncService(stops repo.StopRepo, pub service.RequestPublisher) *service.StopService {
	return service.NewStopService(stops, service.NewAsyncStrategy(stops, pub, nil), nil)
}

// ---- Create: validation ----------------------------------------------------

func TestStopService_Create_Validation(t *testing.T) {
	cases := []struct {
		name   string
		input  service.CreateStopInput
		fields []string
	}{
		{"blank station", service.CreateStopInput{StationID: "   ", ArrivalTime: ptr(arrival)}, []string{"stationId"}},
		{"missing arrival", service.CreateStopInput{StationID: "PAR"}, []string{"arrivalTime"}},
		{"zero arrival", service.CreateStopInput{StationID: "PAR", ArrivalTime: &time.Time{}}, []string{"arrivalTime"}},
		{"both", service.CreateStopInput{}, []string{"stationId", "arrivalTime"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Any repo call would panic on the nil function fields.
			svc := syncService(&mockStopRepo{}, &stubFetcher{})

			_, _, err := svc.Create(context.Background(), tc.input)

			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			for _, f := range tc.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tc.fields))
		})
	}
}

// ---- Create: sync strategy -------------------------------------------------

func TestStopService_Create_SyncResolves(t *testing.T) {
	stops := repo.NewMemoryStopRepo()
	fetcher := &stubFetcher{station: domain.Station{ID: "1", Name: "Paris"}}
	svc := syncService(stops, fetcher)

	got, status, err := svc.Create(context.Background(), validInput("1"))

	require.NoError(t, err)
	assert.Equal(t, domain.CreateResolved, status)
	require.NotNil(t, got.StationName)
	assert.Equal(t, "Paris", *got.StationName)
	assert.Equal(t, 1, fetcher.Calls())
}

func TestStopService_Create_SyncDegradesEveryFailure(t *testing.T) {
	for name, cause := range map[string]error{
		"timeout":      resilience.ErrTimeout,
		"remote error": resilience.ErrRemoteError,
		"circuit open": resilience.ErrCircuitOpen,
		"not found":    station.ErrNotFound,
	} {
		t.Run(name, func(t *testing.T) {
			stops := repo.NewMemoryStopRepo()
			svc := syncService(stops, &stubFetcher{err: cause})

			got, status, err := svc.Create(context.Background(), validInput("PAR"))

			require.NoError(t, err, "sync path never leaks remote errors")
			assert.Equal(t, domain.CreateResolved, status)
			assert.Equal(t, domain.StatusUnavailable, got.Status())

			stored, err := stops.GetByID(context.Background(), got.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StationUnavailable, *stored.StationName)
		})
	}
}

func TestStopService_Create_SyncStoreErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	stops := &mockStopRepo{
		findByStationAndArrival: func(context.Context, string, time.Time) (domain.TrainStop, error) {
			return domain.TrainStop{}, domain.ErrNotFound
		},
		create: func(_ context.Context, s domain.TrainStop) (domain.TrainStop, error) { return s, nil },
		resolve: func(context.Context, uuid.UUID, string) (domain.TrainStop, error) {
			return domain.TrainStop{}, boom
		},
	}
	var withdrawn []uuid.UUID
	stops.deletePending = func(_ context.Context, id uuid.UUID) error {
		withdrawn = append(withdrawn, id)
		return nil
	}
	svc := syncService(stops, &stubFetcher{station: domain.Station{Name: "Paris"}})

	_, _, err := svc.Create(context.Background(), validInput("PAR"))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, withdrawn, 1)
}

func TestStopService_Create_SyncCallerGoneWithdrawsStop(t *testing.T) {
	stops := repo.NewMemoryStopRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The fallback absorbs the cancellation and reports a degraded station.
	svc := syncService(stops, &stubFetcher{err: context.Canceled})

	_, _, err := svc.Create(ctx, validInput("PAR"))

	require.ErrorIs(t, err, context.Canceled)
	all, err := stops.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

// ---- Create: async strategy ------------------------------------------------

func TestStopService_Create_AsyncPublishesRequest(t *testing.T) {
	stops := repo.NewMemoryStopRepo()
	pub := &recordingPublisher{}
	svc := asyncService(stops, pub)

	got, status, err := svc.Create(context.Background(), validInput("PAR"))

	require.NoError(t, err)
	assert.Equal(t, domain.CreateAccepted, status)
	assert.Equal(t, domain.StatusPending, got.Status())
	require.Len(t, pub.requests, 1)
	assert.Equal(t, domain.EnrichmentRequest{StopID: got.ID, StationID: "PAR"}, pub.requests[0])
}

func TestStopService_Create_AsyncPublishFailureWithdrawsStop(t *testing.T) {
	stops := repo.NewMemoryStopRepo()
	pub := &recordingPublisher{err: errors.New("broker unreachable")}
	svc := asyncService(stops, pub)

	_, _, err := svc.Create(context.Background(), validInput("PAR"))

	require.Error(t, err)
	_, err = stops.FindByStationAndArrival(context.Background(), "PAR", arrival)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no pending stop without a published request")
}

// ---- Create: idempotency ---------------------------------------------------

func TestStopService_Create_Idempotent(t *testing.T) {
	stops := repo.NewMemoryStopRepo()
	pub := &recordingPublisher{}
	svc := asyncService(stops, pub)
	ctx := context.Background()

	first, status1, err := svc.Create(ctx, validInput("PAR"))
	require.NoError(t, err)
	// Same instant expressed in another zone is the same arrival.
	again := service.CreateStopInput{StationID: " PAR ", ArrivalTime: ptr(arrival.In(time.FixedZone("CEST", 2*3600)))}
	second, status2, err := svc.Create(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.CreateAccepted, status1)
	assert.Equal(t, domain.CreateReplayed, status2)
	assert.Len(t, pub.requests, 1, "replay starts no second enrichment")

	all, err := stops.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStopService_Create_ConcurrentDuplicatesCollapse(t *testing.T) {
	stops := repo.NewMemoryStopRepo()
	pub := &recordingPublisher{}
	svc := asyncService(stops, pub)

	ids := make(chan uuid.UUID, 10)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := svc.Create(context.Background(), validInput("PAR"))
			if assert.NoError(t, err) {
				ids <- got.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var first uuid.UUID
	for id := range ids {
		if first == uuid.Nil {
			first = id
		}
		assert.Equal(t, first, id)
	}
	assert.Len(t, pub.requests, 1)
}

func TestStopService_Create_LookupError(t *testing.T) {
	boom := errors.New("db down")
	stops := &mockStopRepo{
		findByStationAndArrival: func(context.Context, string, time.Time) (domain.TrainStop, error) {
			return domain.TrainStop{}, boom
		},
	}
	svc := asyncService(stops, &recordingPublisher{})

	_, _, err := svc.Create(context.Background(), validInput("PAR"))

	assert.ErrorIs(t, err, boom)
}

// ---- reads -----------------------------------------------------------------

func TestStopService_GetByID_NotFound(t *testing.T) {
	svc := asyncService(repo.NewMemoryStopRepo(), &recordingPublisher{})

	_, err := svc.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStopService_List(t *testing.T) {
	stops := repo.NewMemoryStopRepo()
	svc := asyncService(stops, &recordingPublisher{})
	ctx := context.Background()
	for i := range 3 {
		in := validInput("PAR")
		in.ArrivalTime = ptr(arrival.Add(time.Duration(i) * time.Hour))
		_, _, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	page, total, err := svc.List(ctx, domain.PaginationParams{Page: 1, Limit: 2})

	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page, 2)
}

func TestStopService_Delete(t *testing.T) {
	stops := repo.NewMemoryStopRepo()
	svc := asyncService(stops, &recordingPublisher{})
	ctx := context.Background()
	created, _, err := svc.Create(ctx, validInput("PAR"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), domain.ErrNotFound)
}
