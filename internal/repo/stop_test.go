package repo_test

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/repo"
	"github.com/blackstrype/trainline/testutil"
)

// newPgStopRepo opens a transaction against the test database and returns a
// StopRepo backed by it. The transaction is rolled back when the test finishes.
func newPgStopRepo(t *testing.T) repo.StopRepo {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})

	return repo.NewStopRepo(tx)
}

func newMemoryStopRepo(t *testing.T) repo.StopRepo {
	t.Helper()
	return repo.NewMemoryStopRepo()
}

// Both implementations must satisfy the same contract.
func TestStopRepo_Postgres(t *testing.T) { runStopRepoContract(t, newPgStopRepo) }
func TestStopRepo_Memory(t *testing.T)   { runStopRepoContract(t, newMemoryStopRepo) }

var arrival = time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

func stopFixture(stationID string) domain.TrainStop {
	return domain.TrainStop{
		ID:          uuid.New(),
		StationID:   stationID,
		ArrivalTime: arrival,
	}
}

func runStopRepoContract(t *testing.T, newRepo func(*testing.T) repo.StopRepo) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		r := newRepo(t)
		in := stopFixture("PAR")

		got, err := r.Create(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, in.ID, got.ID)
		assert.Equal(t, "PAR", got.StationID)
		assert.True(t, got.ArrivalTime.Equal(arrival))
		assert.Nil(t, got.StationName)
		assert.Equal(t, domain.StatusPending, got.Status())
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("Create duplicate natural key conflicts", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Create(ctx, stopFixture("PAR"))
		require.NoError(t, err)

		_, err = r.Create(ctx, stopFixture("PAR"))

		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Create same station different time", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Create(ctx, stopFixture("PAR"))
		require.NoError(t, err)

		later := stopFixture("PAR")
		later.ArrivalTime = arrival.Add(time.Hour)
		_, err = r.Create(ctx, later)

		assert.NoError(t, err)
	})

	t.Run("GetByID not found", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("FindByStationAndArrival", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.Create(ctx, stopFixture("LYS"))
		require.NoError(t, err)

		got, err := r.FindByStationAndArrival(ctx, "LYS", arrival.In(time.FixedZone("CEST", 2*3600)))
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		_, err = r.FindByStationAndArrival(ctx, "LYS", arrival.Add(time.Minute))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Resolve pending stop", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.Create(ctx, stopFixture("PAR"))
		require.NoError(t, err)

		got, err := r.Resolve(ctx, created.ID, "Paris")

		require.NoError(t, err)
		require.NotNil(t, got.StationName)
		assert.Equal(t, "Paris", *got.StationName)
		assert.Equal(t, domain.StatusResolved, got.Status())
	})

	t.Run("Resolve is write-once", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.Create(ctx, stopFixture("PAR"))
		require.NoError(t, err)
		_, err = r.Resolve(ctx, created.ID, domain.StationUnavailable)
		require.NoError(t, err)

		_, err = r.Resolve(ctx, created.ID, "Paris")
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

		got, err := r.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusUnavailable, got.Status())
	})

	t.Run("Resolve missing stop", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Resolve(ctx, uuid.New(), "Paris")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DeletePending", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.Create(ctx, stopFixture("404-X"))
		require.NoError(t, err)

		require.NoError(t, r.DeletePending(ctx, created.ID))

		_, err = r.GetByID(ctx, created.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, r.DeletePending(ctx, created.ID), domain.ErrNotFound)
	})

	t.Run("DeletePending keeps resolved stop", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.Create(ctx, stopFixture("PAR"))
		require.NoError(t, err)
		_, err = r.Resolve(ctx, created.ID, "Paris")
		require.NoError(t, err)

		err = r.DeletePending(ctx, created.ID)

		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = r.GetByID(ctx, created.ID)
		assert.NoError(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.Create(ctx, stopFixture("PAR"))
		require.NoError(t, err)
		_, err = r.Resolve(ctx, created.ID, "Paris")
		require.NoError(t, err)

		require.NoError(t, r.Delete(ctx, created.ID))
		assert.ErrorIs(t, r.Delete(ctx, created.ID), domain.ErrNotFound)
	})

	t.Run("List pages in arrival order", func(t *testing.T) {
		r := newRepo(t)
		for i := range 5 {
			s := stopFixture("PAR")
			s.ArrivalTime = arrival.Add(time.Duration(4-i) * time.Hour)
			_, err := r.Create(ctx, s)
			require.NoError(t, err)
		}

		page, total, err := r.List(ctx, domain.PaginationParams{Page: 2, Limit: 2})

		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		require.Len(t, page, 2)
		assert.True(t, page[0].ArrivalTime.Equal(arrival.Add(2*time.Hour)))
		assert.True(t, page[1].ArrivalTime.Equal(arrival.Add(3*time.Hour)))

		all, err := r.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("List past the last page is empty", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Create(ctx, stopFixture("PAR"))
		require.NoError(t, err)

		huge := math.MaxInt
		page, total, err := r.List(ctx, domain.NewPaginationParams(&huge, nil))

		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Empty(t, page)
	})
}

// Only the in-memory store can be hammered from goroutines here; a pgx.Tx is
// not safe for concurrent use.
func TestMemoryStopRepo_ConcurrentResolveHasOneWinner(t *testing.T) {
	r := repo.NewMemoryStopRepo()
	ctx := context.Background()
	created, err := r.Create(ctx, stopFixture("PAR"))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(ctx, created.ID, "Paris"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}

func TestMemoryStopRepo_ReturnsCopies(t *testing.T) {
	r := repo.NewMemoryStopRepo()
	ctx := context.Background()
	created, err := r.Create(ctx, stopFixture("PAR"))
	require.NoError(t, err)
	resolved, err := r.Resolve(ctx, created.ID, "Paris")
	require.NoError(t, err)

	*resolved.StationName = "tampered"

	got, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paris", *got.StationName)
}
