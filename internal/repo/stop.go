package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/blackstrype/trainline/internal/domain"
)

// StopRepo defines the persistence operations for TrainStops.
// The service layer depends on this interface so it can be unit-tested with a mock.
type StopRepo interface {
	// Create inserts a new pending stop and returns the persisted record.
	// Returns domain.ErrConflict if a stop with the same station id and
	// arrival time already exists.
	Create(ctx context.Context, stop domain.TrainStop) (domain.TrainStop, error)

	// GetByID retrieves a single stop. Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.TrainStop, error)

	// FindByStationAndArrival looks a stop up by its natural key.
	// Returns domain.ErrNotFound if absent.
	FindByStationAndArrival(ctx context.Context, stationID string, arrival time.Time) (domain.TrainStop, error)

	// List returns one page of stops ordered by arrival time and the total count.
	List(ctx context.Context, p domain.PaginationParams) ([]domain.TrainStop, int64, error)

	// ListAll returns every stop ordered by arrival time.
	ListAll(ctx context.Context) ([]domain.TrainStop, error)

	// Resolve sets the station name of a pending stop in one atomic step.
	// Returns domain.ErrNotFound if the stop is absent and
	// domain.ErrAlreadyResolved if it is no longer pending.
	Resolve(ctx context.Context, id uuid.UUID, stationName string) (domain.TrainStop, error)

	// DeletePending removes a stop only while it is still pending.
	// Returns domain.ErrNotFound if the stop is absent or already terminal.
	DeletePending(ctx context.Context, id uuid.UUID) error

	// Delete removes a stop regardless of state.
	// Returns domain.ErrNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

const stopColumns = `id, station_id, arrival_time, station_name, created_at, updated_at`

// pgStopRepo is the Postgres implementation of StopRepo.
type pgStopRepo struct {
	db db
}

// NewStopRepo constructs a StopRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewStopRepo(db db) StopRepo {
	return &pgStopRepo{db: db}
}

// Create inserts a stop. A zero ID is replaced by a fresh UUID.
func (r *pgStopRepo) Create(ctx context.Context, stop domain.TrainStop) (domain.TrainStop, error) {
	const q = `
		INSERT INTO train_stops (id, station_id, arrival_time, station_name)
		VALUES (@id, @station_id, @arrival_time, @station_name)
		RETURNING ` + stopColumns

	if stop.ID == uuid.Nil {
		stop.ID = uuid.New()
	}
	args := pgx.NamedArgs{
		"id":           stop.ID,
		"station_id":   stop.StationID,
		"arrival_time": stop.ArrivalTime,
		"station_name": stop.StationName, // nil becomes NULL
	}

	result, err := scanStop(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.TrainStop{}, fmt.Errorf("repo.StopRepo.Create: %w", domain.ErrConflict)
		}
		return domain.TrainStop{}, fmt.Errorf("repo.StopRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a stop by primary key.
func (r *pgStopRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.TrainStop, error) {
	const q = `SELECT ` + stopColumns + ` FROM train_stops WHERE id = @id`

	result, err := scanStop(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.TrainStop{}, fmt.Errorf("repo.StopRepo.GetByID: %w", err)
	}
	return result, nil
}

// FindByStationAndArrival retrieves a stop by its unique natural key.
func (r *pgStopRepo) FindByStationAndArrival(ctx context.Context, stationID string, arrival time.Time) (domain.TrainStop, error) {
	const q = `
		SELECT ` + stopColumns + `
		FROM train_stops
		WHERE station_id = @station_id AND arrival_time = @arrival_time`

	args := pgx.NamedArgs{"station_id": stationID, "arrival_time": arrival}
	result, err := scanStop(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.TrainStop{}, fmt.Errorf("repo.StopRepo.FindByStationAndArrival: %w", err)
	}
	return result, nil
}

// List returns one page of stops and the total row count.
func (r *pgStopRepo) List(ctx context.Context, p domain.PaginationParams) ([]domain.TrainStop, int64, error) {
	const countQ = `SELECT COUNT(*) FROM train_stops`
	const q = `
		SELECT ` + stopColumns + `
		FROM train_stops
		ORDER BY arrival_time, id
		LIMIT @limit OFFSET @offset`

	var total int64
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.StopRepo.List: count: %w", err)
	}

	stops, err := r.query(ctx, q, pgx.NamedArgs{"limit": p.Limit, "offset": p.Offset()})
	if err != nil {
		return nil, 0, fmt.Errorf("repo.StopRepo.List: %w", err)
	}
	return stops, total, nil
}

// ListAll returns every stop, for export.
func (r *pgStopRepo) ListAll(ctx context.Context) ([]domain.TrainStop, error) {
	const q = `SELECT ` + stopColumns + ` FROM train_stops ORDER BY arrival_time, id`

	stops, err := r.query(ctx, q, pgx.NamedArgs{})
	if err != nil {
		return nil, fmt.Errorf("repo.StopRepo.ListAll: %w", err)
	}
	return stops, nil
}

// Resolve fills in the station name only if it is still NULL, so two
// concurrent resolutions cannot both win.
func (r *pgStopRepo) Resolve(ctx context.Context, id uuid.UUID, stationName string) (domain.TrainStop, error) {
	const q = `
		UPDATE train_stops
		SET station_name = @station_name,
		    updated_at   = now()
		WHERE id = @id AND station_name IS NULL
		RETURNING ` + stopColumns

	args := pgx.NamedArgs{"id": id, "station_name": stationName}
	result, err := scanStop(r.db.QueryRow(ctx, q, args))
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.TrainStop{}, fmt.Errorf("repo.StopRepo.Resolve: %w", err)
	}

	// No row matched: tell a missing stop apart from one that is already terminal.
	if _, err := r.GetByID(ctx, id); err != nil {
		return domain.TrainStop{}, fmt.Errorf("repo.StopRepo.Resolve: %w", domain.ErrNotFound)
	}
	return domain.TrainStop{}, fmt.Errorf("repo.StopRepo.Resolve: %w", domain.ErrAlreadyResolved)
}

// DeletePending removes a stop whose station name is still NULL.
func (r *pgStopRepo) DeletePending(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM train_stops WHERE id = @id AND station_name IS NULL`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("repo.StopRepo.DeletePending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.StopRepo.DeletePending: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a stop by primary key.
func (r *pgStopRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM train_stops WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return fmt.Errorf("repo.StopRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.StopRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *pgStopRepo) query(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.TrainStop, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stops := []domain.TrainStop{}
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		stops = append(stops, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return stops, nil
}

// scanStop maps a single database row into a domain.TrainStop.
func scanStop(s scanner) (domain.TrainStop, error) {
	var (
		st   domain.TrainStop
		id   pgtype.UUID
		name pgtype.Text
	)

	err := s.Scan(&id, &st.StationID, &st.ArrivalTime, &name, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrainStop{}, domain.ErrNotFound
		}
		return domain.TrainStop{}, err
	}

	st.ID = uuid.UUID(id.Bytes)
	st.ArrivalTime = st.ArrivalTime.UTC()
	if name.Valid {
		n := name.String
		st.StationName = &n
	}
	return st, nil
}
