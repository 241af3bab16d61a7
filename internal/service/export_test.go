package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/service"
)

func TestExportService_Export(t *testing.T) {
	name := "Paris"
	resolved := domain.TrainStop{ID: uuid.New(), StationID: "PAR", ArrivalTime: arrival, StationName: &name}
	pending := domain.TrainStop{ID: uuid.New(), StationID: "LYS", ArrivalTime: arrival.Add(time.Hour)}

	svc := service.NewExportService(&mockStopRepo{
		listAll: func(context.Context) ([]domain.TrainStop, error) {
			return []domain.TrainStop{resolved, pending}, nil
		},
	})

	rows, err := svc.Export(context.Background())

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, resolved.ID.String(), rows[0].StopID)
	assert.Equal(t, "Paris", rows[0].StationName)
	assert.Equal(t, domain.StatusResolved, rows[0].Status)
	assert.Empty(t, rows[1].StationName)
	assert.Equal(t, domain.StatusPending, rows[1].Status)
}

func TestExportService_Export_Empty(t *testing.T) {
	svc := service.NewExportService(&mockStopRepo{
		listAll: func(context.Context) ([]domain.TrainStop, error) { return nil, nil },
	})

	rows, err := svc.Export(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExportService_Export_RepoError(t *testing.T) {
	boom := errors.New("db down")
	svc := service.NewExportService(&mockStopRepo{
		listAll: func(context.Context) ([]domain.TrainStop, error) { return nil, boom },
	})

	_, err := svc.Export(context.Background())

	assert.ErrorIs(t, err, boom)
}
