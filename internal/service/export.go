package service

import (
	"context"
	"fmt"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/repo"
)

// ExportService assembles a flat export of every stop.
type ExportService struct {
	stops repo.StopRepo
}

// NewExportService constructs an ExportService backed by the provided repo.
func NewExportService(stops repo.StopRepo) *ExportService {
	return &ExportService{stops: stops}
}

// Export returns one ExportRow per stop in arrival order.
// Pending stops have an empty StationName.
func (s *ExportService) Export(ctx context.Context) ([]domain.ExportRow, error) {
	stops, err := s.stops.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.ExportService.Export: %w", err)
	}

	rows := make([]domain.ExportRow, 0, len(stops))
	for _, st := range stops {
		row := domain.ExportRow{
			StopID:      st.ID.String(),
			StationID:   st.StationID,
			ArrivalTime: st.ArrivalTime,
			Status:      st.Status(),
			CreatedAt:   st.CreatedAt,
			UpdatedAt:   st.UpdatedAt,
		}
		if st.StationName != nil {
			row.StationName = *st.StationName
		}
		rows = append(rows, row)
	}
	return rows, nil
}
