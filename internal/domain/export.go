package domain

import "time"

// ExportRow is a single row in the stop export: one flat line per stop with
// its derived enrichment status, suitable for CSV.
type ExportRow struct {
	StopID      string
	StationID   string
	StationName string // empty while pending
	ArrivalTime time.Time
	Status      StopStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
