package handler

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/blackstrype/trainline/internal/domain"
)

// csvHeaders defines the column names written as the first row of any CSV export.
var csvHeaders = []string{
	"stop_id", "station_id", "station_name", "arrival_time",
	"status", "created_at", "updated_at",
}

// ExportRow is the JSON shape of one export line.
type ExportRow struct {
	StopID      string            `json:"stopId"`
	StationID   string            `json:"stationId"`
	StationName *string           `json:"stationName,omitempty"`
	ArrivalTime time.Time         `json:"arrivalTime"`
	Status      domain.StopStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// GetExport handles GET /stops/export.
// It returns every stop as a flat table with its enrichment status.
// Use ?format=csv to receive CSV; default is JSON.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "csv" && format != "json" {
		writeJSON(w, http.StatusBadRequest, requestBody("format must be csv or json"))
		return
	}

	rows, err := s.export.Export(r.Context())
	if err != nil {
		s.writeError(w, r, err, "export not found")
		return
	}

	if format == "csv" {
		body := buildCSV(rows)
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="stops.csv"`)
		w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = body.WriteTo(w)
		return
	}

	out := make([]ExportRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, domainRowToResponse(row))
	}
	writeJSON(w, http.StatusOK, out)
}

// buildCSV encodes domain rows as CSV with a header line.
func buildCSV(rows []domain.ExportRow) *bytes.Buffer {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	//nolint:errcheck // bytes.Buffer.Write never returns an error.
	w.Write(csvHeaders)
	for _, r := range rows {
		//nolint:errcheck
		w.Write(domainRowToCSVRecord(r))
	}
	w.Flush()
	return &buf
}

func domainRowToResponse(r domain.ExportRow) ExportRow {
	row := ExportRow{
		StopID:      r.StopID,
		StationID:   r.StationID,
		ArrivalTime: r.ArrivalTime,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.StationName != "" {
		row.StationName = &r.StationName
	}
	return row
}

// domainRowToCSVRecord encodes a domain.ExportRow as a flat string slice.
// Times are RFC 3339 in UTC; a pending stop has an empty station_name.
func domainRowToCSVRecord(r domain.ExportRow) []string {
	return []string{
		r.StopID,
		r.StationID,
		r.StationName,
		r.ArrivalTime.UTC().Format(time.RFC3339),
		string(r.Status),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
