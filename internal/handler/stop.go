package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blackstrype/trainline/internal/domain"
	"github.com/blackstrype/trainline/internal/service"
)

// CreateStopRequest is the body of POST /stops.
type CreateStopRequest struct {
	StationID   string     `json:"stationId"`
	ArrivalTime *time.Time `json:"arrivalTime"`
}

// UnmarshalJSON decodes each field on its own so a wrongly typed value is
// reported against its field as a *domain.ValidationError.
func (req *CreateStopRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		StationID   json.RawMessage `json:"stationId"`
		ArrivalTime json.RawMessage `json:"arrivalTime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	verr := domain.NewValidationError()
	if present(raw.StationID) {
		if err := json.Unmarshal(raw.StationID, &req.StationID); err != nil {
			verr.Add("stationId", "stationId must be a string")
		}
	}
	if present(raw.ArrivalTime) {
		var at time.Time
		if err := json.Unmarshal(raw.ArrivalTime, &at); err != nil {
			verr.Add("arrivalTime", "arrivalTime must be an RFC 3339 timestamp")
		} else {
			req.ArrivalTime = &at
		}
	}
	return verr.OrNil()
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// Stop is the API representation of a domain.TrainStop.
type Stop struct {
	ID          uuid.UUID         `json:"id"`
	StationID   string            `json:"stationId"`
	ArrivalTime time.Time         `json:"arrivalTime"`
	StationName *string           `json:"stationName,omitempty"`
	Status      domain.StopStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// StopList is the body of GET /stops.
type StopList struct {
	Data       []Stop     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// CreateStop handles POST /stops.
// Responds 201 when the stop was resolved in the request, 202 when enrichment
// was handed off, and 200 when an identical stop already existed.
func (s *Server) CreateStop(w http.ResponseWriter, r *http.Request) {
	var body CreateStopRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, requestBody("request body too large"))
			return
		}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, validationBody(verr))
			return
		}
		writeJSON(w, http.StatusBadRequest, requestBody("request body must be a JSON object with stationId and an RFC 3339 arrivalTime"))
		return
	}

	stop, status, err := s.stops.Create(r.Context(), service.CreateStopInput{
		StationID:   body.StationID,
		ArrivalTime: body.ArrivalTime,
	})
	if err != nil {
		s.writeError(w, r, err, "stop not found")
		return
	}
	if s.counter != nil {
		s.counter.CountCreate(status)
	}

	code := http.StatusOK
	switch status {
	case domain.CreateResolved:
		code = http.StatusCreated
	case domain.CreateAccepted:
		code = http.StatusAccepted
	}
	if code != http.StatusOK {
		w.Header().Set("Location", "/stops/"+stop.ID.String())
	}
	writeJSON(w, code, stopToResponse(stop))
}

// ListStops handles GET /stops.
// Supports ?page= and ?limit= query parameters (defaults: page=1, limit=20, max=100).
func (s *Server) ListStops(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody("page must be an integer"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody("limit must be an integer"))
		return
	}

	params := domain.NewPaginationParams(page, limit)
	stops, total, err := s.stops.List(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err, "stop not found")
		return
	}

	data := make([]Stop, len(stops))
	for i, st := range stops {
		data[i] = stopToResponse(st)
	}
	writeJSON(w, http.StatusOK, StopList{
		Data: data,
		Pagination: Pagination{
			Page:  params.Page,
			Limit: params.Limit,
			Total: int(total),
		},
	})
}

// GetStop handles GET /stops/{stopId}.
func (s *Server) GetStop(w http.ResponseWriter, r *http.Request) {
	id, ok := stopID(w, r)
	if !ok {
		return
	}
	stop, err := s.stops.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, "stop not found")
		return
	}
	writeJSON(w, http.StatusOK, stopToResponse(stop))
}

// DeleteStop handles DELETE /stops/{stopId}.
func (s *Server) DeleteStop(w http.ResponseWriter, r *http.Request) {
	id, ok := stopID(w, r)
	if !ok {
		return
	}
	if err := s.stops.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, "stop not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stopID parses the {stopId} path parameter, writing a 400 when it is not a UUID.
func stopID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "stopId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, requestBody("stopId must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// queryInt returns nil when the parameter is absent.
func queryInt(r *http.Request, key string) (*int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// stopToResponse converts a domain.TrainStop to its API representation.
func stopToResponse(s domain.TrainStop) Stop {
	return Stop{
		ID:          s.ID,
		StationID:   s.StationID,
		ArrivalTime: s.ArrivalTime,
		StationName: s.StationName,
		Status:      s.Status(),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
