package domain

import "github.com/google/uuid"

// EnrichmentRequest asks for the station details of a pending stop.
// It is published once per stop creation on the requests topic.
type EnrichmentRequest struct {
	StopID    uuid.UUID `json:"stopId"`
	StationID string    `json:"stationId"`
}

// Outcome is the result status of one processed EnrichmentRequest.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFail    Outcome = "FAIL"
)

// EnrichmentResult is emitted on the response topic exactly once per
// EnrichmentRequest that changed a stop.
type EnrichmentResult struct {
	StopID    uuid.UUID  `json:"stopId"`
	StationID string     `json:"stationId"`
	Status    Outcome    `json:"status"`
	Detail    string     `json:"detail"`
	StopState StopStatus `json:"stopState"`
}
