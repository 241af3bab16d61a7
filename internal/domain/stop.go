// Package domain contains the core data types for the train stop service.
// This package has no dependencies on the other internal packages and is
// imported by every one of them (repo, service, station, messaging, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// StationUnavailable is stored as the station name when enrichment gave up on
// a transient failure. It marks the stop as terminal, not pending.
const StationUnavailable = "Station details not available"

// StopStatus is the enrichment state of a TrainStop.
type StopStatus string

const (
	StatusPending     StopStatus = "PENDING"
	StatusResolved    StopStatus = "RESOLVED"
	StatusUnavailable StopStatus = "UNAVAILABLE"
	// StatusDeleted is never stored; it names the compensation outcome.
	StatusDeleted StopStatus = "DELETED"
)

// TrainStop represents one scheduled arrival of a train line at a station.
// StationName is nil while enrichment is pending.
type TrainStop struct {
	ID          uuid.UUID
	StationID   string
	ArrivalTime time.Time
	StationName *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Status derives the lifecycle state from StationName.
func (s TrainStop) Status() StopStatus {
	switch {
	case s.StationName == nil:
		return StatusPending
	case *s.StationName == StationUnavailable:
		return StatusUnavailable
	default:
		return StatusResolved
	}
}

// IsPending reports whether the stop still awaits enrichment.
func (s TrainStop) IsPending() bool {
	return s.StationName == nil
}

// CreateStatus tells the caller how a create request was satisfied.
type CreateStatus int

const (
	// CreateResolved means the stop was created and enriched in the same request.
	CreateResolved CreateStatus = iota + 1
	// CreateAccepted means the stop was created and enrichment was handed off.
	CreateAccepted
	// CreateReplayed means an identical stop already existed and was returned as-is.
	CreateReplayed
)

// Station is the subset of the station dependency's payload this service uses.
type Station struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
