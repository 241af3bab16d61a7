// Package resilience bounds calls to a remote dependency with a timeout, a
// retry loop, a circuit breaker, a bulkhead, and a caller-chosen fallback.
//
// Stages are layered outer to inner as
//
//	Fallback -> Retry -> CircuitBreaker -> Timeout -> Bulkhead -> call
//
// so the breaker records every attempt and the fallback sees only the final
// outcome after retries are exhausted.
package resilience

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when a single attempt exceeds its deadline.
	ErrTimeout = errors.New("resilience: timeout")
	// ErrRemoteNotFound marks a definitive "does not exist" answer. Never retried.
	ErrRemoteNotFound = errors.New("resilience: remote not found")
	// ErrRemoteError marks a transient dependency failure (5xx, connection refused).
	ErrRemoteError = errors.New("resilience: remote error")
	// ErrCircuitOpen is returned without calling the dependency while the breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit open")
	// ErrBulkheadFull is returned without calling the dependency when the concurrency cap is reached.
	ErrBulkheadFull = errors.New("resilience: bulkhead full")
)

// Kind is a coarse classification of a call outcome, used in logs and metrics.
type Kind string

const (
	KindOK           Kind = "OK"
	KindTimeout      Kind = "TIMEOUT"
	KindNotFound     Kind = "REMOTE_NOT_FOUND"
	KindRemoteError  Kind = "REMOTE_ERROR"
	KindCircuitOpen  Kind = "CIRCUIT_OPEN"
	KindBulkheadFull Kind = "BULKHEAD_FULL"
	KindCanceled     Kind = "CANCELED"
)

// KindOf classifies err. Unknown non-nil errors are treated as remote errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrRemoteNotFound):
		return KindNotFound
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrBulkheadFull):
		return KindBulkheadFull
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindRemoteError
	}
}

// IsRetryable reports whether the retry stage may try again after err.
// Only timeouts and transient remote errors qualify.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindRemoteError:
		return true
	default:
		return false
	}
}

// outcome is how the circuit breaker accounts for a finished attempt.
type outcome int

const (
	outcomeIgnored outcome = iota
	outcomeSuccess
	outcomeFailure
)

// classify maps an attempt error onto breaker accounting. Short-circuits and
// caller cancellations never reached a verdict from the dependency, so they
// are ignored; a not-found answer proves the dependency is healthy.
func classify(err error) outcome {
	switch KindOf(err) {
	case KindOK, KindNotFound:
		return outcomeSuccess
	case KindCircuitOpen, KindBulkheadFull, KindCanceled:
		return outcomeIgnored
	default:
		return outcomeFailure
	}
}
