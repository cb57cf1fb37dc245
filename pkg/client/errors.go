package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrOriginUnavailable is returned when the origin could not be reached
	// or answered with a non-success status.
	ErrOriginUnavailable = errors.New("origin unavailable")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of origin failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses. Not retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses. Retried.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors. Retried.
	ErrorClassNetwork ErrorClass = "network"
)

// OriginError carries the status and classification of a failed origin fetch.
type OriginError struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *OriginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("origin %s error for %s: %v", e.Class, e.URL, e.Err)
	}
	return fmt.Sprintf("origin %s error for %s: status %d", e.Class, e.URL, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *OriginError) Unwrap() error {
	return e.Err
}

// Is reports every OriginError as ErrOriginUnavailable so callers can match
// the taxonomy without inspecting the concrete type.
func (e *OriginError) Is(target error) bool {
	return target == ErrOriginUnavailable
}

// shouldRetry determines if an error class should be retried.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		// 4xx responses will not change on retry.
		return false
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
