// Package simerr defines the error-kind taxonomy used by the lifecycle
// controller and the session API so callers can distinguish a state
// violation from a concurrency violation from a not-found error using
// errors.Is, instead of matching on error strings.
package simerr

import "errors"

var (
	// ErrNotFound is returned when a session identifier has no matching session.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidState is returned when an operation is attempted from a state
	// that does not permit it (start when running, pause when paused, ...).
	ErrInvalidState = errors.New("invalid state transition")

	// ErrConcurrencyViolation is returned when a pause or resume is attempted
	// while another lifecycle operation on the session is still in flight.
	ErrConcurrencyViolation = errors.New("operation in progress")

	// ErrSingleSession names a violation of the single-active-session policy.
	// CreateSession does not return it: while a session is active it returns
	// that session instead.
	ErrSingleSession = errors.New("another session is already active")

	// ErrUnknownMode is returned by setThroughputMode for an unrecognized mode.
	ErrUnknownMode = errors.New("unknown throughput mode")

	// ErrWrongMode is returned by triggerLiquidationCascade outside STRESS/HFT.
	ErrWrongMode = errors.New("liquidation cascade requires STRESS or HFT mode")
)
