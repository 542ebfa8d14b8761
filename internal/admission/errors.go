package admission

import (
	"errors"
	"fmt"
	"time"
)

// Admission denial taxonomy. Each maps to a distinct HTTP outcome; none may
// be silently swallowed, because silent admission on error is a
// billing-integrity risk.
var (
	// ErrBudgetExhausted means the bucket lacks tokens; retryable after Wait.
	ErrBudgetExhausted = errors.New("admission: pollen budget exhausted")
	// ErrConcurrentRequestInProgress means the identifier's lock is held;
	// retryable immediately with brief backoff.
	ErrConcurrentRequestInProgress = errors.New("admission: another request in progress")
	// ErrInsufficientBalance means no meter can cover the estimated cost;
	// not retryable until the balance changes.
	ErrInsufficientBalance = errors.New("admission: insufficient balance")
	// ErrActorUnavailable means durable storage or transport failed; the
	// request is denied rather than risking double-spend.
	ErrActorUnavailable = errors.New("admission: admission state unavailable")
)

// DenialError carries the budget figures a denial response needs.
type DenialError struct {
	Reason    error         // One of the taxonomy sentinels.
	Limit     float64       // Configured bucket capacity.
	Remaining float64       // Bucket tokens at denial time.
	Wait      time.Duration // Suggested retry delay; budget denials only.
}

// Error implements the error interface.
func (e *DenialError) Error() string {
	if e == nil || e.Reason == nil {
		return "admission: denied"
	}
	if e.Wait > 0 {
		return fmt.Sprintf("%s (retry in %s)", e.Reason.Error(), e.Wait)
	}
	return e.Reason.Error()
}

// Unwrap exposes the sentinel for errors.Is.
func (e *DenialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Reason
}
