package ratelimit

import (
	"context"
	"errors"
	"time"
)

// minAdmitTokens is the smallest token balance that admits a request and the
// unit the wait-time calculation accumulates toward after a budget denial.
const minAdmitTokens = 0.001

// Denial classifies why a check was refused.
type Denial int

const (
	// DenialNone means the request was admitted.
	DenialNone Denial = iota
	// DenialConcurrency means another request holds the identifier's lock.
	DenialConcurrency
	// DenialBudget means the bucket has insufficient tokens.
	DenialBudget
)

// Result describes the outcome of a check-and-lock attempt.
type Result struct {
	Allowed   bool
	Denial    Denial
	Remaining float64       // Bucket tokens after refill.
	Limit     float64       // Configured capacity, for response headers.
	Wait      time.Duration // Time until one admit-worth of tokens accrues; budget denials only.
}

// ErrUnavailable indicates the bucket store could not serve the operation.
// Callers must fail closed: unmetered traffic is worse than a false denial.
var ErrUnavailable = errors.New("rate limit: bucket store unavailable")

// BucketState is the mutable token bucket owned by one identifier.
type BucketState struct {
	Tokens       float64
	LastRefillAt time.Time
	LockedUntil  *time.Time
}

// BucketStore loads and saves durable bucket state for an identifier.
type BucketStore interface {
	Load(ctx context.Context, identifier string) (BucketState, bool, error)
	Save(ctx context.Context, identifier string, state BucketState) error
}

// Limiter admits or denies requests against a per-identifier pollen budget.
type Limiter interface {
	CheckAndLock(ctx context.Context, identifier string, now time.Time) (Result, error)
	Settle(ctx context.Context, identifier string, actualCost float64, now time.Time) error
}
