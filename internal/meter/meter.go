package meter

import (
	"context"
	"errors"
	"sort"
)

// Balance is a read-only snapshot of one named balance source as reported by
// the billing provider.
type Balance struct {
	SourceID string  // Provider-side source identifier.
	Slug     string  // Human-readable source name, e.g. "subscription".
	Balance  float64 // Spendable pollen reported by the provider.
	Priority int     // Higher priority sources are debited first.
}

// Resolution is the adjusted, priority-ordered view of a user's meters.
type Resolution struct {
	Selected Balance   // The source the next request should debit.
	Adjusted []Balance // All sources, priority-descending, pending spend applied.
}

// ErrInsufficientBalance indicates no meter has spendable balance left after
// pending spend is applied. Distinct from rate-limit denial.
var ErrInsufficientBalance = errors.New("meter: insufficient balance")

// Provider is the read-only view of the external billing service.
type Provider interface {
	Balances(ctx context.Context, userID uint64) ([]Balance, error)
}

// Resolve applies locally-tracked pending spend to the reported balances and
// picks the source to debit.
//
// Pending spend is subtracted from the highest-priority source first even
// though the historical spend may have hit a different source. This is a
// deliberately conservative approximation: it can briefly over-restrict a
// source but never under-restricts, and it self-corrects once the upstream
// balance reflects the synced ledger and pending spend drops back to zero.
func Resolve(balances []Balance, pendingSpend float64) (Resolution, error) {
	adjusted := make([]Balance, len(balances))
	copy(adjusted, balances)
	sort.SliceStable(adjusted, func(i, j int) bool {
		return adjusted[i].Priority > adjusted[j].Priority
	})

	remaining := pendingSpend
	for i := range adjusted {
		if remaining <= 0 {
			break
		}
		if adjusted[i].Balance <= 0 {
			continue
		}
		deduct := adjusted[i].Balance
		if deduct > remaining {
			deduct = remaining
		}
		adjusted[i].Balance -= deduct
		remaining -= deduct
	}

	for _, b := range adjusted {
		if b.Balance > 0 {
			return Resolution{Selected: b, Adjusted: adjusted}, nil
		}
	}
	return Resolution{Adjusted: adjusted}, ErrInsufficientBalance
}

// Available returns the total spendable pollen across the adjusted sources.
func (r Resolution) Available() float64 {
	total := 0.0
	for _, b := range r.Adjusted {
		if b.Balance > 0 {
			total += b.Balance
		}
	}
	return total
}
