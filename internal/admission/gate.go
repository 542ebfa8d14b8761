// Package admission decides, per request, whether the caller may proceed
// right now: meter resolution, spend reservation, and the pollen rate limit
// are checked in order before the paid work runs, and compensated after.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pollengate/pollengate/internal/meter"
	"github.com/pollengate/pollengate/internal/ratelimit"
	"github.com/pollengate/pollengate/internal/reservation"
	"github.com/pollengate/pollengate/internal/usage"
	log "github.com/sirupsen/logrus"
)

// defaultPendingWindow bounds how far back the pending-spend sum looks. It
// comfortably covers the upstream balance sync lag.
const defaultPendingWindow = 24 * time.Hour

// PendingLedger is the durable record of billed-but-unsynced spend.
type PendingLedger interface {
	Append(ctx context.Context, userID uint64, amount float64, at time.Time) error
	Sum(ctx context.Context, userID uint64, since time.Time) (float64, error)
}

// RateLimiter admits requests against the per-identifier pollen bucket.
type RateLimiter interface {
	CheckAndLock(ctx context.Context, identifier string) (ratelimit.Result, error)
	Settle(ctx context.Context, identifier string, actualCost float64) error
}

// BalanceInvalidator is implemented by balance providers that cache
// snapshots; the gate drops a user's snapshot after appending spend so the
// next admission sees the debit.
type BalanceInvalidator interface {
	Invalidate(userID uint64)
}

// UsageRecorder receives an audit record for every settled generation.
// Recording is fire-and-forget; implementations must not block settlement.
type UsageRecorder interface {
	Handle(ctx context.Context, rec usage.Record)
}

// Request describes one inbound request to admit.
type Request struct {
	UserID        uint64
	APIKeyID      uint64
	ClientIP      string
	EstimatedCost float64 // Worst-case cost in pollen.
}

// Ticket is the proof of admission the pipeline carries through the guarded
// work and hands back to Complete.
type Ticket struct {
	UserID        uint64
	APIKeyID      uint64
	Identifier    string
	ReservationID string
	EstimatedCost float64
	Limit         float64
	Remaining     float64
	Meter         meter.Balance // The source selected for the debit.
}

// Gate wires the meter resolver, reservation book, rate limiter, and
// pending-spend ledger into the two synchronous calls the request pipeline
// makes around the protected work.
type Gate struct {
	meters        meter.Provider
	holds         *reservation.Book
	limiter       RateLimiter
	ledger        PendingLedger
	pendingWindow time.Duration
	nowFn         func() time.Time
	usage         UsageRecorder
}

// NewGate constructs a Gate. nowFn defaults to time.Now and pendingWindow to
// 24 hours when non-positive.
func NewGate(meters meter.Provider, holds *reservation.Book, limiter RateLimiter, ledger PendingLedger, pendingWindow time.Duration, nowFn func() time.Time) *Gate {
	if pendingWindow <= 0 {
		pendingWindow = defaultPendingWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Gate{
		meters:        meters,
		holds:         holds,
		limiter:       limiter,
		ledger:        ledger,
		pendingWindow: pendingWindow,
		nowFn:         nowFn,
	}
}

// SetUsageRecorder installs the audit recorder for settled generations.
// A nil recorder disables recording.
func (g *Gate) SetUsageRecorder(recorder UsageRecorder) {
	if g == nil {
		return
	}
	g.usage = recorder
}

// Admit runs the pre-work sequence: resolve balances, reserve the estimated
// cost, then take the rate-limit lock. Any failure after the hold is granted
// releases it before returning, so a denied request never leaks funds.
func (g *Gate) Admit(ctx context.Context, req Request) (*Ticket, error) {
	if g == nil {
		return nil, errors.New("admission: nil gate")
	}
	if req.UserID == 0 {
		return nil, fmt.Errorf("admission: missing user id")
	}
	identifier := ratelimit.BuildKey(req.APIKeyID, req.ClientIP)
	if identifier == "" {
		return nil, fmt.Errorf("admission: missing api key or client ip")
	}
	now := g.nowFn()

	pending, errSum := g.ledger.Sum(ctx, req.UserID, now.Add(-g.pendingWindow))
	if errSum != nil {
		admissionDecisions.WithLabelValues(outcomeUnavailable).Inc()
		return nil, &DenialError{Reason: ErrActorUnavailable}
	}

	balances, errBalances := g.meters.Balances(ctx, req.UserID)
	if errBalances != nil {
		admissionDecisions.WithLabelValues(outcomeUnavailable).Inc()
		return nil, &DenialError{Reason: ErrActorUnavailable}
	}

	resolution, errResolve := meter.Resolve(balances, pending)
	if errResolve != nil {
		admissionDecisions.WithLabelValues(outcomeBalance).Inc()
		return nil, &DenialError{Reason: ErrInsufficientBalance}
	}

	reservationID, errReserve := g.holds.Reserve(ctx, req.UserID, req.EstimatedCost, resolution.Available())
	if errReserve != nil {
		if errors.Is(errReserve, reservation.ErrInsufficientBalance) {
			admissionDecisions.WithLabelValues(outcomeBalance).Inc()
			return nil, &DenialError{Reason: ErrInsufficientBalance}
		}
		return nil, fmt.Errorf("admission: reserve: %w", errReserve)
	}

	result, errCheck := g.limiter.CheckAndLock(ctx, identifier)
	if errCheck != nil {
		g.releaseHold(ctx, req.UserID, reservationID)
		admissionDecisions.WithLabelValues(outcomeUnavailable).Inc()
		return nil, &DenialError{Reason: ErrActorUnavailable}
	}
	if !result.Allowed {
		g.releaseHold(ctx, req.UserID, reservationID)
		denial := &DenialError{
			Limit:     result.Limit,
			Remaining: result.Remaining,
			Wait:      result.Wait,
		}
		switch result.Denial {
		case ratelimit.DenialConcurrency:
			denial.Reason = ErrConcurrentRequestInProgress
			admissionDecisions.WithLabelValues(outcomeConcurrency).Inc()
		default:
			denial.Reason = ErrBudgetExhausted
			admissionDecisions.WithLabelValues(outcomeBudget).Inc()
		}
		return nil, denial
	}

	admissionDecisions.WithLabelValues(outcomeAdmitted).Inc()
	return &Ticket{
		UserID:        req.UserID,
		APIKeyID:      req.APIKeyID,
		Identifier:    identifier,
		ReservationID: reservationID,
		EstimatedCost: req.EstimatedCost,
		Limit:         result.Limit,
		Remaining:     result.Remaining,
		Meter:         resolution.Selected,
	}, nil
}

// Complete runs the post-work sequence. A settle failure is the only error
// that propagates, and only after the hold has been confirmed or released;
// the hold compensation and ledger append are retried once and otherwise
// logged.
func (g *Gate) Complete(ctx context.Context, ticket *Ticket, actualCost float64, failed bool) error {
	if g == nil || ticket == nil {
		return errors.New("admission: nil gate or ticket")
	}
	// Completion must outlive the request: a client disconnect cancels the
	// request context, and a canceled settle would leave the lock held until
	// the max request duration and the hold until its TTL.
	ctx = context.WithoutCancel(ctx)

	settleCost := actualCost
	if failed {
		settleCost = 0
	}
	errSettle := g.limiter.Settle(ctx, ticket.Identifier, settleCost)
	if errSettle != nil {
		cleanupRetries.Inc()
		errSettle = g.limiter.Settle(ctx, ticket.Identifier, settleCost)
	}
	if errSettle != nil {
		settleFailures.Inc()
		log.WithError(errSettle).WithField("identifier", ticket.Identifier).
			Error("admission: settle failed, lock will expire on its own")
	}

	if failed {
		g.releaseHold(ctx, ticket.UserID, ticket.ReservationID)
		g.recordUsage(ctx, ticket, actualCost, true)
		return settleError(errSettle)
	}

	if errConfirm := g.holds.Confirm(ctx, ticket.UserID, ticket.ReservationID, actualCost); errConfirm != nil {
		if errors.Is(errConfirm, reservation.ErrExpired) {
			// Benign: the hold timed out mid-request and was already dropped.
			log.WithField("reservation_id", ticket.ReservationID).
				Debug("admission: confirming expired reservation")
		} else {
			log.WithError(errConfirm).Warn("admission: confirm failed")
		}
	}

	if actualCost > 0 {
		errAppend := g.ledger.Append(ctx, ticket.UserID, actualCost, g.nowFn())
		if errAppend != nil {
			cleanupRetries.Inc()
			errAppend = g.ledger.Append(ctx, ticket.UserID, actualCost, g.nowFn())
		}
		if errAppend != nil {
			log.WithError(errAppend).WithField("user_id", ticket.UserID).
				Error("admission: pending spend append failed")
		} else if invalidator, ok := g.meters.(BalanceInvalidator); ok {
			invalidator.Invalidate(ticket.UserID)
		}
	}

	g.recordUsage(ctx, ticket, actualCost, false)
	return settleError(errSettle)
}

func settleError(errSettle error) error {
	if errSettle == nil {
		return nil
	}
	return fmt.Errorf("admission: settle: %w", errSettle)
}

// recordUsage hands the settled generation to the audit recorder.
func (g *Gate) recordUsage(ctx context.Context, ticket *Ticket, actualCost float64, failed bool) {
	if g.usage == nil {
		return
	}
	g.usage.Handle(ctx, usage.Record{
		UserID:        ticket.UserID,
		APIKeyID:      ticket.APIKeyID,
		Identifier:    ticket.Identifier,
		MeterSourceID: ticket.Meter.SourceID,
		EstimatedCost: ticket.EstimatedCost,
		ActualCost:    actualCost,
		Failed:        failed,
		CompletedAt:   g.nowFn(),
	})
}

// releaseHold releases a reservation with one retry; failures only log, the
// hold's own expiry is the last line of defense.
func (g *Gate) releaseHold(ctx context.Context, userID uint64, id string) {
	errRelease := g.holds.Release(ctx, userID, id)
	if errRelease != nil {
		cleanupRetries.Inc()
		errRelease = g.holds.Release(ctx, userID, id)
	}
	if errRelease != nil {
		log.WithError(errRelease).WithField("reservation_id", id).
			Warn("admission: release failed, hold will expire")
	}
}
