// Package reservation holds temporary spend reservations against a user's
// resolved balance. Each user's holds are mutated under a single per-user
// owner, so parallel requests cannot both reserve the same balance off a
// stale snapshot.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultTTL bounds a hold's lifetime when the caller never confirms or
// releases it, so a crashed request cannot lock funds forever.
const DefaultTTL = 5 * time.Minute

// ErrInsufficientBalance indicates the hold would push reserved spend past
// the available balance. Not retryable until the balance changes.
var ErrInsufficientBalance = errors.New("reservation: insufficient balance")

// ErrExpired indicates a confirm arrived for a hold that already expired or
// was removed. Benign: the effect is the same as a completed release.
var ErrExpired = errors.New("reservation: hold expired or already removed")

// Hold is one outstanding reservation.
type Hold struct {
	ID        string
	Amount    float64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userHolds struct {
	mu    sync.Mutex
	holds map[string]Hold
}

// Book tracks spend holds for all users.
type Book struct {
	ttl   time.Duration
	nowFn func() time.Time

	mu    sync.Mutex
	users map[uint64]*userHolds
}

// NewBook constructs a Book. A non-positive ttl uses DefaultTTL.
func NewBook(ttl time.Duration, nowFn func() time.Time) *Book {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Book{
		ttl:   ttl,
		nowFn: nowFn,
		users: make(map[uint64]*userHolds),
	}
}

func (b *Book) user(userID uint64) *userHolds {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[userID]
	if !ok {
		u = &userHolds{holds: make(map[string]Hold)}
		b.users[userID] = u
	}
	return u
}

// Reserve places a hold for estimatedCost against availableBalance. The sum
// of live holds plus the new estimate must fit within the balance supplied
// by the caller; the balance is an input rather than a lookup so the book
// stays free of external I/O.
func (b *Book) Reserve(_ context.Context, userID uint64, estimatedCost, availableBalance float64) (string, error) {
	if b == nil {
		return "", fmt.Errorf("reservation: nil book")
	}
	if userID == 0 {
		return "", fmt.Errorf("reservation: missing user id")
	}
	if estimatedCost <= 0 {
		return "", fmt.Errorf("reservation: non-positive estimate %f", estimatedCost)
	}
	now := b.nowFn()

	u := b.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	reserved := u.purgeExpiredLocked(now)
	if availableBalance-reserved < estimatedCost {
		return "", fmt.Errorf("%w: reserved %.4f of %.4f, need %.4f",
			ErrInsufficientBalance, reserved, availableBalance, estimatedCost)
	}

	hold := Hold{
		ID:        uuid.NewString(),
		Amount:    estimatedCost,
		CreatedAt: now,
		ExpiresAt: now.Add(b.ttl),
	}
	u.holds[hold.ID] = hold
	return hold.ID, nil
}

// Release removes a hold. Unknown, already-confirmed, and expired IDs are
// no-ops, so compensating callers can always release safely.
func (b *Book) Release(_ context.Context, userID uint64, id string) error {
	if b == nil || userID == 0 || id == "" {
		return nil
	}
	u := b.user(userID)
	u.mu.Lock()
	delete(u.holds, id)
	u.mu.Unlock()
	return nil
}

// Confirm removes the hold after the request executed. The delta between the
// actual cost and the original estimate is not re-validated here; the caller
// reports the actual cost to the pending-spend ledger.
func (b *Book) Confirm(_ context.Context, userID uint64, id string, actualCost float64) error {
	if b == nil || userID == 0 || id == "" {
		return nil
	}
	u := b.user(userID)
	u.mu.Lock()
	hold, ok := u.holds[id]
	delete(u.holds, id)
	u.mu.Unlock()
	if !ok {
		return ErrExpired
	}
	if actualCost > hold.Amount {
		log.WithFields(log.Fields{
			"user_id":   userID,
			"estimated": hold.Amount,
			"actual":    actualCost,
		}).Debug("reservation: actual cost exceeded estimate")
	}
	return nil
}

// Reserved returns the sum of live holds for userID.
func (b *Book) Reserved(userID uint64) float64 {
	if b == nil || userID == 0 {
		return 0
	}
	now := b.nowFn()
	u := b.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.purgeExpiredLocked(now)
}

// Sweep drops expired holds across all users and returns how many were
// removed. Expiry is also applied lazily on every Reserve; the sweep keeps
// idle users from retaining dead entries.
func (b *Book) Sweep() int {
	if b == nil {
		return 0
	}
	now := b.nowFn()

	b.mu.Lock()
	users := make([]*userHolds, 0, len(b.users))
	for _, u := range b.users {
		users = append(users, u)
	}
	b.mu.Unlock()

	removed := 0
	for _, u := range users {
		u.mu.Lock()
		for id, hold := range u.holds {
			if !hold.ExpiresAt.After(now) {
				delete(u.holds, id)
				removed++
			}
		}
		u.mu.Unlock()
	}
	if removed > 0 {
		log.WithField("count", removed).Debug("reservation: swept expired holds")
	}
	return removed
}

// purgeExpiredLocked drops expired holds and returns the live reserved sum.
// Must be called with the user's mutex held.
func (u *userHolds) purgeExpiredLocked(now time.Time) float64 {
	total := 0.0
	for id, hold := range u.holds {
		if !hold.ExpiresAt.After(now) {
			delete(u.holds, id)
			continue
		}
		total += hold.Amount
	}
	return total
}
