package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ActorLimiter serializes all bucket operations per identifier, so a check
// and the matching settle can never interleave with another caller's check
// for the same key. Bucket state lives in a BucketStore; a store failure
// denies the request.
type ActorLimiter struct {
	store    BucketStore
	provider SettingsProvider

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewActorLimiter constructs an ActorLimiter over store.
func NewActorLimiter(store BucketStore, provider SettingsProvider) *ActorLimiter {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	return &ActorLimiter{
		store:    store,
		provider: provider,
		locks:    make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex owning identifier, creating it on first use.
// Buckets persist indefinitely, so entries are never removed.
func (l *ActorLimiter) keyLock(identifier string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[identifier]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[identifier] = lock
	}
	return lock
}

// CheckAndLock refills the bucket, then admits the request and takes the
// concurrency lock, or denies it. A live lock denies without a wait hint; an
// empty bucket denies with the time needed to accrue one minimal admit.
func (l *ActorLimiter) CheckAndLock(ctx context.Context, identifier string, now time.Time) (Result, error) {
	if l == nil || l.store == nil {
		return Result{}, fmt.Errorf("%w: limiter not initialized", ErrUnavailable)
	}
	if identifier == "" {
		return Result{}, fmt.Errorf("rate limit: missing identifier")
	}
	cfg := l.provider()
	refillPerMs := cfg.RefillPerMs()

	lock := l.keyLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	state, _, errLoad := l.store.Load(ctx, identifier)
	if errLoad != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, errLoad)
	}
	state = refill(state, now, cfg.Capacity, refillPerMs)

	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		if errSave := l.store.Save(ctx, identifier, state); errSave != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, errSave)
		}
		return Result{Denial: DenialConcurrency, Remaining: state.Tokens, Limit: cfg.Capacity}, nil
	}

	if state.Tokens < minAdmitTokens {
		if errSave := l.store.Save(ctx, identifier, state); errSave != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, errSave)
		}
		return Result{
			Denial:    DenialBudget,
			Remaining: state.Tokens,
			Limit:     cfg.Capacity,
			Wait:      timeToAccumulate(state.Tokens, refillPerMs),
		}, nil
	}

	lockedUntil := now.Add(cfg.MaxRequestDuration)
	state.LockedUntil = &lockedUntil
	if errSave := l.store.Save(ctx, identifier, state); errSave != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, errSave)
	}
	return Result{Allowed: true, Remaining: state.Tokens, Limit: cfg.Capacity}, nil
}

// Settle clears the concurrency lock and deducts the actual request cost.
// Cost may exceed the pre-check balance because cost is only known after the
// request executes; the stored balance clamps at zero and the next check's
// deficit produces a correspondingly longer wait.
func (l *ActorLimiter) Settle(ctx context.Context, identifier string, actualCost float64, now time.Time) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("%w: limiter not initialized", ErrUnavailable)
	}
	if identifier == "" {
		return fmt.Errorf("rate limit: missing identifier")
	}
	cfg := l.provider()

	lock := l.keyLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	state, _, errLoad := l.store.Load(ctx, identifier)
	if errLoad != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, errLoad)
	}
	state = refill(state, now, cfg.Capacity, cfg.RefillPerMs())
	state.LockedUntil = nil
	if actualCost > 0 {
		state.Tokens -= actualCost
		if state.Tokens < 0 {
			state.Tokens = 0
		}
	}
	if errSave := l.store.Save(ctx, identifier, state); errSave != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, errSave)
	}
	return nil
}

var _ Limiter = (*ActorLimiter)(nil)
