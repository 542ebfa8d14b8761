package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestReserveWithinBalance(t *testing.T) {
	book := NewBook(DefaultTTL, nil)
	ctx := context.Background()

	id, errReserve := book.Reserve(ctx, 1, 3, 10)
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	if id == "" {
		t.Fatalf("expected reservation id")
	}
	if got := book.Reserved(1); got != 3 {
		t.Fatalf("expected 3 reserved, got %f", got)
	}
}

func TestReserveRejectsPastBalance(t *testing.T) {
	book := NewBook(DefaultTTL, nil)
	ctx := context.Background()

	if _, errReserve := book.Reserve(ctx, 1, 8, 10); errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	_, errReserve := book.Reserve(ctx, 1, 8, 10)
	if !errors.Is(errReserve, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", errReserve)
	}
}

func TestParallelReservesAdmitExactlyOne(t *testing.T) {
	book := NewBook(DefaultTTL, nil)
	ctx := context.Background()

	// User balance 10, two requests each estimating 8: exactly one may win.
	const workers = 2
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errReserve := book.Reserve(ctx, 1, 8, 10)
			results <- errReserve
		}()
	}
	wg.Wait()
	close(results)

	granted, denied := 0, 0
	for errReserve := range results {
		switch {
		case errReserve == nil:
			granted++
		case errors.Is(errReserve, ErrInsufficientBalance):
			denied++
		default:
			t.Fatalf("unexpected error: %v", errReserve)
		}
	}
	if granted != 1 || denied != 1 {
		t.Fatalf("expected one grant and one denial, got %d/%d", granted, denied)
	}
}

func TestReleaseFreesBalance(t *testing.T) {
	book := NewBook(DefaultTTL, nil)
	ctx := context.Background()

	id, errReserve := book.Reserve(ctx, 1, 8, 10)
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	if errRelease := book.Release(ctx, 1, id); errRelease != nil {
		t.Fatalf("release: %v", errRelease)
	}
	if _, errReserve := book.Reserve(ctx, 1, 8, 10); errReserve != nil {
		t.Fatalf("expected reserve after release, got %v", errReserve)
	}
}

func TestReleaseAndConfirmAreIdempotent(t *testing.T) {
	book := NewBook(DefaultTTL, nil)
	ctx := context.Background()

	id, errReserve := book.Reserve(ctx, 1, 2, 10)
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	if errConfirm := book.Confirm(ctx, 1, id, 1.5); errConfirm != nil {
		t.Fatalf("confirm: %v", errConfirm)
	}
	if errConfirm := book.Confirm(ctx, 1, id, 1.5); !errors.Is(errConfirm, ErrExpired) {
		t.Fatalf("expected ErrExpired on double confirm, got %v", errConfirm)
	}
	if errRelease := book.Release(ctx, 1, id); errRelease != nil {
		t.Fatalf("release after confirm: %v", errRelease)
	}
	if got := book.Reserved(1); got != 0 {
		t.Fatalf("expected no reserved balance, got %f", got)
	}
}

func TestExpiredHoldsDoNotCountAgainstBalance(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	book := NewBook(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	if _, errReserve := book.Reserve(ctx, 1, 8, 10); errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}

	now = now.Add(2 * time.Minute)
	if _, errReserve := book.Reserve(ctx, 1, 8, 10); errReserve != nil {
		t.Fatalf("expected reserve after expiry, got %v", errReserve)
	}
}

func TestSweepRemovesExpiredHolds(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	book := NewBook(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	if _, errReserve := book.Reserve(ctx, 1, 1, 10); errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	if _, errReserve := book.Reserve(ctx, 2, 1, 10); errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}

	now = now.Add(2 * time.Minute)
	if removed := book.Sweep(); removed != 2 {
		t.Fatalf("expected 2 swept holds, got %d", removed)
	}
	if removed := book.Sweep(); removed != 0 {
		t.Fatalf("expected idempotent sweep, got %d", removed)
	}
}

func TestReserveValidatesInputs(t *testing.T) {
	book := NewBook(DefaultTTL, nil)
	ctx := context.Background()

	if _, errReserve := book.Reserve(ctx, 0, 1, 10); errReserve == nil {
		t.Fatalf("expected error for missing user")
	}
	if _, errReserve := book.Reserve(ctx, 1, 0, 10); errReserve == nil {
		t.Fatalf("expected error for zero estimate")
	}
}
