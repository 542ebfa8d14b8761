package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/pollengate/pollengate/internal/db"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewStore(conn)
}

func TestAppendAndSum(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if errAppend := store.Append(ctx, 1, 0.5, at); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}
	if errAppend := store.Append(ctx, 1, 0.25, at.Add(time.Minute)); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}
	if errAppend := store.Append(ctx, 2, 9, at); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}

	total, errSum := store.Sum(ctx, 1, time.Time{})
	if errSum != nil {
		t.Fatalf("sum: %v", errSum)
	}
	if total != 0.75 {
		t.Fatalf("expected 0.75, got %f", total)
	}
}

func TestSumHonorsWindow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if errAppend := store.Append(ctx, 1, 1, at); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}
	if errAppend := store.Append(ctx, 1, 2, at.Add(time.Hour)); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}

	total, errSum := store.Sum(ctx, 1, at.Add(30*time.Minute))
	if errSum != nil {
		t.Fatalf("sum: %v", errSum)
	}
	if total != 2 {
		t.Fatalf("expected 2, got %f", total)
	}
}

func TestSumUnknownUserIsZero(t *testing.T) {
	store := openTestStore(t)
	total, errSum := store.Sum(context.Background(), 42, time.Time{})
	if errSum != nil {
		t.Fatalf("sum: %v", errSum)
	}
	if total != 0 {
		t.Fatalf("expected 0, got %f", total)
	}
}

func TestAppendIgnoresNonPositiveAmounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if errAppend := store.Append(ctx, 1, 0, time.Time{}); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}
	if errAppend := store.Append(ctx, 1, -1, time.Time{}); errAppend != nil {
		t.Fatalf("append: %v", errAppend)
	}
	total, errSum := store.Sum(ctx, 1, time.Time{})
	if errSum != nil {
		t.Fatalf("sum: %v", errSum)
	}
	if total != 0 {
		t.Fatalf("expected 0, got %f", total)
	}
}
