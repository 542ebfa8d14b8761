package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/pollengate/pollengate/internal/db"
)

func openTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewGormStore(conn)
}

func TestGormStoreRoundTrip(t *testing.T) {
	store := openTestGormStore(t)
	ctx := context.Background()
	lockedUntil := time.Date(2025, 1, 1, 0, 2, 0, 0, time.UTC)
	state := BucketState{
		Tokens:       0.0625,
		LastRefillAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		LockedUntil:  &lockedUntil,
	}

	if errSave := store.Save(ctx, "1:ip:10.0.0.1", state); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	loaded, found, errLoad := store.Load(ctx, "1:ip:10.0.0.1")
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if !found {
		t.Fatalf("expected bucket row")
	}
	if loaded.Tokens != state.Tokens {
		t.Fatalf("expected tokens %f, got %f", state.Tokens, loaded.Tokens)
	}
	if loaded.LockedUntil == nil || !loaded.LockedUntil.Equal(lockedUntil) {
		t.Fatalf("expected locked until %s, got %v", lockedUntil, loaded.LockedUntil)
	}
}

func TestGormStoreUpsertsSameIdentifier(t *testing.T) {
	store := openTestGormStore(t)
	ctx := context.Background()
	base := BucketState{Tokens: 0.1, LastRefillAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	if errSave := store.Save(ctx, "k", base); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	base.Tokens = 0.05
	base.LockedUntil = nil
	if errSave := store.Save(ctx, "k", base); errSave != nil {
		t.Fatalf("resave: %v", errSave)
	}

	loaded, found, errLoad := store.Load(ctx, "k")
	if errLoad != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, errLoad)
	}
	if loaded.Tokens != 0.05 {
		t.Fatalf("expected updated tokens 0.05, got %f", loaded.Tokens)
	}
	if loaded.LockedUntil != nil {
		t.Fatalf("expected cleared lock, got %v", loaded.LockedUntil)
	}
}

func TestGormStoreMissingIdentifier(t *testing.T) {
	store := openTestGormStore(t)
	_, found, errLoad := store.Load(context.Background(), "absent")
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if found {
		t.Fatalf("expected no row")
	}
}
