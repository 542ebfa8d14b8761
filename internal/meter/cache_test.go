package meter

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	calls    int
	balances []Balance
	err      error
}

func (p *stubProvider) Balances(_ context.Context, _ uint64) ([]Balance, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.balances, nil
}

func TestCacheServesFreshEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := &stubProvider{balances: []Balance{{SourceID: "sub", Balance: 5}}}
	cache := NewCache(provider, time.Minute, 10, func() time.Time { return now })

	if _, errGet := cache.Balances(context.Background(), 1); errGet != nil {
		t.Fatalf("expected balances, got %v", errGet)
	}
	if _, errGet := cache.Balances(context.Background(), 1); errGet != nil {
		t.Fatalf("expected balances, got %v", errGet)
	}
	if provider.calls != 1 {
		t.Fatalf("expected a single provider call, got %d", provider.calls)
	}
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := &stubProvider{balances: []Balance{{SourceID: "sub", Balance: 5}}}
	cache := NewCache(provider, time.Minute, 10, func() time.Time { return now })

	if _, errGet := cache.Balances(context.Background(), 1); errGet != nil {
		t.Fatalf("expected balances, got %v", errGet)
	}
	now = now.Add(2 * time.Minute)
	if _, errGet := cache.Balances(context.Background(), 1); errGet != nil {
		t.Fatalf("expected balances, got %v", errGet)
	}
	if provider.calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d calls", provider.calls)
	}
}

func TestCacheInvalidateForcesRefetch(t *testing.T) {
	provider := &stubProvider{balances: []Balance{{SourceID: "sub", Balance: 5}}}
	cache := NewCache(provider, time.Minute, 10, nil)

	if _, errGet := cache.Balances(context.Background(), 1); errGet != nil {
		t.Fatalf("expected balances, got %v", errGet)
	}
	cache.Invalidate(1)
	if _, errGet := cache.Balances(context.Background(), 1); errGet != nil {
		t.Fatalf("expected balances, got %v", errGet)
	}
	if provider.calls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", provider.calls)
	}
}

func TestCacheBoundsEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := &stubProvider{balances: []Balance{{SourceID: "sub", Balance: 5}}}
	cache := NewCache(provider, time.Hour, 2, func() time.Time { return now })

	for userID := uint64(1); userID <= 5; userID++ {
		now = now.Add(time.Second)
		if _, errGet := cache.Balances(context.Background(), userID); errGet != nil {
			t.Fatalf("expected balances, got %v", errGet)
		}
	}
	cache.mu.Lock()
	size := len(cache.entries)
	cache.mu.Unlock()
	if size != 2 {
		t.Fatalf("expected 2 cached entries, got %d", size)
	}
}

func TestCachePropagatesProviderError(t *testing.T) {
	wantErr := errors.New("billing provider down")
	provider := &stubProvider{err: wantErr}
	cache := NewCache(provider, time.Minute, 10, nil)

	if _, errGet := cache.Balances(context.Background(), 1); !errors.Is(errGet, wantErr) {
		t.Fatalf("expected provider error, got %v", errGet)
	}
}
