package meter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPProviderFetchesBalances(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/7/meters" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meters":[{"source_id":"sub-1","slug":"subscription","balance":2.5,"priority":9}]}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, server.Client())
	balances, errGet := provider.Balances(context.Background(), 7)
	if errGet != nil {
		t.Fatalf("balances: %v", errGet)
	}
	if len(balances) != 1 {
		t.Fatalf("expected one meter, got %d", len(balances))
	}
	if balances[0].SourceID != "sub-1" || balances[0].Balance != 2.5 || balances[0].Priority != 9 {
		t.Fatalf("unexpected balance %+v", balances[0])
	}
}

func TestHTTPProviderRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, server.Client())
	if _, errGet := provider.Balances(context.Background(), 7); errGet == nil {
		t.Fatalf("expected error for 502 response")
	}
}
