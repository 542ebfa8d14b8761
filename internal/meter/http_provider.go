package meter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider queries the external billing service for meter balances. The
// billing service is read-only from this core's perspective; spend flows
// back to it asynchronously through the ledger sync, not through here.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider constructs an HTTPProvider for the billing service at
// baseURL.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

// meterBalanceDTO mirrors the billing service's meter payload.
type meterBalanceDTO struct {
	SourceID string  `json:"source_id"`
	Slug     string  `json:"slug"`
	Balance  float64 `json:"balance"`
	Priority int     `json:"priority"`
}

// Balances fetches the named balance sources for userID.
func (p *HTTPProvider) Balances(ctx context.Context, userID uint64) ([]Balance, error) {
	if p == nil || p.baseURL == "" {
		return nil, fmt.Errorf("meter provider: not configured")
	}
	url := fmt.Sprintf("%s/v1/users/%d/meters", p.baseURL, userID)
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if errReq != nil {
		return nil, fmt.Errorf("meter provider: build request: %w", errReq)
	}

	resp, errDo := p.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("meter provider: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meter provider: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Meters []meterBalanceDTO `json:"meters"`
	}
	if errDecode := json.NewDecoder(resp.Body).Decode(&payload); errDecode != nil {
		return nil, fmt.Errorf("meter provider: decode: %w", errDecode)
	}

	balances := make([]Balance, 0, len(payload.Meters))
	for _, dto := range payload.Meters {
		balances = append(balances, Balance{
			SourceID: strings.TrimSpace(dto.SourceID),
			Slug:     strings.TrimSpace(dto.Slug),
			Balance:  dto.Balance,
			Priority: dto.Priority,
		})
	}
	return balances, nil
}

var _ Provider = (*HTTPProvider)(nil)
