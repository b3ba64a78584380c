package costs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/salesops/salesops/internal/revenue"
)

const maxResponseBytes = 4 << 20

// NoopLookup never resolves anything; used when no pricing service is configured.
type NoopLookup struct{}

// FetchUnitCosts implements Lookup.
func (NoopLookup) FetchUnitCosts(context.Context, []int64) (revenue.CostMap, error) {
	return nil, nil
}

// HTTPLookup calls the pricing service over JSON.
type HTTPLookup struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

type lookupRequest struct {
	VariantIDs []int64 `json:"variant_ids"`
}

type lookupResponse struct {
	Costs map[string]*decimal.Decimal `json:"costs"`
}

// FetchUnitCosts implements Lookup. Unknown variants are simply absent from the
// response; costs are decimal strings or numbers keyed by variant id.
func (l *HTTPLookup) FetchUnitCosts(ctx context.Context, variantIDs []int64) (revenue.CostMap, error) {
	if l == nil || l.Endpoint == "" {
		return nil, fmt.Errorf("costs: pricing endpoint not configured")
	}
	body, err := json.Marshal(lookupRequest{VariantIDs: variantIDs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("costs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if l.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.Token)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("costs: call pricing service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("costs: pricing service status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var payload lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("costs: decode pricing response: %w", err)
	}
	out := make(revenue.CostMap, len(payload.Costs))
	for key, value := range payload.Costs {
		if value == nil {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		out[id] = value.InexactFloat64()
	}
	return out, nil
}
