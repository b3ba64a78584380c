package costs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesops/salesops/internal/revenue"
)

func TestHTTPLookupParsesDecimalCosts(t *testing.T) {
	var received lookupRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"costs":{"11":"12.50","12":3.2,"13":null,"bogus":"1.00"}}`))
	}))
	defer srv.Close()

	lookup := &HTTPLookup{Endpoint: srv.URL, Token: "secret", Client: srv.Client()}
	got, err := lookup.FetchUnitCosts(context.Background(), []int64{11, 12, 13})
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12, 13}, received.VariantIDs)
	assert.Equal(t, revenue.CostMap{11: 12.5, 12: 3.2}, got)
}

func TestHTTPLookupReportsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	lookup := &HTTPLookup{Endpoint: srv.URL, Client: srv.Client()}
	_, err := lookup.FetchUnitCosts(context.Background(), []int64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestHTTPLookupRequiresEndpoint(t *testing.T) {
	_, err := (&HTTPLookup{}).FetchUnitCosts(context.Background(), []int64{1})
	assert.Error(t, err)
}
