package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/pnlledger/internal/domain"
)

var fixedNow = time.Unix(1717243200, 0)

var testCreds = Credentials{APIKey: "key-123", APISecret: "s3cret", Passphrase: "phrase"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, testCreds, "usd", 5*time.Second, nil)
	c.now = func() time.Time { return fixedNow }
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestSign(t *testing.T) {
	got := Sign("s3cret", "1717243200", "get", "/api/v3/brokerage/accounts", "")
	again := Sign("s3cret", "1717243200", "GET", "/api/v3/brokerage/accounts", "")
	assert.Equal(t, again, got, "method is upper-cased before signing")
	assert.NotEqual(t, got, Sign("other", "1717243200", "GET", "/api/v3/brokerage/accounts", ""))
	assert.Len(t, got, 44)
}

func TestClient_SignsRequests(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ts := strconv.FormatInt(fixedNow.Unix(), 10)
		assert.Equal(t, "key-123", r.Header.Get("CB-ACCESS-KEY"))
		assert.Equal(t, ts, r.Header.Get("CB-ACCESS-TIMESTAMP"))
		assert.Equal(t, "phrase", r.Header.Get("CB-ACCESS-PASSPHRASE"))
		assert.Equal(t, Sign("s3cret", ts, "GET", r.URL.Path, ""), r.Header.Get("CB-ACCESS-SIGN"))
		writeJSON(t, w, map[string]any{"accounts": []any{}, "has_next": false})
	})

	_, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
}

func TestClient_ListFills_PaginatesAndMaps(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, fillsPath, r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		calls++
		switch r.URL.Query().Get("cursor") {
		case "":
			// Newest first, as the API returns them.
			writeJSON(t, w, map[string]any{
				"fills": []map[string]any{
					{"entry_id": "e3", "trade_id": "t3", "order_id": "o3", "trade_time": "2024-03-03T10:00:00.5Z",
						"price": "52000", "size": "0.1", "commission": "3.12", "product_id": "BTC-USD", "side": "SELL"},
					{"entry_id": "e2", "trade_id": "t2", "order_id": "o2", "trade_time": "2024-03-02T10:00:00Z",
						"price": "3000", "size": "1", "commission": "1.5", "product_id": "ETH-EUR", "side": "BUY"},
				},
				"cursor": "page2",
			})
		case "page2":
			writeJSON(t, w, map[string]any{
				"fills": []map[string]any{
					{"entry_id": "e1", "trade_id": "t1", "order_id": "o1", "trade_time": "2024-03-01T10:00:00Z",
						"price": "50000", "size": "100", "commission": "0.6", "product_id": "BTC-USD", "side": "BUY",
						"size_in_quote": true},
				},
				"cursor": "",
			})
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})

	fills, err := c.ListFills(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, fills, 2, "EUR fill is skipped")

	first := fills[0]
	assert.Equal(t, "e1", first.ID)
	assert.Equal(t, "o1", first.OrderID)
	assert.Equal(t, "BTC", first.Asset)
	assert.Equal(t, domain.SideBuy, first.Side)
	assert.Equal(t, "0.002", first.Quantity.String(), "size in quote converts to base units")
	assert.Equal(t, "0.6", first.Fee.String())

	second := fills[1]
	assert.Equal(t, "e3", second.ID)
	assert.Equal(t, domain.SideSell, second.Side)
	assert.Equal(t, "0.1", second.Quantity.String())
	assert.True(t, second.ExecutedAt.Equal(time.Date(2024, 3, 3, 10, 0, 0, 500_000_000, time.UTC)))
}

func TestClient_ListFills_RepeatedCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"fills": []map[string]any{
				{"entry_id": "e1", "trade_time": "2024-03-01T10:00:00Z", "price": "1", "size": "1",
					"product_id": "BTC-USD", "side": "BUY"},
			},
			"cursor": "same",
		})
	})

	_, err := c.ListFills(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeated")
}

func TestClient_ListFills_MalformedFill(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"fills": []map[string]any{
				{"entry_id": "bad", "trade_time": "2024-03-01T10:00:00Z", "price": "x", "size": "1",
					"product_id": "BTC-USD", "side": "BUY"},
			},
		})
	})

	_, err := c.ListFills(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fill bad")
}

func TestClient_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unauthorized"}`))
	})

	_, err := c.ListAccounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestClient_ListAccounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, accountsPath, r.URL.Path)
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(t, w, map[string]any{
				"accounts": []map[string]any{
					{"uuid": "a1", "name": "BTC Wallet", "currency": "BTC",
						"available_balance": map[string]string{"value": "0.5", "currency": "BTC"}},
				},
				"has_next": true,
				"cursor":   "next",
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"accounts": []map[string]any{
				{"uuid": "a2", "name": "USD Wallet", "currency": "USD",
					"available_balance": map[string]string{"value": "1200.25", "currency": "USD"}},
			},
			"has_next": false,
		})
	})

	accounts, err := c.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "BTC", accounts[0].Currency)
	assert.Equal(t, "0.5", accounts[0].Available.String())
	assert.Equal(t, "USD Wallet", accounts[1].Name)
	assert.Equal(t, "1200.25", accounts[1].Available.String())
}
