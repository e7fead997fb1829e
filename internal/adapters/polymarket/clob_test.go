package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lod61/poly-model-auto-trading/internal/adapters/polymarket"
)

func newTestClient(clobSrv, gammaSrv *httptest.Server) *polymarket.Client {
	clobURL := ""
	gammaURL := ""
	if clobSrv != nil {
		clobURL = clobSrv.URL
	}
	if gammaSrv != nil {
		gammaURL = gammaSrv.URL
	}
	return polymarket.NewClient(clobURL, gammaURL)
}

const orderBooksFixture = `[
	{
		"asset_id": "token_up_001",
		"bids": [
			{"price": "0.68", "size": "120.5"},
			{"price": "0.70", "size": "50.0"}
		],
		"asks": [
			{"price": "0.74", "size": "80.0"},
			{"price": "0.72", "size": "40.0"}
		]
	},
	{
		"asset_id": "token_down_001",
		"bids": [{"price": "0.27", "size": "200.0"}],
		"asks": [{"price": "0.29", "size": "150.0"}]
	}
]`

func TestFetchOrderBooks_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(orderBooksFixture))
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	books, err := client.FetchOrderBooks(context.Background(), []string{"token_up_001", "token_down_001"})

	require.NoError(t, err)
	require.Len(t, books, 2)

	upBook, ok := books["token_up_001"]
	require.True(t, ok)
	assert.Equal(t, "token_up_001", upBook.TokenID)
	assert.InDelta(t, 0.70, upBook.BestBid(), 0.001)
	assert.InDelta(t, 0.72, upBook.BestAsk(), 0.001)
	assert.InDelta(t, 0.71, upBook.Midpoint(), 0.001)

	downBook, ok := books["token_down_001"]
	require.True(t, ok)
	assert.InDelta(t, 0.27, downBook.BestBid(), 0.001)
	assert.InDelta(t, 0.29, downBook.BestAsk(), 0.001)
}

func TestFetchOrderBooks_SortsLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(orderBooksFixture))
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	books, err := client.FetchOrderBooks(context.Background(), []string{"token_up_001"})
	require.NoError(t, err)

	book := books["token_up_001"]

	// Bids: mayor a menor
	require.Len(t, book.Bids, 2)
	assert.Greater(t, book.Bids[0].Price, book.Bids[1].Price)

	// Asks: menor a mayor
	require.Len(t, book.Asks, 2)
	assert.Less(t, book.Asks[0].Price, book.Asks[1].Price)
}

func TestFetchOrderBooks_BatchSplitting(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		// Devuelve array vacío para simplificar
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)

	// 25 token_ids → debe hacer 2 requests (batch de 20 + batch de 5)
	tokenIDs := make([]string, 25)
	for i := range tokenIDs {
		tokenIDs[i] = "token_" + string(rune('a'+i%26))
	}

	_, err := client.FetchOrderBooks(context.Background(), tokenIDs)
	require.NoError(t, err)
	assert.Equal(t, 2, callCount, "debe hacer 2 requests batch para 25 tokens")
}

func TestFetchOrderBooks_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	_, err := client.FetchOrderBooks(context.Background(), []string{"token_up_001"})
	assert.Error(t, err)
}
