package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lod61/poly-model-auto-trading/internal/adapters/polymarket"
	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

const gammaMarketFixture = `[{
	"conditionId": "0xcond123",
	"question": "Bitcoin Up or Down?",
	"slug": "bitcoin-up-or-down-15-minute-2026-08-29-1400",
	"endDateIso": "2026-08-29T14:15:00Z",
	"clobTokenIds": "[\"token_up_001\", \"token_down_001\"]",
	"outcomes": "[\"Up\", \"Down\"]",
	"outcomePrices": "[\"0.55\", \"0.45\"]",
	"negRisk": false,
	"active": true,
	"closed": false
}]`

func TestResolveMarket_Success(t *testing.T) {
	windowStart := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	w := domain.WindowIDAt(windowStart)

	var gotSlug string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		gotSlug = r.URL.Query().Get("slug")
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(gammaMarketFixture))
	}))
	defer srv.Close()

	resolver := polymarket.NewMarkets(newTestClient(nil, srv), "", "")
	market, err := resolver.ResolveMarket(context.Background(), w)

	require.NoError(t, err)
	assert.Equal(t, "bitcoin-up-or-down-15-minute-2026-08-29-1400", gotSlug)
	assert.Equal(t, "0xcond123", market.ConditionID)
	assert.Equal(t, w, market.WindowID)
	assert.Equal(t, "token_up_001", market.UpToken().TokenID)
	assert.Equal(t, "token_down_001", market.DownToken().TokenID)
	assert.InDelta(t, 0.55, market.UpToken().Price, 0.001)
	assert.True(t, market.Tradeable(windowStart.Add(5*time.Minute)))
	assert.False(t, market.Tradeable(windowStart.Add(20*time.Minute)))
}

func TestResolveMarket_FixedSlugOverride(t *testing.T) {
	var gotSlug string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotSlug = r.URL.Query().Get("slug")
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(gammaMarketFixture))
	}))
	defer srv.Close()

	resolver := polymarket.NewMarkets(newTestClient(nil, srv), "", "my-test-market")
	_, err := resolver.ResolveMarket(context.Background(), domain.WindowIDAt(time.Now()))

	require.NoError(t, err)
	assert.Equal(t, "my-test-market", gotSlug)
}

func TestResolveMarket_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(`[]`))
	}))
	defer srv.Close()

	resolver := polymarket.NewMarkets(newTestClient(nil, srv), "", "")
	_, err := resolver.ResolveMarket(context.Background(), domain.WindowIDAt(time.Now()))
	assert.Error(t, err)
}

func TestResolveMarket_YesNoOutcomes(t *testing.T) {
	// Algunos mercados binarios llegan con outcomes Yes/No; se normalizan
	// a Up/Down.
	fixture := `[{
		"conditionId": "0xcond456",
		"slug": "whatever",
		"clobTokenIds": "[\"t1\", \"t2\"]",
		"outcomes": "[\"Yes\", \"No\"]",
		"active": true
	}]`

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(fixture))
	}))
	defer srv.Close()

	resolver := polymarket.NewMarkets(newTestClient(nil, srv), "", "")
	market, err := resolver.ResolveMarket(context.Background(), domain.WindowIDAt(time.Now()))

	require.NoError(t, err)
	assert.Equal(t, "t1", market.UpToken().TokenID)
	assert.Equal(t, "t2", market.DownToken().TokenID)
}

func TestResolveMarket_MalformedTokens(t *testing.T) {
	fixture := `[{
		"conditionId": "0xbad",
		"clobTokenIds": "[\"only_one\"]",
		"outcomes": "[\"Up\", \"Down\"]"
	}]`

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.Write([]byte(fixture))
	}))
	defer srv.Close()

	resolver := polymarket.NewMarkets(newTestClient(nil, srv), "", "")
	_, err := resolver.ResolveMarket(context.Background(), domain.WindowIDAt(time.Now()))
	assert.Error(t, err)
}
