package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

const (
	gammaMarketsPath = "/markets"

	// Los mercados Up/Down de 15 minutos llevan el inicio de la ventana
	// (UTC) embebido en el slug. El layout es configurable porque Polymarket
	// ya lo ha cambiado una vez.
	defaultSlugLayout = "bitcoin-up-or-down-15-minute-2006-01-02-1504"
)

// Markets implementa ports.MarketResolver contra la Gamma API.
type Markets struct {
	client     *Client
	slugLayout string
	fixedSlug  string
}

// NewMarkets crea el resolver. slugLayout es un layout de time.Format que
// produce el slug a partir del inicio de ventana; vacío usa el layout por
// defecto. fixedSlug, si no está vacío, ignora la ventana y resuelve
// siempre ese mercado (útil en pruebas contra un mercado concreto).
func NewMarkets(client *Client, slugLayout, fixedSlug string) *Markets {
	if slugLayout == "" {
		slugLayout = defaultSlugLayout
	}
	return &Markets{client: client, slugLayout: slugLayout, fixedSlug: fixedSlug}
}

// SlugFor devuelve el slug del mercado que resuelve la ventana dada.
func (m *Markets) SlugFor(w domain.WindowID) string {
	if m.fixedSlug != "" {
		return m.fixedSlug
	}
	return w.Start().UTC().Format(m.slugLayout)
}

// ResolveMarket localiza el mercado Up/Down de la ventana dada por slug.
func (m *Markets) ResolveMarket(ctx context.Context, w domain.WindowID) (domain.Market, error) {
	slug := m.SlugFor(w)

	reqURL := fmt.Sprintf("%s%s?slug=%s", m.client.gammaBase, gammaMarketsPath, url.QueryEscape(slug))

	var resp gammaMarketsResponse
	if err := m.client.get(ctx, m.client.gammaLimiter, reqURL, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("gamma.ResolveMarket %s: %w", slug, err)
	}
	if len(resp) == 0 {
		return domain.Market{}, fmt.Errorf("gamma.ResolveMarket: sin mercado para slug %s", slug)
	}

	market, err := mapGammaMarket(resp[0])
	if err != nil {
		return domain.Market{}, fmt.Errorf("gamma.ResolveMarket %s: %w", slug, err)
	}
	if m.fixedSlug == "" {
		market.WindowID = w
		if market.EndDate.IsZero() {
			market.EndDate = w.End()
		}
	}

	slog.Debug("market resolved",
		"slug", slug,
		"condition_id", market.ConditionID,
		"end", market.EndDate.Format(time.RFC3339),
	)
	return market, nil
}
