package ports

import (
	"context"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// MarketResolver localiza el mercado Up/Down que resuelve una ventana dada.
type MarketResolver interface {
	// ResolveMarket devuelve el mercado (condition id + tokens Up/Down)
	// para la ventana dada.
	ResolveMarket(ctx context.Context, w domain.WindowID) (domain.Market, error)
}

// BookProvider obtiene orderbooks del CLOB usando el endpoint batch.
type BookProvider interface {
	// FetchOrderBooks devuelve los orderbooks para los token_ids dados.
	FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error)
}

// OrderExecutor envía órdenes reales al CLOB de Polymarket.
type OrderExecutor interface {
	// PlaceOrder firma y envía una orden taker BUY al CLOB.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// GetBalance devuelve el balance USDC.e on-chain de la wallet, usado
	// como bankroll para el sizing.
	GetBalance(ctx context.Context) (float64, error)
}
