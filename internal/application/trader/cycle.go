package trader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lod61/poly-model-auto-trading/internal/candles"
	"github.com/lod61/poly-model-auto-trading/internal/domain"
	"github.com/lod61/poly-model-auto-trading/internal/features"
	"github.com/lod61/poly-model-auto-trading/internal/ports"
)

// CycleConfig parametriza el ciclo de decisión.
type CycleConfig struct {
	Sizer domain.SizerConfig

	// MaxSlippage limita el precio medio aceptado al comprar contra asks.
	MaxSlippage float64

	// MaxStaleness es la edad máxima del último dato de precio para
	// considerar sano el feed.
	MaxStaleness time.Duration
}

// DefaultCycleConfig devuelve los parámetros por defecto.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		Sizer:        domain.DefaultSizerConfig(),
		MaxSlippage:  0.02,
		MaxStaleness: 90 * time.Second,
	}
}

// Trader ejecuta el ciclo completo de decisión para una ventana.
type Trader struct {
	agg       *candles.Aggregator
	builder   *features.Builder
	predictor ports.Predictor
	resolver  ports.MarketResolver
	books     ports.BookProvider
	executor  ports.OrderExecutor
	storage   ports.Storage
	notifier  ports.Notifier
	governor  *Governor
	cfg       CycleConfig
}

// NewTrader cablea las dependencias del ciclo.
func NewTrader(
	agg *candles.Aggregator,
	builder *features.Builder,
	predictor ports.Predictor,
	resolver ports.MarketResolver,
	books ports.BookProvider,
	executor ports.OrderExecutor,
	storage ports.Storage,
	notifier ports.Notifier,
	governor *Governor,
	cfg CycleConfig,
) *Trader {
	return &Trader{
		agg:       agg,
		builder:   builder,
		predictor: predictor,
		resolver:  resolver,
		books:     books,
		executor:  executor,
		storage:   storage,
		notifier:  notifier,
		governor:  governor,
		cfg:       cfg,
	}
}

// Governor expone el governor para consultas de estado.
func (t *Trader) Governor() *Governor {
	return t.governor
}

// RunCycle ejecuta un ciclo de decisión para la ventana dada y devuelve la
// decisión resultante. Nunca entra en pánico: todo camino termina en una
// decisión (trade o skip) que se registra y persiste.
func (t *Trader) RunCycle(ctx context.Context, w domain.WindowID) domain.TradeDecision {
	d := t.decide(ctx, w)
	d.WindowID = w
	d.DecidedAt = time.Now().UTC()

	t.governor.RecordDecision(d)

	if err := t.storage.SaveDecision(ctx, d); err != nil {
		slog.Warn("failed to persist decision", "window", w, "err", err)
	}
	if err := t.storage.SaveRiskState(ctx, t.governor.State()); err != nil {
		slog.Warn("failed to persist risk state", "err", err)
	}
	if err := t.notifier.NotifyDecision(ctx, d); err != nil {
		slog.Warn("notify failed", "err", err)
	}
	return d
}

// decide es la secuencia de gates y pasos del ciclo. Devuelve en cuanto un
// gate veta la acción.
func (t *Trader) decide(ctx context.Context, w domain.WindowID) domain.TradeDecision {
	// 1. Gates previos: dedup, circuito, salud del feed.
	if skip := t.governor.PreCheck(w, t.agg.Healthy(t.cfg.MaxStaleness)); skip != domain.SkipNone {
		return domain.TradeDecision{Skip: skip}
	}

	// 2. Snapshot de velas cerradas y features.
	history := t.agg.Snapshot()
	vec, err := t.builder.Build(history)
	if err != nil {
		slog.Debug("feature build failed", "window", w, "candles", len(history), "err", err)
		return domain.TradeDecision{Skip: domain.SkipInsufficientHistory}
	}

	// 3. Inferencia.
	pred, err := t.predictor.Predict(vec)
	if err != nil {
		slog.Error("inference failed", "window", w, "err", err)
		return domain.TradeDecision{Skip: domain.SkipInference}
	}
	pred.SourceCandles = len(history)

	slog.Info("prediction",
		"window", w.Start().Format("15:04"),
		"prob_up", fmt.Sprintf("%.4f", pred.ProbabilityUp),
		"candles", pred.SourceCandles,
		"label_fallback", pred.UsedLabelFallback,
	)

	// 4. Mercado y precios implícitos.
	market, err := t.resolver.ResolveMarket(ctx, w)
	if err != nil {
		slog.Warn("market resolution failed", "window", w, "err", err)
		t.governor.RecordReadFailure()
		return domain.TradeDecision{Skip: domain.SkipMarketUnavailable}
	}
	t.governor.RecordReadSuccess()
	if !market.Tradeable(time.Now().UTC()) {
		return domain.TradeDecision{Skip: domain.SkipMarketUnavailable}
	}

	upToken, downToken := market.UpToken(), market.DownToken()
	books, err := t.books.FetchOrderBooks(ctx, []string{upToken.TokenID, downToken.TokenID})
	if err != nil {
		slog.Warn("order books fetch failed", "window", w, "err", err)
		t.governor.RecordReadFailure()
		return domain.TradeDecision{Skip: domain.SkipMarketUnavailable}
	}
	t.governor.RecordReadSuccess()

	upBook, downBook := books[upToken.TokenID], books[downToken.TokenID]
	upPrice := impliedPrice(upBook, upToken.Price)
	downPrice := impliedPrice(downBook, downToken.Price)
	if upPrice <= 0 || upPrice >= 1 || downPrice <= 0 || downPrice >= 1 {
		return domain.TradeDecision{Skip: domain.SkipMarketUnavailable}
	}

	// 5. Filtro de volatilidad sobre la última vela cerrada.
	last, ok := t.agg.LastClosed()
	if !ok {
		return domain.TradeDecision{Skip: domain.SkipInsufficientHistory}
	}
	if skip := t.governor.CheckVolatility(last); skip != domain.SkipNone {
		return domain.TradeDecision{Skip: skip}
	}

	// 6. Umbrales de confianza y edge.
	dir, edge, confidence, skip := t.governor.ChooseSide(pred.ProbabilityUp, upPrice, downPrice)
	if skip != domain.SkipNone {
		return domain.TradeDecision{
			Skip:       skip,
			Edge:       edge,
			Confidence: confidence,
		}
	}

	price := upPrice
	book := upBook
	token := upToken
	if dir == domain.DirectionDown {
		price = downPrice
		book = downBook
		token = downToken
	}

	// 7. Sizing fraccional de Kelly sobre el bankroll real.
	bankroll, err := t.executor.GetBalance(ctx)
	if err != nil {
		slog.Warn("balance fetch failed", "err", err)
		t.governor.RecordReadFailure()
		return domain.TradeDecision{Skip: domain.SkipMarketUnavailable}
	}
	t.governor.RecordReadSuccess()

	stake := domain.StakeUSD(confidence, price, bankroll, t.cfg.Sizer)
	if stake <= 0 {
		return domain.TradeDecision{
			Skip:       domain.SkipZeroStake,
			Direction:  dir,
			Edge:       edge,
			Confidence: confidence,
		}
	}

	// 8. Profundidad del book en el lado elegido.
	if !book.CanAbsorb(stake, t.cfg.MaxSlippage) {
		slog.Info("insufficient liquidity",
			"window", w,
			"side", dir,
			"stake", fmt.Sprintf("%.2f", stake),
			"depth", fmt.Sprintf("%.2f", book.AskLiquidityUSDC(t.cfg.MaxSlippage)),
		)
		return domain.TradeDecision{
			Skip:        domain.SkipInsufficientLiquidity,
			Direction:   dir,
			Edge:        edge,
			Confidence:  confidence,
			MarketPrice: price,
			SizeUSD:     stake,
		}
	}

	// 9. Envío de la orden.
	limitPrice := price * (1 + t.cfg.MaxSlippage)
	if limitPrice > 0.99 {
		limitPrice = 0.99
	}
	placed, err := t.executor.PlaceOrder(ctx, domain.PlaceOrderRequest{
		TokenID: token.TokenID,
		Price:   limitPrice,
		Size:    stake,
		NegRisk: market.NegRisk,
	})
	if err != nil {
		slog.Error("order placement failed", "window", w, "side", dir, "err", err)
		t.governor.RecordOrderFailure()
		return domain.TradeDecision{
			Skip:        domain.SkipOrderFailed,
			Direction:   dir,
			Edge:        edge,
			Confidence:  confidence,
			MarketPrice: price,
			SizeUSD:     stake,
		}
	}

	t.governor.RecordOrderSuccess(w)
	slog.Info("order placed",
		"window", w.Start().Format("15:04"),
		"side", dir,
		"stake", fmt.Sprintf("%.2f", stake),
		"price", fmt.Sprintf("%.3f", price),
		"order_id", placed.CLOBOrderID,
		"status", placed.Status,
	)

	return domain.TradeDecision{
		Direction:   dir,
		SizeUSD:     stake,
		Edge:        edge,
		Confidence:  confidence,
		MarketPrice: price,
		OrderID:     placed.CLOBOrderID,
	}
}

// impliedPrice deriva el precio implícito de un lado: midpoint del book si
// existe, si no el último precio que reportó Gamma.
func impliedPrice(book domain.OrderBook, fallback float64) float64 {
	if mid := book.Midpoint(); mid > 0 {
		return mid
	}
	return fallback
}

// PaperExecutor implementa ports.OrderExecutor sin tocar el exchange:
// registra la orden y devuelve un id sintético. El bankroll es fijo.
type PaperExecutor struct {
	Bankroll float64
}

// PlaceOrder simula un fill inmediato al precio pedido.
func (p *PaperExecutor) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	id := "paper-" + uuid.NewString()[:8]
	slog.Info("[PAPER] order",
		"token", req.TokenID,
		"price", fmt.Sprintf("%.3f", req.Price),
		"size", fmt.Sprintf("%.2f", req.Size),
	)
	return domain.PlacedOrder{
		CLOBOrderID: id,
		Status:      "matched",
		TakenAmount: req.Size,
	}, nil
}

// GetBalance devuelve el bankroll simulado.
func (p *PaperExecutor) GetBalance(context.Context) (float64, error) {
	if p.Bankroll <= 0 {
		return 1000, nil
	}
	return p.Bankroll, nil
}
