package trader_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lod61/poly-model-auto-trading/internal/application/trader"
	"github.com/lod61/poly-model-auto-trading/internal/candles"
	"github.com/lod61/poly-model-auto-trading/internal/domain"
	"github.com/lod61/poly-model-auto-trading/internal/features"
)

// --- fakes ---

type fakePredictor struct {
	probUp float64
	err    error
	calls  int
}

func (f *fakePredictor) Predict(vec []float64) (domain.Prediction, error) {
	f.calls++
	if f.err != nil {
		return domain.Prediction{}, f.err
	}
	return domain.Prediction{ProbabilityUp: f.probUp, GeneratedAt: time.Now().UTC()}, nil
}

func (f *fakePredictor) FeatureCount() int { return 32 }

type fakeResolver struct {
	market domain.Market
	err    error
}

func (f *fakeResolver) ResolveMarket(_ context.Context, w domain.WindowID) (domain.Market, error) {
	if f.err != nil {
		return domain.Market{}, f.err
	}
	m := f.market
	m.WindowID = w
	return m, nil
}

type fakeBooks struct {
	books map[string]domain.OrderBook
	err   error
}

func (f *fakeBooks) FetchOrderBooks(_ context.Context, _ []string) (map[string]domain.OrderBook, error) {
	return f.books, f.err
}

type fakeExecutor struct {
	bankroll float64
	placeErr error
	placed   []domain.PlaceOrderRequest
}

func (f *fakeExecutor) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if f.placeErr != nil {
		return domain.PlacedOrder{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	return domain.PlacedOrder{CLOBOrderID: "order-xyz", Status: "matched", TakenAmount: req.Size}, nil
}

func (f *fakeExecutor) GetBalance(context.Context) (float64, error) { return f.bankroll, nil }

type memStorage struct {
	decisions []domain.TradeDecision
	risk      domain.RiskState
}

func (m *memStorage) SaveDecision(_ context.Context, d domain.TradeDecision) error {
	m.decisions = append(m.decisions, d)
	return nil
}
func (m *memStorage) SaveRiskState(_ context.Context, rs domain.RiskState) error {
	m.risk = rs
	return nil
}
func (m *memStorage) LoadRiskState(context.Context) (domain.RiskState, error) {
	return m.risk, nil
}
func (m *memStorage) GetDecisions(context.Context, time.Time, time.Time) ([]domain.TradeDecision, error) {
	return m.decisions, nil
}
func (m *memStorage) Close() error { return nil }

type nullNotifier struct{}

func (nullNotifier) NotifyDecision(context.Context, domain.TradeDecision) error { return nil }
func (nullNotifier) NotifyStats(context.Context, domain.RiskState) error        { return nil }

// --- helpers ---

// seededAggregator devuelve un agregador sano con n velas cerradas que se
// mueven lo suficiente para pasar el filtro de volatilidad.
func seededAggregator(t *testing.T, n int) *candles.Aggregator {
	t.Helper()
	agg := candles.New(96)

	start := domain.WindowStart(time.Now().UTC()).Add(-time.Duration(n) * domain.Period)
	cs := make([]domain.Candle, 0, n)
	for i := 0; i < n; i++ {
		base := 100_000 + float64(i)*50
		cs = append(cs, domain.Candle{
			WindowStart: start.Add(time.Duration(i) * domain.Period),
			Open:        base,
			High:        base + 200,
			Low:         base - 200,
			Close:       base + 40,
			Volume:      10,
		})
	}
	agg.Seed(cs)

	// Un tick reciente para que Healthy sea true.
	agg.OnTick(domain.Tick{
		Time:   time.Now().UTC(),
		Open:   100_900,
		High:   100_950,
		Low:    100_850,
		Close:  100_900,
		Volume: 1,
	})
	return agg
}

func testMarket() domain.Market {
	return domain.Market{
		ConditionID: "0xcond",
		Active:      true,
		EndDate:     time.Now().UTC().Add(20 * time.Minute),
		Tokens: [2]domain.Token{
			{TokenID: "tok-up", Outcome: "Up", Price: 0.50},
			{TokenID: "tok-down", Outcome: "Down", Price: 0.50},
		},
	}
}

func deepBook(tokenID string, bid, ask float64) domain.OrderBook {
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    []domain.BookEntry{{Price: bid, Size: 10_000}},
		Asks:    []domain.BookEntry{{Price: ask, Size: 10_000}},
	}
}

func newTestTrader(t *testing.T, pred *fakePredictor, res *fakeResolver, books *fakeBooks, exec *fakeExecutor, store *memStorage) *trader.Trader {
	t.Helper()
	builder := features.NewBuilder(features.Manifest{Count: 32})
	gov := trader.NewGovernor(trader.DefaultGovernorConfig(), domain.RiskState{})
	return trader.NewTrader(
		seededAggregator(t, 24),
		builder, pred, res, books, exec, store, nullNotifier{}, gov,
		trader.DefaultCycleConfig(),
	)
}

// --- tests ---

func TestRunCycle_PlacesOrderOnStrongSignal(t *testing.T) {
	pred := &fakePredictor{probUp: 0.60}
	res := &fakeResolver{market: testMarket()}
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"tok-up":   deepBook("tok-up", 0.49, 0.51),
		"tok-down": deepBook("tok-down", 0.49, 0.51),
	}}
	exec := &fakeExecutor{bankroll: 1000}
	store := &memStorage{}

	tr := newTestTrader(t, pred, res, books, exec, store)
	d := tr.RunCycle(context.Background(), 100)

	require.True(t, d.Traded(), "skip=%s", d.Skip)
	assert.Equal(t, domain.DirectionUp, d.Direction)
	// Kelly: p=0.60 precio=0.50 → f=0.20, quarter-Kelly=0.05, bankroll 1000 → $50
	assert.InDelta(t, 50.0, d.SizeUSD, 0.01)
	assert.InDelta(t, 0.10, d.Edge, 1e-9)
	assert.Equal(t, "order-xyz", d.OrderID)

	require.Len(t, exec.placed, 1)
	assert.Equal(t, "tok-up", exec.placed[0].TokenID)

	// Persistencia y dedup.
	require.Len(t, store.decisions, 1)
	assert.Equal(t, domain.WindowID(100), tr.Governor().State().LastTradedWindowID)
}

func TestRunCycle_DuplicateWindowSkips(t *testing.T) {
	pred := &fakePredictor{probUp: 0.60}
	res := &fakeResolver{market: testMarket()}
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"tok-up":   deepBook("tok-up", 0.49, 0.51),
		"tok-down": deepBook("tok-down", 0.49, 0.51),
	}}
	exec := &fakeExecutor{bankroll: 1000}
	tr := newTestTrader(t, pred, res, books, exec, &memStorage{})

	first := tr.RunCycle(context.Background(), 100)
	require.True(t, first.Traded())

	second := tr.RunCycle(context.Background(), 100)
	assert.Equal(t, domain.SkipDuplicateWindow, second.Skip)
	assert.Len(t, exec.placed, 1, "la segunda pasada no debe enviar orden")
	assert.Equal(t, 1, pred.calls, "la dedup corta antes de la inferencia")
}

func TestRunCycle_WeakConfidenceSkips(t *testing.T) {
	pred := &fakePredictor{probUp: 0.52}
	res := &fakeResolver{market: testMarket()}
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"tok-up":   deepBook("tok-up", 0.49, 0.51),
		"tok-down": deepBook("tok-down", 0.49, 0.51),
	}}
	exec := &fakeExecutor{bankroll: 1000}
	tr := newTestTrader(t, pred, res, books, exec, &memStorage{})

	d := tr.RunCycle(context.Background(), 100)
	assert.Equal(t, domain.SkipLowConfidenceOrEdge, d.Skip)
	assert.Empty(t, exec.placed)
}

func TestRunCycle_EmptyHistorySkipsUntilSeeded(t *testing.T) {
	// Arranque degradado sin histórico REST: el feed está sano pero no hay
	// velas cerradas, así que el ciclo se salta en vez de operar a ciegas.
	agg := candles.New(96)
	agg.OnTick(domain.Tick{Time: time.Now().UTC(), Open: 100_000, High: 100_050, Low: 99_950, Close: 100_000})

	pred := &fakePredictor{probUp: 0.60}
	gov := trader.NewGovernor(trader.DefaultGovernorConfig(), domain.RiskState{})
	tr := trader.NewTrader(
		agg,
		features.NewBuilder(features.Manifest{Count: 32}),
		pred, &fakeResolver{market: testMarket()}, &fakeBooks{}, &fakeExecutor{bankroll: 1000},
		&memStorage{}, nullNotifier{}, gov,
		trader.DefaultCycleConfig(),
	)

	d := tr.RunCycle(context.Background(), 100)
	assert.Equal(t, domain.SkipInsufficientHistory, d.Skip)
	assert.Equal(t, 0, pred.calls)
}

func TestRunCycle_InferenceErrorSkips(t *testing.T) {
	pred := &fakePredictor{err: domain.ErrInference}
	res := &fakeResolver{market: testMarket()}
	tr := newTestTrader(t, pred, res, &fakeBooks{}, &fakeExecutor{bankroll: 1000}, &memStorage{})

	d := tr.RunCycle(context.Background(), 100)
	assert.Equal(t, domain.SkipInference, d.Skip)
}

func TestRunCycle_ResolverDownOpensCircuit(t *testing.T) {
	pred := &fakePredictor{probUp: 0.60}
	res := &fakeResolver{err: errors.New("gamma down")}
	tr := newTestTrader(t, pred, res, &fakeBooks{}, &fakeExecutor{bankroll: 1000}, &memStorage{})

	// Cinco ventanas seguidas sin poder resolver mercado abren el circuito
	// aunque ninguna orden haya fallado.
	for w := domain.WindowID(100); w < 105; w++ {
		d := tr.RunCycle(context.Background(), w)
		assert.Equal(t, domain.SkipMarketUnavailable, d.Skip)
	}
	assert.True(t, tr.Governor().CircuitOpen())
	assert.Equal(t, 0, tr.Governor().State().ConsecutiveAPIErrors)

	d := tr.RunCycle(context.Background(), 200)
	assert.Equal(t, domain.SkipCircuitOpen, d.Skip)
}

func TestRunCycle_OrderFailureOpensCircuitEventually(t *testing.T) {
	pred := &fakePredictor{probUp: 0.60}
	res := &fakeResolver{market: testMarket()}
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"tok-up":   deepBook("tok-up", 0.49, 0.51),
		"tok-down": deepBook("tok-down", 0.49, 0.51),
	}}
	exec := &fakeExecutor{bankroll: 1000, placeErr: domain.ErrOrderRejected}
	tr := newTestTrader(t, pred, res, books, exec, &memStorage{})

	// MaxAPIErrors por defecto es 5: cinco ventanas fallidas abren el circuito.
	for w := domain.WindowID(100); w < 105; w++ {
		d := tr.RunCycle(context.Background(), w)
		assert.Equal(t, domain.SkipOrderFailed, d.Skip)
	}
	assert.True(t, tr.Governor().CircuitOpen())

	d := tr.RunCycle(context.Background(), 200)
	assert.Equal(t, domain.SkipCircuitOpen, d.Skip)
}

func TestRunCycle_InsufficientLiquiditySkips(t *testing.T) {
	pred := &fakePredictor{probUp: 0.60}
	res := &fakeResolver{market: testMarket()}
	// Book con profundidad de ~$1: no absorbe un stake de $50.
	thin := domain.OrderBook{
		TokenID: "tok-up",
		Bids:    []domain.BookEntry{{Price: 0.49, Size: 2}},
		Asks:    []domain.BookEntry{{Price: 0.51, Size: 2}},
	}
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"tok-up":   thin,
		"tok-down": deepBook("tok-down", 0.49, 0.51),
	}}
	exec := &fakeExecutor{bankroll: 1000}
	tr := newTestTrader(t, pred, res, books, exec, &memStorage{})

	d := tr.RunCycle(context.Background(), 100)
	assert.Equal(t, domain.SkipInsufficientLiquidity, d.Skip)
	assert.Empty(t, exec.placed)
}

func TestRunCycle_ZeroBankrollSkips(t *testing.T) {
	pred := &fakePredictor{probUp: 0.60}
	res := &fakeResolver{market: testMarket()}
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"tok-up":   deepBook("tok-up", 0.49, 0.51),
		"tok-down": deepBook("tok-down", 0.49, 0.51),
	}}
	exec := &fakeExecutor{bankroll: 0}
	tr := newTestTrader(t, pred, res, books, exec, &memStorage{})

	d := tr.RunCycle(context.Background(), 100)
	assert.Equal(t, domain.SkipZeroStake, d.Skip)
}

func TestPaperExecutor_SimulatesFill(t *testing.T) {
	p := &trader.PaperExecutor{Bankroll: 500}

	bal, err := p.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 500.0, bal, 0.001)

	placed, err := p.PlaceOrder(context.Background(), domain.PlaceOrderRequest{
		TokenID: "tok", Price: 0.5, Size: 25,
	})
	require.NoError(t, err)
	assert.True(t, placed.Matched())
	assert.NotEmpty(t, placed.CLOBOrderID)
}
