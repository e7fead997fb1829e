package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

const (
	defaultRESTBase = "https://api.binance.com"
	klinesPath      = "/api/v3/klines"

	// Las velas de 15m se construyen a partir de klines de 1m para que
	// el primer ciclo no parta de un histórico vacío.
	subInterval       = "1m"
	subPerPeriod      = 15
	maxKlinesPerfetch = 1000
)

// History implementa ports.HistoryProvider contra el endpoint REST de klines.
type History struct {
	base   string
	symbol string
	http   *http.Client
}

// NewHistory crea el proveedor de histórico. Con restBase vacío usa
// el endpoint público de producción.
func NewHistory(restBase, symbol string) *History {
	if restBase == "" {
		restBase = defaultRESTBase
	}
	if symbol == "" {
		symbol = "BTCUSDT"
	}
	return &History{
		base:   restBase,
		symbol: symbol,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

// RecentCandles devuelve hasta limit velas cerradas del período, más
// recientes al final. La vela del período en curso se descarta.
func (h *History) RecentCandles(ctx context.Context, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Un período extra para descartar la vela parcial en curso.
	need := (limit + 1) * subPerPeriod
	if need > maxKlinesPerfetch {
		need = maxKlinesPerfetch
	}

	ticks, err := h.fetchKlines(ctx, need)
	if err != nil {
		return nil, err
	}

	candles := Resample(ticks)
	// La última ventana puede estar incompleta.
	cutoff := domain.WindowStart(time.Now().UTC())
	for len(candles) > 0 && !candles[len(candles)-1].WindowStart.Before(cutoff) {
		candles = candles[:len(candles)-1]
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (h *History) fetchKlines(ctx context.Context, limit int) ([]domain.Tick, error) {
	q := url.Values{}
	q.Set("symbol", h.symbol)
	q.Set("interval", subInterval)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+klinesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines: %w", domain.ErrConnection)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("klines: status %d: %s", resp.StatusCode, string(body))
	}

	// Cada kline es un array posicional:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("klines: decode: %w", err)
	}

	ticks := make([]domain.Tick, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(k[0], &openTime); err != nil {
			continue
		}
		ticks = append(ticks, domain.Tick{
			Time:   time.UnixMilli(openTime).UTC(),
			Open:   parseRawPrice(k[1]),
			High:   parseRawPrice(k[2]),
			Low:    parseRawPrice(k[3]),
			Close:  parseRawPrice(k[4]),
			Volume: parseRawPrice(k[5]),
		})
	}
	return ticks, nil
}

func parseRawPrice(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return domain.ParsePrice(s)
}

// Resample agrupa klines sub-período en velas del período, alineadas al
// inicio de ventana. Entrada desordenada se ordena antes de agrupar.
func Resample(ticks []domain.Tick) []domain.Candle {
	if len(ticks) == 0 {
		return nil
	}
	sorted := make([]domain.Tick, len(ticks))
	copy(sorted, ticks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	var candles []domain.Candle
	var open *domain.OpenCandle
	for _, t := range sorted {
		start := domain.WindowStart(t.Time)
		if open != nil && !open.WindowStart.Equal(start) {
			candles = append(candles, open.Seal())
			open = nil
		}
		if open == nil {
			open = domain.NewOpenCandle(t)
			continue
		}
		open.Apply(t)
	}
	if open != nil {
		candles = append(candles, open.Seal())
	}
	return candles
}
