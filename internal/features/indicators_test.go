package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMA_SpanRecursion(t *testing.T) {
	// span=3 → alpha=0.5; seed con el primer valor
	out := ema([]float64{1, 2, 3}, 3)
	assert.InDelta(t, 1.0, out[0], 1e-9)
	assert.InDelta(t, 1.5, out[1], 1e-9)
	assert.InDelta(t, 2.25, out[2], 1e-9)
}

func TestEMA_Empty(t *testing.T) {
	assert.Empty(t, ema(nil, 4))
}

func TestSMA_LastWindow(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 4.0, sma(xs, 3), 1e-9) // (3+4+5)/3
	assert.Equal(t, 0.0, sma(xs, 6))
	assert.Equal(t, 0.0, sma(xs, 0))
}

func TestStdSample_DDOF1(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	// media 5, suma de cuadrados 32, /(8−1) → sqrt(4.5714) ≈ 2.1381
	assert.InDelta(t, 2.1381, stdSample(xs, 8), 0.001)
	assert.Equal(t, 0.0, stdSample(xs, 1))
	assert.Equal(t, 0.0, stdSample(xs[:1], 2))
}

func TestRSI_Extremes(t *testing.T) {
	rising := []float64{100, 101, 102, 103, 104, 105, 106, 107}
	falling := []float64{107, 106, 105, 104, 103, 102, 101, 100}

	assert.Greater(t, rsi(rising, 7), 99.0)
	assert.Less(t, rsi(falling, 7), 1.0)
	assert.Equal(t, 50.0, rsi([]float64{100}, 7))
}

func TestMACD_ConstantSeries(t *testing.T) {
	xs := make([]float64, 30)
	for i := range xs {
		xs[i] = 100
	}
	line, sig, hist := macd(xs, 12, 26, 9)
	assert.InDelta(t, 0.0, line, 1e-9)
	assert.InDelta(t, 0.0, sig, 1e-9)
	assert.InDelta(t, 0.0, hist, 1e-9)
}

func TestBollinger_ConstantSeries(t *testing.T) {
	xs := make([]float64, 20)
	for i := range xs {
		xs[i] = 50
	}
	upper, middle, lower := bollinger(xs, 20, 2.0)
	assert.InDelta(t, 50.0, upper, 1e-9)
	assert.InDelta(t, 50.0, middle, 1e-9)
	assert.InDelta(t, 50.0, lower, 1e-9)
}

func TestATR_TrueRangeDominates(t *testing.T) {
	// segunda vela: tr = max(10−8, |10−9|, |8−9|) = 2
	highs := []float64{9.5, 10}
	lows := []float64{8.5, 8}
	closes := []float64{9, 9}
	assert.InDelta(t, 2.0, atr(highs, lows, closes, 1), 1e-9)
	assert.Equal(t, 0.0, atr(highs[:1], lows[:1], closes[:1], 1))
}

func TestPctChange(t *testing.T) {
	assert.InDelta(t, 0.10, pctChange([]float64{100, 110}, 1), 1e-9)
	assert.InDelta(t, -0.05, pctChange([]float64{200, 150, 190}, 2), 1e-9)
	assert.Equal(t, 0.0, pctChange([]float64{100}, 1))
	assert.Equal(t, 0.0, pctChange([]float64{0, 110}, 1))
}
