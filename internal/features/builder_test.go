package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

func risingCandles(n int, start time.Time) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		base := 100 + float64(i)
		out[i] = domain.Candle{
			WindowStart: start.Add(time.Duration(i) * domain.Period),
			Open:        base,
			High:        base + 1.2,
			Low:         base - 0.4,
			Close:       base + 1,
			Volume:      10 + float64(i%3),
		}
	}
	return out
}

func testManifest(count int) Manifest {
	names := make([]string, count)
	for i := range names {
		names[i] = "f"
	}
	return Manifest{FeatureNames: names, Count: count}
}

func TestBuild_InsufficientHistory(t *testing.T) {
	b := NewBuilder(testManifest(32))
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	_, err := b.Build(risingCandles(MinHistory-1, start))
	assert.ErrorIs(t, err, domain.ErrInsufficientHistory)
}

func TestBuild_VectorShapeAndFiniteness(t *testing.T) {
	b := NewBuilder(testManifest(32))
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	vec, err := b.Build(risingCandles(24, start))
	require.NoError(t, err)
	require.Len(t, vec, 32)
	for i, v := range vec {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "feature %d no es finita: %v", i, v)
	}
}

func TestBuild_RisingSeriesSignals(t *testing.T) {
	b := NewBuilder(testManifest(32))
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	vec, err := b.Build(risingCandles(24, start))
	require.NoError(t, err)

	assert.Greater(t, vec[0], 0.0)  // retorno a 1 vela positivo
	assert.Equal(t, 1.0, vec[7])    // última vela alcista
	assert.Greater(t, vec[9], 90.0) // RSI14 saturado al alza
}

func TestBuild_TimeEncodingAtMidnight(t *testing.T) {
	b := NewBuilder(testManifest(32))
	// la última vela abre a las 00:00 UTC
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC).Add(-23 * domain.Period)

	vec, err := b.Build(risingCandles(24, start))
	require.NoError(t, err)

	assert.InDelta(t, 0.0, vec[28], 1e-9) // sin(hora)
	assert.InDelta(t, 1.0, vec[29], 1e-9) // cos(hora)
	assert.InDelta(t, 0.0, vec[30], 1e-9) // sin(minuto)
	assert.InDelta(t, 1.0, vec[31], 1e-9) // cos(minuto)
}

func TestBuild_TruncatesToShorterManifest(t *testing.T) {
	b := NewBuilder(testManifest(10))
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	vec, err := b.Build(risingCandles(24, start))
	require.NoError(t, err)
	assert.Len(t, vec, 10)
}

func TestBuild_PadsToLongerManifest(t *testing.T) {
	b := NewBuilder(testManifest(40))
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	vec, err := b.Build(risingCandles(24, start))
	require.NoError(t, err)
	require.Len(t, vec, 40)
	for _, v := range vec[32:] {
		assert.Equal(t, 0.0, v)
	}
}
