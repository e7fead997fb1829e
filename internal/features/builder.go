// Package features convierte el historial de velas en el vector numérico
// que espera el modelo entrenado.
package features

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// MinHistory es el mínimo de velas cerradas para construir el vector: la
// ventana más larga (Bollinger 20) manda.
const MinHistory = 20

// Manifest describe la forma del vector que espera el modelo. Viene del
// metadata.json que acompaña al artefacto.
type Manifest struct {
	FeatureNames []string
	Count        int
}

// Builder construye el FeatureVector en el orden fijado por el pipeline de
// entrenamiento. El orden importa: el modelo no conoce nombres, solo
// posiciones.
type Builder struct {
	manifest Manifest
}

// NewBuilder crea un Builder para el manifest dado.
func NewBuilder(m Manifest) *Builder {
	return &Builder{manifest: m}
}

// Build calcula el vector de features a partir de las velas cerradas.
// Falla con domain.ErrInsufficientHistory si hay menos de MinHistory velas.
// La longitud de salida SIEMPRE es la del manifest: se trunca o se rellena
// con ceros, y la discrepancia se loguea como riesgo de corrección (no
// aborta el ciclo).
func (b *Builder) Build(history []domain.Candle) ([]float64, error) {
	if len(history) < MinHistory {
		return nil, fmt.Errorf("features.Build: %d candles, need %d: %w",
			len(history), MinHistory, domain.ErrInsufficientHistory)
	}

	n := len(history)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range history {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	last := history[n-1]
	close_ := last.Close

	vec := make([]float64, 0, len(b.manifest.FeatureNames))
	push := func(v float64) { vec = append(vec, v) }

	// 1. Retornos de corto plazo (15m, 30m, 1h, 2h)
	push(pctChange(closes, 1))
	push(pctChange(closes, 2))
	push(pctChange(closes, 4))
	push(pctChange(closes, 8))

	// 2. Forma de la última vela
	candleRange := last.High - last.Low + epsilon
	push((last.Close - last.Open) / candleRange)
	push((last.High - math.Max(last.Close, last.Open)) / candleRange)
	push((math.Min(last.Close, last.Open) - last.Low) / candleRange)
	push(boolToFloat(last.IsBullish()))

	// 3. RSI de período corto
	push(rsi(closes, 7))
	push(rsi(closes, 14))

	// 4. MACD estándar
	macdLine, macdSignal, macdHist := macd(closes, 12, 26, 9)
	push(macdLine)
	push(macdSignal)
	push(macdHist)

	// 5. Bandas de Bollinger
	bbUpper, bbMiddle, bbLower := bollinger(closes, 20, 2.0)
	push((close_ - bbLower) / (bbUpper - bbLower + epsilon))
	push(safeDiv(bbUpper-bbLower, bbMiddle))

	// 6. Volatilidad realizada y ATR relativo
	push(safeDiv(stdSample(closes, 4), close_))
	push(safeDiv(stdSample(closes, 8), close_))
	push(safeDiv(atr(highs, lows, closes, 7), close_))

	// 7. Volumen
	push(safeDiv(last.Volume, sma(volumes, 8)))
	push(pctChange(volumes, 1))

	// 8. Momentum y ROC a 1h
	if n > 4 {
		push(close_ - closes[n-5])
	} else {
		push(0)
	}
	push(pctChange(closes, 4))

	// 9. EMAs cortas y ratios precio/EMA
	ema4 := ema(closes, 4)
	ema8 := ema(closes, 8)
	lastEMA4 := ema4[len(ema4)-1]
	lastEMA8 := ema8[len(ema8)-1]
	push(lastEMA4)
	push(lastEMA8)
	push(safeDiv(close_, lastEMA4))
	push(safeDiv(close_, lastEMA8))
	push(boolToFloat(lastEMA4 > lastEMA8))

	// 10. Z-score del close contra su media corta
	push((close_ - sma(closes, 8)) / (stdSample(closes, 8) + epsilon))

	// 11. Codificación cíclica del tiempo (hora del día y cuarto de hora)
	ws := last.WindowStart.UTC()
	hour := float64(ws.Hour())
	minute := float64(ws.Minute())
	push(math.Sin(2 * math.Pi * hour / 24))
	push(math.Cos(2 * math.Pi * hour / 24))
	push(math.Sin(2 * math.Pi * minute / 60))
	push(math.Cos(2 * math.Pi * minute / 60))

	return b.fitToManifest(vec), nil
}

// fitToManifest fuerza la longitud del vector a la del manifest. El drift
// de manifest es tolerado (warning) para no tumbar el proceso por un
// reentrenamiento con features de más o de menos.
func (b *Builder) fitToManifest(vec []float64) []float64 {
	want := b.manifest.Count
	if want <= 0 {
		want = len(b.manifest.FeatureNames)
	}
	if want <= 0 || len(vec) == want {
		return vec
	}

	slog.Warn("feature vector length mismatch — forcing to manifest shape",
		"got", len(vec),
		"want", want,
		"err", domain.ErrFeatureShapeMismatch,
	)
	if len(vec) > want {
		return vec[:want]
	}
	padded := make([]float64, want)
	copy(padded, vec)
	return padded
}

func safeDiv(num, den float64) float64 {
	return num / (den + epsilon)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
