package features

import "math"

// Indicator math over closed-candle series. All functions mirror the
// semantics of the training pipeline: EMA uses the span recursion
// alpha = 2/(span+1) seeded with the first value, rolling std is the
// sample deviation (ddof=1), and every ratio denominator carries the
// epsilon so a flat series never divides by zero.

const epsilon = 1e-10

// ema returns the exponential moving average series for the given span.
func ema(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// sma returns the simple moving average of the last window values.
// Returns 0 when there is not enough data.
func sma(xs []float64, window int) float64 {
	if window <= 0 || len(xs) < window {
		return 0
	}
	var sum float64
	for _, v := range xs[len(xs)-window:] {
		sum += v
	}
	return sum / float64(window)
}

// stdSample returns the sample standard deviation (ddof=1) of the last
// window values. Returns 0 when there is not enough data.
func stdSample(xs []float64, window int) float64 {
	if window < 2 || len(xs) < window {
		return 0
	}
	tail := xs[len(xs)-window:]
	mean := sma(xs, window)
	var ss float64
	for _, v := range tail {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(window-1))
}

// rsi returns the last relative strength index value for the period,
// using EMA-smoothed gains and losses over the delta series.
func rsi(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 50
	}
	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}
	avgGain := ema(gains, period)
	avgLoss := ema(losses, period)
	rs := avgGain[len(avgGain)-1] / (avgLoss[len(avgLoss)-1] + epsilon)
	return 100 - 100/(1+rs)
}

// macd returns the last MACD line, signal line, and histogram values for
// the standard fast/slow/signal spans.
func macd(closes []float64, fast, slow, signal int) (line, sig, hist float64) {
	if len(closes) == 0 {
		return 0, 0, 0
	}
	emaFast := ema(closes, fast)
	emaSlow := ema(closes, slow)
	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = emaFast[i] - emaSlow[i]
	}
	sigSeries := ema(diff, signal)
	line = diff[len(diff)-1]
	sig = sigSeries[len(sigSeries)-1]
	return line, sig, line - sig
}

// bollinger returns the last upper/middle/lower band values for the
// window and deviation multiplier.
func bollinger(closes []float64, window int, mult float64) (upper, middle, lower float64) {
	middle = sma(closes, window)
	std := stdSample(closes, window)
	return middle + mult*std, middle, middle - mult*std
}

// atr returns the last average true range value: the SMA of the true
// range series over the period.
func atr(highs, lows, closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 0
	}
	tr := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i-1] = math.Max(hl, math.Max(hc, lc))
	}
	return sma(tr, period)
}

// pctChange returns the relative change between the last value and the
// value lag positions earlier.
func pctChange(xs []float64, lag int) float64 {
	if len(xs) <= lag {
		return 0
	}
	prev := xs[len(xs)-1-lag]
	if prev == 0 {
		return 0
	}
	return xs[len(xs)-1]/prev - 1
}
