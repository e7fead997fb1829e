package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	assert.NoError(t, err)
	return ts
}

func TestWindowIDAt_Alignment(t *testing.T) {
	ts := mustTime(t, "2026-08-29T14:07:33Z")
	w := WindowIDAt(ts)
	assert.Equal(t, mustTime(t, "2026-08-29T14:00:00Z"), w.Start())
	assert.Equal(t, mustTime(t, "2026-08-29T14:15:00Z"), w.End())
}

func TestWindowIDAt_BoundaryBelongsToNextWindow(t *testing.T) {
	boundary := mustTime(t, "2026-08-29T14:15:00Z")
	assert.Equal(t, boundary, WindowIDAt(boundary).Start())
	// un instante antes sigue en la ventana anterior
	assert.Equal(t, mustTime(t, "2026-08-29T14:00:00Z"), WindowIDAt(boundary.Add(-time.Second)).Start())
}

func TestWindowStart_TruncatesToUTC(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	assert.NoError(t, err)
	ts := time.Date(2026, 8, 29, 16, 22, 10, 0, madrid) // 14:22:10 UTC
	assert.Equal(t, mustTime(t, "2026-08-29T14:15:00Z"), WindowStart(ts))
}

func TestOpenCandle_ApplyMergesTicks(t *testing.T) {
	base := mustTime(t, "2026-08-29T14:00:00Z")
	oc := NewOpenCandle(Tick{Time: base, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10})
	oc.Apply(Tick{Time: base.Add(time.Minute), Open: 100.5, High: 103, Low: 100, Close: 102, Volume: 5})
	oc.Apply(Tick{Time: base.Add(2 * time.Minute), Open: 102, High: 102.5, Low: 98, Close: 99, Volume: 2})

	c := oc.Seal()
	assert.Equal(t, base, c.WindowStart)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 103.0, c.High)
	assert.Equal(t, 98.0, c.Low)
	assert.Equal(t, 99.0, c.Close) // último tick aplicado
	assert.Equal(t, 17.0, c.Volume)
}

func TestOpenCandle_HighLowOrderIndependent(t *testing.T) {
	base := mustTime(t, "2026-08-29T14:00:00Z")
	a := NewOpenCandle(Tick{Time: base, Open: 100, High: 100, Low: 100, Close: 100})
	a.Apply(Tick{Time: base.Add(time.Minute), High: 110, Low: 105, Close: 105})
	a.Apply(Tick{Time: base.Add(2 * time.Minute), High: 96, Low: 95, Close: 95})

	b := NewOpenCandle(Tick{Time: base, Open: 100, High: 100, Low: 100, Close: 100})
	b.Apply(Tick{Time: base.Add(time.Minute), High: 96, Low: 95, Close: 95})
	b.Apply(Tick{Time: base.Add(2 * time.Minute), High: 110, Low: 105, Close: 105})

	assert.Equal(t, a.High, b.High)
	assert.Equal(t, a.Low, b.Low)
}

func TestCandle_Range(t *testing.T) {
	c := Candle{High: 105, Low: 95, Close: 100}
	assert.InDelta(t, 0.10, c.Range(), 1e-9)
	assert.Equal(t, 0.0, Candle{High: 10, Low: 5}.Range())
}

func TestCandle_IsBullish_TieCountsAsUp(t *testing.T) {
	assert.True(t, Candle{Open: 100, Close: 101}.IsBullish())
	assert.True(t, Candle{Open: 100, Close: 100}.IsBullish())
	assert.False(t, Candle{Open: 100, Close: 99}.IsBullish())
}

func TestCandleHistory_EvictsOldest(t *testing.T) {
	h := NewCandleHistory(3)
	base := mustTime(t, "2026-08-29T00:00:00Z")
	for i := 0; i < 5; i++ {
		h.Append(Candle{WindowStart: base.Add(time.Duration(i) * Period), Close: float64(i)})
	}

	assert.Equal(t, 3, h.Len())
	snap := h.Snapshot()
	assert.Equal(t, 2.0, snap[0].Close)
	assert.Equal(t, 4.0, snap[2].Close)

	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, 4.0, last.Close)
}

func TestCandleHistory_SnapshotIsCopy(t *testing.T) {
	h := NewCandleHistory(4)
	h.Append(Candle{Close: 1})
	snap := h.Snapshot()
	snap[0].Close = 999
	last, _ := h.Last()
	assert.Equal(t, 1.0, last.Close)
}

func TestCandleHistory_Empty(t *testing.T) {
	h := NewCandleHistory(4)
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Empty(t, h.Snapshot())
}
