package domain

import "time"

// Period es la duración de la ventana de decisión. Los mercados Up/Down de
// Polymarket se resuelven sobre ventanas fijas de 15 minutos alineadas al
// reloj (00, 15, 30, 45), así que todo el sistema trabaja en esa base.
const Period = 15 * time.Minute

// WindowID identifica una ventana de período de forma única:
// floor(epoch / periodo) en UTC.
type WindowID int64

// WindowIDAt devuelve el WindowID de la ventana que contiene t.
func WindowIDAt(t time.Time) WindowID {
	return WindowID(t.Unix() / int64(Period.Seconds()))
}

// Start devuelve el inicio de la ventana en UTC.
func (w WindowID) Start() time.Time {
	return time.Unix(int64(w)*int64(Period.Seconds()), 0).UTC()
}

// End devuelve el fin (exclusivo) de la ventana en UTC.
func (w WindowID) End() time.Time {
	return w.Start().Add(Period)
}

// WindowStart alinea t al inicio de su ventana de período en UTC.
func WindowStart(t time.Time) time.Time {
	return t.UTC().Truncate(Period)
}

// Tick es una actualización de precio sub-período proveniente de una fuente
// upstream (kline parcial del stream, o una vela 1m del REST histórico).
type Tick struct {
	Time   time.Time // open-time del kline upstream
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Candle es una vela OHLCV cerrada e inmutable. WindowStart siempre está
// alineado al período.
type Candle struct {
	WindowStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Range devuelve (high − low) / close, la medida de volatilidad intra-vela
// que usa el filtro de mercado muerto. Devuelve 0 si close es 0.
func (c Candle) Range() float64 {
	if c.Close == 0 {
		return 0
	}
	return (c.High - c.Low) / c.Close
}

// IsBullish devuelve true si close >= open. El >= no es un descuido:
// la regla de resolución de Polymarket cuenta el empate como "Up".
func (c Candle) IsBullish() bool {
	return c.Close >= c.Open
}

// OpenCandle es la vela mutable en construcción. Solo el agregador la toca;
// nunca se expone a lectores — al sellarse produce una Candle inmutable.
type OpenCandle struct {
	WindowStart time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	LastTick    time.Time
}

// NewOpenCandle crea la vela abierta inicial a partir del primer tick de
// su ventana.
func NewOpenCandle(t Tick) *OpenCandle {
	return &OpenCandle{
		WindowStart: WindowStart(t.Time),
		Open:        t.Open,
		High:        t.High,
		Low:         t.Low,
		Close:       t.Close,
		Volume:      t.Volume,
		LastTick:    t.Time,
	}
}

// Apply fusiona un tick de la misma ventana: high/low son independientes del
// orden de llegada; close refleja el último tick aplicado.
func (oc *OpenCandle) Apply(t Tick) {
	if t.High > oc.High {
		oc.High = t.High
	}
	if t.Low < oc.Low {
		oc.Low = t.Low
	}
	oc.Close = t.Close
	oc.Volume += t.Volume
	oc.LastTick = t.Time
}

// Seal convierte la vela abierta en una Candle cerrada e inmutable.
func (oc *OpenCandle) Seal() Candle {
	return Candle{
		WindowStart: oc.WindowStart,
		Open:        oc.Open,
		High:        oc.High,
		Low:         oc.Low,
		Close:       oc.Close,
		Volume:      oc.Volume,
	}
}

// CandleHistory es una secuencia acotada de velas cerradas en orden
// temporal ascendente. Al superar la capacidad se descarta la más antigua.
type CandleHistory struct {
	candles []Candle
	cap     int
}

// NewCandleHistory crea un historial con la capacidad dada.
func NewCandleHistory(capacity int) *CandleHistory {
	if capacity <= 0 {
		capacity = 96 // un día de ventanas de 15m
	}
	return &CandleHistory{candles: make([]Candle, 0, capacity), cap: capacity}
}

// Append añade una vela cerrada, descartando la más antigua si hace falta.
func (h *CandleHistory) Append(c Candle) {
	if len(h.candles) == h.cap {
		copy(h.candles, h.candles[1:])
		h.candles[len(h.candles)-1] = c
		return
	}
	h.candles = append(h.candles, c)
}

// Len devuelve el número de velas cerradas.
func (h *CandleHistory) Len() int {
	return len(h.candles)
}

// Last devuelve la vela cerrada más reciente y false si no hay ninguna.
func (h *CandleHistory) Last() (Candle, bool) {
	if len(h.candles) == 0 {
		return Candle{}, false
	}
	return h.candles[len(h.candles)-1], true
}

// Snapshot devuelve una copia del historial. Los consumidores nunca
// comparten el slice interno con el agregador.
func (h *CandleHistory) Snapshot() []Candle {
	out := make([]Candle, len(h.candles))
	copy(out, h.candles)
	return out
}
