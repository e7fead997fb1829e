// Package candles mantiene el historial OHLCV alineado a ventanas fijas a
// partir de las fuentes de precio upstream.
package candles

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// Aggregator es el dueño exclusivo de la vela abierta y del historial.
// La ingesta corre en su propio goroutine (Run); todos los lectores pasan
// por Snapshot, que devuelve copias.
type Aggregator struct {
	mu      sync.Mutex
	open    *domain.OpenCandle
	history *domain.CandleHistory

	lastTickAt  time.Time // último tick de la fuente primaria
	lastPrice   float64
	everPrimary bool // true si la primaria entregó al menos un tick

	lastRefAt time.Time // heartbeat de la fuente de referencia
}

// New crea un agregador con historial de la capacidad dada.
func New(capacity int) *Aggregator {
	return &Aggregator{history: domain.NewCandleHistory(capacity)}
}

// Seed precarga velas cerradas (del REST histórico) en el historial.
// Solo tiene sentido antes de arrancar la ingesta.
func (a *Aggregator) Seed(cs []domain.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range cs {
		a.history.Append(c)
		a.lastPrice = c.Close
	}
}

// Run consume ticks del canal hasta que se cierre o el contexto se cancele.
func (a *Aggregator) Run(ctx context.Context, ticks <-chan domain.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			a.OnTick(t)
		}
	}
}

// OnTick enruta el tick a la vela cuya ventana lo contiene. Si el tick
// pertenece a una ventana nueva, la vela abierta se sella y pasa al
// historial; si pertenece a la misma, se fusiona (high=max, low=min,
// close=último, volume acumulado).
func (a *Aggregator) OnTick(t domain.Tick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastTickAt = time.Now().UTC()
	a.lastPrice = t.Close
	a.everPrimary = true

	ws := domain.WindowStart(t.Time)
	if a.open == nil {
		a.open = domain.NewOpenCandle(t)
		return
	}
	if !a.open.WindowStart.Equal(ws) {
		sealed := a.open.Seal()
		a.history.Append(sealed)
		slog.Debug("candle sealed",
			"window", sealed.WindowStart.Format("15:04"),
			"close", sealed.Close,
			"history", a.history.Len(),
		)
		a.open = domain.NewOpenCandle(t)
		return
	}
	a.open.Apply(t)
}

// OnReference registra el heartbeat de la fuente secundaria. Nunca pisa
// velas derivadas de la primaria; solo si la primaria no ha conectado
// nunca, el precio de referencia alimenta la vela abierta como backup.
func (a *Aggregator) OnReference(price float64, at time.Time) {
	if price <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastRefAt = time.Now().UTC()
	if a.everPrimary {
		return
	}

	a.lastPrice = price
	t := domain.Tick{Time: at, Open: price, High: price, Low: price, Close: price}
	ws := domain.WindowStart(at)
	if a.open == nil {
		a.open = domain.NewOpenCandle(t)
		return
	}
	if !a.open.WindowStart.Equal(ws) {
		a.history.Append(a.open.Seal())
		a.open = domain.NewOpenCandle(t)
		return
	}
	a.open.Apply(t)
}

// Snapshot devuelve una copia del historial de velas cerradas. La vela
// abierta nunca se expone.
func (a *Aggregator) Snapshot() []domain.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.Snapshot()
}

// LastClosed devuelve la última vela cerrada.
func (a *Aggregator) LastClosed() (domain.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.Last()
}

// Healthy devuelve true si llegó un tick (primario o heartbeat de
// referencia) dentro de maxStaleness y el último precio conocido no es 0.
func (a *Aggregator) Healthy(maxStaleness time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastPrice == 0 {
		return false
	}
	last := a.lastTickAt
	if a.lastRefAt.After(last) {
		last = a.lastRefAt
	}
	if last.IsZero() {
		return false
	}
	return time.Since(last) <= maxStaleness
}

// LastPrice devuelve el último precio conocido (0 si nunca hubo tick).
func (a *Aggregator) LastPrice() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPrice
}
