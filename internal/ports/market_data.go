package ports

import (
	"context"
	"time"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// TickStream es la fuente primaria de precios: una conexión persistente que
// entrega klines sub-período parseados por un canal. El consumidor (el
// agregador) es el único lector; el stream solo escribe.
type TickStream interface {
	// Run mantiene la conexión viva (reconectando con backoff) hasta que el
	// contexto se cancele, empujando ticks parseados al canal devuelto por
	// Ticks. No bloquea al resto del sistema mientras reconecta.
	Run(ctx context.Context) error

	// Ticks devuelve el canal de ticks parseados.
	Ticks() <-chan domain.Tick
}

// ReferencePricer es la fuente secundaria: un precio escalar con timestamp
// de frescura, usado solo como señal de salud/backup.
type ReferencePricer interface {
	// LatestPrice devuelve el último precio de referencia y su timestamp.
	LatestPrice(ctx context.Context) (price float64, updatedAt time.Time, err error)

	// Disabled devuelve true si la fuente fue deshabilitada tras fallos
	// consecutivos repetidos.
	Disabled() bool
}

// HistoryProvider siembra el historial de velas al arrancar.
type HistoryProvider interface {
	// RecentCandles devuelve las últimas velas cerradas del período,
	// alineadas a ventana y en orden ascendente.
	RecentCandles(ctx context.Context, limit int) ([]domain.Candle, error)
}
