package ports

import (
	"context"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// Notifier presenta el resultado de cada ciclo al operador.
type Notifier interface {
	// NotifyDecision muestra el resultado de un ciclo: decisión con
	// tamaño/edge/confianza, o motivo del skip.
	NotifyDecision(ctx context.Context, d domain.TradeDecision) error

	// NotifyStats muestra los contadores agregados en la cadencia fija.
	NotifyStats(ctx context.Context, rs domain.RiskState) error
}
