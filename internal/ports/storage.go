package ports

import (
	"context"
	"time"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// Storage persiste el resultado de cada ciclo de decisión y el estado de
// riesgo del proceso.
type Storage interface {
	// SaveDecision persiste el resultado de un ciclo (trade o skip).
	SaveDecision(ctx context.Context, d domain.TradeDecision) error

	// SaveRiskState guarda el snapshot de contadores de riesgo.
	SaveRiskState(ctx context.Context, rs domain.RiskState) error

	// LoadRiskState carga el último snapshot guardado. Devuelve el estado
	// cero si no hay ninguno.
	LoadRiskState(ctx context.Context) (domain.RiskState, error)

	// GetDecisions devuelve las decisiones registradas en el rango dado.
	GetDecisions(ctx context.Context, from, to time.Time) ([]domain.TradeDecision, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
