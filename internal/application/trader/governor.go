// Package trader contiene el loop de decisión: scheduler alineado a ventana,
// gates de seguridad y el ciclo completo predicción → orden.
package trader

import (
	"log/slog"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// GovernorConfig son los umbrales de los gates de seguridad.
type GovernorConfig struct {
	// MaxAPIErrors abre el circuit breaker cuando una racha alcanza este
	// valor: envíos de orden fallidos consecutivos, o lecturas de broker
	// fallidas sin ninguna exitosa entre medias. Fail-closed: nunca se
	// opera con el circuito abierto.
	MaxAPIErrors int

	// VolatilityFloor es el mínimo de (high−low)/close de la última vela
	// cerrada. Por debajo el mercado está muerto y la señal es ruido.
	VolatilityFloor float64

	// ConfidenceThreshold es la probabilidad mínima del modelo en el lado
	// elegido.
	ConfidenceThreshold float64

	// EdgeMargin es el mínimo de probabilidad − precio de mercado.
	EdgeMargin float64
}

// DefaultGovernorConfig devuelve los umbrales por defecto.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		MaxAPIErrors:        5,
		VolatilityFloor:     0.001,
		ConfidenceThreshold: 0.55,
		EdgeMargin:          0.02,
	}
}

// Governor es el dueño del RiskState y aplica todos los gates que pueden
// vetar un ciclo. Cada gate devuelve el SkipReason que lo disparó.
type Governor struct {
	cfg   GovernorConfig
	state domain.RiskState

	// Racha de errores de lectura (resolución de mercado, books, balance),
	// separada de la racha de envíos fallidos: una lectura exitosa la
	// resetea, así una tormenta transitoria de Gamma no deja el circuito
	// abierto sin que ninguna orden haya fallado. No se persiste.
	readErrors int
}

// NewGovernor crea un Governor con el estado inicial dado (normalmente el
// snapshot cargado de storage, o el estado cero).
func NewGovernor(cfg GovernorConfig, initial domain.RiskState) *Governor {
	if cfg.MaxAPIErrors <= 0 {
		cfg.MaxAPIErrors = 5
	}
	return &Governor{cfg: cfg, state: initial}
}

// State devuelve una copia del estado de riesgo actual.
func (g *Governor) State() domain.RiskState {
	return g.state
}

// CircuitOpen devuelve true si alguna de las dos rachas alcanzó el máximo.
// Una vez abierto no se cierra dentro del proceso: PreCheck veta el ciclo
// antes de cualquier lectura, así que ninguna racha vuelve a resetearse.
func (g *Governor) CircuitOpen() bool {
	return g.state.ConsecutiveAPIErrors >= g.cfg.MaxAPIErrors ||
		g.readErrors >= g.cfg.MaxAPIErrors
}

// PreCheck aplica los gates previos al trabajo caro del ciclo: dedup por
// ventana, circuit breaker y salud del feed. Devuelve SkipNone si el ciclo
// puede continuar.
func (g *Governor) PreCheck(w domain.WindowID, feedHealthy bool) domain.SkipReason {
	if g.state.LastTradedWindowID == w {
		return domain.SkipDuplicateWindow
	}
	if g.CircuitOpen() {
		slog.Warn("circuit breaker open, refusing to act",
			"order_errors", g.state.ConsecutiveAPIErrors,
			"read_errors", g.readErrors,
			"max", g.cfg.MaxAPIErrors,
		)
		return domain.SkipCircuitOpen
	}
	if !feedHealthy {
		return domain.SkipUnhealthyFeed
	}
	return domain.SkipNone
}

// CheckVolatility veta el ciclo si la última vela cerrada no se movió.
func (g *Governor) CheckVolatility(last domain.Candle) domain.SkipReason {
	if last.Range() < g.cfg.VolatilityFloor {
		return domain.SkipLowVolatility
	}
	return domain.SkipNone
}

// ChooseSide evalúa ambos lados contra los umbrales de confianza y edge.
// Devuelve el lado elegido con su edge y confianza, o DirectionNone con el
// skip correspondiente si ninguno los supera.
func (g *Governor) ChooseSide(probUp, upPrice, downPrice float64) (domain.Direction, float64, float64, domain.SkipReason) {
	probDown := 1 - probUp
	edgeUp := probUp - upPrice
	edgeDown := probDown - downPrice

	// El lado con más edge compite primero; el otro solo si el primero
	// falla los umbrales.
	type side struct {
		dir  domain.Direction
		prob float64
		edge float64
	}
	first := side{domain.DirectionUp, probUp, edgeUp}
	second := side{domain.DirectionDown, probDown, edgeDown}
	if edgeDown > edgeUp {
		first, second = second, first
	}

	for _, s := range []side{first, second} {
		if s.prob >= g.cfg.ConfidenceThreshold && s.edge >= g.cfg.EdgeMargin {
			return s.dir, s.edge, s.prob, domain.SkipNone
		}
	}
	return domain.DirectionNone, first.edge, first.prob, domain.SkipLowConfidenceOrEdge
}

// RecordDecision actualiza contadores con el resultado final del ciclo.
func (g *Governor) RecordDecision(d domain.TradeDecision) {
	g.state.RecordDecision(d)
}

// RecordOrderSuccess marca la ventana como operada y cierra el circuito.
func (g *Governor) RecordOrderSuccess(w domain.WindowID) {
	g.state.RecordOrderSuccess(w)
}

// RecordOrderFailure incrementa la racha de envíos de orden fallidos.
// Solo un envío exitoso la resetea.
func (g *Governor) RecordOrderFailure() {
	g.state.RecordOrderFailure()
	if g.CircuitOpen() {
		slog.Error("circuit breaker tripped",
			"order_errors", g.state.ConsecutiveAPIErrors,
		)
	}
}

// RecordReadFailure incrementa la racha de lecturas de broker fallidas.
func (g *Governor) RecordReadFailure() {
	g.readErrors++
	if g.CircuitOpen() {
		slog.Error("circuit breaker tripped",
			"read_errors", g.readErrors,
		)
	}
}

// RecordReadSuccess resetea la racha de lecturas fallidas.
func (g *Governor) RecordReadSuccess() {
	g.readErrors = 0
}
