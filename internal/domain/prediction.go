package domain

import "time"

// Direction es el lado de la apuesta.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionNone Direction = "NONE"
)

// Prediction es la salida del modelo para una ventana. Derivada, solo vive
// en memoria y en las estadísticas agregadas.
type Prediction struct {
	ProbabilityUp     float64 // en [0,1]
	SourceCandles     int     // velas cerradas usadas para construir features
	GeneratedAt       time.Time
	UsedLabelFallback bool // true si el scorer solo devolvió label duro
}

// SkipReason clasifica por qué un ciclo terminó sin orden.
type SkipReason string

const (
	SkipNone                  SkipReason = ""
	SkipDuplicateWindow       SkipReason = "duplicate_window"
	SkipCircuitOpen           SkipReason = "circuit_open"
	SkipUnhealthyFeed         SkipReason = "unhealthy_feed"
	SkipInsufficientHistory   SkipReason = "insufficient_history"
	SkipInference             SkipReason = "inference_error"
	SkipMarketUnavailable     SkipReason = "market_unavailable"
	SkipLowVolatility         SkipReason = "volatility_below_floor"
	SkipLowConfidenceOrEdge   SkipReason = "confidence_or_edge_insufficient"
	SkipZeroStake             SkipReason = "zero_stake"
	SkipInsufficientLiquidity SkipReason = "insufficient_liquidity"
	SkipOrderFailed           SkipReason = "order_failed"
)

// TradeDecision es el resultado efímero de un ciclo de decisión.
type TradeDecision struct {
	WindowID    WindowID
	Direction   Direction
	SizeUSD     float64
	Edge        float64 // probabilidad del modelo − precio de mercado del lado elegido
	Confidence  float64 // probabilidad del modelo en el lado elegido
	MarketPrice float64
	Skip        SkipReason
	OrderID     string // id del CLOB si se envió
	DecidedAt   time.Time
}

// Traded devuelve true si el ciclo terminó con una orden enviada.
func (d TradeDecision) Traded() bool {
	return d.Skip == SkipNone && d.Direction != DirectionNone
}
