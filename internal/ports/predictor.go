package ports

import "github.com/lod61/poly-model-auto-trading/internal/domain"

// Predictor envuelve el modelo opaco features → probabilidad.
type Predictor interface {
	// Predict devuelve la probabilidad calibrada de que la ventana cierre
	// Up. Falla con domain.ErrModelNotLoaded o domain.ErrInference.
	Predict(features []float64) (domain.Prediction, error)

	// FeatureCount devuelve la longitud de vector que espera el modelo
	// según su manifest.
	FeatureCount() int
}
