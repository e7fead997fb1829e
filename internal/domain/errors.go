package domain

import "errors"

// Errores del pipeline de decisión. Se envuelven con fmt.Errorf("...: %w")
// en cada capa; los gates del governor los devuelven tal cual para que el
// scheduler pueda clasificar el motivo del skip.
var (
	// ErrConnectionTimeout indica que una llamada de red agotó su timeout.
	ErrConnectionTimeout = errors.New("connection timeout")

	// ErrConnection indica un fallo de conexión de stream/referencia/broker.
	ErrConnection = errors.New("connection error")

	// ErrInsufficientHistory indica que no hay suficientes velas cerradas
	// para construir el vector de features.
	ErrInsufficientHistory = errors.New("insufficient candle history")

	// ErrFeatureShapeMismatch indica que el vector no coincide con el
	// manifest. Es warning: el vector se fuerza a la longitud correcta y el
	// ciclo continúa, pero debe quedar logueado como riesgo de corrección.
	ErrFeatureShapeMismatch = errors.New("feature vector shape mismatch")

	// ErrModelNotLoaded indica un Predict antes de cargar el modelo.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrInference indica un fallo del scorer. No se reintenta: el ciclo
	// se salta y se reporta.
	ErrInference = errors.New("inference failed")

	// ErrInsufficientLiquidity indica que el book no puede absorber el
	// stake dentro de la tolerancia de slippage.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrOrderRejected indica que el CLOB rechazó la orden.
	ErrOrderRejected = errors.New("order rejected")

	// ErrCircuitOpen indica que el circuit breaker disparó: no se opera más
	// hasta reiniciar el proceso.
	ErrCircuitOpen = errors.New("circuit breaker open")
)
