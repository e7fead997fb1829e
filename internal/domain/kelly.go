package domain

// kelly.go — dimensionamiento de posición por Kelly fraccional.
//
// Todo es puro y sin efectos: crítico para poder testear el sizing con
// tablas de casos sin montar el resto del pipeline.

// SizerConfig controla el shrinkage y los límites del sizing.
type SizerConfig struct {
	// KellyFraction es el factor de shrinkage sobre el Kelly completo.
	// 0.25 (quarter-Kelly) por defecto.
	KellyFraction float64
	// MaxStakeFraction es el techo duro de fracción del bankroll por
	// operación, independiente del shrinkage.
	MaxStakeFraction float64
}

// DefaultSizerConfig devuelve quarter-Kelly con techo del 10%.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{KellyFraction: 0.25, MaxStakeFraction: 0.10}
}

// KellyFraction devuelve la fracción completa de Kelly para una apuesta
// binaria a precio de mercado marketPrice con probabilidad de ganar p.
//
// Cuotas: b = (1 − precio) / precio. Kelly: f = (b·p − (1−p)) / b.
// Inputs degenerados (p o precio fuera de (0,1)) devuelven 0, no error:
// el sizing nunca debe romper un ciclo, solo anular la apuesta.
func KellyFraction(p, marketPrice float64) float64 {
	if p <= 0 || p >= 1 || marketPrice <= 0 || marketPrice >= 1 {
		return 0
	}
	b := (1 - marketPrice) / marketPrice
	f := (b*p - (1 - p)) / b
	if f <= 0 {
		return 0
	}
	return f
}

// StakeFraction aplica shrinkage y techo a la fracción completa de Kelly.
func StakeFraction(p, marketPrice float64, cfg SizerConfig) float64 {
	f := KellyFraction(p, marketPrice) * cfg.KellyFraction
	if f > cfg.MaxStakeFraction {
		return cfg.MaxStakeFraction
	}
	return f
}

// StakeUSD devuelve el tamaño en dólares: bankroll × fracción acotada.
func StakeUSD(p, marketPrice, bankroll float64, cfg SizerConfig) float64 {
	if bankroll <= 0 {
		return 0
	}
	return bankroll * StakeFraction(p, marketPrice, cfg)
}
