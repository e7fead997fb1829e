// Package backoff centraliza la política de reintentos con backoff
// exponencial y jitter que antes estaba duplicada en cada llamada de red.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy describe un backoff exponencial acotado con jitter.
type Policy struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // fracción de la espera, en [0,1]
}

// Default devuelve la política conservadora usada por los adapters de red.
func Default() Policy {
	return Policy{
		Min:    500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next devuelve la espera para el intento dado (1-based).
func (p Policy) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := p.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := p.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if p.Jitter <= 0 {
		return wait
	}
	jitter := p.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// Sleep espera el backoff del intento dado respetando el contexto.
// Devuelve el error del contexto si se canceló durante la espera.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Next(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
