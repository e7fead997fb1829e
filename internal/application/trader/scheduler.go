package trader

import (
	"context"
	"log/slog"
	"time"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// schedulerState es el estado del ciclo de armado.
type schedulerState int

const (
	stateIdle schedulerState = iota
	stateArmed
	stateExecuting
)

// SchedulerConfig controla la banda de disparo y el polling.
type SchedulerConfig struct {
	// FireFrom/FireUntil delimitan la banda de disparo antes del límite de
	// ventana: el ciclo corre entre (boundary − FireFrom) y
	// (boundary − FireUntil). Con la banda se garantiza que la predicción
	// usa la vela que acaba de cerrar pero la orden llega antes de que el
	// mercado de la siguiente ventana deje de operarse.
	FireFrom  time.Duration
	FireUntil time.Duration

	// PollInterval es el paso del reloj interno.
	PollInterval time.Duration

	// StatsEvery emite el resumen agregado cada N ciclos. 0 lo desactiva.
	StatsEvery int
}

// DefaultSchedulerConfig devuelve banda de 60s a 10s antes del límite.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		FireFrom:     60 * time.Second,
		FireUntil:    10 * time.Second,
		PollInterval: time.Second,
		StatsEvery:   4,
	}
}

// Scheduler dispara un ciclo de decisión por ventana, dentro de la banda
// de disparo. Máquina de estados: Idle → Armed (dentro de la banda) →
// Executing → Idle (tras registrar la decisión, hasta la siguiente banda).
type Scheduler struct {
	trader *Trader
	cfg    SchedulerConfig

	state      schedulerState
	lastWindow domain.WindowID
	cycles     int
}

// NewScheduler crea el scheduler sobre un Trader ya cableado.
func NewScheduler(trader *Trader, cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.FireFrom <= cfg.FireUntil {
		def := DefaultSchedulerConfig()
		cfg.FireFrom, cfg.FireUntil = def.FireFrom, def.FireUntil
	}
	return &Scheduler{trader: trader, cfg: cfg}
}

// inBand devuelve true si now cae dentro de la banda de disparo de su
// ventana, y el WindowID de la SIGUIENTE ventana (la que se predice).
func (s *Scheduler) inBand(now time.Time) (domain.WindowID, bool) {
	boundary := domain.WindowStart(now).Add(domain.Period)
	until := boundary.Sub(now)
	if until <= s.cfg.FireFrom && until > s.cfg.FireUntil {
		return domain.WindowIDAt(boundary), true
	}
	return 0, false
}

// Run ejecuta el loop hasta que el contexto se cancele. El shutdown es
// cooperativo: nunca corta un ciclo en vuelo, espera a que termine.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started",
		"period", domain.Period,
		"fire_from", s.cfg.FireFrom,
		"fire_until", s.cfg.FireUntil,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "cycles", s.cycles)
			return ctx.Err()
		case now := <-ticker.C:
			s.step(ctx, now.UTC())
		}
	}
}

// step avanza la máquina de estados un tick de reloj.
func (s *Scheduler) step(ctx context.Context, now time.Time) {
	w, in := s.inBand(now)

	switch s.state {
	case stateIdle:
		if !in || w == s.lastWindow {
			return
		}
		s.state = stateArmed
		slog.Debug("armed", "window", w.Start().Format("15:04"))
		fallthrough

	case stateArmed:
		if !in {
			// La banda pasó sin disparar (p.ej. proceso suspendido).
			s.state = stateIdle
			return
		}
		s.state = stateExecuting
		s.runCycle(ctx, w)
		s.lastWindow = w
		s.state = stateIdle

	case stateExecuting:
		// Un ciclo en vuelo nunca se solapa con otro.
	}
}

// runCycle ejecuta el ciclo y emite estadísticas en la cadencia fija.
func (s *Scheduler) runCycle(ctx context.Context, w domain.WindowID) {
	start := time.Now()
	d := s.trader.RunCycle(ctx, w)
	s.cycles++

	slog.Debug("cycle finished",
		"window", w.Start().Format("15:04"),
		"traded", d.Traded(),
		"skip", string(d.Skip),
		"took", time.Since(start).Round(time.Millisecond),
	)

	if s.cfg.StatsEvery > 0 && s.cycles%s.cfg.StatsEvery == 0 {
		if err := s.trader.notifier.NotifyStats(ctx, s.trader.Governor().State()); err != nil {
			slog.Warn("stats notify failed", "err", err)
		}
	}
}

// RunOnce ejecuta un único ciclo inmediatamente para la siguiente ventana,
// ignorando la banda de disparo. Pensado para -once y pruebas manuales.
func (s *Scheduler) RunOnce(ctx context.Context) domain.TradeDecision {
	boundary := domain.WindowStart(time.Now().UTC()).Add(domain.Period)
	return s.trader.RunCycle(ctx, domain.WindowIDAt(boundary))
}
