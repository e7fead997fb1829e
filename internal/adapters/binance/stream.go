// Package binance es la fuente primaria de precios: klines sub-período por
// websocket y el histórico REST para sembrar el agregador al arrancar.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lod61/poly-model-auto-trading/internal/backoff"
	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

const (
	defaultStreamBase = "wss://stream.binance.com:9443/ws"
	defaultSymbol     = "btcusdt"
	defaultInterval   = "1m"

	dialTimeout  = 10 * time.Second
	readDeadline = 90 * time.Second // Binance manda ping cada ~20s
	tickBuffer   = 256
)

// Stream implementa ports.TickStream sobre el stream de klines de Binance.
// El read loop parsea cada mensaje y lo empuja al canal de ticks; el
// agregador consume del canal sin tocar nunca la conexión.
type Stream struct {
	url     string
	ticks   chan domain.Tick
	backoff backoff.Policy

	// El stream re-emite el mismo kline varias veces por intervalo con el
	// volumen acumulado hasta ese momento. Para que la vela sellada sume el
	// volumen real (y cuadre con el histórico REST), cada tick lleva solo el
	// incremento respecto a la emisión anterior del mismo kline.
	lastKlineOpen   time.Time
	lastKlineVolume float64
}

// NewStream crea un Stream para el símbolo e intervalo dados.
// Con streamBase vacío usa el endpoint de producción.
func NewStream(streamBase, symbol, interval string) *Stream {
	if streamBase == "" {
		streamBase = defaultStreamBase
	}
	if symbol == "" {
		symbol = defaultSymbol
	}
	if interval == "" {
		interval = defaultInterval
	}
	return &Stream{
		url:     fmt.Sprintf("%s/%s@kline_%s", streamBase, symbol, interval),
		ticks:   make(chan domain.Tick, tickBuffer),
		backoff: backoff.Default(),
	}
}

// Ticks devuelve el canal de ticks parseados.
func (s *Stream) Ticks() <-chan domain.Tick {
	return s.ticks
}

// Run mantiene la conexión viva hasta que el contexto se cancele.
// Cada desconexión reconecta con backoff; mientras tanto el resto del
// sistema sigue en modo degradado (el agregador reporta unhealthy por
// staleness, no se bloquea nada).
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.ticks)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := s.dial(ctx)
		if err != nil {
			attempt++
			slog.Warn("binance stream: connect failed",
				"attempt", attempt,
				"err", err,
			)
			if err := s.backoff.Sleep(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		slog.Info("binance stream: connected", "url", s.url)
		attempt = 0

		err = s.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("binance stream: disconnected, reconnecting", "err", err)
		attempt++
		if err := s.backoff.Sleep(ctx, attempt); err != nil {
			return err
		}
	}
}

// dial abre la conexión con timeout fijo. Superado el timeout el intento
// se aborta y se reintenta; nunca se espera indefinidamente.
func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		if dialCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("dial %s: %w", s.url, domain.ErrConnectionTimeout)
		}
		return nil, fmt.Errorf("dial %s: %w", s.url, err)
	}
	return conn, nil
}

// readLoop lee mensajes hasta error de conexión o cancelación.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", domain.ErrConnection)
		}

		tick, ok := parseKlineMessage(msg)
		if !ok {
			continue
		}
		tick = s.deltaVolume(tick)

		select {
		case s.ticks <- tick:
		default:
			// El consumidor va por detrás; tirar el tick más viejo es
			// preferible a bloquear el read loop.
			select {
			case <-s.ticks:
			default:
			}
			s.ticks <- tick
		}
	}
}

// deltaVolume sustituye el volumen acumulado del kline por su incremento
// respecto a la emisión anterior. Un kline nuevo aporta su acumulado entero;
// un acumulado que retrocede (reconexión a mitad de kline) aporta 0.
func (s *Stream) deltaVolume(t domain.Tick) domain.Tick {
	cum := t.Volume
	if t.Time.Equal(s.lastKlineOpen) {
		delta := cum - s.lastKlineVolume
		if delta < 0 {
			delta = 0
		}
		t.Volume = delta
	}
	s.lastKlineOpen = t.Time
	s.lastKlineVolume = cum
	return t
}

// klineMessage es el payload del stream <symbol>@kline_<interval>.
type klineMessage struct {
	EventType string       `json:"e"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime int64  `json:"t"` // ms
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"` // solo optimización: las ventanas se derivan del timestamp
}

// parseKlineMessage convierte un mensaje del stream en un tick.
// Devuelve false para frames que no son klines (subs, pings de app, etc.).
func parseKlineMessage(msg []byte) (domain.Tick, bool) {
	var m klineMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return domain.Tick{}, false
	}
	if m.EventType != "kline" || m.Kline.OpenTime == 0 {
		return domain.Tick{}, false
	}
	return domain.Tick{
		Time:   time.UnixMilli(m.Kline.OpenTime).UTC(),
		Open:   domain.ParsePrice(m.Kline.Open),
		High:   domain.ParsePrice(m.Kline.High),
		Low:    domain.ParsePrice(m.Kline.Low),
		Close:  domain.ParsePrice(m.Kline.Close),
		Volume: domain.ParsePrice(m.Kline.Volume),
	}, true
}
