package domain

import "time"

// Market representa un mercado binario Up/Down de 15 minutos en Polymarket.
type Market struct {
	ConditionID string
	Question    string
	Slug        string
	WindowID    WindowID  // ventana que resuelve este mercado
	EndDate     time.Time // momento de resolución (fin de la ventana)
	Tokens      [2]Token
	Active      bool
	Closed      bool
	NegRisk     bool
}

// Token es uno de los dos lados del mercado (Up/Down).
type Token struct {
	TokenID string
	Outcome string  // "Up" | "Down"
	Price   float64 // último precio mid del CLOB
}

// UpToken devuelve el token del lado Up del mercado.
func (m Market) UpToken() Token {
	for _, t := range m.Tokens {
		if t.Outcome == "Up" {
			return t
		}
	}
	return m.Tokens[0]
}

// DownToken devuelve el token del lado Down del mercado.
func (m Market) DownToken() Token {
	for _, t := range m.Tokens {
		if t.Outcome == "Down" {
			return t
		}
	}
	return m.Tokens[1]
}

// TokenFor devuelve el token correspondiente a la dirección dada.
func (m Market) TokenFor(d Direction) Token {
	if d == DirectionDown {
		return m.DownToken()
	}
	return m.UpToken()
}

// Tradeable devuelve true si el mercado sigue abierto y su ventana no ha
// terminado en el instante dado.
func (m Market) Tradeable(now time.Time) bool {
	if !m.Active || m.Closed {
		return false
	}
	return m.EndDate.IsZero() || now.Before(m.EndDate)
}

// PlaceOrderRequest son los parámetros para enviar una orden al CLOB.
type PlaceOrderRequest struct {
	TokenID string
	Price   float64 // precio máximo aceptado por share
	Size    float64 // USDC totales
	NegRisk bool
}

// PlacedOrder es la respuesta del CLOB tras enviar una orden.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string // matched | live | delayed | unmatched
	TakenAmount float64
	MadeAmount  float64
}

// Matched devuelve true si la orden cruzó inmediatamente.
func (p PlacedOrder) Matched() bool {
	return p.Status == "matched"
}
