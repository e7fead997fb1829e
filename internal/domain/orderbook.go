package domain

import "strconv"

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// AskLiquidityUSDC devuelve el valor en USDC (size × price) disponible en
// el lado ask a precios dentro de bestAsk × (1 + maxSlippage). Es la
// liquidez que una orden taker puede tomar sin pagar más slippage que el
// tolerado.
func (ob OrderBook) AskLiquidityUSDC(maxSlippage float64) float64 {
	best := ob.BestAsk()
	if best == 0 {
		return 0
	}
	limit := best * (1 + maxSlippage)
	var total float64
	for _, a := range ob.Asks {
		if a.Price > limit {
			break
		}
		total += a.Size * a.Price
	}
	return total
}

// CanAbsorb devuelve true si el lado ask puede absorber stakeUSD dentro de
// la tolerancia de slippage dada.
func (ob OrderBook) CanAbsorb(stakeUSD, maxSlippage float64) bool {
	if stakeUSD <= 0 {
		return false
	}
	return ob.AskLiquidityUSDC(maxSlippage) >= stakeUSD
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
