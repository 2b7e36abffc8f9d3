package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side es uno de los dos lados de un mercado binario.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite devuelve el lado contrario.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Market representa un mercado de predicción binario en Kalshi.
// Los precios están normalizados a dólares (0.0 – 1.0); la API los
// devuelve en céntimos y el adapter hace la conversión.
type Market struct {
	Ticker       string
	EventTicker  string
	SeriesTicker string
	Title        string
	Subtitle     string
	Category     string // enriquecido desde el evento padre en GetActiveMarkets
	Status       string // open | closed | resolved | settled
	Result       string // yes | no, solo tras resolución

	YesBid    float64
	YesAsk    float64
	NoBid     float64
	NoAsk     float64
	LastPrice float64

	Volume    float64   // volumen total en USD
	CloseTime time.Time // cero si la API no lo devuelve
}

// HoursToResolution devuelve las horas hasta el cierre del mercado.
// Devuelve -1 si CloseTime no está definido.
func (m Market) HoursToResolution() float64 {
	if m.CloseTime.IsZero() {
		return -1
	}
	return time.Until(m.CloseTime).Hours()
}

// Resolved devuelve true si el venue reporta el mercado como resuelto.
func (m Market) Resolved() bool {
	return m.Status == "resolved" || m.Status == "settled"
}

// SidePrice devuelve el último precio expresado en el marco del lado dado.
// La API cotiza todo en términos YES; para una posición NO el precio
// efectivo es el complemento.
func (m Market) SidePrice(side Side) (float64, bool) {
	p := m.LastPrice
	if p <= 0 {
		p = m.YesAsk
	}
	if p <= 0 {
		return 0, false
	}
	if side == SideNo {
		p = 1.0 - p
	}
	return p, true
}

// PriceLevel es un nivel de precio del orderbook (céntimos, contratos).
type PriceLevel struct {
	Price int
	Qty   int
}

// Orderbook contiene las órdenes bid en reposo de ambos lados.
// Kalshi devuelve solo bids: el ask de un lado se deriva del bid del
// lado contrario (yes_ask = 1 - best_no_bid).
type Orderbook struct {
	Yes []PriceLevel
	No  []PriceLevel
}

// BestBid devuelve el mejor bid del lado dado en dólares.
func (b Orderbook) BestBid(side Side) (float64, bool) {
	levels := b.Yes
	if side == SideNo {
		levels = b.No
	}
	best := -1
	for _, lvl := range levels {
		if lvl.Price > best {
			best = lvl.Price
		}
	}
	if best < 0 {
		return 0, false
	}
	return float64(best) / 100.0, true
}

// BestAsk devuelve el mejor ask del lado dado, derivado del bid contrario.
func (b Orderbook) BestAsk(side Side) (float64, bool) {
	bid, ok := b.BestBid(side.Opposite())
	if !ok {
		return 0, false
	}
	return 1.0 - bid, true
}

// Order es una orden en reposo en el exchange.
type Order struct {
	ID             string
	Ticker         string
	Side           Side
	PriceCents     int
	Count          int
	RemainingCount int
	Status         string
	CreatedAt      time.Time
}

// Fill es una ejecución reportada por el exchange.
type Fill struct {
	OrderID    string
	Ticker     string
	Side       Side
	PriceCents int
	Count      int
	CreatedAt  time.Time
}

// MarketPosition es la posición en un mercado según el venue: contratos con
// signo (positivo = yes) y exposición en dólares. Solo para reconciliación.
type MarketPosition struct {
	Ticker    string
	Contracts int
	Exposure  decimal.Decimal
}
