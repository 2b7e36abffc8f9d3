package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// MarketsQuery son los filtros del listado de mercados.
type MarketsQuery struct {
	Status       string
	Category     string
	SeriesTicker string
	Limit        int
}

// MarketProvider expone el acceso de solo lectura a mercados y orderbooks.
type MarketProvider interface {
	// GetMarkets lista mercados con filtros opcionales, paginando por cursor.
	GetMarkets(ctx context.Context, q MarketsQuery) ([]domain.Market, error)

	// GetActiveMarkets lista mercados activos vía eventos con mercados
	// anidados, aplanados y etiquetados con la categoría del evento padre.
	GetActiveMarkets(ctx context.Context, status string, limit int) ([]domain.Market, error)

	// GetMarket devuelve un mercado por ticker.
	GetMarket(ctx context.Context, ticker string) (domain.Market, error)

	// GetOrderbook devuelve el libro de órdenes de un mercado.
	GetOrderbook(ctx context.Context, ticker string) (domain.Orderbook, error)
}

// OrderRequest describe una orden a colocar.
type OrderRequest struct {
	Ticker     string
	Side       domain.Side
	Count      int
	PriceCents int    // precio del lado pedido, en céntimos
	Type       string // "limit" | "market"
}

// OrderExecutor coloca y cancela órdenes reales y consulta el portfolio.
type OrderExecutor interface {
	// PlaceOrder envía una orden. Nunca reintenta una colocación fallida
	// como orden nueva: un fallo se reporta al caller.
	PlaceOrder(ctx context.Context, req OrderRequest) (domain.Order, error)

	// CancelOrder cancela una orden abierta por su id.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrders lista órdenes filtradas por estado.
	GetOrders(ctx context.Context, status string) ([]domain.Order, error)

	// GetBalance devuelve el balance disponible en dólares.
	GetBalance(ctx context.Context) (decimal.Decimal, error)

	// GetFills lista ejecuciones, opcionalmente filtradas por ticker.
	GetFills(ctx context.Context, ticker string) ([]domain.Fill, error)

	// GetPositions devuelve las posiciones según el venue. Solo se usa para
	// reconciliación: el store local es la fuente de verdad del bookkeeping.
	GetPositions(ctx context.Context) ([]domain.MarketPosition, error)
}

// Exchange agrupa la superficie completa del cliente del venue.
type Exchange interface {
	MarketProvider
	OrderExecutor
	Close() error
}
