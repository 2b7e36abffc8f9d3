package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// SettingsReader lee tunables persistidos. Se lee fresco en cada ciclo;
// nunca se cachea entre ciclos.
type SettingsReader interface {
	// GetSetting devuelve el valor de la clave, o fallback si no existe.
	GetSetting(ctx context.Context, key, fallback string) (string, error)
}

// SettingsWriter muta tunables persistidos.
type SettingsWriter interface {
	SetSetting(ctx context.Context, key, value string) error
}

// TradeClose agrupa las cifras finales que CloseTrade aplica atómicamente.
type TradeClose struct {
	MarketID   string
	ExitPrice  float64
	GrossPnl   decimal.Decimal
	Fees       decimal.Decimal
	NetPnl     decimal.Decimal
	Reason     string
	ResolvedAt time.Time
}

// TradeHistory expone consultas de solo lectura sobre trades cerrados.
type TradeHistory interface {
	// RealizedPnlSince suma el net PnL de trades cerrados desde el instante dado.
	RealizedPnlSince(ctx context.Context, since time.Time) (decimal.Decimal, error)

	// RecentTradeTickers devuelve los tickers operados por una estrategia
	// desde el instante dado (para cooldowns).
	RecentTradeTickers(ctx context.Context, strategy string, since time.Time) (map[string]bool, error)
}

// Store es el almacenamiento durable del bot: trades, posiciones, settings
// y recomendaciones. El Executor es el único componente que transiciona
// trades y posiciones.
type Store interface {
	SettingsReader
	SettingsWriter
	TradeHistory

	// CreateTradeWithPosition inserta un Trade abierto y hace upsert de la
	// Position por market id, en una sola transacción: si ya existe una
	// Position para ese mercado el Trade se registra igualmente pero no se
	// duplica la Position.
	CreateTradeWithPosition(ctx context.Context, trade domain.Trade, pos domain.Position) error

	// OpenPositions devuelve todas las posiciones abiertas.
	OpenPositions(ctx context.Context) ([]domain.Position, error)

	// UpdatePositionMark persiste precio actual y PnL no realizado.
	UpdatePositionMark(ctx context.Context, marketID string, currentPrice float64, unrealized decimal.Decimal) error

	// UpdatePositionExpiry rellena expires_at cuando faltaba.
	UpdatePositionExpiry(ctx context.Context, marketID string, expiresAt time.Time) error

	// CloseTrade aplica el cierre como unidad atómica: marca el Trade
	// abierto del mercado como cerrado con sus cifras finales, suma el net
	// PnL al bankroll persistido y borra la Position. Si cualquier paso
	// falla, la transacción entera se revierte y la Position queda abierta.
	// Devuelve el Trade finalizado.
	CloseTrade(ctx context.Context, close TradeClose) (domain.Trade, error)

	// Recomendaciones (ciclo pending → approved|denied).
	InsertRecommendation(ctx context.Context, rec domain.Recommendation) error
	GetRecommendation(ctx context.Context, id uuid.UUID) (domain.Recommendation, error)
	PendingRecommendations(ctx context.Context) ([]domain.Recommendation, error)
	ResolveRecommendation(ctx context.Context, id uuid.UUID, status domain.RecommendationStatus, denialReason string) error

	Close() error
}
