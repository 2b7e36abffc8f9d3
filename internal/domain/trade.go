package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeePerContract es la comisión del venue por contrato y por pata
// (entrada o salida). Un round-trip cuesta FeePerContract × size × 2.
var FeePerContract = decimal.NewFromFloat(0.07)

// TradeStatus es el estado del ciclo de vida de un Trade.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// Trade es el registro durable de una operación. Se inserta abierto al
// ejecutar una señal y se actualiza (nunca se borra) al cerrar.
// Los importes monetarios usan decimal para que netPnl == grossPnl - fees
// sea exacto, sin redondeos de coma flotante.
type Trade struct {
	ID          uuid.UUID
	MarketID    string
	MarketTitle string
	Strategy    string
	Side        Side
	Size        int
	EntryPrice  float64
	ExitPrice   *float64
	GrossPnl    *decimal.Decimal
	Fees        *decimal.Decimal
	NetPnl      *decimal.Decimal
	Status      TradeStatus
	Reasoning   string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Position refleja la exposición actual en un mercado. Existe como máximo
// una Position por market id; se crea junto con su Trade y se borra al cerrar.
type Position struct {
	MarketID      string
	MarketTitle   string
	Strategy      string
	Side          Side
	Size          int
	EntryPrice    float64
	CurrentPrice  float64
	UnrealizedPnl decimal.Decimal
	Category      string
	OpenedAt      time.Time
	ExpiresAt     *time.Time
}

// EntryCost devuelve el coste de entrada de la posición en dólares.
func (p Position) EntryCost() decimal.Decimal {
	return decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromInt(int64(p.Size)))
}

// PnlAt devuelve el PnL no realizado a un precio dado, en el marco del
// lado que se mantiene.
func (p Position) PnlAt(currentPrice float64) decimal.Decimal {
	return decimal.NewFromFloat(currentPrice).
		Sub(decimal.NewFromFloat(p.EntryPrice)).
		Mul(decimal.NewFromInt(int64(p.Size)))
}

// TradePnl calcula las tres cifras finales de un cierre: bruto, fees y neto.
// grossPnl = (exit - entry) × size; fees = FeePerContract × size × 2.
func TradePnl(entryPrice, exitPrice float64, size int) (gross, fees, net decimal.Decimal) {
	n := decimal.NewFromInt(int64(size))
	gross = decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(entryPrice)).Mul(n)
	fees = FeePerContract.Mul(n).Mul(decimal.NewFromInt(2))
	net = gross.Sub(fees)
	return gross, fees, net
}

// Setting es un par clave/valor persistido para los tunables del proceso.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Claves de settings conocidas por el core.
const (
	SettingBotEnabled = "bot_enabled"
	SettingBankroll   = "current_bankroll"
)

// RecommendationStatus es el estado del ciclo de vida de una Recommendation.
type RecommendationStatus string

const (
	RecommendationPending  RecommendationStatus = "pending"
	RecommendationApproved RecommendationStatus = "approved"
	RecommendationDenied   RecommendationStatus = "denied"
	RecommendationExpired  RecommendationStatus = "expired"
)

// Recommendation es una propuesta de cambio de parámetro producida por el
// subsistema de reflexión externo. La aprobación valida el valor contra los
// guardrails antes de escribirlo en settings.
type Recommendation struct {
	ID            uuid.UUID
	SettingKey    string
	CurrentValue  string
	ProposedValue string
	Reasoning     string
	Trigger       string
	Status        RecommendationStatus
	DenialReason  string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}
