package risk

// manager.go — admission control y sizing. Toda señal debe pasar por
// CheckTrade antes de llegar al executor. El Manager nunca muta estado
// durable: solo lee settings y aconseja.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const (
	// Techo duro sobre max_position_pct, aunque el setting suba más.
	hardPositionCapPct = 0.20

	maxTotalExposurePct   = 0.60
	minMarketVolume       = 5000.0
	maxCategoryPositions  = 2
	categoryWindowHours   = 48
	dailyLossWarnHeadroom = 0.25
	halfKellyMultiplier   = 0.5
)

// Candidate es el estado de mercado que el Manager evalúa para una señal.
type Candidate struct {
	Ticker       string
	Side         domain.Side
	ProposedSize int
	EntryPrice   float64
	Volume       float64
	Category     string
}

// Decision es el veredicto de admisión para un candidato.
type Decision struct {
	Approved bool
	Size     int // tamaño aprobado, posiblemente recortado
	Reason   string
}

// Manager aplica las reglas de riesgo en orden fijo y calcula el sizing.
type Manager struct {
	params Params
}

// NewManager crea un Manager que lee sus tunables de settings.
func NewManager(settings ports.SettingsReader) *Manager {
	return &Manager{params: Params{Settings: settings}}
}

// CheckTrade valida un candidato contra las reglas de riesgo en orden fijo.
// La primera violación rechaza, excepto el tope por posición individual,
// que recorta el tamaño en lugar de rechazar.
func (m *Manager) CheckTrade(
	ctx context.Context,
	c Candidate,
	bankroll decimal.Decimal,
	openPositions []domain.Position,
) Decision {
	// Regla 1: liquidez mínima
	if c.Volume < minMarketVolume {
		reason := fmt.Sprintf("volume $%.0f below minimum $%.0f", c.Volume, minMarketVolume)
		slog.Warn("risk: rejected", "ticker", c.Ticker, "reason", reason)
		return Decision{Approved: false, Reason: reason}
	}

	// Regla 2: exposición total
	exposure := totalExposure(openPositions, bankroll)
	if exposure >= maxTotalExposurePct {
		reason := fmt.Sprintf("total exposure %.1f%% at or above %.0f%% limit",
			exposure*100, maxTotalExposurePct*100)
		slog.Warn("risk: rejected", "ticker", c.Ticker, "reason", reason)
		return Decision{Approved: false, Reason: reason}
	}

	// Regla 3: tope por posición individual — recorta, no rechaza
	size := c.ProposedSize
	maxCost := m.MaxPositionSize(ctx, bankroll)
	entry := c.EntryPrice
	if entry <= 0 {
		entry = 0.5
	}
	cost := entry * float64(size)
	if cost > maxCost {
		size = int(maxCost / entry)
		if size < 1 {
			size = 1
		}
		slog.Info("risk: clamped size",
			"ticker", c.Ticker, "contracts", size, "max_position", fmt.Sprintf("$%.2f", maxCost))
	}

	// Regla 4: correlación — posiciones de la misma categoría en la ventana
	recent := countRecentCategoryPositions(openPositions, c.Category, time.Now().UTC())
	if recent >= maxCategoryPositions {
		reason := fmt.Sprintf("already %d positions in category %q within %dh",
			recent, c.Category, categoryWindowHours)
		slog.Warn("risk: rejected", "ticker", c.Ticker, "reason", reason)
		return Decision{Approved: false, Reason: reason}
	}

	return Decision{Approved: true, Size: size, Reason: "all risk checks passed"}
}

// KellySize calcula el número óptimo de contratos con half-Kelly.
//
// Kelly: f = (b·p - q) / b, con b = 1/price - 1, q = 1 - p.
// f no positivo → 0 contratos. Con f positivo se aplica el multiplicador
// 0.5, se convierte la fracción de bankroll a contratos dividiendo por el
// precio y se trunca, con mínimo de 1.
func (m *Manager) KellySize(ourProbability, price float64, bankroll decimal.Decimal) int {
	if price <= 0 || price >= 1 {
		return 0
	}

	b := 1.0/price - 1.0
	p := ourProbability
	q := 1.0 - p

	f := (b*p - q) / b
	if f <= 0 {
		return 0
	}

	amount := bankroll.InexactFloat64() * f * halfKellyMultiplier
	contracts := int(math.Floor(amount / price))
	if contracts < 1 {
		contracts = 1
	}
	slog.Debug("risk: kelly sizing",
		"p", p, "price", price, "b", b, "f", f, "contracts", contracts)
	return contracts
}

// MaxPositionSize devuelve el coste máximo en dólares de una posición.
func (m *Manager) MaxPositionSize(ctx context.Context, bankroll decimal.Decimal) float64 {
	pct := m.params.Float(ctx, "max_position_pct")
	if pct > hardPositionCapPct {
		pct = hardPositionCapPct
	}
	return bankroll.InexactFloat64() * pct
}

// LossCheck es el resultado de evaluar el límite de pérdida diaria.
type LossCheck struct {
	Halt     bool
	TodayPnl decimal.Decimal
	Limit    decimal.Decimal
}

// CheckDailyLossLimit suma el net PnL realizado desde medianoche UTC y lo
// compara con bankroll × daily_loss_limit_pct. Si se alcanza, devuelve
// Halt=true: el caller persiste el kill switch. Si el margen restante cae
// por debajo del 25% del límite, avisa sin parar.
func (m *Manager) CheckDailyLossLimit(
	ctx context.Context,
	history ports.TradeHistory,
	bankroll decimal.Decimal,
) (LossCheck, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	todayPnl, err := history.RealizedPnlSince(ctx, midnight)
	if err != nil {
		return LossCheck{}, fmt.Errorf("risk.CheckDailyLossLimit: realized pnl: %w", err)
	}

	pct := decimal.NewFromFloat(m.params.Float(ctx, "daily_loss_limit_pct"))
	limit := bankroll.Mul(pct)
	check := LossCheck{TodayPnl: todayPnl, Limit: limit}

	if todayPnl.LessThanOrEqual(limit.Neg()) {
		check.Halt = true
		slog.Error("risk: daily loss limit hit",
			"today_pnl", todayPnl.StringFixed(2),
			"limit", limit.Neg().StringFixed(2),
			"bankroll", bankroll.StringFixed(2))
		return check, nil
	}

	remaining := limit.Add(todayPnl)
	warnAt := limit.Mul(decimal.NewFromFloat(dailyLossWarnHeadroom))
	if remaining.LessThan(warnAt) {
		slog.Warn("risk: approaching daily loss limit",
			"today_pnl", todayPnl.StringFixed(2),
			"remaining", remaining.StringFixed(2))
	}
	return check, nil
}

// totalExposure devuelve la exposición abierta como fracción del bankroll.
func totalExposure(positions []domain.Position, bankroll decimal.Decimal) float64 {
	if len(positions) == 0 || !bankroll.IsPositive() {
		return 0
	}
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.EntryCost())
	}
	return total.Div(bankroll).InexactFloat64()
}

// countRecentCategoryPositions cuenta posiciones de la misma categoría
// abiertas dentro de la ventana de correlación.
func countRecentCategoryPositions(positions []domain.Position, category string, now time.Time) int {
	if category == "" {
		return 0
	}
	cutoff := now.Add(-categoryWindowHours * time.Hour)
	count := 0
	for _, p := range positions {
		if p.Category == category && p.OpenedAt.After(cutoff) {
			count++
		}
	}
	return count
}
