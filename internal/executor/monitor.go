package executor

// monitor.go — ciclo de monitoreo de posiciones abiertas: actualiza marks,
// evalúa reglas de salida en orden de prioridad y dispara cierres.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Umbral de alerta (sin cierre) para movimiento adverso en posiciones bond,
// deliberadamente distinto del stop-loss.
const bondAlertDropCents = 0.10

// Tiempos de pre-expiración por defecto para estrategias sin tunable propio.
const defaultPreExpiry = 60 * time.Second

// RunMonitor ejecuta ciclos de monitoreo cada `interval` hasta cancelación.
// Los ticks que pillan un ciclo en curso se saltan, nunca se encolan.
func (e *Executor) RunMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("monitor: started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor: stopped")
			return
		case <-ticker.C:
			if err := e.CheckPositions(ctx); err != nil {
				slog.Error("monitor: cycle failed", "err", err)
			}
		}
	}
}

// CheckPositions recorre las posiciones abiertas una a una. Un fallo de
// fetch en un mercado salta esa posición en este tick y sigue con el resto.
func (e *Executor) CheckPositions(ctx context.Context) error {
	positions, err := e.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("executor.CheckPositions: load positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	for _, pos := range positions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.checkPosition(ctx, pos)
	}
	return nil
}

func (e *Executor) checkPosition(ctx context.Context, pos domain.Position) {
	market, err := e.exchange.GetMarket(ctx, pos.MarketID)
	if err != nil {
		slog.Warn("monitor: market fetch failed, skipping",
			"ticker", pos.MarketID, "err", err)
		return
	}

	// Resolución del venue: gana a cualquier otra regla de salida.
	if market.Resolved() {
		settle := 0.0
		if domain.Side(market.Result) == pos.Side {
			settle = 1.0
		}
		reason := fmt.Sprintf("resolved_%s", market.Result)
		if err := e.CloseAt(ctx, pos, settle, reason); err != nil {
			slog.Error("monitor: close failed", "ticker", pos.MarketID, "err", err)
		}
		return
	}

	current, ok := market.SidePrice(pos.Side)
	if !ok {
		return
	}

	pos.CurrentPrice = current
	pos.UnrealizedPnl = pos.PnlAt(current)
	if err := e.store.UpdatePositionMark(ctx, pos.MarketID, current, pos.UnrealizedPnl); err != nil {
		slog.Warn("monitor: mark update failed", "ticker", pos.MarketID, "err", err)
	}

	if pos.ExpiresAt == nil && !market.CloseTime.IsZero() {
		if err := e.store.UpdatePositionExpiry(ctx, pos.MarketID, market.CloseTime); err != nil {
			slog.Warn("monitor: expiry backfill failed", "ticker", pos.MarketID, "err", err)
		} else {
			ct := market.CloseTime
			pos.ExpiresAt = &ct
		}
	}

	if reason, fire := e.exitReason(ctx, pos); fire {
		if err := e.Close(ctx, pos, reason); err != nil {
			slog.Error("monitor: close failed", "ticker", pos.MarketID, "err", err)
		}
		return
	}

	// Sin salida: las posiciones bond solo alertan ante un movimiento
	// adverso grande, sin cambiar estado.
	if pos.Strategy == "bond" && pos.EntryPrice-current >= bondAlertDropCents {
		slog.Error("monitor: ALERT: bond position moving against us",
			"ticker", pos.MarketID, "entry", pos.EntryPrice, "current", current)
	}
}

// exitReason evalúa las reglas de salida en orden fijo de prioridad y
// devuelve la primera que aplica.
func (e *Executor) exitReason(ctx context.Context, pos domain.Position) (string, bool) {
	// 1. Pre-expiración por estrategia.
	if pos.ExpiresAt != nil {
		remaining := time.Until(*pos.ExpiresAt)
		if remaining <= e.preExpiryWindow(ctx, pos.Strategy) {
			return "pre_expiry_exit", true
		}
	}

	entryCost := pos.EntryCost()

	// 2. Stop-loss: caída absoluta en céntimos para bonds, fracción del
	// coste de entrada para el resto.
	if pos.Strategy == "bond" {
		drop := e.params.Float(ctx, "bond_stop_loss_cents")
		if pos.EntryPrice-pos.CurrentPrice >= drop {
			return "stop_loss", true
		}
	} else {
		threshold := e.params.Float(ctx, "stop_loss_threshold")
		maxLoss := entryCost.Mul(decimal.NewFromFloat(threshold)).Neg()
		if pos.UnrealizedPnl.LessThanOrEqual(maxLoss) && entryCost.IsPositive() {
			return "stop_loss", true
		}
	}

	// 3. Take-profit para la estrategia de momentum de BTC.
	if pos.Strategy == "btc_15min" {
		pct := e.params.Float(ctx, "btc_take_profit_pct")
		target := entryCost.Mul(decimal.NewFromFloat(pct))
		if entryCost.IsPositive() && pos.UnrealizedPnl.GreaterThanOrEqual(target) {
			return "take_profit", true
		}
	}

	// 4. Límite de tiempo en cartera para market making.
	if pos.Strategy == "market_making" {
		maxHold := time.Duration(e.params.Int(ctx, "mm_max_hold_hours")) * time.Hour
		if time.Since(pos.OpenedAt) >= maxHold {
			return "time_limit", true
		}
	}

	return "", false
}

func (e *Executor) preExpiryWindow(ctx context.Context, strategy string) time.Duration {
	var key string
	switch strategy {
	case "bond":
		key = "bond_pre_expiry_sec"
	case "market_making":
		key = "mm_pre_expiry_sec"
	case "btc_15min":
		key = "btc_pre_expiry_sec"
	default:
		return defaultPreExpiry
	}
	return time.Duration(e.params.Int(ctx, key)) * time.Second
}
