package executor

// executor.go — coloca órdenes aprobadas y es el único dueño del ciclo de
// vida Trade/Position: crear al ejecutar, cerrar con contabilidad de PnL.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/risk"
)

// Executor coloca órdenes y transiciona posiciones. Ningún otro componente
// borra una Position ni marca un Trade como cerrado.
type Executor struct {
	exchange ports.Exchange
	store    ports.Store
	params   risk.Params
	notifier ports.TradeNotifier
	paper    bool
}

// Deps agrupa las dependencias del Executor.
type Deps struct {
	Exchange ports.Exchange
	Store    ports.Store
	Notifier ports.TradeNotifier

	// PaperTrade registra trades localmente sin enviar órdenes al venue.
	PaperTrade bool
}

// New crea un Executor.
func New(d Deps) *Executor {
	return &Executor{
		exchange: d.Exchange,
		store:    d.Store,
		params:   risk.Params{Settings: d.Store},
		notifier: d.Notifier,
		paper:    d.PaperTrade,
	}
}

// Execute coloca la orden de una señal y registra el Trade/Position. Si la
// colocación falla no se crea ningún registro durable; si la colocación
// tiene éxito pero la persistencia falla, se reporta como fallo crítico
// (la orden existe en el venue) sin intentar cancelarla.
func (e *Executor) Execute(ctx context.Context, sig domain.TradeSignal) (bool, error) {
	if !sig.Valid() {
		return false, fmt.Errorf("executor.Execute: invalid signal for %s", sig.Ticker)
	}

	priceCents := int(math.Round(sig.EntryPrice * 100))

	if e.paper {
		slog.Info("executor: paper trade, skipping order placement",
			"ticker", sig.Ticker, "side", sig.Side, "size", sig.ProposedSize,
			"price", sig.EntryPrice)
	} else {
		order, err := e.exchange.PlaceOrder(ctx, ports.OrderRequest{
			Ticker:     sig.Ticker,
			Side:       sig.Side,
			Count:      sig.ProposedSize,
			PriceCents: priceCents,
			Type:       "limit",
		})
		if err != nil {
			return false, fmt.Errorf("executor.Execute: place order %s: %w", sig.Ticker, err)
		}
		slog.Info("executor: order placed",
			"ticker", sig.Ticker, "order_id", order.ID, "side", sig.Side,
			"size", sig.ProposedSize, "price_cents", priceCents)
	}

	now := time.Now().UTC()
	trade := domain.Trade{
		ID:          uuid.New(),
		MarketID:    sig.Ticker,
		MarketTitle: sig.MarketTitle,
		Strategy:    sig.Strategy,
		Side:        sig.Side,
		Size:        sig.ProposedSize,
		EntryPrice:  sig.EntryPrice,
		Status:      domain.TradeOpen,
		Reasoning:   sig.Reasoning,
		CreatedAt:   now,
	}
	pos := domain.Position{
		MarketID:      sig.Ticker,
		MarketTitle:   sig.MarketTitle,
		Strategy:      sig.Strategy,
		Side:          sig.Side,
		Size:          sig.ProposedSize,
		EntryPrice:    sig.EntryPrice,
		CurrentPrice:  sig.EntryPrice,
		UnrealizedPnl: decimal.Zero,
		Category:      sig.Category,
		OpenedAt:      now,
	}

	if err := e.store.CreateTradeWithPosition(ctx, trade, pos); err != nil {
		// La orden ya vive en el venue; no se cancela para no duplicar
		// fills, pero la contabilidad local quedó sin registrar.
		slog.Error("executor: CRITICAL: order placed but persistence failed",
			"ticker", sig.Ticker, "err", err)
		return false, fmt.Errorf("executor.Execute: persist trade %s: %w", sig.Ticker, err)
	}

	slog.Info("executor: trade recorded",
		"ticker", sig.Ticker, "strategy", sig.Strategy, "side", sig.Side,
		"size", sig.ProposedSize, "entry", sig.EntryPrice)
	return true, nil
}

// Close cierra una posición: cancela órdenes en reposo best-effort, calcula
// las cifras finales y aplica el cierre como unidad atómica. El notifier se
// dispara en una goroutine desacoplada; su fallo nunca revierte el cierre.
func (e *Executor) Close(ctx context.Context, pos domain.Position, reason string) error {
	exitPrice := pos.CurrentPrice
	if exitPrice <= 0 {
		exitPrice = pos.EntryPrice
	}
	return e.CloseAt(ctx, pos, exitPrice, reason)
}

// CloseAt cierra a un precio de salida explícito. Las liquidaciones del
// venue lo usan: una posición perdedora liquida a 0.00, que Close
// interpretaría como precio ausente.
func (e *Executor) CloseAt(ctx context.Context, pos domain.Position, exitPrice float64, reason string) error {
	e.cancelRestingOrders(ctx, pos.MarketID)

	gross, fees, net := domain.TradePnl(pos.EntryPrice, exitPrice, pos.Size)

	trade, err := e.store.CloseTrade(ctx, ports.TradeClose{
		MarketID:   pos.MarketID,
		ExitPrice:  exitPrice,
		GrossPnl:   gross,
		Fees:       fees,
		NetPnl:     net,
		Reason:     reason,
		ResolvedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("executor: CRITICAL: close commit failed, position stays open",
			"ticker", pos.MarketID, "reason", reason, "err", err)
		return fmt.Errorf("executor.CloseAt: commit %s: %w", pos.MarketID, err)
	}

	slog.Info("executor: position closed",
		"ticker", pos.MarketID, "strategy", pos.Strategy, "reason", reason,
		"exit", exitPrice, "net_pnl", net.StringFixed(2))

	if e.notifier != nil {
		go func(t domain.Trade, r string) {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.notifier.TradeClosed(nctx, t, r); err != nil {
				slog.Warn("executor: trade notification failed",
					"ticker", t.MarketID, "err", err)
			}
		}(trade, reason)
	}
	return nil
}

// cancelRestingOrders cancela las órdenes abiertas del mercado. Un fallo se
// loguea y se sigue: la cancelación nunca bloquea un cierre.
func (e *Executor) cancelRestingOrders(ctx context.Context, ticker string) {
	orders, err := e.exchange.GetOrders(ctx, "open")
	if err != nil {
		slog.Warn("executor: resting orders fetch failed", "ticker", ticker, "err", err)
		return
	}
	for _, o := range orders {
		if o.Ticker != ticker || o.ID == "" {
			continue
		}
		if err := e.exchange.CancelOrder(ctx, o.ID); err != nil {
			slog.Warn("executor: cancel order failed",
				"ticker", ticker, "order_id", o.ID, "err", err)
		}
	}
}

// CancelAllOpenOrders cancela todas las órdenes en reposo, best-effort.
// Se usa en el apagado para no dejar órdenes de market making vivas.
func (e *Executor) CancelAllOpenOrders(ctx context.Context) {
	orders, err := e.exchange.GetOrders(ctx, "open")
	if err != nil {
		slog.Warn("executor: open orders fetch failed on shutdown", "err", err)
		return
	}
	for _, o := range orders {
		if o.ID == "" {
			continue
		}
		if err := e.exchange.CancelOrder(ctx, o.ID); err != nil {
			slog.Warn("executor: cancel on shutdown failed", "order_id", o.ID, "err", err)
		}
	}
	if len(orders) > 0 {
		slog.Info("executor: resting orders cancelled on shutdown", "count", len(orders))
	}
}
