package notify

// trades.go — sink de trades cerrados hacia el subsistema de reflexión.
// Fire-and-forget: el executor ya lo dispara en una goroutine desacoplada
// y nunca espera su resultado en el camino crítico de cierre.

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// TradeLog implementa ports.TradeNotifier escribiendo al log estructurado.
// Sustituible por un cliente HTTP del subsistema de reflexión.
type TradeLog struct{}

// NewTradeLog crea el sink de log.
func NewTradeLog() *TradeLog {
	return &TradeLog{}
}

// TradeClosed registra el trade finalizado.
func (t *TradeLog) TradeClosed(_ context.Context, trade domain.Trade, reason string) error {
	net := "0"
	if trade.NetPnl != nil {
		net = trade.NetPnl.StringFixed(2)
	}
	exit := 0.0
	if trade.ExitPrice != nil {
		exit = *trade.ExitPrice
	}
	slog.Info("trade closed",
		"ticker", trade.MarketID,
		"strategy", trade.Strategy,
		"side", trade.Side,
		"size", trade.Size,
		"entry", trade.EntryPrice,
		"exit", exit,
		"net_pnl", net,
		"reason", reason)
	return nil
}
