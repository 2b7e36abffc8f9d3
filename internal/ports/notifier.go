package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// CycleReport resume el resultado de un ciclo de scan para el notifier.
type CycleReport struct {
	Raw      int
	Approved int
	Selected []domain.TradeSignal
	Executed int
}

// Notifier reporta el resumen de cada ciclo (consola, etc.).
type Notifier interface {
	Notify(ctx context.Context, report CycleReport) error
}

// TradeNotifier es el sink fire-and-forget hacia el subsistema de reflexión
// externo. Su fallo nunca afecta a un cierre ya comprometido.
type TradeNotifier interface {
	TradeClosed(ctx context.Context, trade domain.Trade, reason string) error
}
