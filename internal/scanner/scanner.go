package scanner

// scanner.go — ciclo principal de escaneo: kill switches, ejecución aislada
// de estrategias, filtro de riesgo y ejecución de las mejores señales.

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/risk"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

const (
	maxTradesPerCycle = 5

	// Las estrategias ya filtran volumen con sus propios mínimos; el gate
	// de riesgo recibe un volumen sintético que pasa la regla 1.
	assumedSignalVolume = 10000.0
)

// Trader ejecuta una señal aprobada. Devuelve true si colocó la orden.
type Trader interface {
	Execute(ctx context.Context, sig domain.TradeSignal) (bool, error)
}

// Scanner orquesta un ciclo completo de búsqueda y ejecución de señales.
type Scanner struct {
	store     ports.Store
	exchange  ports.Exchange
	registry  *strategy.Registry
	riskMgr   *risk.Manager
	trader    Trader
	headlines ports.HeadlineSource
	notifier  ports.Notifier
	bankroll  decimal.Decimal
}

// Deps agrupa las dependencias del Scanner.
type Deps struct {
	Store           ports.Store
	Exchange        ports.Exchange
	Registry        *strategy.Registry
	Risk            *risk.Manager
	Trader          Trader
	Headlines       ports.HeadlineSource
	Notifier        ports.Notifier
	InitialBankroll decimal.Decimal
}

// New crea un Scanner listo para correr ciclos.
func New(d Deps) *Scanner {
	return &Scanner{
		store:     d.Store,
		exchange:  d.Exchange,
		registry:  d.Registry,
		riskMgr:   d.Risk,
		trader:    d.Trader,
		headlines: d.Headlines,
		notifier:  d.Notifier,
		bankroll:  d.InitialBankroll,
	}
}

// Run ejecuta ciclos cada `interval` hasta que el contexto se cancele. Un
// ciclo que se alarga más que el intervalo simplemente salta ticks.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("scanner: started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scanner: stopped")
			return
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				slog.Error("scanner: cycle failed", "err", err)
			}
		}
	}
}

// RunCycle corre un ciclo completo de escaneo.
func (s *Scanner) RunCycle(ctx context.Context) error {
	start := time.Now()

	// Kill switch de entorno: gana sobre todo lo demás.
	if env := os.Getenv("BOT_ENABLED"); env != "" && !parseBool(env) {
		slog.Info("scanner: disabled via BOT_ENABLED env")
		return nil
	}

	enabled, err := s.store.GetSetting(ctx, domain.SettingBotEnabled, "true")
	if err != nil {
		return fmt.Errorf("scanner.RunCycle: read bot_enabled: %w", err)
	}
	if !parseBool(enabled) {
		slog.Info("scanner: disabled via setting")
		return nil
	}

	bankroll, err := s.currentBankroll(ctx)
	if err != nil {
		return fmt.Errorf("scanner.RunCycle: bankroll: %w", err)
	}

	loss, err := s.riskMgr.CheckDailyLossLimit(ctx, s.store, bankroll)
	if err != nil {
		return fmt.Errorf("scanner.RunCycle: daily loss check: %w", err)
	}
	if loss.Halt {
		slog.Error("scanner: daily loss limit reached, halting bot",
			"today_pnl", loss.TodayPnl, "limit", loss.Limit)
		if err := s.store.SetSetting(ctx, domain.SettingBotEnabled, "false"); err != nil {
			slog.Error("scanner: persist halt failed", "err", err)
		}
		return nil
	}

	positions, err := s.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("scanner.RunCycle: open positions: %w", err)
	}
	orders, err := s.exchange.GetOrders(ctx, "open")
	if err != nil {
		slog.Warn("scanner: open orders fetch failed", "err", err)
		orders = nil
	}

	// Inventario MM descompensado: cancelar ambos lados antes de escanear.
	if ids, err := strategy.ImbalancedOrders(ctx, s.exchange); err != nil {
		slog.Warn("scanner: imbalance check failed", "err", err)
	} else {
		for _, id := range ids {
			if err := s.exchange.CancelOrder(ctx, id); err != nil {
				slog.Warn("scanner: cancel imbalanced order failed", "order_id", id, "err", err)
			}
		}
	}

	sc := strategy.ScanContext{
		Markets:      s.exchange,
		OpenTickers:  make(map[string]bool, len(positions)),
		OrderTickers: make(map[string]bool, len(orders)),
		History:      s.store,
	}
	for _, p := range positions {
		sc.OpenTickers[p.MarketID] = true
	}
	for _, o := range orders {
		sc.OrderTickers[o.Ticker] = true
	}
	if s.headlines != nil {
		heads, err := s.headlines.PendingHeadlines(ctx)
		if err != nil {
			slog.Warn("scanner: headlines fetch failed", "err", err)
		} else {
			sc.Headlines = heads
		}
	}

	raw := s.collectSignals(ctx, sc)

	approved := s.riskFilter(ctx, raw, bankroll, positions)

	ranked := Rank(FilterMinimumEdge(approved))
	selected := Top(ranked, maxTradesPerCycle)

	executed := 0
	for _, sig := range selected {
		ok, err := s.trader.Execute(ctx, sig)
		if err != nil {
			slog.Error("scanner: execute failed",
				"ticker", sig.Ticker, "strategy", sig.Strategy, "err", err)
			continue
		}
		if ok {
			executed++
		}
	}

	report := ports.CycleReport{
		Raw:      len(raw),
		Approved: len(approved),
		Selected: selected,
		Executed: executed,
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, report); err != nil {
			slog.Warn("scanner: notify failed", "err", err)
		}
	}

	slog.Info("scanner: cycle complete",
		"raw", len(raw), "approved", len(approved),
		"executed", executed, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// collectSignals corre cada estrategia habilitada aislando sus fallos: una
// estrategia que devuelve error no tumba el ciclo.
func (s *Scanner) collectSignals(ctx context.Context, sc strategy.ScanContext) []domain.TradeSignal {
	var all []domain.TradeSignal
	for _, prod := range s.registry.Producers() {
		enabled, err := s.store.GetSetting(ctx, prod.EnabledKey(), "true")
		if err != nil {
			slog.Warn("scanner: enabled flag read failed", "strategy", prod.Name(), "err", err)
		}
		if !parseBool(enabled) {
			continue
		}

		signals, err := prod.Scan(ctx, sc)
		if err != nil {
			slog.Error("scanner: strategy failed", "strategy", prod.Name(), "err", err)
			continue
		}
		for _, sig := range signals {
			if !sig.Valid() {
				slog.Debug("scanner: invalid signal dropped",
					"strategy", prod.Name(), "ticker", sig.Ticker)
				continue
			}
			all = append(all, sig)
		}
	}
	return all
}

// riskFilter pasa cada señal por el gate de riesgo, ajustando tamaños.
func (s *Scanner) riskFilter(ctx context.Context, signals []domain.TradeSignal, bankroll decimal.Decimal, positions []domain.Position) []domain.TradeSignal {
	var approved []domain.TradeSignal
	for _, sig := range signals {
		dec := s.riskMgr.CheckTrade(ctx, risk.Candidate{
			Ticker:       sig.Ticker,
			Side:         sig.Side,
			ProposedSize: sig.ProposedSize,
			EntryPrice:   sig.EntryPrice,
			Volume:       assumedSignalVolume,
			Category:     sig.Category,
		}, bankroll, positions)
		if !dec.Approved {
			slog.Info("scanner: signal rejected by risk",
				"ticker", sig.Ticker, "strategy", sig.Strategy, "reason", dec.Reason)
			continue
		}
		sig.ProposedSize = dec.Size
		approved = append(approved, sig)
	}
	return approved
}

func (s *Scanner) currentBankroll(ctx context.Context) (decimal.Decimal, error) {
	fallback := s.bankroll.String()
	raw, err := s.store.GetSetting(ctx, domain.SettingBankroll, fallback)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse bankroll %q: %w", raw, err)
	}
	return v, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
