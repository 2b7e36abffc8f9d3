package strategy

// marketmaking.go — provee liquidez en ambos lados de mercados líquidos y
// captura el spread. Emite señales YES/NO emparejadas, una tick por dentro
// del mejor bid de cada lado.

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const (
	mmConfidence   = 0.70
	mmContractSize = 15
	mmMinHours     = 4.0
	mmTick         = 0.01

	// Cancelar el par si un lado se llena > 60% sin el otro.
	mmImbalanceThreshold = 0.60

	mmDefaultMinSpread = 0.02
	mmDefaultMinVol    = 5000
)

// MarketMakingConfig son los tunables de la estrategia de market making.
type MarketMakingConfig struct {
	MinSpread float64
	MinVolume float64
}

// MarketMaking coloca pares de órdenes límite en mercados con spread ancho.
type MarketMaking struct {
	cfg MarketMakingConfig
}

// NewMarketMaking crea la estrategia con defaults para los campos en cero.
func NewMarketMaking(cfg MarketMakingConfig) *MarketMaking {
	if cfg.MinSpread <= 0 {
		cfg.MinSpread = mmDefaultMinSpread
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = mmDefaultMinVol
	}
	return &MarketMaking{cfg: cfg}
}

func (mm *MarketMaking) Name() string       { return "market_making" }
func (mm *MarketMaking) EnabledKey() string { return "market_making_enabled" }

// Scan devuelve pares de señales YES/NO para mercados que califican.
func (mm *MarketMaking) Scan(ctx context.Context, sc ScanContext) ([]domain.TradeSignal, error) {
	markets, err := sc.Markets.GetActiveMarkets(ctx, "open", 500)
	if err != nil {
		return nil, fmt.Errorf("strategy.MarketMaking: fetch markets: %w", err)
	}
	slog.Info("market_making: scanning", "markets", len(markets))

	var signals []domain.TradeSignal
	for _, m := range markets {
		pair := mm.evaluate(ctx, sc, m)
		signals = append(signals, pair...)
	}
	slog.Info("market_making: scan complete", "signals", len(signals))
	return signals, nil
}

// evaluate devuelve [señal yes, señal no] si el mercado califica, o nada.
func (mm *MarketMaking) evaluate(ctx context.Context, sc ScanContext, m domain.Market) []domain.TradeSignal {
	if m.Ticker == "" || sc.OpenTickers[m.Ticker] || sc.OrderTickers[m.Ticker] {
		return nil
	}
	if m.Volume < mm.cfg.MinVolume {
		return nil
	}

	hours := m.HoursToResolution()
	if hours < mmMinHours {
		return nil
	}

	book, err := sc.Markets.GetOrderbook(ctx, m.Ticker)
	if err != nil {
		slog.Debug("market_making: orderbook fetch failed", "ticker", m.Ticker, "err", err)
		return nil
	}

	yesBid, okYB := book.BestBid(domain.SideYes)
	noBid, okNB := book.BestBid(domain.SideNo)
	yesAsk, okYA := book.BestAsk(domain.SideYes)
	noAsk, okNA := book.BestAsk(domain.SideNo)
	if !okYB || !okNB || !okYA || !okNA {
		return nil
	}

	// En un binario yes + no ≈ 1.0; el spread es el hueco entre asks.
	spread := (yesAsk + noAsk) - 1.0
	if spread < mm.cfg.MinSpread {
		return nil
	}

	ourYes := math.Round((yesBid+mmTick)*100) / 100
	ourNo := math.Round((noBid+mmTick)*100) / 100

	build := func(side domain.Side, entry float64) domain.TradeSignal {
		return domain.TradeSignal{
			Ticker:            m.Ticker,
			MarketTitle:       m.Title,
			Strategy:          mm.Name(),
			Side:              side,
			ProposedSize:      mmContractSize,
			EntryPrice:        entry,
			Category:          m.Category,
			OurProbability:    entry + mmTick, // asunción de edge leve por cola
			Edge:              mmTick,
			ExpectedReturnPct: spread / 2.0,
			HoursToResolution: hours,
			AnnualizedReturn:  domain.AnnualizeReturn(spread/2.0, hours),
			Confidence:        mmConfidence,
			Reasoning: fmt.Sprintf("Market making: placing %s at %.2f, spread is %.3f",
				side, entry, spread),
		}
	}

	if ourYes <= 0 || ourYes >= 1 || ourNo <= 0 || ourNo >= 1 {
		return nil
	}
	return []domain.TradeSignal{
		build(domain.SideYes, ourYes),
		build(domain.SideNo, ourNo),
	}
}

// ImbalancedOrders detecta inventario MM peligrosamente descompensado y
// devuelve los ids de órdenes a cancelar. Si un lado de un par se llenó
// más del umbral sin el otro, se cancelan ambos lados para no quedarnos
// con exposición direccional.
func ImbalancedOrders(ctx context.Context, exec ports.OrderExecutor) ([]string, error) {
	orders, err := exec.GetOrders(ctx, "open")
	if err != nil {
		return nil, fmt.Errorf("strategy.ImbalancedOrders: fetch orders: %w", err)
	}

	byTicker := make(map[string][]domain.Order)
	for _, o := range orders {
		byTicker[o.Ticker] = append(byTicker[o.Ticker], o)
	}

	var toCancel []string
	for ticker, group := range byTicker {
		var yes, no []domain.Order
		for _, o := range group {
			switch o.Side {
			case domain.SideYes:
				yes = append(yes, o)
			case domain.SideNo:
				no = append(no, o)
			}
		}
		if len(yes) == 0 || len(no) == 0 {
			continue
		}

		imbalance := math.Abs(fillRatio(yes) - fillRatio(no))
		if imbalance > mmImbalanceThreshold {
			slog.Warn("market_making: inventory imbalance",
				"ticker", ticker,
				"yes_fill", fmt.Sprintf("%.0f%%", fillRatio(yes)*100),
				"no_fill", fmt.Sprintf("%.0f%%", fillRatio(no)*100))
			for _, o := range group {
				if o.ID != "" {
					toCancel = append(toCancel, o.ID)
				}
			}
		}
	}
	return toCancel, nil
}

func fillRatio(orders []domain.Order) float64 {
	total, remaining := 0, 0
	for _, o := range orders {
		total += o.Count
		remaining += o.RemainingCount
	}
	if total == 0 {
		return 0
	}
	return float64(total-remaining) / float64(total)
}
