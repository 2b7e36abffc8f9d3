package strategy

// bond.go — compra resultados ya casi ciertos (≥88¢) antes de la
// resolución y captura la prima restante.

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

const (
	// Descuento black-swan sobre la probabilidad implícita del mercado.
	bondProbability = 0.97
	bondConfidence  = 0.85

	bondDefaultMinPrice = 0.88
	bondDefaultMaxHours = 8760 // los mercados de Kalshi resuelven hasta años fuera
	bondDefaultMinVol   = 5000
	bondProposedSize    = 10 // placeholder; el Kelly del RiskManager manda
)

// BondConfig son los tunables de la estrategia bond.
type BondConfig struct {
	MinPrice  float64
	MaxHours  float64
	MinVolume float64
}

// Bond escanea mercados con un lado casi cierto.
type Bond struct {
	cfg BondConfig
}

// NewBond crea la estrategia con defaults para los campos en cero.
func NewBond(cfg BondConfig) *Bond {
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = bondDefaultMinPrice
	}
	if cfg.MaxHours <= 0 {
		cfg.MaxHours = bondDefaultMaxHours
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = bondDefaultMinVol
	}
	return &Bond{cfg: cfg}
}

func (b *Bond) Name() string       { return "bond" }
func (b *Bond) EnabledKey() string { return "bond_strategy_enabled" }

// Scan recorre los mercados abiertos y devuelve señales bond ordenadas de
// mejor a peor retorno esperado.
func (b *Bond) Scan(ctx context.Context, sc ScanContext) ([]domain.TradeSignal, error) {
	markets, err := sc.Markets.GetActiveMarkets(ctx, "open", 500)
	if err != nil {
		return nil, fmt.Errorf("strategy.Bond: fetch markets: %w", err)
	}
	slog.Info("bond: scanning", "markets", len(markets))

	var signals []domain.TradeSignal
	for _, m := range markets {
		sig := b.evaluate(ctx, sc, m)
		if sig != nil {
			signals = append(signals, *sig)
		}
	}
	sort.Slice(signals, func(i, j int) bool {
		return signals[i].ExpectedReturnPct > signals[j].ExpectedReturnPct
	})
	slog.Info("bond: scan complete", "signals", len(signals))
	return signals, nil
}

// evaluate devuelve la señal para un mercado, o nil para saltarlo.
func (b *Bond) evaluate(ctx context.Context, sc ScanContext, m domain.Market) *domain.TradeSignal {
	if m.Ticker == "" || sc.OpenTickers[m.Ticker] {
		return nil
	}
	if m.Volume < b.cfg.MinVolume {
		return nil
	}

	hours := m.HoursToResolution()
	if hours <= 0 || hours > b.cfg.MaxHours {
		return nil
	}

	book, err := sc.Markets.GetOrderbook(ctx, m.Ticker)
	if err != nil {
		slog.Debug("bond: orderbook fetch failed", "ticker", m.Ticker, "err", err)
		return nil
	}

	yesAsk, hasYes := book.BestAsk(domain.SideYes)
	noAsk, hasNo := book.BestAsk(domain.SideNo)

	// Elegir el lado casi cierto. Si el lado contrario está muy barato,
	// su ask implica un precio de entrada aún mejor que el ask directo.
	var side domain.Side
	var entry float64
	switch {
	case hasNo && noAsk <= 1.0-b.cfg.MinPrice:
		side, entry = domain.SideYes, 1.0-noAsk
	case hasYes && yesAsk >= b.cfg.MinPrice:
		side, entry = domain.SideYes, yesAsk
	case hasYes && yesAsk <= 1.0-b.cfg.MinPrice:
		side, entry = domain.SideNo, 1.0-yesAsk
	case hasNo && noAsk >= b.cfg.MinPrice:
		side, entry = domain.SideNo, noAsk
	default:
		return nil
	}

	if entry <= 0 || entry >= 1 {
		return nil
	}

	edge := bondProbability - entry
	if edge < 0 {
		return nil
	}

	retPct := expectedReturnPct(entry)
	return &domain.TradeSignal{
		Ticker:            m.Ticker,
		MarketTitle:       m.Title,
		Strategy:          b.Name(),
		Side:              side,
		ProposedSize:      bondProposedSize,
		EntryPrice:        entry,
		Category:          m.Category,
		OurProbability:    bondProbability,
		Edge:              edge,
		ExpectedReturnPct: retPct,
		HoursToResolution: hours,
		AnnualizedReturn:  domain.AnnualizeReturn(retPct, hours),
		Confidence:        bondConfidence,
		Reasoning: fmt.Sprintf("Bond play: %s at %.2f with %.1fh to resolution",
			side, entry, hours),
	}
}
