package strategy

// news.go — arbitraje de noticias: busca mercados cuyo precio aún no refleja
// un titular ya clasificado, emparejando por palabras compartidas entre el
// titular y el título del mercado.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

const (
	newsMinHeadlineConf = 0.60
	newsMinSharedWords  = 2
	newsMinWordLen      = 5
	newsMinMispricing   = 0.08
	newsConfDiscount    = 0.80
	newsMinHours        = 2.0
	newsMaxPriceMove    = 0.05
	newsDefaultSize     = 5
)

// NewsConfig son los tunables de la estrategia de noticias.
type NewsConfig struct {
	Size int
}

// News cruza titulares clasificados con mercados relacionados.
type News struct {
	cfg NewsConfig
}

// NewNews crea la estrategia con defaults para campos en cero.
func NewNews(cfg NewsConfig) *News {
	if cfg.Size <= 0 {
		cfg.Size = newsDefaultSize
	}
	return &News{cfg: cfg}
}

func (n *News) Name() string       { return "news_arbitrage" }
func (n *News) EnabledKey() string { return "news_arbitrage_enabled" }

// Scan empareja titulares pendientes contra mercados abiertos.
func (n *News) Scan(ctx context.Context, sc ScanContext) ([]domain.TradeSignal, error) {
	var headlines []domain.ClassifiedHeadline
	for _, h := range sc.Headlines {
		if h.Relevant && h.Confidence >= newsMinHeadlineConf {
			headlines = append(headlines, h)
		}
	}
	if len(headlines) == 0 {
		return nil, nil
	}

	markets, err := sc.Markets.GetActiveMarkets(ctx, "open", 500)
	if err != nil {
		return nil, fmt.Errorf("strategy.News: fetch markets: %w", err)
	}
	slog.Info("news_arbitrage: scanning", "headlines", len(headlines), "markets", len(markets))

	var signals []domain.TradeSignal
	for _, h := range headlines {
		for _, m := range markets {
			if sig := n.evaluate(sc, m, h); sig != nil {
				signals = append(signals, *sig)
				break // un mercado por titular
			}
		}
	}
	return signals, nil
}

func (n *News) evaluate(sc ScanContext, m domain.Market, h domain.ClassifiedHeadline) *domain.TradeSignal {
	if m.Ticker == "" || sc.OpenTickers[m.Ticker] || sc.OrderTickers[m.Ticker] {
		return nil
	}

	hours := m.HoursToResolution()
	if hours < newsMinHours {
		return nil
	}

	if sharedWords(h.Headline, m.Title) < newsMinSharedWords {
		return nil
	}

	marketYes, ok := m.SidePrice(domain.SideYes)
	if !ok || marketYes >= 1 {
		return nil
	}

	// Si el precio ya se movió lejos del punto medio en la dirección del
	// titular, la noticia está incorporada y llegamos tarde.
	if priceMovedWithNews(marketYes, h.Direction) {
		return nil
	}

	var ourProb float64
	switch h.Direction {
	case "yes_up":
		ourProb = clipProbability(marketYes + newsMinMispricing + 0.02)
	case "yes_down":
		ourProb = clipProbability(marketYes - newsMinMispricing - 0.02)
	default:
		return nil
	}

	pick, ok := pickDirection(ourProb, marketYes, newsMinMispricing, newsMinMispricing)
	if !ok {
		return nil
	}

	retPct := expectedReturnPct(pick.EntryPrice)
	return &domain.TradeSignal{
		Ticker:            m.Ticker,
		MarketTitle:       m.Title,
		Strategy:          n.Name(),
		Side:              pick.Side,
		ProposedSize:      n.cfg.Size,
		EntryPrice:        pick.EntryPrice,
		Category:          m.Category,
		OurProbability:    pick.OurProb,
		Edge:              pick.Edge,
		ExpectedReturnPct: retPct,
		HoursToResolution: hours,
		AnnualizedReturn:  domain.AnnualizeReturn(retPct, hours),
		Confidence:        h.Confidence * newsConfDiscount,
		Reasoning:         fmt.Sprintf("News: %q suggests %s, market at %.2f", h.Headline, h.Direction, marketYes),
		NewsHeadline:      h.Headline,
	}
}

// priceMovedWithNews: el mercado ya se desplazó en la dirección del titular.
func priceMovedWithNews(marketYes float64, direction string) bool {
	switch direction {
	case "yes_up":
		return marketYes > 0.5+newsMaxPriceMove
	case "yes_down":
		return marketYes < 0.5-newsMaxPriceMove
	}
	return false
}

// sharedWords cuenta palabras largas en común entre titular y título.
func sharedWords(headline, title string) int {
	hw := make(map[string]bool)
	for _, w := range tokenize(headline) {
		hw[w] = true
	}
	seen := make(map[string]bool)
	count := 0
	for _, w := range tokenize(title) {
		if hw[w] && !seen[w] {
			seen[w] = true
			count++
		}
	}
	return count
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= newsMinWordLen {
			out = append(out, f)
		}
	}
	return out
}
