package strategy

// crypto.go — estrategia sobre mercados de precio de Bitcoin a corto plazo.
// Modela la probabilidad de terminar por encima del strike con una lognormal
// sin drift y compara contra el precio de mercado.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const (
	btcConfidence  = 0.60
	btcMinHours    = 0.1
	btcMaxHours    = 8.0
	btcYesMinEdge  = 0.05
	btcNoMinEdge   = 0.025
	btcDailySigma  = 0.03
	btcCooldown    = 10 * time.Minute
	btcDefaultSize = 5
)

// Strikes como "$65,000" o "65000" en el título. En el ticker solo cuenta el
// sufijo de strike ("-B112250"): los fragmentos de fecha también son dígitos.
var (
	titleStrikeRe  = regexp.MustCompile(`\$?([0-9]{2,3}(?:,[0-9]{3})+|[0-9]{4,7})(?:\.[0-9]+)?`)
	tickerStrikeRe = regexp.MustCompile(`[B-]([0-9]{4,7})\b`)
)

// CryptoConfig son los tunables de la estrategia de BTC.
type CryptoConfig struct {
	Size      int
	MinVolume float64
}

// Crypto opera mercados binarios de precio de BTC cerca de expirar.
type Crypto struct {
	cfg  CryptoConfig
	feed ports.PriceFeed
}

// NewCrypto crea la estrategia con defaults para campos en cero.
func NewCrypto(cfg CryptoConfig, feed ports.PriceFeed) *Crypto {
	if cfg.Size <= 0 {
		cfg.Size = btcDefaultSize
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = 1000
	}
	return &Crypto{cfg: cfg, feed: feed}
}

func (c *Crypto) Name() string       { return "btc_15min" }
func (c *Crypto) EnabledKey() string { return "btc_15min_enabled" }

// Scan evalúa mercados de BTC contra el spot actual.
func (c *Crypto) Scan(ctx context.Context, sc ScanContext) ([]domain.TradeSignal, error) {
	markets, err := sc.Markets.GetActiveMarkets(ctx, "open", 500)
	if err != nil {
		return nil, fmt.Errorf("strategy.Crypto: fetch markets: %w", err)
	}

	var btcMarkets []domain.Market
	for _, m := range markets {
		if isBTCMarket(m) {
			btcMarkets = append(btcMarkets, m)
		}
	}
	if len(btcMarkets) == 0 {
		return nil, nil
	}

	spot, err := c.feed.SpotPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("strategy.Crypto: spot price: %w", err)
	}
	slog.Info("btc_15min: scanning", "markets", len(btcMarkets), "spot", spot)

	cooldown := recentlyTraded(ctx, sc, c.Name(), btcCooldown)

	var signals []domain.TradeSignal
	for _, m := range btcMarkets {
		if sig := c.evaluate(ctx, sc, m, spot, cooldown); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals, nil
}

func (c *Crypto) evaluate(ctx context.Context, sc ScanContext, m domain.Market, spot float64, cooldown map[string]bool) *domain.TradeSignal {
	if m.Ticker == "" || sc.OpenTickers[m.Ticker] || sc.OrderTickers[m.Ticker] {
		return nil
	}
	if m.Volume < c.cfg.MinVolume || cooldown[m.Ticker] {
		return nil
	}

	hours := m.HoursToResolution()
	if hours < btcMinHours || hours > btcMaxHours {
		return nil
	}

	strike, ok := parseStrike(m.Title, m.Ticker)
	if !ok || strike <= 0 {
		return nil
	}

	probAbove := ProbAboveStrike(spot, strike, hours)
	marketYes, ok := m.SidePrice(domain.SideYes)
	if !ok || marketYes >= 1 {
		return nil
	}

	pick, ok := pickDirection(probAbove, marketYes, btcYesMinEdge, btcNoMinEdge)
	if !ok {
		return nil
	}

	retPct := expectedReturnPct(pick.EntryPrice)
	return &domain.TradeSignal{
		Ticker:            m.Ticker,
		MarketTitle:       m.Title,
		Strategy:          c.Name(),
		Side:              pick.Side,
		ProposedSize:      c.cfg.Size,
		EntryPrice:        pick.EntryPrice,
		Category:          m.Category,
		OurProbability:    pick.OurProb,
		Edge:              pick.Edge,
		ExpectedReturnPct: retPct,
		HoursToResolution: hours,
		AnnualizedReturn:  domain.AnnualizeReturn(retPct, hours),
		Confidence:        btcConfidence,
		Reasoning: fmt.Sprintf("BTC at $%.0f vs strike $%.0f, model P(above)=%.3f, market %.2f",
			spot, strike, probAbove, marketYes),
	}
}

// ProbAboveStrike es la probabilidad bajo lognormal sin drift de que el spot
// termine por encima del strike tras `hours` horas, con σ diaria fija.
func ProbAboveStrike(spot, strike, hours float64) float64 {
	if spot <= 0 || strike <= 0 || hours <= 0 {
		return 0.5
	}
	sigma := btcDailySigma * math.Sqrt(hours/24.0)
	if sigma <= 0 {
		return 0.5
	}
	z := math.Log(spot/strike) / sigma
	return clipProbability(normCDF(z))
}

func isBTCMarket(m domain.Market) bool {
	t := strings.ToUpper(m.Ticker)
	title := strings.ToLower(m.Title)
	return strings.Contains(t, "BTC") ||
		strings.Contains(title, "bitcoin") ||
		strings.Contains(title, "btc")
}

// parseStrike extrae el strike en dólares del título, cayendo al ticker.
func parseStrike(title, ticker string) (float64, bool) {
	if v, ok := matchStrike(titleStrikeRe, title); ok {
		return v, true
	}
	return matchStrike(tickerStrikeRe, ticker)
}

func matchStrike(re *regexp.Regexp, src string) (float64, bool) {
	match := re.FindStringSubmatch(src)
	if match == nil {
		return 0, false
	}
	raw := strings.ReplaceAll(match[1], ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	// Descartar números pequeños que no pueden ser un strike de BTC.
	if v < 1000 {
		return 0, false
	}
	return v, true
}
