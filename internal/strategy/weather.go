package strategy

// weather.go — mercados de temperatura máxima/mínima diaria en ciudades de
// EEUU. Compara el forecast de la NOAA contra el umbral del mercado usando
// un modelo normal cuya σ crece con el horizonte del forecast.

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
	weatherConfidence = 0.70
	weatherMinEdge    = 0.04
	weatherMinHours   = 0.5
	weatherMaxHours   = 36.0
	weatherCooldown   = 30 * time.Minute

	// Error del forecast en °F: ~3.5 a 24h, ~5.0 a 48h, nunca menos de 1.5.
	weatherSigma24h  = 3.5
	weatherSigma48h  = 5.0
	weatherSigmaMin  = 1.5
	weatherDefSize   = 5
	weatherDefMinVol = 5000
)

// Serie de Kalshi → clave de ciudad para el proveedor de forecast.
var seriesCities = map[string]string{
	"KXHIGHNY":   "nyc",
	"KXHIGHCHI":  "chicago",
	"KXHIGHMIA":  "miami",
	"KXHIGHAUS":  "austin",
	"KXHIGHDEN":  "denver",
	"KXHIGHLAX":  "losangeles",
	"KXHIGHPHIL": "philadelphia",
	"KXLOWNY":    "nyc",
	"KXLOWCHI":   "chicago",
}

var tempRe = regexp.MustCompile(`(-?[0-9]{1,3})(?:\.[0-9]+)?\s*°?\s*F?\b`)

// WeatherConfig son los tunables de la estrategia de clima.
type WeatherConfig struct {
	Size      int
	MinVolume float64
}

// Weather opera mercados de temperatura con forecasts oficiales.
type Weather struct {
	cfg      WeatherConfig
	forecast ports.ForecastProvider
}

// NewWeather crea la estrategia con defaults para campos en cero.
func NewWeather(cfg WeatherConfig, forecast ports.ForecastProvider) *Weather {
	if cfg.Size <= 0 {
		cfg.Size = weatherDefSize
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = weatherDefMinVol
	}
	return &Weather{cfg: cfg, forecast: forecast}
}

func (w *Weather) Name() string       { return "weather" }
func (w *Weather) EnabledKey() string { return "weather_enabled" }

// Scan evalúa mercados de temperatura de las series conocidas.
func (w *Weather) Scan(ctx context.Context, sc ScanContext) ([]domain.TradeSignal, error) {
	cooldown := recentlyTraded(ctx, sc, w.Name(), weatherCooldown)

	var signals []domain.TradeSignal
	for series, city := range seriesCities {
		markets, err := sc.Markets.GetMarkets(ctx, ports.MarketsQuery{
			Status:       "open",
			SeriesTicker: series,
			Limit:        100,
		})
		if err != nil {
			slog.Warn("weather: series fetch failed", "series", series, "err", err)
			continue
		}
		if len(markets) == 0 {
			continue
		}

		fc, err := w.forecast.GetForecast(ctx, city)
		if err != nil {
			slog.Warn("weather: forecast fetch failed", "city", city, "err", err)
			continue
		}

		for _, m := range markets {
			if sig := w.evaluate(sc, m, series, fc, cooldown); sig != nil {
				signals = append(signals, *sig)
			}
		}
	}
	slog.Info("weather: scan complete", "signals", len(signals))
	return signals, nil
}

func (w *Weather) evaluate(sc ScanContext, m domain.Market, series string, fc ports.Forecast, cooldown map[string]bool) *domain.TradeSignal {
	if m.Ticker == "" || sc.OpenTickers[m.Ticker] || sc.OrderTickers[m.Ticker] {
		return nil
	}
	if m.Volume < w.cfg.MinVolume || cooldown[m.Ticker] {
		return nil
	}

	hours := m.HoursToResolution()
	if hours < weatherMinHours || hours > weatherMaxHours {
		return nil
	}

	isLow := strings.Contains(series, "LOW")
	var expected float64
	switch {
	case isLow && fc.HasLow:
		expected = fc.Low
	case !isLow && fc.HasHigh:
		expected = fc.High
	default:
		return nil
	}

	threshold, ok := parseTemperature(m.Title, m.Subtitle)
	if !ok {
		return nil
	}

	probAbove := ProbTempAbove(expected, threshold, hours)
	// Los mercados "low" preguntan si la mínima cae por debajo del umbral.
	probYes := probAbove
	if isLow {
		probYes = 1.0 - probAbove
	}

	marketYes, ok := m.SidePrice(domain.SideYes)
	if !ok || marketYes >= 1 {
		return nil
	}

	pick, ok := pickDirection(probYes, marketYes, weatherMinEdge, weatherMinEdge)
	if !ok {
		return nil
	}

	retPct := expectedReturnPct(pick.EntryPrice)
	return &domain.TradeSignal{
		Ticker:            m.Ticker,
		MarketTitle:       m.Title,
		Strategy:          w.Name(),
		Side:              pick.Side,
		ProposedSize:      w.cfg.Size,
		EntryPrice:        pick.EntryPrice,
		Category:          m.Category,
		OurProbability:    pick.OurProb,
		Edge:              pick.Edge,
		ExpectedReturnPct: retPct,
		HoursToResolution: hours,
		AnnualizedReturn:  domain.AnnualizeReturn(retPct, hours),
		Confidence:        weatherConfidence,
		Reasoning: fmt.Sprintf("Forecast %.0f°F vs threshold %.0f°F, model P(yes)=%.3f, market %.2f",
			expected, threshold, pick.OurProb, marketYes),
	}
}

// ProbTempAbove modela la temperatura observada como normal centrada en el
// forecast, con σ dependiente del horizonte (ver forecastSigma).
func ProbTempAbove(forecast, threshold, hours float64) float64 {
	sigma := forecastSigma(hours)
	z := (forecast - threshold) / sigma
	return clipProbability(normCDF(z))
}

// forecastSigma crece proporcional al horizonte hasta el anclaje de 24h y de
// ahí interpola hacia el de 48h.
func forecastSigma(hours float64) float64 {
	var sigma float64
	if hours <= 24 {
		sigma = weatherSigma24h * hours / 24.0
	} else {
		sigma = weatherSigma24h + (weatherSigma48h-weatherSigma24h)*(hours-24.0)/24.0
	}
	return math.Max(sigma, weatherSigmaMin)
}

// parseTemperature busca el umbral en °F en el título, luego en el subtítulo.
func parseTemperature(title, subtitle string) (float64, bool) {
	for _, src := range []string{title, subtitle} {
		match := tempRe.FindStringSubmatch(src)
		if match == nil {
			continue
		}
		v, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		// Temperaturas plausibles en superficie.
		if v >= -50 && v <= 140 {
			return v, true
		}
	}
	return 0, false
}
