package strategy

// strategy.go — contrato común de las estrategias y helpers compartidos.
//
// Una estrategia es pura respecto al estado de trading: nunca coloca
// órdenes ni muta estado durable, solo lee datos de mercado/referencia y
// devuelve candidatos. La ausencia de señal en un mercado es un resultado
// esperado y frecuente, no un error: la evaluación por mercado devuelve
// nil para saltar, nunca lanza.

import (
	"context"
	"math"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// Suelos de precio de entrada por lado. Un YES barato o un NO casi regalado
// no sobreviven al round-trip de fees más el error del modelo.
const (
	yesMinEntry = 0.70
	noMinEntry  = 0.25
)

// ScanContext es el estado de ciclo que el Scanner entrega a cada estrategia.
type ScanContext struct {
	Markets ports.MarketProvider

	// OpenTickers son los mercados donde ya tenemos posición.
	OpenTickers map[string]bool

	// OrderTickers son los mercados con órdenes en reposo nuestras.
	OrderTickers map[string]bool

	// Headlines son los titulares clasificados pendientes este ciclo.
	Headlines []domain.ClassifiedHeadline

	// History permite cooldowns por estrategia; puede ser nil.
	History ports.TradeHistory
}

// SignalProducer es el contrato que implementa cada estrategia.
type SignalProducer interface {
	// Name identifica la estrategia en trades y posiciones.
	Name() string

	// EnabledKey es la clave del setting que habilita la estrategia.
	EnabledKey() string

	// Scan devuelve cero o más candidatos para el ciclo actual.
	Scan(ctx context.Context, sc ScanContext) ([]domain.TradeSignal, error)
}

// Registry mantiene las estrategias en orden de registro; el Scanner lo
// itera explícitamente.
type Registry struct {
	producers []SignalProducer
}

// NewRegistry crea un registry con las estrategias dadas.
func NewRegistry(producers ...SignalProducer) *Registry {
	return &Registry{producers: producers}
}

// Register añade una estrategia al final del registry.
func (r *Registry) Register(p SignalProducer) {
	r.producers = append(r.producers, p)
}

// Producers devuelve las estrategias en orden de registro.
func (r *Registry) Producers() []SignalProducer {
	return r.producers
}

// recentlyTraded devuelve los tickers en cooldown para una estrategia.
// Ante cualquier fallo devuelve el mapa vacío: el cooldown es una
// optimización, no una invariante.
func recentlyTraded(ctx context.Context, sc ScanContext, strategy string, window time.Duration) map[string]bool {
	if sc.History == nil {
		return nil
	}
	tickers, err := sc.History.RecentTradeTickers(ctx, strategy, time.Now().UTC().Add(-window))
	if err != nil {
		return nil
	}
	return tickers
}

// normCDF es la CDF de la normal estándar.
func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// clipProbability acota una probabilidad modelada a [0.05, 0.95] para no
// asumir certeza extrema.
func clipProbability(p float64) float64 {
	return math.Max(0.05, math.Min(0.95, p))
}

// directionPick es el resultado de elegir lado entre YES y NO.
type directionPick struct {
	Side       domain.Side
	EntryPrice float64
	OurProb    float64
	Edge       float64
}

// pickDirection compara el edge de ambos lados contra sus mínimos y elige
// el mejor viable, aplicando los suelos de entrada por lado. Devuelve
// (pick, false) si ningún lado califica.
func pickDirection(probYes, marketYesPrice, yesMinEdge, noMinEdge float64) (directionPick, bool) {
	probNo := 1.0 - probYes
	marketNoPrice := 1.0 - marketYesPrice

	yesEdge := probYes - marketYesPrice
	noEdge := probNo - marketNoPrice

	var pick directionPick
	switch {
	case noEdge >= noMinEdge && (noEdge >= yesEdge || yesEdge < yesMinEdge):
		pick = directionPick{Side: domain.SideNo, EntryPrice: marketNoPrice, OurProb: probNo, Edge: noEdge}
	case yesEdge >= yesMinEdge:
		pick = directionPick{Side: domain.SideYes, EntryPrice: marketYesPrice, OurProb: probYes, Edge: yesEdge}
	default:
		return directionPick{}, false
	}

	if pick.EntryPrice <= 0 || pick.EntryPrice >= 1 {
		return directionPick{}, false
	}

	minEntry := noMinEntry
	if pick.Side == domain.SideYes {
		minEntry = yesMinEntry
	}
	if pick.EntryPrice < minEntry {
		return directionPick{}, false
	}
	return pick, true
}

// expectedReturnPct devuelve el retorno esperado si la posición gana.
func expectedReturnPct(entryPrice float64) float64 {
	if entryPrice <= 0 || entryPrice >= 1 {
		return 0
	}
	return (1.0 - entryPrice) / entryPrice
}
