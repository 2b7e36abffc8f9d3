package scanner

// scorer.go — puntuación y ranking de señales. Combina edge, retorno
// anualizado y confianza en un score único, penalizando horizontes largos.

import (
	"sort"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

const (
	scoreEdgeWeight       = 0.4
	scoreAnnualizedWeight = 0.3
	scoreConfidenceWeight = 0.3
	scoreAnnualizedCap    = 5.0
	scoreLongHorizonHours = 48.0
	scoreLongHorizonMult  = 0.8

	// Edge mínimo para considerar una señal siquiera rankeable.
	MinimumEdge = 0.02
)

// Score calcula el score compuesto de una señal.
func Score(sig domain.TradeSignal) float64 {
	annualized := sig.AnnualizedReturn
	if annualized > scoreAnnualizedCap {
		annualized = scoreAnnualizedCap
	}
	if annualized < 0 {
		annualized = 0
	}

	s := scoreEdgeWeight*sig.Edge +
		scoreAnnualizedWeight*(annualized/scoreAnnualizedCap) +
		scoreConfidenceWeight*sig.Confidence

	if sig.HoursToResolution > scoreLongHorizonHours {
		s *= scoreLongHorizonMult
	}
	return s
}

// FilterMinimumEdge descarta señales con edge por debajo del mínimo global.
func FilterMinimumEdge(signals []domain.TradeSignal) []domain.TradeSignal {
	out := signals[:0:0]
	for _, sig := range signals {
		if sig.Edge >= MinimumEdge {
			out = append(out, sig)
		}
	}
	return out
}

// Rank puntúa, deduplica por (ticker, lado) quedándose con la primera
// aparición, y ordena de mayor a menor score.
func Rank(signals []domain.TradeSignal) []domain.TradeSignal {
	type key struct {
		ticker string
		side   domain.Side
	}
	seen := make(map[key]bool, len(signals))
	ranked := make([]domain.TradeSignal, 0, len(signals))
	for _, sig := range signals {
		k := key{sig.Ticker, sig.Side}
		if seen[k] {
			continue
		}
		seen[k] = true
		sig.Score = Score(sig)
		ranked = append(ranked, sig)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Top devuelve las n mejores señales ya rankeadas.
func Top(signals []domain.TradeSignal, n int) []domain.TradeSignal {
	if len(signals) <= n {
		return signals
	}
	return signals[:n]
}
