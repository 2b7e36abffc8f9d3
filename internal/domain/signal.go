package domain

// TradeSignal es la representación universal de una oportunidad de trade.
// Cada estrategia produce señales con este formato; el scorer las puntúa
// y el executor las convierte en órdenes.
type TradeSignal struct {
	Ticker       string
	MarketTitle  string
	Strategy     string
	Side         Side
	ProposedSize int     // contratos; el RiskManager puede recortarlo
	EntryPrice   float64 // estrictamente en (0, 1)
	Category     string  // categoría del mercado, para la regla de correlación

	OurProbability    float64 // probabilidad modelada del resultado
	Edge              float64 // OurProbability - EntryPrice
	ExpectedReturnPct float64 // (1 - EntryPrice) / EntryPrice si gana
	HoursToResolution float64
	AnnualizedReturn  float64 // derivado, nunca autoritativo; se capa al puntuar
	Confidence        float64 // 0.0 – 1.0

	Reasoning    string
	NewsHeadline string // solo señales disparadas por noticias

	Score float64 // asignado por el SignalScorer
}

// Valid devuelve false si la señal viola los invariantes básicos:
// precio de entrada fuera de (0,1) o tamaño no positivo.
func (s TradeSignal) Valid() bool {
	return s.EntryPrice > 0 && s.EntryPrice < 1 && s.ProposedSize > 0 &&
		s.Ticker != "" && (s.Side == SideYes || s.Side == SideNo)
}

// AnnualizeReturn extrapola un retorno esperado a horizonte de un año.
func AnnualizeReturn(returnPct, hoursToResolution float64) float64 {
	if hoursToResolution < 0.25 {
		hoursToResolution = 0.25
	}
	return returnPct * (8760.0 / hoursToResolution)
}

// ClassifiedHeadline es un titular ya clasificado por el subsistema de
// noticias externo. El core solo lo consume; nunca ejecuta el clasificador.
type ClassifiedHeadline struct {
	Headline           string
	Relevant           bool
	Direction          string // "yes_up" | "yes_down"
	Confidence         float64
	AffectedCategories []string
	Reasoning          string
}
