package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// PriceFeed devuelve el precio spot de un activo de referencia (p.ej. BTC/USD).
type PriceFeed interface {
	// SpotPrice devuelve el precio actual. Las implementaciones pueden
	// devolver el último valor bueno cacheado si el fetch falla.
	SpotPrice(ctx context.Context) (float64, error)
}

// Forecast es el pronóstico puntual de temperatura de una ciudad.
type Forecast struct {
	High float64
	Low  float64
	// HasHigh/HasLow distinguen "sin dato" de 0 grados.
	HasHigh bool
	HasLow  bool
}

// ForecastProvider devuelve pronósticos de temperatura por ciudad.
type ForecastProvider interface {
	GetForecast(ctx context.Context, cityKey string) (Forecast, error)
}

// HeadlineSource entrega titulares ya clasificados por el subsistema de
// noticias externo. El core no ejecuta el clasificador.
type HeadlineSource interface {
	PendingHeadlines(ctx context.Context) ([]domain.ClassifiedHeadline, error)
}
