package noaa

// client.go — pronósticos de temperatura del National Weather Service.
// Cada ciudad mapea a un gridpoint fijo de api.weather.gov; los pronósticos
// se cachean dos horas, que es más o menos su cadencia de actualización.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const (
	defaultBaseURL = "https://api.weather.gov"
	forecastTTL    = 2 * time.Hour

	// El NWS pide identificarse por User-Agent en vez de API key.
	userAgent = "kalshibot (contact: ops@kalshibot.dev)"
)

// Gridpoints NWS por clave de ciudad: oficina/x,y.
var cityGridpoints = map[string]string{
	"nyc":          "OKX/33,35",
	"chicago":      "LOT/76,73",
	"miami":        "MFL/110,50",
	"austin":       "EWX/156,91",
	"denver":       "BOU/63,62",
	"losangeles":   "LOX/155,45",
	"philadelphia": "PHI/49,75",
}

type cachedForecast struct {
	forecast  ports.Forecast
	fetchedAt time.Time
}

// Client implementa ports.ForecastProvider sobre el API del NWS.
type Client struct {
	http *http.Client
	base string

	mu    sync.Mutex
	cache map[string]cachedForecast
}

// NewClient crea el proveedor. Si baseURL está vacío usa api.weather.gov.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:  &http.Client{Timeout: 15 * time.Second},
		base:  baseURL,
		cache: make(map[string]cachedForecast),
	}
}

// GetForecast devuelve las temperaturas máxima y mínima previstas para la
// ciudad dada, desde cache si el dato tiene menos de dos horas.
func (c *Client) GetForecast(ctx context.Context, cityKey string) (ports.Forecast, error) {
	grid, ok := cityGridpoints[cityKey]
	if !ok {
		return ports.Forecast{}, fmt.Errorf("noaa.GetForecast: unknown city %q", cityKey)
	}

	c.mu.Lock()
	if cached, ok := c.cache[cityKey]; ok && time.Since(cached.fetchedAt) < forecastTTL {
		c.mu.Unlock()
		return cached.forecast, nil
	}
	c.mu.Unlock()

	fc, err := c.fetch(ctx, grid)
	if err != nil {
		return ports.Forecast{}, fmt.Errorf("noaa.GetForecast %s: %w", cityKey, err)
	}

	c.mu.Lock()
	c.cache[cityKey] = cachedForecast{forecast: fc, fetchedAt: time.Now()}
	c.mu.Unlock()
	return fc, nil
}

type forecastResponse struct {
	Properties struct {
		Periods []struct {
			Name            string `json:"name"`
			IsDaytime       bool   `json:"isDaytime"`
			Temperature     int    `json:"temperature"`
			TemperatureUnit string `json:"temperatureUnit"`
		} `json:"periods"`
	} `json:"properties"`
}

func (c *Client) fetch(ctx context.Context, grid string) (ports.Forecast, error) {
	url := fmt.Sprintf("%s/gridpoints/%s/forecast", c.base, grid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ports.Forecast{}, err
	}
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.Forecast{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return ports.Forecast{}, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var out forecastResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ports.Forecast{}, fmt.Errorf("decode: %w", err)
	}

	// Los dos primeros periodos cubren hoy: el diurno trae la máxima y el
	// nocturno la mínima.
	var fc ports.Forecast
	for _, p := range out.Properties.Periods {
		if strings.ToUpper(p.TemperatureUnit) != "F" {
			continue
		}
		if p.IsDaytime && !fc.HasHigh {
			fc.High = float64(p.Temperature)
			fc.HasHigh = true
		}
		if !p.IsDaytime && !fc.HasLow {
			fc.Low = float64(p.Temperature)
			fc.HasLow = true
		}
		if fc.HasHigh && fc.HasLow {
			break
		}
	}
	if !fc.HasHigh && !fc.HasLow {
		return ports.Forecast{}, fmt.Errorf("no temperature periods in response")
	}
	return fc, nil
}
