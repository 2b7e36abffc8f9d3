package coingecko

// client.go — precio spot de BTC desde el API público de CoinGecko, con
// cache corta y fallback al último valor bueno si el fetch falla.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	priceTTL       = 60 * time.Second
)

// Client implementa ports.PriceFeed para BTC/USD.
type Client struct {
	http *http.Client
	base string

	mu        sync.Mutex
	lastPrice float64
	fetchedAt time.Time
}

// NewClient crea el feed. Si baseURL está vacío usa producción.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http: &http.Client{Timeout: 10 * time.Second},
		base: baseURL,
	}
}

// SpotPrice devuelve BTC/USD. Dentro del TTL responde desde cache; si el
// fetch falla y hay un último valor bueno, lo devuelve con un aviso.
func (c *Client) SpotPrice(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastPrice > 0 && time.Since(c.fetchedAt) < priceTTL {
		return c.lastPrice, nil
	}

	price, err := c.fetch(ctx)
	if err != nil {
		if c.lastPrice > 0 {
			slog.Warn("coingecko: fetch failed, using stale price",
				"stale_age", time.Since(c.fetchedAt).Round(time.Second), "err", err)
			return c.lastPrice, nil
		}
		return 0, fmt.Errorf("coingecko.SpotPrice: %w", err)
	}

	c.lastPrice = price
	c.fetchedAt = time.Now()
	return price, nil
}

func (c *Client) fetch(ctx context.Context) (float64, error) {
	url := c.base + "/simple/price?ids=bitcoin&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var out map[string]map[string]float64
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	price := out["bitcoin"]["usd"]
	if price <= 0 {
		return 0, fmt.Errorf("missing bitcoin/usd in response")
	}
	return price, nil
}
