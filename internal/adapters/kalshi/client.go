package kalshi

// client.go — HTTP client autenticado de Kalshi con rate limiting, retry de
// 429 guiado por Retry-After y retry independiente de errores de red.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://trading-api.kalshi.com/trade-api/v2"

	// Kalshi basic tier: 10 lecturas/s. Nos quedamos por debajo.
	requestsPerSec = 8
	requestBurst   = 4

	// 429: dormir lo que diga Retry-After, con tope de intentos.
	maxRateLimitAttempts = 4
	defaultRetryAfter    = 2 * time.Second

	// Errores de red y 5xx: backoff exponencial propio.
	maxNetworkRetries = 3
	baseNetworkWait   = 500 * time.Millisecond
)

// APIError es una respuesta no-2xx del venue.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kalshi: api error %d: %s", e.Status, e.Message)
}

// Client es el cliente REST de Kalshi. Se abre una vez por proceso y se
// cierra en el apagado.
type Client struct {
	http      *http.Client
	base      string
	signedPre string // prefijo de path que entra en la firma (p.ej. /trade-api/v2)
	accessKey string
	signer    Signer
	limiter   *rate.Limiter
}

// NewClient crea el cliente. Si baseURL está vacío usa producción.
func NewClient(baseURL, accessKey string, signer Signer) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewClient: parse base url: %w", err)
	}
	return &Client{
		http:      &http.Client{Timeout: 15 * time.Second},
		base:      strings.TrimRight(baseURL, "/"),
		signedPre: strings.TrimRight(u.Path, "/"),
		accessKey: accessKey,
		signer:    signer,
		limiter:   rate.NewLimiter(requestsPerSec, requestBurst),
	}, nil
}

// Close libera el cliente. El transport no mantiene estado que cerrar más
// allá de las conexiones keep-alive.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// get hace un GET autenticado; query puede ser nil.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// do ejecuta un request firmado con la política completa de retries.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kalshi: marshal body: %w", err)
		}
		payload = b
	}

	fullURL := c.base + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	rateAttempts := 0
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("kalshi: rate limiter: %w", err)
		}

		req, err := c.newSignedRequest(ctx, method, path, fullURL, payload)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt >= maxNetworkRetries {
				return fmt.Errorf("kalshi: %s %s failed after %d retries: %w",
					method, path, maxNetworkRetries, err)
			}
			c.backoff(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			rateAttempts++
			if rateAttempts >= maxRateLimitAttempts {
				return &APIError{Status: resp.StatusCode, Message: "rate limit retries exhausted"}
			}
			wait := retryAfter(resp.Header.Get("Retry-After"))
			slog.Warn("kalshi: rate limited", "path", path, "retry_after", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 500 {
			if attempt >= maxNetworkRetries {
				return &APIError{Status: resp.StatusCode, Message: apiMessage(respBody)}
			}
			slog.Warn("kalshi: server error, retrying", "path", path, "status", resp.StatusCode)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: apiMessage(respBody)}
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("kalshi: decode %s response: %w", path, err)
			}
		}
		return nil
	}
}

// newSignedRequest construye el request con los headers de autenticación.
// Se regenera en cada intento para que el timestamp de la firma sea fresco.
func (c *Client) newSignedRequest(ctx context.Context, method, path, fullURL string, payload []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("kalshi: new request: %w", err)
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := c.signer.Sign(ts + method + c.signedPre + path)
	if err != nil {
		return nil, fmt.Errorf("kalshi: sign request: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.accessKey)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseNetworkWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func retryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

// apiMessage extrae el mensaje de error del venue, cayendo al body crudo.
func apiMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error.Message != "" {
			return e.Error.Message
		}
		if e.Message != "" {
			return e.Message
		}
	}
	return string(body)
}
