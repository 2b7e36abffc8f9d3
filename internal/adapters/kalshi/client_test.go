package kalshi

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const testSecret = "c2VjcmV0LXNoYXJlZC1rZXk=" // "secret-shared-key" en base64

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	signer, err := NewHMACSigner(testSecret)
	require.NoError(t, err)

	c, err := NewClient(srv.URL+"/trade-api/v2", "test-access-key", signer)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestClient_AuthHeaders(t *testing.T) {
	var gotKey, gotTS, gotSig, gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("KALSHI-ACCESS-KEY")
		gotTS = r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		gotSig = r.Header.Get("KALSHI-ACCESS-SIGNATURE")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(marketsResponse{})
	}))

	_, err := c.GetMarkets(context.Background(), ports.MarketsQuery{Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, "test-access-key", gotKey)
	assert.NotEmpty(t, gotTS)
	assert.Equal(t, "/trade-api/v2/markets", gotPath)

	// La firma cubre timestamp + método + path firmado, sin query string.
	secret, _ := base64.StdEncoding.DecodeString(testSecret)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(gotTS + "GET" + "/trade-api/v2" + "/markets"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, gotSig)
}

func TestClient_RateLimitedThenSucceeds(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(marketResponse{Market: apiMarket{Ticker: "KX-1", Status: "open"}})
	}))

	start := time.Now()
	m, err := c.GetMarket(context.Background(), "KX-1")
	require.NoError(t, err)
	assert.Equal(t, "KX-1", m.Ticker)
	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestClient_RateLimitExhausted(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.GetMarket(context.Background(), "KX-1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Contains(t, apiErr.Message, "retries exhausted")
}

func TestClient_APIErrorMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"order price out of range"}}`))
	}))

	_, err := c.PlaceOrder(context.Background(), ports.OrderRequest{
		Ticker: "KX-1", Side: domain.SideYes, Count: 5, PriceCents: 150, Type: "limit",
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "order price out of range", apiErr.Message)
}

func TestClient_ServerErrorRetries(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(marketResponse{Market: apiMarket{Ticker: "KX-1"}})
	}))

	_, err := c.GetMarket(context.Background(), "KX-1")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestGetMarkets_CursorPagination(t *testing.T) {
	page := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		switch page {
		case 1:
			assert.Empty(t, r.URL.Query().Get("cursor"))
			json.NewEncoder(w).Encode(marketsResponse{
				Markets: []apiMarket{{Ticker: "KX-A", LastPrice: 95, Volume: 1000}},
				Cursor:  "next-page",
			})
		default:
			assert.Equal(t, "next-page", r.URL.Query().Get("cursor"))
			json.NewEncoder(w).Encode(marketsResponse{
				Markets: []apiMarket{{Ticker: "KX-B", LastPrice: 42}},
			})
		}
	}))

	markets, err := c.GetMarkets(context.Background(), ports.MarketsQuery{Status: "open", Limit: 10})
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "KX-A", markets[0].Ticker)
	// céntimos → dólares
	assert.InDelta(t, 0.95, markets[0].LastPrice, 1e-9)
	assert.InDelta(t, 0.42, markets[1].LastPrice, 1e-9)
}

func TestGetActiveMarkets_InheritsEventCategory(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("with_nested_markets"))
		json.NewEncoder(w).Encode(eventsResponse{
			Events: []apiEvent{{
				EventTicker:  "KXFED",
				SeriesTicker: "KXFEDSERIES",
				Category:     "Economics",
				Markets: []apiMarket{
					{Ticker: "KXFED-1", LastPrice: 50},
					{Ticker: "KXFED-2", LastPrice: 60},
				},
			}},
		})
	}))

	markets, err := c.GetActiveMarkets(context.Background(), "open", 100)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	for _, m := range markets {
		assert.Equal(t, "Economics", m.Category)
		assert.Equal(t, "KXFED", m.EventTicker)
		assert.Equal(t, "KXFEDSERIES", m.SeriesTicker)
	}
}

func TestPlaceOrder_NoSideSendsComplementPrice(t *testing.T) {
	var got createOrderRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(orderResponse{Order: apiOrder{
			OrderID: "ord-9", Ticker: got.Ticker, Side: got.Side, Status: "resting",
		}})
	}))

	order, err := c.PlaceOrder(context.Background(), ports.OrderRequest{
		Ticker: "KX-1", Side: domain.SideNo, Count: 15, PriceCents: 45, Type: "limit",
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-9", order.ID)

	// El venue solo acepta precios YES: un NO a 45¢ se envía como yes 55.
	assert.Equal(t, 55, got.YesPrice)
	assert.Equal(t, "buy", got.Action)
	assert.Equal(t, "no", got.Side)
	assert.NotEmpty(t, got.ClientOrderID)
}

func TestGetBalance_CentsToDollars(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(balanceResponse{Balance: 123456})
	}))

	bal, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1234.56", bal.StringFixed(2))
}

func TestGetPositions_SkipsFlatAndConvertsExposure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/portfolio/positions", r.URL.Path)
		w.Write([]byte(`{"market_positions":[
			{"ticker":"KXBOND-25DEC31","position":10,"market_exposure":960},
			{"ticker":"KXFLAT-25DEC31","position":0,"market_exposure":0},
			{"ticker":"KXBTC-B65000","position":-5,"market_exposure":300}
		],"cursor":""}`))
	}))

	positions, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "KXBOND-25DEC31", positions[0].Ticker)
	assert.Equal(t, 10, positions[0].Contracts)
	assert.Equal(t, "9.60", positions[0].Exposure.StringFixed(2))
	assert.Equal(t, -5, positions[1].Contracts)
}

func TestGetOrderbook_ParsesLevels(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orderbook":{"yes":[[40,100],[42,50]],"no":[[55,25]]}}`))
	}))

	book, err := c.GetOrderbook(context.Background(), "KX-1")
	require.NoError(t, err)

	bid, ok := book.BestBid(domain.SideYes)
	require.True(t, ok)
	assert.InDelta(t, 0.42, bid, 1e-9)

	ask, ok := book.BestAsk(domain.SideYes)
	require.True(t, ok)
	assert.InDelta(t, 0.45, ask, 1e-9)
}

func TestToDomainOrder_NoSidePrice(t *testing.T) {
	// Si el API no trae no_price se deriva del complemento del yes_price.
	o := toDomainOrder(apiOrder{OrderID: "x", Side: "no", YesPrice: 60, Count: 10})
	assert.Equal(t, 40, o.PriceCents)

	o = toDomainOrder(apiOrder{OrderID: "y", Side: "no", NoPrice: 35, YesPrice: 65})
	assert.Equal(t, 35, o.PriceCents)

	o = toDomainOrder(apiOrder{OrderID: "z", Side: "yes", YesPrice: 60})
	assert.Equal(t, 60, o.PriceCents)
}

func TestRetryAfterHeader(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, defaultRetryAfter, retryAfter(""))
	assert.Equal(t, defaultRetryAfter, retryAfter("soon"))
}

func TestHMACSigner_RejectsBadSecret(t *testing.T) {
	_, err := NewHMACSigner("not!!base64")
	assert.Error(t, err)
}

func TestRSASigner_SignAndVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	signer, err := NewRSASigner(pemBytes)
	require.NoError(t, err)

	sig, err := signer.Sign("1700000000000GET/trade-api/v2/markets")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("1700000000000GET/trade-api/v2/markets"))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], raw, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	assert.NoError(t, err)
}

func TestRSASigner_RejectsGarbage(t *testing.T) {
	_, err := NewRSASigner([]byte("not a pem"))
	assert.Error(t, err)
}
