package kalshi

// types.go — DTOs del API de Kalshi y su mapeo al dominio. El API cotiza
// precios en céntimos; el dominio trabaja en dólares.

import (
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

type apiMarket struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	SeriesTicker string  `json:"series_ticker"`
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle"`
	Category     string  `json:"category"`
	Status       string  `json:"status"`
	Result       string  `json:"result"`
	YesBid       int     `json:"yes_bid"`
	YesAsk       int     `json:"yes_ask"`
	NoBid        int     `json:"no_bid"`
	NoAsk        int     `json:"no_ask"`
	LastPrice    int     `json:"last_price"`
	Volume       float64 `json:"volume"`
	CloseTime    string  `json:"close_time"`
}

type marketsResponse struct {
	Markets []apiMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

type marketResponse struct {
	Market apiMarket `json:"market"`
}

type apiEvent struct {
	EventTicker  string      `json:"event_ticker"`
	SeriesTicker string      `json:"series_ticker"`
	Title        string      `json:"title"`
	Category     string      `json:"category"`
	Markets      []apiMarket `json:"markets"`
}

type eventsResponse struct {
	Events []apiEvent `json:"events"`
	Cursor string     `json:"cursor"`
}

type apiOrderbook struct {
	Yes [][]int `json:"yes"`
	No  [][]int `json:"no"`
}

type orderbookResponse struct {
	Orderbook apiOrderbook `json:"orderbook"`
}

type apiOrder struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Side           string `json:"side"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	Count          int    `json:"count"`
	RemainingCount int    `json:"remaining_count"`
	Status         string `json:"status"`
	CreatedTime    string `json:"created_time"`
}

type ordersResponse struct {
	Orders []apiOrder `json:"orders"`
	Cursor string     `json:"cursor"`
}

type orderResponse struct {
	Order apiOrder `json:"order"`
}

type createOrderRequest struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"`
	Side     string `json:"side"`
	Count    int    `json:"count"`
	Type     string `json:"type"`
	YesPrice int    `json:"yes_price,omitempty"`
	// Idempotencia del lado del venue.
	ClientOrderID string `json:"client_order_id"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"` // céntimos
}

type apiFill struct {
	OrderID     string `json:"order_id"`
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	YesPrice    int    `json:"yes_price"`
	Count       int    `json:"count"`
	CreatedTime string `json:"created_time"`
}

type fillsResponse struct {
	Fills  []apiFill `json:"fills"`
	Cursor string    `json:"cursor"`
}

type apiPosition struct {
	Ticker         string `json:"ticker"`
	Position       int    `json:"position"` // contratos con signo, positivo = yes
	MarketExposure int64  `json:"market_exposure"`
}

type positionsResponse struct {
	MarketPositions []apiPosition `json:"market_positions"`
	Cursor          string        `json:"cursor"`
}

func toDomainMarket(m apiMarket) domain.Market {
	out := domain.Market{
		Ticker:       m.Ticker,
		EventTicker:  m.EventTicker,
		SeriesTicker: m.SeriesTicker,
		Title:        m.Title,
		Subtitle:     m.Subtitle,
		Category:     m.Category,
		Status:       m.Status,
		Result:       m.Result,
		YesBid:       cents(m.YesBid),
		YesAsk:       cents(m.YesAsk),
		NoBid:        cents(m.NoBid),
		NoAsk:        cents(m.NoAsk),
		LastPrice:    cents(m.LastPrice),
		Volume:       m.Volume,
	}
	if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		out.CloseTime = t
	}
	return out
}

func toDomainOrderbook(b apiOrderbook) domain.Orderbook {
	return domain.Orderbook{
		Yes: toLevels(b.Yes),
		No:  toLevels(b.No),
	}
}

func toLevels(raw [][]int) []domain.PriceLevel {
	var out []domain.PriceLevel
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: lvl[0], Qty: lvl[1]})
	}
	return out
}

func toDomainOrder(o apiOrder) domain.Order {
	out := domain.Order{
		ID:             o.OrderID,
		Ticker:         o.Ticker,
		Side:           domain.Side(o.Side),
		PriceCents:     o.YesPrice,
		Count:          o.Count,
		RemainingCount: o.RemainingCount,
		Status:         o.Status,
	}
	if out.Side == domain.SideNo {
		out.PriceCents = o.NoPrice
		if out.PriceCents == 0 && o.YesPrice > 0 {
			out.PriceCents = 100 - o.YesPrice
		}
	}
	if t, err := time.Parse(time.RFC3339, o.CreatedTime); err == nil {
		out.CreatedAt = t
	}
	return out
}

func toDomainFill(f apiFill) domain.Fill {
	out := domain.Fill{
		OrderID:    f.OrderID,
		Ticker:     f.Ticker,
		Side:       domain.Side(f.Side),
		PriceCents: f.YesPrice,
		Count:      f.Count,
	}
	if out.Side == domain.SideNo && f.YesPrice > 0 {
		out.PriceCents = 100 - f.YesPrice
	}
	if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		out.CreatedAt = t
	}
	return out
}

func cents(c int) float64 {
	return float64(c) / 100.0
}
