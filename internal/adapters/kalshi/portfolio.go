package kalshi

// portfolio.go — órdenes, balance y fills. El venue cotiza todo en términos
// YES: una orden límite del lado NO se envía con el complemento del precio.

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// PlaceOrder envía una orden de compra. Una colocación fallida se reporta
// al caller y nunca se reintenta como orden nueva, para no duplicar fills.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (domain.Order, error) {
	body := createOrderRequest{
		Ticker:        req.Ticker,
		Action:        "buy",
		Side:          string(req.Side),
		Count:         req.Count,
		Type:          req.Type,
		ClientOrderID: uuid.NewString(),
	}
	if req.Type == "limit" {
		yesPrice := req.PriceCents
		if req.Side == domain.SideNo {
			yesPrice = 100 - req.PriceCents
		}
		body.YesPrice = yesPrice
	}

	var resp orderResponse
	if err := c.do(ctx, "POST", "/portfolio/orders", nil, body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("kalshi.PlaceOrder %s: %w", req.Ticker, err)
	}
	return toDomainOrder(resp.Order), nil
}

// CancelOrder cancela una orden abierta por su id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, "DELETE", "/portfolio/orders/"+orderID, nil, nil, nil); err != nil {
		return fmt.Errorf("kalshi.CancelOrder %s: %w", orderID, err)
	}
	return nil
}

// GetOrders lista órdenes filtradas por estado.
func (c *Client) GetOrders(ctx context.Context, status string) ([]domain.Order, error) {
	vals := url.Values{}
	if status != "" {
		vals.Set("status", status)
	}

	var orders []domain.Order
	cursor := ""
	for {
		if cursor != "" {
			vals.Set("cursor", cursor)
		}
		var page ordersResponse
		if err := c.get(ctx, "/portfolio/orders", vals, &page); err != nil {
			return nil, fmt.Errorf("kalshi.GetOrders: %w", err)
		}
		for _, o := range page.Orders {
			orders = append(orders, toDomainOrder(o))
		}
		cursor = page.Cursor
		if cursor == "" {
			break
		}
	}
	return orders, nil
}

// GetBalance devuelve el balance disponible en dólares.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("kalshi.GetBalance: %w", err)
	}
	return decimal.NewFromInt(resp.Balance).Div(decimal.NewFromInt(100)), nil
}

// GetPositions devuelve las posiciones abiertas según el venue, en dólares.
func (c *Client) GetPositions(ctx context.Context) ([]domain.MarketPosition, error) {
	var positions []domain.MarketPosition
	vals := url.Values{}
	cursor := ""
	for {
		if cursor != "" {
			vals.Set("cursor", cursor)
		}
		var page positionsResponse
		if err := c.get(ctx, "/portfolio/positions", vals, &page); err != nil {
			return nil, fmt.Errorf("kalshi.GetPositions: %w", err)
		}
		for _, p := range page.MarketPositions {
			if p.Position == 0 {
				continue
			}
			positions = append(positions, domain.MarketPosition{
				Ticker:    p.Ticker,
				Contracts: p.Position,
				Exposure:  decimal.NewFromInt(p.MarketExposure).Div(decimal.NewFromInt(100)),
			})
		}
		cursor = page.Cursor
		if cursor == "" {
			break
		}
	}
	return positions, nil
}

// GetFills lista ejecuciones, opcionalmente filtradas por ticker.
func (c *Client) GetFills(ctx context.Context, ticker string) ([]domain.Fill, error) {
	vals := url.Values{}
	if ticker != "" {
		vals.Set("ticker", ticker)
	}

	var fills []domain.Fill
	cursor := ""
	for {
		if cursor != "" {
			vals.Set("cursor", cursor)
		}
		var page fillsResponse
		if err := c.get(ctx, "/portfolio/fills", vals, &page); err != nil {
			return nil, fmt.Errorf("kalshi.GetFills: %w", err)
		}
		for _, f := range page.Fills {
			fills = append(fills, toDomainFill(f))
		}
		cursor = page.Cursor
		if cursor == "" {
			break
		}
	}
	return fills, nil
}
