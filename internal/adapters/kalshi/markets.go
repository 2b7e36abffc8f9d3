package kalshi

// markets.go — listados de mercados y orderbooks. Los listados paginan por
// cursor opaco hasta agotar resultados o alcanzar el límite del caller.

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const pageSize = 200

// GetMarkets lista mercados con filtros opcionales.
func (c *Client) GetMarkets(ctx context.Context, q ports.MarketsQuery) ([]domain.Market, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = pageSize
	}

	var markets []domain.Market
	cursor := ""
	for {
		vals := url.Values{}
		vals.Set("limit", strconv.Itoa(min(pageSize, limit-len(markets))))
		if q.Status != "" {
			vals.Set("status", q.Status)
		}
		if q.Category != "" {
			vals.Set("category", q.Category)
		}
		if q.SeriesTicker != "" {
			vals.Set("series_ticker", q.SeriesTicker)
		}
		if cursor != "" {
			vals.Set("cursor", cursor)
		}

		var page marketsResponse
		if err := c.get(ctx, "/markets", vals, &page); err != nil {
			return nil, fmt.Errorf("kalshi.GetMarkets: %w", err)
		}
		for _, m := range page.Markets {
			markets = append(markets, toDomainMarket(m))
		}

		cursor = page.Cursor
		if cursor == "" || len(markets) >= limit {
			break
		}
	}
	if len(markets) > limit {
		markets = markets[:limit]
	}
	return markets, nil
}

// GetActiveMarkets lista mercados activos vía eventos con mercados anidados.
// Cada mercado hereda la categoría de su evento padre, que el endpoint de
// mercados no devuelve.
func (c *Client) GetActiveMarkets(ctx context.Context, status string, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = pageSize
	}

	var markets []domain.Market
	cursor := ""
	for {
		vals := url.Values{}
		vals.Set("limit", strconv.Itoa(pageSize))
		vals.Set("with_nested_markets", "true")
		if status != "" {
			vals.Set("status", status)
		}
		if cursor != "" {
			vals.Set("cursor", cursor)
		}

		var page eventsResponse
		if err := c.get(ctx, "/events", vals, &page); err != nil {
			return nil, fmt.Errorf("kalshi.GetActiveMarkets: %w", err)
		}
		for _, ev := range page.Events {
			for _, m := range ev.Markets {
				dm := toDomainMarket(m)
				dm.Category = ev.Category
				if dm.EventTicker == "" {
					dm.EventTicker = ev.EventTicker
				}
				if dm.SeriesTicker == "" {
					dm.SeriesTicker = ev.SeriesTicker
				}
				markets = append(markets, dm)
			}
		}

		cursor = page.Cursor
		if cursor == "" || len(markets) >= limit {
			break
		}
	}
	if len(markets) > limit {
		markets = markets[:limit]
	}
	return markets, nil
}

// GetMarket devuelve un mercado por ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	var resp marketResponse
	if err := c.get(ctx, "/markets/"+ticker, nil, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi.GetMarket %s: %w", ticker, err)
	}
	return toDomainMarket(resp.Market), nil
}

// GetOrderbook devuelve el libro de órdenes de un mercado.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (domain.Orderbook, error) {
	var resp orderbookResponse
	if err := c.get(ctx, "/markets/"+ticker+"/orderbook", nil, &resp); err != nil {
		return domain.Orderbook{}, fmt.Errorf("kalshi.GetOrderbook %s: %w", ticker, err)
	}
	return toDomainOrderbook(resp.Orderbook), nil
}
