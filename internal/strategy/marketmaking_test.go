package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

func mmMarket(ticker string) domain.Market {
	return domain.Market{
		Ticker:    ticker,
		Title:     "Test MM market",
		Category:  "Economics",
		Status:    "open",
		Volume:    20000,
		CloseTime: closesIn(24),
	}
}

func TestMarketMaking_PairedSignals(t *testing.T) {
	// yes bid 45¢, no bid 51¢ → yes ask 0.49, no ask 0.55, spread 0.04.
	fm := &fakeMarkets{
		markets: []domain.Market{mmMarket("KXMM-1")},
		books: map[string]domain.Orderbook{
			"KXMM-1": {
				Yes: []domain.PriceLevel{{Price: 45, Qty: 200}},
				No:  []domain.PriceLevel{{Price: 51, Qty: 200}},
			},
		},
	}

	mm := NewMarketMaking(MarketMakingConfig{})
	signals, err := mm.Scan(context.Background(), scanCtx(fm))
	require.NoError(t, err)
	require.Len(t, signals, 2)

	var yes, no domain.TradeSignal
	for _, sig := range signals {
		if sig.Side == domain.SideYes {
			yes = sig
		} else {
			no = sig
		}
	}
	// Una tick por dentro de cada best bid.
	assert.InDelta(t, 0.46, yes.EntryPrice, 1e-9)
	assert.InDelta(t, 0.52, no.EntryPrice, 1e-9)
	assert.Equal(t, mmContractSize, yes.ProposedSize)
	assert.True(t, yes.Valid())
	assert.True(t, no.Valid())
}

func TestMarketMaking_NarrowSpreadSkipped(t *testing.T) {
	// yes bid 49¢, no bid 50¢ → spread 0.01 < 0.02.
	fm := &fakeMarkets{
		markets: []domain.Market{mmMarket("KXMM-2")},
		books: map[string]domain.Orderbook{
			"KXMM-2": {
				Yes: []domain.PriceLevel{{Price: 49, Qty: 200}},
				No:  []domain.PriceLevel{{Price: 50, Qty: 200}},
			},
		},
	}

	mm := NewMarketMaking(MarketMakingConfig{})
	signals, err := mm.Scan(context.Background(), scanCtx(fm))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMarketMaking_SkipsMarketsWithRestingOrders(t *testing.T) {
	fm := &fakeMarkets{
		markets: []domain.Market{mmMarket("KXMM-3")},
		books: map[string]domain.Orderbook{
			"KXMM-3": {
				Yes: []domain.PriceLevel{{Price: 45, Qty: 200}},
				No:  []domain.PriceLevel{{Price: 51, Qty: 200}},
			},
		},
	}

	sc := scanCtx(fm)
	sc.OrderTickers["KXMM-3"] = true

	mm := NewMarketMaking(MarketMakingConfig{})
	signals, err := mm.Scan(context.Background(), sc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMarketMaking_SkipsNearExpiry(t *testing.T) {
	m := mmMarket("KXMM-4")
	m.CloseTime = closesIn(2) // por debajo del mínimo de 4h
	fm := &fakeMarkets{
		markets: []domain.Market{m},
		books: map[string]domain.Orderbook{
			"KXMM-4": {
				Yes: []domain.PriceLevel{{Price: 45, Qty: 200}},
				No:  []domain.PriceLevel{{Price: 51, Qty: 200}},
			},
		},
	}

	mm := NewMarketMaking(MarketMakingConfig{})
	signals, err := mm.Scan(context.Background(), scanCtx(fm))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

// ─── inventario descompensado ────────────────────────────────────────────

type stubOrderExec struct {
	orders []domain.Order
	err    error
}

func (s *stubOrderExec) PlaceOrder(_ context.Context, _ ports.OrderRequest) (domain.Order, error) {
	return domain.Order{}, nil
}
func (s *stubOrderExec) CancelOrder(_ context.Context, _ string) error { return nil }
func (s *stubOrderExec) GetOrders(_ context.Context, _ string) ([]domain.Order, error) {
	return s.orders, s.err
}
func (s *stubOrderExec) GetBalance(_ context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubOrderExec) GetFills(_ context.Context, _ string) ([]domain.Fill, error) {
	return nil, nil
}

func (s *stubOrderExec) GetPositions(_ context.Context) ([]domain.MarketPosition, error) {
	return nil, nil
}

func TestImbalancedOrders_CancelsBothSides(t *testing.T) {
	exec := &stubOrderExec{orders: []domain.Order{
		// Par descompensado: YES llenado 80%, NO al 0%.
		{ID: "y1", Ticker: "KXMM-BAD", Side: domain.SideYes, Count: 10, RemainingCount: 2},
		{ID: "n1", Ticker: "KXMM-BAD", Side: domain.SideNo, Count: 10, RemainingCount: 10},
		// Par equilibrado: ambos al 50%.
		{ID: "y2", Ticker: "KXMM-OK", Side: domain.SideYes, Count: 10, RemainingCount: 5},
		{ID: "n2", Ticker: "KXMM-OK", Side: domain.SideNo, Count: 10, RemainingCount: 5},
		// Orden suelta sin par: se ignora.
		{ID: "y3", Ticker: "KXMM-SOLO", Side: domain.SideYes, Count: 10, RemainingCount: 1},
	}}

	ids, err := ImbalancedOrders(context.Background(), exec)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"y1", "n1"}, ids)
}

func TestFillRatio(t *testing.T) {
	assert.InDelta(t, 0.8, fillRatio([]domain.Order{{Count: 10, RemainingCount: 2}}), 1e-9)
	assert.Zero(t, fillRatio(nil))
	assert.Zero(t, fillRatio([]domain.Order{{Count: 0, RemainingCount: 0}}))
}
