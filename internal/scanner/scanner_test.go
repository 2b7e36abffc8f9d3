package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/risk"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

// ─── fakes ───────────────────────────────────────────────────────────────

type memStore struct {
	settings  map[string]string
	pnl       decimal.Decimal
	positions []domain.Position
}

func newMemStore() *memStore {
	return &memStore{settings: map[string]string{}}
}

func (s *memStore) GetSetting(_ context.Context, key, fallback string) (string, error) {
	if v, ok := s.settings[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (s *memStore) SetSetting(_ context.Context, key, value string) error {
	s.settings[key] = value
	return nil
}

func (s *memStore) RealizedPnlSince(_ context.Context, _ time.Time) (decimal.Decimal, error) {
	return s.pnl, nil
}

func (s *memStore) RecentTradeTickers(_ context.Context, _ string, _ time.Time) (map[string]bool, error) {
	return nil, nil
}

func (s *memStore) CreateTradeWithPosition(_ context.Context, _ domain.Trade, _ domain.Position) error {
	return nil
}

func (s *memStore) OpenPositions(_ context.Context) ([]domain.Position, error) {
	return s.positions, nil
}

func (s *memStore) UpdatePositionMark(_ context.Context, _ string, _ float64, _ decimal.Decimal) error {
	return nil
}

func (s *memStore) UpdatePositionExpiry(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (s *memStore) CloseTrade(_ context.Context, _ ports.TradeClose) (domain.Trade, error) {
	return domain.Trade{}, nil
}

func (s *memStore) InsertRecommendation(_ context.Context, _ domain.Recommendation) error {
	return nil
}

func (s *memStore) GetRecommendation(_ context.Context, _ uuid.UUID) (domain.Recommendation, error) {
	return domain.Recommendation{}, errors.New("not found")
}

func (s *memStore) PendingRecommendations(_ context.Context) ([]domain.Recommendation, error) {
	return nil, nil
}

func (s *memStore) ResolveRecommendation(_ context.Context, _ uuid.UUID, _ domain.RecommendationStatus, _ string) error {
	return nil
}

func (s *memStore) Close() error { return nil }

type fakeExchange struct {
	calls  int
	orders []domain.Order
}

func (e *fakeExchange) GetMarkets(_ context.Context, _ ports.MarketsQuery) ([]domain.Market, error) {
	e.calls++
	return nil, nil
}

func (e *fakeExchange) GetActiveMarkets(_ context.Context, _ string, _ int) ([]domain.Market, error) {
	e.calls++
	return nil, nil
}

func (e *fakeExchange) GetMarket(_ context.Context, _ string) (domain.Market, error) {
	e.calls++
	return domain.Market{}, errors.New("not found")
}

func (e *fakeExchange) GetOrderbook(_ context.Context, _ string) (domain.Orderbook, error) {
	e.calls++
	return domain.Orderbook{}, nil
}

func (e *fakeExchange) PlaceOrder(_ context.Context, req ports.OrderRequest) (domain.Order, error) {
	e.calls++
	return domain.Order{ID: "ord-1", Ticker: req.Ticker, Status: "resting"}, nil
}

func (e *fakeExchange) CancelOrder(_ context.Context, _ string) error {
	e.calls++
	return nil
}

func (e *fakeExchange) GetOrders(_ context.Context, _ string) ([]domain.Order, error) {
	e.calls++
	return e.orders, nil
}

func (e *fakeExchange) GetBalance(_ context.Context) (decimal.Decimal, error) {
	e.calls++
	return decimal.NewFromInt(1000), nil
}

func (e *fakeExchange) GetFills(_ context.Context, _ string) ([]domain.Fill, error) {
	e.calls++
	return nil, nil
}

func (e *fakeExchange) GetPositions(_ context.Context) ([]domain.MarketPosition, error) {
	e.calls++
	return nil, nil
}

func (e *fakeExchange) Close() error { return nil }

type stubProducer struct {
	name    string
	signals []domain.TradeSignal
	err     error
	scans   int
}

func (p *stubProducer) Name() string       { return p.name }
func (p *stubProducer) EnabledKey() string { return p.name + "_enabled" }

func (p *stubProducer) Scan(_ context.Context, _ strategy.ScanContext) ([]domain.TradeSignal, error) {
	p.scans++
	return p.signals, p.err
}

type recordingTrader struct {
	executed []string
	err      error
}

func (t *recordingTrader) Execute(_ context.Context, sig domain.TradeSignal) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	t.executed = append(t.executed, sig.Ticker)
	return true, nil
}

func goodSignal(ticker string) domain.TradeSignal {
	return domain.TradeSignal{
		Ticker:            ticker,
		Strategy:          "bond",
		Side:              domain.SideYes,
		ProposedSize:      5,
		EntryPrice:        0.90,
		Edge:              0.07,
		ExpectedReturnPct: 0.11,
		HoursToResolution: 3,
		Confidence:        0.85,
	}
}

func newTestScanner(store *memStore, exch *fakeExchange, trader *recordingTrader, producers ...strategy.SignalProducer) *Scanner {
	return New(Deps{
		Store:           store,
		Exchange:        exch,
		Registry:        strategy.NewRegistry(producers...),
		Risk:            risk.NewManager(store),
		Trader:          trader,
		InitialBankroll: decimal.NewFromInt(1000),
	})
}

// ─── tests ───────────────────────────────────────────────────────────────

func TestRunCycle_StrategyFailureIsolation(t *testing.T) {
	store := newMemStore()
	broken := &stubProducer{name: "broken", err: errors.New("feed down")}
	healthy := &stubProducer{name: "healthy", signals: []domain.TradeSignal{goodSignal("OK-1")}}
	trader := &recordingTrader{}

	s := newTestScanner(store, &fakeExchange{}, trader, broken, healthy)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, 1, broken.scans)
	assert.Equal(t, 1, healthy.scans)
	// El fallo de una estrategia no arrastra a las demás.
	assert.Equal(t, []string{"OK-1"}, trader.executed)
}

func TestRunCycle_KillSwitchSetting(t *testing.T) {
	store := newMemStore()
	store.settings[domain.SettingBotEnabled] = "false"
	prod := &stubProducer{name: "bond", signals: []domain.TradeSignal{goodSignal("T")}}
	trader := &recordingTrader{}

	s := newTestScanner(store, &fakeExchange{}, trader, prod)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Zero(t, prod.scans)
	assert.Empty(t, trader.executed)
}

func TestRunCycle_EnvKillSwitchWins(t *testing.T) {
	t.Setenv("BOT_ENABLED", "0")

	store := newMemStore()
	store.settings[domain.SettingBotEnabled] = "true"
	prod := &stubProducer{name: "bond", signals: []domain.TradeSignal{goodSignal("T")}}
	trader := &recordingTrader{}

	s := newTestScanner(store, &fakeExchange{}, trader, prod)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Zero(t, prod.scans)
}

func TestRunCycle_DailyLossHaltPersistsKillSwitch(t *testing.T) {
	store := newMemStore()
	store.settings[domain.SettingBankroll] = "5000"
	store.pnl = decimal.NewFromInt(-151) // límite: 5000 × 0.03 = 150
	prod := &stubProducer{name: "bond", signals: []domain.TradeSignal{goodSignal("T")}}
	trader := &recordingTrader{}

	s := newTestScanner(store, &fakeExchange{}, trader, prod)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Zero(t, prod.scans)
	assert.Empty(t, trader.executed)
	assert.Equal(t, "false", store.settings[domain.SettingBotEnabled])
}

func TestRunCycle_UnderDailyLossLimitContinues(t *testing.T) {
	store := newMemStore()
	store.settings[domain.SettingBankroll] = "5000"
	store.pnl = decimal.NewFromInt(-149)
	prod := &stubProducer{name: "bond", signals: []domain.TradeSignal{goodSignal("T")}}
	trader := &recordingTrader{}

	s := newTestScanner(store, &fakeExchange{}, trader, prod)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, 1, prod.scans)
	assert.NotEqual(t, "false", store.settings[domain.SettingBotEnabled])
}

func TestRunCycle_DisabledStrategySkipped(t *testing.T) {
	store := newMemStore()
	store.settings["bond_enabled"] = "false"
	prod := &stubProducer{name: "bond", signals: []domain.TradeSignal{goodSignal("T")}}
	trader := &recordingTrader{}

	s := newTestScanner(store, &fakeExchange{}, trader, prod)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Zero(t, prod.scans)
	assert.Empty(t, trader.executed)
}

func TestRunCycle_InvalidSignalsDropped(t *testing.T) {
	store := newMemStore()
	bad := goodSignal("BAD")
	bad.EntryPrice = 1.5
	prod := &stubProducer{name: "bond", signals: []domain.TradeSignal{bad, goodSignal("GOOD")}}
	trader := &recordingTrader{}

	s := newTestScanner(store, &fakeExchange{}, trader, prod)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Equal(t, []string{"GOOD"}, trader.executed)
}

func TestRunCycle_CapsTradesPerCycle(t *testing.T) {
	store := newMemStore()
	var signals []domain.TradeSignal
	for _, tk := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		signals = append(signals, goodSignal(tk))
	}
	prod := &stubProducer{name: "bond", signals: signals}
	trader := &recordingTrader{}

	s := newTestScanner(store, &fakeExchange{}, trader, prod)

	require.NoError(t, s.RunCycle(context.Background()))
	assert.Len(t, trader.executed, maxTradesPerCycle)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "on", " True "} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"false", "0", "no", "off", "", "garbage"} {
		assert.False(t, parseBool(v), v)
	}
}
