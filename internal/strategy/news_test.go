package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

func newsMarket(ticker, title string, yes float64) domain.Market {
	return domain.Market{
		Ticker:    ticker,
		Title:     title,
		Category:  "Economics",
		Status:    "open",
		LastPrice: yes,
		Volume:    10000,
		CloseTime: closesIn(24),
	}
}

func headline(text, direction string, conf float64) domain.ClassifiedHeadline {
	return domain.ClassifiedHeadline{
		Headline:   text,
		Relevant:   true,
		Direction:  direction,
		Confidence: conf,
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Federal Reserve cuts interest rates by 0.25%!")
	// Solo palabras de 5+ caracteres, en minúsculas.
	assert.Equal(t, []string{"federal", "reserve", "interest", "rates"}, got)
}

func TestSharedWords(t *testing.T) {
	n := sharedWords(
		"Federal Reserve signals interest rate pause",
		"Will the Federal Reserve change interest rates in September?",
	)
	// federal, reserve, interest: "rates"≠"rate", "signals"/"september" no cruzan.
	assert.Equal(t, 3, n)

	// Palabras repetidas cuentan una sola vez.
	assert.Equal(t, 1, sharedWords("bitcoin bitcoin bitcoin", "bitcoin bitcoin price"))
}

func TestPriceMovedWithNews(t *testing.T) {
	assert.True(t, priceMovedWithNews(0.60, "yes_up"))
	assert.False(t, priceMovedWithNews(0.55, "yes_up"))
	assert.True(t, priceMovedWithNews(0.40, "yes_down"))
	assert.False(t, priceMovedWithNews(0.45, "yes_down"))
}

func TestNews_BearishHeadlineTakesNoSide(t *testing.T) {
	fm := &fakeMarkets{markets: []domain.Market{
		newsMarket("KXFED-1", "Will the Federal Reserve raise interest rates?", 0.50),
	}}

	sc := scanCtx(fm)
	sc.Headlines = []domain.ClassifiedHeadline{
		headline("Federal Reserve signals no change to interest rates", "yes_down", 0.90),
	}

	n := NewNews(NewsConfig{})
	signals, err := n.Scan(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, "news_arbitrage", sig.Strategy)
	assert.Equal(t, domain.SideNo, sig.Side)
	assert.InDelta(t, 0.50, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 0.90*newsConfDiscount, sig.Confidence, 1e-9)
	assert.NotEmpty(t, sig.NewsHeadline)
}

func TestNews_LowConfidenceHeadlineIgnored(t *testing.T) {
	fm := &fakeMarkets{markets: []domain.Market{
		newsMarket("KXFED-2", "Will the Federal Reserve raise interest rates?", 0.50),
	}}

	sc := scanCtx(fm)
	sc.Headlines = []domain.ClassifiedHeadline{
		headline("Federal Reserve signals no change to interest rates", "yes_down", 0.40),
	}

	n := NewNews(NewsConfig{})
	signals, err := n.Scan(context.Background(), sc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestNews_AlreadyMovedPriceSkipped(t *testing.T) {
	// El mercado ya cayó a 0.35: la noticia está incorporada.
	fm := &fakeMarkets{markets: []domain.Market{
		newsMarket("KXFED-3", "Will the Federal Reserve raise interest rates?", 0.35),
	}}

	sc := scanCtx(fm)
	sc.Headlines = []domain.ClassifiedHeadline{
		headline("Federal Reserve signals no change to interest rates", "yes_down", 0.90),
	}

	n := NewNews(NewsConfig{})
	signals, err := n.Scan(context.Background(), sc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestNews_UnrelatedMarketIgnored(t *testing.T) {
	fm := &fakeMarkets{markets: []domain.Market{
		newsMarket("KXNYC-1", "Will the high in NYC be above 85°F?", 0.50),
	}}

	sc := scanCtx(fm)
	sc.Headlines = []domain.ClassifiedHeadline{
		headline("Federal Reserve signals no change to interest rates", "yes_down", 0.90),
	}

	n := NewNews(NewsConfig{})
	signals, err := n.Scan(context.Background(), sc)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestNews_OneMarketPerHeadline(t *testing.T) {
	fm := &fakeMarkets{markets: []domain.Market{
		newsMarket("KXFED-A", "Will the Federal Reserve raise interest rates?", 0.50),
		newsMarket("KXFED-B", "Federal Reserve interest rates decision September", 0.50),
	}}

	sc := scanCtx(fm)
	sc.Headlines = []domain.ClassifiedHeadline{
		headline("Federal Reserve signals no change to interest rates", "yes_down", 0.90),
	}

	n := NewNews(NewsConfig{})
	signals, err := n.Scan(context.Background(), sc)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestNews_NoHeadlinesNoMarketCalls(t *testing.T) {
	fm := &fakeMarkets{err: assert.AnError} // cualquier fetch fallaría
	n := NewNews(NewsConfig{})

	signals, err := n.Scan(context.Background(), scanCtx(fm))
	require.NoError(t, err)
	assert.Empty(t, signals)
}
