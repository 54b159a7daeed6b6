package tools_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/knowledge"
	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/quant"
	"github.com/marketlens/marketlens/internal/tools"
)

func f64(v float64) *float64 { return &v }

type fakeMarket struct {
	prevCloseCalls  int
	detailsCalls    int
	financialsCalls int
	newsCalls       int
	newsLimit       int
	dividendsCalls  int
	splitsCalls     int
	aggregatesCalls int
	aggregatesFrom  []string
}

func (m *fakeMarket) PreviousClose(_ context.Context, ticker string) (*market.AggregatesResponse, error) {
	m.prevCloseCalls++
	return &market.AggregatesResponse{
		Ticker:  ticker,
		Results: []market.Bar{{Close: 227.52, Open: 225.1, High: 229, Low: 224.9, Volume: 51230000, VWAP: 226.8}},
	}, nil
}

func (m *fakeMarket) TickerDetails(_ context.Context, ticker string) (*market.TickerDetailsResponse, error) {
	m.detailsCalls++
	return &market.TickerDetailsResponse{Results: market.TickerDetails{
		Ticker: ticker, Name: "Apple Inc.", Description: "Consumer electronics", MarketCap: 3.4e12,
	}}, nil
}

func (m *fakeMarket) Financials(_ context.Context, _ string, _ int) (*market.FinancialsResponse, error) {
	m.financialsCalls++
	return &market.FinancialsResponse{Results: []market.Financial{
		{
			FiscalPeriod: "Q3", FiscalYear: "2026",
			Financials: market.FinancialStatements{
				IncomeStatement: market.IncomeStatement{Revenues: market.Metric{Value: f64(85.7e9)}},
				BalanceSheet:    market.BalanceSheet{Assets: market.Metric{Value: f64(331e9)}},
			},
		},
	}}, nil
}

func (m *fakeMarket) TickerNews(_ context.Context, _ string, limit int) (*market.NewsResponse, error) {
	m.newsCalls++
	m.newsLimit = limit
	return &market.NewsResponse{Results: []market.NewsArticle{
		{Title: "Apple beats estimates", ArticleURL: "https://example.com/a", PublishedUTC: "2026-08-29T12:00:00Z", Publisher: market.Publisher{Name: "Newswire"}},
	}}, nil
}

func (m *fakeMarket) Dividends(_ context.Context, _ string, _ int) (*market.DividendsResponse, error) {
	m.dividendsCalls++
	return &market.DividendsResponse{Results: []market.Dividend{
		{ExDividendDate: "2026-08-11", PayDate: "2026-08-14", CashAmount: f64(0.26), Frequency: 4},
	}}, nil
}

func (m *fakeMarket) Splits(_ context.Context, _ string) (*market.SplitsResponse, error) {
	m.splitsCalls++
	return &market.SplitsResponse{Results: []market.Split{
		{ExecutionDate: "2020-08-31", SplitFrom: 1, SplitTo: 4},
	}}, nil
}

func (m *fakeMarket) Aggregates(_ context.Context, _, _, from, _ string) (*market.AggregatesResponse, error) {
	m.aggregatesCalls++
	m.aggregatesFrom = append(m.aggregatesFrom, from)
	return &market.AggregatesResponse{Results: []market.Bar{
		{Close: 210, Timestamp: 1782864000000}, // 2026-07-01T00:00:00Z
	}}, nil
}

type fakeKB struct {
	calls   int
	results []knowledge.Result
}

func (k *fakeKB) Search(_ context.Context, _ string, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	k.calls++
	return k.results, nil
}

type fakeSentiment struct {
	calls int
}

func (s *fakeSentiment) Analyze(_ context.Context, _ string) (*quant.SentimentResult, error) {
	s.calls++
	return &quant.SentimentResult{
		Aggregate: quant.Aggregate{Label: "bullish", Score: 0.62, PostCount: 140},
		Posts:     []quant.Post{{Platform: "reddit", Content: "to the moon", Sentiment: quant.PostSentiment{Label: "bullish"}}},
	}, nil
}

type fakeForecaster struct {
	calls  int
	result *quant.ForecastResult
}

func (f *fakeForecaster) Forecast(_ context.Context, _ string) (*quant.ForecastResult, error) {
	f.calls++
	return f.result, nil
}

type deps struct {
	market     *fakeMarket
	kb         *fakeKB
	sentiment  *fakeSentiment
	forecaster *fakeForecaster
	executor   *tools.Executor
}

func newDeps(opts ...tools.CacheOption) *deps {
	d := &deps{
		market:    &fakeMarket{},
		kb:        &fakeKB{},
		sentiment: &fakeSentiment{},
		forecaster: &fakeForecaster{result: &quant.ForecastResult{
			Forecast: []quant.Prediction{{Date: "2026-09-01", PredictedClose: 231.4}},
		}},
	}
	d.executor = tools.NewExecutor(d.market, d.kb, d.sentiment, d.forecaster, tools.NewCache(opts...), nil)
	return d
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	d := newDeps()
	result := d.executor.Execute(context.Background(), "get_weather", map[string]any{}, nil)
	assert.Equal(t, map[string]any{"error": "Unknown tool: get_weather"}, result)
}

func TestStockQuoteLiveThenCached(t *testing.T) {
	t.Parallel()

	d := newDeps()
	args := map[string]any{"ticker": "aapl"}

	result := d.executor.Execute(context.Background(), tools.ToolStockQuote, args, nil)
	assert.Equal(t, "AAPL", result["ticker"])
	assert.Equal(t, 227.52, result["close"])
	assert.NotContains(t, result, "source")
	assert.Equal(t, 1, d.market.prevCloseCalls)

	// Second call within the TTL is served from the server cache.
	d.executor.Execute(context.Background(), tools.ToolStockQuote, args, nil)
	assert.Equal(t, 1, d.market.prevCloseCalls)
}

func TestStockQuoteCacheExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	d := newDeps(tools.WithCacheTTL(5*time.Minute), tools.WithCacheClock(func() time.Time { return now }))
	args := map[string]any{"ticker": "AAPL"}

	d.executor.Execute(context.Background(), tools.ToolStockQuote, args, nil)
	now = now.Add(6 * time.Minute)
	d.executor.Execute(context.Background(), tools.ToolStockQuote, args, nil)
	assert.Equal(t, 2, d.market.prevCloseCalls)
}

func TestStockQuoteSnapshotShortCircuits(t *testing.T) {
	t.Parallel()

	d := newDeps()
	snap := tools.NewSnapshot("AAPL", map[string]any{
		"overview": map[string]any{
			"previousClose": map[string]any{
				"results": []any{map[string]any{"c": 230.0, "o": 228.0, "h": 231.0, "l": 227.5, "v": 4.2e7, "vw": 229.4}},
			},
		},
	})

	result := d.executor.Execute(context.Background(), tools.ToolStockQuote, map[string]any{"ticker": "AAPL"}, snap)
	assert.Equal(t, 230.0, result["close"])
	assert.Equal(t, "cached", result["source"])
	assert.Equal(t, 0, d.market.prevCloseCalls, "snapshot hit must not reach the provider")
}

func TestSnapshotIgnoredForOtherTicker(t *testing.T) {
	t.Parallel()

	d := newDeps()
	snap := tools.NewSnapshot("MSFT", map[string]any{
		"overview": map[string]any{
			"previousClose": map[string]any{"results": []any{map[string]any{"c": 500.0}}},
		},
	})

	result := d.executor.Execute(context.Background(), tools.ToolStockQuote, map[string]any{"ticker": "AAPL"}, snap)
	assert.Equal(t, 227.52, result["close"])
	assert.Equal(t, 1, d.market.prevCloseCalls)
}

func TestCompanyInfoSnapshotBareObject(t *testing.T) {
	t.Parallel()

	d := newDeps()
	snap := tools.NewSnapshot("AAPL", map[string]any{
		"overview": map[string]any{
			"details": map[string]any{"name": "Apple Inc.", "description": "Designs consumer electronics.", "market_cap": 3.4e12},
		},
	})

	result := d.executor.Execute(context.Background(), tools.ToolCompanyInfo, map[string]any{"ticker": "AAPL"}, snap)
	assert.Equal(t, "Apple Inc.", result["name"])
	assert.Equal(t, "cached", result["source"])
	assert.Equal(t, 0, d.market.detailsCalls)
}

func TestFinancialsNormalization(t *testing.T) {
	t.Parallel()

	d := newDeps()
	result := d.executor.Execute(context.Background(), tools.ToolFinancials, map[string]any{"ticker": "AAPL"}, nil)

	periods, ok := result["periods"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, periods, 1)
	assert.Equal(t, "Q3 2026", periods[0]["period"])
	assert.Equal(t, f64(85.7e9), periods[0]["revenue"])
	assert.Nil(t, periods[0]["net_income"], "missing metrics stay null")
}

func TestNewsLimitClamp(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.executor.Execute(context.Background(), tools.ToolNews, map[string]any{"ticker": "AAPL", "limit": float64(50)}, nil)
	assert.Equal(t, 20, d.market.newsLimit)
}

func TestKnowledgeSearchBypassesCache(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.kb.results = []knowledge.Result{
		{
			Document: knowledge.Document{
				ID: "AAPL_news_abc123def456",
				Metadata: map[string]string{
					knowledge.MetaTitle:         "Earnings Deep Dive",
					knowledge.MetaSource:        "Newswire",
					knowledge.MetaPublishedDate: "2026-08-29T12:00:00Z",
					knowledge.MetaFullContent:   "Apple reported strong results.",
				},
			},
			Similarity: 0.9137,
		},
	}
	args := map[string]any{"ticker": "AAPL", "query": "earnings"}

	result := d.executor.Execute(context.Background(), tools.ToolSearchKnowledge, args, nil)
	results, ok := result["results"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "Earnings Deep Dive", results[0]["title"])
	assert.Equal(t, "2026-08-29", results[0]["date"])
	assert.Equal(t, 0.914, results[0]["relevance_score"])

	// Every call hits the store; the corpus may have changed since the last.
	d.executor.Execute(context.Background(), tools.ToolSearchKnowledge, args, nil)
	assert.Equal(t, 2, d.kb.calls)
}

func TestKnowledgeSearchEmpty(t *testing.T) {
	t.Parallel()

	d := newDeps()
	result := d.executor.Execute(context.Background(), tools.ToolSearchKnowledge,
		map[string]any{"ticker": "AAPL", "query": "anything"}, nil)
	assert.Contains(t, result["message"], "No relevant articles found")
}

func TestSentimentSnapshot(t *testing.T) {
	t.Parallel()

	d := newDeps()
	snap := tools.NewSnapshot("TSLA", map[string]any{
		"sentiment": map[string]any{
			"aggregate": map[string]any{"label": "bearish", "score": -0.3, "post_count": float64(80)},
			"posts": []any{
				map[string]any{"platform": "stocktwits", "content": "selling", "sentiment_label": "bearish"},
			},
		},
	})

	result := d.executor.Execute(context.Background(), tools.ToolSentiment, map[string]any{"ticker": "TSLA"}, snap)
	assert.Equal(t, "bearish", result["overall_sentiment"])
	assert.Equal(t, "cached", result["source"])
	assert.Equal(t, 0, d.sentiment.calls)

	posts, ok := result["top_posts"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, posts, 1)
	assert.Equal(t, "bearish", posts[0]["sentiment"], "flat sentiment_label shape is honored")
}

func TestForecastSkipsSnapshot(t *testing.T) {
	t.Parallel()

	d := newDeps()
	snap := tools.NewSnapshot("AAPL", map[string]any{"forecast": map[string]any{"anything": true}})

	result := d.executor.Execute(context.Background(), tools.ToolForecast, map[string]any{"ticker": "AAPL"}, snap)
	assert.Equal(t, 1, d.forecaster.calls)

	predictions, ok := result["predictions"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, predictions, 1)
	assert.Equal(t, 231.4, predictions[0]["predicted_close"])
}

func TestForecastServiceError(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.forecaster.result = &quant.ForecastResult{Error: "insufficient history for ticker"}

	result := d.executor.Execute(context.Background(), tools.ToolForecast, map[string]any{"ticker": "IPO1"}, nil)
	assert.Equal(t, map[string]any{"error": "insufficient history for ticker"}, result)
}

func TestPriceHistoryRangeKeyedCache(t *testing.T) {
	t.Parallel()

	d := newDeps()
	july := map[string]any{"ticker": "AAPL", "from_date": "2026-07-01", "to_date": "2026-08-01"}
	august := map[string]any{"ticker": "AAPL", "from_date": "2026-08-01", "to_date": "2026-08-30"}

	result := d.executor.Execute(context.Background(), tools.ToolPriceHistory, july, nil)
	assert.Equal(t, "day", result["timespan"])
	bars, ok := result["bars"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, bars, 1)
	assert.Equal(t, "2026-07-01", bars[0]["date"])

	// Same range again is cached; a different range is a fresh provider call.
	d.executor.Execute(context.Background(), tools.ToolPriceHistory, july, nil)
	assert.Equal(t, 1, d.market.aggregatesCalls)
	d.executor.Execute(context.Background(), tools.ToolPriceHistory, august, nil)
	assert.Equal(t, 2, d.market.aggregatesCalls)
	assert.Equal(t, []string{"2026-07-01", "2026-08-01"}, d.market.aggregatesFrom)
}

func TestSplitsRatio(t *testing.T) {
	t.Parallel()

	d := newDeps()
	result := d.executor.Execute(context.Background(), tools.ToolSplits, map[string]any{"ticker": "AAPL"}, nil)

	splits, ok := result["splits"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, splits, 1)
	assert.Equal(t, "4-for-1", splits[0]["ratio"])
}
