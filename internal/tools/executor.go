// Package tools defines the agent's tool surface: function declarations for
// the model, and an executor that resolves calls through a three-layer cache
// (frontend snapshot, server TTL cache, live service call).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/marketlens/marketlens/internal/knowledge"
	"github.com/marketlens/marketlens/internal/log"
	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/quant"
)

// MarketData is the slice of the market client the executor needs.
type MarketData interface {
	PreviousClose(ctx context.Context, ticker string) (*market.AggregatesResponse, error)
	TickerDetails(ctx context.Context, ticker string) (*market.TickerDetailsResponse, error)
	Financials(ctx context.Context, ticker string, limit int) (*market.FinancialsResponse, error)
	TickerNews(ctx context.Context, ticker string, limit int) (*market.NewsResponse, error)
	Dividends(ctx context.Context, ticker string, limit int) (*market.DividendsResponse, error)
	Splits(ctx context.Context, ticker string) (*market.SplitsResponse, error)
	Aggregates(ctx context.Context, ticker, timespan, from, to string) (*market.AggregatesResponse, error)
}

// KnowledgeSearcher performs semantic search over ingested articles.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// SentimentAnalyzer runs social sentiment analysis.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, ticker string) (*quant.SentimentResult, error)
}

// Forecaster produces price forecasts.
type Forecaster interface {
	Forecast(ctx context.Context, ticker string) (*quant.ForecastResult, error)
}

type handler func(ctx context.Context, args map[string]any, snap *Snapshot) (map[string]any, error)

// Executor resolves tool calls. Results are compact maps shaped for the
// model's context window, not raw provider payloads.
//
// Executor is safe for concurrent use; the per-request snapshot is passed
// into Execute rather than held as state.
type Executor struct {
	marketData MarketData
	kb         KnowledgeSearcher
	sentiment  SentimentAnalyzer
	forecaster Forecaster
	cache      *Cache
	logger     log.Logger

	handlers map[string]handler
}

// NewExecutor creates an Executor.
func NewExecutor(md MarketData, kb KnowledgeSearcher, sa SentimentAnalyzer, fc Forecaster, cache *Cache, logger log.Logger) *Executor {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	e := &Executor{
		marketData: md,
		kb:         kb,
		sentiment:  sa,
		forecaster: fc,
		cache:      cache,
		logger:     logger,
	}
	e.handlers = map[string]handler{
		ToolStockQuote:      e.stockQuote,
		ToolCompanyInfo:     e.companyInfo,
		ToolFinancials:      e.financials,
		ToolNews:            e.news,
		ToolSearchKnowledge: e.searchKnowledge,
		ToolSentiment:       e.analyzeSentiment,
		ToolForecast:        e.priceForecast,
		ToolDividends:       e.dividends,
		ToolSplits:          e.splits,
		ToolPriceHistory:    e.priceHistory,
	}
	return e
}

// Execute runs one tool call. It never returns an error to the caller; any
// failure is reported inside the result map so the model can react to it.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, snap *Snapshot) map[string]any {
	h, ok := e.handlers[name]
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Unknown tool: %s", name)}
	}

	result, err := h(ctx, args, snap)
	if err != nil {
		e.logger.Error("tool execution failed", "tool", name, "error", err)
		return map[string]any{"error": fmt.Sprintf("Tool execution failed: %v", err)}
	}
	return result
}

// -- Handlers --

func (e *Executor) stockQuote(ctx context.Context, args map[string]any, snap *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)

	if section := snap.lookup(ToolStockQuote, ticker); section != nil {
		var resp market.AggregatesResponse
		if decodeSection(section, &resp) == nil && len(resp.Results) > 0 {
			result := formatQuote(ticker, resp.Results[0])
			result["source"] = "cached"
			return result, nil
		}
	}

	key := cacheKey(ToolStockQuote, ticker)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := e.marketData.PreviousClose(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return map[string]any{"error": "No quote data available"}, nil
	}

	result := formatQuote(ticker, resp.Results[0])
	e.cache.Set(key, result)
	return result, nil
}

func (e *Executor) companyInfo(ctx context.Context, args map[string]any, snap *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)

	if section := snap.lookup(ToolCompanyInfo, ticker); section != nil {
		if details, ok := decodeDetails(section); ok {
			result := formatCompany(ticker, details)
			result["source"] = "cached"
			return result, nil
		}
	}

	key := cacheKey(ToolCompanyInfo, ticker)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := e.marketData.TickerDetails(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if resp.Results.Name == "" && resp.Results.Description == "" {
		return map[string]any{"error": "No company data available"}, nil
	}

	result := formatCompany(ticker, resp.Results)
	e.cache.Set(key, result)
	return result, nil
}

func (e *Executor) financials(ctx context.Context, args map[string]any, snap *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)

	if section := snap.lookup(ToolFinancials, ticker); section != nil {
		var periods []market.Financial
		if decodeResults(section, &periods) == nil {
			return formatFinancials(ticker, periods), nil
		}
	}

	key := cacheKey(ToolFinancials, ticker)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := e.marketData.Financials(ctx, ticker, 4)
	if err != nil {
		return nil, err
	}

	result := formatFinancials(ticker, resp.Results)
	e.cache.Set(key, result)
	return result, nil
}

func (e *Executor) news(ctx context.Context, args map[string]any, snap *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)
	limit := intArg(args, "limit", 10)
	if limit > 20 {
		limit = 20
	}

	if section := snap.lookup(ToolNews, ticker); section != nil {
		var articles []market.NewsArticle
		if decodeResults(section, &articles) == nil {
			return formatNews(ticker, articles), nil
		}
	}

	key := cacheKey(ToolNews, ticker)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := e.marketData.TickerNews(ctx, ticker, limit)
	if err != nil {
		return nil, err
	}

	result := formatNews(ticker, resp.Results)
	e.cache.Set(key, result)
	return result, nil
}

// searchKnowledge always goes to the vector store. The corpus changes as
// articles are ingested, so neither cache layer applies.
func (e *Executor) searchKnowledge(ctx context.Context, args map[string]any, _ *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)
	query := stringArg(args, "query")

	results, err := e.kb.Search(ctx, query, knowledge.WithTicker(ticker), knowledge.WithTopK(5))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return map[string]any{
			"message": "No relevant articles found in knowledge base. Try using get_news for recent headlines.",
		}, nil
	}

	formatted := make([]map[string]any, 0, len(results))
	for _, res := range results {
		content := res.Metadata[knowledge.MetaFullContent]
		if content == "" {
			content = res.Metadata[knowledge.MetaContentPreview]
		}
		formatted = append(formatted, map[string]any{
			"title":           orDefault(res.Metadata[knowledge.MetaTitle], "Untitled"),
			"source":          orDefault(res.Metadata[knowledge.MetaSource], "Unknown"),
			"date":            truncate(res.Metadata[knowledge.MetaPublishedDate], 10),
			"content":         truncate(content, 500),
			"relevance_score": math.Round(res.Similarity*1000) / 1000,
		})
	}
	return map[string]any{"ticker": ticker, "results": formatted}, nil
}

func (e *Executor) analyzeSentiment(ctx context.Context, args map[string]any, snap *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)

	if section := snap.lookup(ToolSentiment, ticker); section != nil {
		if result, ok := formatSnapshotSentiment(ticker, section); ok {
			return result, nil
		}
	}

	key := cacheKey(ToolSentiment, ticker)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	data, err := e.sentiment.Analyze(ctx, ticker)
	if err != nil {
		return nil, err
	}

	result := formatSentiment(ticker, data)
	e.cache.Set(key, result)
	return result, nil
}

// priceForecast skips the frontend snapshot: forecasts are generated on
// demand and the dashboard never holds one.
func (e *Executor) priceForecast(ctx context.Context, args map[string]any, _ *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)

	key := cacheKey(ToolForecast, ticker)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	data, err := e.forecaster.Forecast(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if data.Error != "" {
		return map[string]any{"error": data.Error}, nil
	}

	predictions := make([]map[string]any, 0, 10)
	for _, p := range firstN(data.Forecast, 10) {
		predictions = append(predictions, map[string]any{
			"date":            p.Date,
			"predicted_close": p.PredictedClose,
			"upper_bound":     p.UpperBound,
			"lower_bound":     p.LowerBound,
		})
	}

	result := map[string]any{
		"ticker":      ticker,
		"predictions": predictions,
		"model_info":  data.ModelInfo,
	}
	e.cache.Set(key, result)
	return result, nil
}

func (e *Executor) dividends(ctx context.Context, args map[string]any, snap *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)
	limit := intArg(args, "limit", 10)

	if section := snap.lookup(ToolDividends, ticker); section != nil {
		var records []market.Dividend
		if decodeResults(section, &records) == nil {
			return formatDividends(ticker, records), nil
		}
	}

	key := cacheKey(ToolDividends, ticker)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := e.marketData.Dividends(ctx, ticker, limit)
	if err != nil {
		return nil, err
	}

	result := formatDividends(ticker, resp.Results)
	e.cache.Set(key, result)
	return result, nil
}

func (e *Executor) splits(ctx context.Context, args map[string]any, snap *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)

	if section := snap.lookup(ToolSplits, ticker); section != nil {
		var records []market.Split
		if decodeResults(section, &records) == nil {
			return formatSplits(ticker, records), nil
		}
	}

	key := cacheKey(ToolSplits, ticker)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := e.marketData.Splits(ctx, ticker)
	if err != nil {
		return nil, err
	}

	result := formatSplits(ticker, resp.Results)
	e.cache.Set(key, result)
	return result, nil
}

// priceHistory is keyed on the full query range, so different date windows
// never collide in the cache. The snapshot holds no range data; layer 1 does
// not apply.
func (e *Executor) priceHistory(ctx context.Context, args map[string]any, _ *Snapshot) (map[string]any, error) {
	ticker := tickerArg(args)
	from := stringArg(args, "from_date")
	to := stringArg(args, "to_date")
	timespan := stringArg(args, "timespan")
	if timespan == "" {
		timespan = "day"
	}

	key := fmt.Sprintf("%s:%s:%s:%s:%s", ToolPriceHistory, ticker, from, to, timespan)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	resp, err := e.marketData.Aggregates(ctx, ticker, timespan, from, to)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return map[string]any{"error": "No price history available for the given date range"}, nil
	}

	bars := make([]map[string]any, 0, len(resp.Results))
	for _, bar := range resp.Results {
		bars = append(bars, map[string]any{
			"date":   time.UnixMilli(bar.Timestamp).UTC().Format("2006-01-02"),
			"open":   bar.Open,
			"high":   bar.High,
			"low":    bar.Low,
			"close":  bar.Close,
			"volume": bar.Volume,
		})
	}

	result := map[string]any{
		"ticker":   ticker,
		"timespan": timespan,
		"from":     from,
		"to":       to,
		"bars":     bars,
		"count":    len(bars),
	}
	e.cache.Set(key, result)
	return result, nil
}

// -- Argument and section helpers --

func cacheKey(tool, ticker string) string {
	return tool + ":" + ticker
}

func tickerArg(args map[string]any) string {
	return strings.ToUpper(stringArg(args, "ticker"))
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}

// decodeSection remarshals a snapshot section into a typed wire struct.
func decodeSection(section any, out any) error {
	raw, err := json.Marshal(section)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// decodeResults accepts either a provider envelope {"results": [...]} or a
// bare array; the frontend sends both shapes depending on the widget.
func decodeResults[T any](section any, out *[]T) error {
	if arr, ok := section.([]any); ok {
		return decodeSection(arr, out)
	}
	var envelope struct {
		Results []T `json:"results"`
	}
	if err := decodeSection(section, &envelope); err != nil {
		return err
	}
	*out = envelope.Results
	return nil
}

func decodeDetails(section any) (market.TickerDetails, bool) {
	var envelope market.TickerDetailsResponse
	if err := decodeSection(section, &envelope); err == nil && (envelope.Results.Name != "" || envelope.Results.Description != "") {
		return envelope.Results, true
	}
	var bare market.TickerDetails
	if err := decodeSection(section, &bare); err == nil && (bare.Name != "" || bare.Description != "") {
		return bare, true
	}
	return market.TickerDetails{}, false
}

// -- Formatters --

func formatQuote(ticker string, bar market.Bar) map[string]any {
	return map[string]any{
		"ticker": ticker,
		"close":  bar.Close,
		"open":   bar.Open,
		"high":   bar.High,
		"low":    bar.Low,
		"volume": bar.Volume,
		"vwap":   bar.VWAP,
	}
}

func formatCompany(ticker string, d market.TickerDetails) map[string]any {
	return map[string]any{
		"ticker":          ticker,
		"name":            d.Name,
		"description":     truncate(d.Description, 500),
		"market_cap":      d.MarketCap,
		"sector":          d.SICDescription,
		"homepage_url":    d.HomepageURL,
		"total_employees": d.TotalEmployees,
	}
}

func formatFinancials(ticker string, results []market.Financial) map[string]any {
	if len(results) == 0 {
		return map[string]any{"error": "No financial data available"}
	}

	periods := make([]map[string]any, 0, 4)
	for _, r := range firstN(results, 4) {
		income := r.Financials.IncomeStatement
		balance := r.Financials.BalanceSheet
		periods = append(periods, map[string]any{
			"period":            fmt.Sprintf("%s %s", r.FiscalPeriod, r.FiscalYear),
			"revenue":           income.Revenues.Value,
			"net_income":        income.NetIncomeLoss.Value,
			"gross_profit":      income.GrossProfit.Value,
			"total_assets":      balance.Assets.Value,
			"total_liabilities": balance.Liabilities.Value,
		})
	}
	return map[string]any{"ticker": ticker, "periods": periods}
}

func formatNews(ticker string, articles []market.NewsArticle) map[string]any {
	if len(articles) == 0 {
		return map[string]any{"error": "No news articles available"}
	}

	formatted := make([]map[string]any, 0, 10)
	for _, a := range firstN(articles, 10) {
		formatted = append(formatted, map[string]any{
			"title":       a.Title,
			"source":      orDefault(a.Publisher.Name, "Unknown"),
			"published":   truncate(a.PublishedUTC, 10),
			"description": truncate(a.Description, 200),
			"url":         a.ArticleURL,
		})
	}
	return map[string]any{"ticker": ticker, "articles": formatted}
}

func formatDividends(ticker string, records []market.Dividend) map[string]any {
	if len(records) == 0 {
		return map[string]any{"message": "No dividend data available for this ticker."}
	}

	formatted := make([]map[string]any, 0, 10)
	for _, d := range firstN(records, 10) {
		formatted = append(formatted, map[string]any{
			"ex_date":   d.ExDividendDate,
			"pay_date":  d.PayDate,
			"amount":    d.CashAmount,
			"frequency": d.Frequency,
		})
	}
	return map[string]any{"ticker": ticker, "dividends": formatted}
}

func formatSplits(ticker string, records []market.Split) map[string]any {
	if len(records) == 0 {
		return map[string]any{"message": "No stock split history found for this ticker."}
	}

	formatted := make([]map[string]any, 0, 10)
	for _, s := range firstN(records, 10) {
		formatted = append(formatted, map[string]any{
			"execution_date": s.ExecutionDate,
			"split_from":     s.SplitFrom,
			"split_to":       s.SplitTo,
			"ratio":          fmt.Sprintf("%v-for-%v", s.SplitTo, s.SplitFrom),
		})
	}
	return map[string]any{"ticker": ticker, "splits": formatted}
}

func formatSentiment(ticker string, data *quant.SentimentResult) map[string]any {
	topPosts := make([]map[string]any, 0, 5)
	for _, p := range firstN(data.Posts, 5) {
		topPosts = append(topPosts, map[string]any{
			"platform":  p.Platform,
			"content":   truncate(p.Content, 200),
			"sentiment": p.Sentiment.Label,
		})
	}
	return map[string]any{
		"ticker":            ticker,
		"overall_sentiment": data.Aggregate.Label,
		"score":             data.Aggregate.Score,
		"confidence":        data.Aggregate.Confidence,
		"post_count":        data.Aggregate.PostCount,
		"sources":           data.Aggregate.Sources,
		"top_posts":         topPosts,
	}
}

// formatSnapshotSentiment tolerates the two shapes the frontend sends: a full
// result with aggregate and posts, or a bare aggregate object.
func formatSnapshotSentiment(ticker string, section any) (map[string]any, bool) {
	type snapshotPost struct {
		Platform       string              `json:"platform"`
		Content        string              `json:"content"`
		Sentiment      quant.PostSentiment `json:"sentiment"`
		SentimentLabel string              `json:"sentiment_label"`
	}
	var payload struct {
		Aggregate *quant.Aggregate `json:"aggregate"`
		Posts     []snapshotPost   `json:"posts"`
	}
	if err := decodeSection(section, &payload); err != nil {
		return nil, false
	}

	aggregate := payload.Aggregate
	if aggregate == nil {
		var bare quant.Aggregate
		if err := decodeSection(section, &bare); err != nil || bare.Label == "" {
			return nil, false
		}
		aggregate = &bare
	}

	topPosts := make([]map[string]any, 0, 5)
	for _, p := range firstN(payload.Posts, 5) {
		label := p.Sentiment.Label
		if label == "" {
			label = p.SentimentLabel
		}
		topPosts = append(topPosts, map[string]any{
			"platform":  p.Platform,
			"content":   truncate(p.Content, 200),
			"sentiment": label,
		})
	}

	return map[string]any{
		"ticker":            ticker,
		"overall_sentiment": aggregate.Label,
		"score":             aggregate.Score,
		"confidence":        aggregate.Confidence,
		"post_count":        aggregate.PostCount,
		"sources":           aggregate.Sources,
		"top_posts":         topPosts,
		"source":            "cached",
	}, true
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
