package tools

import "google.golang.org/genai"

// Tool names. These are the identifiers the model calls and the cache keys
// are derived from.
const (
	ToolStockQuote      = "get_stock_quote"
	ToolCompanyInfo     = "get_company_info"
	ToolFinancials      = "get_financials"
	ToolNews            = "get_news"
	ToolSearchKnowledge = "search_knowledge_base"
	ToolSentiment       = "analyze_sentiment"
	ToolForecast        = "get_price_forecast"
	ToolDividends       = "get_dividends"
	ToolSplits          = "get_stock_splits"
	ToolPriceHistory    = "get_price_history"
)

func tickerProperty() map[string]*genai.Schema {
	return map[string]*genai.Schema{
		"ticker": {
			Type:        genai.TypeString,
			Description: "Stock ticker symbol, e.g. AAPL",
		},
	}
}

// Declarations returns the function declarations advertised to the model.
func Declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        ToolStockQuote,
			Description: "Get the most recent closing price, open, high, low, and volume for a stock ticker. Use this when the user asks about current price, today's price, or recent trading data.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: tickerProperty(),
				Required:   []string{"ticker"},
			},
		},
		{
			Name:        ToolCompanyInfo,
			Description: "Get detailed company information including name, description, market cap, sector, industry, and exchange. Use this when the user asks about what a company does, its sector, or general company details.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: tickerProperty(),
				Required:   []string{"ticker"},
			},
		},
		{
			Name:        ToolFinancials,
			Description: "Get recent financial statements including revenue, net income, gross profit, total assets, and liabilities. Returns the last 4 filing periods. Use this for questions about earnings, revenue, profitability, or balance sheet.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: tickerProperty(),
				Required:   []string{"ticker"},
			},
		},
		{
			Name:        ToolNews,
			Description: "Get recent news articles about a stock. Returns headlines, sources, dates, and descriptions. Use this when the user asks about recent news, headlines, or events.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"ticker": {
						Type:        genai.TypeString,
						Description: "Stock ticker symbol, e.g. AAPL",
					},
					"limit": {
						Type:        genai.TypeInteger,
						Description: "Number of articles to return (default 10, max 20)",
					},
				},
				Required: []string{"ticker"},
			},
		},
		{
			Name:        ToolSearchKnowledge,
			Description: "Semantic search over previously indexed news articles and research. Use this when the user asks about a specific topic and you need in-depth article content beyond headlines.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "Natural language search query",
					},
					"ticker": {
						Type:        genai.TypeString,
						Description: "Stock ticker symbol to filter results",
					},
				},
				Required: []string{"query", "ticker"},
			},
		},
		{
			Name:        ToolSentiment,
			Description: "Analyze social media sentiment for a stock by scraping StockTwits, Reddit, and Twitter posts and running FinBERT analysis. This operation takes 10-30 seconds. Use when the user asks about sentiment, social media buzz, or what people think about a stock.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: tickerProperty(),
				Required:   []string{"ticker"},
			},
		},
		{
			Name:        ToolForecast,
			Description: "Get an LSTM neural network price forecast for the next 30 trading days. May take 30-60 seconds if the model needs training. Use when the user asks about price predictions or forecasts.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: tickerProperty(),
				Required:   []string{"ticker"},
			},
		},
		{
			Name:        ToolDividends,
			Description: "Get dividend payment history including ex-dividend dates, pay dates, and amounts. Use when the user asks about dividends, yield, or dividend history.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"ticker": {
						Type:        genai.TypeString,
						Description: "Stock ticker symbol, e.g. AAPL",
					},
					"limit": {
						Type:        genai.TypeInteger,
						Description: "Number of dividend records to return (default 10)",
					},
				},
				Required: []string{"ticker"},
			},
		},
		{
			Name:        ToolSplits,
			Description: "Get stock split history including execution dates and split ratios. Use when the user asks about stock splits.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: tickerProperty(),
				Required:   []string{"ticker"},
			},
		},
		{
			Name:        ToolPriceHistory,
			Description: "Get historical OHLCV price data for a date range. Use when the user asks about price trends, historical performance, or needs to compare prices between dates.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"ticker": {
						Type:        genai.TypeString,
						Description: "Stock ticker symbol, e.g. AAPL",
					},
					"from_date": {
						Type:        genai.TypeString,
						Description: "Start date in YYYY-MM-DD format",
					},
					"to_date": {
						Type:        genai.TypeString,
						Description: "End date in YYYY-MM-DD format",
					},
					"timespan": {
						Type:        genai.TypeString,
						Description: "Time interval for each bar: day, week, or month (default: day)",
					},
				},
				Required: []string{"ticker", "from_date", "to_date"},
			},
		},
	}
}
