package market

// Wire types mirror the provider's response schema. The tool layer is
// responsible for reshaping these into compact model-facing payloads; nothing
// here is truncated or derived.

// Bar is a single aggregate bar. Field names follow the provider's
// single-letter schema.
type Bar struct {
	Close     float64 `json:"c"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Volume    float64 `json:"v"`
	VWAP      float64 `json:"vw"`
	Timestamp int64   `json:"t"` // milliseconds since epoch
}

// AggregatesResponse is the envelope for previous-close and range queries.
type AggregatesResponse struct {
	Ticker  string `json:"ticker"`
	Results []Bar  `json:"results"`
	Count   int    `json:"resultsCount"`
}

// TickerDetails describes a listed company.
type TickerDetails struct {
	Ticker         string  `json:"ticker"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	MarketCap      float64 `json:"market_cap"`
	SICDescription string  `json:"sic_description"`
	HomepageURL    string  `json:"homepage_url"`
	TotalEmployees int     `json:"total_employees"`
}

// TickerDetailsResponse is the envelope for ticker detail queries.
type TickerDetailsResponse struct {
	Results TickerDetails `json:"results"`
}

// Metric is a single reported financial value.
type Metric struct {
	Value *float64 `json:"value"`
}

// IncomeStatement holds the income-statement metrics the system consumes.
type IncomeStatement struct {
	Revenues      Metric `json:"revenues"`
	NetIncomeLoss Metric `json:"net_income_loss"`
	GrossProfit   Metric `json:"gross_profit"`
}

// BalanceSheet holds the balance-sheet metrics the system consumes.
type BalanceSheet struct {
	Assets      Metric `json:"assets"`
	Liabilities Metric `json:"liabilities"`
}

// FinancialStatements groups one filing period's statements.
type FinancialStatements struct {
	IncomeStatement IncomeStatement `json:"income_statement"`
	BalanceSheet    BalanceSheet    `json:"balance_sheet"`
}

// Financial is one filing period.
type Financial struct {
	FiscalPeriod string              `json:"fiscal_period"`
	FiscalYear   string              `json:"fiscal_year"`
	Financials   FinancialStatements `json:"financials"`
}

// FinancialsResponse is the envelope for financial statement queries.
type FinancialsResponse struct {
	Results []Financial `json:"results"`
}

// Publisher identifies a news source.
type Publisher struct {
	Name string `json:"name"`
}

// NewsArticle is one news item.
type NewsArticle struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ArticleURL   string    `json:"article_url"`
	PublishedUTC string    `json:"published_utc"`
	Publisher    Publisher `json:"publisher"`
}

// NewsResponse is the envelope for news queries.
type NewsResponse struct {
	Results []NewsArticle `json:"results"`
}

// Dividend is one dividend record.
type Dividend struct {
	ExDividendDate string   `json:"ex_dividend_date"`
	PayDate        string   `json:"pay_date"`
	CashAmount     *float64 `json:"cash_amount"`
	Frequency      int      `json:"frequency"`
}

// DividendsResponse is the envelope for dividend queries.
type DividendsResponse struct {
	Results []Dividend `json:"results"`
}

// Split is one stock split record.
type Split struct {
	ExecutionDate string  `json:"execution_date"`
	SplitFrom     float64 `json:"split_from"`
	SplitTo       float64 `json:"split_to"`
}

// SplitsResponse is the envelope for split queries.
type SplitsResponse struct {
	Results []Split `json:"results"`
}
