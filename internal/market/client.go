// Package market provides a client for the market-data REST provider. It
// exposes the raw provider schema; callers decide what to keep.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marketlens/marketlens/internal/log"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.polygon.io"

const requestTimeout = 30 * time.Second

// Client talks to the market-data API. Authentication is a query parameter on
// every request.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used in tests and for proxies.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a market-data client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     log.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PreviousClose returns the prior trading day's bar for the ticker.
func (c *Client) PreviousClose(ctx context.Context, ticker string) (*AggregatesResponse, error) {
	var out AggregatesResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(ticker))
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TickerDetails returns company reference data for the ticker.
func (c *Client) TickerDetails(ctx context.Context, ticker string) (*TickerDetailsResponse, error) {
	var out TickerDetailsResponse
	path := fmt.Sprintf("/v3/reference/tickers/%s", url.PathEscape(ticker))
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Financials returns the most recent filing periods, newest first.
func (c *Client) Financials(ctx context.Context, ticker string, limit int) (*FinancialsResponse, error) {
	var out FinancialsResponse
	q := url.Values{"ticker": {ticker}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/vX/reference/financials", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TickerNews returns recent news articles for the ticker.
func (c *Client) TickerNews(ctx context.Context, ticker string, limit int) (*NewsResponse, error) {
	var out NewsResponse
	q := url.Values{"ticker": {ticker}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/v2/reference/news", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dividends returns recent dividend records for the ticker.
func (c *Client) Dividends(ctx context.Context, ticker string, limit int) (*DividendsResponse, error) {
	var out DividendsResponse
	q := url.Values{"ticker": {ticker}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/v3/reference/dividends", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Splits returns stock split records for the ticker.
func (c *Client) Splits(ctx context.Context, ticker string) (*SplitsResponse, error) {
	var out SplitsResponse
	q := url.Values{"ticker": {ticker}}
	if err := c.get(ctx, "/v3/reference/splits", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Aggregates returns bars between from and to (YYYY-MM-DD) at the given
// timespan ("day", "week", "month").
func (c *Client) Aggregates(ctx context.Context, ticker, timespan, from, to string) (*AggregatesResponse, error) {
	var out AggregatesResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/%s/%s/%s",
		url.PathEscape(ticker), url.PathEscape(timespan), url.PathEscape(from), url.PathEscape(to))
	q := url.Values{"sort": {"asc"}, "limit": {"5000"}}
	if err := c.get(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", c.apiKey)

	u := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market request %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("market request",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("market request %s: status %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}
