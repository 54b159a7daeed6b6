// Package quant wraps the sentiment and forecast analysis services. Both are
// slow, model-backed HTTP services; each client carries a timeout sized to its
// worst case.
package quant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/marketlens/marketlens/internal/log"
)

const (
	// Sentiment scrapes social platforms and runs classification, usually
	// 10-30s end to end.
	sentimentTimeout = 30 * time.Second

	// Forecast may train a model on a cold ticker, up to 60s.
	forecastTimeout = 90 * time.Second
)

// Aggregate summarizes sentiment across all collected posts.
type Aggregate struct {
	Label      string         `json:"label"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	PostCount  int            `json:"post_count"`
	Sources    map[string]int `json:"sources"`
}

// PostSentiment is the classification of a single post.
type PostSentiment struct {
	Label string `json:"label"`
}

// Post is one social media post with its sentiment.
type Post struct {
	Platform  string        `json:"platform"`
	Content   string        `json:"content"`
	Sentiment PostSentiment `json:"sentiment"`
}

// SentimentResult is the sentiment service response for one ticker.
type SentimentResult struct {
	Aggregate Aggregate `json:"aggregate"`
	Posts     []Post    `json:"posts"`
}

// Prediction is one forecasted trading day.
type Prediction struct {
	Date           string  `json:"date"`
	PredictedClose float64 `json:"predicted_close"`
	UpperBound     float64 `json:"upper_bound"`
	LowerBound     float64 `json:"lower_bound"`
}

// ForecastResult is the forecast service response for one ticker.
type ForecastResult struct {
	Forecast  []Prediction   `json:"forecast"`
	ModelInfo map[string]any `json:"model_info"`
	Error     string         `json:"error"`
}

// SentimentClient calls the sentiment analysis service.
type SentimentClient struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// NewSentimentClient creates a sentiment service client.
func NewSentimentClient(baseURL string, logger log.Logger) *SentimentClient {
	if logger == nil {
		logger = log.NewNop()
	}
	return &SentimentClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: sentimentTimeout},
		logger:     logger,
	}
}

// Analyze runs sentiment analysis for the ticker.
func (c *SentimentClient) Analyze(ctx context.Context, ticker string) (*SentimentResult, error) {
	var out SentimentResult
	u := fmt.Sprintf("%s/api/sentiment/%s", c.baseURL, url.PathEscape(ticker))
	if err := getJSON(ctx, c.httpClient, c.logger, u, &out); err != nil {
		return nil, fmt.Errorf("sentiment analysis for %s: %w", ticker, err)
	}
	return &out, nil
}

// ForecastClient calls the price forecast service.
type ForecastClient struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// NewForecastClient creates a forecast service client.
func NewForecastClient(baseURL string, logger log.Logger) *ForecastClient {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ForecastClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: forecastTimeout},
		logger:     logger,
	}
}

// Forecast returns the price forecast for the ticker. A service-level failure
// is reported in the result's Error field rather than as a Go error, so the
// caller can relay it to the model.
func (c *ForecastClient) Forecast(ctx context.Context, ticker string) (*ForecastResult, error) {
	var out ForecastResult
	u := fmt.Sprintf("%s/api/forecast/%s", c.baseURL, url.PathEscape(ticker))
	if err := getJSON(ctx, c.httpClient, c.logger, u, &out); err != nil {
		return nil, fmt.Errorf("price forecast for %s: %w", ticker, err)
	}
	return &out, nil
}

func getJSON(ctx context.Context, hc *http.Client, logger log.Logger, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	logger.Debug("analysis service request",
		"url", u,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
