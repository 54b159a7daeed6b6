// Package scrape extracts readable article text from news pages.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/marketlens/marketlens/internal/log"
)

const (
	requestTimeout = 15 * time.Second
	maxBodyBytes   = 4 << 20

	// Extractions shorter than this are treated as boilerplate and rejected.
	minContentLength = 100

	userAgent = "Mozilla/5.0 (compatible; marketlens/1.0)"
)

// Scraper fetches article pages and extracts their main text.
type Scraper struct {
	httpClient *http.Client
	logger     log.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Scraper) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

// WithLogger sets the scraper logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Scraper.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     log.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Article fetches the page at rawURL and returns its main text. It returns an
// empty string without error when the page yields no usable content, so
// callers can fall back to other sources.
func (s *Scraper) Article(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || pageURL.Scheme == "" {
		return "", fmt.Errorf("invalid article url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch article: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read article body: %w", err)
	}

	if text := extractReadable(body, pageURL); text != "" {
		return text, nil
	}

	// Readability gives up on some publisher layouts. Collect paragraph text
	// directly before declaring the page empty.
	text, err := extractParagraphs(body)
	if err != nil {
		return "", err
	}
	if text == "" {
		s.logger.Debug("no usable article content", "url", rawURL)
	}
	return text, nil
}

func extractReadable(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return ""
	}
	text := normalize(article.TextContent)
	if len(text) < minContentLength {
		return ""
	}
	return text
}

func extractParagraphs(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parse article html: %w", err)
	}

	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})

	text := normalize(strings.Join(parts, "\n\n"))
	if len(text) < minContentLength {
		return "", nil
	}
	return text, nil
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}
