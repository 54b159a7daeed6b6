// Package ingest turns news article references into embedded knowledge base
// documents: scrape the page, fall back to the feed description, embed, and
// upsert. A bounded worker pool processes articles concurrently.
package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marketlens/marketlens/internal/knowledge"
	"github.com/marketlens/marketlens/internal/log"
	"github.com/marketlens/marketlens/internal/market"
)

const (
	// DefaultWorkers is the ingestion concurrency bound.
	DefaultWorkers = 5

	// DefaultBatchSize caps how many articles one request processes.
	DefaultBatchSize = 20

	// minDescriptionLength is the shortest feed description accepted as a
	// scrape substitute.
	minDescriptionLength = 50

	previewLength = 200
)

// KnowledgeBase is the store surface the pipeline writes to.
type KnowledgeBase interface {
	Exists(ctx context.Context, docID string) (bool, error)
	Add(ctx context.Context, doc knowledge.Document) error
	Flush(ctx context.Context) error
}

// ArticleScraper extracts article text. An empty string with nil error means
// the page had no usable content.
type ArticleScraper interface {
	Article(ctx context.Context, rawURL string) (string, error)
}

// Result counts one batch's outcomes. Every article in the batch lands in
// exactly one of skipped, failed, or embedded; scraped always equals embedded.
type Result struct {
	Scraped  int `json:"scraped"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Pipeline ingests article batches.
type Pipeline struct {
	kb      KnowledgeBase
	scraper ArticleScraper
	logger  log.Logger

	workers   int
	batchSize int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the concurrency bound.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithBatchSize caps how many articles one call processes.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger log.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline.
func New(kb KnowledgeBase, scraper ArticleScraper, opts ...Option) *Pipeline {
	p := &Pipeline{
		kb:        kb,
		scraper:   scraper,
		logger:    log.NewNop(),
		workers:   DefaultWorkers,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeEmbedded
	outcomeFailed
)

// Ingest processes up to the batch cap of articles for the ticker and returns
// the outcome counts. Individual article failures never fail the batch. The
// store is flushed once, and only when at least one document was embedded.
func (p *Pipeline) Ingest(ctx context.Context, ticker string, articles []market.NewsArticle) (Result, error) {
	ticker = strings.ToUpper(ticker)
	if len(articles) > p.batchSize {
		articles = articles[:p.batchSize]
	}

	var (
		mu     sync.Mutex
		result Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, article := range articles {
		g.Go(func() error {
			out := p.processArticle(gctx, ticker, article)

			mu.Lock()
			switch out {
			case outcomeEmbedded:
				result.Embedded++
				result.Scraped++
			case outcomeSkipped:
				result.Skipped++
			case outcomeFailed:
				result.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if result.Embedded > 0 {
		if err := p.kb.Flush(ctx); err != nil {
			p.logger.Warn("knowledge base flush failed", "ticker", ticker, "error", err)
		}
	}

	p.logger.Info("article batch ingested",
		"ticker", ticker,
		"scraped", result.Scraped,
		"embedded", result.Embedded,
		"failed", result.Failed,
		"skipped", result.Skipped)
	return result, nil
}

func (p *Pipeline) processArticle(ctx context.Context, ticker string, article market.NewsArticle) outcome {
	docID := knowledge.NewsDocumentID(ticker, article.ArticleURL)

	exists, err := p.kb.Exists(ctx, docID)
	if err != nil {
		p.logger.Error("existence check failed", "doc_id", docID, "error", err)
		return outcomeFailed
	}
	if exists {
		return outcomeSkipped
	}

	content, err := p.scraper.Article(ctx, article.ArticleURL)
	if err != nil {
		p.logger.Debug("scrape failed, trying description", "url", article.ArticleURL, "error", err)
		content = ""
	}
	if content == "" {
		// The feed description is an acceptable stand-in only when it says
		// something substantive.
		content = article.Description
		if len(content) < minDescriptionLength {
			return outcomeFailed
		}
	}

	doc := knowledge.Document{
		ID:      docID,
		Content: content,
		Metadata: map[string]string{
			knowledge.MetaTicker:         ticker,
			knowledge.MetaType:           knowledge.DocTypeNewsArticle,
			knowledge.MetaTitle:          article.Title,
			knowledge.MetaURL:            article.ArticleURL,
			knowledge.MetaPublishedDate:  article.PublishedUTC,
			knowledge.MetaSource:         sourceName(article),
			knowledge.MetaContentPreview: preview(content),
			knowledge.MetaFullContent:    content,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := p.kb.Add(ctx, doc); err != nil {
		p.logger.Error("embedding article failed", "doc_id", docID, "error", err)
		return outcomeFailed
	}
	return outcomeEmbedded
}

func sourceName(article market.NewsArticle) string {
	if article.Publisher.Name == "" {
		return "Unknown"
	}
	return article.Publisher.Name
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return content
}
