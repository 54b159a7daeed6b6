package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/marketlens/marketlens/internal/ingest"
	"github.com/marketlens/marketlens/internal/knowledge"
	"github.com/marketlens/marketlens/internal/market"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeKB struct {
	mu       sync.Mutex
	existing map[string]bool
	added    []knowledge.Document
	addErr   map[string]error
	flushes  int
}

func newFakeKB() *fakeKB {
	return &fakeKB{existing: make(map[string]bool), addErr: make(map[string]error)}
}

func (k *fakeKB) Exists(_ context.Context, docID string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.existing[docID], nil
}

func (k *fakeKB) Add(_ context.Context, doc knowledge.Document) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.addErr[doc.ID]; err != nil {
		return err
	}
	k.added = append(k.added, doc)
	return nil
}

func (k *fakeKB) Flush(_ context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.flushes++
	return nil
}

type fakeScraper struct {
	mu      sync.Mutex
	content map[string]string
	errs    map[string]error
	calls   int
}

func (s *fakeScraper) Article(_ context.Context, rawURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[rawURL]; err != nil {
		return "", err
	}
	return s.content[rawURL], nil
}

func article(url string) market.NewsArticle {
	return market.NewsArticle{
		Title:        "Some headline",
		ArticleURL:   url,
		PublishedUTC: "2026-08-29T12:00:00Z",
		Publisher:    market.Publisher{Name: "Newswire"},
	}
}

func TestIngestEmbedsScrapedArticles(t *testing.T) {
	t.Parallel()

	kb := newFakeKB()
	scraper := &fakeScraper{content: map[string]string{
		"https://example.com/a": "Full article body about Apple earnings and guidance.",
	}}
	p := ingest.New(kb, scraper)

	result, err := p.Ingest(context.Background(), "aapl", []market.NewsArticle{article("https://example.com/a")})
	require.NoError(t, err)

	assert.Equal(t, ingest.Result{Scraped: 1, Embedded: 1}, result)
	require.Len(t, kb.added, 1)

	doc := kb.added[0]
	assert.Equal(t, knowledge.NewsDocumentID("AAPL", "https://example.com/a"), doc.ID)
	assert.Equal(t, "AAPL", doc.Metadata[knowledge.MetaTicker])
	assert.Equal(t, knowledge.DocTypeNewsArticle, doc.Metadata[knowledge.MetaType])
	assert.Equal(t, doc.Content, doc.Metadata[knowledge.MetaFullContent])
	assert.Equal(t, 1, kb.flushes)
}

func TestIngestSkipsExistingDocuments(t *testing.T) {
	t.Parallel()

	kb := newFakeKB()
	kb.existing[knowledge.NewsDocumentID("AAPL", "https://example.com/dup")] = true
	scraper := &fakeScraper{content: map[string]string{}}
	p := ingest.New(kb, scraper)

	result, err := p.Ingest(context.Background(), "AAPL", []market.NewsArticle{article("https://example.com/dup")})
	require.NoError(t, err)

	assert.Equal(t, ingest.Result{Skipped: 1}, result)
	assert.Equal(t, 0, scraper.calls, "known documents are not re-scraped")
	assert.Equal(t, 0, kb.flushes, "nothing embedded, nothing flushed")
}

func TestIngestDescriptionFallback(t *testing.T) {
	t.Parallel()

	kb := newFakeKB()
	scraper := &fakeScraper{errs: map[string]error{
		"https://example.com/paywalled": errors.New("status 403"),
	}}
	p := ingest.New(kb, scraper)

	longDesc := strings.Repeat("Summary of the article. ", 4)
	art := article("https://example.com/paywalled")
	art.Description = longDesc

	result, err := p.Ingest(context.Background(), "AAPL", []market.NewsArticle{art})
	require.NoError(t, err)

	assert.Equal(t, ingest.Result{Scraped: 1, Embedded: 1}, result)
	require.Len(t, kb.added, 1)
	assert.Equal(t, longDesc, kb.added[0].Content)
}

func TestIngestShortDescriptionFails(t *testing.T) {
	t.Parallel()

	kb := newFakeKB()
	scraper := &fakeScraper{}
	p := ingest.New(kb, scraper)

	art := article("https://example.com/empty")
	art.Description = "Too short."

	result, err := p.Ingest(context.Background(), "AAPL", []market.NewsArticle{art})
	require.NoError(t, err)

	assert.Equal(t, ingest.Result{Failed: 1}, result)
	assert.Empty(t, kb.added)
}

func TestIngestBatchCap(t *testing.T) {
	t.Parallel()

	kb := newFakeKB()
	scraper := &fakeScraper{content: map[string]string{}}
	for i := range 30 {
		scraper.content[fmt.Sprintf("https://example.com/%d", i)] = strings.Repeat("body ", 20)
	}

	articles := make([]market.NewsArticle, 30)
	for i := range articles {
		articles[i] = article(fmt.Sprintf("https://example.com/%d", i))
	}

	p := ingest.New(kb, scraper, ingest.WithWorkers(3))
	result, err := p.Ingest(context.Background(), "AAPL", articles)
	require.NoError(t, err)

	assert.Equal(t, 20, result.Embedded, "only the first batch-size articles are processed")
	assert.Equal(t, 20, scraper.calls)
}

func TestIngestCountsSumToBatch(t *testing.T) {
	t.Parallel()

	kb := newFakeKB()
	kb.existing[knowledge.NewsDocumentID("AAPL", "https://example.com/dup")] = true

	scraper := &fakeScraper{content: map[string]string{
		"https://example.com/good": strings.Repeat("body ", 20),
	}}

	failing := article("https://example.com/embed-fail")
	scraper.content[failing.ArticleURL] = strings.Repeat("body ", 20)
	kb.addErr[knowledge.NewsDocumentID("AAPL", failing.ArticleURL)] = errors.New("quota exceeded")

	short := article("https://example.com/short")
	short.Description = "tiny"

	batch := []market.NewsArticle{
		article("https://example.com/good"),
		article("https://example.com/dup"),
		failing,
		short,
	}

	result, err := p8(kb, scraper).Ingest(context.Background(), "AAPL", batch)
	require.NoError(t, err)

	assert.Equal(t, ingest.Result{Scraped: 1, Embedded: 1, Failed: 2, Skipped: 1}, result)
	assert.Equal(t, len(batch), result.Embedded+result.Failed+result.Skipped)
	assert.Equal(t, 1, kb.flushes)
}

func p8(kb ingest.KnowledgeBase, s ingest.ArticleScraper) *ingest.Pipeline {
	return ingest.New(kb, s, ingest.WithWorkers(8))
}
