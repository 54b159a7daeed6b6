package knowledge_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/knowledge"
)

type mockQuerier struct {
	upsertCalls []knowledge.UpsertDocumentParams
	upsertErr   error

	existing map[string]bool

	searchCalls []knowledge.SearchDocumentsParams
	searchRows  []knowledge.DocumentRow
	searchErr   error

	countAll int64
}

func (m *mockQuerier) UpsertDocument(_ context.Context, arg knowledge.UpsertDocumentParams) error {
	m.upsertCalls = append(m.upsertCalls, arg)
	return m.upsertErr
}

func (m *mockQuerier) DocumentExists(_ context.Context, id string) (bool, error) {
	return m.existing[id], nil
}

func (m *mockQuerier) SearchDocuments(_ context.Context, arg knowledge.SearchDocumentsParams) ([]knowledge.DocumentRow, error) {
	m.searchCalls = append(m.searchCalls, arg)
	return m.searchRows, m.searchErr
}

func (m *mockQuerier) ListDocuments(_ context.Context, _ knowledge.ListDocumentsParams) ([]knowledge.DocumentRow, error) {
	return m.searchRows, nil
}

func (m *mockQuerier) CountDocuments(_ context.Context, _ []byte) (int64, error) {
	return int64(len(m.existing)), nil
}

func (m *mockQuerier) CountAllDocuments(_ context.Context) (int64, error) {
	return m.countAll, nil
}

type mockEmbedder struct {
	calls  int
	vector []float32
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vector, m.err
}

func TestAddUpsertsEmbeddedDocument(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{}
	emb := &mockEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	store := knowledge.New(q, emb, nil)

	doc := knowledge.Document{
		ID:      "AAPL_news_9b2d7a1c03f4",
		Content: "Apple shares climbed after a strong quarter.",
		Metadata: map[string]string{
			knowledge.MetaTicker: "AAPL",
			knowledge.MetaType:   knowledge.DocTypeNewsArticle,
		},
		CreatedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.Add(context.Background(), doc))
	require.Len(t, q.upsertCalls, 1)
	assert.Equal(t, 1, emb.calls)

	call := q.upsertCalls[0]
	assert.Equal(t, doc.ID, call.ID)
	assert.Equal(t, doc.Content, call.Content)
	require.NotNil(t, call.Embedding)
	assert.True(t, call.CreatedAt.Valid)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(call.Metadata, &meta))
	assert.Equal(t, "AAPL", meta[knowledge.MetaTicker])
}

func TestAddEmbeddingFailure(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{}
	emb := &mockEmbedder{err: errors.New("quota exceeded")}
	store := knowledge.New(q, emb, nil)

	err := store.Add(context.Background(), knowledge.Document{ID: "x", Content: "y"})
	require.Error(t, err)
	assert.Empty(t, q.upsertCalls, "failed embedding must not reach the database")
}

func TestSearchTickerFilter(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{
		searchRows: []knowledge.DocumentRow{
			{
				ID:         "AAPL_news_9b2d7a1c03f4",
				Content:    "Apple earnings beat expectations.",
				Metadata:   []byte(`{"ticker":"AAPL","title":"Earnings Beat"}`),
				CreatedAt:  pgtype.Timestamptz{Time: time.Now(), Valid: true},
				Similarity: 0.91,
			},
		},
	}
	emb := &mockEmbedder{vector: []float32{0.5, 0.5}}
	store := knowledge.New(q, emb, nil)

	results, err := store.Search(context.Background(), "earnings",
		knowledge.WithTicker("AAPL"), knowledge.WithTopK(3))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.91, results[0].Similarity)
	assert.Equal(t, "Earnings Beat", results[0].Metadata["title"])

	require.Len(t, q.searchCalls, 1)
	call := q.searchCalls[0]
	assert.Equal(t, int32(3), call.ResultLimit)

	var filter map[string]string
	require.NoError(t, json.Unmarshal(call.Filter, &filter))
	assert.Equal(t, "AAPL", filter["ticker"])
}

func TestSearchUnfiltered(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{}
	emb := &mockEmbedder{vector: []float32{1}}
	store := knowledge.New(q, emb, nil)

	_, err := store.Search(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, q.searchCalls, 1)
	assert.Nil(t, q.searchCalls[0].Filter)
	assert.Equal(t, int32(5), q.searchCalls[0].ResultLimit)
}

func TestExists(t *testing.T) {
	t.Parallel()

	q := &mockQuerier{existing: map[string]bool{"AAPL_news_abc123def456": true}}
	store := knowledge.New(q, &mockEmbedder{vector: []float32{1}}, nil)

	ok, err := store.Exists(context.Background(), "AAPL_news_abc123def456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "MSFT_news_000000000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewsDocumentID(t *testing.T) {
	t.Parallel()

	id := knowledge.NewsDocumentID("AAPL", "https://example.com/article")
	id2 := knowledge.NewsDocumentID("AAPL", "https://example.com/article")
	other := knowledge.NewsDocumentID("AAPL", "https://example.com/other")

	assert.Equal(t, id, id2, "same URL must produce the same ID")
	assert.NotEqual(t, id, other)
	assert.Regexp(t, `^AAPL_news_[0-9a-f]{12}$`, id)
}
