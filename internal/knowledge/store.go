// Package knowledge manages the news article knowledge base: embedded
// documents in PostgreSQL with pgvector similarity search.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/marketlens/marketlens/internal/log"
)

// Embedder turns text into a vector. *llm.GeminiClient satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store manages knowledge documents with vector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder Embedder
	logger   log.Logger
}

// New creates a Store.
func New(querier Querier, embedder Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Exists reports whether a document with the given ID is already stored.
func (s *Store) Exists(ctx context.Context, docID string) (bool, error) {
	exists, err := s.queries.DocumentExists(ctx, docID)
	if err != nil {
		return false, fmt.Errorf("checking document %q: %w", docID, err)
	}
	return exists, nil
}

// Add embeds the document content and upserts it. Re-adding an existing ID
// replaces its content, embedding, and metadata.
func (s *Store) Add(ctx context.Context, doc Document) error {
	embedding, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for document %q", doc.ID)
	}
	vec := pgvector.NewVector(embedding)

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	err = s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: &vec,
		Metadata:  metadataJSON,
		CreatedAt: pgtype.Timestamptz{Time: doc.CreatedAt, Valid: !doc.CreatedAt.IsZero()},
	})
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search embeds the query and returns the most similar documents, ordered by
// descending similarity. Search always goes to the database; results are never
// cached because the underlying corpus changes as articles are ingested.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embedder.Embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for query")
	}
	vec := pgvector.NewVector(embedding)

	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	rows, err := s.queries.SearchDocuments(queryCtx, SearchDocumentsParams{
		QueryEmbedding: &vec,
		Filter:         filterJSON,
		ResultLimit:    cfg.topK,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return s.rowsToResults(rows), nil
}

// Count returns the number of documents matching the filter, or all documents
// when the filter is empty.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int64, error) {
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("marshaling filter: %w", err)
		}
		count, err := s.queries.CountDocuments(ctx, filterJSON)
		if err != nil {
			return 0, fmt.Errorf("count failed: %w", err)
		}
		return count, nil
	}

	count, err := s.queries.CountAllDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

// List returns stored documents, newest first, optionally scoped to one
// ticker. Used by the chunk inspection endpoint.
func (s *Store) List(ctx context.Context, ticker string, limit int32) ([]Document, error) {
	if limit <= 0 {
		limit = 50
	}

	var filterJSON []byte
	if ticker != "" {
		var err error
		filterJSON, err = json.Marshal(map[string]string{MetaTicker: ticker})
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	rows, err := s.queries.ListDocuments(ctx, ListDocumentsParams{
		Filter:      filterJSON,
		ResultLimit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	docs := make([]Document, 0, len(rows))
	for _, res := range s.rowsToResults(rows) {
		docs = append(docs, res.Document)
	}
	return docs, nil
}

// Flush is called after a batch of writes. Every Add is durable on its own,
// so there is nothing to persist here beyond noting the batch boundary.
func (s *Store) Flush(ctx context.Context) error {
	count, err := s.Count(ctx, nil)
	if err != nil {
		s.logger.Warn("flush count failed", "error", err)
		return nil
	}
	s.logger.Info("knowledge base flushed", "total_documents", count)
	return nil
}

func (s *Store) rowsToResults(rows []DocumentRow) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}

		var createdAt time.Time
		if row.CreatedAt.Valid {
			createdAt = row.CreatedAt.Time
		}

		results = append(results, Result{
			Document: Document{
				ID:        row.ID,
				Content:   row.Content,
				Metadata:  metadata,
				CreatedAt: createdAt,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
