package knowledge

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// UpsertDocumentParams are the column values for an insert-or-update.
type UpsertDocumentParams struct {
	ID        string
	Content   string
	Embedding *pgvector.Vector
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
}

// SearchDocumentsParams drive a vector similarity query. A nil Filter means
// unfiltered search.
type SearchDocumentsParams struct {
	QueryEmbedding *pgvector.Vector
	Filter         []byte
	ResultLimit    int32
}

// DocumentRow is one search result row.
type DocumentRow struct {
	ID         string
	Content    string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
	Similarity float64
}

// ListDocumentsParams page through stored documents, newest first. A nil
// Filter lists everything.
type ListDocumentsParams struct {
	Filter      []byte
	ResultLimit int32
}

// Querier is the database surface the Store depends on. Defined here, by the
// consumer, so tests can substitute a mock.
type Querier interface {
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error
	DocumentExists(ctx context.Context, id string) (bool, error)
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]DocumentRow, error)
	ListDocuments(ctx context.Context, arg ListDocumentsParams) ([]DocumentRow, error)
	CountDocuments(ctx context.Context, filter []byte) (int64, error)
	CountAllDocuments(ctx context.Context) (int64, error)
}

// PGQuerier implements Querier on a pgx connection pool.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier wraps a pool. The pool must have pgvector types registered on
// each connection.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

const upsertDocumentSQL = `
INSERT INTO documents (id, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))
ON CONFLICT (id) DO UPDATE SET
    content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata`

func (q *PGQuerier) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	_, err := q.pool.Exec(ctx, upsertDocumentSQL,
		arg.ID, arg.Content, arg.Embedding, arg.Metadata, arg.CreatedAt)
	return err
}

func (q *PGQuerier) DocumentExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := q.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

const searchDocumentsSQL = `
SELECT id, content, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM documents
WHERE $2::jsonb IS NULL OR metadata @> $2
ORDER BY embedding <=> $1
LIMIT $3`

func (q *PGQuerier) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]DocumentRow, error) {
	rows, err := q.pool.Query(ctx, searchDocumentsSQL,
		arg.QueryEmbedding, arg.Filter, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var row DocumentRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const listDocumentsSQL = `
SELECT id, content, metadata, created_at, 0::float8 AS similarity
FROM documents
WHERE $1::jsonb IS NULL OR metadata @> $1
ORDER BY created_at DESC
LIMIT $2`

func (q *PGQuerier) ListDocuments(ctx context.Context, arg ListDocumentsParams) ([]DocumentRow, error) {
	rows, err := q.pool.Query(ctx, listDocumentsSQL, arg.Filter, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var row DocumentRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *PGQuerier) CountDocuments(ctx context.Context, filter []byte) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE metadata @> $1`, filter).Scan(&count)
	return count, err
}

func (q *PGQuerier) CountAllDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	return count, err
}
