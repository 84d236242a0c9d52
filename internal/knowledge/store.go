// Package knowledge persists document chunks and their embeddings in
// PostgreSQL + pgvector, scoped per user, and answers cosine-similarity
// retrieval queries over them.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrChunkVectorMissing indicates a chunk arrived at StoreChunks without an
// embedding. Chunks are embedded before storage; a missing vector means the
// caller skipped that step.
var ErrChunkVectorMissing = errors.New("chunk has no embedding")

// StoredChunk is one embedded chunk ready for insertion.
type StoredChunk struct {
	Content    string
	Index      int
	TokenCount int
	Embedding  []float32
}

// RetrievedChunk is one similarity-search hit.
type RetrievedChunk struct {
	Content    string
	FileID     uuid.UUID
	ChunkIndex int
	// Similarity is 1 − cosine distance, in [-1, 1]; higher is closer.
	Similarity float64
}

// Store manages the document_chunks table.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// StoreChunks replaces the stored chunks for fileID with chunks, atomically.
// Prior rows for the file are deleted and the new rows inserted in one
// transaction, so re-ingesting a file can never leave a mix of old and new
// chunks behind. All chunks must carry an embedding.
func (s *Store) StoreChunks(ctx context.Context, fileID, userID uuid.UUID, chunks []StoredChunk) error {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d of file %s", ErrChunkVectorMissing, c.Index, fileID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("deleting existing chunks for file %s: %w", fileID, err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO document_chunks (file_id, user_id, content, chunk_index, token_count, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			fileID, userID, c.Content, c.Index, c.TokenCount, pgvector.NewVector(c.Embedding),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chunks for file %s: %w", fileID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks for file %s: %w", fileID, err)
	}

	s.logger.InfoContext(ctx, "stored chunks",
		slog.String("file_id", fileID.String()),
		slog.String("user_id", userID.String()),
		slog.Int64("replaced", tag.RowsAffected()),
		slog.Int("inserted", len(chunks)))
	return nil
}

// SimilaritySearch returns the limit chunks owned by userID closest to the
// query vector by cosine distance, best first. Rows without an embedding are
// excluded; ties break by insertion order. Chunks of other users are never
// visible.
func (s *Store) SimilaritySearch(ctx context.Context, userID uuid.UUID, query []float32, limit int) ([]RetrievedChunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT content, file_id, chunk_index, 1 - (embedding <=> $1) AS similarity
		 FROM document_chunks
		 WHERE user_id = $2 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1, seq
		 LIMIT $3`,
		pgvector.NewVector(query), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search for user %s: %w", userID, err)
	}
	defer rows.Close()

	var hits []RetrievedChunk
	for rows.Next() {
		var h RetrievedChunk
		if err := rows.Scan(&h.Content, &h.FileID, &h.ChunkIndex, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search hits: %w", err)
	}
	return hits, nil
}

// DeleteByFile removes all chunks of fileID and reports how many rows went
// away. Deleting a file that has no chunks is not an error.
func (s *Store) DeleteByFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for file %s: %w", fileID, err)
	}
	return tag.RowsAffected(), nil
}

// CountByUser reports how many chunks userID owns. Used by readiness and
// diagnostics, not by retrieval.
func (s *Store) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM document_chunks WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks for user %s: %w", userID, err)
	}
	return n, nil
}
