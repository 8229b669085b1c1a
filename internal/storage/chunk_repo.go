package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks auditrag/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
)

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// InsertBatch inserts all chunks of one build generation in a single
	// transaction. Chunk ids must already be deduplicated.
	InsertBatch(ctx context.Context, generation int64, chunks []ChunkRecord) error
	// ListByGeneration returns the chunks of a generation in insertion
	// order.
	ListByGeneration(ctx context.Context, generation int64) ([]ChunkRecord, error)
	// ListDigests returns the digests of a generation in insertion order.
	ListDigests(ctx context.Context, generation int64) ([]string, error)
	// ListStaleDigests returns digests stored for other generations that
	// the given generation no longer contains.
	ListStaleDigests(ctx context.Context, generation int64) ([]string, error)
	// GetByID gets a chunk of a generation by its id.
	// Returns ErrNotFound if not found.
	GetByID(ctx context.Context, generation int64, id string) (*ChunkRecord, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch inserts all chunks of one build generation in a single
// transaction. A failure rolls the whole batch back. Duplicate chunk ids
// are an error here; the merge stage counts and drops them beforehand.
func (r *ChunkRepo) InsertBatch(ctx context.Context, generation int64, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (generation, id, document_id, section_id, kind, digest, text, meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, generation, chunk.ID, chunk.DocumentID, chunk.SectionID,
			chunk.Kind, chunk.Digest, chunk.Text, chunk.Meta); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	return nil
}

// ListByGeneration returns the chunks of a generation in insertion order.
// The order is stable across restarts, which keeps lexical-score ties
// deterministic when the index is rebuilt from these rows.
func (r *ChunkRepo) ListByGeneration(ctx context.Context, generation int64) ([]ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, section_id, kind, digest, text, meta
		 FROM chunks WHERE generation = ? ORDER BY rowid`,
		generation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []ChunkRecord
	for rows.Next() {
		chunk := ChunkRecord{Generation: generation}
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.SectionID, &chunk.Kind,
			&chunk.Digest, &chunk.Text, &chunk.Meta); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return chunks, nil
}

// ListDigests returns the digests of a generation in insertion order.
func (r *ChunkRepo) ListDigests(ctx context.Context, generation int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT digest FROM chunks WHERE generation = ? ORDER BY rowid",
		generation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query digests: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var digests []string
	for rows.Next() {
		var digest string
		if err := rows.Scan(&digest); err != nil {
			return nil, fmt.Errorf("failed to scan digest: %w", err)
		}
		digests = append(digests, digest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return digests, nil
}

// ListStaleDigests returns digests stored for other generations that the
// given generation no longer contains. Used to delete stale vector points
// after a build swaps in.
func (r *ChunkRepo) ListStaleDigests(ctx context.Context, generation int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT digest FROM chunks
		 WHERE generation <> ?
		   AND digest NOT IN (SELECT digest FROM chunks WHERE generation = ?)`,
		generation, generation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale digests: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var digests []string
	for rows.Next() {
		var digest string
		if err := rows.Scan(&digest); err != nil {
			return nil, fmt.Errorf("failed to scan digest: %w", err)
		}
		digests = append(digests, digest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return digests, nil
}

// GetByID gets a chunk of a generation by its id. Returns ErrNotFound if
// not found.
func (r *ChunkRepo) GetByID(ctx context.Context, generation int64, id string) (*ChunkRecord, error) {
	chunk := ChunkRecord{Generation: generation}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, document_id, section_id, kind, digest, text, meta
		 FROM chunks WHERE generation = ? AND id = ?`,
		generation, id,
	).Scan(&chunk.ID, &chunk.DocumentID, &chunk.SectionID, &chunk.Kind,
		&chunk.Digest, &chunk.Text, &chunk.Meta)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &chunk, nil
}
