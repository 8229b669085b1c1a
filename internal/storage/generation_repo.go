package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generation_store.go -package=mocks auditrag/internal/storage GenerationStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Generation build states.
const (
	GenerationBuilding = "building"
	GenerationReady    = "ready"
	GenerationFailed   = "failed"
)

// GenerationStore defines the interface for build generation bookkeeping.
type GenerationStore interface {
	// Begin inserts a new building generation and returns its id.
	Begin(ctx context.Context) (int64, error)
	// Complete marks a generation ready and records its row counts.
	Complete(ctx context.Context, id int64, documents, nodes, chunks int) error
	// Fail marks a generation failed.
	Fail(ctx context.Context, id int64) error
	// Latest returns the most recent ready generation.
	// Returns ErrNotFound when no build has completed yet.
	Latest(ctx context.Context) (*GenerationRecord, error)
	// Prune deletes every generation except the given ids and returns the
	// number of generations removed. Node, value and chunk rows follow
	// through ON DELETE CASCADE.
	Prune(ctx context.Context, keep []int64) (int64, error)
}

// GenerationRepo provides methods for build generation operations.
// It implements the GenerationStore interface.
type GenerationRepo struct {
	db *sql.DB
}

// NewGenerationRepo creates a new GenerationRepo.
func NewGenerationRepo(db *sql.DB) *GenerationRepo {
	return &GenerationRepo{db: db}
}

// Begin inserts a new building generation and returns its id.
func (r *GenerationRepo) Begin(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO generations (status) VALUES (?)",
		GenerationBuilding,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to begin generation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read generation id: %w", err)
	}

	return id, nil
}

// Complete marks a generation ready and records its row counts.
func (r *GenerationRepo) Complete(ctx context.Context, id int64, documents, nodes, chunks int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE generations SET status = ?, completed_at = CURRENT_TIMESTAMP,
		 documents = ?, nodes = ?, chunks = ? WHERE id = ?`,
		GenerationReady, documents, nodes, chunks, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete generation: %w", err)
	}
	return nil
}

// Fail marks a generation failed. Its rows stay in place until the next
// successful build prunes them.
func (r *GenerationRepo) Fail(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE generations SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?",
		GenerationFailed, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark generation failed: %w", err)
	}
	return nil
}

// Latest returns the most recent ready generation. Returns ErrNotFound
// when no build has completed yet.
func (r *GenerationRepo) Latest(ctx context.Context) (*GenerationRecord, error) {
	var gen GenerationRecord
	var startedAtStr string
	var completedAt sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, status, started_at, completed_at, documents, nodes, chunks
		 FROM generations WHERE status = ? ORDER BY id DESC LIMIT 1`,
		GenerationReady,
	).Scan(&gen.ID, &gen.Status, &startedAtStr, &completedAt, &gen.Documents, &gen.Nodes, &gen.Chunks)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest generation: %w", err)
	}

	gen.StartedAt, err = parseTimestamp(startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	if completedAt.Valid {
		gen.CompletedAt, err = parseTimestamp(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
	}

	return &gen, nil
}

// Prune deletes every generation except the given ids and returns the
// number of generations removed. An empty keep list is a no-op rather
// than a wipe.
func (r *GenerationRepo) Prune(ctx context.Context, keep []int64) (int64, error) {
	if len(keep) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]any, len(keep))
	for i, id := range keep {
		args[i] = id
	}

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM generations WHERE id NOT IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune generations: %w", err)
	}

	return result.RowsAffected()
}
