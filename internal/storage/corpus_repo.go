package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_corpus_store.go -package=mocks auditrag/internal/storage CorpusStore

import (
	"context"
	"database/sql"
	"fmt"
)

// CorpusStore defines the interface for corpus storage operations.
type CorpusStore interface {
	// GetOrCreateByName gets an existing corpus by name, or creates it if
	// it doesn't exist.
	GetOrCreateByName(ctx context.Context, name, kind, rootPath string) (CorpusRecord, error)
	// ListAll returns all corpora ordered by name.
	ListAll(ctx context.Context) ([]CorpusRecord, error)
}

// CorpusRepo provides methods for corpus operations.
// It implements the CorpusStore interface.
type CorpusRepo struct {
	db *sql.DB
}

// NewCorpusRepo creates a new CorpusRepo.
func NewCorpusRepo(db *sql.DB) *CorpusRepo {
	return &CorpusRepo{db: db}
}

// GetOrCreateByName gets an existing corpus by name, or creates it if it doesn't exist.
func (r *CorpusRepo) GetOrCreateByName(ctx context.Context, name, kind, rootPath string) (CorpusRecord, error) {
	// Try to get existing corpus
	corpus, err := r.getByName(ctx, name)
	if err == nil {
		return corpus, nil
	}
	if err != ErrNotFound {
		return CorpusRecord{}, err
	}

	// Corpus doesn't exist, create it
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO corpora (name, kind, root_path) VALUES (?, ?, ?)",
		name, kind, rootPath,
	); err != nil {
		return CorpusRecord{}, fmt.Errorf("failed to create corpus: %w", err)
	}

	// Get the created corpus with timestamp
	return r.getByName(ctx, name)
}

func (r *CorpusRepo) getByName(ctx context.Context, name string) (CorpusRecord, error) {
	var corpus CorpusRecord
	var createdAtStr string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, kind, root_path, created_at FROM corpora WHERE name = ?",
		name,
	).Scan(&corpus.ID, &corpus.Name, &corpus.Kind, &corpus.RootPath, &createdAtStr)

	if err == sql.ErrNoRows {
		return CorpusRecord{}, ErrNotFound
	}
	if err != nil {
		return CorpusRecord{}, fmt.Errorf("failed to query corpus: %w", err)
	}

	corpus.CreatedAt, err = parseTimestamp(createdAtStr)
	if err != nil {
		return CorpusRecord{}, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}

	return corpus, nil
}

// ListAll returns all corpora ordered by name.
func (r *CorpusRepo) ListAll(ctx context.Context) ([]CorpusRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, kind, root_path, created_at FROM corpora ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query corpora: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var corpora []CorpusRecord
	for rows.Next() {
		var corpus CorpusRecord
		var createdAtStr string
		if err := rows.Scan(&corpus.ID, &corpus.Name, &corpus.Kind, &corpus.RootPath, &createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan corpus: %w", err)
		}

		corpus.CreatedAt, err = parseTimestamp(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
		}

		corpora = append(corpora, corpus)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return corpora, nil
}
