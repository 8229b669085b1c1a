package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks auditrag/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// GetByID gets a document by its id. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	// Upsert inserts a new document or updates an existing one.
	Upsert(ctx context.Context, doc *DocumentRecord) error
	// ListByCorpus returns all documents of a corpus ordered by rel_path.
	ListByCorpus(ctx context.Context, corpusID int) ([]DocumentRecord, error)
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// GetByID gets a document by its id. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	var doc DocumentRecord
	var updatedAtStr string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, corpus_id, rel_path, doc_type, company, statement_type, fiscal_year, title, hash, updated_at
		 FROM documents WHERE id = ?`,
		id,
	).Scan(&doc.ID, &doc.CorpusID, &doc.RelPath, &doc.DocType, &doc.Company,
		&doc.StatementType, &doc.FiscalYear, &doc.Title, &doc.Hash, &updatedAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	doc.UpdatedAt, err = parseTimestamp(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}

	return &doc, nil
}

// Upsert inserts a new document or updates an existing one. Conflicts are
// resolved on the document id, so a file that moved but parses to the same
// identity updates in place.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *DocumentRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, corpus_id, rel_path, doc_type, company, statement_type, fiscal_year, title, hash, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET
		 corpus_id = excluded.corpus_id, rel_path = excluded.rel_path,
		 doc_type = excluded.doc_type, company = excluded.company,
		 statement_type = excluded.statement_type, fiscal_year = excluded.fiscal_year,
		 title = excluded.title, hash = excluded.hash, updated_at = CURRENT_TIMESTAMP`,
		doc.ID, doc.CorpusID, doc.RelPath, doc.DocType, doc.Company,
		doc.StatementType, doc.FiscalYear, doc.Title, doc.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

// ListByCorpus returns all documents of a corpus ordered by rel_path.
// Returns an empty slice if the corpus has no documents (not an error).
func (r *DocumentRepo) ListByCorpus(ctx context.Context, corpusID int) ([]DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, corpus_id, rel_path, doc_type, company, statement_type, fiscal_year, title, hash, updated_at
		 FROM documents WHERE corpus_id = ? ORDER BY rel_path`,
		corpusID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []DocumentRecord
	for rows.Next() {
		var doc DocumentRecord
		var updatedAtStr string
		if err := rows.Scan(&doc.ID, &doc.CorpusID, &doc.RelPath, &doc.DocType, &doc.Company,
			&doc.StatementType, &doc.FiscalYear, &doc.Title, &doc.Hash, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		doc.UpdatedAt, err = parseTimestamp(updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
		}

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}
