package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_value_store.go -package=mocks auditrag/internal/storage ValueStore

import (
	"context"
	"database/sql"
	"fmt"
)

// ValueStore defines the interface for fact value storage operations.
type ValueStore interface {
	// InsertBatch inserts all fact values of one build generation in a
	// single transaction.
	InsertBatch(ctx context.Context, generation int64, values []ValueRecord) error
	// ListByGeneration returns the fact values of a generation in
	// insertion order.
	ListByGeneration(ctx context.Context, generation int64) ([]ValueRecord, error)
}

// ValueRepo provides methods for fact value operations.
// It implements the ValueStore interface.
type ValueRepo struct {
	db *sql.DB
}

// NewValueRepo creates a new ValueRepo.
func NewValueRepo(db *sql.DB) *ValueRepo {
	return &ValueRepo{db: db}
}

// InsertBatch inserts all fact values of one build generation in a single
// transaction. A failure rolls the whole batch back. A duplicate
// (node, fiscal year, period) within the batch is an error; the merge
// stage is expected to have deduplicated beforehand.
func (r *ValueRepo) InsertBatch(ctx context.Context, generation int64, values []ValueRecord) error {
	if len(values) == 0 {
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
		`INSERT INTO fact_values (generation, node_id, fiscal_year, period_type, value, text, unit, derived)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare value insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, generation, v.NodeID, v.FiscalYear, v.PeriodType,
			v.Value, v.Text, v.Unit, v.Derived); err != nil {
			return fmt.Errorf("failed to insert value for node %s: %w", v.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit values: %w", err)
	}

	return nil
}

// ListByGeneration returns the fact values of a generation in insertion
// order. Returns an empty slice if the generation has no values (not an
// error).
func (r *ValueRepo) ListByGeneration(ctx context.Context, generation int64) ([]ValueRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT node_id, fiscal_year, period_type, value, text, unit, derived
		 FROM fact_values WHERE generation = ? ORDER BY rowid`,
		generation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query values: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var values []ValueRecord
	for rows.Next() {
		v := ValueRecord{Generation: generation}
		if err := rows.Scan(&v.NodeID, &v.FiscalYear, &v.PeriodType, &v.Value, &v.Text, &v.Unit, &v.Derived); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return values, nil
}
