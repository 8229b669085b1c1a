package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_node_store.go -package=mocks auditrag/internal/storage NodeStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// NodeStore defines the interface for hierarchy node storage operations.
type NodeStore interface {
	// InsertBatch inserts all nodes of one build generation in a single
	// transaction.
	InsertBatch(ctx context.Context, generation int64, nodes []NodeRecord) error
	// ListByGeneration returns the nodes of a generation in insertion order.
	ListByGeneration(ctx context.Context, generation int64) ([]NodeRecord, error)
}

// NodeRepo provides methods for hierarchy node operations.
// It implements the NodeStore interface.
type NodeRepo struct {
	db *sql.DB
}

// NewNodeRepo creates a new NodeRepo.
func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

// InsertBatch inserts all nodes of one build generation in a single
// transaction. A failure rolls the whole batch back.
func (r *NodeRepo) InsertBatch(ctx context.Context, generation int64, nodes []NodeRecord) error {
	if len(nodes) == 0 {
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
		`INSERT INTO nodes (generation, id, document_id, display_name, parent_id, level, is_total, is_subtotal, aliases)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, node := range nodes {
		aliases, err := json.Marshal(node.Aliases)
		if err != nil {
			return fmt.Errorf("failed to encode aliases: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, generation, node.ID, node.DocumentID, node.DisplayName,
			node.ParentID, node.Level, node.IsTotal, node.IsSubtotal, string(aliases)); err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit nodes: %w", err)
	}

	return nil
}

// ListByGeneration returns the nodes of a generation in insertion order,
// which is the order the build emitted them in. Returns an empty slice if
// the generation has no nodes (not an error).
func (r *NodeRepo) ListByGeneration(ctx context.Context, generation int64) ([]NodeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, display_name, parent_id, level, is_total, is_subtotal, aliases
		 FROM nodes WHERE generation = ? ORDER BY rowid`,
		generation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var nodes []NodeRecord
	for rows.Next() {
		node := NodeRecord{Generation: generation}
		var aliases string
		if err := rows.Scan(&node.ID, &node.DocumentID, &node.DisplayName, &node.ParentID,
			&node.Level, &node.IsTotal, &node.IsSubtotal, &aliases); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if err := json.Unmarshal([]byte(aliases), &node.Aliases); err != nil {
			return nil, fmt.Errorf("failed to decode aliases for node %s: %w", node.ID, err)
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return nodes, nil
}
