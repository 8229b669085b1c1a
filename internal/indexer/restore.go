package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"auditrag/internal/chunk"
	"auditrag/internal/contextutil"
	"auditrag/internal/hierarchy"
	"auditrag/internal/storage"
)

// Restore republishes the latest ready generation from the database so
// queries can be served right after startup, before the first rebuild
// completes. Returns storage.ErrNotFound when no build has ever
// completed; the caller then waits for the initial build instead.
func (p *Pipeline) Restore(ctx context.Context) (int64, error) {
	logger := contextutil.LoggerFromContext(ctx)

	prev, err := p.stores.Generations.Latest(ctx)
	if err != nil {
		if err == storage.ErrNotFound {
			return 0, err
		}
		return 0, fmt.Errorf("failed to load latest generation: %w", err)
	}

	nodeRecords, err := p.stores.Nodes.ListByGeneration(ctx, prev.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load nodes: %w", err)
	}
	nodes := make([]hierarchy.Node, 0, len(nodeRecords))
	for _, r := range nodeRecords {
		nodes = append(nodes, hierarchy.Node{
			ID:          r.ID,
			DisplayName: r.DisplayName,
			ParentID:    r.ParentID,
			DocumentID:  r.DocumentID,
			IsTotal:     r.IsTotal,
			IsSubtotal:  r.IsSubtotal,
			Aliases:     r.Aliases,
		})
	}
	// Stored rows already went through repair once, so rebuilding the
	// tree from them reports no new repairs.
	tree, _ := hierarchy.Build(nodes, logger)

	valueRecords, err := p.stores.Values.ListByGeneration(ctx, prev.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load values: %w", err)
	}
	values := make([]hierarchy.FactValue, 0, len(valueRecords))
	for _, r := range valueRecords {
		values = append(values, hierarchy.FactValue{
			NodeID:     r.NodeID,
			FiscalYear: r.FiscalYear,
			PeriodType: hierarchy.PeriodType(r.PeriodType),
			Value:      r.Value,
			Text:       r.Text,
			Unit:       r.Unit,
			Derived:    r.Derived,
		})
	}

	chunkRecords, err := p.stores.Chunks.ListByGeneration(ctx, prev.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load chunks: %w", err)
	}
	chunks := make([]chunk.Chunk, 0, len(chunkRecords))
	for _, r := range chunkRecords {
		var meta chunk.Metadata
		if err := json.Unmarshal([]byte(r.Meta), &meta); err != nil {
			logger.WarnContext(ctx, "skipping chunk with unreadable metadata", "chunk_id", r.ID, "error", err)
			continue
		}
		chunks = append(chunks, chunk.Chunk{
			ID:     r.ID,
			Digest: r.Digest,
			Kind:   r.Kind,
			Text:   r.Text,
			Meta:   meta,
		})
	}

	p.holder.Swap(newGeneration(prev.ID, tree, values, chunks))
	p.metrics.SetActiveGeneration(prev.ID)

	logger.InfoContext(ctx, "restored generation",
		"generation", prev.ID,
		"nodes", len(nodes),
		"values", len(values),
		"chunks", len(chunks),
	)
	return prev.ID, nil
}
