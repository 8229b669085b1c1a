package indexer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"auditrag/internal/chunk"
	"auditrag/internal/corpus"
)

// CoverageStats describes what the latest ready generation covers.
type CoverageStats struct {
	Generation int64 `json:"generation"`
	// Documents is the number of source documents known to the database.
	Documents int `json:"documents"`
	// DocsWithoutChunks counts known documents that contributed nothing
	// to this generation, typically files removed from the corpus roots.
	DocsWithoutChunks int            `json:"docs_without_chunks"`
	Chunks            int            `json:"chunks"`
	ChunksByKind      map[string]int `json:"chunks_by_kind"`
	// ChunkRuneStats covers fact and clause chunks only; section entries
	// are never served as evidence.
	ChunkRuneStats RuneStats `json:"chunk_rune_stats"`
}

// RuneStats summarizes text lengths in runes.
type RuneStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// Coverage computes coverage statistics for the latest ready generation.
// Returns storage.ErrNotFound when no build has completed yet.
func (p *Pipeline) Coverage(ctx context.Context) (*CoverageStats, error) {
	gen, err := p.stores.Generations.Latest(ctx)
	if err != nil {
		return nil, err
	}

	stats := &CoverageStats{
		Generation:   gen.ID,
		ChunksByKind: make(map[string]int),
	}

	chunks, err := p.stores.Chunks.ListByGeneration(ctx, gen.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	withChunks := make(map[string]struct{})
	var lengths []int
	for _, c := range chunks {
		stats.Chunks++
		stats.ChunksByKind[c.Kind]++
		withChunks[c.DocumentID] = struct{}{}
		if c.Kind != chunk.KindSection {
			lengths = append(lengths, utf8.RuneCountInString(c.Text))
		}
	}
	stats.ChunkRuneStats = computeRuneStats(lengths)

	for _, name := range []string{corpus.KindFinancial, corpus.KindStandards} {
		rec, err := p.manager.ByName(name)
		if err != nil {
			continue
		}
		docs, err := p.stores.Documents.ListByCorpus(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		stats.Documents += len(docs)
		for _, d := range docs {
			if _, ok := withChunks[d.ID]; !ok {
				stats.DocsWithoutChunks++
			}
		}
	}
	return stats, nil
}

// computeRuneStats computes min, max, mean and p95 over rune counts.
func computeRuneStats(lengths []int) RuneStats {
	if len(lengths) == 0 {
		return RuneStats{}
	}

	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)

	sum := 0
	for _, n := range sorted {
		sum += n
	}
	mean := float64(sum) / float64(len(sorted))

	p95 := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95 >= len(sorted) {
		p95 = len(sorted) - 1
	}

	return RuneStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95],
	}
}
