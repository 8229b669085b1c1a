// Package rag runs the online query path: normalize the question, search
// the current corpus generation, rerank, expand hierarchy context and
// assemble a bounded context block with its evidence.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditrag/internal/contextutil"
	"auditrag/internal/hierarchy"
	"auditrag/internal/metrics"
	"auditrag/internal/retrieval"
)

const (
	defaultTopK = 5
	maxTopK     = 20
	// rerankPoolFactor over-fetches retrieval so the reranker has spare
	// candidates to promote.
	rerankPoolFactor = 2
	maxExpandNodes   = 5
)

// Engine answers retrieval queries against the live corpus generation.
type Engine interface {
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
}

type queryEngine struct {
	holder    *retrieval.Holder
	searcher  *retrieval.Searcher
	reranker  Reranker
	assembler *Assembler
	metrics   *metrics.Metrics
	topK      int
}

// NewEngine creates the query engine. A nil reranker keeps retrieval
// order and a nil assembler uses default budgets.
func NewEngine(holder *retrieval.Holder, searcher *retrieval.Searcher, reranker Reranker, assembler *Assembler, m *metrics.Metrics, topK int) Engine {
	if reranker == nil {
		reranker = IdentityReranker{}
	}
	if assembler == nil {
		assembler = NewAssembler(0, 0)
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	return &queryEngine{
		holder:    holder,
		searcher:  searcher,
		reranker:  reranker,
		assembler: assembler,
		metrics:   m,
		topK:      topK,
	}
}

func (e *queryEngine) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return QueryResponse{}, fmt.Errorf("question must not be empty")
	}

	gen, ok := e.holder.Load()
	if !ok {
		return QueryResponse{}, ErrNotReady
	}

	topK := e.topK
	if req.TopK > 0 {
		topK = req.TopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	norm := gen.Normalizer.Normalize(question)
	logger.InfoContext(ctx, "query started",
		"question", question,
		"generation", gen.Snapshot.Generation(),
		"clauses", len(norm.Clauses),
		"accounts", len(norm.Accounts),
		"years", norm.Years,
		"top_k", topK,
	)

	start := time.Now()
	res, err := e.searcher.Search(ctx, gen.Snapshot, norm.Expanded, topK*rerankPoolFactor)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			collab := "retrieval"
			var ce *retrieval.CollaboratorError
			if errors.As(err, &ce) {
				collab = ce.Collaborator
			}
			err = &RetrievalTimeout{Collaborator: collab, Err: err}
		}
		e.metrics.RecordQuery("error", time.Since(start))
		return QueryResponse{}, err
	}

	if len(res.Matches) == 0 {
		logger.InfoContext(ctx, "no evidence found", "stage", res.Stage, "degraded", res.Degraded)
		e.metrics.RecordEmptyResult()
		e.metrics.RecordQuery("none", time.Since(start))
		return QueryResponse{
			Query:           question,
			NormalizedQuery: norm.Expanded,
			Evidence:        []Evidence{},
			Stage:           res.Stage,
			Generation:      gen.Snapshot.Generation(),
			Degraded:        res.Degraded,
		}, nil
	}

	ranked := e.reranker.Rerank(ctx, question, res.Matches, topK)
	contexts := gen.Expander.Expand(expandIDs(ranked, norm.Accounts), hierarchy.ExpandOptions{
		Years:           norm.Years,
		IncludeSiblings: true,
	})
	block, evidence := e.assembler.Assemble(ranked, contexts)

	e.metrics.RecordQuery(res.Stage, time.Since(start))
	logger.InfoContext(ctx, "query completed",
		"stage", res.Stage,
		"evidence", len(evidence),
		"context_nodes", len(contexts),
		"degraded", res.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return QueryResponse{
		Query:           question,
		NormalizedQuery: norm.Expanded,
		Evidence:        evidence,
		ContextBlock:    block,
		Stage:           res.Stage,
		Generation:      gen.Snapshot.Generation(),
		Degraded:        res.Degraded,
	}, nil
}

// expandIDs picks the hierarchy nodes to expand: nodes backing the
// ranked evidence first, then accounts tagged in the question.
func expandIDs(matches []retrieval.Match, accounts []string) []string {
	ids := make([]string, 0, maxExpandNodes)
	seen := make(map[string]struct{}, maxExpandNodes)
	add := func(id string) {
		if id == "" || len(ids) >= maxExpandNodes {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, m := range matches {
		add(m.Chunk.Meta.NodeID)
	}
	for _, id := range accounts {
		add(id)
	}
	return ids
}
