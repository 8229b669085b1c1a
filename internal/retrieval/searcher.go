package retrieval

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks auditrag/internal/retrieval Embedder

import (
	"context"
	"fmt"
	"time"

	"auditrag/internal/chunk"
	"auditrag/internal/contextutil"
	"auditrag/internal/metrics"
	"auditrag/internal/vectorstore"
)

// Retrieval modes.
const (
	ModeHybrid  = "hybrid"
	ModeVector  = "vector"
	ModeLexical = "lexical"
)

// Stage names reported on results and metrics.
const (
	StageLexical = "lexical"
	StageVector  = "vector"
)

const (
	defaultTopK      = 5
	defaultScopeTopN = 3
)

// Embedder produces fixed-size vectors for query text.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures a Searcher.
type Options struct {
	// ChunkCollection is the vector collection holding chunk embeddings.
	ChunkCollection string
	// SectionCollection is the vector collection holding section-level
	// embeddings used for scope narrowing.
	SectionCollection string
	// Mode selects the cascade: hybrid (default), vector or lexical.
	Mode string
	// ScopeTopN is how many sections scope narrowing keeps. Default 3.
	ScopeTopN int
	// Timeout bounds each embedding and vector store call.
	Timeout time.Duration
}

// Match is one retrieval hit.
type Match struct {
	Chunk chunk.Chunk
	Score float64
}

// CollaboratorError names the external dependency behind a failed
// search, so callers can report which collaborator was unavailable.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one search.
type Result struct {
	Matches []Match
	// Stage is the cascade stage that produced the matches.
	Stage string
	// Sections are the section ids scope narrowing selected, in rank
	// order. Empty when narrowing was skipped or found nothing.
	Sections []string
	// Degraded reports that a collaborator failure forced a cheaper
	// stage than the cascade would normally run.
	Degraded bool
}

// Searcher runs the staged search over a snapshot: section-level vector
// search narrows the scope, BM25 scores chunks inside it, and a
// full-corpus vector search catches queries the lexical stage cannot
// match. In hybrid mode Search never returns an error; collaborator
// failures degrade the cascade and are reported via Result.Degraded.
type Searcher struct {
	store    vectorstore.VectorStore
	embedder Embedder
	opts     Options
	metrics  *metrics.Metrics
}

// NewSearcher creates a Searcher. A nil metrics disables instrumentation.
func NewSearcher(store vectorstore.VectorStore, embedder Embedder, opts Options, m *metrics.Metrics) *Searcher {
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.ScopeTopN <= 0 {
		opts.ScopeTopN = defaultScopeTopN
	}
	return &Searcher{
		store:    store,
		embedder: embedder,
		opts:     opts,
		metrics:  m,
	}
}

// Search runs the configured cascade for an already-normalized query.
// In lexical and hybrid modes the returned error is always nil; in
// vector mode a collaborator failure is returned to the caller since no
// cheaper stage exists. An empty snapshot yields an empty result.
func (s *Searcher) Search(ctx context.Context, snap *Snapshot, query string, topK int) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if snap == nil || snap.Len() == 0 {
		return Result{}, nil
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	switch s.opts.Mode {
	case ModeLexical:
		return s.searchLexical(ctx, snap, query, topK, nil, nil, false), nil
	case ModeVector:
		vec, err := s.embedQuery(ctx, query)
		if err != nil {
			s.metrics.RecordCollaboratorFailure("embeddings")
			return Result{Stage: StageVector, Degraded: true},
				&CollaboratorError{Collaborator: "embeddings", Err: fmt.Errorf("failed to embed query: %w", err)}
		}
		res, err := s.searchVector(ctx, snap, vec, topK, false)
		if err != nil {
			return res, &CollaboratorError{Collaborator: "vectorstore", Err: err}
		}
		return res, nil
	}

	// Hybrid cascade.
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		logger.WarnContext(ctx, "query embedding failed, degrading to unscoped lexical search", "error", err)
		s.metrics.RecordCollaboratorFailure("embeddings")
		return s.searchLexical(ctx, snap, query, topK, nil, nil, true), nil
	}

	sections, scope, degraded := s.narrowScope(ctx, snap, vec)
	if degraded {
		logger.WarnContext(ctx, "scope narrowing unavailable, falling back to unscoped lexical search")
	}

	if res := s.searchLexical(ctx, snap, query, topK, scope, sections, degraded); len(res.Matches) > 0 {
		return res, nil
	}

	res, err := s.searchVector(ctx, snap, vec, topK, degraded)
	if err != nil {
		logger.ErrorContext(ctx, "vector fallback failed", "error", err)
		return Result{Stage: StageVector, Degraded: true}, nil
	}
	return res, nil
}

// embedQuery embeds the query text with the configured timeout.
func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return vecs[0], nil
}

// narrowScope runs the section-level vector search and resolves the top
// sections' members into a chunk id scope. Section hits unknown to the
// snapshot are stale points from an older generation and are dropped.
// The degraded return reports a vector store failure; the cascade then
// continues without scoping instead of treating the corpus as empty.
func (s *Searcher) narrowScope(ctx context.Context, snap *Snapshot, vec []float32) ([]string, map[string]struct{}, bool) {
	if snap.SectionCount() == 0 {
		return nil, nil, false
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hits, err := s.store.Search(cctx, s.opts.SectionCollection, vec, s.opts.ScopeTopN, nil)
	if err != nil {
		s.metrics.RecordCollaboratorFailure("vectorstore")
		return nil, nil, true
	}

	var sections []string
	for _, h := range hits {
		id, _ := h.Meta["section_id"].(string)
		if id == "" || !snap.HasSection(id) {
			continue
		}
		sections = append(sections, id)
	}
	return sections, snap.Scope(sections), false
}

// searchLexical scores the query with BM25, optionally restricted to the
// given scope, and resolves the hits into chunks.
func (s *Searcher) searchLexical(ctx context.Context, snap *Snapshot, query string, topK int, scope map[string]struct{}, sections []string, degraded bool) Result {
	logger := contextutil.LoggerFromContext(ctx)

	res := Result{Stage: StageLexical, Sections: sections, Degraded: degraded}
	for _, sc := range snap.index.Search(query, topK, scope) {
		c, ok := snap.Chunk(sc.ID)
		if !ok {
			continue
		}
		res.Matches = append(res.Matches, Match{Chunk: c, Score: sc.Score})
	}

	logger.DebugContext(ctx, "lexical stage completed",
		"matches", len(res.Matches),
		"scoped", scope != nil,
		"sections", len(sections),
	)
	return res
}

// searchVector runs the full-corpus vector search over chunk embeddings.
// It over-fetches so that stale points filtered against the snapshot do
// not starve the result.
func (s *Searcher) searchVector(ctx context.Context, snap *Snapshot, vec []float32, topK int, degraded bool) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hits, err := s.store.Search(cctx, s.opts.ChunkCollection, vec, topK*2, nil)
	if err != nil {
		s.metrics.RecordCollaboratorFailure("vectorstore")
		return Result{Stage: StageVector, Degraded: true}, fmt.Errorf("failed to search chunk collection: %w", err)
	}

	res := Result{Stage: StageVector, Degraded: degraded}
	for _, h := range hits {
		id, _ := h.Meta["chunk_id"].(string)
		if id == "" {
			continue
		}
		c, ok := snap.Chunk(id)
		if !ok {
			continue
		}
		res.Matches = append(res.Matches, Match{Chunk: c, Score: float64(h.Score)})
		if len(res.Matches) == topK {
			break
		}
	}

	logger.DebugContext(ctx, "vector stage completed", "hits", len(hits), "matches", len(res.Matches))
	return res, nil
}

func (s *Searcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}
