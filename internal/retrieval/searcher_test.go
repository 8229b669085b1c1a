package retrieval

import (
	"context"
	"errors"
	"testing"

	"auditrag/internal/vectorstore"
)

// fakeEmbedder returns fixed vectors per query text, defaulting to the
// balance-sheet direction.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// flakyStore fails searches against selected collections.
type flakyStore struct {
	*vectorstore.MemoryStore
	fail map[string]bool
}

func (s *flakyStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]vectorstore.SearchResult, error) {
	if s.fail[collection] {
		return nil, errors.New("vector store unavailable")
	}
	return s.MemoryStore.Search(ctx, collection, query, k, filters)
}

func newSearchFixture(t *testing.T) (*Snapshot, *vectorstore.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	snap := NewSnapshot(1, testChunks(), nil)
	store := vectorstore.NewMemoryStore()
	for _, coll := range []string{"sections", "chunks"} {
		if err := store.EnsureCollection(ctx, coll, 3); err != nil {
			t.Fatalf("EnsureCollection(%s) error = %v", coll, err)
		}
	}

	err := store.Upsert(ctx, "sections", []vectorstore.Point{
		{ID: "sp1", Vec: []float32{1, 0, 0}, Meta: map[string]any{"section_id": "samsung_2024_bs"}},
		{ID: "sp2", Vec: []float32{0, 1, 0}, Meta: map[string]any{"section_id": "상법"}},
	})
	if err != nil {
		t.Fatalf("Upsert(sections) error = %v", err)
	}

	err = store.Upsert(ctx, "chunks", []vectorstore.Point{
		{ID: "p1", Vec: []float32{0.9, 0.1, 0}, Meta: map[string]any{"chunk_id": "c1aaaaaaaaaaaaaa"}},
		{ID: "p2", Vec: []float32{0.8, 0.2, 0}, Meta: map[string]any{"chunk_id": "c2bbbbbbbbbbbbbb"}},
		{ID: "p3", Vec: []float32{0, 1, 0}, Meta: map[string]any{"chunk_id": "c3cccccccccccccc"}},
	})
	if err != nil {
		t.Fatalf("Upsert(chunks) error = %v", err)
	}
	return snap, store
}

func testOptions() Options {
	return Options{
		ChunkCollection:   "chunks",
		SectionCollection: "sections",
		ScopeTopN:         1,
	}
}

func TestSearcher_HybridScopedLexical(t *testing.T) {
	snap, store := newSearchFixture(t)
	searcher := NewSearcher(store, &fakeEmbedder{}, testOptions(), nil)

	// The query matches the balance-sheet chunks and the clause chunk
	// lexically, but scope narrowing keeps only the balance-sheet
	// section, so the clause chunk must not appear.
	res, err := searcher.Search(context.Background(), snap, "재무상태표 상법", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if res.Stage != StageLexical {
		t.Errorf("Stage = %q, want %q", res.Stage, StageLexical)
	}
	if res.Degraded {
		t.Error("Degraded = true, want false")
	}
	if len(res.Sections) != 1 || res.Sections[0] != "samsung_2024_bs" {
		t.Errorf("Sections = %v, want [samsung_2024_bs]", res.Sections)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(res.Matches), res.Matches)
	}
	for _, m := range res.Matches {
		if m.Chunk.ID == "c3cccccccccccccc" {
			t.Error("clause chunk outside the scoped sections must be excluded")
		}
	}
}

func TestSearcher_HybridVectorFallback(t *testing.T) {
	snap, store := newSearchFixture(t)
	searcher := NewSearcher(store, &fakeEmbedder{}, testOptions(), nil)

	// No query token appears in any chunk, so the lexical stage is empty
	// and the cascade falls back to full-corpus vector search. The corpus
	// is non-empty, so the result must be too.
	res, err := searcher.Search(context.Background(), snap, "감사의견은 무엇인가요", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if res.Stage != StageVector {
		t.Errorf("Stage = %q, want %q", res.Stage, StageVector)
	}
	if len(res.Matches) == 0 {
		t.Fatal("hybrid search over a non-empty corpus returned no matches")
	}
	if res.Matches[0].Chunk.ID != "c1aaaaaaaaaaaaaa" {
		t.Errorf("first match = %s, want c1 (closest vector)", res.Matches[0].Chunk.ID)
	}
}

func TestSearcher_VectorFallbackFiltersStalePoints(t *testing.T) {
	snap, store := newSearchFixture(t)

	// A leftover point from an older generation scores perfectly but its
	// chunk id is unknown to the snapshot.
	err := store.Upsert(context.Background(), "chunks", []vectorstore.Point{
		{ID: "pstale", Vec: []float32{1, 0, 0}, Meta: map[string]any{"chunk_id": "removed-chunk"}},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	searcher := NewSearcher(store, &fakeEmbedder{}, testOptions(), nil)
	res, err := searcher.Search(context.Background(), snap, "감사의견은 무엇인가요", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(res.Matches) == 0 {
		t.Fatal("expected matches after filtering stale points")
	}
	for _, m := range res.Matches {
		if m.Chunk.ID == "removed-chunk" {
			t.Error("stale point leaked into results")
		}
	}
	if res.Matches[0].Chunk.ID != "c1aaaaaaaaaaaaaa" {
		t.Errorf("first match = %s, want c1", res.Matches[0].Chunk.ID)
	}
}

func TestSearcher_EmbedFailureDegradesToLexical(t *testing.T) {
	snap, store := newSearchFixture(t)
	embedder := &fakeEmbedder{err: errors.New("embeddings unavailable")}
	searcher := NewSearcher(store, embedder, testOptions(), nil)

	res, err := searcher.Search(context.Background(), snap, "재무상태표 상법", 10)
	if err != nil {
		t.Fatalf("Search() error = %v, hybrid mode must degrade instead", err)
	}

	if !res.Degraded {
		t.Error("Degraded = false, want true")
	}
	if res.Stage != StageLexical {
		t.Errorf("Stage = %q, want %q", res.Stage, StageLexical)
	}
	// Without scope narrowing the lexical stage covers the whole corpus.
	if len(res.Matches) != 3 {
		t.Fatalf("got %d matches, want 3: %+v", len(res.Matches), res.Matches)
	}
	if res.Matches[0].Chunk.ID != "c3cccccccccccccc" {
		t.Errorf("first match = %s, want c3 (rarest term)", res.Matches[0].Chunk.ID)
	}
}

func TestSearcher_ScopeNarrowingFailureDegrades(t *testing.T) {
	snap, memStore := newSearchFixture(t)
	store := &flakyStore{MemoryStore: memStore, fail: map[string]bool{"sections": true}}
	searcher := NewSearcher(store, &fakeEmbedder{}, testOptions(), nil)

	res, err := searcher.Search(context.Background(), snap, "재무상태표 상법", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if !res.Degraded {
		t.Error("Degraded = false, want true")
	}
	if res.Stage != StageLexical {
		t.Errorf("Stage = %q, want %q", res.Stage, StageLexical)
	}
	if len(res.Matches) != 3 {
		t.Errorf("got %d matches, want 3 (unscoped)", len(res.Matches))
	}
}

func TestSearcher_TotalStoreFailure(t *testing.T) {
	snap, memStore := newSearchFixture(t)
	store := &flakyStore{MemoryStore: memStore, fail: map[string]bool{"sections": true, "chunks": true}}
	searcher := NewSearcher(store, &fakeEmbedder{}, testOptions(), nil)

	// No lexical tokens match and every vector call fails: the cascade
	// has nothing left, but hybrid mode still must not error.
	res, err := searcher.Search(context.Background(), snap, "감사의견은 무엇인가요", 10)
	if err != nil {
		t.Fatalf("Search() error = %v, want graceful degradation", err)
	}
	if !res.Degraded {
		t.Error("Degraded = false, want true")
	}
	if len(res.Matches) != 0 {
		t.Errorf("got %d matches, want 0", len(res.Matches))
	}
}

func TestSearcher_VectorMode(t *testing.T) {
	snap, store := newSearchFixture(t)
	embedder := &fakeEmbedder{vectors: map[string][]float32{"유동자산": {0, 1, 0}}}
	opts := testOptions()
	opts.Mode = ModeVector
	searcher := NewSearcher(store, embedder, opts, nil)

	// 유동자산 would win the lexical stage, but vector mode never runs
	// it: the clause chunk is the nearest vector.
	res, err := searcher.Search(context.Background(), snap, "유동자산", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if res.Stage != StageVector {
		t.Errorf("Stage = %q, want %q", res.Stage, StageVector)
	}
	if len(res.Matches) == 0 || res.Matches[0].Chunk.ID != "c3cccccccccccccc" {
		t.Errorf("matches = %+v, want c3 first", res.Matches)
	}
}

func TestSearcher_VectorModeEmbedFailure(t *testing.T) {
	snap, store := newSearchFixture(t)
	embedder := &fakeEmbedder{err: errors.New("embeddings unavailable")}
	opts := testOptions()
	opts.Mode = ModeVector
	searcher := NewSearcher(store, embedder, opts, nil)

	res, err := searcher.Search(context.Background(), snap, "유동자산", 2)
	if err == nil {
		t.Fatal("Search() error = nil, vector mode has no cheaper stage to fall back to")
	}
	if !res.Degraded {
		t.Error("Degraded = false, want true")
	}
	var ce *CollaboratorError
	if !errors.As(err, &ce) || ce.Collaborator != "embeddings" {
		t.Errorf("error = %v, want CollaboratorError naming embeddings", err)
	}
}

func TestSearcher_LexicalMode(t *testing.T) {
	snap, store := newSearchFixture(t)
	embedder := &fakeEmbedder{err: errors.New("must not be called")}
	opts := testOptions()
	opts.Mode = ModeLexical
	searcher := NewSearcher(store, embedder, opts, nil)

	res, err := searcher.Search(context.Background(), snap, "재무상태표", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if embedder.calls != 0 {
		t.Errorf("embedder called %d times in lexical mode, want 0", embedder.calls)
	}
	if res.Stage != StageLexical {
		t.Errorf("Stage = %q, want %q", res.Stage, StageLexical)
	}
	if len(res.Matches) != 2 {
		t.Errorf("got %d matches, want 2", len(res.Matches))
	}
}

func TestSearcher_EmptySnapshot(t *testing.T) {
	_, store := newSearchFixture(t)
	searcher := NewSearcher(store, &fakeEmbedder{}, testOptions(), nil)

	res, err := searcher.Search(context.Background(), NewSnapshot(1, nil, nil), "유동자산", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Matches) != 0 || res.Stage != "" {
		t.Errorf("empty-corpus result = %+v, want zero value", res)
	}

	res, err = searcher.Search(context.Background(), nil, "유동자산", 10)
	if err != nil || len(res.Matches) != 0 {
		t.Errorf("nil snapshot: got %+v, %v, want empty result, nil error", res, err)
	}
}

func TestSearcher_SectionlessCorpusSkipsNarrowing(t *testing.T) {
	// A corpus whose chunks carry no section ids has nothing to narrow
	// scope against; the lexical stage must still see the whole corpus
	// instead of an empty scope.
	chunks := testChunks()
	for i := range chunks {
		chunks[i].Meta.SectionID = ""
	}
	snap := NewSnapshot(1, chunks, nil)
	if snap.SectionCount() != 0 {
		t.Fatalf("SectionCount() = %d, want 0", snap.SectionCount())
	}

	store := &flakyStore{MemoryStore: vectorstore.NewMemoryStore(), fail: map[string]bool{"sections": true}}
	searcher := NewSearcher(store, &fakeEmbedder{}, testOptions(), nil)

	res, err := searcher.Search(context.Background(), snap, "재무상태표", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Degraded {
		t.Error("Degraded = true, want false (narrowing skipped, not failed)")
	}
	if res.Stage != StageLexical || len(res.Matches) != 2 {
		t.Errorf("got stage %q with %d matches, want lexical with 2", res.Stage, len(res.Matches))
	}
}
