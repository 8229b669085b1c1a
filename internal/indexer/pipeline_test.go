package indexer

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"auditrag/internal/chunk"
	"auditrag/internal/corpus"
	"auditrag/internal/hierarchy"
	"auditrag/internal/ingest"
	"auditrag/internal/retrieval"
	"auditrag/internal/storage"
	"auditrag/internal/vectorstore"
)

func init() {
	// Discard default logging so build logs stay out of test output.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const samsungBS = `{
  "statement": {"company": "삼성전자", "fiscal_year": 2024, "statement_type": "BS", "unit": "백만원", "source_file": "samsung_2024.pdf"},
  "accounts": [
    {"account_id": "a1", "account_name": "자산총계", "parent_id": "", "level": 1, "is_total": true},
    {"account_id": "a2", "account_name": "유동자산", "parent_id": "a1", "level": 2},
    {"account_id": "a3", "account_name": "비유동자산", "parent_id": "a1", "level": 2}
  ],
  "account_values": [
    {"account_id": "a2", "value": 1234567, "period_type": "current", "fiscal_year": 2024, "unit": "백만원"},
    {"account_id": "a2", "value": 1100000, "period_type": "previous", "fiscal_year": 2024, "unit": "백만원"},
    {"account_id": "a3", "value": 2000000, "period_type": "current", "fiscal_year": 2024, "unit": "백만원"}
  ]
}`

// samsungBSTrimmed drops the 비유동자산 account, so a rebuild retires its
// fact chunk and changes the section entry.
const samsungBSTrimmed = `{
  "statement": {"company": "삼성전자", "fiscal_year": 2024, "statement_type": "BS", "unit": "백만원", "source_file": "samsung_2024.pdf"},
  "accounts": [
    {"account_id": "a1", "account_name": "자산총계", "parent_id": "", "level": 1, "is_total": true},
    {"account_id": "a2", "account_name": "유동자산", "parent_id": "a1", "level": 2}
  ],
  "account_values": [
    {"account_id": "a2", "value": 1234567, "period_type": "current", "fiscal_year": 2024, "unit": "백만원"},
    {"account_id": "a2", "value": 1100000, "period_type": "previous", "fiscal_year": 2024, "unit": "백만원"}
  ]
}`

const commercialAct = `# 상법

## 제36조의2 (공고방법)

회사의 공고는 관보 또는 일간신문에 게재한다.
`

// First build of the standard fixture: 3 fact chunks, 1 clause chunk and
// 2 section entries.
const (
	fixtureChunks   = 6
	fixtureEvidence = 4
)

type stubEmbedder struct {
	err   error
	texts []string // every text embedded, in order
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.texts = append(s.texts, texts...)
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

type buildFixture struct {
	pipeline *Pipeline
	stores   Stores
	holder   *retrieval.Holder
	vectors  *vectorstore.MemoryStore
	embedder *stubEmbedder
	db       *sql.DB
	finDir   string
	stdDir   string
}

func newBuildFixture(t *testing.T) *buildFixture {
	t.Helper()

	tmp := t.TempDir()
	db, err := storage.New(filepath.Join(tmp, "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	finDir := filepath.Join(tmp, "financial")
	stdDir := filepath.Join(tmp, "standards")
	for _, dir := range []string{finDir, stdDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll(%s) error = %v", dir, err)
		}
	}

	manager, err := corpus.NewManager(context.Background(), storage.NewCorpusRepo(db), finDir, stdDir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	f := &buildFixture{
		stores: Stores{
			Documents:   storage.NewDocumentRepo(db),
			Nodes:       storage.NewNodeRepo(db),
			Values:      storage.NewValueRepo(db),
			Chunks:      storage.NewChunkRepo(db),
			Generations: storage.NewGenerationRepo(db),
		},
		holder:   retrieval.NewHolder(),
		vectors:  vectorstore.NewMemoryStore(),
		embedder: &stubEmbedder{},
		db:       db,
		finDir:   finDir,
		stdDir:   stdDir,
	}
	f.pipeline = NewPipeline(manager, f.stores, f.embedder, f.vectors, f.holder, nil, Options{
		ChunkCollection:   "chunks",
		SectionCollection: "sections",
		Workers:           2,
	})
	return f
}

func (f *buildFixture) write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func (f *buildFixture) seedStandardFixture(t *testing.T) {
	t.Helper()
	f.write(t, f.finDir, "samsung_2024_bs.json", samsungBS)
	f.write(t, f.stdDir, "상법.md", commercialAct)
}

func TestPipeline_Build_FirstBuild(t *testing.T) {
	f := newBuildFixture(t)
	f.seedStandardFixture(t)

	res, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if res.Generation == 0 {
		t.Error("Build() should assign a generation id")
	}
	if res.Files != 2 || res.Documents != 2 || res.ParseErrors != 0 {
		t.Errorf("files/documents/parse_errors = %d/%d/%d, want 2/2/0", res.Files, res.Documents, res.ParseErrors)
	}
	if res.Nodes != 5 {
		t.Errorf("Nodes = %d, want 5", res.Nodes)
	}
	if res.Chunks != fixtureChunks || res.ChunksSkipped != 0 {
		t.Errorf("Chunks = %d (skipped %d), want %d (skipped 0)", res.Chunks, res.ChunksSkipped, fixtureChunks)
	}
	if res.Embedded != fixtureChunks || res.Reused != 0 {
		t.Errorf("Embedded/Reused = %d/%d, want %d/0", res.Embedded, res.Reused, fixtureChunks)
	}

	// Evidence chunks and section entries land in separate collections.
	if got := f.vectors.Count("chunks"); got != fixtureEvidence {
		t.Errorf("chunks collection has %d points, want %d", got, fixtureEvidence)
	}
	if got := f.vectors.Count("sections"); got != 2 {
		t.Errorf("sections collection has %d points, want 2", got)
	}

	// The new generation is published for queries.
	gen, ok := f.holder.Load()
	if !ok {
		t.Fatal("holder should hold a generation after the build")
	}
	if gen.Snapshot.Generation() != res.Generation {
		t.Errorf("snapshot generation = %d, want %d", gen.Snapshot.Generation(), res.Generation)
	}
	if gen.Snapshot.Len() != fixtureEvidence {
		t.Errorf("snapshot has %d evidence chunks, want %d", gen.Snapshot.Len(), fixtureEvidence)
	}
	for _, section := range []string{"삼성전자_2024_bs", "상법"} {
		if !gen.Snapshot.HasSection(section) {
			t.Errorf("snapshot should know section %q", section)
		}
	}
	if _, ok := gen.Tree.Node("상법_36의2"); !ok {
		t.Error("tree should contain the clause node 상법_36의2")
	}
	if gen.Values.Len() != 3 {
		t.Errorf("value set has %d entries, want 3", gen.Values.Len())
	}

	var current chunk.Chunk
	for _, c := range gen.Snapshot.Chunks() {
		if c.Meta.NodeID == "a2" && c.Meta.PeriodType == "current" {
			current = c
		}
	}
	if !strings.Contains(current.Text, "유동자산") || !strings.Contains(current.Text, "1,234,567백만원") {
		t.Errorf("fact chunk text = %q", current.Text)
	}

	// Bookkeeping rows match the build.
	latest, err := f.stores.Generations.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != res.Generation || latest.Documents != 2 || latest.Nodes != 5 || latest.Chunks != fixtureChunks {
		t.Errorf("Latest() = %+v", latest)
	}

	doc, err := f.stores.Documents.GetByID(context.Background(), "삼성전자_2024_bs")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.Title != "삼성전자 2024년 재무상태표" || doc.Company != "삼성전자" || doc.FiscalYear != 2024 {
		t.Errorf("document = %+v", doc)
	}
	if doc.DocType != "financial_statement" || doc.RelPath != "samsung_2024_bs.json" {
		t.Errorf("document doc_type/rel_path = %s/%s", doc.DocType, doc.RelPath)
	}
	if len(doc.Hash) != 64 {
		t.Errorf("document hash = %q, want 64 hex chars", doc.Hash)
	}
	std, err := f.stores.Documents.GetByID(context.Background(), "상법")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if std.DocType != "legal_code" || std.FiscalYear != 0 {
		t.Errorf("standards document = %+v", std)
	}

	nodes, err := f.stores.Nodes.ListByGeneration(context.Background(), res.Generation)
	if err != nil {
		t.Fatalf("ListByGeneration() error = %v", err)
	}
	if len(nodes) != 5 {
		t.Errorf("stored %d nodes, want 5", len(nodes))
	}
	for _, n := range nodes {
		if n.ID != "상법_36의2" {
			continue
		}
		found := false
		for _, alias := range n.Aliases {
			if alias == "제36조의2" {
				found = true
			}
		}
		if !found {
			t.Errorf("clause node aliases = %v, want to include 제36조의2", n.Aliases)
		}
	}
}

func TestPipeline_Build_UnchangedCorpusReusesEmbeddings(t *testing.T) {
	f := newBuildFixture(t)
	f.seedStandardFixture(t)

	first, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	embeddedOnce := len(f.embedder.texts)

	second, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}

	if second.Generation <= first.Generation {
		t.Errorf("second generation = %d, want > %d", second.Generation, first.Generation)
	}
	if second.Embedded != 0 || second.Reused != fixtureChunks {
		t.Errorf("Embedded/Reused = %d/%d, want 0/%d", second.Embedded, second.Reused, fixtureChunks)
	}
	if second.StaleDeleted != 0 {
		t.Errorf("StaleDeleted = %d, want 0", second.StaleDeleted)
	}
	if len(f.embedder.texts) != embeddedOnce {
		t.Errorf("embedder saw %d texts after rebuild, want %d", len(f.embedder.texts), embeddedOnce)
	}

	// Identical digests map onto identical point ids, so counts hold.
	if got := f.vectors.Count("chunks"); got != fixtureEvidence {
		t.Errorf("chunks collection has %d points, want %d", got, fixtureEvidence)
	}

	gen, ok := f.holder.Load()
	if !ok || gen.Snapshot.Generation() != second.Generation {
		t.Errorf("holder should serve generation %d", second.Generation)
	}
}

func TestPipeline_Build_RemovedAccountRetiresStalePoints(t *testing.T) {
	f := newBuildFixture(t)
	f.seedStandardFixture(t)

	if _, err := f.pipeline.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	f.write(t, f.finDir, "samsung_2024_bs.json", samsungBSTrimmed)
	res, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}

	if res.Chunks != 5 {
		t.Errorf("Chunks = %d, want 5", res.Chunks)
	}
	// Only the changed section entry is re-embedded; the account facts and
	// the clause keep their digests.
	if res.Embedded != 1 || res.Reused != 4 {
		t.Errorf("Embedded/Reused = %d/%d, want 1/4", res.Embedded, res.Reused)
	}
	// The dropped fact and the superseded section entry retire.
	if res.StaleDeleted != 2 {
		t.Errorf("StaleDeleted = %d, want 2", res.StaleDeleted)
	}
	if got := f.vectors.Count("chunks"); got != 3 {
		t.Errorf("chunks collection has %d points, want 3", got)
	}
	if got := f.vectors.Count("sections"); got != 2 {
		t.Errorf("sections collection has %d points, want 2", got)
	}

	gen, ok := f.holder.Load()
	if !ok {
		t.Fatal("holder should hold a generation")
	}
	if gen.Snapshot.Len() != 3 {
		t.Errorf("snapshot has %d evidence chunks, want 3", gen.Snapshot.Len())
	}
	for _, c := range gen.Snapshot.Chunks() {
		if c.Meta.NodeID == "a3" {
			t.Error("dropped account a3 should not appear in the new snapshot")
		}
	}
}

func TestPipeline_Build_SkipsMalformedFile(t *testing.T) {
	f := newBuildFixture(t)
	f.seedStandardFixture(t)
	f.write(t, f.finDir, "broken.json", `{"statement": {`)

	res, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.Files != 3 || res.Documents != 2 || res.ParseErrors != 1 {
		t.Errorf("files/documents/parse_errors = %d/%d/%d, want 3/2/1", res.Files, res.Documents, res.ParseErrors)
	}
	if res.Chunks != fixtureChunks {
		t.Errorf("Chunks = %d, want %d", res.Chunks, fixtureChunks)
	}
}

func TestPipeline_Build_DuplicateRecordsKeepFirst(t *testing.T) {
	f := newBuildFixture(t)
	f.seedStandardFixture(t)
	// A second file carrying the same statement produces identical
	// chunk identities.
	f.write(t, f.finDir, "samsung_2024_bs_copy.json", samsungBS)

	res, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.Chunks != fixtureChunks {
		t.Errorf("Chunks = %d, want %d", res.Chunks, fixtureChunks)
	}
	if res.ChunksSkipped != 4 {
		t.Errorf("ChunksSkipped = %d, want 4", res.ChunksSkipped)
	}
	if res.Nodes != 5 {
		t.Errorf("Nodes = %d, want 5", res.Nodes)
	}
}

func TestPipeline_Build_EmbedFailureMarksGenerationFailed(t *testing.T) {
	f := newBuildFixture(t)
	f.seedStandardFixture(t)
	f.embedder.err = errors.New("embeddings unavailable")

	if _, err := f.pipeline.Build(context.Background()); err == nil {
		t.Fatal("Build() expected error when embedding fails")
	}

	// Nothing was published and no generation is ready.
	if _, ok := f.holder.Load(); ok {
		t.Error("holder should stay empty after a failed first build")
	}
	if _, err := f.stores.Generations.Latest(context.Background()); err != storage.ErrNotFound {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}

	// The next build succeeds and prunes the failed generation.
	f.embedder.err = nil
	res, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("recovery Build() error = %v", err)
	}
	if gen, ok := f.holder.Load(); !ok || gen.Snapshot.Generation() != res.Generation {
		t.Errorf("holder should serve generation %d", res.Generation)
	}

	var count int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM generations").Scan(&count); err != nil {
		t.Fatalf("query generations: %v", err)
	}
	if count != 1 {
		t.Errorf("generations count = %d, want 1", count)
	}
}

func TestPipeline_Restore(t *testing.T) {
	f := newBuildFixture(t)
	f.seedStandardFixture(t)

	res, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// A fresh holder simulates a process restart over the same database.
	holder := retrieval.NewHolder()
	restarted := NewPipeline(f.pipeline.manager, f.stores, f.embedder, f.vectors, holder, nil, f.pipeline.opts)

	id, err := restarted.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if id != res.Generation {
		t.Errorf("Restore() = %d, want %d", id, res.Generation)
	}

	gen, ok := holder.Load()
	if !ok {
		t.Fatal("holder should hold the restored generation")
	}
	if gen.Snapshot.Len() != fixtureEvidence {
		t.Errorf("restored snapshot has %d evidence chunks, want %d", gen.Snapshot.Len(), fixtureEvidence)
	}
	if gen.Values.Len() != 3 {
		t.Errorf("restored value set has %d entries, want 3", gen.Values.Len())
	}
	if _, ok := gen.Tree.Node("상법_36의2"); !ok {
		t.Error("restored tree should contain the clause node")
	}
	if !gen.Snapshot.HasSection("상법") {
		t.Error("restored snapshot should know the standards section")
	}
}

func TestPipeline_Restore_NothingBuilt(t *testing.T) {
	f := newBuildFixture(t)

	if _, err := f.pipeline.Restore(context.Background()); err != storage.ErrNotFound {
		t.Errorf("Restore() error = %v, want ErrNotFound", err)
	}
	if _, ok := f.holder.Load(); ok {
		t.Error("holder should stay empty")
	}
}

func TestPipeline_Coverage(t *testing.T) {
	f := newBuildFixture(t)

	if _, err := f.pipeline.Coverage(context.Background()); err != storage.ErrNotFound {
		t.Errorf("Coverage() before any build error = %v, want ErrNotFound", err)
	}

	f.seedStandardFixture(t)
	res, err := f.pipeline.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	stats, err := f.pipeline.Coverage(context.Background())
	if err != nil {
		t.Fatalf("Coverage() error = %v", err)
	}
	if stats.Generation != res.Generation {
		t.Errorf("Generation = %d, want %d", stats.Generation, res.Generation)
	}
	if stats.Documents != 2 || stats.DocsWithoutChunks != 0 {
		t.Errorf("Documents = %d (without chunks %d), want 2 (0)", stats.Documents, stats.DocsWithoutChunks)
	}
	if stats.Chunks != fixtureChunks {
		t.Errorf("Chunks = %d, want %d", stats.Chunks, fixtureChunks)
	}
	want := map[string]int{chunk.KindFact: 3, chunk.KindClause: 1, chunk.KindSection: 2}
	for kind, n := range want {
		if stats.ChunksByKind[kind] != n {
			t.Errorf("ChunksByKind[%s] = %d, want %d", kind, stats.ChunksByKind[kind], n)
		}
	}
	rs := stats.ChunkRuneStats
	if rs.Min <= 0 || rs.Max < rs.Min || rs.Mean <= 0 {
		t.Errorf("rune stats = %+v", rs)
	}
}

func TestComputeRuneStats(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
		want    RuneStats
	}{
		{
			name:    "empty",
			lengths: nil,
			want:    RuneStats{},
		},
		{
			name:    "single value",
			lengths: []int{7},
			want:    RuneStats{Min: 7, Max: 7, Mean: 7, P95: 7},
		},
		{
			name:    "spread",
			lengths: []int{30, 10, 100, 40, 20},
			want:    RuneStats{Min: 10, Max: 100, Mean: 40, P95: 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeRuneStats(tt.lengths); got != tt.want {
				t.Errorf("computeRuneStats() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPointID(t *testing.T) {
	a := PointID("digest-a")
	if a != PointID("digest-a") {
		t.Error("PointID should be deterministic")
	}
	if a == PointID("digest-b") {
		t.Error("different digests should map onto different points")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("PointID is not a valid UUID: %v", err)
	}
}

func TestFinancialDocID(t *testing.T) {
	rec := &ingest.FinancialRecord{}
	rec.Statement.Company = "삼성 전자"
	rec.Statement.FiscalYear = 2024
	rec.Statement.StatementType = "BS"

	if got, want := financialDocID(rec), "삼성_전자_2024_bs"; got != want {
		t.Errorf("financialDocID() = %q, want %q", got, want)
	}
}

func TestSectionNames(t *testing.T) {
	doc := &sourceDoc{
		source: chunk.Source{ID: "d1", Title: "삼성전자 2024년 재무상태표"},
		nodes: []hierarchy.Node{
			{ID: "r", DisplayName: "삼성전자 2024년 재무상태표"},
			{ID: "a", DisplayName: "자산총계"},
			{ID: "b", DisplayName: "유동자산"},
			{ID: "c", DisplayName: "유동자산"},
			{ID: "d", DisplayName: ""},
		},
	}
	got := sectionNames(doc)
	want := []string{"자산총계", "유동자산"}
	if len(got) != len(want) {
		t.Fatalf("sectionNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sectionNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSectionNames_CapsList(t *testing.T) {
	doc := &sourceDoc{source: chunk.Source{ID: "d1", Title: "t"}}
	for i := 0; i < maxSectionNames+20; i++ {
		doc.nodes = append(doc.nodes, hierarchy.Node{
			ID:          string(rune('a' + i%26)),
			DisplayName: "계정" + string(rune('가'+i)),
		})
	}
	if got := sectionNames(doc); len(got) != maxSectionNames {
		t.Errorf("sectionNames() kept %d names, want %d", len(got), maxSectionNames)
	}
}
