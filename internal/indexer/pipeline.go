// Package indexer runs the offline build: it scans the corpora, parses
// records into hierarchy nodes and fact values, generates chunks, embeds
// what changed and publishes the result as a new generation. Queries keep
// hitting the previous generation until the swap at the end of a build.
package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"auditrag/internal/chunk"
	"auditrag/internal/contextutil"
	"auditrag/internal/corpus"
	"auditrag/internal/hierarchy"
	"auditrag/internal/ingest"
	"auditrag/internal/metrics"
	"auditrag/internal/query"
	"auditrag/internal/retrieval"
	"auditrag/internal/storage"
	"auditrag/internal/vectorstore"
)

const (
	defaultEmbedBatch = 64
	// maxSectionNames bounds the account and clause headings listed in a
	// section entry, keeping the embedded text within model input limits.
	maxSectionNames = 80
)

// Options configures a build pipeline.
type Options struct {
	// ChunkCollection is the vector collection for fact and clause chunks.
	ChunkCollection string
	// SectionCollection is the vector collection for section entries.
	SectionCollection string
	// Workers is the number of concurrent document parses. Defaults to
	// half the CPUs, minimum one.
	Workers int
	// EmbedBatch is how many chunks go into one embedding request.
	// Default 64.
	EmbedBatch int
}

// Stores groups the repositories a build writes to.
type Stores struct {
	Documents   storage.DocumentStore
	Nodes       storage.NodeStore
	Values      storage.ValueStore
	Chunks      storage.ChunkStore
	Generations storage.GenerationStore
}

// Pipeline orchestrates offline index builds.
type Pipeline struct {
	manager  *corpus.Manager
	stores   Stores
	embedder retrieval.Embedder
	vectors  vectorstore.VectorStore
	holder   *retrieval.Holder
	metrics  *metrics.Metrics
	opts     Options
}

// NewPipeline creates a build pipeline. A nil metrics disables
// instrumentation.
func NewPipeline(manager *corpus.Manager, stores Stores, embedder retrieval.Embedder, vectors vectorstore.VectorStore, holder *retrieval.Holder, m *metrics.Metrics, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU() / 2
		if opts.Workers < 1 {
			opts.Workers = 1
		}
	}
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = defaultEmbedBatch
	}
	return &Pipeline{
		manager:  manager,
		stores:   stores,
		embedder: embedder,
		vectors:  vectors,
		holder:   holder,
		metrics:  m,
		opts:     opts,
	}
}

// BuildResult summarizes one completed build.
type BuildResult struct {
	Generation      int64 `json:"generation"`
	Files           int   `json:"files"`
	Documents       int   `json:"documents"`
	ParseErrors     int   `json:"parse_errors,omitempty"`
	Nodes           int   `json:"nodes"`
	Chunks          int   `json:"chunks"`
	ChunksSkipped   int   `json:"chunks_skipped,omitempty"`
	Embedded        int   `json:"embedded"`
	Reused          int   `json:"reused"`
	StaleDeleted    int   `json:"stale_deleted,omitempty"`
	OrphansRepaired int   `json:"orphans_repaired,omitempty"`
	CyclesExcluded  int   `json:"cycles_excluded,omitempty"`
	DurationMS      int64 `json:"duration_ms"`
}

// Build runs one full offline rebuild. Malformed source files are skipped
// and counted; a failure while persisting or embedding marks the
// generation failed and leaves the previously published generation
// serving queries. On success the new generation is swapped in, stale
// vector points are retired and old generations pruned.
func (p *Pipeline) Build(ctx context.Context) (*BuildResult, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	files, err := p.manager.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpora: %w", err)
	}
	logger.InfoContext(ctx, "build started", "files", len(files), "workers", p.opts.Workers)

	parsed := p.parseAll(files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := p.merge(ctx, parsed)

	logger.InfoContext(ctx, "hierarchy built",
		"nodes", m.report.Nodes,
		"roots", m.report.Roots,
		"max_depth", m.report.MaxDepth,
		"orphans_repaired", len(m.report.OrphansRepaired),
		"cycles_excluded", len(m.report.CyclesExcluded),
	)
	p.metrics.RecordHierarchyRepairs(len(m.report.OrphansRepaired), len(m.report.CyclesExcluded))

	// The previous ready generation decides which chunks still need
	// embedding and must survive pruning until this build replaces it.
	var prevID int64
	prevDigests := make(map[string]struct{})
	if prev, err := p.stores.Generations.Latest(ctx); err == nil {
		prevID = prev.ID
		digests, err := p.stores.Chunks.ListDigests(ctx, prev.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list previous digests: %w", err)
		}
		for _, d := range digests {
			prevDigests[d] = struct{}{}
		}
	} else if err != storage.ErrNotFound {
		return nil, fmt.Errorf("failed to load latest generation: %w", err)
	}

	gen, err := p.stores.Generations.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin generation: %w", err)
	}

	if err := p.persist(ctx, gen, m); err != nil {
		return nil, p.fail(ctx, gen, start, err)
	}

	embedded, err := p.embedNew(ctx, m.chunks, prevDigests)
	if err != nil {
		return nil, p.fail(ctx, gen, start, err)
	}

	if err := p.stores.Generations.Complete(ctx, gen, len(m.docs), m.report.Nodes, len(m.chunks)); err != nil {
		return nil, p.fail(ctx, gen, start, err)
	}

	p.holder.Swap(newGeneration(gen, m.tree, m.values, m.chunks))
	p.metrics.SetActiveGeneration(gen)
	p.metrics.RecordChunksIndexed(len(m.chunks))
	p.metrics.RecordBuild(storage.GenerationReady, time.Since(start))

	staleDeleted := p.cleanup(ctx, gen, prevID)

	res := &BuildResult{
		Generation:      gen,
		Files:           len(files),
		Documents:       len(m.docs),
		ParseErrors:     m.parseErrors,
		Nodes:           m.report.Nodes,
		Chunks:          len(m.chunks),
		ChunksSkipped:   m.skipped,
		Embedded:        embedded,
		Reused:          len(m.chunks) - embedded,
		StaleDeleted:    staleDeleted,
		OrphansRepaired: len(m.report.OrphansRepaired),
		CyclesExcluded:  len(m.report.CyclesExcluded),
		DurationMS:      time.Since(start).Milliseconds(),
	}
	logger.InfoContext(ctx, "build completed",
		"generation", res.Generation,
		"documents", res.Documents,
		"parse_errors", res.ParseErrors,
		"chunks", res.Chunks,
		"embedded", res.Embedded,
		"reused", res.Reused,
		"duration_ms", res.DurationMS,
	)
	return res, nil
}

// fail marks the generation failed and returns the build error. The
// previously published generation keeps serving.
func (p *Pipeline) fail(ctx context.Context, gen int64, start time.Time, err error) error {
	logger := contextutil.LoggerFromContext(ctx)
	if ferr := p.stores.Generations.Fail(ctx, gen); ferr != nil {
		logger.ErrorContext(ctx, "failed to mark generation failed", "generation", gen, "error", ferr)
	}
	p.metrics.RecordBuild(storage.GenerationFailed, time.Since(start))
	logger.ErrorContext(ctx, "build failed", "generation", gen, "error", err)
	return err
}

// parsedDoc is one scanned file's parse outcome.
type parsedDoc struct {
	file corpus.ScannedFile
	doc  *sourceDoc
	err  error
}

// sourceDoc is one parsed source file's contribution to a build.
type sourceDoc struct {
	source     chunk.Source
	hash       string
	fiscalYear int
	nodes      []hierarchy.Node
	values     []hierarchy.FactValue
	paragraphs []ingest.ClauseParagraph
}

// parseAll parses the scanned files on a worker pool. Results land in
// scan order so the merge stays deterministic regardless of scheduling.
func (p *Pipeline) parseAll(files []corpus.ScannedFile) []parsedDoc {
	results := make([]parsedDoc, len(files))

	pool, err := ants.NewPool(p.opts.Workers)
	if err != nil {
		for i := range files {
			results[i] = parseOne(files[i])
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = parseOne(files[i])
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	return results
}

// parseOne reads and parses a single scanned file.
func parseOne(file corpus.ScannedFile) parsedDoc {
	out := parsedDoc{file: file}

	data, err := os.ReadFile(file.AbsPath)
	if err != nil {
		out.err = fmt.Errorf("failed to read %s: %w", file.RelPath, err)
		return out
	}
	sum := blake2b.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	switch {
	case file.Kind == corpus.KindFinancial:
		rec, err := ingest.ParseFinancialRecord(data, file.RelPath)
		if err != nil {
			out.err = err
			return out
		}
		doc := rec.Translate(financialDocID(rec))
		out.doc = &sourceDoc{
			source:     doc.Source,
			hash:       hash,
			fiscalYear: rec.Statement.FiscalYear,
			nodes:      doc.Nodes,
			values:     doc.Values,
		}
	case strings.EqualFold(filepath.Ext(file.RelPath), ".md"):
		doc := ingest.ExtractMarkdownStandard(data, file.RelPath)
		out.doc = &sourceDoc{
			source:     doc.Source,
			hash:       hash,
			nodes:      doc.Nodes,
			paragraphs: doc.Paragraphs,
		}
	default:
		rec, err := ingest.ParseStandardRecord(data, file.RelPath)
		if err != nil {
			out.err = err
			return out
		}
		doc := rec.Translate()
		out.doc = &sourceDoc{
			source:     doc.Source,
			hash:       hash,
			nodes:      doc.Nodes,
			paragraphs: doc.Paragraphs,
		}
	}
	return out
}

// financialDocID derives a stable document id from the statement header,
// so a record moved between files keeps its identity.
func financialDocID(rec *ingest.FinancialRecord) string {
	company := strings.ReplaceAll(strings.TrimSpace(rec.Statement.Company), " ", "_")
	return fmt.Sprintf("%s_%d_%s", company, rec.Statement.FiscalYear, strings.ToLower(rec.Statement.StatementType))
}

// mergeResult carries the corpus-wide artifacts of one build.
type mergeResult struct {
	docs        []parsedDoc // parse successes, scan order
	tree        *hierarchy.Tree
	report      *hierarchy.BuildReport
	values      []hierarchy.FactValue
	chunks      []chunk.Chunk
	parseErrors int
	skipped     int
}

// merge combines the parsed documents into one hierarchy and generates
// the chunks of the new generation. Malformed values and colliding chunk
// ids are skipped and counted, never fatal.
func (p *Pipeline) merge(ctx context.Context, parsed []parsedDoc) *mergeResult {
	logger := contextutil.LoggerFromContext(ctx)
	m := &mergeResult{}

	var allNodes []hierarchy.Node
	for _, pd := range parsed {
		if pd.err != nil {
			m.parseErrors++
			logger.WarnContext(ctx, "skipping unparsable file", "rel_path", pd.file.RelPath, "error", pd.err)
			continue
		}
		m.docs = append(m.docs, pd)
		allNodes = append(allNodes, pd.doc.nodes...)
	}

	m.tree, m.report = hierarchy.Build(allNodes, logger)

	seen := make(map[string]struct{})
	// fact_values rows are keyed (node, fiscal year, period), so a value
	// reported twice keeps its first occurrence, like duplicate nodes do.
	seenValues := make(map[string]struct{})
	add := func(c chunk.Chunk) {
		if _, dup := seen[c.ID]; dup {
			m.skipped++
			p.metrics.RecordChunkSkip("duplicate_id")
			logger.WarnContext(ctx, "duplicate chunk id, keeping first", "chunk_id", c.ID, "source_id", c.Meta.SourceID)
			return
		}
		seen[c.ID] = struct{}{}
		m.chunks = append(m.chunks, c)
	}
	skip := func(err error) {
		m.skipped++
		var genErr *chunk.GenerationError
		if errors.As(err, &genErr) {
			p.metrics.RecordChunkSkip(genErr.Reason)
		} else {
			p.metrics.RecordChunkSkip("error")
		}
		logger.DebugContext(ctx, "skipping chunk", "error", err)
	}

	for _, pd := range m.docs {
		doc := pd.doc
		for _, v := range doc.values {
			node, ok := m.tree.Node(v.NodeID)
			if !ok {
				m.skipped++
				p.metrics.RecordChunkSkip("missing_node")
				continue
			}
			valueKey := fmt.Sprintf("%s|%d|%s", v.NodeID, v.FiscalYear, v.PeriodType)
			if _, dup := seenValues[valueKey]; !dup {
				seenValues[valueKey] = struct{}{}
				m.values = append(m.values, v)
			}
			c, err := chunk.FromValue(doc.source, node, m.tree.Path(node.ID), v)
			if err != nil {
				skip(err)
				continue
			}
			add(c)
		}
		for _, para := range doc.paragraphs {
			node, ok := m.tree.Node(para.NodeID)
			if !ok {
				m.skipped++
				p.metrics.RecordChunkSkip("missing_node")
				continue
			}
			c, err := chunk.FromClause(doc.source, node, m.tree.Path(node.ID), para.ParaID, para.Text)
			if err != nil {
				skip(err)
				continue
			}
			add(c)
		}
		c, err := chunk.FromSection(doc.source, doc.fiscalYear, sectionNames(doc))
		if err != nil {
			skip(err)
			continue
		}
		add(c)
	}
	return m
}

// sectionNames lists a document's account or clause headings for its
// section entry, deduplicated in document order.
func sectionNames(doc *sourceDoc) []string {
	names := make([]string, 0, len(doc.nodes))
	seen := make(map[string]struct{}, len(doc.nodes))
	for _, n := range doc.nodes {
		name := n.DisplayName
		if name == "" || name == doc.source.Title {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
		if len(names) == maxSectionNames {
			break
		}
	}
	return names
}

// persist upserts the document records and writes the generation's node,
// value and chunk rows.
func (p *Pipeline) persist(ctx context.Context, gen int64, m *mergeResult) error {
	for _, pd := range m.docs {
		doc := pd.doc
		rec := &storage.DocumentRecord{
			ID:            doc.source.ID,
			CorpusID:      pd.file.CorpusID,
			RelPath:       pd.file.RelPath,
			DocType:       doc.source.DocType,
			Company:       doc.source.Company,
			StatementType: doc.source.Statement,
			FiscalYear:    doc.fiscalYear,
			Title:         doc.source.Title,
			Hash:          doc.hash,
		}
		if err := p.stores.Documents.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.source.ID, err)
		}
	}

	nodeRecords := make([]storage.NodeRecord, 0, m.tree.Len())
	for _, id := range m.tree.NodeIDs() {
		n, ok := m.tree.Node(id)
		if !ok {
			continue
		}
		nodeRecords = append(nodeRecords, storage.NodeRecord{
			Generation:  gen,
			ID:          n.ID,
			DocumentID:  n.DocumentID,
			DisplayName: n.DisplayName,
			ParentID:    n.ParentID,
			Level:       n.Level,
			IsTotal:     n.IsTotal,
			IsSubtotal:  n.IsSubtotal,
			Aliases:     n.Aliases,
		})
	}
	if err := p.stores.Nodes.InsertBatch(ctx, gen, nodeRecords); err != nil {
		return fmt.Errorf("failed to insert nodes: %w", err)
	}

	valueRecords := make([]storage.ValueRecord, 0, len(m.values))
	for _, v := range m.values {
		valueRecords = append(valueRecords, storage.ValueRecord{
			Generation: gen,
			NodeID:     v.NodeID,
			FiscalYear: v.FiscalYear,
			PeriodType: string(v.PeriodType),
			Value:      v.Value,
			Text:       v.Text,
			Unit:       v.Unit,
			Derived:    v.Derived,
		})
	}
	if err := p.stores.Values.InsertBatch(ctx, gen, valueRecords); err != nil {
		return fmt.Errorf("failed to insert values: %w", err)
	}

	chunkRecords := make([]storage.ChunkRecord, 0, len(m.chunks))
	for _, c := range m.chunks {
		meta, err := json.Marshal(c.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		chunkRecords = append(chunkRecords, storage.ChunkRecord{
			Generation: gen,
			ID:         c.ID,
			DocumentID: c.Meta.SourceID,
			SectionID:  c.Meta.SectionID,
			Kind:       c.Kind,
			Digest:     c.Digest,
			Text:       c.Text,
			Meta:       string(meta),
		})
	}
	if err := p.stores.Chunks.InsertBatch(ctx, gen, chunkRecords); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

// embedNew embeds and upserts the chunks whose digest is not already
// covered by the previous ready generation. An unchanged chunk keeps its
// digest and therefore its vector point, so it is skipped entirely.
func (p *Pipeline) embedNew(ctx context.Context, chunks []chunk.Chunk, prev map[string]struct{}) (int, error) {
	var evidence, sections []chunk.Chunk
	for _, c := range chunks {
		if _, ok := prev[c.Digest]; ok {
			continue
		}
		if c.Kind == chunk.KindSection {
			sections = append(sections, c)
		} else {
			evidence = append(evidence, c)
		}
	}

	if err := p.embedInto(ctx, p.opts.ChunkCollection, evidence); err != nil {
		return 0, err
	}
	if err := p.embedInto(ctx, p.opts.SectionCollection, sections); err != nil {
		return 0, err
	}
	return len(evidence) + len(sections), nil
}

// embedInto embeds chunks in batches and upserts the points into one
// collection.
func (p *Pipeline) embedInto(ctx context.Context, collection string, chunks []chunk.Chunk) error {
	for offset := 0; offset < len(chunks); offset += p.opts.EmbedBatch {
		end := offset + p.opts.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			p.metrics.RecordCollaboratorFailure("embeddings")
			return fmt.Errorf("failed to embed chunk batch: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(vecs))
		}

		points := make([]vectorstore.Point, len(batch))
		for i, c := range batch {
			points[i] = vectorstore.Point{
				ID:   PointID(c.Digest),
				Vec:  vecs[i],
				Meta: pointMeta(c),
			}
		}
		if err := p.vectors.Upsert(ctx, collection, points); err != nil {
			return fmt.Errorf("failed to upsert points: %w", err)
		}
	}
	return nil
}

// cleanup retires the vector points of chunks that no longer exist in the
// new generation and prunes generations older than the previous one.
// Failures here are logged and swallowed; the build has already been
// published.
func (p *Pipeline) cleanup(ctx context.Context, gen, prevID int64) int {
	logger := contextutil.LoggerFromContext(ctx)

	deleted := 0
	stale, err := p.stores.Chunks.ListStaleDigests(ctx, gen)
	if err != nil {
		logger.WarnContext(ctx, "failed to list stale digests", "error", err)
	} else if len(stale) > 0 {
		ids := make([]string, len(stale))
		for i, d := range stale {
			ids[i] = PointID(d)
		}
		for _, collection := range []string{p.opts.ChunkCollection, p.opts.SectionCollection} {
			if err := p.vectors.Delete(ctx, collection, ids); err != nil {
				logger.WarnContext(ctx, "failed to delete stale points", "collection", collection, "error", err)
			}
		}
		deleted = len(stale)
		logger.InfoContext(ctx, "retired stale points", "count", deleted)
	}

	keep := []int64{gen}
	if prevID > 0 {
		keep = append(keep, prevID)
	}
	if pruned, err := p.stores.Generations.Prune(ctx, keep); err != nil {
		logger.WarnContext(ctx, "failed to prune generations", "error", err)
	} else if pruned > 0 {
		logger.InfoContext(ctx, "pruned old generations", "count", pruned)
	}
	return deleted
}

// PointID maps a chunk digest onto its deterministic vector point id.
// Identical content always lands on the same point, which is what makes
// re-embedding skippable and upserts idempotent.
func PointID(digest string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(digest)).String()
}

// pointMeta builds the vector payload for a chunk. Only content-derived
// fields go in, so an unchanged chunk never needs its point rewritten.
func pointMeta(c chunk.Chunk) map[string]any {
	meta := map[string]any{
		"chunk_id":   c.ID,
		"section_id": c.Meta.SectionID,
		"kind":       c.Kind,
		"source_id":  c.Meta.SourceID,
		"doc_type":   c.Meta.DocType,
	}
	if c.Meta.Company != "" {
		meta["company"] = c.Meta.Company
	}
	if c.Meta.FiscalYear != 0 {
		meta["fiscal_year"] = c.Meta.FiscalYear
	}
	return meta
}

// newGeneration bundles a build's artifacts for the online query path.
func newGeneration(gen int64, tree *hierarchy.Tree, values []hierarchy.FactValue, chunks []chunk.Chunk) *retrieval.Generation {
	vs := hierarchy.NewValueSet(values)
	return &retrieval.Generation{
		Snapshot:   retrieval.NewSnapshot(gen, chunks, tree),
		Tree:       tree,
		Values:     vs,
		Expander:   hierarchy.NewExpander(tree, vs),
		Normalizer: query.NewNormalizer(hierarchy.NewAliasIndex(tree)),
	}
}
