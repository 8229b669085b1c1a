package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"auditrag/internal/config"
	"auditrag/internal/corpus"
	"auditrag/internal/http"
	"auditrag/internal/indexer"
	"auditrag/internal/llm"
	"auditrag/internal/metrics"
	"auditrag/internal/rag"
	"auditrag/internal/retrieval"
	"auditrag/internal/service"
	"auditrag/internal/storage"
	"auditrag/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions about Korean audit-report financial statements
// and accounting/legal standards, grounded in a hierarchy-aware retrieval
// index built from the configured corpora.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: AuditRAG API
//   description: |
//     Question answering over audit-report financial statements and
//     accounting standards. Answers are grounded in retrieved evidence and
//     carry the hierarchy context (parent accounts, children, year-on-year
//     movements) of every matched account or clause.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	stores := indexer.Stores{
		Documents:   storage.NewDocumentRepo(db),
		Nodes:       storage.NewNodeRepo(db),
		Values:      storage.NewValueRepo(db),
		Chunks:      storage.NewChunkRepo(db),
		Generations: storage.NewGenerationRepo(db),
	}

	ctx := context.Background()

	// Register the financial and standards corpora
	corpusManager, err := corpus.NewManager(ctx, storage.NewCorpusRepo(db), cfg.FinancialPath, cfg.StandardsPath)
	if err != nil {
		log.Fatalf("Failed to initialize corpus manager: %v", err)
	}
	slog.Info("Corpus manager initialized", "financial", cfg.FinancialPath, "standards", cfg.StandardsPath)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	// One collection for evidence chunks, one for the section entries that
	// drive scope narrowing.
	chunkCollection := cfg.QdrantCollection + "_chunks"
	sectionCollection := cfg.QdrantCollection + "_sections"
	for _, collection := range []string{chunkCollection, sectionCollection} {
		if err := vectorStore.EnsureCollection(ctx, collection, cfg.QdrantVectorSize); err != nil {
			log.Fatalf("Failed to ensure Qdrant collection %s: %v", collection, err)
		}
		info, err := vectorStore.GetCollectionInfo(ctx, collection)
		if err != nil {
			slog.Warn("Could not read collection info", "collection", collection, "error", err)
			continue
		}
		slog.Info("Qdrant collection ready",
			"collection", collection,
			"points", info.PointsCount,
			"vector_size", info.VectorSize,
			"status", info.Status,
		)
	}

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	embedder.RetryHook = func(int) { m.RecordCollaboratorRetry("embeddings") }
	testEmbeddings, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testEmbeddings) == 0 || len(testEmbeddings[0]) != cfg.QdrantVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.QdrantVectorSize, len(testEmbeddings[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	// Create LLM client (external service layer)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	llmClient.RetryHook = func(int) { m.RecordCollaboratorRetry("llm") }

	if cfg.LLMAutoload {
		loader := llm.NewModelLoader(cfg.LLMBaseURL)
		loaded, err := loader.IsModelLoaded(ctx, cfg.LLMModelName)
		if err != nil {
			slog.Warn("Failed to check model status, continuing", "error", err)
		} else if !loaded {
			slog.Info("Loading model", "model", cfg.LLMModelName)
			if err := loader.LoadModel(ctx, cfg.LLMModelName, nil); err != nil {
				log.Fatalf("Failed to load model: %v", err)
			}
		}
	}

	holder := retrieval.NewHolder()

	pipeline := indexer.NewPipeline(corpusManager, stores, embedder, vectorStore, holder, m, indexer.Options{
		ChunkCollection:   chunkCollection,
		SectionCollection: sectionCollection,
		Workers:           cfg.BuildWorkers,
	})

	// Serve the last ready generation right away; the background build
	// below refreshes it.
	if gen, err := pipeline.Restore(ctx); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Info("No previous generation found, queries wait for the first build")
		} else {
			slog.Warn("Failed to restore previous generation", "error", err)
		}
	} else {
		slog.Info("Restored previous generation", "generation", gen)
	}

	collabTimeout := time.Duration(cfg.CollabTimeoutMS) * time.Millisecond

	searcher := retrieval.NewSearcher(vectorStore, embedder, retrieval.Options{
		ChunkCollection:   chunkCollection,
		SectionCollection: sectionCollection,
		Mode:              cfg.RetrievalMode,
		ScopeTopN:         cfg.ScopeTopN,
		Timeout:           collabTimeout,
	}, m)

	var reranker rag.Reranker = rag.IdentityReranker{}
	if cfg.RerankEnabled {
		reranker = rag.NewLLMReranker(llmClient, collabTimeout, m)
	}

	assembler := rag.NewAssembler(cfg.ContextBudget, cfg.SnippetMax)
	engine := rag.NewEngine(holder, searcher, reranker, assembler, m, cfg.RetrievalTopK)
	slog.Info("Retrieval engine initialized",
		"mode", cfg.RetrievalMode,
		"top_k", cfg.RetrievalTopK,
		"rerank", cfg.RerankEnabled,
	)

	qaService := service.NewQAService(engine, llmClient, m)

	deps := &http.Deps{
		QAService:       qaService,
		Builder:         pipeline,
		Coverage:        pipeline,
		Holder:          holder,
		VectorStore:     vectorStore,
		ChunkCollection: chunkCollection,
	}
	router := http.NewRouter(deps)

	// Start the initial build in background after the router is ready
	go func() {
		buildCtx := context.Background()
		slog.Info("Starting background corpus build")
		result, err := pipeline.Build(buildCtx)
		if err != nil {
			slog.Error("Corpus build failed", "error", err)
			return
		}
		slog.Info("Corpus build completed",
			"generation", result.Generation,
			"documents", result.Documents,
			"chunks", result.Chunks,
			"embedded", result.Embedded,
			"reused", result.Reused,
			"duration_ms", result.DurationMS,
		)
	}()

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
