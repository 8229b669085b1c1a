// Package http wires the serving surface: routing, middleware and the
// Prometheus scrape endpoint.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auditrag/internal/handlers"
	"auditrag/internal/retrieval"
	"auditrag/internal/service"
	"auditrag/internal/vectorstore"
)

// Deps holds the collaborators the router exposes over HTTP.
type Deps struct {
	QAService       service.QAService
	Builder         handlers.Builder
	Coverage        handlers.CoverageSource
	Holder          *retrieval.Holder
	VectorStore     vectorstore.VectorStore
	ChunkCollection string
	// Gatherer backs /metrics. Nil falls back to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	queryHandler := handlers.NewQueryHandler(deps.QAService)
	buildHandler := handlers.NewBuildHandler(deps.Builder)
	statsHandler := handlers.NewStatsHandler(deps.Coverage)
	nodeHandler := handlers.NewNodeHandler(deps.Holder)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Holder, deps.ChunkCollection)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/query", queryHandler)
		r.Method(http.MethodPost, "/build", buildHandler)
		r.Method(http.MethodGet, "/stats", statsHandler)
		r.Method(http.MethodGet, "/nodes/{id}", nodeHandler)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
