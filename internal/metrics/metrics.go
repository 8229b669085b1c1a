// Package metrics provides Prometheus metrics for the retrieval engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the query and build paths.
type Metrics struct {
	// Query path metrics
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	RerankFallbacks prometheus.Counter
	EmptyResults    prometheus.Counter

	// Build path metrics
	BuildsTotal      *prometheus.CounterVec
	BuildDuration    prometheus.Histogram
	OrphansRepaired  prometheus.Counter
	CyclesExcluded   prometheus.Counter
	ChunksSkipped    *prometheus.CounterVec
	ChunksIndexed    prometheus.Counter
	ActiveGeneration prometheus.Gauge

	// Collaborator metrics
	CollaboratorRetries  *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with the given registerer.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	// Query path metrics
	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditrag_queries_total",
			Help: "Total number of queries by the retrieval stage that served them",
		},
		[]string{"stage"},
	)

	m.QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditrag_query_duration_seconds",
			Help:    "Duration of query processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	m.RerankFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "auditrag_rerank_fallbacks_total",
			Help: "Total number of rerank responses that fell back to the original order",
		},
	)

	m.EmptyResults = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "auditrag_empty_results_total",
			Help: "Total number of queries that returned no evidence",
		},
	)

	// Build path metrics
	m.BuildsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditrag_builds_total",
			Help: "Total number of index builds by outcome",
		},
		[]string{"status"},
	)

	m.BuildDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditrag_build_duration_seconds",
			Help:    "Duration of full index builds in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	m.OrphansRepaired = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "auditrag_hierarchy_orphans_total",
			Help: "Total number of orphan nodes reattached at the hierarchy root",
		},
	)

	m.CyclesExcluded = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "auditrag_hierarchy_cycles_total",
			Help: "Total number of hierarchy subtrees excluded due to parent cycles",
		},
	)

	m.ChunksSkipped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditrag_chunks_skipped_total",
			Help: "Total number of chunks skipped during builds by reason",
		},
		[]string{"reason"},
	)

	m.ChunksIndexed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "auditrag_chunks_indexed_total",
			Help: "Total number of chunks written to the active generation",
		},
	)

	m.ActiveGeneration = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditrag_active_generation",
			Help: "Identifier of the generation currently serving queries",
		},
	)

	// Collaborator metrics
	m.CollaboratorRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditrag_collaborator_retries_total",
			Help: "Total number of retried embedding/LLM collaborator calls",
		},
		[]string{"collaborator"},
	)

	m.CollaboratorFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditrag_collaborator_failures_total",
			Help: "Total number of embedding/LLM collaborator calls that failed after retry",
		},
		[]string{"collaborator"},
	)

	return m
}

// RecordQuery records a completed query with the stage that served it.
func (m *Metrics) RecordQuery(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(stage).Inc()
	m.QueryDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordBuild records a completed index build with its outcome.
func (m *Metrics) RecordBuild(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(status).Inc()
	m.BuildDuration.Observe(duration.Seconds())
}

// RecordHierarchyRepairs records orphan and cycle repairs from one build.
func (m *Metrics) RecordHierarchyRepairs(orphans, cycles int) {
	if m == nil {
		return
	}
	m.OrphansRepaired.Add(float64(orphans))
	m.CyclesExcluded.Add(float64(cycles))
}

// RecordChunkSkip records a chunk skipped during a build.
func (m *Metrics) RecordChunkSkip(reason string) {
	if m == nil {
		return
	}
	m.ChunksSkipped.WithLabelValues(reason).Inc()
}

// RecordChunksIndexed records the number of chunks written by one build.
func (m *Metrics) RecordChunksIndexed(n int) {
	if m == nil {
		return
	}
	m.ChunksIndexed.Add(float64(n))
}

// RecordRerankFallback records a rerank response that could not be parsed.
func (m *Metrics) RecordRerankFallback() {
	if m == nil {
		return
	}
	m.RerankFallbacks.Inc()
}

// RecordEmptyResult records a query that produced no evidence.
func (m *Metrics) RecordEmptyResult() {
	if m == nil {
		return
	}
	m.EmptyResults.Inc()
}

// RecordCollaboratorRetry records a retried collaborator call.
func (m *Metrics) RecordCollaboratorRetry(collaborator string) {
	if m == nil {
		return
	}
	m.CollaboratorRetries.WithLabelValues(collaborator).Inc()
}

// RecordCollaboratorFailure records a collaborator call that failed after retry.
func (m *Metrics) RecordCollaboratorFailure(collaborator string) {
	if m == nil {
		return
	}
	m.CollaboratorFailures.WithLabelValues(collaborator).Inc()
}

// SetActiveGeneration records the generation currently serving queries.
func (m *Metrics) SetActiveGeneration(id int64) {
	if m == nil {
		return
	}
	m.ActiveGeneration.Set(float64(id))
}
