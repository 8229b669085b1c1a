package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"auditrag/internal/contextutil"
	"auditrag/internal/indexer"
	"auditrag/internal/storage"
)

// CoverageSource computes coverage statistics for the latest ready
// generation. *indexer.Pipeline implements it.
type CoverageSource interface {
	Coverage(ctx context.Context) (*indexer.CoverageStats, error)
}

// StatsHandler reports coverage statistics for the latest ready
// generation.
type StatsHandler struct {
	source CoverageSource
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(source CoverageSource) *StatsHandler {
	return &StatsHandler{source: source}
}

// ServeHTTP handles HTTP requests for coverage statistics.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.source.Coverage(ctx)
	if err != nil {
		if err == storage.ErrNotFound {
			h.writeError(w, http.StatusNotFound, "No build has completed yet")
			return
		}
		logger.ErrorContext(ctx, "failed to compute coverage stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to compute coverage stats")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func (h *StatsHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
