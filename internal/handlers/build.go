package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"auditrag/internal/contextutil"
	"auditrag/internal/indexer"
)

// Builder runs the offline corpus build. *indexer.Pipeline implements
// it; this interface is defined from the handler's perspective.
type Builder interface {
	Build(ctx context.Context) (*indexer.BuildResult, error)
}

// BuildHandler handles HTTP requests for triggering a corpus rebuild.
type BuildHandler struct {
	builder  Builder
	building atomic.Bool
}

// NewBuildHandler creates a new BuildHandler.
func NewBuildHandler(builder Builder) *BuildHandler {
	return &BuildHandler{builder: builder}
}

// BuildResponse represents the response from the build endpoint.
type BuildResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP handles HTTP requests for triggering a corpus rebuild. The
// build runs in the background; queries keep serving the previous
// generation until the new one is ready. Only one build runs at a time.
func (h *BuildHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !h.building.CompareAndSwap(false, true) {
		logger.WarnContext(ctx, "build already running, rejecting trigger")
		h.writeError(w, http.StatusConflict, "A build is already running")
		return
	}

	logger.InfoContext(ctx, "corpus rebuild triggered via API")

	// Run in the background with a fresh context so the build survives
	// the HTTP request.
	go func() {
		defer h.building.Store(false)
		buildCtx := contextutil.WithLogger(context.Background(), logger)
		if res, err := h.builder.Build(buildCtx); err != nil {
			logger.ErrorContext(buildCtx, "corpus rebuild failed", "error", err)
		} else {
			logger.InfoContext(buildCtx, "corpus rebuild completed",
				"generation", res.Generation,
				"chunks", res.Chunks,
				"embedded", res.Embedded,
				"duration_ms", res.DurationMS,
			)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(BuildResponse{
		Message: "Build started. Check /api/stats for progress.",
		Status:  "accepted",
	})
}

// writeError writes an error response.
func (h *BuildHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
