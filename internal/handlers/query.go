// Package handlers exposes the QA engine over HTTP: queries, build
// triggers, hierarchy lookups, coverage stats and health.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"auditrag/internal/contextutil"
	"auditrag/internal/rag"
	"auditrag/internal/service"
)

// QueryHandler handles HTTP requests for corpus QA queries.
type QueryHandler struct {
	qa service.QAService
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(qa service.QAService) *QueryHandler {
	return &QueryHandler{qa: qa}
}

// QueryRequest represents the HTTP request payload for QA queries.
// This mirrors service.AnswerRequest but is defined here for HTTP layer
// separation.
//
// swagger:model QueryRequest
type QueryRequest struct {
	// Question is the user's question about the indexed corpus.
	Question string `json:"question"`
	// TopK optionally overrides how many evidence chunks back the
	// answer. Zero means the server default; values above 20 are capped.
	TopK int `json:"top_k,omitempty"`
}

// QueryResponse represents the HTTP response payload for QA queries.
// Evidence entries reuse the engine's wire form.
//
// swagger:model QueryResponse
type QueryResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`

	// Query is the question as asked.
	Query string `json:"query"`

	// NormalizedQuery is the question with clause alias forms appended.
	NormalizedQuery string `json:"normalized_query,omitempty"`

	// Evidence lists the chunks backing the answer, best first.
	Evidence []rag.Evidence `json:"evidence"`

	// Stage is the retrieval stage that produced the evidence.
	Stage string `json:"stage,omitempty"`

	// Generation identifies the corpus build that served the query.
	Generation int64 `json:"generation"`

	// Degraded reports that a collaborator failure forced a cheaper
	// retrieval stage.
	Degraded bool `json:"degraded,omitempty"`
}

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles HTTP requests for QA queries.
//
// Ask a question about the indexed audit-report corpus. The engine
// retrieves evidence from the current generation, generates a grounded
// answer and returns both.
//
// swagger:route POST /api/query askQuestion
//
// # Ask a question
//
// Queries the corpus with a question. Returns the generated answer and
// the evidence chunks behind it. Use the `stream=true` query parameter
// to receive the answer as Server-Sent Events instead.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// parameters:
//   - in: body
//     name: body
//     required: true
//     schema:
//     "$ref": "#/definitions/QueryRequest"
//   - in: query
//     name: stream
//     type: boolean
//     description: Stream the answer as Server-Sent Events
//     required: false
//
// responses:
//
//	'200':
//	  description: Successful response with answer and evidence
//	  schema:
//	    "$ref": "#/definitions/QueryResponse"
//	'400':
//	  description: Bad request (empty question or invalid body)
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: External service error (LLM or embedding service unavailable)
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'503':
//	  description: No corpus generation is ready yet
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: Internal server error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Enforce bounds for user-provided TopK. Zero means "server default".
	if req.TopK < 0 {
		req.TopK = 0
	}
	if req.TopK > 20 {
		req.TopK = 20
	}

	if r.URL.Query().Get("stream") == "true" {
		h.streamAnswer(w, r, req)
		return
	}

	svcResp, err := h.qa.Answer(ctx, service.AnswerRequest{
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		h.handleServiceError(w, ctx, err, "Failed to process query")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toQueryResponse(svcResp)); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// streamAnswer serves the answer as Server-Sent Events. The first event
// carries the retrieval metadata as JSON, answer text follows chunk by
// chunk, and a [DONE] marker closes the stream.
func (h *QueryHandler) streamAnswer(w http.ResponseWriter, r *http.Request, req QueryRequest) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		h.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	streamStarted := false
	svcResp, err := h.qa.StreamAnswer(ctx, service.AnswerRequest{
		Question: req.Question,
		TopK:     req.TopK,
	}, func(chunk string) error {
		streamStarted = true
		if _, err := fmt.Fprintf(w, "data: %s\n\n", chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !streamStarted {
			// Nothing streamed yet, fail with a regular error response.
			w.Header().Del("Content-Type")
			w.Header().Del("Cache-Control")
			w.Header().Del("Connection")
			h.handleServiceError(w, ctx, err, "Failed to process query")
			return
		}
		logger.ErrorContext(ctx, "error streaming answer", "error", err)
		_, _ = fmt.Fprintf(w, "data: {\"error\":%q}\n\n", err.Error())
		flusher.Flush()
		return
	}

	// Close with the retrieval metadata so clients can render evidence.
	meta, err := json.Marshal(toQueryResponse(svcResp))
	if err == nil {
		_, _ = fmt.Fprintf(w, "event: meta\ndata: %s\n\n", meta)
	}
	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func toQueryResponse(resp service.AnswerResponse) QueryResponse {
	evidence := resp.Evidence
	if evidence == nil {
		evidence = []rag.Evidence{}
	}
	return QueryResponse{
		Answer:          resp.Answer,
		Query:           resp.Query,
		NormalizedQuery: resp.NormalizedQuery,
		Evidence:        evidence,
		Stage:           resp.Stage,
		Generation:      resp.Generation,
		Degraded:        resp.Degraded,
	}
}

// handleServiceError maps service errors to appropriate HTTP status codes.
func (h *QueryHandler) handleServiceError(w http.ResponseWriter, ctx context.Context, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "service error", "error", err)

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation error: %s", validationErr.Error()))
		return
	}

	if errors.Is(err, service.ErrInvalidInput) {
		h.writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	if errors.Is(err, service.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Resource not found")
		return
	}

	if errors.Is(err, rag.ErrNotReady) {
		h.writeError(w, http.StatusServiceUnavailable, "No corpus generation is ready yet")
		return
	}

	if errors.Is(err, service.ErrExternalService) {
		h.writeError(w, http.StatusBadGateway, "External service error")
		return
	}

	h.writeError(w, http.StatusInternalServerError, defaultMsg)
}

// writeError writes an error response.
func (h *QueryHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
