package rag

import "auditrag/internal/chunk"

// QueryRequest represents a retrieval query.
type QueryRequest struct {
	// Question is the user's question.
	Question string `json:"question"`
	// TopK optionally overrides how many evidence chunks to return.
	// Defaults to the engine's configured count, capped at 20.
	TopK int `json:"top_k,omitempty"`
}

// Evidence is one retrieved chunk backing an answer.
type Evidence struct {
	// ChunkID is the stable chunk identifier.
	ChunkID string `json:"chunk_id"`
	// Score is the retrieval score from the stage that found the chunk.
	Score float64 `json:"score"`
	// Text is the chunk's full sentence.
	Text string `json:"text"`
	// Metadata maps the chunk back into the hierarchy.
	Metadata chunk.Metadata `json:"metadata"`
}

// QueryResponse is the packaged outcome of the online query path. It
// carries evidence and a bounded context block for a downstream answer
// generator; it never contains generated prose itself.
type QueryResponse struct {
	// Query is the question as asked.
	Query string `json:"query"`
	// NormalizedQuery is the question with clause alias forms appended.
	NormalizedQuery string `json:"normalized_query"`
	// Evidence lists the reranked chunks, best first.
	Evidence []Evidence `json:"evidence"`
	// ContextBlock is the character-bounded block for answer generation.
	ContextBlock string `json:"context_block"`
	// Stage is the retrieval stage that produced the evidence.
	Stage string `json:"stage,omitempty"`
	// Generation identifies the corpus build that served the query.
	Generation int64 `json:"generation"`
	// Degraded reports that a collaborator failure forced a cheaper
	// retrieval stage.
	Degraded bool `json:"degraded,omitempty"`
}
