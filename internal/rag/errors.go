package rag

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned while no corpus generation has completed a
// build yet. Handlers map it to service-unavailable.
var ErrNotReady = errors.New("no corpus generation is ready")

// RetrievalTimeout reports a collaborator call that exceeded its deadline
// during retrieval. In hybrid mode the cascade absorbs the timeout by
// degrading to a cheaper stage; only modes without a fallback surface it.
type RetrievalTimeout struct {
	Collaborator string
	Err          error
}

func (e *RetrievalTimeout) Error() string {
	return fmt.Sprintf("%s call timed out during retrieval: %v", e.Collaborator, e.Err)
}

func (e *RetrievalTimeout) Unwrap() error {
	return e.Err
}

// RerankParseError reports a rerank response with no usable rank index.
// The reranker never returns it to callers; it falls back to the original
// candidate order and leaves the error in the logs.
type RerankParseError struct {
	Response string
}

func (e *RerankParseError) Error() string {
	return fmt.Sprintf("no usable rank indices in rerank response %q", e.Response)
}
