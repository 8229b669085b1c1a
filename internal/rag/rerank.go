package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_completer.go -package=mocks auditrag/internal/rag Completer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"auditrag/internal/contextutil"
	"auditrag/internal/llm"
	"auditrag/internal/metrics"
	"auditrag/internal/retrieval"
)

const (
	rerankPromptSnippet = 160
	rerankMaxTokens     = 100
	rerankTemperature   = 0.1
)

const rerankSystemPrompt = `당신은 회계감사 질의응답 시스템의 검색 결과를 평가합니다. 질문과 가장 관련 있는 자료부터 순서대로, 자료 번호만 쉼표로 구분해 답하세요. 예: 2,1,3`

// Completer is the chat completion surface the reranker needs.
type Completer interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
}

// Reranker reorders retrieval matches and cuts them down to take. It
// never fails: implementations fall back to the incoming order when
// they cannot produce a better one.
type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []retrieval.Match, take int) []retrieval.Match
}

// IdentityReranker keeps the retrieval order and truncates.
type IdentityReranker struct{}

func (IdentityReranker) Rerank(_ context.Context, _ string, candidates []retrieval.Match, take int) []retrieval.Match {
	return truncateMatches(candidates, take)
}

// LLMReranker asks a chat model to order candidate chunks by relevance
// to the question.
type LLMReranker struct {
	client  Completer
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewLLMReranker(client Completer, timeout time.Duration, m *metrics.Metrics) *LLMReranker {
	return &LLMReranker{client: client, timeout: timeout, metrics: m}
}

func (r *LLMReranker) Rerank(ctx context.Context, question string, candidates []retrieval.Match, take int) []retrieval.Match {
	if len(candidates) <= 1 || take <= 0 {
		return truncateMatches(candidates, take)
	}

	logger := contextutil.LoggerFromContext(ctx)

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	messages := []llm.Message{
		{Role: "system", Content: rerankSystemPrompt},
		{Role: "user", Content: buildRerankPrompt(question, candidates)},
	}
	response, err := r.client.ChatWithMessages(callCtx, messages, llm.ChatParams{
		MaxTokens:   rerankMaxTokens,
		Temperature: rerankTemperature,
	})
	if err != nil {
		logger.WarnContext(ctx, "rerank call failed, keeping retrieval order", "error", err)
		r.metrics.RecordCollaboratorFailure("llm")
		r.metrics.RecordRerankFallback()
		return truncateMatches(candidates, take)
	}

	order := parseRankOrder(response, len(candidates))
	if order == nil {
		logger.WarnContext(ctx, "rerank response unusable, keeping retrieval order",
			"error", &RerankParseError{Response: response})
		r.metrics.RecordRerankFallback()
		return truncateMatches(candidates, take)
	}

	reranked := make([]retrieval.Match, 0, take)
	for _, idx := range order {
		reranked = append(reranked, candidates[idx])
		if len(reranked) == take {
			break
		}
	}
	return reranked
}

// buildRerankPrompt numbers the candidates 1..N so the model can answer
// with bare indices.
func buildRerankPrompt(question string, candidates []retrieval.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "질문: %s\n\n자료 목록:\n", question)
	for i, m := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncateRunes(m.Chunk.Text, rerankPromptSnippet))
	}
	b.WriteString("\n가장 관련 있는 자료 번호부터 순서대로 쉼표로 구분해 답하세요.")
	return b.String()
}

// parseRankOrder extracts a permutation of candidate indices from the
// model response. Indices in the response are 1-based; the returned
// slice is 0-based. Out-of-range and repeated indices are dropped, and
// candidates the model omitted are appended in their original order.
// Returns nil when the response contains no usable index.
func parseRankOrder(response string, n int) []int {
	fields := strings.FieldsFunc(response, func(r rune) bool {
		return !unicode.IsDigit(r)
	})

	order := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for _, f := range fields {
		idx, err := strconv.Atoi(f)
		if err != nil || idx < 1 || idx > n {
			continue
		}
		if seen[idx-1] {
			continue
		}
		seen[idx-1] = true
		order = append(order, idx-1)
	}
	if len(order) == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order
}

func truncateMatches(matches []retrieval.Match, take int) []retrieval.Match {
	if take <= 0 || take >= len(matches) {
		return matches
	}
	return matches[:take]
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
