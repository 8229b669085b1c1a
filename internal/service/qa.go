// Package service generates grounded answers: it runs the retrieval
// engine, feeds the assembled context to the chat model and returns the
// answer together with the evidence that backs it.
package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_retriever.go -package=mocks auditrag/internal/service Retriever
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm_client.go -package=mocks auditrag/internal/service LLMClient
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_qa_service.go -package=mocks -mock_names=QAService=MockQAService auditrag/internal/service QAService

import (
	"context"
	"fmt"
	"strings"

	"auditrag/internal/contextutil"
	"auditrag/internal/llm"
	"auditrag/internal/metrics"
	"auditrag/internal/rag"
)

const (
	answerMaxTokens   = 1500
	answerTemperature = 0.1
)

const answerSystemPrompt = `당신은 기업 감사보고서와 회계기준 질의응답 전문가입니다. 제공된 관련 정보만을 근거로 정확하게 답변하세요. 금액은 관련 정보에 적힌 수치와 단위를 그대로 인용하고, 계정과목의 상하위 관계가 나타나 있으면 함께 설명하세요. 관련 정보에 없는 내용은 추측하지 말고 없다고 밝히세요. 한국어로 답변하세요.`

// noEvidenceAnswer is served when retrieval finds nothing. The chat
// model is not called in that case.
const noEvidenceAnswer = "관련 정보를 찾을 수 없습니다. 다른 질문을 시도해보세요."

// Retriever is the retrieval surface the QA flow needs. This interface
// is defined from the service layer's perspective (consumer-first).
type Retriever interface {
	Query(ctx context.Context, req rag.QueryRequest) (rag.QueryResponse, error)
}

// LLMClient is the chat completion surface the QA flow needs.
type LLMClient interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
	StreamChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams, callback func(chunk string) error) error
}

// AnswerRequest is one question for the QA flow.
type AnswerRequest struct {
	Question string
	// TopK optionally overrides how many evidence chunks back the answer.
	TopK int
}

// AnswerResponse carries the generated answer and the evidence behind it.
type AnswerResponse struct {
	// Answer is the generated answer text. Empty for streamed answers,
	// whose text went through the callback instead.
	Answer          string
	Query           string
	NormalizedQuery string
	Evidence        []rag.Evidence
	Stage           string
	Generation      int64
	Degraded        bool
}

// QAService answers questions about the indexed corpus.
type QAService interface {
	// Answer retrieves evidence for the question and generates an answer.
	Answer(ctx context.Context, req AnswerRequest) (AnswerResponse, error)
	// StreamAnswer is Answer with the generated text streamed through the
	// callback. The returned response carries the retrieval metadata.
	StreamAnswer(ctx context.Context, req AnswerRequest, callback func(chunk string) error) (AnswerResponse, error)
}

type qaService struct {
	retriever Retriever
	llm       LLMClient
	metrics   *metrics.Metrics
}

// NewQAService creates a QAService on top of the retrieval engine and a
// chat model client.
func NewQAService(retriever Retriever, client LLMClient, m *metrics.Metrics) QAService {
	return &qaService{
		retriever: retriever,
		llm:       client,
		metrics:   m,
	}
}

func (s *qaService) Answer(ctx context.Context, req AnswerRequest) (AnswerResponse, error) {
	resp, res, err := s.retrieve(ctx, req)
	if err != nil {
		return AnswerResponse{}, err
	}
	logger := contextutil.LoggerFromContext(ctx)

	if len(res.Evidence) == 0 {
		logger.InfoContext(ctx, "no evidence found, skipping answer generation")
		resp.Answer = noEvidenceAnswer
		return resp, nil
	}

	answer, err := s.llm.ChatWithMessages(ctx, answerMessages(resp.Query, res.ContextBlock), llm.ChatParams{
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to generate answer", "error", err)
		s.metrics.RecordCollaboratorFailure("llm")
		return AnswerResponse{}, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	resp.Answer = answer
	logger.InfoContext(ctx, "answer generated",
		"evidence", len(res.Evidence),
		"generation", res.Generation,
		"answer_length", len(answer),
	)
	return resp, nil
}

func (s *qaService) StreamAnswer(ctx context.Context, req AnswerRequest, callback func(chunk string) error) (AnswerResponse, error) {
	resp, res, err := s.retrieve(ctx, req)
	if err != nil {
		return AnswerResponse{}, err
	}
	logger := contextutil.LoggerFromContext(ctx)

	if len(res.Evidence) == 0 {
		logger.InfoContext(ctx, "no evidence found, skipping answer generation")
		resp.Answer = noEvidenceAnswer
		if err := callback(noEvidenceAnswer); err != nil {
			return AnswerResponse{}, fmt.Errorf("callback error: %w", err)
		}
		return resp, nil
	}

	err = s.llm.StreamChatWithMessages(ctx, answerMessages(resp.Query, res.ContextBlock), llm.ChatParams{
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	}, callback)
	if err != nil {
		logger.ErrorContext(ctx, "failed to stream answer", "error", err)
		s.metrics.RecordCollaboratorFailure("llm")
		return AnswerResponse{}, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	logger.InfoContext(ctx, "answer streamed",
		"evidence", len(res.Evidence),
		"generation", res.Generation,
	)
	return resp, nil
}

// retrieve validates the question and runs the retrieval engine. The
// returned response has every field but Answer filled in.
func (s *qaService) retrieve(ctx context.Context, req AnswerRequest) (AnswerResponse, rag.QueryResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	question := strings.TrimSpace(req.Question)
	if question == "" {
		logger.WarnContext(ctx, "empty question in answer request")
		return AnswerResponse{}, rag.QueryResponse{}, &ValidationError{
			Field:   "question",
			Message: "cannot be empty",
		}
	}

	res, err := s.retriever.Query(ctx, rag.QueryRequest{Question: question, TopK: req.TopK})
	if err != nil {
		return AnswerResponse{}, rag.QueryResponse{}, WrapError(err, "failed to retrieve evidence")
	}

	return AnswerResponse{
		Query:           res.Query,
		NormalizedQuery: res.NormalizedQuery,
		Evidence:        res.Evidence,
		Stage:           res.Stage,
		Generation:      res.Generation,
		Degraded:        res.Degraded,
	}, res, nil
}

func answerMessages(question, contextBlock string) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "질문: %s\n\n관련 정보:\n%s\n\n", question, contextBlock)
	b.WriteString("위 정보를 바탕으로 질문에 답변해주세요. 계층관계가 있는 과목은 상하위 관계를 명확히 설명해주세요.")

	return []llm.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}
