package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/mock/gomock"

	"auditrag/internal/indexer"
	"auditrag/internal/retrieval"
	"auditrag/internal/service/mocks"
	"auditrag/internal/storage"
	"auditrag/internal/vectorstore"
)

type stubBuilder struct{}

func (stubBuilder) Build(context.Context) (*indexer.BuildResult, error) {
	return &indexer.BuildResult{Generation: 1}, nil
}

type stubCoverage struct{}

func (stubCoverage) Coverage(context.Context) (*indexer.CoverageStats, error) {
	return nil, storage.ErrNotFound
}

func testDeps(t *testing.T) *Deps {
	t.Helper()
	ctrl := gomock.NewController(t)
	return &Deps{
		QAService:       mocks.NewMockQAService(ctrl),
		Builder:         stubBuilder{},
		Coverage:        stubCoverage{},
		Holder:          retrieval.NewHolder(),
		VectorStore:     vectorstore.NewMemoryStore(),
		ChunkCollection: "chunks",
		Gatherer:        prometheus.NewRegistry(),
	}
}

func TestNewRouter(t *testing.T) {
	if router := NewRouter(testDeps(t)); router == nil {
		t.Fatal("NewRouter() returned nil")
	}
}

func TestRouter_Routes(t *testing.T) {
	router := NewRouter(testDeps(t))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{
			name:       "POST /api/query exists",
			method:     http.MethodPost,
			path:       "/api/query",
			wantStatus: http.StatusBadRequest, // empty body, but the route exists
		},
		{
			name:       "GET /api/query method not allowed",
			method:     http.MethodGet,
			path:       "/api/query",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "POST /api/build accepted",
			method:     http.MethodPost,
			path:       "/api/build",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "GET /api/stats before first build",
			method:     http.MethodGet,
			path:       "/api/stats",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "GET /api/nodes without a generation",
			method:     http.MethodGet,
			path:       "/api/nodes/a1",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "GET /api/health without vector store collection",
			method:     http.MethodGet,
			path:       "/api/health",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "GET /metrics",
			method:     http.MethodGet,
			path:       "/metrics",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/api/unknown",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	router := NewRouter(testDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Router should apply CORS middleware")
	}
}
