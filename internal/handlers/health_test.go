package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"auditrag/internal/retrieval"
	"auditrag/internal/vectorstore"
)

func TestHealthHandler_ServeHTTP(t *testing.T) {
	readyStore := func(t *testing.T) *vectorstore.MemoryStore {
		t.Helper()
		store := vectorstore.NewMemoryStore()
		if err := store.EnsureCollection(context.Background(), "chunks", 3); err != nil {
			t.Fatalf("ensure collection: %v", err)
		}
		return store
	}

	tests := []struct {
		name       string
		store      *vectorstore.MemoryStore
		holder     *retrieval.Holder
		wantStatus int
		wantHealth string
		wantIssue  string
	}{
		{
			name:       "healthy",
			holder:     readyHolder(t),
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
		},
		{
			name:       "degraded before first build",
			holder:     retrieval.NewHolder(),
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: "degraded",
			wantIssue:  "no_generation_ready",
		},
		{
			name:       "unhealthy without vector store collection",
			store:      vectorstore.NewMemoryStore(),
			holder:     readyHolder(t),
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: "unhealthy",
			wantIssue:  "vector_store_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store
			if store == nil {
				store = readyStore(t)
			}
			handler := NewHealthHandler(store, tt.holder, "chunks")

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantHealth {
				t.Errorf("health = %q, want %q", resp.Status, tt.wantHealth)
			}
			if tt.wantIssue != "" {
				found := false
				for _, issue := range resp.Issues {
					if issue == tt.wantIssue {
						found = true
					}
				}
				if !found {
					t.Errorf("issues = %v, want %q listed", resp.Issues, tt.wantIssue)
				}
			}
			if tt.wantHealth == "healthy" && resp.Generation != 3 {
				t.Errorf("generation = %d, want 3", resp.Generation)
			}
		})
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	handler := NewHealthHandler(vectorstore.NewMemoryStore(), retrieval.NewHolder(), "chunks")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/health", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}
