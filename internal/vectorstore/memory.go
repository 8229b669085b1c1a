package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process VectorStore used by tests and by
// deployments that run without a Qdrant instance. Points live in plain
// maps guarded by a mutex; search is an exact cosine scan.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	vectorSize int
	points     map[string]Point
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// EnsureCollection creates the collection when missing and validates the
// vector size when it already exists.
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, vectorSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[collection]; ok {
		if c.vectorSize != vectorSize {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, c.vectorSize)
		}
		return nil
	}
	s.collections[collection] = &memoryCollection{
		vectorSize: vectorSize,
		points:     make(map[string]Point),
	}
	return nil
}

// CollectionExists reports whether the collection has been created.
func (s *MemoryStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[collection]
	return ok, nil
}

// Upsert inserts or replaces points keyed by their IDs.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[collection]
	if c == nil {
		c = &memoryCollection{points: make(map[string]Point)}
		s.collections[collection] = c
	}
	for _, p := range points {
		if c.vectorSize != 0 && len(p.Vec) != c.vectorSize {
			return fmt.Errorf("point %s has %d dimensions, collection expects %d", p.ID, len(p.Vec), c.vectorSize)
		}
		c.points[p.ID] = p
	}
	return nil
}

// Search scores every stored point against the query vector and returns
// the k best matches, highest cosine similarity first.
func (s *MemoryStore) Search(_ context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collections[collection]
	if c == nil {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if !matchesFilters(p.Meta, filters) {
			continue
		}
		results = append(results, SearchResult{
			PointID: p.ID,
			Score:   float32(cosineSimilarity(query, p.Vec)),
			Meta:    p.Meta,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PointID < results[j].PointID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes points by their IDs. Unknown IDs are ignored.
func (s *MemoryStore) Delete(_ context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[collection]
	if c == nil {
		return nil
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

// Count returns the number of stored points in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collections[collection]
	if c == nil {
		return 0
	}
	return len(c.points)
}

// matchesFilters applies the same exact-match semantics as the Qdrant
// payload filters: string equality and integer equality.
func matchesFilters(meta map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := meta[key]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case string:
			if w == "" {
				continue
			}
			gs, ok := got.(string)
			if !ok || gs != w {
				return false
			}
		case int:
			if !intEquals(got, int64(w)) {
				return false
			}
		case int64:
			if !intEquals(got, w) {
				return false
			}
		default:
			// Mirror QdrantStore: unsupported filter types are skipped.
		}
	}
	return true
}

func intEquals(got any, want int64) bool {
	switch g := got.(type) {
	case int:
		return int64(g) == want
	case int32:
		return int64(g) == want
	case int64:
		return g == want
	case float64:
		return g == float64(want)
	default:
		return false
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
