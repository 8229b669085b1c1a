package retrieval

import (
	"sync/atomic"

	"auditrag/internal/chunk"
	"auditrag/internal/hierarchy"
	"auditrag/internal/query"
)

// Snapshot is the immutable queryable view of one build generation:
// the evidence chunks in corpus order, the section membership map used
// for scope narrowing, and the BM25 index over chunk text plus node
// aliases. Concurrent readers need no locking.
type Snapshot struct {
	generation int64
	chunks     []chunk.Chunk
	byID       map[string]int
	sections   map[string][]string
	index      *Index
}

// NewSnapshot builds a snapshot from a generation's chunks. Fact and
// clause chunks become searchable evidence; section entries only register
// the section for scope narrowing. Node aliases come from the tree and
// are indexed alongside each chunk's text; a nil tree disables them.
func NewSnapshot(generation int64, chunks []chunk.Chunk, tree *hierarchy.Tree) *Snapshot {
	s := &Snapshot{
		generation: generation,
		byID:       make(map[string]int),
		sections:   make(map[string][]string),
	}

	var docs []Doc
	for _, c := range chunks {
		if c.Kind == chunk.KindSection {
			if c.Meta.SectionID == "" {
				continue
			}
			if _, ok := s.sections[c.Meta.SectionID]; !ok {
				s.sections[c.Meta.SectionID] = nil
			}
			continue
		}
		if _, dup := s.byID[c.ID]; dup {
			continue
		}
		s.byID[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		if c.Meta.SectionID != "" {
			s.sections[c.Meta.SectionID] = append(s.sections[c.Meta.SectionID], c.ID)
		}

		doc := Doc{ID: c.ID, Text: c.Text}
		if tree != nil {
			if node, ok := tree.Node(c.Meta.NodeID); ok {
				doc.Aliases = node.Aliases
			}
		}
		docs = append(docs, doc)
	}
	s.index = NewIndex(docs)
	return s
}

// Generation reports which build this snapshot came from.
func (s *Snapshot) Generation() int64 {
	return s.generation
}

// Len reports the number of evidence chunks.
func (s *Snapshot) Len() int {
	return len(s.chunks)
}

// Chunk returns an evidence chunk by id.
func (s *Snapshot) Chunk(id string) (chunk.Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return chunk.Chunk{}, false
	}
	return s.chunks[i], true
}

// Chunks returns the evidence chunks in corpus order. Callers must not
// modify the returned slice.
func (s *Snapshot) Chunks() []chunk.Chunk {
	return s.chunks
}

// SectionMembers returns the chunk ids belonging to a section, in corpus
// order.
func (s *Snapshot) SectionMembers(sectionID string) []string {
	return s.sections[sectionID]
}

// Scope returns the union of the given sections' member chunk ids. The
// result is non-nil even when empty, so an empty scope stays
// distinguishable from no scoping at all.
func (s *Snapshot) Scope(sectionIDs []string) map[string]struct{} {
	scope := make(map[string]struct{})
	for _, id := range sectionIDs {
		for _, chunkID := range s.sections[id] {
			scope[chunkID] = struct{}{}
		}
	}
	return scope
}

// HasSection reports whether the snapshot knows a section id. Search uses
// it to drop stale vector points left over from older generations.
func (s *Snapshot) HasSection(sectionID string) bool {
	_, ok := s.sections[sectionID]
	return ok
}

// SectionCount reports the number of registered sections. A corpus built
// without sections has nothing to narrow scope against, so search skips
// the narrowing stage instead of treating every query as out of scope.
func (s *Snapshot) SectionCount() int {
	return len(s.sections)
}

// Generation bundles the immutable artifacts one build produced. The
// online query path resolves everything it needs from one bundle, so a
// query started before a swap keeps a consistent view throughout.
type Generation struct {
	Snapshot   *Snapshot
	Tree       *hierarchy.Tree
	Values     *hierarchy.ValueSet
	Expander   *hierarchy.Expander
	Normalizer *query.Normalizer
}

// Holder publishes the active generation to concurrent readers. Swap is
// atomic; readers either see the old bundle or the new one, never a mix.
type Holder struct {
	current atomic.Pointer[Generation]
}

// NewHolder creates an empty holder. Load reports false until the first
// Swap.
func NewHolder() *Holder {
	return &Holder{}
}

// Swap publishes a new generation and returns the previous one, nil when
// this is the first.
func (h *Holder) Swap(g *Generation) *Generation {
	return h.current.Swap(g)
}

// Load returns the active generation. The second return is false before
// the first build completes.
func (h *Holder) Load() (*Generation, bool) {
	g := h.current.Load()
	return g, g != nil
}
