package retrieval

import (
	"reflect"
	"testing"

	"auditrag/internal/chunk"
	"auditrag/internal/hierarchy"
)

func testChunks() []chunk.Chunk {
	return []chunk.Chunk{
		{
			ID:   "c1aaaaaaaaaaaaaa",
			Kind: chunk.KindFact,
			Text: "삼성전자의 2024년 (당기) 재무상태표 기준 유동자산은 1,234,567 백만원입니다",
			Meta: chunk.Metadata{SectionID: "samsung_2024_bs", NodeID: "samsung_2024_bs_유동자산"},
		},
		{
			ID:   "c2bbbbbbbbbbbbbb",
			Kind: chunk.KindFact,
			Text: "삼성전자의 2024년 (당기) 재무상태표 기준 자산총계는 5,000,000 백만원입니다",
			Meta: chunk.Metadata{SectionID: "samsung_2024_bs", NodeID: "samsung_2024_bs_자산총계"},
		},
		{
			ID:   "c3cccccccccccccc",
			Kind: chunk.KindClause,
			Text: "상법 제36조의2 (시기) 회사의 성립시기는 설립등기를 한 때로 한다",
			Meta: chunk.Metadata{SectionID: "상법", NodeID: "상법_36-2"},
		},
		{
			ID:   "s1dddddddddddddd",
			Kind: chunk.KindSection,
			Text: "삼성전자 2024년 재무상태표: 유동자산, 자산총계",
			Meta: chunk.Metadata{SectionID: "samsung_2024_bs", NodeID: "samsung_2024_bs"},
		},
	}
}

func TestNewSnapshot(t *testing.T) {
	snap := NewSnapshot(7, testChunks(), nil)

	if snap.Generation() != 7 {
		t.Errorf("Generation() = %d, want 7", snap.Generation())
	}
	if snap.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (section entries are not evidence)", snap.Len())
	}
	if snap.SectionCount() != 2 {
		t.Errorf("SectionCount() = %d, want 2", snap.SectionCount())
	}

	if _, ok := snap.Chunk("c1aaaaaaaaaaaaaa"); !ok {
		t.Error("Chunk() should find fact chunk c1")
	}
	if _, ok := snap.Chunk("s1dddddddddddddd"); ok {
		t.Error("Chunk() should not serve a section entry as evidence")
	}
	if _, ok := snap.Chunk("missing"); ok {
		t.Error("Chunk() should not find an unknown id")
	}

	members := snap.SectionMembers("samsung_2024_bs")
	want := []string{"c1aaaaaaaaaaaaaa", "c2bbbbbbbbbbbbbb"}
	if !reflect.DeepEqual(members, want) {
		t.Errorf("SectionMembers() = %v, want %v", members, want)
	}

	if !snap.HasSection("상법") {
		t.Error("HasSection(상법) = false, want true")
	}
	if snap.HasSection("lg_2023_is") {
		t.Error("HasSection(lg_2023_is) = true, want false")
	}
}

func TestSnapshot_Scope(t *testing.T) {
	snap := NewSnapshot(1, testChunks(), nil)

	scope := snap.Scope([]string{"samsung_2024_bs"})
	if len(scope) != 2 {
		t.Fatalf("Scope() has %d members, want 2", len(scope))
	}
	if _, ok := scope["c1aaaaaaaaaaaaaa"]; !ok {
		t.Error("Scope() missing c1")
	}
	if _, ok := scope["c3cccccccccccccc"]; ok {
		t.Error("Scope() should not include chunks outside the section")
	}

	empty := snap.Scope(nil)
	if empty == nil {
		t.Error("Scope(nil) = nil, want empty non-nil map")
	}
	if len(empty) != 0 {
		t.Errorf("Scope(nil) has %d members, want 0", len(empty))
	}
}

func TestSnapshot_DuplicateChunkKeepsFirst(t *testing.T) {
	chunks := []chunk.Chunk{
		{ID: "dup", Kind: chunk.KindFact, Text: "첫번째", Meta: chunk.Metadata{SectionID: "s"}},
		{ID: "dup", Kind: chunk.KindFact, Text: "두번째", Meta: chunk.Metadata{SectionID: "s"}},
	}
	snap := NewSnapshot(1, chunks, nil)

	if snap.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", snap.Len())
	}
	c, _ := snap.Chunk("dup")
	if c.Text != "첫번째" {
		t.Errorf("Chunk(dup).Text = %q, want first occurrence", c.Text)
	}
	if got := snap.SectionMembers("s"); len(got) != 1 {
		t.Errorf("SectionMembers() = %v, want single entry", got)
	}
}

func TestSnapshot_IndexesNodeAliases(t *testing.T) {
	tree, _ := hierarchy.Build([]hierarchy.Node{
		{
			ID:          "samsung_2024_bs_유동자산",
			DisplayName: "유동자산",
			Aliases:     []string{"유동자산", "current assets"},
		},
	}, nil)

	snap := NewSnapshot(1, testChunks(), tree)

	// "current assets" appears only in the node's aliases, never in the
	// chunk text itself.
	got := snap.index.Search("current assets", 10, nil)
	if len(got) != 1 || got[0].ID != "c1aaaaaaaaaaaaaa" {
		t.Errorf("alias search = %+v, want c1 via node alias", got)
	}
}

func TestHolder(t *testing.T) {
	h := NewHolder()

	if _, ok := h.Load(); ok {
		t.Error("Load() before first Swap should report false")
	}

	g1 := &Generation{Snapshot: NewSnapshot(1, nil, nil)}
	if prev := h.Swap(g1); prev != nil {
		t.Errorf("first Swap() returned %v, want nil", prev)
	}

	got, ok := h.Load()
	if !ok || got != g1 {
		t.Errorf("Load() = %v, %v, want g1, true", got, ok)
	}

	g2 := &Generation{Snapshot: NewSnapshot(2, nil, nil)}
	if prev := h.Swap(g2); prev != g1 {
		t.Errorf("second Swap() returned %v, want g1", prev)
	}
	if got, _ := h.Load(); got.Snapshot.Generation() != 2 {
		t.Errorf("Load() generation = %d, want 2", got.Snapshot.Generation())
	}
}

// A query loads the generation once and keeps using it, so a rebuild
// finishing mid-query must not change what that query sees.
func TestHolder_InFlightReaderSurvivesSwap(t *testing.T) {
	h := NewHolder()
	h.Swap(&Generation{Snapshot: NewSnapshot(1, testChunks(), nil)})

	inFlight, ok := h.Load()
	if !ok {
		t.Fatal("Load() reported no generation after Swap")
	}

	h.Swap(&Generation{Snapshot: NewSnapshot(2, nil, nil)})

	if inFlight.Snapshot.Generation() != 1 {
		t.Errorf("in-flight generation = %d, want 1", inFlight.Snapshot.Generation())
	}
	if _, ok := inFlight.Snapshot.Chunk("c1aaaaaaaaaaaaaa"); !ok {
		t.Error("in-flight snapshot lost its chunks after the swap")
	}
	if got, _ := h.Load(); got.Snapshot.Generation() != 2 {
		t.Errorf("new Load() generation = %d, want 2", got.Snapshot.Generation())
	}
}
