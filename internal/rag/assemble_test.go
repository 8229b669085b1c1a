package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"auditrag/internal/chunk"
	"auditrag/internal/hierarchy"
	"auditrag/internal/retrieval"
)

func TestNewAssembler_ClampsBudgets(t *testing.T) {
	tests := []struct {
		name           string
		budget         int
		snippetMax     int
		wantBudget     int
		wantSnippetMax int
	}{
		{name: "defaults", budget: 0, snippetMax: 0, wantBudget: 4000, wantSnippetMax: 500},
		{name: "below minimum", budget: 1000, snippetMax: 0, wantBudget: 1800, wantSnippetMax: 500},
		{name: "above maximum", budget: 9000, snippetMax: 0, wantBudget: 4000, wantSnippetMax: 500},
		{name: "snippet capped at budget", budget: 2000, snippetMax: 3000, wantBudget: 2000, wantSnippetMax: 2000},
		{name: "negative snippet uses default", budget: 1800, snippetMax: -1, wantBudget: 1800, wantSnippetMax: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(tt.budget, tt.snippetMax)
			if a.budget != tt.wantBudget {
				t.Errorf("budget = %d, want %d", a.budget, tt.wantBudget)
			}
			if a.snippetMax != tt.wantSnippetMax {
				t.Errorf("snippetMax = %d, want %d", a.snippetMax, tt.wantSnippetMax)
			}
		})
	}
}

func TestAssemble_EmptyMatches(t *testing.T) {
	block, evidence := NewAssembler(0, 0).Assemble(nil, nil)
	if block != "" {
		t.Errorf("block = %q, want empty", block)
	}
	if evidence == nil || len(evidence) != 0 {
		t.Errorf("evidence = %v, want empty non-nil slice", evidence)
	}
}

func TestAssemble_BlockLayout(t *testing.T) {
	matches := []retrieval.Match{
		{
			Chunk: chunk.Chunk{
				ID:   "c1aaaaaaaaaaaaaa",
				Text: "삼성전자의 2023년 유동자산은 1,234,567 백만원입니다.",
				Meta: chunk.Metadata{Company: "삼성전자", NodeID: "n-current-assets"},
			},
			Score: 0.91,
		},
		{
			Chunk: chunk.Chunk{ID: "c2bbbbbbbbbbbbbb", Text: "상법 제36조의2에 따른 공시 사항입니다."},
			Score: 0.54,
		},
	}
	contexts := []hierarchy.NodeContext{{
		Node: &hierarchy.Node{ID: "n-current-assets", DisplayName: "유동자산"},
		Path: []string{"재무상태표", "자산총계", "유동자산"},
		Years: []hierarchy.YearValue{
			{Year: 2023, Available: true, Value: 1234567, Unit: "백만원"},
			{Year: 2024},
		},
		Changes:  []hierarchy.YearChange{{FromYear: 2022, ToYear: 2023, Abs: 120000, Pct: "+10.7%"}},
		Children: []hierarchy.ChildContext{{Node: &hierarchy.Node{DisplayName: "현금및현금성자산"}}, {Node: &hierarchy.Node{DisplayName: "매출채권"}}},
		Siblings: []string{"비유동자산"},
	}}

	block, evidence := NewAssembler(0, 0).Assemble(matches, contexts)

	for _, want := range []string{
		"[계층 정보]",
		"유동자산 (경로: 재무상태표 > 자산총계 > 유동자산)",
		"- 2023년: 1,234,567 백만원",
		"- 2024년: 자료 없음",
		"- 2022년 대비 2023년: +120,000 (+10.7%)",
		"하위 항목: 현금및현금성자산, 매출채권",
		"동일 상위 항목: 비유동자산",
		"[근거 자료]",
		"[청크 c1aaaaaaaaaaaaaa] 삼성전자의 2023년 유동자산은",
		"[청크 c2bbbbbbbbbbbbbb]",
	} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q:\n%s", want, block)
		}
	}

	if len(evidence) != 2 {
		t.Fatalf("got %d evidence entries, want 2", len(evidence))
	}
	if evidence[0].ChunkID != "c1aaaaaaaaaaaaaa" || evidence[0].Score != 0.91 {
		t.Errorf("evidence[0] = %+v, want chunk c1aaaaaaaaaaaaaa score 0.91", evidence[0])
	}
	if evidence[0].Metadata.NodeID != "n-current-assets" {
		t.Errorf("evidence[0].Metadata.NodeID = %q, want n-current-assets", evidence[0].Metadata.NodeID)
	}
}

func TestAssemble_SnippetCapKeepsEvidenceFullText(t *testing.T) {
	long := strings.Repeat("감", 700)
	matches := []retrieval.Match{{Chunk: chunk.Chunk{ID: "c1", Text: long}, Score: 1}}

	block, evidence := NewAssembler(0, 0).Assemble(matches, nil)

	if !strings.Contains(block, truncationMarker) {
		t.Error("expected the block snippet to carry the truncation marker")
	}
	if strings.Contains(block, long) {
		t.Error("expected the block snippet to be capped, full text present")
	}
	if evidence[0].Text != long {
		t.Error("expected evidence to keep the full chunk text")
	}
}

func TestAssemble_BudgetStopsSnippets(t *testing.T) {
	// Five 500-rune snippets at 509 runes per entry against an 1800-rune
	// budget with a 7-rune header: three entries fit, the fourth does not.
	matches := make([]retrieval.Match, 0, 5)
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		matches = append(matches, retrieval.Match{
			Chunk: chunk.Chunk{ID: id, Text: strings.Repeat("감", 500)},
		})
	}

	a := NewAssembler(1800, 500)
	block, evidence := a.Assemble(matches, nil)

	for _, id := range []string{"c1", "c2", "c3"} {
		if !strings.Contains(block, "[청크 "+id+"]") {
			t.Errorf("block missing snippet for %s", id)
		}
	}
	if strings.Contains(block, "[청크 c4]") {
		t.Error("expected budget to stop before the fourth snippet")
	}
	if got := utf8.RuneCountInString(block); got > 1800 {
		t.Errorf("block is %d runes, want <= 1800", got)
	}
	if len(evidence) != 5 {
		t.Errorf("got %d evidence entries, want all 5", len(evidence))
	}
}

func TestAssemble_HierarchyCapLeavesRoomForFirstSnippet(t *testing.T) {
	contexts := make([]hierarchy.NodeContext, 0, 40)
	for i := 0; i < 40; i++ {
		contexts = append(contexts, hierarchy.NodeContext{
			Node:  &hierarchy.Node{DisplayName: strings.Repeat("계", 30)},
			Years: []hierarchy.YearValue{{Year: 2023, Available: true, Value: 100, Unit: "백만원"}},
		})
	}
	matches := []retrieval.Match{{Chunk: chunk.Chunk{ID: "c1", Text: strings.Repeat("감", 700)}}}

	a := NewAssembler(1800, 500)
	block, _ := a.Assemble(matches, contexts)

	if !strings.Contains(block, "[청크 c1]") {
		t.Fatal("expected the first snippet to fit next to a capped hierarchy block")
	}
	if got := utf8.RuneCountInString(block); got > 1800 {
		t.Errorf("block is %d runes, want <= 1800", got)
	}
}

func TestRenderYear(t *testing.T) {
	tests := []struct {
		name string
		year hierarchy.YearValue
		want string
	}{
		{
			name: "missing year",
			year: hierarchy.YearValue{Year: 2024},
			want: "- 2024년: 자료 없음",
		},
		{
			name: "text disclosure verbatim",
			year: hierarchy.YearValue{Year: 2023, Available: true, Text: "적용 기준 변경"},
			want: "- 2023년: 적용 기준 변경",
		},
		{
			name: "amount with unit",
			year: hierarchy.YearValue{Year: 2023, Available: true, Value: 1234567, Unit: "백만원"},
			want: "- 2023년: 1,234,567 백만원",
		},
		{
			name: "amount without unit",
			year: hierarchy.YearValue{Year: 2023, Available: true, Value: 500},
			want: "- 2023년: 500",
		},
		{
			name: "derived amount marked",
			year: hierarchy.YearValue{Year: 2022, Available: true, Value: 500, Unit: "백만원", Derived: true},
			want: "- 2022년: 500 백만원 (합산값)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderYear(tt.year); got != tt.want {
				t.Errorf("renderYear() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderHierarchy_DropsNodesOverBudget(t *testing.T) {
	contexts := []hierarchy.NodeContext{
		{Node: &hierarchy.Node{DisplayName: "자산"}},
		{Node: &hierarchy.Node{DisplayName: strings.Repeat("부", 50)}},
	}

	got := renderHierarchy(contexts, 15)
	if !strings.Contains(got, "자산") {
		t.Error("expected the first node to fit the budget")
	}
	if strings.Contains(got, "부부") {
		t.Error("expected the oversized second node to be dropped")
	}

	if got := renderHierarchy(contexts, 5); got != "" {
		t.Errorf("renderHierarchy with no room = %q, want empty", got)
	}
}

func TestFormatSigned(t *testing.T) {
	if got := formatSigned(120000); got != "+120,000" {
		t.Errorf("formatSigned(120000) = %q, want +120,000", got)
	}
	if got := formatSigned(-50000); got != "-50,000" {
		t.Errorf("formatSigned(-50000) = %q, want -50,000", got)
	}
}
