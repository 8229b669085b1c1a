package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"auditrag/internal/chunk"
	"auditrag/internal/hierarchy"
	"auditrag/internal/retrieval"
)

const (
	defaultContextBudget = 4000
	minContextBudget     = 1800
	defaultSnippetMax    = 500
	truncationMarker     = " …(이하 생략)"
)

// Assembler renders evidence and hierarchy context into a single
// character-bounded block for answer generation. Budgets count runes,
// not bytes, so Korean text is measured the same as ASCII.
type Assembler struct {
	budget     int
	snippetMax int
}

// NewAssembler clamps the context budget to [1800, 4000] and the
// per-snippet cap to at most the budget. Zero values pick the defaults.
func NewAssembler(budget, snippetMax int) *Assembler {
	if budget == 0 {
		budget = defaultContextBudget
	}
	if budget < minContextBudget {
		budget = minContextBudget
	}
	if budget > defaultContextBudget {
		budget = defaultContextBudget
	}
	if snippetMax <= 0 {
		snippetMax = defaultSnippetMax
	}
	if snippetMax > budget {
		snippetMax = budget
	}
	return &Assembler{budget: budget, snippetMax: snippetMax}
}

// Assemble builds the context block and the evidence list. The evidence
// list always carries every match with its full text; only the block is
// truncated. The hierarchy section is capped at a third of the budget so
// at least the first snippet always fits.
func (a *Assembler) Assemble(matches []retrieval.Match, contexts []hierarchy.NodeContext) (string, []Evidence) {
	evidence := make([]Evidence, 0, len(matches))
	for _, m := range matches {
		evidence = append(evidence, Evidence{
			ChunkID:  m.Chunk.ID,
			Score:    m.Score,
			Text:     m.Chunk.Text,
			Metadata: m.Chunk.Meta,
		})
	}
	if len(matches) == 0 {
		return "", evidence
	}

	var b strings.Builder
	used := 0

	if block := renderHierarchy(contexts, a.budget/3); block != "" {
		b.WriteString(block)
		b.WriteString("\n\n")
		used += utf8.RuneCountInString(block) + 2
	}

	header := "[근거 자료]"
	b.WriteString(header)
	used += utf8.RuneCountInString(header)

	for _, m := range matches {
		entry := fmt.Sprintf("\n[청크 %s] %s", m.Chunk.ID, a.capSnippet(m.Chunk.Text))
		n := utf8.RuneCountInString(entry)
		if used+n > a.budget {
			break
		}
		b.WriteString(entry)
		used += n
	}
	return b.String(), evidence
}

func (a *Assembler) capSnippet(text string) string {
	if utf8.RuneCountInString(text) <= a.snippetMax {
		return text
	}
	return truncateRunes(text, a.snippetMax) + truncationMarker
}

// renderHierarchy writes node neighborhoods until the sub-budget runs
// out. Nodes are rendered whole; a node that would overflow is dropped
// along with everything after it.
func renderHierarchy(contexts []hierarchy.NodeContext, budget int) string {
	if len(contexts) == 0 {
		return ""
	}

	var b strings.Builder
	header := "[계층 정보]"
	b.WriteString(header)
	used := utf8.RuneCountInString(header)
	wrote := false

	for _, nc := range contexts {
		block := renderNodeContext(nc)
		n := utf8.RuneCountInString(block)
		if used+n > budget {
			break
		}
		b.WriteString(block)
		used += n
		wrote = true
	}
	if !wrote {
		return ""
	}
	return b.String()
}

func renderNodeContext(nc hierarchy.NodeContext) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(nc.Node.DisplayName)
	if len(nc.Path) > 1 {
		fmt.Fprintf(&b, " (경로: %s)", strings.Join(nc.Path, " > "))
	}
	for _, y := range nc.Years {
		b.WriteString("\n")
		b.WriteString(renderYear(y))
	}
	for _, ch := range nc.Changes {
		fmt.Fprintf(&b, "\n- %d년 대비 %d년: %s (%s)", ch.FromYear, ch.ToYear, formatSigned(ch.Abs), ch.Pct)
	}
	if len(nc.Children) > 0 {
		names := make([]string, 0, len(nc.Children))
		for _, ch := range nc.Children {
			names = append(names, ch.Node.DisplayName)
		}
		fmt.Fprintf(&b, "\n하위 항목: %s", strings.Join(names, ", "))
	}
	if len(nc.Siblings) > 0 {
		fmt.Fprintf(&b, "\n동일 상위 항목: %s", strings.Join(nc.Siblings, ", "))
	}
	return b.String()
}

func renderYear(y hierarchy.YearValue) string {
	if !y.Available {
		return fmt.Sprintf("- %d년: 자료 없음", y.Year)
	}
	if y.Text != "" {
		return fmt.Sprintf("- %d년: %s", y.Year, y.Text)
	}
	line := fmt.Sprintf("- %d년: %s", y.Year, chunk.FormatAmount(y.Value))
	if y.Unit != "" {
		line += " " + y.Unit
	}
	if y.Derived {
		line += " (합산값)"
	}
	return line
}

func formatSigned(v float64) string {
	s := chunk.FormatAmount(v)
	if v >= 0 {
		return "+" + s
	}
	return s
}
