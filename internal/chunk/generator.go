package chunk

import (
	"fmt"
	"strings"

	"auditrag/internal/hierarchy"
)

// GenerationError reports a node or value that cannot be turned into a
// chunk. Builds skip and count these instead of failing.
type GenerationError struct {
	NodeID string
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("chunk generation failed for node %q: %s", e.NodeID, e.Reason)
}

// FromValue renders one fact value into its canonical sentence chunk, e.g.
//
//	재무상태표에서 2024년 (당기) 유동자산는 1,234,567백만원입니다.
//
// The same (document, node, period, fiscal year) always produces the same
// chunk id and text, so rebuilding an unchanged corpus is a no-op.
func FromValue(src Source, node *hierarchy.Node, path []string, v hierarchy.FactValue) (Chunk, error) {
	if node == nil || node.DisplayName == "" {
		return Chunk{}, &GenerationError{NodeID: v.NodeID, Reason: "missing account name"}
	}
	if src.ID == "" {
		return Chunk{}, &GenerationError{NodeID: node.ID, Reason: "missing source document"}
	}
	if v.FiscalYear == 0 {
		return Chunk{}, &GenerationError{NodeID: node.ID, Reason: "missing fiscal year"}
	}

	unit := NormalizeUnit(v.Unit)
	valueText := v.Text
	if valueText == "" {
		valueText = FormatAmount(v.Value) + unit
	}
	text := fmt.Sprintf("%s에서 %s %s는 %s입니다.",
		StatementLabel(src.Statement),
		periodYearText(v.PeriodType, v.FiscalYear),
		node.DisplayName,
		valueText)

	id, digest := digestID(factKey(src.ID, node.ID, v.PeriodType, v.FiscalYear))
	return Chunk{
		ID:     id,
		Digest: digest,
		Kind:   KindFact,
		Text:   text,
		Meta: Metadata{
			Company:       src.Company,
			SourceID:      src.ID,
			SourceFile:    src.File,
			DocType:       src.DocType,
			StatementType: src.Statement,
			SectionID:     sectionID(src),
			NodeID:        node.ID,
			AccountName:   node.DisplayName,
			ParentID:      node.ParentID,
			Level:         node.Level,
			IsTotal:       node.IsTotal,
			IsSubtotal:    node.IsSubtotal,
			PeriodType:    string(v.PeriodType),
			FiscalYear:    v.FiscalYear,
			Value:         v.Value,
			Unit:          unit,
			Derived:       v.Derived,
			Hierarchy:     path,
			YearsCovered:  v.YearsCovered(),
			FiscalYears:   FiscalYearMap(v.FiscalYear),
		},
	}, nil
}

// FromClause renders one legal or accounting-standard paragraph into a
// chunk. The bracketed header carries the document title, the clause
// reference and the paragraph label so lexical search matches citations.
func FromClause(src Source, node *hierarchy.Node, path []string, paragraph, text string) (Chunk, error) {
	if node == nil || node.DisplayName == "" {
		return Chunk{}, &GenerationError{Reason: "missing clause heading"}
	}
	if src.ID == "" {
		return Chunk{}, &GenerationError{NodeID: node.ID, Reason: "missing source document"}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Chunk{}, &GenerationError{NodeID: node.ID, Reason: "empty paragraph"}
	}

	header := make([]string, 0, 3)
	if src.Title != "" {
		header = append(header, src.Title)
	}
	header = append(header, node.DisplayName)
	if paragraph != "" {
		header = append(header, paragraph)
	}
	body := fmt.Sprintf("[%s] %s", strings.Join(header, " "), text)

	id, digest := digestID(clauseKey(src.ID, node.ID, paragraph))
	return Chunk{
		ID:     id,
		Digest: digest,
		Kind:   KindClause,
		Text:   body,
		Meta: Metadata{
			SourceID:    src.ID,
			SourceFile:  src.File,
			DocType:     src.DocType,
			SectionID:   sectionID(src),
			NodeID:      node.ID,
			AccountName: node.DisplayName,
			ParentID:    node.ParentID,
			Level:       node.Level,
			PeriodType:  string(hierarchy.PeriodSnapshot),
			Hierarchy:   path,
			Paragraph:   paragraph,
		},
	}, nil
}

// FromSection renders a document's account or clause headings into the
// coarse entry the scope stage searches first. Section entries are embedded
// like chunks but never served as evidence.
func FromSection(src Source, fiscalYear int, names []string) (Chunk, error) {
	if src.ID == "" {
		return Chunk{}, &GenerationError{Reason: "missing source document"}
	}
	title := src.Title
	if title == "" {
		title = src.ID
	}
	text := title
	if len(names) > 0 {
		text = fmt.Sprintf("%s: %s", title, strings.Join(names, ", "))
	}

	id, digest := digestID(sectionKey(src.ID, text))
	return Chunk{
		ID:     id,
		Digest: digest,
		Kind:   KindSection,
		Text:   text,
		Meta: Metadata{
			Company:       src.Company,
			SourceID:      src.ID,
			SourceFile:    src.File,
			DocType:       src.DocType,
			StatementType: src.Statement,
			SectionID:     sectionID(src),
			NodeID:        sectionID(src),
			PeriodType:    string(hierarchy.PeriodSnapshot),
			FiscalYear:    fiscalYear,
		},
	}, nil
}

// sectionID groups chunks for scope narrowing, one section per document.
func sectionID(src Source) string {
	if src.SectionID != "" {
		return src.SectionID
	}
	return src.ID
}
