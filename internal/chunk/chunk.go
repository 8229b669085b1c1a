// Package chunk turns hierarchy nodes and their fact values into the
// retrieval units stored in the lexical and vector indices. Every chunk is
// one self-contained Korean sentence plus the metadata needed to map a
// search hit back into the hierarchy.
package chunk

import (
	"fmt"

	"auditrag/internal/hierarchy"
)

// Chunk kinds. Fact and clause chunks feed lexical and vector search and
// can be served as evidence; section entries only narrow search scope.
const (
	KindFact    = "fact"
	KindClause  = "clause"
	KindSection = "section"
)

// Chunk is one indexed retrieval unit.
type Chunk struct {
	// ID is the first 16 hex characters of Digest, used as the stable
	// chunk identifier everywhere outside the index build.
	ID string
	// Digest is the full BLAKE2b-256 content identity, kept for
	// collision checks during builds.
	Digest string
	// Kind is KindFact, KindClause or KindSection.
	Kind string
	Text string
	Meta Metadata
}

// Metadata describes where a chunk came from and which hierarchy node and
// period it covers. It is stored as the vector payload and as a JSON column
// alongside the chunk text.
type Metadata struct {
	Company       string            `json:"company,omitempty"`
	SourceID      string            `json:"source_id"`
	SourceFile    string            `json:"source_filename,omitempty"`
	DocType       string            `json:"doc_type"`
	StatementType string            `json:"statement_type,omitempty"`
	SectionID     string            `json:"section_id"`
	NodeID        string            `json:"node_id"`
	AccountName   string            `json:"account_name,omitempty"`
	ParentID      string            `json:"parent_id,omitempty"`
	Level         int               `json:"level"`
	IsTotal       bool              `json:"is_total,omitempty"`
	IsSubtotal    bool              `json:"is_subtotal,omitempty"`
	PeriodType    string            `json:"period_type"`
	FiscalYear    int               `json:"fiscal_year"`
	Value         float64           `json:"value,omitempty"`
	Unit          string            `json:"unit,omitempty"`
	Derived       bool              `json:"derived,omitempty"`
	Hierarchy     []string          `json:"hierarchy_path,omitempty"`
	YearsCovered  []int             `json:"years_covered,omitempty"`
	FiscalYears   map[string]int    `json:"fiscal_year_map,omitempty"`
	Paragraph     string            `json:"paragraph,omitempty"`
}

// Source identifies the document a chunk was generated from.
type Source struct {
	ID        string
	Company   string
	DocType   string
	File      string
	Statement string // BS, IS, CIS, SHE or CF for financial statements
	SectionID string
	Title     string
}

// statementLabels maps statement type codes to their Korean captions.
var statementLabels = map[string]string{
	"BS":  "재무상태표",
	"IS":  "손익계산서",
	"CIS": "포괄손익계산서",
	"SHE": "자본변동표",
	"CF":  "현금흐름표",
}

// StatementLabel returns the Korean caption for a statement type code.
// Unknown non-empty codes pass through unchanged.
func StatementLabel(code string) string {
	if label, ok := statementLabels[code]; ok {
		return label
	}
	if code == "" {
		return "재무제표"
	}
	return code
}

// FiscalYearMap returns the period labels a report of the given fiscal year
// resolves to, e.g. for 2024: 제24기 and 당기 mean 2024, 전기 means 2023.
func FiscalYearMap(fiscalYear int) map[string]int {
	return map[string]int{
		fmt.Sprintf("제%d기", fiscalYear-2000): fiscalYear,
		"당기": fiscalYear,
		"전기": fiscalYear - 1,
	}
}

// periodYearText renders the year phrase of a chunk sentence.
func periodYearText(period hierarchy.PeriodType, fiscalYear int) string {
	switch period {
	case hierarchy.PeriodCurrent:
		return fmt.Sprintf("%d년 (당기)", fiscalYear)
	case hierarchy.PeriodPrevious:
		return fmt.Sprintf("%d년 (전기)", fiscalYear-1)
	default:
		return fmt.Sprintf("%d년", fiscalYear)
	}
}
