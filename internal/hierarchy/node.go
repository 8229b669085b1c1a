// Package hierarchy models audit-report accounts and legal clauses as a
// parent/child tree and derives neighborhood context (ancestors, children,
// siblings, multi-year values) for retrieval results.
package hierarchy

import "sort"

// PeriodType identifies which reporting period a fact value belongs to.
type PeriodType string

const (
	// PeriodCurrent is the reporting year column of a statement.
	PeriodCurrent PeriodType = "current"
	// PeriodPrevious is the comparative prior-year column.
	PeriodPrevious PeriodType = "previous"
	// PeriodSnapshot is a single-period figure with no comparative column.
	PeriodSnapshot PeriodType = "snapshot"
)

// Node is one account or clause in the hierarchy.
type Node struct {
	ID          string
	DisplayName string
	ParentID    string // empty for roots
	Level       int    // roots are level 1
	DocumentID  string
	IsTotal     bool
	IsSubtotal  bool
	Aliases     []string // deduplicated, insertion order
}

// FactValue is one reported amount for a node in one fiscal period.
type FactValue struct {
	NodeID     string
	FiscalYear int
	PeriodType PeriodType
	Value      float64
	Text       string // set instead of Value for non-numeric disclosures
	Unit       string
	Derived    bool // computed from children rather than reported
}

// YearsCovered reports the calendar years this value carries data for.
// Current-period and snapshot values cover the report's fiscal year; a
// previous-period value covers the year before it.
func (v FactValue) YearsCovered() []int {
	if v.PeriodType == PeriodPrevious {
		return []int{v.FiscalYear - 1}
	}
	return []int{v.FiscalYear}
}

// periodRank orders period types when several records cover the same
// calendar year. Figures reported for the year itself win over the
// comparative column of the following year's report.
func periodRank(p PeriodType) int {
	switch p {
	case PeriodCurrent:
		return 2
	case PeriodSnapshot:
		return 1
	default:
		return 0
	}
}

type valueKey struct {
	nodeID string
	year   int
}

// ValueSet indexes fact values by node and by the calendar year they cover.
type ValueSet struct {
	byNode map[string][]FactValue
	byYear map[valueKey]FactValue
}

// NewValueSet builds a ValueSet from a slice of fact values.
func NewValueSet(values []FactValue) *ValueSet {
	s := &ValueSet{
		byNode: make(map[string][]FactValue),
		byYear: make(map[valueKey]FactValue),
	}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add indexes a single fact value.
func (s *ValueSet) Add(v FactValue) {
	s.byNode[v.NodeID] = append(s.byNode[v.NodeID], v)
	for _, year := range v.YearsCovered() {
		key := valueKey{nodeID: v.NodeID, year: year}
		existing, ok := s.byYear[key]
		if !ok || periodRank(v.PeriodType) > periodRank(existing.PeriodType) {
			s.byYear[key] = v
		}
	}
}

// ValueFor returns the fact value covering the given calendar year for a node.
func (s *ValueSet) ValueFor(nodeID string, year int) (FactValue, bool) {
	v, ok := s.byYear[valueKey{nodeID: nodeID, year: year}]
	return v, ok
}

// YearsFor returns the calendar years with data for a node, ascending.
func (s *ValueSet) YearsFor(nodeID string) []int {
	var years []int
	for key := range s.byYear {
		if key.nodeID == nodeID {
			years = append(years, key.year)
		}
	}
	sort.Ints(years)
	return years
}

// All returns every fact value recorded for a node, in insertion order.
func (s *ValueSet) All(nodeID string) []FactValue {
	return s.byNode[nodeID]
}

// Len reports the number of recorded fact values.
func (s *ValueSet) Len() int {
	n := 0
	for _, vs := range s.byNode {
		n += len(vs)
	}
	return n
}
