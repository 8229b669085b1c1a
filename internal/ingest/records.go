package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"auditrag/internal/chunk"
	"auditrag/internal/hierarchy"
)

// ParseError reports a malformed input record. Builds skip the record,
// count the error and continue.
type ParseError struct {
	File   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.File, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.File, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FinancialRecord mirrors one financial parse-record file.
type FinancialRecord struct {
	Statement     StatementInfo  `json:"statement"`
	Accounts      []AccountInfo  `json:"accounts"`
	AccountValues []AccountValue `json:"account_values"`
}

// StatementInfo describes the statement a record was extracted from.
type StatementInfo struct {
	Company       string `json:"company"`
	FiscalYear    int    `json:"fiscal_year"`
	StatementType string `json:"statement_type"` // BS, IS, CIS, SHE, CF
	Unit          string `json:"unit"`
	SourceFile    string `json:"source_file"`
}

// AccountInfo is one account row of a statement.
type AccountInfo struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	ParentID    string `json:"parent_id"`
	Level       int    `json:"level"`
	IsTotal     bool   `json:"is_total"`
	IsSubtotal  bool   `json:"is_subtotal"`
}

// AccountValue is one reported figure for an account.
type AccountValue struct {
	AccountID  string    `json:"account_id"`
	Value      FlexValue `json:"value"`
	PeriodType string    `json:"period_type"`
	FiscalYear int       `json:"fiscal_year"`
	Unit       string    `json:"unit"`
}

// FlexValue accepts the value field as a JSON number or as a string.
// Accounting strings such as "1,234" and "(500)" parse as numbers, with
// parentheses meaning negative. Anything else is kept as text.
type FlexValue struct {
	Number float64
	Text   string
	IsText bool
}

var numericLike = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

func (v *FlexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = FlexValue{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if n, ok := parseNumericLike(s); ok {
			*v = FlexValue{Number: n}
			return nil
		}
		*v = FlexValue{Text: s, IsText: true}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = FlexValue{Number: n}
	return nil
}

func (v FlexValue) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.Text)
	}
	return json.Marshal(v.Number)
}

// parseNumericLike parses accounting-style number strings: thousands
// separators are dropped and parentheses negate, so "(1,234)" is -1234.
func parseNumericLike(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "–" || s == "—" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if !numericLike.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		n = -n
	}
	return n, true
}

// ParseFinancialRecord decodes and validates one financial parse-record.
func ParseFinancialRecord(data []byte, file string) (*FinancialRecord, error) {
	var rec FinancialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &ParseError{File: file, Reason: "invalid JSON", Err: err}
	}
	if rec.Statement.FiscalYear == 0 {
		return nil, &ParseError{File: file, Reason: "statement has no fiscal year"}
	}
	if len(rec.Accounts) == 0 {
		return nil, &ParseError{File: file, Reason: "record has no accounts"}
	}
	return &rec, nil
}

// FinancialDoc carries the hierarchy inputs extracted from one record.
type FinancialDoc struct {
	Source chunk.Source
	Nodes  []hierarchy.Node
	Values []hierarchy.FactValue
}

// Translate turns a parse-record into hierarchy nodes and fact values.
// Accounts with no usable parent reference fall back to the standard
// statement layout; names are cleaned of extraction artifacts; and the two
// balance totals 자산총계 and 부채와자본총계 are derived from their parts
// when the statement does not report them.
func (r *FinancialRecord) Translate(docID string) FinancialDoc {
	doc := FinancialDoc{
		Source: chunk.Source{
			ID:        docID,
			Company:   r.Statement.Company,
			DocType:   "financial_statement",
			File:      r.Statement.SourceFile,
			Statement: r.Statement.StatementType,
			Title:     fmt.Sprintf("%s %d년 %s", r.Statement.Company, r.Statement.FiscalYear, chunk.StatementLabel(r.Statement.StatementType)),
		},
	}

	idByName := make(map[string]string, len(r.Accounts))
	knownIDs := make(map[string]struct{}, len(r.Accounts))
	for _, a := range r.Accounts {
		name := CleanAccountName(a.AccountName)
		if name == "" || a.AccountID == "" {
			continue
		}
		if _, ok := idByName[name]; !ok {
			idByName[name] = a.AccountID
		}
		knownIDs[a.AccountID] = struct{}{}
	}

	for _, a := range r.Accounts {
		name := CleanAccountName(a.AccountName)
		if name == "" || a.AccountID == "" {
			continue
		}
		parentID := a.ParentID
		if _, ok := knownIDs[parentID]; parentID != "" && !ok {
			parentID = ""
		}
		if parentID == "" {
			if parentName, ok := hierarchy.DefaultParent(name); ok {
				if pid, ok := idByName[parentName]; ok && pid != a.AccountID {
					parentID = pid
				}
			}
		}
		doc.Nodes = append(doc.Nodes, hierarchy.Node{
			ID:          a.AccountID,
			DisplayName: name,
			ParentID:    parentID,
			DocumentID:  docID,
			IsTotal:     a.IsTotal,
			IsSubtotal:  a.IsSubtotal,
			Aliases:     hierarchy.AccountAliases(name),
		})
	}

	for _, av := range r.AccountValues {
		if av.AccountID == "" {
			continue
		}
		if _, ok := knownIDs[av.AccountID]; !ok {
			continue
		}
		fy := av.FiscalYear
		if fy == 0 {
			fy = r.Statement.FiscalYear
		}
		unit := av.Unit
		if unit == "" {
			unit = r.Statement.Unit
		}
		fv := hierarchy.FactValue{
			NodeID:     av.AccountID,
			FiscalYear: fy,
			PeriodType: parsePeriodType(av.PeriodType),
			Unit:       unit,
		}
		if av.Value.IsText {
			fv.Text = CleanText(av.Value.Text)
		} else {
			fv.Value = av.Value.Number
		}
		doc.Values = append(doc.Values, fv)
	}

	r.deriveTotals(&doc, idByName)
	return doc
}

// parsePeriodType folds the record's period label onto the known set.
// Unrecognized labels degrade to snapshot rather than dropping the value.
func parsePeriodType(s string) hierarchy.PeriodType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current", "당기":
		return hierarchy.PeriodCurrent
	case "previous", "prior", "전기":
		return hierarchy.PeriodPrevious
	default:
		return hierarchy.PeriodSnapshot
	}
}

// derivedTotal names a total computable from two reported parts.
type derivedTotal struct {
	total  string
	parts  [2]string
	parent string
}

var derivedTotals = []derivedTotal{
	{total: "자산총계", parts: [2]string{"유동자산", "비유동자산"}, parent: "자산"},
	{total: "부채와자본총계", parts: [2]string{"부채총계", "자본총계"}, parent: ""},
}

// deriveTotals synthesizes missing balance totals from their parts, one
// derived value per (fiscal year, period) where both parts are numeric.
func (r *FinancialRecord) deriveTotals(doc *FinancialDoc, idByName map[string]string) {
	type periodKey struct {
		fy int
		pt hierarchy.PeriodType
	}
	valuesByNode := make(map[string]map[periodKey]hierarchy.FactValue)
	for _, v := range doc.Values {
		if valuesByNode[v.NodeID] == nil {
			valuesByNode[v.NodeID] = make(map[periodKey]hierarchy.FactValue)
		}
		valuesByNode[v.NodeID][periodKey{fy: v.FiscalYear, pt: v.PeriodType}] = v
	}

	for _, d := range derivedTotals {
		if _, reported := idByName[d.total]; reported {
			continue
		}
		leftID, leftOK := idByName[d.parts[0]]
		rightID, rightOK := idByName[d.parts[1]]
		if !leftOK || !rightOK {
			continue
		}
		left, right := valuesByNode[leftID], valuesByNode[rightID]
		nodeAdded := false
		totalID := doc.Source.ID + "_" + d.total
		for key, lv := range left {
			rv, ok := right[key]
			if !ok || lv.Text != "" || rv.Text != "" {
				continue
			}
			if !nodeAdded {
				parentID := ""
				if d.parent != "" {
					parentID = idByName[d.parent]
				}
				doc.Nodes = append(doc.Nodes, hierarchy.Node{
					ID:          totalID,
					DisplayName: d.total,
					ParentID:    parentID,
					DocumentID:  doc.Source.ID,
					IsTotal:     true,
					Aliases:     hierarchy.AccountAliases(d.total),
				})
				nodeAdded = true
			}
			doc.Values = append(doc.Values, hierarchy.FactValue{
				NodeID:     totalID,
				FiscalYear: key.fy,
				PeriodType: key.pt,
				Value:      lv.Value + rv.Value,
				Unit:       lv.Unit,
				Derived:    true,
			})
		}
	}
}
