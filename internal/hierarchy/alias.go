package hierarchy

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// clauseNumberPattern accepts "36", "36의2" and "36-2" style clause numbers.
var clauseNumberPattern = regexp.MustCompile(`^(\d+)(?:(?:의|-)(\d+))?$`)

// SplitClauseNumber parses a clause number such as "36" or "36의2" into its
// main and sub parts. The sub part is zero when absent.
func SplitClauseNumber(num string) (main, sub int, ok bool) {
	m := clauseNumberPattern.FindStringSubmatch(strings.TrimSpace(num))
	if m == nil {
		return 0, 0, false
	}
	main, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	if m[2] != "" {
		sub, err = strconv.Atoi(m[2])
		if err != nil {
			return 0, 0, false
		}
	}
	return main, sub, true
}

// ClauseAliases returns every interchangeable reference form for a clause
// number. Korean statutes write article 36-2 as 제36조의2, queries use
// 36조의2, 36의2 or 36-2, and translated material uses Article 36-2. All
// forms resolve to the same clause.
func ClauseAliases(num string) []string {
	main, sub, ok := SplitClauseNumber(num)
	if !ok {
		return nil
	}
	return ClauseAliasesFor(main, sub)
}

// ClauseAliasesFor returns the alias family for explicit main/sub numbers.
func ClauseAliasesFor(main, sub int) []string {
	if sub > 0 {
		return []string{
			fmt.Sprintf("제%d조의%d", main, sub),
			fmt.Sprintf("%d조의%d", main, sub),
			fmt.Sprintf("%d의%d", main, sub),
			fmt.Sprintf("%d-%d", main, sub),
			fmt.Sprintf("Article %d-%d", main, sub),
		}
	}
	return []string{
		fmt.Sprintf("제%d조", main),
		fmt.Sprintf("%d조", main),
		fmt.Sprintf("Article %d", main),
	}
}

// accountSynonyms maps canonical account names to the alternate spellings
// that show up in auditor queries, including spaced variants and English
// statement captions.
var accountSynonyms = map[string][]string{
	"자산":       {"총자산", "assets"},
	"유동자산":     {"유동 자산", "current assets"},
	"비유동자산":    {"비유동 자산", "고정자산", "non-current assets"},
	"자산총계":     {"자산 총계", "total assets"},
	"부채":       {"총부채", "liabilities"},
	"유동부채":     {"유동 부채", "current liabilities"},
	"비유동부채":    {"비유동 부채", "non-current liabilities"},
	"부채총계":     {"부채 총계", "total liabilities"},
	"자본":       {"총자본", "equity"},
	"자본총계":     {"자본 총계", "total equity"},
	"부채와자본총계":  {"부채및자본총계", "부채와 자본 총계"},
	"현금및현금성자산": {"현금 및 현금성자산", "현금및 현금성자산", "cash and cash equivalents"},
	"매출채권":     {"매출 채권", "trade receivables"},
	"재고자산":     {"재고 자산", "inventories"},
	"매출액":      {"매출", "수익(매출액)", "revenue"},
	"매출원가":     {"매출 원가", "cost of sales"},
	"매출총이익":    {"매출 총이익", "gross profit"},
	"판매비와관리비":  {"판매비와 관리비", "판관비"},
	"영업이익":     {"영업 이익", "operating income"},
	"당기순이익":    {"당기 순이익", "당기순손익", "net income"},
	"영업활동현금흐름": {"영업활동 현금흐름", "영업활동으로 인한 현금흐름"},
	"투자활동현금흐름": {"투자활동 현금흐름", "투자활동으로 인한 현금흐름"},
	"재무활동현금흐름": {"재무활동 현금흐름", "재무활동으로 인한 현금흐름"},
}

// AccountAliases returns the known alternate spellings for an account name.
func AccountAliases(name string) []string {
	return accountSynonyms[name]
}

// defaultChildren maps standard statement categories to their usual members.
// Source files that carry no explicit parent references fall back to this
// layout.
var defaultChildren = map[string][]string{
	"자산": {"유동자산", "비유동자산"},
	"유동자산": {
		"현금및현금성자산", "단기금융상품", "단기매도가능금융자산",
		"매출채권", "미수금", "선급금", "선급비용", "재고자산",
		"기타유동자산", "매각예정분류자산",
	},
	"비유동자산": {
		"기타포괄손익-공정가치금융자산", "당기손익-공정가치금융자산",
		"장기매도가능금융자산", "종속기업, 관계기업및공동기업투자",
		"유형자산", "무형자산", "순확정급여자산", "이연법인세자산",
		"기타비유동자산",
	},
	"부채": {"유동부채", "비유동부채"},
	"유동부채": {
		"매입채무", "단기차입금", "미지급금", "선수금", "선수수익",
		"기타유동부채", "매각예정분류부채",
	},
	"비유동부채": {
		"장기차입금", "충당부채", "이연법인세부채", "기타비유동부채",
	},
	"자본":   {"자본금", "자본잉여금", "이익잉여금", "기타자본항목"},
	"손익":   {"매출액", "매출원가", "매출총이익", "판매비와관리비", "영업이익", "당기순이익"},
	"현금흐름": {"영업활동현금흐름", "투자활동현금흐름", "재무활동현금흐름"},
}

// defaultParents is the reverse of defaultChildren.
var defaultParents = func() map[string]string {
	m := make(map[string]string)
	for parent, children := range defaultChildren {
		for _, child := range children {
			m[child] = parent
		}
	}
	return m
}()

// DefaultParent returns the standard statement parent for a well-known
// account name.
func DefaultParent(name string) (string, bool) {
	p, ok := defaultParents[name]
	return p, ok
}

// DefaultChildren returns the standard members of a statement category.
func DefaultChildren(name string) []string {
	return defaultChildren[name]
}

// AliasIndex resolves free-text mentions of accounts and clauses to node ids.
// Matching ignores spaces, commas and ASCII case, the same folding applied
// to both the indexed surface forms and the scanned text.
type AliasIndex struct {
	byAlias map[string][]string
	surface map[string]string
	ordered []string
}

// Match is one alias occurrence found by ScanText.
type Match struct {
	Term    string
	NodeIDs []string
}

// NewAliasIndex indexes the display names and aliases of every node in the
// tree. When several nodes share a surface form, all of their ids are kept
// in tree order.
func NewAliasIndex(t *Tree) *AliasIndex {
	idx := &AliasIndex{
		byAlias: make(map[string][]string),
		surface: make(map[string]string),
	}
	if t == nil {
		return idx
	}
	for _, id := range t.NodeIDs() {
		n, _ := t.Node(id)
		idx.register(n.DisplayName, n.ID)
		for _, alias := range n.Aliases {
			idx.register(alias, n.ID)
		}
	}
	// Longest surfaces first so 비유동자산 wins over the embedded 유동자산.
	idx.ordered = make([]string, 0, len(idx.byAlias))
	for key := range idx.byAlias {
		idx.ordered = append(idx.ordered, key)
	}
	sort.Slice(idx.ordered, func(i, j int) bool {
		li, lj := len([]rune(idx.ordered[i])), len([]rune(idx.ordered[j]))
		if li != lj {
			return li > lj
		}
		return idx.ordered[i] < idx.ordered[j]
	})
	return idx
}

func (idx *AliasIndex) register(term, nodeID string) {
	key := foldTerm(term)
	if key == "" {
		return
	}
	for _, existing := range idx.byAlias[key] {
		if existing == nodeID {
			return
		}
	}
	idx.byAlias[key] = append(idx.byAlias[key], nodeID)
	if _, ok := idx.surface[key]; !ok {
		idx.surface[key] = term
	}
}

// Lookup returns the node ids registered for an exact surface form.
func (idx *AliasIndex) Lookup(term string) []string {
	return idx.byAlias[foldTerm(term)]
}

// ScanText finds alias occurrences in free text. Longer surface forms are
// matched first and shorter forms embedded inside an already matched span
// are suppressed. Matches are returned in text order.
func (idx *AliasIndex) ScanText(text string) []Match {
	folded := foldTerm(text)
	if folded == "" {
		return nil
	}
	type hit struct {
		pos  int
		term string
		ids  []string
	}
	var hits []hit
	covered := make([]bool, len(folded))
	for _, key := range idx.ordered {
		offset := 0
		for {
			at := strings.Index(folded[offset:], key)
			if at < 0 {
				break
			}
			start := offset + at
			end := start + len(key)
			overlaps := false
			for i := start; i < end; i++ {
				if covered[i] {
					overlaps = true
					break
				}
			}
			if !overlaps {
				for i := start; i < end; i++ {
					covered[i] = true
				}
				hits = append(hits, hit{pos: start, term: idx.surface[key], ids: idx.byAlias[key]})
			}
			offset = end
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		out = append(out, Match{Term: h.term, NodeIDs: h.ids})
	}
	return out
}

// foldTerm lowercases ASCII and strips spaces and commas for alias matching.
func foldTerm(s string) string {
	folded := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', ' ', ',':
			return -1
		}
		return r
	}, s)
	return strings.ToLower(folded)
}
