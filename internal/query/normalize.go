// Package query normalizes user questions before retrieval. Clause
// references written in any of their interchangeable forms (제36조의2,
// 36조의2, 36의2, 36-2, Article 36-2) are expanded by appending the missing
// forms, account mentions are tagged against the hierarchy alias index, and
// calendar years are extracted for multi-year expansion.
package query

import (
	"regexp"
	"strconv"
	"strings"

	"auditrag/internal/hierarchy"
)

var (
	koreanClausePattern  = regexp.MustCompile(`제?(\d{1,4})조(?:의(\d{1,3}))?`)
	koreanSubPattern     = regexp.MustCompile(`(\d{1,4})\s*의\s*(\d{1,3})`)
	englishClausePattern = regexp.MustCompile(`(?i)article\s+(\d{1,4})(?:-(\d{1,3}))?`)
	dashedClausePattern  = regexp.MustCompile(`(\d{1,4})-(\d{1,3})`)
	yearPattern          = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

// ClauseRef is one detected clause reference, e.g. 제36조의2 is {36, 2}.
type ClauseRef struct {
	Main int
	Sub  int
}

// Normalized is the outcome of normalizing one question. Expanded always
// contains the original text; appended alias forms only ever add to it, so
// normalizing an already normalized question changes nothing.
type Normalized struct {
	Original string
	Expanded string
	Terms    []string // alias forms appended to Expanded
	Clauses  []ClauseRef
	Accounts []string // node ids tagged via the alias index
	Years    []int    // calendar years mentioned in the question
}

// Normalizer expands clause references and tags account mentions.
type Normalizer struct {
	aliases *hierarchy.AliasIndex
}

// NewNormalizer creates a Normalizer over the given alias index. A nil
// index disables account tagging but keeps clause expansion working.
func NewNormalizer(aliases *hierarchy.AliasIndex) *Normalizer {
	return &Normalizer{aliases: aliases}
}

// Normalize expands one question.
func (n *Normalizer) Normalize(q string) Normalized {
	out := Normalized{
		Original: q,
		Expanded: q,
		Clauses:  detectClauses(q),
		Years:    detectYears(q),
	}

	folded := foldQuery(q)
	for _, ref := range out.Clauses {
		for _, form := range hierarchy.ClauseAliasesFor(ref.Main, ref.Sub) {
			key := foldQuery(form)
			if strings.Contains(folded, key) {
				continue
			}
			out.Terms = append(out.Terms, form)
			folded += " " + key
		}
	}
	if len(out.Terms) > 0 {
		out.Expanded = q + " " + strings.Join(out.Terms, " ")
	}

	if n.aliases != nil {
		seen := make(map[string]struct{})
		for _, m := range n.aliases.ScanText(out.Expanded) {
			for _, id := range m.NodeIDs {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				out.Accounts = append(out.Accounts, id)
			}
		}
	}
	return out
}

// detectClauses finds clause references in all supported written forms.
func detectClauses(q string) []ClauseRef {
	var refs []ClauseRef
	seen := make(map[ClauseRef]struct{})
	add := func(mainStr, subStr string) {
		main, err := strconv.Atoi(mainStr)
		if err != nil {
			return
		}
		sub := 0
		if subStr != "" {
			if sub, err = strconv.Atoi(subStr); err != nil {
				return
			}
		}
		ref := ClauseRef{Main: main, Sub: sub}
		if _, dup := seen[ref]; dup {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	for _, m := range koreanClausePattern.FindAllStringSubmatch(q, -1) {
		add(m[1], m[2])
	}
	for _, m := range koreanSubPattern.FindAllStringSubmatch(q, -1) {
		add(m[1], m[2])
	}
	for _, m := range englishClausePattern.FindAllStringSubmatch(q, -1) {
		add(m[1], m[2])
	}
	// Bare N-M needs non-digit boundaries and must not be a year range
	// like 2018-2019 or a date fragment.
	for _, loc := range dashedClausePattern.FindAllStringSubmatchIndex(q, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			prev := q[start-1]
			if prev >= '0' && prev <= '9' || prev == '-' || prev == '.' {
				continue
			}
		}
		if end < len(q) {
			next := q[end]
			if next >= '0' && next <= '9' || next == '-' || next == '.' {
				continue
			}
		}
		mainStr := q[loc[2]:loc[3]]
		subStr := q[loc[4]:loc[5]]
		if looksLikeYear(mainStr) || looksLikeYear(subStr) {
			continue
		}
		add(mainStr, subStr)
	}
	return refs
}

// detectYears extracts four-digit calendar years, deduplicated in order.
func detectYears(q string) []int {
	var years []int
	seen := make(map[int]struct{})
	for _, m := range yearPattern.FindAllStringSubmatch(q, -1) {
		y, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, dup := seen[y]; dup {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	return years
}

func looksLikeYear(s string) bool {
	n, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	return n >= 1900 && n <= 2099
}

// foldQuery strips spaces and lowercases ASCII for presence checks.
func foldQuery(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', ' ':
			return -1
		}
		return r
	}, s))
}
