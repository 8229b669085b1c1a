// Package retrieval implements the staged hybrid search over a built
// corpus generation: vector scope narrowing against section-level
// embeddings, scoped BM25 scoring against chunk text and node aliases,
// and a full-corpus vector fallback. Indices are immutable once built;
// a rebuild publishes a new generation through the Holder instead of
// mutating the old one.
package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters. k1 saturates term frequency, b controls how strongly
// document length normalizes the score.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Doc is one unit of lexical indexing: a chunk's sentence plus the alias
// forms of the node it describes.
type Doc struct {
	ID      string
	Text    string
	Aliases []string
}

// Score is one lexical match, highest score first.
type Score struct {
	ID    string
	Score float64
}

type indexedDoc struct {
	id     string
	terms  map[string]int
	length int
}

// Index is an immutable BM25 index. Document frequencies and the average
// document length always cover the full corpus; search scope only limits
// which documents are scored.
type Index struct {
	docs   []indexedDoc
	pos    map[string]int
	df     map[string]int
	avgLen float64
}

// NewIndex builds a BM25 index over the given documents. Later duplicates
// of a document id are ignored.
func NewIndex(docs []Doc) *Index {
	ix := &Index{
		pos: make(map[string]int, len(docs)),
		df:  make(map[string]int),
	}

	totalLen := 0
	for _, d := range docs {
		if _, dup := ix.pos[d.ID]; dup {
			continue
		}
		tokens := tokenize(d.Text)
		for _, alias := range d.Aliases {
			tokens = append(tokens, tokenize(alias)...)
		}

		terms := make(map[string]int, len(tokens))
		for _, t := range tokens {
			terms[t]++
		}
		for t := range terms {
			ix.df[t]++
		}

		ix.pos[d.ID] = len(ix.docs)
		ix.docs = append(ix.docs, indexedDoc{id: d.ID, terms: terms, length: len(tokens)})
		totalLen += len(tokens)
	}
	if len(ix.docs) > 0 {
		ix.avgLen = float64(totalLen) / float64(len(ix.docs))
	}
	return ix
}

// Len reports the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// Search scores the query against the index and returns the k best
// documents with a positive score. A nil scope searches the whole corpus;
// a non-nil scope restricts scoring to the listed document ids. Ties keep
// the corpus insertion order.
func (ix *Index) Search(query string, k int, scope map[string]struct{}) []Score {
	if k <= 0 || len(ix.docs) == 0 {
		return nil
	}
	tokens := uniqueTokens(tokenize(query))
	if len(tokens) == 0 {
		return nil
	}

	idf := make(map[string]float64, len(tokens))
	n := float64(len(ix.docs))
	for _, t := range tokens {
		df := float64(ix.df[t])
		if df == 0 {
			continue
		}
		idf[t] = math.Log(1 + (n-df+0.5)/(df+0.5))
	}
	if len(idf) == 0 {
		return nil
	}

	var scores []Score
	for _, d := range ix.docs {
		if scope != nil {
			if _, ok := scope[d.id]; !ok {
				continue
			}
		}
		s := 0.0
		for t, w := range idf {
			tf := float64(d.terms[t])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(d.length)/ix.avgLen
			s += w * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
		if s > 0 {
			scores = append(scores, Score{ID: d.id, Score: s})
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if len(scores) > k {
		scores = scores[:k]
	}
	return scores
}

// tokenize lowercases the text and splits it into letter/digit runs.
// Mixed runs like 제36조의2 stay intact, which is what makes expanded
// clause forms match their chunks exactly.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// uniqueTokens deduplicates tokens keeping first occurrence, so alias
// forms appended by normalization are not double counted.
func uniqueTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
