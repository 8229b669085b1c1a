package ingest

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	gtext "github.com/yuin/goldmark/text"

	"auditrag/internal/chunk"
	"auditrag/internal/hierarchy"
)

const (
	minParagraphRunes = 50
	maxParagraphRunes = 700
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

	clauseHeadingPattern  = regexp.MustCompile(`^제(\d{1,4})조(?:의(\d{1,3}))?`)
	clauseDisplayPattern  = regexp.MustCompile(`^제\d{1,4}조(?:의\d{1,3})?(?:\([^)]*\))?`)
	chapterHeadingPattern = regexp.MustCompile(`^제(\d{1,4})(장|절|편|관)`)
	paraHeadingPattern    = regexp.MustCompile(`^문단\s*(\d+(?:[.-]\d+)*)`)
)

// StandardRecord mirrors one standards parse-record file.
type StandardRecord struct {
	DocID      string            `json:"doc_id"`
	Title      string            `json:"title"`
	SourceFile string            `json:"source_file"`
	Paragraphs []ParagraphRecord `json:"paragraphs"`
}

// ParagraphRecord is one extracted paragraph of a standards document.
type ParagraphRecord struct {
	ParaID string `json:"para_id"`
	Page   int    `json:"page"`
	Text   string `json:"text"`
}

// ClauseParagraph is a cleaned paragraph attached to a hierarchy node.
type ClauseParagraph struct {
	NodeID string
	ParaID string
	Page   int
	Text   string
}

// StandardsDoc carries the hierarchy inputs extracted from one
// standards document.
type StandardsDoc struct {
	Source     chunk.Source
	Nodes      []hierarchy.Node
	Paragraphs []ClauseParagraph
}

// ParseStandardRecord decodes and validates one standards parse-record.
func ParseStandardRecord(data []byte, file string) (*StandardRecord, error) {
	var rec StandardRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &ParseError{File: file, Reason: "invalid JSON", Err: err}
	}
	if rec.DocID == "" {
		return nil, &ParseError{File: file, Reason: "record has no doc_id"}
	}
	if len(rec.Paragraphs) == 0 {
		return nil, &ParseError{File: file, Reason: "record has no paragraphs"}
	}
	return &rec, nil
}

// DocIDFromFile derives a document ID from a source filename.
func DocIDFromFile(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(strings.TrimSpace(base), " ", "_")
}

// Translate turns a parse-record into hierarchy nodes and clause
// paragraphs. Paragraphs that open with a clause or 문단 marker start a
// node for that provision; markerless paragraphs continue the previous
// one.
func (r *StandardRecord) Translate() StandardsDoc {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = r.DocID
	}
	b := newStandardsBuilder(r.DocID, title, r.SourceFile)

	for i, p := range r.Paragraphs {
		text := CleanText(DropRepeatedTrailingLine(p.Text))
		if text == "" {
			continue
		}
		if m := clauseHeadingPattern.FindStringSubmatch(text); m != nil {
			b.enterClause(m[1], m[2], clauseDisplayPattern.FindString(text))
		} else if m := paraHeadingPattern.FindStringSubmatch(text); m != nil {
			b.enterParagraphNode(m[1])
		}
		paraID := p.ParaID
		if paraID == "" {
			paraID = "p" + pad3(i+1)
		}
		b.doc.Paragraphs = append(b.doc.Paragraphs, ClauseParagraph{
			NodeID: b.current,
			ParaID: paraID,
			Page:   p.Page,
			Text:   text,
		})
	}
	b.doc.Source.DocType = b.docType()
	return b.doc
}

// ExtractMarkdownStandard parses a markdown standards document into
// hierarchy nodes and paragraphs. Headings become nodes nested by
// heading level; body text is packed into paragraphs of at most
// maxParagraphRunes runes.
func ExtractMarkdownStandard(content []byte, filename string) StandardsDoc {
	docID := DocIDFromFile(filename)
	root := markdown.Parser().Parse(gtext.NewReader(content))

	title := extractDocTitle(root, content, filename)
	b := newStandardsBuilder(docID, title, filepath.Base(filename))

	var section []string
	flush := func() {
		if len(section) == 0 {
			return
		}
		for _, piece := range packParagraphs(section) {
			b.doc.Paragraphs = append(b.doc.Paragraphs, ClauseParagraph{
				NodeID: b.current,
				ParaID: b.nextParaID(),
				Text:   piece,
			})
		}
		section = section[:0]
	}

	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		if h, ok := child.(*ast.Heading); ok {
			flush()
			b.enterHeading(h.Level, blockText(h, content))
			continue
		}
		text := CleanText(DropRepeatedTrailingLine(blockText(child, content)))
		if text != "" {
			section = append(section, text)
		}
	}
	flush()
	b.doc.Source.DocType = b.docType()
	return b.doc
}

// standardsBuilder accumulates nodes while walking one document. The
// stack tracks heading nesting so provisions attach to the enclosing
// chapter or section.
type standardsBuilder struct {
	doc       StandardsDoc
	rootID    string
	current   string
	stack     []stackEntry
	seen      map[string]struct{}
	seq       int
	sawClause bool
	sawPara   bool
}

type stackEntry struct {
	level  int
	nodeID string
}

func newStandardsBuilder(docID, title, sourceFile string) *standardsBuilder {
	b := &standardsBuilder{
		rootID:  docID,
		current: docID,
		seen:    map[string]struct{}{docID: {}},
	}
	b.doc = StandardsDoc{
		Source: chunk.Source{
			ID:        docID,
			DocType:   "standard",
			File:      sourceFile,
			SectionID: docID,
			Title:     title,
		},
		Nodes: []hierarchy.Node{{
			ID:          docID,
			DisplayName: title,
			DocumentID:  docID,
		}},
	}
	return b
}

func (b *standardsBuilder) nextParaID() string {
	b.seq++
	return "p" + pad3(b.seq)
}

func pad3(n int) string {
	s := []byte{'0', '0', '0'}
	for i := 2; i >= 0 && n > 0; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}
	return string(s)
}

// enterHeading classifies a markdown heading and opens a node for it.
// A level-1 heading repeating the document title resets to the root.
func (b *standardsBuilder) enterHeading(level int, text string) {
	text = CleanText(text)
	if text == "" {
		return
	}
	if level == 1 && text == b.doc.Source.Title {
		b.stack = b.stack[:0]
		b.current = b.rootID
		return
	}
	for len(b.stack) > 0 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}

	var nodeID string
	var aliases []string
	switch {
	case clauseHeadingPattern.MatchString(text):
		m := clauseHeadingPattern.FindStringSubmatch(text)
		nodeID, aliases = clauseNode(b.rootID, m[1], m[2])
		b.sawClause = true
	case paraHeadingPattern.MatchString(text):
		m := paraHeadingPattern.FindStringSubmatch(text)
		nodeID = b.rootID + "_문단" + m[1]
		aliases = []string{"문단 " + m[1], "문단" + m[1]}
		b.sawPara = true
	case chapterHeadingPattern.MatchString(text):
		m := chapterHeadingPattern.FindStringSubmatch(text)
		nodeID = b.rootID + "_" + m[1] + m[2]
		aliases = []string{"제" + m[1] + m[2]}
	default:
		b.seq++
		nodeID = b.rootID + "_h" + pad3(b.seq)
	}
	b.addNode(nodeID, text, aliases)
	b.stack = append(b.stack, stackEntry{level: level, nodeID: nodeID})
	b.current = nodeID
}

// enterClause opens a clause node detected from paragraph text.
func (b *standardsBuilder) enterClause(mainStr, subStr, display string) {
	nodeID, aliases := clauseNode(b.rootID, mainStr, subStr)
	if display == "" {
		display = aliases[0]
	}
	b.addNode(nodeID, display, aliases)
	b.current = nodeID
	b.sawClause = true
}

func (b *standardsBuilder) enterParagraphNode(num string) {
	nodeID := b.rootID + "_문단" + num
	b.addNode(nodeID, "문단 "+num, []string{"문단 " + num, "문단" + num})
	b.current = nodeID
	b.sawPara = true
}

// docType classifies the finished document. 기준서/해석서 titles and
// 문단-numbered provisions mark accounting standards; text organized by
// 조 provisions is statute law.
func (b *standardsBuilder) docType() string {
	title := b.doc.Source.Title
	if strings.Contains(title, "기준서") || strings.Contains(title, "해석서") || b.sawPara {
		return "standard"
	}
	if b.sawClause {
		return "legal_code"
	}
	return "standard"
}

func clauseNode(docID, mainStr, subStr string) (string, []string) {
	main, sub := atoiSafe(mainStr), atoiSafe(subStr)
	id := docID + "_" + mainStr
	if sub > 0 {
		id += "의" + subStr
	}
	return id, hierarchy.ClauseAliasesFor(main, sub)
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func (b *standardsBuilder) addNode(id, display string, aliases []string) {
	if _, ok := b.seen[id]; ok {
		return
	}
	b.seen[id] = struct{}{}
	parentID := b.rootID
	if len(b.stack) > 0 {
		parentID = b.stack[len(b.stack)-1].nodeID
	}
	b.doc.Nodes = append(b.doc.Nodes, hierarchy.Node{
		ID:          id,
		DisplayName: display,
		ParentID:    parentID,
		DocumentID:  b.rootID,
		Aliases:     aliases,
	})
}

// extractDocTitle returns the first H1, else the first H2, else the
// filename without its extension.
func extractDocTitle(root ast.Node, source []byte, filename string) string {
	var h1, h2 string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			text := CleanText(blockText(h, source))
			if h.Level == 1 && h1 == "" {
				h1 = text
				return ast.WalkStop, nil
			}
			if h.Level == 2 && h2 == "" {
				h2 = text
			}
		}
		return ast.WalkContinue, nil
	})
	if h1 != "" {
		return h1
	}
	if h2 != "" {
		return h2
	}
	return DocIDFromFile(filename)
}

// blockText collects the visible text of a block node. Table cells are
// separated with spaces so row values do not run together.
func blockText(node ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, ok := n.(*extast.TableCell); ok {
				sb.WriteByte(' ')
			}
			if _, ok := n.(*ast.Paragraph); ok {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// packParagraphs joins cleaned blocks into pieces of at most
// maxParagraphRunes runes, keeping each piece at least
// minParagraphRunes when a boundary allows it.
func packParagraphs(blocks []string) []string {
	var pieces []string
	var cur strings.Builder
	curRunes := 0
	flush := func() {
		if curRunes == 0 {
			return
		}
		pieces = append(pieces, cur.String())
		cur.Reset()
		curRunes = 0
	}
	for _, block := range blocks {
		r := utf8.RuneCountInString(block)
		if curRunes >= minParagraphRunes && curRunes+r+1 > maxParagraphRunes {
			flush()
		}
		if curRunes > 0 {
			cur.WriteByte(' ')
			curRunes++
		}
		cur.WriteString(block)
		curRunes += r
	}
	flush()

	var out []string
	for _, p := range pieces {
		out = append(out, splitLongText(p, maxParagraphRunes)...)
	}
	return out
}

// splitLongText cuts an oversized piece at the last sentence end before
// the limit, falling back to the last space, then to a hard cut.
func splitLongText(s string, max int) []string {
	runes := []rune(s)
	if len(runes) <= max {
		return []string{s}
	}
	var parts []string
	for len(runes) > max {
		cut := sentenceCut(runes, max)
		part := strings.TrimSpace(string(runes[:cut]))
		if part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func sentenceCut(runes []rune, max int) int {
	for i := max; i > max/2; i-- {
		switch runes[i-1] {
		case '.', '!', '?', '。', ';', '；':
			return i
		}
	}
	for i := max; i > max/2; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}
	return max
}
