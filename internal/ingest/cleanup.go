// Package ingest parses financial statement parse-records and markdown
// standards into hierarchy nodes, fact values and chunk inputs.
package ingest

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun    = regexp.MustCompile(`\s+`)
	escapedBreakPair = regexp.MustCompile(`\\n\\n`)
	escapedBreak     = regexp.MustCompile(`\\n`)
	hangulGap        = regexp.MustCompile(`([가-힣])\s+([가-힣])`)

	// Continuation markers left behind by table extraction, e.g. a
	// statement page footer reading "재무상태표, 계속;".
	continuationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*,?\s*계속\s*[;：:]\s*`),
		regexp.MustCompile(`\s*,?\s*계속\s*$`),
		regexp.MustCompile(`\s*;\s*$`),
		regexp.MustCompile(`\s*：\s*$`),
		regexp.MustCompile(`\s*:\s*$`),
	}
)

// CleanText normalizes extracted text: non-breaking spaces become spaces,
// whitespace runs collapse, literal \n escapes are unwrapped and trailing
// continuation markers are stripped.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, " ", " ")
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))

	text = escapedBreakPair.ReplaceAllString(text, "\n")
	text = escapedBreak.ReplaceAllString(text, " ")

	for _, p := range continuationPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// CleanAccountName applies CleanText and additionally closes gaps between
// Hangul syllables, repairing table cells extracted as "유 동 자 산".
func CleanAccountName(name string) string {
	name = CleanText(name)
	for hangulGap.MatchString(name) {
		name = hangulGap.ReplaceAllString(name, "$1$2")
	}
	return name
}

// DropRepeatedTrailingLine removes the final line of a paragraph when it
// exactly repeats the line before it, a common page-break artifact. Only
// the exact-duplicate case is handled.
func DropRepeatedTrailingLine(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	prev := strings.TrimSpace(lines[len(lines)-2])
	if last != "" && last == prev {
		return strings.Join(lines[:len(lines)-1], "\n")
	}
	return text
}
