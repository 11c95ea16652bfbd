// Package transform implements the per-field value transformations shared by
// every migration stage: string sanitization with reversible marker tokens,
// safe decoding of embedded list/dict literals, category flattening, ratio
// computation, and column-length gates.
//
// All transforms are pure functions. Row-level failures are reported as
// ordinary errors and collected by callers; nothing here panics on bad input.
package transform

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// replacement maps a problematic character sequence to its marker token.
// Order matters: the "=\ " sequence must be rewritten before the lone
// backslash rule would split it.
type replacement struct {
	from, to string
}

var sanitizeTable = []replacement{
	{`=\ `, "__EQ_BACKSLASH__"},
	{`\`, "__BACKSLASH__"},
	{`'`, "__SINGLE_QUOTE__"},
	{`"`, "__DOUBLE_QUOTE__"},
	{"\n", "__NEWLINE__"},
	{"\r", "__CARRIAGE_RETURN__"},
	{"\t", "__TAB__"},
}

// restoreTable is the inverse of sanitizeTable minus the tab rule: tabs are
// sanitized away on ingest and intentionally never come back, so Restore
// leaves a literal __TAB__ marker in place. Lossy for tabs only.
var restoreTable = []replacement{
	{"__EQ_BACKSLASH__", `=\ `},
	{"__BACKSLASH__", `\`},
	{"__SINGLE_QUOTE__", `'`},
	{"__DOUBLE_QUOTE__", `"`},
	{"__NEWLINE__", "\n"},
	{"__CARRIAGE_RETURN__", "\r"},
}

var multiSpace = regexp.MustCompile(`\s{2,}`)

// stripNonPrint drops control runes (other than the ones the marker table
// handles explicitly) after NFC normalization.
var stripNonPrint = transform.Chain(norm.NFC, runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
})))

// Sanitize rewrites characters that break tab-separated bulk loads into
// unique marker tokens and collapses any run of two or more whitespace
// characters into a single space.
func Sanitize(s string) string {
	if cleaned, _, err := transform.String(stripNonPrint, s); err == nil {
		s = cleaned
	}
	for _, r := range sanitizeTable {
		s = strings.ReplaceAll(s, r.from, r.to)
	}
	return multiSpace.ReplaceAllString(s, " ")
}

// Restore maps marker tokens back to their original characters. Tabs are not
// restored; see restoreTable.
func Restore(s string) string {
	for _, r := range restoreTable {
		s = strings.ReplaceAll(s, r.from, r.to)
	}
	return s
}
