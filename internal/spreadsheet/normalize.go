// Package spreadsheet turns a downloaded settlement spreadsheet into a
// classified, column-indexed document. Header cells in portal exports are
// fragile: the same logical header appears with embedded line breaks,
// doubled spaces or stray control characters depending on which upstream
// system produced the file, so all matching happens on normalized text.
package spreadsheet

import (
	"strings"
	"unicode"
)

// NormalizeHeader canonicalizes a header cell for vocabulary matching:
// control characters (including embedded line breaks) are dropped, runs of
// whitespace collapse to nothing, and ASCII letters are upper-cased. Thai
// text has no case, so case folding only affects mixed Latin headers like
// "Rep No.".
func NormalizeHeader(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
			// Embedded \n, \r, \t inside header cells.
		case unicode.IsSpace(r):
			// Headers never depend on internal spacing; collapsing it
			// entirely makes "เลขที่เบิก ใหม่" and "เลขที่เบิกใหม่" equal.
		case r == '\uFEFF' || r == '\u200B':
			// BOM and zero-width space show up in some exports.
		default:
			sb.WriteRune(unicode.ToUpper(r))
		}
	}
	return strings.TrimSuffix(sb.String(), ".")
}
