// Package sanitize cleans text typed or pasted into the shell.
//
// Lines pasted from documents and chat tools often carry characters that
// are invisible on screen but break name matching:
//   - Windows/Mac line endings (CRLF/CR)
//   - Invisible Unicode characters (zero-width spaces, BOM, etc.)
package sanitize

import (
	"strings"
)

var invisibleChars = strings.NewReplacer(
	"\u200B", "", // Zero-width space
	"\u200C", "", // Zero-width non-joiner
	"\u200D", "", // Zero-width joiner
	"\uFEFF", "", // Zero-width no-break space (BOM)
	"\u00AD", "", // Soft hyphen
	"\u2060", "", // Word joiner
	"\u180E", "", // Mongolian vowel separator
)

// Line strips the line ending, invisible characters and surrounding
// whitespace from one input line. Inner whitespace is kept since file names
// may contain runs of spaces.
func Line(s string) string {
	if s == "" {
		return s
	}
	s = strings.TrimRight(s, "\r\n")
	s = invisibleChars.Replace(s)
	return strings.TrimSpace(s)
}

// Name cleans a file or folder name: invisible characters are removed and
// control characters are rejected by returning "".
func Name(s string) string {
	s = Line(s)
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return ""
		}
	}
	return s
}
