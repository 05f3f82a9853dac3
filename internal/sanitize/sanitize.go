// Package sanitize cleans text returned by action proposers before it is
// stored on scenario nodes or echoed back into later proposal prompts. It
// strips control characters, markdown hierarchy markers, XML/HTML tags and
// code fences so a model cannot plant instructions in the exploration tree.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nvandessel/adoptsim/internal/constants"
)

var (
	// reXMLTag matches XML/HTML tags including attributes, self-closing tags
	// and processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reHorizontalRule  = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	reTripleBacktick  = regexp.MustCompile("```+")
	reWhitespaceRun   = regexp.MustCompile(`\s+`)
	reUnderscoreRun   = regexp.MustCompile(`_{2,}`)
)

// Rationale sanitizes a proposer's free-text rationale.
//
// The pipeline runs in this order:
//  1. Strip ASCII control characters other than newline and tab
//  2. Strip XML/HTML tags
//  3. Drop markdown heading markers and horizontal rules
//  4. Collapse code fences to a single backtick
//  5. Collapse whitespace runs and trim
//  6. Truncate to constants.MaxRationaleLen bytes on a rune boundary
func Rationale(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "")
	s = reHorizontalRule.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reWhitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return truncate(s, constants.MaxRationaleLen)
}

// Category normalizes an action category to a lowercase snake_case token
// of at most constants.MaxCategoryLen bytes. Anything that is not a letter
// or digit becomes an underscore. An input with no usable characters
// yields "".
func Category(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.ToLower(input) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	s := reUnderscoreRun.ReplaceAllString(b.String(), "_")
	s = strings.Trim(s, "_")
	if len(s) > constants.MaxCategoryLen {
		s = strings.TrimRight(s[:constants.MaxCategoryLen], "_")
	}
	return s
}

// stripControlChars removes ASCII control characters except newline and
// tab. Carriage returns become newlines.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == '\r':
			b.WriteByte('\n')
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
