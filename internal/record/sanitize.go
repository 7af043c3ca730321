// Package record turns positional rows into quoted, escaped delimited text
// records.
//
// Every field goes through the same steps: text conversion, optional Unicode
// normalisation, Clean (trim, control-character removal, whitespace collapse)
// and Quote (double embedded quotes, wrap in quotes). Clean is idempotent and
// all helpers are total over arbitrary byte content: invalid UTF-8 is replaced
// by U+FFFD rather than rejected.
package record

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clean trims s, drops control characters below U+0020 and collapses every
// run of whitespace into a single ASCII space.
//
// Tab, LF, VT, FF and CR are whitespace, not garbage: they collapse to a space
// instead of disappearing, so "b\t\tc" becomes "b c".
func Clean(s string) string {
	if s == "" {
		return s
	}
	if isClean(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			// Emit lazily so leading and trailing runs vanish.
			pendingSpace = b.Len() > 0
		case r < 0x20:
			// control character: dropped
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			// RuneError for invalid bytes is written as U+FFFD.
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isClean reports whether Clean(s) == s, which is the common case for well
// behaved data and lets Clean skip the allocation.
func isClean(s string) bool {
	prevSpace := true // a leading space is not clean
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				return false
			}
		}
		switch {
		case r == ' ':
			if prevSpace {
				return false
			}
			prevSpace = true
		case unicode.IsSpace(r), r < 0x20:
			return false
		default:
			prevSpace = false
		}
	}
	return !prevSpace
}

// Quote doubles embedded double quotes and wraps the result in double quotes.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	appendQuoted(&b, s)
	return b.String()
}

func appendQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for {
		i := strings.IndexByte(s, '"')
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i+1])
		b.WriteByte('"')
		s = s[i+1:]
	}
	b.WriteByte('"')
}

// Field applies Clean then Quote.
func Field(s string) string { return Quote(Clean(s)) }
