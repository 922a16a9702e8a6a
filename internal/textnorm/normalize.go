// Package textnorm produces canonical comparison keys for free-form policy
// text. Two texts that differ only in case, punctuation, or spacing normalize
// to the same key.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases text, strips every rune that is neither a word
// character nor whitespace, collapses whitespace runs to single spaces, and
// trims. The empty string maps to the empty key.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = nonWordRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
