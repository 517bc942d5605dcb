package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// sanitizeText trims profile input and escapes HTML-significant characters.
// Task, bid and chat text is stored as typed and escaped where it is rendered.
func sanitizeText(s string) string {
	return htmlEscaper.Replace(strings.TrimSpace(s))
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\+]?[\d\s\-\(\)]{10,20}$`)
)

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
