package security

import (
	"html"
	"regexp"
	"strings"
)

var repeatedWhitespace = regexp.MustCompile(`[ \t]{2,}`)
var repeatedBlankLines = regexp.MustCompile(`\n{3,}`)

// Sanitize HTML-escapes text and normalizes whitespace. It runs last, after
// rate limiting, PII redaction, and content filtering have all passed.
func Sanitize(text string) string {
	escaped := html.EscapeString(text)
	escaped = repeatedWhitespace.ReplaceAllString(escaped, " ")
	escaped = repeatedBlankLines.ReplaceAllString(escaped, "\n\n")

	lines := strings.Split(escaped, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
