package security

import (
	"fmt"
	"regexp"
	"strings"

	"supportcore/internal/apperr"
)

// DefaultMaxContentLength is MAX_CONTENT's default.
const DefaultMaxContentLength = 4000

// injectionPatterns match common prompt-injection and jailbreak phrasings.
// Each is tagged with the category surfaced in the ContentBlocked error.
var injectionPatterns = []struct {
	category string
	pattern  *regexp.Regexp
}{
	{"prompt_injection", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`)},
	{"prompt_injection", regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules)`)},
	{"prompt_injection", regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you\s+)?(were\s+)?told`)},
	{"jailbreak", regexp.MustCompile(`(?i)\bact\s+as\s+(if\s+you\s+are\s+)?(an?\s+)?(unrestricted|unfiltered|jailbroken)`)},
	{"jailbreak", regexp.MustCompile(`(?i)\broleplay\s+as\b`)},
	{"jailbreak", regexp.MustCompile(`(?i)\bDAN\b.{0,20}(mode|prompt)`)},
	{"system_prompt_extraction", regexp.MustCompile(`(?i)(reveal|print|repeat|show)\s+(your|the)\s+(system\s+prompt|instructions)`)},
	{"system_prompt_extraction", regexp.MustCompile(`(?i)what\s+(are|were)\s+your\s+(original\s+)?instructions`)},
}

// ContentFilter rejects messages that carry prompt-injection/jailbreak
// patterns or exceed the configured length cap.
type ContentFilter struct {
	maxLength int
}

// NewContentFilter builds a ContentFilter. maxLength <= 0 falls back to
// DefaultMaxContentLength.
func NewContentFilter(maxLength int) *ContentFilter {
	if maxLength <= 0 {
		maxLength = DefaultMaxContentLength
	}
	return &ContentFilter{maxLength: maxLength}
}

// Check inspects text and returns an apperr.ContentBlocked error naming the
// offending category, or nil if the content passes.
func (f *ContentFilter) Check(text string) error {
	if len(text) > f.maxLength {
		return apperr.New(apperr.ContentBlocked, fmt.Sprintf("content exceeds max length of %d", f.maxLength)).
			WithDetails(map[string]any{"category": "length_exceeded"})
	}
	trimmed := strings.TrimSpace(text)
	for _, p := range injectionPatterns {
		if p.pattern.MatchString(trimmed) {
			return apperr.New(apperr.ContentBlocked, "content matched a blocked pattern").
				WithDetails(map[string]any{"category": p.category})
		}
	}
	return nil
}
