package llm

import (
	"regexp"
	"strings"
)

const (
	// MaxHistoryMessages bounds how many recent turns are sent to a model,
	// oldest-first, once the fixed instruction and summary are prepended.
	MaxHistoryMessages = 15
	// MaxMessageChars truncates any single history message before it is
	// forwarded, so one oversized turn cannot crowd out the rest.
	MaxMessageChars = 2000
	// MinOutputTokens is the floor the output token budget never drops
	// below, even when the estimated input is large.
	MinOutputTokens = 256

	// MaxResponseChars caps a shaped model response before it reaches a
	// client.
	MaxResponseChars = 1000
)

// AssemblePrompt builds the message list sent to a provider: the fixed
// system instruction, then the rolling summary (if any) as a second system
// turn, then up to MaxHistoryMessages of the most recent conversation
// turns, each truncated to MaxMessageChars. It is a pure function so
// callers (internal/pipeline, tests) never need a live session actor to
// exercise prompt construction.
func AssemblePrompt(systemInstruction, summary string, history []Message) []Message {
	out := make([]Message, 0, len(history)+2)

	if s := strings.TrimSpace(systemInstruction); s != "" {
		out = append(out, Message{Role: "system", Content: s})
	}
	if s := strings.TrimSpace(summary); s != "" {
		out = append(out, Message{Role: "system", Content: "Conversation summary so far: " + s})
	}

	recent := history
	if len(recent) > MaxHistoryMessages {
		recent = recent[len(recent)-MaxHistoryMessages:]
	}
	for _, m := range recent {
		m.Content = truncateRunes(m.Content, MaxMessageChars)
		out = append(out, m)
	}
	return out
}

// OutputTokenBudget computes how many output tokens a request may use:
// the model's total token ceiling minus the estimated input size, floored
// at MinOutputTokens so a long history never leaves no room to respond.
func OutputTokenBudget(maxTokens int, messages []Message) int {
	budget := maxTokens - EstimateTokensForMessages(messages)
	if budget < MinOutputTokens {
		return MinOutputTokens
	}
	return budget
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// injectionEchoPatterns catches the common family of prompt-injection
// artifacts a model can end up echoing back from an attacker-controlled
// upstream message (a tool result, a pasted document) rather than
// genuinely stating as its own instruction.
var injectionEchoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all|any)? ?(the )?previous instructions?`),
	regexp.MustCompile(`(?i)disregard (all|any)? ?(the )?(above|prior) instructions?`),
	regexp.MustCompile(`(?i)forget (everything|all) (you('ve| have))? ?(been told|learned) (so far )?`),
	regexp.MustCompile(`(?i)you are now (in )?.*? mode`),
	regexp.MustCompile(`(?i)system prompt:?\s*`),
}

// ShapeResponse applies the fixed post-processing every model response
// goes through before reaching a client: strip echoed injection
// artifacts, cap the length, and make sure it ends on a sentence
// boundary rather than mid-word.
func ShapeResponse(content string) string {
	for _, p := range injectionEchoPatterns {
		content = p.ReplaceAllString(content, "")
	}
	content = collapseBlankRuns(strings.TrimSpace(content))

	r := []rune(content)
	if len(r) > MaxResponseChars {
		content = strings.TrimSpace(string(r[:MaxResponseChars]))
	}
	if content == "" {
		return content
	}
	if !endsSentenceTerminal(content) {
		content += "."
	}
	return content
}

func endsSentenceTerminal(s string) bool {
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

var blankRunPattern = regexp.MustCompile(`[ \t]{2,}`)

func collapseBlankRuns(s string) string {
	return strings.TrimSpace(blankRunPattern.ReplaceAllString(s, " "))
}
