package memory

import (
	"context"
	"fmt"
	"strings"

	"supportcore/internal/llm"
)

const maxSummaryChars = 1200

// summarize asks the LLM layer to fold chunk into a running summary.
func summarize(ctx context.Context, provider llm.Provider, model string, existing string, chunk []ChatMessage) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Update the running summary of this support conversation. Keep it concise but information-dense.\n")
	prompt.WriteString("Preserve the user's goal, account/order identifiers, decisions made, tool results, and open questions.\n")
	if strings.TrimSpace(existing) != "" {
		prompt.WriteString("\nExisting summary:\n")
		prompt.WriteString(strings.TrimSpace(existing))
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("New conversation turns:\n")
	for _, msg := range chunk {
		prompt.WriteString("\nRole: ")
		prompt.WriteString(msg.Role)
		if msg.ToolID != "" {
			prompt.WriteString(" (tool_id=" + msg.ToolID + ")")
		}
		prompt.WriteString("\n")
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			content = "(no content)"
		}
		prompt.WriteString(content)
		prompt.WriteString("\n")
	}
	prompt.WriteString(fmt.Sprintf("\nReturn only the updated summary. Aim for <= %d characters.", maxSummaryChars))

	msgs := []llm.Message{
		{Role: "system", Content: "You are a concise summarizer for customer support conversations."},
		{Role: "user", Content: prompt.String()},
	}

	resp, err := provider.Chat(ctx, msgs, nil, model)
	if err != nil {
		return existing, fmt.Errorf("summarize conversation: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return existing, fmt.Errorf("summarizer returned empty summary")
	}
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars]
	}
	return summary, nil
}
