package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
)

const summaryPrompt = `Summarize the key points from this conversation, focusing on:
1. The user's main problem or question
2. Important part numbers or model numbers mentioned
3. Key findings or solutions discussed
Keep only the most relevant information.`

// Summarize keeps the last keepLast messages and replaces everything before
// them with a single system message summarizing it.
func Summarize(ctx context.Context, m llm.Model, msgs []conversation.Message, keepLast int) ([]conversation.Message, error) {
	if keepLast <= 0 || len(msgs) <= keepLast {
		return msgs, nil
	}
	older, recent := msgs[:len(msgs)-keepLast], msgs[len(msgs)-keepLast:]

	var sb strings.Builder
	sb.WriteString(summaryPrompt)
	sb.WriteString("\n\nConversation:\n")
	for _, msg := range older {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}

	res, err := llm.Invoke(ctx, m, llm.Call{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: sb.String()}},
	})
	if err != nil {
		return nil, err
	}

	out := make([]conversation.Message, 0, keepLast+1)
	out = append(out, conversation.Message{
		Role:    conversation.RoleSystem,
		Content: "Previous conversation summary: " + strings.TrimSpace(res.Text),
	})
	return append(out, recent...), nil
}
