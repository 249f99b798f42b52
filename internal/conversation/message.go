package conversation

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one entry of the conversation. Name identifies the agent that
// produced an assistant message, if any.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AgentMessage(agent AgentID, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Name: string(agent)}
}

// LastAssistant returns the most recent assistant message.
func LastAssistant(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return msgs[i], true
		}
	}
	return Message{}, false
}

// Transcript renders messages as "role(name): content" lines.
func Transcript(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		if m.Name != "" {
			fmt.Fprintf(&sb, "%s(%s): %s\n", m.Role, m.Name, m.Content)
		} else {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	return sb.String()
}
