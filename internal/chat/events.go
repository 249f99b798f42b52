package chat

import (
	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/graph"
)

// StepEvent is published on turn.<id>.step after every graph step.
type StepEvent struct {
	TurnID         string                     `json:"turn_id"`
	Index          int                        `json:"index"`
	Node           string                     `json:"node"`
	Goto           string                     `json:"goto"`
	DurationMS     int64                      `json:"duration_ms"`
	Messages       []conversation.Message     `json:"messages,omitempty"`
	PendingRequest *conversation.AgentRequest `json:"pending_request,omitempty"`
	CurrentAgent   string                     `json:"current_agent,omitempty"`
}

func newStepEvent(turnID string, s graph.Step) StepEvent {
	return StepEvent{
		TurnID:         turnID,
		Index:          s.Index,
		Node:           string(s.Node),
		Goto:           string(s.Goto),
		DurationMS:     s.Duration.Milliseconds(),
		Messages:       s.Patch.Messages,
		PendingRequest: s.State.PendingRequest,
		CurrentAgent:   string(s.State.CurrentAgent),
	}
}

// TurnEvent is published when a turn starts and when it finishes.
type TurnEvent struct {
	TurnID          string   `json:"turn_id"`
	Channel         string   `json:"channel"`
	ConversationKey string   `json:"conversation_key,omitempty"`
	Status          string   `json:"status"`
	Steps           int      `json:"steps,omitempty"`
	Path            []string `json:"path,omitempty"`
	Reply           string   `json:"reply,omitempty"`
	OutputImage     string   `json:"output_image,omitempty"`
	Error           string   `json:"error,omitempty"`
	DurationMS      int64    `json:"duration_ms,omitempty"`
}
