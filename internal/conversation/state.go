package conversation

import (
	"context"
	"maps"
)

// Scratch keys written by the supervisor.
const (
	ErrorKey = "error"
	RouteKey = "route"
)

// State is the unit of truth threaded through every node of one turn.
type State struct {
	Messages       []Message      `json:"messages"`
	CurrentAgent   AgentID        `json:"current_agent,omitempty"`
	PendingRequest *AgentRequest  `json:"pending_request,omitempty"`
	Dispatched     *AgentRequest  `json:"dispatched,omitempty"` // request being fulfilled by CurrentAgent
	Scratch        map[string]any `json:"conversation_state,omitempty"`
	OutputImage    string         `json:"output_image,omitempty"`
	Responses      ResponseQueue  `json:"responses,omitempty"`
}

func NewState(msgs []Message) State {
	return State{
		Messages:     append([]Message(nil), msgs...),
		CurrentAgent: Supervisor,
		Scratch:      make(map[string]any),
	}
}

func (s State) Clone() State {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	if s.PendingRequest != nil {
		r := *s.PendingRequest
		out.PendingRequest = &r
	}
	if s.Dispatched != nil {
		r := *s.Dispatched
		out.Dispatched = &r
	}
	out.Scratch = maps.Clone(s.Scratch)
	out.Responses = s.Responses.Clone()
	return out
}

// ErrorNote returns the error annotation left by the supervisor, if any.
func (s State) ErrorNote() string {
	v, _ := s.Scratch[ErrorKey].(string)
	return v
}

// Patch is the explicit set of changes a node asks the runner to apply.
// Unset fields leave the state untouched.
type Patch struct {
	Messages            []Message
	CurrentAgent        *AgentID
	PendingRequest      *AgentRequest
	ClearPending        bool
	Dispatched          *AgentRequest
	ClearDispatched     bool
	Scratch             map[string]any
	OutputImage         *string
	Responses           []AgentResponse
	ConsumeResponsesFor AgentID
}

func (p Patch) Empty() bool {
	return len(p.Messages) == 0 && p.CurrentAgent == nil && p.PendingRequest == nil &&
		!p.ClearPending && p.Dispatched == nil && !p.ClearDispatched && len(p.Scratch) == 0 &&
		p.OutputImage == nil && len(p.Responses) == 0 && p.ConsumeResponsesFor == ""
}

// Merge applies p to a copy of s. Precedence: messages are appended, never
// removed; clears apply before sets, so a patch carrying both a clear and a
// new PendingRequest ends with the new one; a set PendingRequest always
// replaces the previous one; scratch keys overwrite; consumed responses are
// removed before new responses are queued.
func Merge(s State, p Patch) State {
	out := s.Clone()

	out.Messages = append(out.Messages, p.Messages...)

	if p.CurrentAgent != nil {
		out.CurrentAgent = *p.CurrentAgent
	}

	if p.ClearPending {
		out.PendingRequest = nil
	}
	if p.PendingRequest != nil {
		r := *p.PendingRequest
		out.PendingRequest = &r
	}

	if p.ClearDispatched {
		out.Dispatched = nil
	}
	if p.Dispatched != nil {
		r := *p.Dispatched
		out.Dispatched = &r
	}

	if len(p.Scratch) > 0 {
		if out.Scratch == nil {
			out.Scratch = make(map[string]any, len(p.Scratch))
		}
		maps.Copy(out.Scratch, p.Scratch)
	}

	if p.OutputImage != nil {
		out.OutputImage = *p.OutputImage
	}

	if p.ConsumeResponsesFor != "" {
		out.Responses.Consume(p.ConsumeResponsesFor)
	}
	for _, r := range p.Responses {
		out.Responses = out.Responses.Push(r)
	}

	return out
}

// Command is a node's result: where to go next and what to change.
type Command struct {
	Goto  AgentID
	Patch Patch
}

// Node is one participant of the conversation graph. Nodes receive the state
// by value and never keep a handle to it.
type Node interface {
	Run(ctx context.Context, st State) (Command, error)
}

type NodeFunc func(ctx context.Context, st State) (Command, error)

func (f NodeFunc) Run(ctx context.Context, st State) (Command, error) {
	return f(ctx, st)
}

func Ptr[T any](v T) *T {
	return &v
}
