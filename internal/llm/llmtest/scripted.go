// Package llmtest provides a scripted llm.Model for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mtzanidakis/counterman/internal/llm"
)

var ErrExhausted = errors.New("scripted model: no responses left")

// Step is one scripted reply. Exactly one of the fields is normally set.
type Step struct {
	Text string
	// Output is sent as a call to whatever output tool the request offers.
	Output any
	// ToolCalls are returned as-is.
	ToolCalls []llm.ToolUse
	Err       error
}

// Text replies with plain text.
func Text(s string) Step { return Step{Text: s} }

// Output replies by calling the request's output tool with v.
func Output(v any) Step { return Step{Output: v} }

// CallTool replies with a single tool call.
func CallTool(name string, input any) Step {
	raw, _ := json.Marshal(input)
	return Step{ToolCalls: []llm.ToolUse{{ID: "toolu_" + name, Name: name, Input: raw}}}
}

func Fail(err error) Step { return Step{Err: err} }

// Scripted replies with queued steps in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
}

func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Push(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

func (s *Scripted) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.steps) == 0 {
		return nil, ErrExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]

	if step.Err != nil {
		return nil, step.Err
	}
	if step.Output != nil {
		if len(req.Tools) == 0 {
			return nil, fmt.Errorf("scripted model: output step but request offers no tools")
		}
		raw, err := json.Marshal(step.Output)
		if err != nil {
			return nil, fmt.Errorf("scripted model: marshal output: %w", err)
		}
		// The output tool is always the last one offered.
		out := req.Tools[len(req.Tools)-1].Name
		return &llm.Response{
			ToolCalls:  []llm.ToolUse{{ID: "toolu_output", Name: out, Input: raw}},
			StopReason: llm.StopToolUse,
		}, nil
	}
	if len(step.ToolCalls) > 0 {
		return &llm.Response{Content: step.Text, ToolCalls: step.ToolCalls, StopReason: llm.StopToolUse}, nil
	}
	return &llm.Response{Content: step.Text, StopReason: llm.StopEndTurn}, nil
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Remaining reports how many scripted steps have not been consumed.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
