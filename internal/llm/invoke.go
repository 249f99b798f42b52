package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const DefaultMaxToolRounds = 8

var (
	// ErrNoStructuredOutput means the model answered without a parsable
	// structured result. Callers treat it as "nothing requested".
	ErrNoStructuredOutput = errors.New("no structured output")
	// ErrSchemaMismatch means the structured result did not match the
	// requested shape.
	ErrSchemaMismatch = errors.New("structured output does not match schema")
	ErrToolLoop       = errors.New("tool-use loop exceeded")
)

// OutputSpec is the structured shape requested from the model. It is
// offered as a terminal tool: calling it ends the exchange and its input is
// the result.
type OutputSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

type Call struct {
	System        string
	Messages      []Message
	Tools         []Tool
	Output        *OutputSpec
	MaxToolRounds int
}

type Result struct {
	Text       string
	Structured json.RawMessage
	Rounds     int
	Usage      Usage
}

// Invoke runs the tool-use loop until the model stops calling tools, calls
// the output tool, or exceeds MaxToolRounds. Model errors are returned as-is
// (wrapped); there are no retries.
func Invoke(ctx context.Context, m Model, c Call) (*Result, error) {
	maxRounds := c.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}

	byName := make(map[string]Tool, len(c.Tools))
	defs := make([]ToolDefinition, 0, len(c.Tools)+1)
	for _, t := range c.Tools {
		d := t.Definition()
		byName[d.Name] = t
		defs = append(defs, d)
	}
	if c.Output != nil {
		defs = append(defs, ToolDefinition{
			Name:        c.Output.Name,
			Description: c.Output.Description,
			InputSchema: c.Output.Schema,
		})
	}

	msgs := append([]Message(nil), c.Messages...)
	res := &Result{}

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := m.Chat(ctx, Request{System: c.System, Messages: msgs, Tools: defs})
		if err != nil {
			return nil, fmt.Errorf("chat %s: %w", m.Name(), err)
		}
		res.Usage.Add(resp.Usage)
		if resp.Content != "" {
			res.Text = resp.Content
		}

		if c.Output != nil {
			for _, tc := range resp.ToolCalls {
				if tc.Name == c.Output.Name {
					res.Structured = tc.Input
					return res, nil
				}
			}
		}

		if len(resp.ToolCalls) == 0 {
			if c.Output != nil {
				res.Structured = extractJSON(resp.Content)
			}
			return res, nil
		}

		if round >= maxRounds {
			return nil, fmt.Errorf("%w: more than %d rounds", ErrToolLoop, maxRounds)
		}

		msgs = append(msgs, Message{Role: RoleAssistant, Content: resp.Content, ToolUse: resp.ToolCalls})
		results := make([]ToolResult, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			t, ok := byName[tc.Name]
			if !ok {
				results = append(results, ToolResult{
					ToolUseID: tc.ID,
					Content:   fmt.Sprintf("Error: unknown tool %q", tc.Name),
					IsError:   true,
				})
				continue
			}
			slog.Debug("tool call", "tool", tc.Name, "round", round)
			results = append(results, ToolResult{ToolUseID: tc.ID, Content: t.Call(ctx, tc.Input)})
		}
		msgs = append(msgs, Message{Role: RoleUser, ToolResult: results})
		res.Rounds++
	}
}

// Validator is implemented by structured output types.
type Validator interface {
	Validate() error
}

// Decode unmarshals the structured result into target and validates it.
func Decode(res *Result, target Validator) error {
	if res == nil || len(bytes.TrimSpace(res.Structured)) == 0 || string(res.Structured) == "null" {
		return ErrNoStructuredOutput
	}
	if err := json.Unmarshal(res.Structured, target); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}

// extractJSON returns the JSON object embedded in text, if any. Fenced code
// blocks are accepted.
func extractJSON(text string) json.RawMessage {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil
	}
	candidate := []byte(s[start : end+1])
	if !json.Valid(candidate) {
		return nil
	}
	return json.RawMessage(candidate)
}
