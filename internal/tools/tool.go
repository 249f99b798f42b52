package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mtzanidakis/counterman/internal/llm"
	"github.com/mtzanidakis/counterman/internal/metrics"
)

// handler returns either a string (passed through) or a value that is
// rendered as JSON.
type handler func(ctx context.Context, in json.RawMessage) (any, error)

type tool struct {
	def     llm.ToolDefinition
	fn      handler
	metrics *metrics.Collector
}

func (t *tool) Definition() llm.ToolDefinition { return t.def }

// Call never fails: errors are returned as text for the model to act on.
func (t *tool) Call(ctx context.Context, in json.RawMessage) string {
	start := time.Now()
	out, err := t.fn(ctx, in)
	elapsed := time.Since(start)

	if err != nil {
		slog.Warn("tool failed", "tool", t.def.Name, "duration", elapsed, "error", err)
		t.metrics.ToolCall(t.def.Name, "error", elapsed)
		return "Error: " + err.Error()
	}

	t.metrics.ToolCall(t.def.Name, "ok", elapsed)
	slog.Info("tool call", "tool", t.def.Name, "duration", elapsed)

	if s, ok := out.(string); ok {
		return s
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "Error: encode result: " + err.Error()
	}
	return string(data)
}

func decodeArgs(in json.RawMessage, v any) error {
	s := strings.TrimSpace(string(in))
	if s == "" || s == "null" {
		return nil
	}
	if err := json.Unmarshal(in, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Set is a named collection of tools a role picks from.
type Set struct {
	byName map[string]llm.Tool
}

func NewSet(ts ...llm.Tool) *Set {
	s := &Set{byName: make(map[string]llm.Tool, len(ts))}
	for _, t := range ts {
		s.byName[t.Definition().Name] = t
	}
	return s
}

// Pick returns the named tools in the given order.
func (s *Set) Pick(names ...string) ([]llm.Tool, error) {
	out := make([]llm.Tool, 0, len(names))
	for _, n := range names {
		t, ok := s.byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// All returns the site and catalog tools.
func (c *Client) All() *Set {
	return NewSet(slices.Concat(c.SiteTools(), c.CatalogTools())...)
}

func (c *Client) newTool(name, desc string, schema map[string]any, fn handler) llm.Tool {
	return &tool{
		def:     llm.ToolDefinition{Name: name, Description: desc, InputSchema: schema},
		fn:      fn,
		metrics: c.metrics,
	}
}
