package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/counterman/internal/llm"
	"github.com/mtzanidakis/counterman/internal/llm/llmtest"
)

type echoTool struct {
	calls int
}

func (e *echoTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: "echo", Description: "echo", InputSchema: llm.Object(map[string]any{"v": llm.String("v")})}
}

func (e *echoTool) Call(_ context.Context, input json.RawMessage) string {
	e.calls++
	return "echo:" + string(input)
}

type verdict struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

func (v *verdict) Validate() error {
	if v.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}

var verdictSpec = &llm.OutputSpec{Name: "verdict", Description: "verdict", Schema: llm.Object(nil)}

func TestInvokeToolLoopThenOutput(t *testing.T) {
	tool := &echoTool{}
	m := llmtest.New(
		llmtest.CallTool("echo", map[string]string{"v": "1"}),
		llmtest.Output(verdict{OK: true, Reason: "fits"}),
	)

	res, err := llm.Invoke(t.Context(), m, llm.Call{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "check"}},
		Tools:    []llm.Tool{tool},
		Output:   verdictSpec,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, 1, res.Rounds)

	var v verdict
	require.NoError(t, llm.Decode(res, &v))
	assert.True(t, v.OK)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages
	require.Len(t, last, 3)
	require.Len(t, last[2].ToolResult, 1)
	assert.Equal(t, `echo:{"v":"1"}`, last[2].ToolResult[0].Content)
}

func TestInvokeUnknownToolIsReportedInBand(t *testing.T) {
	m := llmtest.New(llmtest.CallTool("nope", nil), llmtest.Text("done"))

	res, err := llm.Invoke(t.Context(), m, llm.Call{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)

	tr := m.Requests()[1].Messages[2].ToolResult[0]
	assert.True(t, tr.IsError)
	assert.Contains(t, tr.Content, "unknown tool")
}

func TestInvokeToolLoopBound(t *testing.T) {
	tool := &echoTool{}
	m := llmtest.New(
		llmtest.CallTool("echo", nil),
		llmtest.CallTool("echo", nil),
		llmtest.CallTool("echo", nil),
	)

	_, err := llm.Invoke(t.Context(), m, llm.Call{Tools: []llm.Tool{tool}, MaxToolRounds: 2})
	require.ErrorIs(t, err, llm.ErrToolLoop)
	assert.Equal(t, 2, tool.calls)
}

func TestInvokeModelErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	m := llmtest.New(llmtest.Fail(boom))

	_, err := llm.Invoke(t.Context(), m, llm.Call{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.Calls())
}

func TestInvokeTextJSONFallback(t *testing.T) {
	m := llmtest.New(llmtest.Text("Here you go:\n```json\n{\"ok\": false, \"reason\": \"no match\"}\n```"))

	res, err := llm.Invoke(t.Context(), m, llm.Call{Output: verdictSpec})
	require.NoError(t, err)

	var v verdict
	require.NoError(t, llm.Decode(res, &v))
	assert.Equal(t, "no match", v.Reason)
}

func TestDecodeErrors(t *testing.T) {
	var v verdict

	err := llm.Decode(&llm.Result{Text: "just words"}, &v)
	assert.ErrorIs(t, err, llm.ErrNoStructuredOutput)

	err = llm.Decode(&llm.Result{Structured: json.RawMessage(`{"ok": "yes"}`)}, &v)
	assert.ErrorIs(t, err, llm.ErrSchemaMismatch)

	err = llm.Decode(&llm.Result{Structured: json.RawMessage(`{"ok": true}`)}, &v)
	assert.ErrorIs(t, err, llm.ErrSchemaMismatch)
}

func TestInvokeHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	m := llmtest.New(llmtest.Text("never"))
	_, err := llm.Invoke(ctx, m, llm.Call{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.Calls())
}
