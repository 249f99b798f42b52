package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
	"github.com/mtzanidakis/counterman/internal/llm/llmtest"
)

type stubTool struct {
	name  string
	out   string
	calls int
}

func (s *stubTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: s.name, InputSchema: llm.Object(map[string]any{})}
}

func (s *stubTool) Call(context.Context, json.RawMessage) string {
	s.calls++
	return s.out
}

func TestHumanSynthesis(t *testing.T) {
	m := llmtest.New(llmtest.Output(FinalAnswer{
		Message:     "The wheel PS3406971 costs $12.",
		OutputImage: c.Ptr("https://cdn.example.com/PS3406971.jpg"),
	}))
	h := NewHuman(m, partsHuman)

	st := c.NewState([]c.Message{
		c.UserMessage("how much is PS3406971?"),
		c.AgentMessage(c.DataAgent, `{"price":"$12"}`),
	})
	st.CurrentAgent = c.HumanInteraction

	cmd, err := h.Run(t.Context(), st)
	require.NoError(t, err)
	assert.Equal(t, c.Supervisor, cmd.Goto)

	next := c.Merge(st, cmd.Patch)
	assert.Equal(t, c.HumanInteraction, next.CurrentAgent)
	assert.Equal(t, "https://cdn.example.com/PS3406971.jpg", next.OutputImage)
	last, ok := c.LastAssistant(next.Messages)
	require.True(t, ok)
	assert.Equal(t, "The wheel PS3406971 costs $12.", last.Content)
	assert.Equal(t, string(c.HumanInteraction), last.Name)

	req := m.Requests()[0]
	assert.Contains(t, req.System, "Do NOT use any knowledge")
	assert.Empty(t, req.Tools[:len(req.Tools)-1], "only the answer tool is offered")
}

func TestHumanRelaysRequest(t *testing.T) {
	m := llmtest.New(llmtest.Output(FinalAnswer{Message: "Could you share your model number?"}))
	h := NewHuman(m, partsHuman)

	st := c.NewState([]c.Message{c.UserMessage("my dishwasher leaks")})
	st.Dispatched = &c.AgentRequest{
		RequestingAgent: c.RepairAgent,
		TargetAgent:     c.HumanInteraction,
		RequestType:     "model_number",
		RequestInfo:     "the dishwasher model number",
	}

	cmd, err := h.Run(t.Context(), st)
	require.NoError(t, err)
	assert.True(t, cmd.Patch.ClearDispatched)
	assert.Contains(t, m.Requests()[0].Messages[0].Content, "Other agents are requesting information about: the dishwasher model number")
	assert.Nil(t, cmd.Patch.OutputImage)
}

func TestHumanApologizesForErrorNote(t *testing.T) {
	m := llmtest.New(llmtest.Text("Sorry, something went wrong. Could you rephrase?"))
	h := NewHuman(m, partsHuman)

	st := c.NewState([]c.Message{c.UserMessage("help")})
	st.Scratch[c.ErrorKey] = "Invalid request from data_agent to repair_agent"

	cmd, err := h.Run(t.Context(), st)
	require.NoError(t, err)
	assert.Contains(t, m.Requests()[0].Messages[0].Content, "Apologize briefly")

	next := c.Merge(st, cmd.Patch)
	assert.Empty(t, next.ErrorNote())
	last, _ := c.LastAssistant(next.Messages)
	assert.Equal(t, "Sorry, something went wrong. Could you rephrase?", last.Content)
}

func TestHumanRejectsRelativeImage(t *testing.T) {
	m := llmtest.New(llmtest.Output(map[string]any{"message": "hi", "output_image": "/img/x.png"}))
	_, err := NewHuman(m, poolHuman).Run(t.Context(), c.NewState(nil))
	require.ErrorIs(t, err, llm.ErrSchemaMismatch)
}
