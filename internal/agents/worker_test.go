package agents

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
	"github.com/mtzanidakis/counterman/internal/llm/llmtest"
)

func repairRole() Role {
	return Role{
		ID:      c.RepairAgent,
		System:  repairSystem,
		Analyze: repairAnalyze,
		Output:  func() Output { return &RepairInfo{} },
	}
}

func TestDirectedModeAnswersRequester(t *testing.T) {
	m := llmtest.New(llmtest.Output(map[string]any{
		"response_data": map[string]any{"part": "PS3406971", "found": true},
	}))
	w := NewWorker(m, Role{ID: c.DataAgent, System: dataSystem})

	st := c.NewState([]c.Message{c.UserMessage("is PS3406971 a real part?")})
	st.CurrentAgent = c.DataAgent
	st.Dispatched = &c.AgentRequest{
		RequestingAgent: c.ValidationAgent,
		TargetAgent:     c.DataAgent,
		RequestType:     "lookup",
		RequestInfo:     "search PS3406971",
	}

	cmd, err := w.Run(t.Context(), st)
	require.NoError(t, err)
	assert.Equal(t, c.Supervisor, cmd.Goto)
	assert.True(t, cmd.Patch.ClearDispatched)

	next := c.Merge(st, cmd.Patch)
	assert.Nil(t, next.Dispatched)
	assert.Nil(t, next.PendingRequest)
	require.Len(t, next.Messages, 2)
	assert.Equal(t, string(c.DataAgent), next.Messages[1].Name)
	assert.Contains(t, next.Messages[1].Content, "PS3406971")

	queued := next.Responses.Peek(c.ValidationAgent)
	require.Len(t, queued, 1)
	assert.Equal(t, c.DataAgent, queued[0].RespondingAgent)
	assert.Equal(t, true, queued[0].ResponseData["found"])

	prompt := m.Requests()[0].Messages[0].Content
	assert.Contains(t, prompt, "pending request from the validation_agent agent")
	assert.Contains(t, prompt, "search PS3406971")
}

func TestDirectedModeWithoutStructuredOutput(t *testing.T) {
	m := llmtest.New(llmtest.Text("The part exists and costs $42."))
	w := NewWorker(m, Role{ID: c.DataAgent, System: dataSystem})

	st := c.NewState([]c.Message{c.UserMessage("price of PS3406971?")})
	st.Dispatched = &c.AgentRequest{RequestingAgent: c.RepairAgent, TargetAgent: c.DataAgent, RequestInfo: "price"}

	cmd, err := w.Run(t.Context(), st)
	require.NoError(t, err)
	require.Len(t, cmd.Patch.Responses, 1)
	assert.Equal(t, "The part exists and costs $42.", cmd.Patch.Responses[0].ResponseData["text"])
}

func TestDirectedModeUsesDirectedTools(t *testing.T) {
	m := llmtest.New(llmtest.Output(map[string]any{"response_data": map[string]any{"price": "12.00"}}))
	open := &stubTool{name: "search_klevu_products"}
	directed := &stubTool{name: "get_pricing"}
	w := NewWorker(m, Role{
		ID:            c.ProductInfoAgent,
		Tools:         []llm.Tool{open},
		DirectedTools: []llm.Tool{directed},
		Output:        func() Output { return &ProductInfo{} },
	})

	st := c.NewState(nil)
	st.Dispatched = &c.AgentRequest{RequestingAgent: c.StoreInfoAgent, TargetAgent: c.ProductInfoAgent, RequestInfo: "price of 1234"}
	_, err := w.Run(t.Context(), st)
	require.NoError(t, err)

	var offered []string
	for _, d := range m.Requests()[0].Tools {
		offered = append(offered, d.Name)
	}
	assert.Equal(t, []string{"get_pricing", "agent_response"}, offered)
}

func TestOpenModeRaisesRequestAsOwnAgent(t *testing.T) {
	m := llmtest.New(llmtest.Output(map[string]any{
		"provided_model_number": false,
		"info_needed": map[string]any{
			"requesting_agent": "someone_else",
			"target_agent":     "human_interaction",
			"request_type":     "model_number",
			"request_info":     "What is the model number of your refrigerator?",
		},
	}))
	w := NewWorker(m, repairRole())

	st := c.NewState([]c.Message{c.UserMessage("my fridge is not cooling")})
	cmd, err := w.Run(t.Context(), st)
	require.NoError(t, err)
	assert.Equal(t, c.Supervisor, cmd.Goto)

	next := c.Merge(st, cmd.Patch)
	require.NotNil(t, next.PendingRequest)
	assert.Equal(t, c.RepairAgent, next.PendingRequest.RequestingAgent)
	assert.Equal(t, c.HumanInteraction, next.PendingRequest.TargetAgent)
	last, ok := c.LastAssistant(next.Messages)
	require.True(t, ok)
	assert.Equal(t, "What is the model number of your refrigerator?", last.Content)
	assert.Equal(t, string(c.RepairAgent), last.Name)
}

func TestOpenModeWithoutRequest(t *testing.T) {
	m := llmtest.New(llmtest.Output(map[string]any{
		"provided_model_number": true,
		"list_of_problems":      []string{"Not cooling", "Noisy"},
		"info_needed":           map[string]any{},
	}))
	w := NewWorker(m, repairRole())

	st := c.NewState([]c.Message{c.UserMessage("WDT780SAEM1 is noisy")})
	cmd, err := w.Run(t.Context(), st)
	require.NoError(t, err)
	assert.Nil(t, cmd.Patch.PendingRequest)
	require.Len(t, cmd.Patch.Messages, 1)
	assert.Contains(t, cmd.Patch.Messages[0].Content, "Not cooling")
	assert.Contains(t, cmd.Patch.Messages[0].Content, `"provided_model_number":true`)
}

func TestOpenModeConsumesQueuedResponses(t *testing.T) {
	m := llmtest.New(llmtest.Output(map[string]any{
		"is_valid_or_compatible": true,
		"found_item":             "part_number",
	}))
	w := NewWorker(m, Role{ID: c.ValidationAgent, Output: func() Output { return &ValidationInfo{} }})

	st := c.NewState([]c.Message{c.UserMessage("is PS3406971 valid?")})
	st.Responses = st.Responses.Push(c.AgentResponse{
		RespondingAgent: c.DataAgent,
		RequestingAgent: c.ValidationAgent,
		ResponseData:    map[string]any{"title": "Dishwasher Upper Rack Wheel"},
	})
	st.Responses = st.Responses.Push(c.AgentResponse{
		RespondingAgent: c.DataAgent,
		RequestingAgent: c.RepairAgent,
		ResponseData:    map[string]any{"other": "kept"},
	})

	cmd, err := w.Run(t.Context(), st)
	require.NoError(t, err)
	assert.Equal(t, c.ValidationAgent, cmd.Patch.ConsumeResponsesFor)

	prompt := m.Requests()[0].Messages[0].Content
	assert.Contains(t, prompt, "Dishwasher Upper Rack Wheel")
	assert.NotContains(t, prompt, "kept")

	next := c.Merge(st, cmd.Patch)
	assert.Empty(t, next.Responses.Peek(c.ValidationAgent))
	assert.Len(t, next.Responses.Peek(c.RepairAgent), 1)
}

func TestOpenModeTextFallback(t *testing.T) {
	m := llmtest.New(llmtest.Text("I could not work out the model."))
	w := NewWorker(m, repairRole())

	cmd, err := w.Run(t.Context(), c.NewState([]c.Message{c.UserMessage("help")}))
	require.NoError(t, err)
	assert.Nil(t, cmd.Patch.PendingRequest)
	require.Len(t, cmd.Patch.Messages, 1)
	assert.Equal(t, "I could not work out the model.", cmd.Patch.Messages[0].Content)
}

func TestOpenModeSchemaMismatchIsFault(t *testing.T) {
	m := llmtest.New(llmtest.Output(map[string]any{"list_of_problems": []string{"leak"}}))
	w := NewWorker(m, repairRole())

	_, err := w.Run(t.Context(), c.NewState([]c.Message{c.UserMessage("leak")}))
	require.ErrorIs(t, err, llm.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "repair_agent")
}

func TestModelFailureIsFault(t *testing.T) {
	boom := errors.New("overloaded")
	w := NewWorker(llmtest.New(llmtest.Fail(boom)), repairRole())

	_, err := w.Run(t.Context(), c.NewState([]c.Message{c.UserMessage("hi")}))
	require.ErrorIs(t, err, boom)
}

func TestFreeTextRole(t *testing.T) {
	m := llmtest.New(
		llmtest.CallTool("use_search_feature", map[string]any{"search_term": "PS3406971"}),
		llmtest.Text("Found: upper rack wheel"),
	)
	search := &stubTool{name: "use_search_feature", out: "<html>wheel</html>"}
	w := NewWorker(m, Role{ID: c.DataAgent, Tools: []llm.Tool{search}})

	cmd, err := w.Run(t.Context(), c.NewState([]c.Message{c.UserMessage("PS3406971")}))
	require.NoError(t, err)
	assert.Equal(t, 1, search.calls)
	require.Len(t, cmd.Patch.Messages, 1)
	assert.Equal(t, "Found: upper rack wheel", cmd.Patch.Messages[0].Content)
}
