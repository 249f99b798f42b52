package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/graph"
	"github.com/mtzanidakis/counterman/internal/llm/llmtest"
	"github.com/mtzanidakis/counterman/internal/supervisor"
	"github.com/mtzanidakis/counterman/internal/tools"
)

func toolSet(t *testing.T) *tools.Set {
	t.Helper()
	client, err := tools.New(tools.Config{SiteURL: "https://parts.example.com", CatalogURL: "https://api.example.com"}, nil)
	require.NoError(t, err)
	return client.All()
}

func TestProfilesBuild(t *testing.T) {
	for _, p := range []Profile{Parts(), Pool()} {
		t.Run(p.Name, func(t *testing.T) {
			require.NoError(t, p.Policy.Validate())

			nodes, err := p.Build(llmtest.New(), toolSet(t), BuildConfig{})
			require.NoError(t, err)
			assert.Contains(t, nodes, c.Supervisor)
			for _, m := range p.Policy.Members {
				assert.Contains(t, nodes, m.ID)
			}
			assert.Len(t, nodes, len(p.Policy.Members)+1)
		})
	}
}

func TestAllowLists(t *testing.T) {
	parts := Parts().Policy
	assert.True(t, parts.Allowed(c.RepairAgent, c.ValidationAgent))
	assert.True(t, parts.Allowed(c.BlogAgent, c.HumanInteraction))
	assert.False(t, parts.Allowed(c.SummaryAgent, c.HumanInteraction))
	assert.False(t, parts.Routable(c.DataAgent))
	assert.False(t, parts.Routable(c.SummaryAgent))

	pool := Pool().Policy
	assert.True(t, pool.Allowed(c.StoreInfoAgent, c.ProductInfoAgent))
	assert.False(t, pool.Allowed(c.ProductSearchAgent, c.StoreInfoAgent))
	assert.Equal(t, []c.AgentID{c.ProductInfoAgent, c.StoreInfoAgent, c.HumanInteraction}, pool.RoutableIDs())
}

func TestByName(t *testing.T) {
	p, err := ByName("pool")
	require.NoError(t, err)
	assert.Equal(t, "pool", p.Name)

	p, err = ByName("")
	require.NoError(t, err)
	assert.Equal(t, "parts", p.Name)

	_, err = ByName("garden")
	assert.Error(t, err)
}

func TestProfileWithAllow(t *testing.T) {
	p, err := Parts().WithAllow(map[string][]string{"summary_agent": {"human_interaction"}})
	require.NoError(t, err)
	assert.True(t, p.Policy.Allowed(c.SummaryAgent, c.HumanInteraction))

	_, err = Parts().WithAllow(map[string][]string{"human_interaction": {"repair_agent"}})
	assert.ErrorIs(t, err, supervisor.ErrInvalidPolicy)
}

func TestBuildFailsOnMissingTool(t *testing.T) {
	_, err := Parts().Build(llmtest.New(), tools.NewSet(), BuildConfig{})
	assert.Error(t, err)
}

// A fresh repair question: the supervisor routes to the repair agent, which
// asks the user for a model number through human interaction.
func TestPartsTurnAsksForModelNumber(t *testing.T) {
	m := llmtest.New(
		llmtest.Output(supervisor.Decision{NextAgent: "repair_agent", RequestType: "analyze"}),
		llmtest.Output(map[string]any{
			"provided_model_number": false,
			"info_needed": map[string]any{
				"target_agent": "human_interaction",
				"request_type": "model_number",
				"request_info": "Ask the customer for the ice maker's refrigerator model number",
			},
		}),
		llmtest.Output(FinalAnswer{Message: "Happy to help! What is the model number of your refrigerator?"}),
	)
	nodes, err := Parts().Build(m, toolSet(t), BuildConfig{})
	require.NoError(t, err)
	r, err := graph.New(nodes)
	require.NoError(t, err)

	var path []c.AgentID
	var final c.State
	for step, err := range r.Stream(t.Context(), c.NewState([]c.Message{c.UserMessage("How do I fix my ice maker?")})) {
		require.NoError(t, err)
		path = append(path, step.Node)
		final = step.State
	}

	assert.Equal(t, []c.AgentID{c.Supervisor, c.RepairAgent, c.Supervisor, c.HumanInteraction, c.Supervisor}, path)
	assert.Equal(t, 3, m.Calls(), "the pending request is dispatched without a model call")
	assert.Zero(t, m.Remaining())

	last, ok := c.LastAssistant(final.Messages)
	require.True(t, ok)
	assert.Equal(t, "Happy to help! What is the model number of your refrigerator?", last.Content)
	assert.Nil(t, final.PendingRequest)
	assert.Nil(t, final.Dispatched)
}

// The validation agent asks the data agent for a lookup; the answer comes
// back through the response queue on its next turn.
func TestPartsTurnWithDataRequest(t *testing.T) {
	m := llmtest.New(
		llmtest.Output(supervisor.Decision{NextAgent: "validation_agent"}),
		llmtest.Output(map[string]any{
			"is_valid_or_compatible": false,
			"info_needed": map[string]any{
				"target_agent": "data_agent",
				"request_type": "lookup",
				"request_info": "search the site for PS3406971",
			},
		}),
		llmtest.Output(map[string]any{"response_data": map[string]any{"title": "Upper Rack Wheel"}}),
		llmtest.Output(supervisor.Decision{NextAgent: "validation_agent"}),
		llmtest.Output(map[string]any{"is_valid_or_compatible": true, "found_item": "part_number"}),
		llmtest.Output(supervisor.Decision{NextAgent: "end"}),
		llmtest.Output(FinalAnswer{Message: "Yes, PS3406971 is the Upper Rack Wheel."}),
	)
	nodes, err := Parts().Build(m, toolSet(t), BuildConfig{})
	require.NoError(t, err)
	r, err := graph.New(nodes)
	require.NoError(t, err)

	final, err := r.Run(t.Context(), c.NewState([]c.Message{c.UserMessage("Is PS3406971 a valid part?")}))
	require.NoError(t, err)
	assert.Zero(t, m.Remaining())
	assert.Zero(t, final.Responses.Len())

	last, _ := c.LastAssistant(final.Messages)
	assert.Equal(t, "Yes, PS3406971 is the Upper Rack Wheel.", last.Content)
	assert.Contains(t, m.Requests()[4].Messages[0].Content, "Upper Rack Wheel")
}
