package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "github.com/mtzanidakis/counterman/internal/conversation"
)

func TestPolicyAllowed(t *testing.T) {
	p := partsPolicy()

	assert.True(t, p.Allowed(c.RepairAgent, c.ValidationAgent))
	assert.True(t, p.Allowed(c.DataAgent, c.HumanInteraction))
	assert.False(t, p.Allowed(c.DataAgent, c.RepairAgent))
	assert.False(t, p.Allowed(c.HumanInteraction, c.RepairAgent))
	assert.False(t, p.Allowed("ghost", c.HumanInteraction))
}

func TestPolicyRoutable(t *testing.T) {
	p := partsPolicy()

	assert.True(t, p.Routable(c.RepairAgent))
	assert.False(t, p.Routable(c.DataAgent))
	assert.False(t, p.Routable(c.Supervisor))
	assert.Equal(t, []c.AgentID{c.ValidationAgent, c.RepairAgent, c.HumanInteraction}, p.RoutableIDs())
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, partsPolicy().Validate())

	p := partsPolicy()
	p.Allow[c.DataAgent] = []c.AgentID{"ghost"}
	assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)

	p = partsPolicy()
	p.Allow[c.HumanInteraction] = []c.AgentID{c.RepairAgent}
	assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)

	p = partsPolicy()
	p.Members = p.Members[:len(p.Members)-1]
	assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
}

func TestPolicyWithAllow(t *testing.T) {
	base := partsPolicy()

	p, err := base.WithAllow(map[string][]string{"data_agent": {"human_interaction", "summary_agent"}})
	require.NoError(t, err)
	assert.True(t, p.Allowed(c.DataAgent, c.SummaryAgent))
	assert.False(t, base.Allowed(c.DataAgent, c.SummaryAgent), "base policy is not modified")

	_, err = base.WithAllow(map[string][]string{"data_agent": {"nobody"}})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}
