// Package supervisor implements the routing state machine that decides which
// worker runs next in a conversation turn.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
	"github.com/mtzanidakis/counterman/internal/metrics"
)

// EndChoice is the model's way of asking to finish; it is mapped to the
// human interaction worker, which is always the last hop.
const EndChoice = "end"

// Branches reported in metrics.
const (
	BranchTerminal   = "terminal"
	BranchPending    = "pending"
	BranchInvalid    = "invalid_request"
	BranchModel      = "model"
	BranchEnd        = "end"
	BranchUnroutable = "unroutable"
	BranchSelfRoute  = "self_route"
	BranchNoDecision = "no_decision"
)

// Decision is the model's routing choice.
type Decision struct {
	NextAgent   string `json:"next_agent"`
	RequestType string `json:"request_type,omitempty"`
	RequestInfo any    `json:"request_info,omitempty"`
}

func (d *Decision) Validate() error {
	if d.NextAgent == "" {
		return errors.New("next_agent is required")
	}
	return nil
}

type Config struct {
	Policy Policy
	// Instructions introduce the deployment and its routing rules.
	Instructions string
	// HistoryWindow > 0 collapses all but the last N messages into a summary
	// before the routing call.
	HistoryWindow int
	Metrics       *metrics.Collector
}

type Router struct {
	model   llm.Model
	policy  Policy
	window  int
	system  string
	output  *llm.OutputSpec
	metrics *metrics.Collector
	log     *slog.Logger
}

func New(model llm.Model, cfg Config) (*Router, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return &Router{
		model:   model,
		policy:  cfg.Policy,
		window:  cfg.HistoryWindow,
		system:  buildSystemPrompt(cfg.Instructions, cfg.Policy),
		output:  decisionSpec(cfg.Policy),
		metrics: cfg.Metrics,
		log:     slog.With("agent", conversation.Supervisor),
	}, nil
}

func (r *Router) Policy() Policy { return r.policy }

func (r *Router) Run(ctx context.Context, st conversation.State) (conversation.Command, error) {
	// Control returning from the user-facing worker ends the turn.
	if st.CurrentAgent == conversation.HumanInteraction {
		r.metrics.RouteDecision(BranchTerminal, string(conversation.End))
		return conversation.Command{Goto: conversation.End}, nil
	}

	if st.PendingRequest != nil {
		return r.dispatch(*st.PendingRequest), nil
	}

	return r.route(ctx, st)
}

// dispatch routes a pending request without consulting the model.
func (r *Router) dispatch(req conversation.AgentRequest) conversation.Command {
	if err := req.Validate(); err != nil || !r.policy.Allowed(req.RequestingAgent, req.TargetAgent) {
		note := fmt.Sprintf("Invalid request from %s to %s", req.RequestingAgent, req.TargetAgent)
		r.log.Warn("rejected agent request", "from", req.RequestingAgent, "to", req.TargetAgent, "type", req.RequestType)
		r.metrics.InvalidRequest(string(req.RequestingAgent), string(req.TargetAgent))
		r.metrics.RouteDecision(BranchInvalid, string(conversation.HumanInteraction))
		return conversation.Command{
			Goto: conversation.HumanInteraction,
			Patch: conversation.Patch{
				CurrentAgent:    conversation.Ptr(conversation.HumanInteraction),
				ClearPending:    true,
				ClearDispatched: true,
				Scratch:         map[string]any{conversation.ErrorKey: note},
			},
		}
	}

	r.log.Debug("dispatching request", "request", req.String())
	r.metrics.RouteDecision(BranchPending, string(req.TargetAgent))
	return conversation.Command{
		Goto: req.TargetAgent,
		Patch: conversation.Patch{
			CurrentAgent: conversation.Ptr(req.TargetAgent),
			ClearPending: true,
			Dispatched:   &req,
		},
	}
}

func (r *Router) route(ctx context.Context, st conversation.State) (conversation.Command, error) {
	history := st.Messages
	if r.window > 0 {
		var err error
		history, err = Summarize(ctx, r.model, history, r.window)
		if err != nil {
			r.log.Error("history summary failed", "error", err)
			return conversation.Command{}, fmt.Errorf("summarize history: %w", err)
		}
	}

	start := time.Now()
	res, err := llm.Invoke(ctx, r.model, llm.Call{
		System:   r.system,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: routingRequest(history, st.CurrentAgent)}},
		Output:   r.output,
	})
	if err != nil {
		r.metrics.ModelCall(string(conversation.Supervisor), "error", time.Since(start), 0, 0)
		r.log.Error("routing call failed", "error", err)
		return conversation.Command{}, fmt.Errorf("route: %w", err)
	}
	r.metrics.ModelCall(string(conversation.Supervisor), "ok", time.Since(start), res.Usage.InputTokens, res.Usage.OutputTokens)

	var d Decision
	branch := BranchModel
	switch err := llm.Decode(res, &d); {
	case errors.Is(err, llm.ErrNoStructuredOutput):
		r.log.Warn("no routing decision, handing over to human interaction")
		d = Decision{NextAgent: string(conversation.HumanInteraction)}
		branch = BranchNoDecision
	case err != nil:
		r.log.Error("routing decision rejected", "error", err)
		return conversation.Command{}, fmt.Errorf("route: %w", err)
	}

	next := conversation.AgentID(d.NextAgent)
	switch {
	case d.NextAgent == EndChoice || next == conversation.End:
		next = conversation.HumanInteraction
		branch = BranchEnd
	case !r.policy.Routable(next):
		r.log.Warn("model chose an agent it cannot route to", "agent", d.NextAgent)
		next = conversation.HumanInteraction
		branch = BranchUnroutable
	}
	if next == st.CurrentAgent {
		r.log.Info("self-route overridden", "agent", next)
		r.metrics.SelfRouteOverride(string(next))
		next = conversation.HumanInteraction
		branch = BranchSelfRoute
	}

	r.log.Info("routed", "from", st.CurrentAgent, "to", next, "branch", branch, "request_type", d.RequestType)
	r.metrics.RouteDecision(branch, string(next))

	d.NextAgent = string(next)
	return conversation.Command{
		Goto: next,
		Patch: conversation.Patch{
			CurrentAgent:    conversation.Ptr(next),
			ClearDispatched: true,
			Scratch:         map[string]any{conversation.RouteKey: d},
		},
	}, nil
}

func decisionSpec(p Policy) *llm.OutputSpec {
	choices := make([]string, 0, len(p.Members)+1)
	for _, id := range p.RoutableIDs() {
		choices = append(choices, string(id))
	}
	choices = append(choices, EndChoice)

	return &llm.OutputSpec{
		Name:        "route",
		Description: "Choose the agent that handles the next step of the conversation.",
		Schema: llm.Object(map[string]any{
			"next_agent":   llm.Enum("the agent to route to", choices...),
			"request_type": llm.String("what you need from the agent"),
			"request_info": map[string]any{"type": "object", "description": "data the agent needs for the request"},
		}, "next_agent"),
	}
}

func buildSystemPrompt(instructions string, p Policy) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(instructions))
	sb.WriteString("\n\nAgents:\n")
	for i, m := range p.Members {
		fmt.Fprintf(&sb, "%d. %s: %s", i+1, m.ID, m.Description)
		if m.RequestOnly {
			sb.WriteString(" You cannot route to this agent yourself; it only serves requests from other agents.")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("1. ALWAYS end with human_interaction for user communication.\n")
	sb.WriteString("2. When analyzing the output of an agent, look for a request. If the request must be fulfilled by the user, route to human_interaction.\n")
	sb.WriteString("3. It is better to ask the user for information than to assume which action to take.\n")
	sb.WriteString("4. Keep the number of steps to a minimum.\n")
	return sb.String()
}

func routingRequest(history []conversation.Message, current conversation.AgentID) string {
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	sb.WriteString(conversation.Transcript(history))
	sb.WriteString("\nDecide which agent handles the next step and call the route tool.")
	if current != "" && current != conversation.Supervisor {
		fmt.Fprintf(&sb, " Avoid choosing %s again unless it needs to use another tool. Speed and efficiency matter.", current)
	}
	return sb.String()
}
