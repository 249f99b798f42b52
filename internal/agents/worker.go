// Package agents holds the worker nodes of the conversation graph and the
// deployment profiles that assemble them.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
	"github.com/mtzanidakis/counterman/internal/metrics"
)

// Role is the definition of one worker.
type Role struct {
	ID     conversation.AgentID
	System string
	// Analyze is appended to the conversation in open mode.
	Analyze string
	Tools   []llm.Tool
	// DirectedTools are offered when fulfilling a request. Nil means Tools.
	DirectedTools []llm.Tool
	// Output returns a fresh structured result. Nil means free text.
	Output func() Output
}

type Option func(*options)

type options struct {
	maxToolRounds int
	metrics       *metrics.Collector
	logger        *slog.Logger
}

func WithMaxToolRounds(n int) Option {
	return func(o *options) { o.maxToolRounds = n }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(id conversation.AgentID, opts []Option) options {
	o := options{maxToolRounds: llm.DefaultMaxToolRounds, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("agent", id)
	return o
}

// Worker is a reasoning node. It fulfils requests addressed to it (directed
// mode) or analyzes the conversation and reports a structured result,
// possibly asking another agent for help (open mode). It always hands
// control back to the supervisor.
type Worker struct {
	model llm.Model
	role  Role
	options
}

func NewWorker(model llm.Model, role Role, opts ...Option) *Worker {
	return &Worker{model: model, role: role, options: newOptions(role.ID, opts)}
}

func (w *Worker) ID() conversation.AgentID { return w.role.ID }

func (w *Worker) Run(ctx context.Context, st conversation.State) (conversation.Command, error) {
	if st.Dispatched != nil && st.Dispatched.TargetAgent == w.role.ID {
		return w.fulfil(ctx, st, *st.Dispatched)
	}
	return w.analyze(ctx, st)
}

func (w *Worker) fulfil(ctx context.Context, st conversation.State, req conversation.AgentRequest) (conversation.Command, error) {
	w.logger.Info("fulfilling request", "from", req.RequestingAgent, "type", req.RequestType)

	tools := w.role.DirectedTools
	if tools == nil {
		tools = w.role.Tools
	}
	var out Response
	res, err := w.invoke(ctx, llm.Call{
		System:   w.role.System,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: directedPrompt(st, req)}},
		Tools:    tools,
		Output:   Spec(&out),
	})
	if err != nil {
		return conversation.Command{}, err
	}
	switch err := llm.Decode(res, &out); {
	case errors.Is(err, llm.ErrNoStructuredOutput):
		out.ResponseData = map[string]any{"text": strings.TrimSpace(res.Text)}
	case err != nil:
		w.logger.Error("response rejected", "error", err)
		return conversation.Command{}, fmt.Errorf("%s: %w", w.role.ID, err)
	}

	return conversation.Command{
		Goto: conversation.Supervisor,
		Patch: conversation.Patch{
			Messages:        []conversation.Message{conversation.AgentMessage(w.role.ID, Render(&out))},
			ClearDispatched: true,
			Responses: []conversation.AgentResponse{{
				RespondingAgent: w.role.ID,
				RequestingAgent: req.RequestingAgent,
				ResponseData:    out.ResponseData,
			}},
		},
	}, nil
}

func (w *Worker) analyze(ctx context.Context, st conversation.State) (conversation.Command, error) {
	patch := conversation.Patch{}
	responses := st.Responses.Peek(w.role.ID)
	if len(responses) > 0 {
		patch.ConsumeResponsesFor = w.role.ID
		w.logger.Debug("consuming responses", "count", len(responses))
	}

	call := llm.Call{
		System:   w.role.System,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: openPrompt(st.Messages, responses, w.role.Analyze)}},
		Tools:    w.role.Tools,
	}
	var out Output
	if w.role.Output != nil {
		out = w.role.Output()
		call.Output = Spec(out)
	}

	res, err := w.invoke(ctx, call)
	if err != nil {
		return conversation.Command{}, err
	}

	text := strings.TrimSpace(res.Text)
	if out != nil {
		switch err := llm.Decode(res, out); {
		case errors.Is(err, llm.ErrNoStructuredOutput):
			w.logger.Warn("no structured result, keeping text")
		case err != nil:
			w.logger.Error("structured result rejected", "error", err)
			return conversation.Command{}, fmt.Errorf("%s: %w", w.role.ID, err)
		default:
			text = Render(out)
			if req := out.InfoNeeded(); req != nil {
				r := *req
				r.RequestingAgent = w.role.ID
				patch.PendingRequest = &r
				if r.RequestInfo != "" {
					text = r.RequestInfo
				}
				w.logger.Info("requesting help", "to", r.TargetAgent, "type", r.RequestType)
			}
		}
	}

	if text != "" {
		patch.Messages = []conversation.Message{conversation.AgentMessage(w.role.ID, text)}
	}
	return conversation.Command{Goto: conversation.Supervisor, Patch: patch}, nil
}

func (w *Worker) invoke(ctx context.Context, c llm.Call) (*llm.Result, error) {
	return invoke(ctx, w.model, w.role.ID, w.options, c)
}

func invoke(ctx context.Context, m llm.Model, id conversation.AgentID, o options, c llm.Call) (*llm.Result, error) {
	c.MaxToolRounds = o.maxToolRounds
	start := time.Now()
	res, err := llm.Invoke(ctx, m, c)
	if err != nil {
		o.metrics.ModelCall(string(id), "error", time.Since(start), 0, 0)
		o.logger.Error("model call failed", "error", err)
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	o.metrics.ModelCall(string(id), "ok", time.Since(start), res.Usage.InputTokens, res.Usage.OutputTokens)
	o.logger.Debug("model call", "rounds", res.Rounds, "duration", time.Since(start))
	return res, nil
}

func directedPrompt(st conversation.State, req conversation.AgentRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You have a pending request from the %s agent. Use the provided tools to provide a response.\n", req.RequestingAgent)
	if req.RequestType != "" {
		fmt.Fprintf(&sb, "Request type: %s\n", req.RequestType)
	}
	fmt.Fprintf(&sb, "Use the information provided by the request to respond: %s\n", req.RequestInfo)
	sb.WriteString("If a given number is ambiguous, say so and ask for clarification in your response.\n\n")
	sb.WriteString("Conversation so far:\n")
	sb.WriteString(conversation.Transcript(st.Messages))
	return sb.String()
}

func openPrompt(msgs []conversation.Message, responses []conversation.AgentResponse, instruction string) string {
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	sb.WriteString(conversation.Transcript(msgs))
	if len(responses) > 0 {
		sb.WriteString("\nResponses to your earlier requests:\n")
		for _, r := range responses {
			data, _ := json.Marshal(r.ResponseData)
			fmt.Fprintf(&sb, "- from %s: %s\n", r.RespondingAgent, data)
		}
	}
	if instruction != "" {
		sb.WriteString("\n")
		sb.WriteString(instruction)
	}
	return sb.String()
}
