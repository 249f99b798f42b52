package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mtzanidakis/counterman/internal/conversation"
	"github.com/mtzanidakis/counterman/internal/llm"
)

const groundingRule = "Do NOT use any knowledge of the company or external websites beyond the information provided " +
	"in the conversation by the user or by the other agents. If the conversation does not contain the answer, say so."

// Human is the only worker that talks to the user. It either relays another
// agent's question (relay mode) or writes the final answer (synthesis mode).
type Human struct {
	model  llm.Model
	system string
	options
}

func NewHuman(model llm.Model, system string, opts ...Option) *Human {
	return &Human{
		model:   model,
		system:  strings.TrimSpace(system) + "\n\n" + groundingRule,
		options: newOptions(conversation.HumanInteraction, opts),
	}
}

func (h *Human) ID() conversation.AgentID { return conversation.HumanInteraction }

func (h *Human) Run(ctx context.Context, st conversation.State) (conversation.Command, error) {
	var prompt string
	if st.Dispatched != nil && st.Dispatched.TargetAgent == conversation.HumanInteraction {
		h.logger.Info("relaying request", "from", st.Dispatched.RequestingAgent, "type", st.Dispatched.RequestType)
		prompt = relayPrompt(st.Messages, *st.Dispatched)
	} else {
		prompt = synthesisPrompt(st.Messages, st.ErrorNote())
	}

	var out FinalAnswer
	res, err := invoke(ctx, h.model, conversation.HumanInteraction, h.options, llm.Call{
		System:   h.system,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Output:   Spec(&out),
	})
	if err != nil {
		return conversation.Command{}, err
	}
	switch err := llm.Decode(res, &out); {
	case errors.Is(err, llm.ErrNoStructuredOutput):
		out = FinalAnswer{Message: strings.TrimSpace(res.Text)}
	case err != nil:
		h.logger.Error("final answer rejected", "error", err)
		return conversation.Command{}, fmt.Errorf("%s: %w", conversation.HumanInteraction, err)
	}

	patch := conversation.Patch{
		CurrentAgent:    conversation.Ptr(conversation.HumanInteraction),
		ClearDispatched: true,
	}
	if out.Message != "" {
		patch.Messages = []conversation.Message{conversation.AgentMessage(conversation.HumanInteraction, out.Message)}
	}
	if out.OutputImage != nil && *out.OutputImage != "" {
		patch.OutputImage = out.OutputImage
	}
	if st.ErrorNote() != "" {
		patch.Scratch = map[string]any{conversation.ErrorKey: ""}
	}
	return conversation.Command{Goto: conversation.Supervisor, Patch: patch}, nil
}

func relayPrompt(msgs []conversation.Message, req conversation.AgentRequest) string {
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	sb.WriteString(conversation.Transcript(msgs))
	info := req.RequestInfo
	if info == "" {
		info = req.RequestType
	}
	if info == "" {
		info = "the details needed to continue"
	}
	fmt.Fprintf(&sb, "\nOther agents are requesting information about: %s\n", info)
	sb.WriteString("Use the conversation to respond to the customer and ask for the information needed. Ask only for that information.")
	return sb.String()
}

func synthesisPrompt(msgs []conversation.Message, errNote string) string {
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	sb.WriteString(conversation.Transcript(msgs))
	if errNote != "" {
		fmt.Fprintf(&sb, "\nAn internal problem occurred while handling this request (%s). ", errNote)
		sb.WriteString("Apologize briefly without technical details, share whatever the conversation already answers, " +
			"and ask the customer to rephrase or provide what is missing.\n")
	}
	sb.WriteString("\nWrite the reply to the customer. Only output the reply itself.")
	return sb.String()
}
