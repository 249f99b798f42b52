package supervisor

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mtzanidakis/counterman/internal/conversation"
)

var ErrInvalidPolicy = errors.New("invalid routing policy")

// Member is one worker known to the supervisor.
type Member struct {
	ID          conversation.AgentID
	Description string
	// RequestOnly workers are reachable only through another agent's request.
	RequestOnly bool
}

// Policy is the worker set and the table of who may request whom.
type Policy struct {
	Members []Member
	Allow   map[conversation.AgentID][]conversation.AgentID
}

func (p Policy) member(id conversation.AgentID) (Member, bool) {
	for _, m := range p.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

func (p Policy) Known(id conversation.AgentID) bool {
	_, ok := p.member(id)
	return ok
}

// Allowed reports whether from may send a request to to.
func (p Policy) Allowed(from, to conversation.AgentID) bool {
	targets, ok := p.Allow[from]
	if !ok {
		return false
	}
	return slices.Contains(targets, to)
}

// Routable reports whether the model may choose id directly.
func (p Policy) Routable(id conversation.AgentID) bool {
	m, ok := p.member(id)
	return ok && !m.RequestOnly
}

// RoutableIDs lists the members the model may choose, in declaration order.
func (p Policy) RoutableIDs() []conversation.AgentID {
	var out []conversation.AgentID
	for _, m := range p.Members {
		if !m.RequestOnly {
			out = append(out, m.ID)
		}
	}
	return out
}

func (p Policy) Validate() error {
	if !p.Routable(conversation.HumanInteraction) {
		return fmt.Errorf("%w: %s must be a routable member", ErrInvalidPolicy, conversation.HumanInteraction)
	}
	seen := make(map[conversation.AgentID]bool, len(p.Members))
	for _, m := range p.Members {
		switch {
		case m.ID == "":
			return fmt.Errorf("%w: member with empty id", ErrInvalidPolicy)
		case m.ID == conversation.Supervisor || m.ID == conversation.End:
			return fmt.Errorf("%w: %s is reserved", ErrInvalidPolicy, m.ID)
		case seen[m.ID]:
			return fmt.Errorf("%w: duplicate member %s", ErrInvalidPolicy, m.ID)
		}
		seen[m.ID] = true
	}
	for from, targets := range p.Allow {
		if !seen[from] {
			return fmt.Errorf("%w: allow-list for unknown agent %s", ErrInvalidPolicy, from)
		}
		for _, to := range targets {
			if !seen[to] {
				return fmt.Errorf("%w: %s may request unknown agent %s", ErrInvalidPolicy, from, to)
			}
		}
	}
	if len(p.Allow[conversation.HumanInteraction]) > 0 {
		return fmt.Errorf("%w: %s may not request other agents", ErrInvalidPolicy, conversation.HumanInteraction)
	}
	return nil
}

// WithAllow returns a copy of p whose allow-lists are replaced by the given
// overrides, key by key.
func (p Policy) WithAllow(overrides map[string][]string) (Policy, error) {
	out := Policy{
		Members: slices.Clone(p.Members),
		Allow:   make(map[conversation.AgentID][]conversation.AgentID, len(p.Allow)),
	}
	for k, v := range p.Allow {
		out.Allow[k] = slices.Clone(v)
	}
	for from, targets := range overrides {
		ids := make([]conversation.AgentID, 0, len(targets))
		for _, t := range targets {
			ids = append(ids, conversation.AgentID(t))
		}
		out.Allow[conversation.AgentID(from)] = ids
	}
	if err := out.Validate(); err != nil {
		return Policy{}, err
	}
	return out, nil
}
