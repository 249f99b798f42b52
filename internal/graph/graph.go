// Package graph runs one conversation turn: it starts at the supervisor,
// invokes one node at a time, applies each node's patch and follows its goto
// until the end marker.
package graph

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/mtzanidakis/counterman/internal/conversation"
)

var ErrUnknownNode = errors.New("unknown node")

// Step is the observable result of one node invocation. State is the state
// after the node's patch was applied.
type Step struct {
	Index    int
	Node     conversation.AgentID
	Goto     conversation.AgentID
	Patch    conversation.Patch
	State    conversation.State
	Duration time.Duration
}

// Observer is called synchronously after every step.
type Observer func(ctx context.Context, s Step)

type Option func(*Runner)

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, o)
	}
}

type Runner struct {
	nodes     map[conversation.AgentID]conversation.Node
	observers []Observer
}

func New(nodes map[conversation.AgentID]conversation.Node, opts ...Option) (*Runner, error) {
	if _, ok := nodes[conversation.Supervisor]; !ok {
		return nil, fmt.Errorf("%w: no %s node registered", ErrUnknownNode, conversation.Supervisor)
	}
	for id, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("node %s is nil", id)
		}
	}
	r := &Runner{nodes: nodes}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runner) Has(id conversation.AgentID) bool {
	_, ok := r.nodes[id]
	return ok
}

// Stream yields every step of the turn. It stops after the step whose goto
// is conversation.End, on the first node error, or when ctx is done; errors
// are yielded once as the last element.
func (r *Runner) Stream(ctx context.Context, st conversation.State) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		cur := conversation.Supervisor
		for i := 0; ; i++ {
			if err := ctx.Err(); err != nil {
				yield(Step{Index: i, Node: cur}, err)
				return
			}

			node, ok := r.nodes[cur]
			if !ok {
				yield(Step{Index: i, Node: cur}, fmt.Errorf("%w: %q", ErrUnknownNode, cur))
				return
			}

			start := time.Now()
			cmd, err := node.Run(ctx, st)
			if err != nil {
				yield(Step{Index: i, Node: cur, Duration: time.Since(start)}, fmt.Errorf("node %s: %w", cur, err))
				return
			}

			st = conversation.Merge(st, cmd.Patch)
			step := Step{
				Index:    i,
				Node:     cur,
				Goto:     cmd.Goto,
				Patch:    cmd.Patch,
				State:    st,
				Duration: time.Since(start),
			}
			slog.Debug("graph step", "index", i, "node", cur, "goto", cmd.Goto, "duration", step.Duration)

			for _, o := range r.observers {
				o(ctx, step)
			}
			if !yield(step, nil) {
				return
			}
			if cmd.Goto == conversation.End {
				return
			}
			cur = cmd.Goto
		}
	}
}

// Run drains Stream and returns the final state. On error the state reached
// so far is returned with it.
func (r *Runner) Run(ctx context.Context, st conversation.State) (conversation.State, error) {
	final := st
	for step, err := range r.Stream(ctx, st) {
		if err != nil {
			return final, err
		}
		final = step.State
	}
	return final, nil
}
