// Package scheduler runs the retention janitor: on a cron schedule it
// deletes conversation history and finished turn records older than the
// configured retention.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/mtzanidakis/counterman/internal/config"
	"github.com/mtzanidakis/counterman/internal/natsbus"
	"github.com/mtzanidakis/counterman/internal/store"
)

type Scheduler struct {
	store     *store.Store
	nats      *natsbus.Client
	retention time.Duration
	expr      string
	now       func() time.Time
}

// PruneResult is published after every sweep.
type PruneResult struct {
	Cutoff   time.Time `json:"cutoff"`
	Messages int64     `json:"messages"`
	Turns    int64     `json:"turns"`
}

func New(s *store.Store, client *natsbus.Client, cfg config.HistoryConfig) (*Scheduler, error) {
	g := gronx.New()
	if !g.IsValid(cfg.PruneSchedule) {
		return nil, fmt.Errorf("invalid prune schedule %q", cfg.PruneSchedule)
	}
	return &Scheduler{
		store:     s,
		nats:      client,
		retention: cfg.Retention,
		expr:      cfg.PruneSchedule,
		now:       time.Now,
	}, nil
}

// Start sweeps on every tick of the schedule until ctx is done. A zero
// retention keeps everything and Start returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.retention <= 0 {
		slog.Info("retention disabled, scheduler not started")
		return
	}
	slog.Info("scheduler started", "schedule", s.expr, "retention", s.retention)

	for {
		next, err := NextRun(s.expr, s.now())
		if err != nil {
			slog.Error("failed to compute next prune", "schedule", s.expr, "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped")
			return
		case <-timer.C:
			if _, err := s.Prune(ctx); err != nil {
				slog.Error("prune failed", "error", err)
			}
		}
	}
}

// Prune deletes everything older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) (PruneResult, error) {
	res := PruneResult{Cutoff: s.now().Add(-s.retention)}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var err error
	if res.Messages, err = s.store.DeleteMessagesBefore(res.Cutoff); err != nil {
		return res, fmt.Errorf("prune messages: %w", err)
	}
	if res.Turns, err = s.store.DeleteTurnsBefore(res.Cutoff); err != nil {
		return res, fmt.Errorf("prune turns: %w", err)
	}

	slog.Info("retention sweep", "cutoff", res.Cutoff, "messages", res.Messages, "turns", res.Turns)
	if err := s.nats.PublishJSON(natsbus.TopicEventsPruned, res); err != nil {
		slog.Warn("publish prune event failed", "error", err)
	}
	return res, nil
}

// NextRun returns the first tick of expr strictly after ref.
func NextRun(expr string, ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, ref, false)
}
