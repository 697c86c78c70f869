// Package scheduler drives periodic sync passes with a cron runner.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"notionrelay/internal/sync"
)

// Scheduler triggers full sync passes on a fixed interval. A pass that is
// still running when the next tick fires is not queued: the orchestrator
// rejects the overlapping trigger and the tick is dropped.
type Scheduler struct {
	cron *cron.Cron
	orch *sync.Orchestrator
	log  *slog.Logger
}

func New(orch *sync.Orchestrator, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		orch: orch,
		log:  logger,
	}
}

// Start registers the periodic job and begins ticking. The first pass runs
// immediately rather than waiting one full interval.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	spec := fmt.Sprintf("@every %ds", seconds)

	if _, err := s.cron.AddFunc(spec, func() { s.runPass(ctx) }); err != nil {
		return fmt.Errorf("registering sync job: %w", err)
	}

	s.log.Info("scheduler started", "interval", interval)
	go s.runPass(ctx)
	s.cron.Start()
	return nil
}

// Stop halts the ticker and waits for an in-flight pass to drain.
func (s *Scheduler) Stop() {
	drained := s.cron.Stop()
	<-drained.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runPass(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
	_, err := s.orch.SyncAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, sync.ErrAlreadySyncing):
		s.log.Debug("sync pass still running, tick dropped")
	default:
		s.log.Error("sync pass failed", "error", err)
	}
}
