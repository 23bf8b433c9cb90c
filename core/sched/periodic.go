package sched

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Periodic runs a job on a cron schedule. It backs up the delayed queue:
// callbacks lost to a restart are caught up on the next tick.
type Periodic struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewPeriodic registers job under spec, a standard five-field cron
// expression or a descriptor such as "@every 1m".
func NewPeriodic(spec string, job func(context.Context) error, logger *slog.Logger) (*Periodic, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if err := job(context.Background()); err != nil {
			logger.Warn("periodic job failed", slog.String("schedule", spec), slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("sched: invalid schedule %q: %w", spec, err)
	}
	return &Periodic{cron: c, logger: logger}, nil
}

// Start runs the schedule in the background.
func (p *Periodic) Start() { p.cron.Start() }

// Stop halts the schedule and waits for a running job to finish or ctx to
// expire.
func (p *Periodic) Stop(ctx context.Context) {
	done := p.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
