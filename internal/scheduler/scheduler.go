package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/orchestrator"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*model.RunReport, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler owns the main loop: it runs the pipeline once at start, then on
// every tick of a cron schedule or fixed interval.
type Scheduler struct {
	runner   Runner
	schedule cron.Schedule
	describe string
	clock    clock.Clock
	logger   *slog.Logger
}

// NewScheduler builds a scheduler from a cron expression, or from interval
// when expr is empty.
func NewScheduler(runner Runner, expr string, interval time.Duration, clk clock.Clock, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		runner: runner,
		clock:  clk,
		logger: logger.With("component", "scheduler"),
	}
	if expr != "" {
		sched, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
		}
		s.schedule, s.describe = sched, expr
		return s, nil
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}
	s.schedule, s.describe = cron.Every(interval), "every "+interval.String()
	return s, nil
}

// Next returns the first tick after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run starts the loop. It returns nil when ctx is cancelled (graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "schedule", s.describe)

	s.runOnce(ctx)

	for {
		now := s.clock.Now()
		next := s.schedule.Next(now)
		s.logger.Debug("next run scheduled", "at", next)
		if err := s.clock.Sleep(ctx, next.Sub(now)); err != nil {
			s.logger.Info("shutting down scheduler")
			return nil
		}
		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrRunInProgress):
		s.logger.Info("skipping tick, previous run still active")
	case ctx.Err() != nil:
	default:
		// The orchestrator has already logged and alerted.
		s.logger.Warn("scheduled run failed", "error", err)
	}
}
