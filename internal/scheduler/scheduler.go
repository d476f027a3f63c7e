// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a periodic unit of work such as a sync sweep.
type Job func(ctx context.Context) error

// Scheduler fires registered jobs on cron schedules.
type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field, plus descriptors like @every.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler. Jobs receive ctx when they fire.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		ctx:  ctx,
		cron: cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Every returns the descriptor for a fixed interval, e.g. "@every 30s".
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// Add registers job under name with the given schedule.
func (s *Scheduler) Add(name, schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if s.ctx.Err() != nil {
			return
		}
		slog.Debug("cron firing job", "name", name)
		if err := job(s.ctx); err != nil {
			slog.Warn("scheduled job failed", "name", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}
	slog.Info("scheduled job", "name", name, "schedule", schedule)
	return nil
}

// Start starts the cron ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron ticker and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
