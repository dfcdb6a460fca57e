package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "calview/internal/log"
)

const scheduledRefreshTimeout = 2 * time.Minute

// Scheduler runs a Refresher on a standard five-field cron schedule.
type Scheduler struct {
	cron *cron.Cron
	spec string
}

// cronLogger routes cron's own messages through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

// NewScheduler validates spec and registers r. Overlapping runs are
// skipped, not queued.
func NewScheduler(spec string, loc *time.Location, r *Refresher) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	s := &Scheduler{cron: c, spec: spec}
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduledRefreshTimeout)
		defer cancel()
		if _, err := r.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err, "schedule", spec)
		}
	}); err != nil {
		return nil, fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Next reports when the next refresh fires, or zero before Run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running refresh to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	appLog.Info("refresh scheduler started", "schedule", s.spec, "next", s.Next().Format(time.RFC3339))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
	return nil
}
