// Package scheduler runs a job once a day at a wall-clock time
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is the scheduled work. Its error is logged, never fatal.
type Job func(ctx context.Context) error

// Daily triggers a job every day at hour:minute in loc. A trigger that
// fires while the previous run is still going is skipped.
type Daily struct {
	hour, minute int
	loc          *time.Location
	job          Job
	logger       *zap.Logger
	running      sync.Mutex
	inflight     sync.WaitGroup
	now          func() time.Time
}

// ParseClock parses "HH:MM"
func ParseClock(clock string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule time %q: %w", clock, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NewDaily creates a new daily scheduler
func NewDaily(clock, timezone string, job Job, logger *zap.Logger) (*Daily, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", timezone, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Daily{hour: hour, minute: minute, loc: loc, job: job, logger: logger, now: time.Now}, nil
}

// Next returns the first trigger strictly after now
func (d *Daily) Next(now time.Time) time.Time {
	local := now.In(d.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Start blocks, triggering the job daily until ctx is done. It returns
// only after any triggered run has finished.
func (d *Daily) Start(ctx context.Context) error {
	for {
		next := d.Next(d.now())
		d.logger.Info("Next triage run scheduled", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			d.inflight.Wait()
			return ctx.Err()
		case <-timer.C:
		}

		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.Trigger(ctx)
		}()
	}
}

// Trigger runs the job now unless a run is in progress. It reports
// whether the job ran.
func (d *Daily) Trigger(ctx context.Context) bool {
	if !d.running.TryLock() {
		d.logger.Warn("Previous triage run still in progress, skipping")
		return false
	}
	defer d.running.Unlock()

	if err := d.job(ctx); err != nil {
		d.logger.Error("Scheduled triage run failed", zap.Error(err))
	}
	return true
}
