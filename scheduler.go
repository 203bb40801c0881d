package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	nearPollInterval = 5 * time.Second
	farPollInterval  = 60 * time.Second
	nearThreshold    = 5 * time.Minute

	dateLayout = "2006-01-02"
)

// Scheduler fires run at most once per calendar day, during the minute that
// starts at the target time.
type Scheduler struct {
	target   ClockTime
	schedule cron.Schedule
	run      func(ctx context.Context) error
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)

	lastRun string
}

func NewScheduler(target ClockTime, run func(ctx context.Context) error) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", target.Minute, target.Hour))
	if err != nil {
		return nil, fmt.Errorf("invalid target time %s: %w", target, err)
	}
	return &Scheduler{
		target:   target,
		schedule: schedule,
		run:      run,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// InWindow reports whether now falls in [target, target+1min) of its own day.
func (s *Scheduler) InWindow(now time.Time) bool {
	start := time.Date(now.Year(), now.Month(), now.Day(), s.target.Hour, s.target.Minute, 0, 0, now.Location())
	return !now.Before(start) && now.Before(start.Add(time.Minute))
}

// Tick runs the job if it is due. Today is recorded as done whether the run
// succeeds, fails or panics. Only an architecture mismatch is returned, since
// no later run could succeed either.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	now := s.now()
	today := now.Format(dateLayout)
	if !s.InWindow(now) || s.lastRun == today {
		return false, nil
	}

	Logf("info", "Target time %s reached. Starting bot run...", s.target)
	err := s.safeRun(ctx)
	s.lastRun = today

	switch {
	case errors.Is(err, ErrIncompatibleArch):
		Logf("critical", "Browser cannot run on this machine: %v", err)
		return true, err
	case err != nil:
		Logf("error", "Bot run failed: %v", err)
	default:
		Log("info", "Bot run completed.")
	}
	Logf("info", "Next run scheduled for %s.", s.NextRun(s.now()).Format("2006-01-02 15:04"))
	return true, nil
}

func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected panic during run: %v", r)
		}
	}()
	return s.run(ctx)
}

func (s *Scheduler) NextRun(now time.Time) time.Time {
	return s.schedule.Next(now)
}

// PollInterval shortens the wait when the next trigger is close.
func (s *Scheduler) PollInterval(now time.Time) time.Duration {
	if s.NextRun(now).Sub(now) <= nearThreshold {
		return nearPollInterval
	}
	return farPollInterval
}

// Loop polls until ctx is cancelled or a run reports a fatal error.
func (s *Scheduler) Loop(ctx context.Context) error {
	Logf("info", "Scheduled mode. Waiting for %s every day. Next run: %s",
		s.target, s.NextRun(s.now()).Format("2006-01-02 15:04"))

	for {
		if _, err := s.Tick(ctx); err != nil {
			return err
		}
		s.sleep(ctx, s.PollInterval(s.now()))
		if ctx.Err() != nil {
			Log("info", "Scheduler stopped.")
			return nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
