package orchestrator

import (
	"context"
	"fmt"
	"time"

	"deskhand/internal/config"
	"deskhand/internal/eventlog"
	"deskhand/internal/supervisor"
)

// job is one periodic duty. A job failure, whether error or panic, is caught
// and logged per job; it never kills the scheduler.
type job struct {
	name string
	next time.Time
	// reschedule computes the following run after now.
	reschedule func(now time.Time) time.Time
	run        func(ctx context.Context) error
}

func (o *Orchestrator) buildJobs() []*job {
	now := o.now()

	healthInterval := o.cfg.HealthCheckInterval()
	dailyAt, _ := config.ParseClock(o.cfg.Scheduler.DailyBriefingAt)
	weeklyAt, _ := config.ParseClock(o.cfg.Scheduler.WeeklyBriefingAt)
	weeklyDay, _ := config.ParseWeekday(o.cfg.Scheduler.WeeklyBriefingDay)

	health := &job{
		name:       "health_check",
		next:       now.Add(healthInterval),
		reschedule: func(now time.Time) time.Time { return now.Add(healthInterval) },
		run:        o.runHealthCheck,
	}

	daily := &job{
		name:       "daily_briefing",
		next:       nextDaily(now, dailyAt),
		reschedule: func(now time.Time) time.Time { return nextDaily(now, dailyAt) },
		run:        o.generateDailyBriefing,
	}

	weekly := &job{
		name:       "weekly_briefing",
		next:       nextWeekly(now, weeklyDay, weeklyAt),
		reschedule: func(now time.Time) time.Time { return nextWeekly(now, weeklyDay, weeklyAt) },
		run:        o.generateWeeklyBriefing,
	}

	return []*job{health, daily, weekly}
}

// runDueJobs executes every job whose time has come. Called on each scheduler
// tick.
func (o *Orchestrator) runDueJobs(ctx context.Context) {
	now := o.now()
	for _, j := range o.jobs {
		if now.Before(j.next) {
			continue
		}
		j.next = j.reschedule(now)
		o.runJob(ctx, j)
	}
}

func (o *Orchestrator) runJob(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scheduled job panicked", "job", j.name, "panic", r)
		}
	}()

	if err := j.run(ctx); err != nil {
		o.logger.Error("scheduled job failed", "job", j.name, "error", err)
	}
}

// runHealthCheck polls each collector child for unexpected exits. A crashed
// collector is marked failed and logged; the baseline deliberately does not
// restart it.
func (o *Orchestrator) runHealthCheck(ctx context.Context) error {
	status := o.GetStatus()

	healthy := 0
	for name, state := range status.CollectorStates {
		switch state {
		case supervisor.StateRunning:
			healthy++
		case supervisor.StateFailed:
			o.logger.Warn("collector has stopped unexpectedly", "collector", name)
			if err := o.events.Append(eventlog.Record{
				Kind:    eventlog.KindCollectorCrash,
				Subject: name,
				Detail:  fmt.Sprintf("exit: %v", o.collectorExitError(name)),
			}); err != nil {
				o.logger.Warn("failed to record collector crash", "error", err)
			}
		}
	}

	o.logger.Info("health check completed",
		"collectors_healthy", healthy,
		"collectors_total", len(status.CollectorStates))
	return nil
}

func (o *Orchestrator) collectorExitError(name string) error {
	for _, proc := range o.collectors {
		if proc.Name() == name {
			return proc.ExitError()
		}
	}
	return nil
}

// nextDaily returns the next occurrence of hour:minute strictly after now.
func nextDaily(now time.Time, at [2]int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), at[0], at[1], 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextWeekly returns the next occurrence of weekday at hour:minute strictly
// after now.
func nextWeekly(now time.Time, day time.Weekday, at [2]int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), at[0], at[1], 0, 0, now.Location())
	offset := (int(day) - int(now.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, offset)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}
