package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/logger"
)

// Job names accepted by run-job and used in logs.
const (
	JobStreakReset  = "streak-reset"
	JobLeaderboards = "leaderboards"
	JobReminders    = "reminders"
	JobSessions     = "sessions"
)

const defaultRunTimeout = 10 * time.Minute

// Jobs is the set of scheduled operations.
type Jobs interface {
	DailyStreakReset(ctx context.Context) (app.JobReport, error)
	RefreshLeaderboards(ctx context.Context) (app.JobReport, error)
	SendStreakReminders(ctx context.Context) (app.JobReport, error)
	HandleSessionTimeout(ctx context.Context) (app.JobReport, error)
}

// Specs holds one cron expression per job, evaluated in UTC.
type Specs struct {
	StreakReset  string
	Leaderboards string
	Reminders    string
	Sessions     string
}

func DefaultSpecs() Specs {
	return Specs{
		StreakReset:  "59 23 * * *",
		Leaderboards: "0 * * * *",
		Reminders:    "0 8 * * *",
		Sessions:     "*/5 * * * *",
	}
}

// JobFunc runs one job to completion.
type JobFunc func(ctx context.Context) (app.JobReport, error)

// Lookup returns the job registered under name.
func Lookup(jobs Jobs, name string) (JobFunc, error) {
	byName := map[string]JobFunc{
		JobStreakReset:  jobs.DailyStreakReset,
		JobLeaderboards: jobs.RefreshLeaderboards,
		JobReminders:    jobs.SendStreakReminders,
		JobSessions:     jobs.HandleSessionTimeout,
	}
	fn, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown job %q (want one of %v)", name, Names())
	}
	return fn, nil
}

// Names lists the job names in a stable order.
func Names() []string {
	names := []string{JobStreakReset, JobLeaderboards, JobReminders, JobSessions}
	sort.Strings(names)
	return names
}

// Scheduler runs the jobs on their cron specs. A run still in progress
// when its next tick fires is skipped.
type Scheduler struct {
	cron       *cron.Cron
	log        *logger.Logger
	runTimeout time.Duration
	entries    map[string]cron.EntryID
}

func New(jobs Jobs, specs Specs, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	adapter := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		log:        log,
		runTimeout: defaultRunTimeout,
		entries:    make(map[string]cron.EntryID),
	}

	defaults := DefaultSpecs()
	plan := []struct {
		name, spec, fallback string
	}{
		{JobStreakReset, specs.StreakReset, defaults.StreakReset},
		{JobLeaderboards, specs.Leaderboards, defaults.Leaderboards},
		{JobReminders, specs.Reminders, defaults.Reminders},
		{JobSessions, specs.Sessions, defaults.Sessions},
	}
	for _, p := range plan {
		spec := p.spec
		if spec == "" {
			spec = p.fallback
		}
		fn, err := Lookup(jobs, p.name)
		if err != nil {
			return nil, err
		}
		id, err := s.cron.AddFunc(spec, s.wrap(p.name, fn))
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", p.name, spec, err)
		}
		s.entries[p.name] = id
		log.Info("job scheduled", "job", p.name, "spec", spec)
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, fn JobFunc) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()
		start := time.Now()
		report, err := fn(ctx)
		if err != nil {
			s.log.Error("scheduled job failed", "job", name, "elapsed", time.Since(start), "failed", report.Failed, "error", err)
			return
		}
		s.log.Debug("scheduled job done", "job", name, "elapsed", time.Since(start))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
}

// Next reports when the named job fires next; zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Trigger runs the named job's wrapped func synchronously.
func (s *Scheduler) Trigger(name string) error {
	id, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	s.cron.Entry(id).WrappedJob.Run()
	return nil
}

type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
