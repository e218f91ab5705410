// Package scheduler runs the periodic digest and retention jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notifications.app/engine/common/logger"
)

// Job runs once per tick. now is the tick time in the scheduler's location.
type Job func(ctx context.Context, now time.Time) error

type Scheduler struct {
	mu     sync.Mutex
	parser cron.Parser
	cron   *cron.Cron
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
	names  map[string]cron.EntryID
}

func New(timezone string, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
		}
		loc = l
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}
	return &Scheduler{
		parser: parser,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		loc:    loc,
		logger: log,
		now:    time.Now,
		names:  map[string]cron.EntryID{},
	}, nil
}

// Add registers job under name. A run still in progress when the next tick
// fires makes that tick a no-op.
func (s *Scheduler) Add(ctx context.Context, name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.names[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("parsing schedule of %s: %w", name, err)
	}

	jobCtx := logger.WithLogFields(ctx, logger.LogFields{Component: "notifications.scheduler." + name})
	id, err := s.cron.AddFunc(spec, func() {
		s.RunNow(jobCtx, name, job)
	})
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	s.names[name] = id

	s.logger.InfoContext(ctx, "job scheduled", "job", name, "spec", spec, "tz", s.loc.String())
	return nil
}

// RunNow runs job once outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) {
	start := s.now()
	err := job(ctx, start.In(s.loc))
	elapsed := s.now().Sub(start)

	jobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		jobRunsTotal.WithLabelValues(name, "error").Inc()
		s.logger.ErrorContext(ctx, "scheduled job failed", "job", name, "error", err, "duration_ms", elapsed.Milliseconds())
		return
	}
	jobRunsTotal.WithLabelValues(name, "ok").Inc()
	s.logger.InfoContext(ctx, "scheduled job finished", "job", name, "duration_ms", elapsed.Milliseconds())
}

// Next reports when name fires next; zero when unknown.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs or ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
