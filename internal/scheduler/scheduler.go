package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs maintenance every night at 03:00.
const DefaultSpec = "0 3 * * *"

// Maintainer is the part of the store the scheduler needs.
// Satisfied by store.LibSQLStore.
type Maintainer interface {
	DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error)
	Vacuum(ctx context.Context) error
}

// Result describes one maintenance run.
type Result struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Pruned    int64         `json:"pruned"`
	Err       string        `json:"error,omitempty"`
}

// Config controls the maintenance schedule.
type Config struct {
	Spec      string        // five-field cron expression; DefaultSpec when empty
	Retention time.Duration // executions untouched for longer are pruned; 0 disables pruning
}

// Scheduler prunes cached executions past their retention and vacuums the
// database on a cron schedule.
type Scheduler struct {
	store     Maintainer
	spec      string
	retention time.Duration
	parser    cron.Parser
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
	last *Result
}

// NewScheduler creates a new Scheduler. The cron expression is checked here
// so a bad configuration fails at startup.
func NewScheduler(s Maintainer, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	spec := cfg.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	sched := &Scheduler{
		store:     s,
		spec:      spec,
		retention: cfg.Retention,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:    logger,
		now:       time.Now,
	}
	if _, err := sched.parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return sched, nil
}

// Start registers the maintenance job and starts the cron runner. Runs that
// would overlap a still running one are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.spec, func() { _, _ = s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("scheduler started", slog.String("spec", s.spec), slog.Duration("retention", s.retention))
	return nil
}

// Stop waits for a running job and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunOnce prunes and vacuums immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	begin := time.Now()
	started := s.now().UTC()
	res := &Result{StartedAt: started}

	err := s.run(ctx, started, res)
	res.Duration = time.Since(begin)
	if err != nil {
		res.Err = err.Error()
		s.logger.Error("maintenance failed", slog.String("error", err.Error()))
	} else {
		s.logger.Info("maintenance finished",
			slog.Int64("pruned", res.Pruned),
			slog.Duration("duration", res.Duration),
		)
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res, err
}

func (s *Scheduler) run(ctx context.Context, now time.Time, res *Result) error {
	if s.retention > 0 {
		n, err := s.store.DeleteExecutionsBefore(ctx, now.Add(-s.retention))
		if err != nil {
			return fmt.Errorf("prune executions: %w", err)
		}
		res.Pruned = n
	}
	if err := s.store.Vacuum(ctx); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Last returns the most recent run, or nil if none happened yet.
func (s *Scheduler) Last() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

// NextRun computes the next run time after from.
func (s *Scheduler) NextRun(from time.Time) time.Time {
	schedule, _ := s.parser.Parse(s.spec)
	return schedule.Next(from)
}

// CalculateNextRun computes the next run time for an arbitrary cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
