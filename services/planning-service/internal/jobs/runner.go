package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/md-rashed-zaman/trainingplanner/libs/lock"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/dedup"
)

// Deduplicator is the part of dedup.Maintainer the runner drives.
type Deduplicator interface {
	Run(ctx context.Context, req dedup.Request) (dedup.Report, error)
}

// ReportPublisher announces finished runs.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report dedup.Report) error
}

type RunnerConfig struct {
	// Schedule is a standard 5-field cron expression; empty disables it.
	Schedule string
	Location *time.Location
	LockName string
	LockTTL  time.Duration
}

// Runner is the single entry point for deduplication: the cron schedule,
// the admin endpoints and the Kafka trigger all go through RunOnce, which
// holds a distributed lock for the duration of the run.
type Runner struct {
	dedup     Deduplicator
	locker    lock.Locker
	publisher ReportPublisher
	logger    *slog.Logger
	cfg       RunnerConfig
}

func NewRunner(d Deduplicator, locker lock.Locker, publisher ReportPublisher, logger *slog.Logger, cfg RunnerConfig) *Runner {
	if cfg.LockName == "" {
		cfg.LockName = "planning-dedup"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Runner{dedup: d, locker: locker, publisher: publisher, logger: logger, cfg: cfg}
}

// RunOnce runs one pass. If another instance holds the lock it returns
// dedup.ErrAlreadyRunning without touching the store.
func (r *Runner) RunOnce(ctx context.Context, req dedup.Request) (dedup.Report, error) {
	name := r.cfg.LockName
	if req.PersonID != "" {
		name += ":" + req.PersonID
	}
	release, err := r.locker.TryLock(ctx, name, r.cfg.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		return dedup.Report{}, fmt.Errorf("%w: %w", dedup.ErrAlreadyRunning, err)
	}
	if err != nil {
		return dedup.Report{}, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("dedup lock release failed", "lock", name, "err", err)
		}
	}()

	report, runErr := r.dedup.Run(ctx, req)
	if report.RunID != "" && r.publisher != nil {
		if err := r.publisher.PublishReport(ctx, report); err != nil {
			r.logger.Warn("dedup report publish failed", "run_id", report.RunID, "err", err)
		}
	}
	return report, runErr
}

// Start schedules RunOnce and returns once the scheduler is running. The
// scheduler stops when ctx is done; overlapping ticks are skipped.
func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Schedule == "" {
		r.logger.Info("scheduled deduplication disabled")
		return nil
	}
	cronLog := slogCronLogger{logger: r.logger}
	c := cron.New(
		cron.WithLocation(r.cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(r.cfg.Schedule, func() { r.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", r.cfg.Schedule, err)
	}
	c.Start()
	r.logger.Info("scheduled deduplication enabled", "schedule", r.cfg.Schedule, "location", r.cfg.Location.String())

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func (r *Runner) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := r.RunOnce(ctx, dedup.Request{})
	switch {
	case err == nil:
	case errors.Is(err, dedup.ErrAlreadyRunning):
		r.logger.Info("scheduled deduplication skipped", "reason", err.Error())
	default:
		r.logger.Error("scheduled deduplication failed", "err", err)
	}
}

type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
