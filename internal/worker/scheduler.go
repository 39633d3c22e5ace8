package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the refresh job on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	job    *RefreshJob
	spec   string
	logger zerolog.Logger
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	// Spec is a standard five-field cron expression or a descriptor such as
	// "@every 10m".
	Spec   string
	Job    *RefreshJob
	Logger zerolog.Logger
}

// NewScheduler validates the schedule and registers the job. Overlapping runs
// are skipped while a previous refresh is still in progress.
func NewScheduler(ctx context.Context, cfg SchedulerConfig) (*Scheduler, error) {
	logger := cronLogger{log: cfg.Logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(cfg.Spec, func() {
		cfg.Job.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("error scheduling refresh job %q: %w", cfg.Spec, err)
	}

	return &Scheduler{cron: c, job: cfg.Job, spec: cfg.Spec, logger: cfg.Logger}, nil
}

// Start runs one refresh immediately so fields exist before the first tick,
// then starts the cron loop. It returns once the initial refresh is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Str("schedule", s.spec).Msg("starting refresh scheduler")
	s.job.Run(ctx)
	s.cron.Start()
}

// Stop stops scheduling and returns a context that is done when running
// jobs have completed.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}
