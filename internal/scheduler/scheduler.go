package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SessionSweeper drops idle chat sessions.
type SessionSweeper interface {
	EvictIdle(ttl time.Duration) int
}

// Reclassifier runs a batch classification pass.
type Reclassifier interface {
	RunBatch(ctx context.Context) (int, error)
}

type Config struct {
	SessionTTL        time.Duration
	SessionSweepSpec  string
	ReclassifySpec    string
	ReclassifyTimeout time.Duration
}

// Scheduler owns the background jobs. Jobs never overlap with themselves.
type Scheduler struct {
	cron   *rcron.Cron
	logger zerolog.Logger
	jobs   []string
}

func New(cfg Config, sessions SessionSweeper, reclassify Reclassifier, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "scheduler").Logger()
	s := &Scheduler{
		cron: rcron.New(rcron.WithChain(
			rcron.Recover(cronLogger{logger}),
			rcron.SkipIfStillRunning(cronLogger{logger}),
		)),
		logger: logger,
	}

	if sessions != nil && cfg.SessionSweepSpec != "" {
		ttl := cfg.SessionTTL
		if ttl <= 0 {
			ttl = 30 * time.Minute
		}
		if err := s.add("session_sweep", cfg.SessionSweepSpec, func() {
			if n := sessions.EvictIdle(ttl); n > 0 {
				logger.Info().Int("evicted", n).Msg("idle sessions evicted")
			}
		}); err != nil {
			return nil, err
		}
	}

	if reclassify != nil && cfg.ReclassifySpec != "" {
		timeout := cfg.ReclassifyTimeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		if err := s.add("reclassify", cfg.ReclassifySpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			n, err := reclassify.RunBatch(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("reclassification failed")
				return
			}
			logger.Info().Int("classified", n).Msg("reclassification finished")
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, fn func()) error {
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("schedule %s (%s): %w", name, spec, err)
	}
	s.jobs = append(s.jobs, name)
	return nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	return append([]string(nil), s.jobs...)
}

// Run starts the jobs and blocks until ctx is done, then waits for running
// jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info().Str("jobs", strings.Join(s.jobs, ",")).Msg("scheduler started")
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn().Msg("scheduler stop timeout waiting for running jobs")
	}
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
