package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"price_digest/services/dispatcher"
)

// Runner executes one digest run
type Runner interface {
	Run(ctx context.Context) (dispatcher.RunSummary, error)
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron    *gocron.Scheduler
	runner  Runner
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler instance. timeout bounds a single run;
// zero means no limit.
func NewScheduler(runner Runner, timeout time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		runner:  runner,
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the daily digest at digestTime ("HH:MM" UTC) and starts the scheduler
func (s *Scheduler) Start(digestTime string) error {
	s.logger.Info("starting scheduler", zap.String("digest_time_utc", digestTime))

	job, err := s.cron.Every(1).Day().At(digestTime).Tag("digest").SingletonMode().Do(s.runDigest)
	if err != nil {
		return fmt.Errorf("failed to schedule digest at %q: %w", digestTime, err)
	}

	s.cron.StartAsync()
	s.logger.Info("scheduler started", zap.Time("next_run", job.NextRun()))
	return nil
}

// Stop stops the scheduler and cancels a run in progress
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// runDigest executes one scheduled digest run
func (s *Scheduler) runDigest() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	summary, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, dispatcher.ErrRunInProgress):
		s.logger.Warn("digest skipped, previous run still in progress")
	case err != nil:
		s.logger.Error("digest run failed", zap.String("run_id", summary.RunID), zap.Error(err))
	default:
		s.logger.Info("scheduled digest completed",
			zap.String("run_id", summary.RunID),
			zap.Int("sent", summary.Sent),
			zap.Int("delivery_failed", summary.DeliveryFailed),
		)
	}
}
