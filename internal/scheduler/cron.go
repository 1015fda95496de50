package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Backfiller runs one metadata backfill sweep
type Backfiller interface {
	BackfillSweep(ctx context.Context) (int, error)
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	backfill Backfiller
	schedule string
	logger   *logrus.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a new scheduler running the backfill on schedule
// (standard five-field cron syntax)
func NewScheduler(backfill Backfiller, schedule string, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cron.VerbosePrintfLogger(logger)))),
		backfill: backfill,
		schedule: schedule,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runBackfill()
	})
	if err != nil {
		return fmt.Errorf("failed to add backfill job: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Scheduler started")

	return nil
}

// Stop stops the scheduler and cancels a running sweep
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
}

// runBackfill executes the backfill job; overlapping runs are skipped
func (s *Scheduler) runBackfill() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Previous backfill still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Backfill job panicked")
		}
	}()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("Running scheduled backfill")
	owners, err := s.backfill.BackfillSweep(s.ctx)
	if err != nil {
		s.logger.WithError(err).Error("Backfill job failed")
		return
	}
	s.logger.WithField("owners", owners).Info("Backfill job completed successfully")
}
