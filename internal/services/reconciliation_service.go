package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PaymentReconciler settles stale payments; *PaymentService implements it
type PaymentReconciler interface {
	ReconcileStalePayments(ctx context.Context) (*ReconcileSummary, error)
}

// RateLimitCleaner purges expired rate limit hits; *DBRateLimitStore implements it
type RateLimitCleaner interface {
	Cleanup(ctx context.Context, window time.Duration) (int64, error)
}

// Hourly at minute 5
const rateLimitCleanupSchedule = "0 5 * * * *"

// ReconciliationService runs the scheduled payment sweep and housekeeping jobs
type ReconciliationService struct {
	cron       *cron.Cron
	reconciler PaymentReconciler
	cleaner    RateLimitCleaner
	window     time.Duration
	schedule   string
	timeout    time.Duration
	logger     *logrus.Logger

	mu      sync.Mutex
	running bool
	last    *ReconcileSummary
	lastRun time.Time
}

// NewReconciliationService creates the scheduler. cleaner may be nil when
// rate limiting is backed by Redis.
func NewReconciliationService(reconciler PaymentReconciler, cleaner RateLimitCleaner, schedule string, rateWindow time.Duration, logger *logrus.Logger) *ReconciliationService {
	return &ReconciliationService{
		// second minute hour day month weekday
		cron:       cron.New(cron.WithSeconds()),
		reconciler: reconciler,
		cleaner:    cleaner,
		window:     rateWindow,
		schedule:   schedule,
		timeout:    5 * time.Minute,
		logger:     logger,
	}
}

// Start schedules the jobs and starts the cron scheduler
func (s *ReconciliationService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.reconcileJob); err != nil {
		return fmt.Errorf("failed to schedule payment reconciliation %q: %w", s.schedule, err)
	}
	s.logger.WithField("schedule", s.schedule).Info("Scheduled: payment reconciliation")

	if s.cleaner != nil {
		if _, err := s.cron.AddFunc(rateLimitCleanupSchedule, s.cleanupJob); err != nil {
			return fmt.Errorf("failed to schedule rate limit cleanup: %w", err)
		}
		s.logger.WithField("schedule", rateLimitCleanupSchedule).Info("Scheduled: rate limit cleanup")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *ReconciliationService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunNow runs one reconciliation sweep immediately. Overlapping runs are
// skipped and report nil.
func (s *ReconciliationService) RunNow(ctx context.Context) (*ReconcileSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Payment reconciliation already running, skipping")
		return nil, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	summary, err := s.reconciler.ReconcileStalePayments(ctx)
	if err != nil {
		return summary, fmt.Errorf("payment reconciliation failed: %w", err)
	}

	s.mu.Lock()
	s.last = summary
	s.lastRun = start
	s.mu.Unlock()

	s.logger.WithField("duration", time.Since(start).String()).Debug("Payment reconciliation job finished")
	return summary, nil
}

func (s *ReconciliationService) reconcileJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		s.logger.WithError(err).Error("[CRON] Payment reconciliation failed")
	}
}

func (s *ReconciliationService) cleanupJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	removed, err := s.cleaner.Cleanup(ctx, s.window)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Rate limit cleanup failed")
		return
	}
	s.logger.WithField("removed", removed).Debug("[CRON] Rate limit cleanup finished")
}

// GetJobStatus returns the status of scheduled jobs
func (s *ReconciliationService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
	if s.last != nil {
		status["last_reconciliation"] = map[string]interface{}{
			"started_at": s.lastRun,
			"summary":    s.last,
		}
	}
	return status
}
