package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReconciler struct {
	mu      sync.Mutex
	calls   int
	summary *ReconcileSummary
	err     error
	block   chan struct{}
}

func (s *stubReconciler) ReconcileStalePayments(ctx context.Context) (*ReconcileSummary, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.summary, s.err
}

type stubCleaner struct {
	window time.Duration
}

func (c *stubCleaner) Cleanup(ctx context.Context, window time.Duration) (int64, error) {
	c.window = window
	return 3, nil
}

func TestReconciliationService_RunNow(t *testing.T) {
	reconciler := &stubReconciler{summary: &ReconcileSummary{Checked: 2, Completed: 1, Orphaned: 1}}
	svc := NewReconciliationService(reconciler, nil, "0 */10 * * * *", time.Minute, quietLogger())

	summary, err := svc.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)

	status := svc.GetJobStatus()
	assert.Contains(t, status, "last_reconciliation")
}

func TestReconciliationService_RunNowError(t *testing.T) {
	reconciler := &stubReconciler{err: errors.New("db down")}
	svc := NewReconciliationService(reconciler, nil, "0 */10 * * * *", time.Minute, quietLogger())

	_, err := svc.RunNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.NotContains(t, svc.GetJobStatus(), "last_reconciliation")
}

func TestReconciliationService_SkipsOverlappingRuns(t *testing.T) {
	reconciler := &stubReconciler{summary: &ReconcileSummary{}, block: make(chan struct{})}
	svc := NewReconciliationService(reconciler, nil, "0 */10 * * * *", time.Minute, quietLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunNow(context.Background())
	}()

	require.Eventually(t, func() bool {
		reconciler.mu.Lock()
		defer reconciler.mu.Unlock()
		return reconciler.calls == 1
	}, time.Second, 5*time.Millisecond)

	summary, err := svc.RunNow(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, summary)

	close(reconciler.block)
	<-done
	assert.Equal(t, 1, reconciler.calls)
}

func TestReconciliationService_StartSchedulesJobs(t *testing.T) {
	cleaner := &stubCleaner{}
	svc := NewReconciliationService(&stubReconciler{summary: &ReconcileSummary{}}, cleaner, "0 */10 * * * *", 2*time.Minute, quietLogger())

	require.NoError(t, svc.Start())
	defer svc.Stop()

	status := svc.GetJobStatus()
	assert.Equal(t, 2, status["job_count"])

	svc.cleanupJob()
	assert.Equal(t, 2*time.Minute, cleaner.window)
}

func TestReconciliationService_InvalidSchedule(t *testing.T) {
	svc := NewReconciliationService(&stubReconciler{}, nil, "not a schedule", time.Minute, quietLogger())
	assert.Error(t, svc.Start())
}
