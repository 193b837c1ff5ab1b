package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
	"chargeshare-backend/internal/service"
)

// Store is the read side the sweeps select candidates from.
type Store interface {
	Rentals() repository.RentalRepository
	Slots() repository.SlotRepository
	Devices() repository.DeviceRepository
}

// Options sets the sweep thresholds. They mirror the lifecycle's own
// thresholds; the lifecycle re-checks every condition under lock, so a
// mismatch only costs a wasted candidate.
type Options struct {
	BatchSize          int
	CancellationWindow time.Duration
	AbandonmentAfter   time.Duration
	StalePendingAfter  time.Duration
	DueReminderBefore  time.Duration
	Now                func() time.Time
}

// JobRunner coordinates all scheduled sweeps
type JobRunner struct {
	store   Store
	rentals service.RentalMaintenance
	opts    Options
	jobs    map[string]func(ctx context.Context) int
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(store Store, rentals service.RentalMaintenance, opts Options) *JobRunner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	jr := &JobRunner{store: store, rentals: rentals, opts: opts}
	jr.jobs = map[string]func(ctx context.Context) int{
		"overdue":        jr.MarkOverdueRentals,
		"late-fees":      jr.AssessLateFees,
		"abandoned":      jr.CloseAbandonedRentals,
		"expire-pending": jr.ExpireStalePending,
		"refunds":        jr.RetryRefunds,
		"docked-returns": jr.CompleteDockedReturns,
		"due-reminders":  jr.SendDueReminders,
		"integrity":      jr.CheckIntegrity,
		"reconcile":      jr.Reconcile,
	}
	return jr
}

// JobNames lists the jobs accepted by Run.
func (jr *JobRunner) JobNames() []string {
	names := make([]string, 0, len(jr.jobs))
	for name := range jr.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one named job (for manual execution)
func (jr *JobRunner) Run(ctx context.Context, name string) (int, error) {
	job, ok := jr.jobs[name]
	if !ok {
		return 0, fmt.Errorf("unknown job %q", name)
	}
	var n int
	jr.runWithRecovery(name, func() { n = job(ctx) })
	return n, nil
}

// Func adapts a named job to a cron callback.
func (jr *JobRunner) Func(name string) func() {
	return func() {
		if _, err := jr.Run(context.Background(), name); err != nil {
			logger.Error("Scheduled job failed", "job", name, "error", err)
		}
	}
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// each applies fn to every candidate. One failing rental never stops the
// sweep; it is picked up again on the next run.
func (jr *JobRunner) each(ctx context.Context, job string, ids []uuid.UUID, fn func(ctx context.Context, id uuid.UUID) error) int {
	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			logger.Warn("Sweep interrupted", "job", job, "processed", done)
			return done
		}
		if err := fn(ctx, id); err != nil {
			logger.Error("Sweep step failed", "job", job, "rentalID", id, "error", err)
			continue
		}
		done++
	}
	if len(ids) > 0 {
		logger.Info("Sweep finished", "job", job, "candidates", len(ids), "processed", done)
	}
	return done
}
