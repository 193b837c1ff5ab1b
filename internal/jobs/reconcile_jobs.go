package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

// Reconcile runs the lifecycle sweeps in dependency order: rentals become
// overdue before fees are assessed, and fees before abandonment closes them.
func (jr *JobRunner) Reconcile(ctx context.Context) int {
	n := jr.MarkOverdueRentals(ctx)
	n += jr.AssessLateFees(ctx)
	n += jr.CloseAbandonedRentals(ctx)
	n += jr.ExpireStalePending(ctx)
	n += jr.RetryRefunds(ctx)
	n += jr.CompleteDockedReturns(ctx)
	return n
}

// MarkOverdueRentals moves ACTIVE rentals past due to OVERDUE
func (jr *JobRunner) MarkOverdueRentals(ctx context.Context) int {
	return jr.sweepDue(ctx, "overdue", repository.DueQuery{
		Status: domain.RentalStatusActive,
		Before: jr.opts.Now(),
	}, jr.rentals.MarkOverdue)
}

// AssessLateFees recomputes late fees for prepaid OVERDUE rentals. Postpaid
// rentals settle their overtime at return.
func (jr *JobRunner) AssessLateFees(ctx context.Context) int {
	return jr.sweepDue(ctx, "late-fees", repository.DueQuery{
		Status:       domain.RentalStatusOverdue,
		Before:       jr.opts.Now(),
		PaymentModel: domain.PaymentModelPrepaid,
	}, jr.rentals.AssessLateFee)
}

// CloseAbandonedRentals force-closes rentals overdue beyond the abandonment ceiling
func (jr *JobRunner) CloseAbandonedRentals(ctx context.Context) int {
	return jr.sweepDue(ctx, "abandoned", repository.DueQuery{
		Status: domain.RentalStatusOverdue,
		Before: jr.opts.Now().Add(-jr.opts.AbandonmentAfter),
	}, jr.rentals.ForceClose)
}

// ExpireStalePending cancels rentals whose start never completed
func (jr *JobRunner) ExpireStalePending(ctx context.Context) int {
	cutoff := jr.opts.Now().Add(-jr.opts.StalePendingAfter)
	rentals, err := jr.store.Rentals().ListCreatedBefore(ctx, domain.RentalStatusPending, cutoff, jr.opts.BatchSize)
	if err != nil {
		logger.Error("Failed to list stale pending rentals", "error", err)
		return 0
	}
	return jr.each(ctx, "expire-pending", ids(rentals), jr.rentals.ExpirePending)
}

// RetryRefunds finishes refunds that failed at cancellation time
func (jr *JobRunner) RetryRefunds(ctx context.Context) int {
	return jr.sweep(ctx, "refunds", func(after repository.Cursor) ([]domain.Rental, error) {
		return jr.store.Rentals().ListByPaymentStatus(ctx, domain.PaymentStatusRefundPending, after, jr.opts.BatchSize)
	}, func(r domain.Rental) time.Time { return r.CreatedAt }, jr.rentals.RetryRefund)
}

// CompleteDockedReturns returns rentals whose device sits in its origin slot
// after the cancellation window closed
func (jr *JobRunner) CompleteDockedReturns(ctx context.Context) int {
	cutoff := jr.opts.Now().Add(-jr.opts.CancellationWindow)
	rentals, err := jr.store.Rentals().ListDockedAtOrigin(ctx, cutoff, jr.opts.BatchSize)
	if err != nil {
		logger.Error("Failed to list docked rentals", "error", err)
		return 0
	}
	return jr.each(ctx, "docked-returns", ids(rentals), jr.rentals.CompleteDockedReturn)
}

// SendDueReminders notifies users whose rental is due soon
func (jr *JobRunner) SendDueReminders(ctx context.Context) int {
	now := jr.opts.Now()
	rentals, err := jr.store.Rentals().ListDueBetween(ctx, now, now.Add(jr.opts.DueReminderBefore), jr.opts.BatchSize)
	if err != nil {
		logger.Error("Failed to list rentals due soon", "error", err)
		return 0
	}
	var pending []domain.Rental
	for _, r := range rentals {
		if _, sent := r.Metadata[domain.MetaReminderSent]; !sent {
			pending = append(pending, r)
		}
	}
	return jr.each(ctx, "due-reminders", ids(pending), jr.rentals.SendDueReminder)
}

func (jr *JobRunner) sweepDue(ctx context.Context, job string, q repository.DueQuery, fn func(ctx context.Context, id uuid.UUID) error) int {
	q.Limit = jr.opts.BatchSize
	return jr.sweep(ctx, job, func(after repository.Cursor) ([]domain.Rental, error) {
		q.After = after
		return jr.store.Rentals().ListDueBefore(ctx, q)
	}, func(r domain.Rental) time.Time { return r.DueAt }, fn)
}

// sweep pages through every candidate with a keyset cursor, so rentals a
// step leaves in place never hide the ones behind them. key must be the
// column fetch orders by.
func (jr *JobRunner) sweep(ctx context.Context, job string, fetch func(after repository.Cursor) ([]domain.Rental, error),
	key func(domain.Rental) time.Time, fn func(ctx context.Context, id uuid.UUID) error) int {
	var (
		after repository.Cursor
		done  int
	)
	for ctx.Err() == nil {
		page, err := fetch(after)
		if err != nil {
			logger.Error("Failed to list sweep candidates", "job", job, "error", err)
			break
		}
		done += jr.each(ctx, job, ids(page), fn)
		if len(page) < jr.opts.BatchSize {
			break
		}
		last := page[len(page)-1]
		after = repository.Cursor{At: key(last), ID: last.ID}
	}
	return done
}

func ids(rentals []domain.Rental) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(rentals))
	for _, r := range rentals {
		out = append(out, r.ID)
	}
	return out
}
