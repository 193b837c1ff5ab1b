package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/pricing"
	"chargeshare-backend/internal/repository"
)

// MarkOverdue moves an ACTIVE rental past its due time to OVERDUE.
func (s *Lifecycle) MarkOverdue(ctx context.Context, rentalID uuid.UUID) error {
	var overdue *domain.Rental
	err := s.inTx(ctx, "mark_overdue", func(ctx context.Context, tx repository.Repositories) error {
		overdue = nil
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if r.Status != domain.RentalStatusActive || !s.now().After(r.DueAt) {
			return nil
		}
		r.Status = domain.RentalStatusOverdue
		if err := tx.Rentals().Update(ctx, r); err != nil {
			return err
		}
		overdue = r
		return nil
	})
	if err != nil {
		return err
	}
	if overdue != nil {
		logger.WithRental(rentalID.String()).Info("Rental overdue", "dueAt", overdue.DueAt)
		s.fire(ctx, overdue, domain.EventRentalOverdue, nil)
	}
	return nil
}

// AssessLateFee recomputes the late fee of an OVERDUE prepaid rental. The
// stored amount only ever grows, so a policy change cannot lower a fee that
// was already announced. The user is notified the first time it is non-zero.
func (s *Lifecycle) AssessLateFee(ctx context.Context, rentalID uuid.UUID) error {
	cfg, err := s.settings.GetActiveFeeConfig(ctx)
	if err != nil {
		logger.Warn("Fee configuration unavailable", "error", err)
		cfg = nil
	}

	var (
		charged *domain.Rental
		notify  bool
	)
	err = s.inTx(ctx, "assess_late_fee", func(ctx context.Context, tx repository.Repositories) error {
		charged, notify = nil, false
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if r.Status != domain.RentalStatusOverdue || r.PaymentModel != domain.PaymentModelPrepaid {
			return nil
		}
		fee, _ := pricing.LateFee(r.RatePerMinute(), r.OverdueMinutes(s.now()), cfg)
		if !fee.GreaterThan(r.OverdueAmount) {
			return nil
		}
		r.OverdueAmount = fee
		r.AmountDue = fee
		if _, sent := r.Metadata[domain.MetaLateFeeNotified]; !sent {
			r.SetMeta(domain.MetaLateFeeNotified, s.now().UTC().Format(time.RFC3339))
			notify = true
		}
		if err := tx.Rentals().Update(ctx, r); err != nil {
			return err
		}
		charged = r
		return nil
	})
	if err != nil {
		return err
	}
	if charged != nil {
		logger.WithRental(rentalID.String()).Info("Late fee assessed", "amount", charged.OverdueAmount.String())
		if notify {
			s.fire(ctx, charged, domain.EventLateFeeCharged, map[string]string{"amount": charged.OverdueAmount.StringFixed(2)})
		}
	}
	return nil
}

// ForceClose ends a rental that stayed OVERDUE beyond the abandonment
// ceiling. The device is written off, the origin slot released and the
// abandonment penalty added to whatever the rental already owed.
func (s *Lifecycle) ForceClose(ctx context.Context, rentalID uuid.UUID) error {
	cfg, err := s.settings.GetActiveFeeConfig(ctx)
	if err != nil {
		logger.Warn("Fee configuration unavailable", "error", err)
		cfg = nil
	}
	penalty := decimal.Max(s.opts.AbandonmentPenalty, decimal.Zero)

	var closed *domain.Rental
	err = s.inTx(ctx, "force_close", func(ctx context.Context, tx repository.Repositories) error {
		closed = nil
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		now := s.now()
		if r.Status != domain.RentalStatusOverdue || !now.After(r.DueAt.Add(s.opts.AbandonmentAfter)) {
			return nil
		}

		owed := r.OverdueAmount
		if r.PaymentModel == domain.PaymentModelPostpaid && r.StartedAt != nil {
			owed = pricing.UsageCost(r.RatePerMinute(), now.Sub(*r.StartedAt))
		} else {
			fee, _ := pricing.LateFee(r.RatePerMinute(), r.OverdueMinutes(now), cfg)
			owed = decimal.Max(owed, fee)
			r.OverdueAmount = owed
		}

		r.Status = domain.RentalStatusCompleted
		r.EndedAt = &now
		r.ReturnedOnTime = false
		r.AmountDue = owed.Add(penalty)
		if r.AmountDue.IsPositive() {
			r.PaymentStatus = domain.PaymentStatusPending
		}
		r.SetMeta(domain.MetaCloseReason, "abandoned")
		r.SetMeta(domain.MetaAbandonmentFee, penalty.StringFixed(2))

		if err := s.alloc.ReleaseOrigin(ctx, tx, r); err != nil {
			return err
		}
		if r.DeviceID != nil {
			if err := s.alloc.MarkLost(ctx, tx, *r.DeviceID); err != nil {
				return err
			}
		}
		if err := tx.Rentals().Update(ctx, r); err != nil {
			return err
		}
		closed = r
		return nil
	})
	if err != nil {
		return err
	}
	if closed == nil {
		return nil
	}

	owed := closed.AmountDue
	logger.Alert("rental_abandoned", "rentalID", rentalID, "userID", closed.UserID, "amountDue", owed.String())
	if owed.IsPositive() {
		closed = s.collectOutstanding(ctx, closed, domain.PaymentKindPenalty)
	}
	s.fire(ctx, closed, domain.EventRentalAbandoned, map[string]string{"amount": owed.StringFixed(2)})
	return nil
}

// ExpirePending cancels a rental stuck in PENDING, normally one whose start
// payment failed and whose compensating release did not complete.
func (s *Lifecycle) ExpirePending(ctx context.Context, rentalID uuid.UUID) error {
	var expired *domain.Rental
	err := s.inTx(ctx, "expire_pending", func(ctx context.Context, tx repository.Repositories) error {
		expired = nil
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		now := s.now()
		if r.Status != domain.RentalStatusPending || now.Sub(r.CreatedAt) < s.opts.StalePendingAfter {
			return nil
		}
		payments, err := tx.Payments().ListByRental(ctx, r.ID)
		if err != nil {
			return err
		}
		r.Status = domain.RentalStatusCancelled
		r.EndedAt = &now
		r.SetMeta(domain.MetaCancelReason, "payment_timeout")
		if hasRefundable(payments) {
			r.PaymentStatus = domain.PaymentStatusRefundPending
		}
		if err := s.alloc.ReleaseOrigin(ctx, tx, r); err != nil {
			return err
		}
		if err := s.alloc.RestoreAtOrigin(ctx, tx, r); err != nil {
			return err
		}
		if err := tx.Rentals().Update(ctx, r); err != nil {
			return err
		}
		expired = r
		return nil
	})
	if err != nil {
		return err
	}
	if expired == nil {
		return nil
	}
	logger.WithRental(rentalID.String()).Info("Expired stale pending rental")
	if expired.PaymentStatus == domain.PaymentStatusRefundPending {
		if _, err := s.completeRefunds(ctx, rentalID); err != nil {
			logger.WithRental(rentalID.String()).Warn("Refund deferred", "error", err)
		}
	}
	s.fire(ctx, expired, domain.EventRentalCancelled, map[string]string{"reason": "payment_timeout"})
	return nil
}

// RetryRefund finishes the refunds of a cancelled rental left REFUND_PENDING.
func (s *Lifecycle) RetryRefund(ctx context.Context, rentalID uuid.UUID) error {
	r, err := s.store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return err
	}
	if r.PaymentStatus != domain.PaymentStatusRefundPending {
		return nil
	}
	if _, err := s.completeRefunds(ctx, rentalID); err != nil {
		return err
	}
	logger.WithRental(rentalID.String()).Info("Refund completed on retry")
	return nil
}

// SendDueReminder notifies the user once that an ACTIVE rental is nearly due.
func (s *Lifecycle) SendDueReminder(ctx context.Context, rentalID uuid.UUID) error {
	var due *domain.Rental
	err := s.inTx(ctx, "due_reminder", func(ctx context.Context, tx repository.Repositories) error {
		due = nil
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if r.Status != domain.RentalStatusActive {
			return nil
		}
		if _, sent := r.Metadata[domain.MetaReminderSent]; sent {
			return nil
		}
		r.SetMeta(domain.MetaReminderSent, "true")
		if err := tx.Rentals().Update(ctx, r); err != nil {
			return err
		}
		due = r
		return nil
	})
	if err != nil {
		return err
	}
	if due != nil {
		s.fire(ctx, due, domain.EventDueReminder, nil)
	}
	return nil
}

// CompleteDockedReturn returns a rental whose device was seated back in its
// origin bay but never cancelled, once the cancellation window has passed.
func (s *Lifecycle) CompleteDockedReturn(ctx context.Context, rentalID uuid.UUID) error {
	r, err := s.store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return err
	}
	if !r.Status.IsLive() || r.Status == domain.RentalStatusPending || r.DeviceID == nil {
		return nil
	}
	if s.cancelWindowOpen(r, s.now()) {
		return nil
	}
	device, err := s.store.Devices().GetByID(ctx, *r.DeviceID)
	if err != nil {
		return err
	}
	if !device.InOriginSlot(r) {
		return nil
	}
	slot, err := s.store.Slots().GetByID(ctx, r.OriginSlotID)
	if err != nil {
		return err
	}
	_, err = s.Return(ctx, r.ID, r.OriginKioskID, slot.SlotNumber, device.BatteryLevel)
	return err
}
