package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/pricing"
	"chargeshare-backend/internal/repository"
)

var (
	_ RentalService     = (*Lifecycle)(nil)
	_ RentalMaintenance = (*Lifecycle)(nil)
)

// Lifecycle drives a rental through PENDING, ACTIVE, OVERDUE and its terminal
// states. Interactive requests, hardware callbacks and the reconciler all
// enter through it, so each transition has exactly one implementation.
//
// Store transactions never span a ledger call. Money moves between
// transactions and is compensated explicitly when the follow-up transaction
// cannot commit.
type Lifecycle struct {
	store    repository.Store
	alloc    *ResourceAllocator
	ledger   LedgerGateway
	hook     NotificationHook
	settings ConfigStore
	opts     Options
}

func NewLifecycle(store repository.Store, alloc *ResourceAllocator, ledger LedgerGateway, hook NotificationHook, settings ConfigStore, opts Options) *Lifecycle {
	return &Lifecycle{
		store:    store,
		alloc:    alloc,
		ledger:   ledger,
		hook:     hook,
		settings: settings,
		opts:     opts.withDefaults(),
	}
}

func (s *Lifecycle) now() time.Time { return s.opts.Now() }

func (s *Lifecycle) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Repositories) error) error {
	return retrying(ctx, op, s.opts.RetryBase, s.opts.MaxConflictRetries, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, fn)
	})
}

// rentalCode derives a short human-facing code from the rental id.
func rentalCode(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

func eventPayload(r *domain.Rental) map[string]string {
	return map[string]string{
		"rental_id":   r.ID.String(),
		"rental_code": r.Code,
		"status":      string(r.Status),
		"due_at":      r.DueAt.UTC().Format(time.RFC3339),
	}
}

func (s *Lifecycle) fire(ctx context.Context, r *domain.Rental, kind domain.EventKind, extra map[string]string) {
	p := eventPayload(r)
	for k, v := range extra {
		p[k] = v
	}
	s.hook.Fire(ctx, r.UserID, kind, p)
}

func (s *Lifecycle) cancelWindowOpen(r *domain.Rental, at time.Time) bool {
	from := r.CreatedAt
	if r.StartedAt != nil {
		from = *r.StartedAt
	}
	return !at.After(from.Add(s.opts.CancellationWindow))
}

func asValidation(err error, format string, args ...any) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewValidationError(format, args...)
	}
	return err
}

// Start reserves a device at kioskID and opens a rental on packageID. Prepaid
// packages are charged before the rental becomes ACTIVE; if the charge fails
// the reservation is released and the rental is closed as CANCELLED.
func (s *Lifecycle) Start(ctx context.Context, userID, kioskID, packageID int64) (*domain.Rental, error) {
	logger.EnterMethod("Lifecycle.Start", "userID", userID, "kioskID", kioskID, "packageID", packageID)
	if userID <= 0 {
		return nil, domain.NewValidationError("invalid user id %d", userID)
	}
	minBattery := s.settings.GetInt(ctx, SettingMinBattery, s.opts.MinBatteryLevel)

	var rental *domain.Rental
	err := s.inTx(ctx, "start", func(ctx context.Context, tx repository.Repositories) error {
		rental = nil
		if _, err := tx.Rentals().GetLiveByUser(ctx, userID); err == nil {
			return domain.NewValidationError("user %d already has a live rental", userID)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		kiosk, err := tx.Kiosks().GetByID(ctx, kioskID)
		if err != nil {
			return asValidation(err, "unknown kiosk %d", kioskID)
		}
		if kiosk.Status != domain.KioskStatusOnline {
			return domain.NewValidationError("kiosk %s is %s", kiosk.Serial, kiosk.Status)
		}
		pkg, err := tx.Packages().GetByID(ctx, packageID)
		if err != nil {
			return asValidation(err, "unknown package %d", packageID)
		}
		if !pkg.IsActive {
			return domain.NewValidationError("package %d is not available", packageID)
		}

		id := uuid.New()
		c, err := s.alloc.Reserve(ctx, tx, kioskID, id, minBattery)
		if err != nil {
			return err
		}

		now := s.now()
		deviceID := c.DeviceID
		r := &domain.Rental{
			ID:             id,
			Code:           rentalCode(id),
			UserID:         userID,
			OriginKioskID:  kioskID,
			OriginSlotID:   c.SlotID,
			DeviceID:       &deviceID,
			PackageID:      pkg.ID,
			PaymentModel:   pkg.PaymentModel,
			PackagePrice:   pkg.Price,
			PackageMinutes: pkg.DurationMinutes,
			Status:         domain.RentalStatusPending,
			PaymentStatus:  domain.PaymentStatusNone,
			DueAt:          now.Add(pkg.Duration()),
			AmountPaid:     decimal.Zero,
			AmountDue:      decimal.Zero,
			OverdueAmount:  decimal.Zero,
			Metadata:       map[string]string{},
		}
		if err := tx.Rentals().Create(ctx, r); err != nil {
			return err
		}
		// nothing to collect up front, so the rental goes live in the same commit
		if pkg.PaymentModel == domain.PaymentModelPostpaid || !pkg.Price.IsPositive() {
			if err := activate(r, now); err != nil {
				return err
			}
			if err := tx.Rentals().Update(ctx, r); err != nil {
				return err
			}
		}
		rental = r
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("Lifecycle.Start", err, "userID", userID, "kioskID", kioskID)
		return nil, err
	}

	if rental.Status == domain.RentalStatusPending {
		if rental, err = s.collectStartPayment(ctx, rental); err != nil {
			logger.ExitMethodWithError("Lifecycle.Start", err, "rentalID", rental.ID)
			return nil, err
		}
	}

	s.fire(ctx, rental, domain.EventRentalStarted, nil)
	s.fire(ctx, rental, domain.EventDueReminderSchedule, map[string]string{
		"remind_at": rental.DueAt.Add(-s.opts.DueReminderBefore).UTC().Format(time.RFC3339),
	})
	logger.ExitMethod("Lifecycle.Start", "rentalID", rental.ID, "status", rental.Status)
	return rental, nil
}

// collectStartPayment charges the package price and activates the rental. The
// payment linkage and the activation commit together.
func (s *Lifecycle) collectStartPayment(ctx context.Context, pending *domain.Rental) (*domain.Rental, error) {
	log := logger.WithRental(pending.ID.String())
	res, err := s.ledger.Settle(ctx, domain.SettleRequest{
		UserID:      pending.UserID,
		Amount:      pending.PackagePrice,
		Sources:     domain.DefaultPaymentSources,
		RentalID:    pending.ID,
		Kind:        domain.PaymentKindRental,
		Description: "rental " + pending.Code,
	})
	if err != nil {
		log.Warn("Start payment failed, releasing reservation", "error", err)
		s.abortStart(ctx, pending.ID, err)
		s.fire(ctx, pending, domain.EventPaymentFailed, map[string]string{"amount": pending.PackagePrice.StringFixed(2)})
		return pending, err
	}

	var active *domain.Rental
	err = s.inTx(ctx, "start.activate", func(ctx context.Context, tx repository.Repositories) error {
		r, err := tx.Rentals().GetForUpdate(ctx, pending.ID)
		if err != nil {
			return err
		}
		if err := activate(r, s.now()); err != nil {
			return err
		}
		if err := tx.Payments().Create(ctx, &domain.RentalPayment{
			RentalID:      r.ID,
			TransactionID: res.TransactionID,
			Kind:          domain.PaymentKindRental,
			Amount:        r.PackagePrice,
			Points:        res.Breakdown.Points,
			Wallet:        res.Breakdown.Wallet,
		}); err != nil {
			return err
		}
		r.AmountPaid = r.PackagePrice
		r.PaymentStatus = domain.PaymentStatusPaid
		if err := tx.Rentals().Update(ctx, r); err != nil {
			return err
		}
		active = r
		return nil
	})
	if err != nil {
		log.Error("Activation failed after payment, refunding", "transactionID", res.TransactionID, "error", err)
		if rerr := s.ledger.Refund(ctx, res.TransactionID, pending.PackagePrice); rerr != nil {
			logger.Alert("start_refund_failed", "rentalID", pending.ID, "transactionID", res.TransactionID, "error", rerr)
		}
		s.abortStart(ctx, pending.ID, err)
		return pending, err
	}
	return active, nil
}

// activate moves a PENDING rental to ACTIVE. The rental clock starts at now.
func activate(r *domain.Rental, now time.Time) error {
	if r.Status != domain.RentalStatusPending {
		return domain.NewInvalidTransitionError("rental %s is %s, expected PENDING", r.ID, r.Status)
	}
	r.Status = domain.RentalStatusActive
	r.StartedAt = &now
	r.DueAt = now.Add(time.Duration(r.PackageMinutes) * time.Minute)
	return nil
}

// abortStart is the compensating release for a start whose payment did not go
// through. Anything it cannot undo is left to the stale-pending sweep.
func (s *Lifecycle) abortStart(ctx context.Context, rentalID uuid.UUID, cause error) {
	err := s.inTx(ctx, "start.abort", func(ctx context.Context, tx repository.Repositories) error {
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if r.Status != domain.RentalStatusPending {
			return nil
		}
		now := s.now()
		r.Status = domain.RentalStatusCancelled
		r.EndedAt = &now
		r.SetMeta(domain.MetaPaymentFailure, string(domain.CodeOf(cause)))
		r.SetMeta(domain.MetaCancelReason, "payment_failed")
		if err := s.alloc.ReleaseOrigin(ctx, tx, r); err != nil {
			return err
		}
		if err := s.alloc.RestoreAtOrigin(ctx, tx, r); err != nil {
			return err
		}
		return tx.Rentals().Update(ctx, r)
	})
	if err != nil {
		logger.Alert("start_compensation_failed", "rentalID", rentalID, "error", err)
	}
}

// Extend buys packageID's duration on top of an ACTIVE rental. The charge is
// taken first; the extension is then appended under the rental's row lock,
// where the status and extension limit are checked again. A charge whose
// extension cannot be recorded is refunded.
func (s *Lifecycle) Extend(ctx context.Context, userID int64, rentalID uuid.UUID, packageID int64) (*domain.Rental, error) {
	logger.EnterMethod("Lifecycle.Extend", "userID", userID, "rentalID", rentalID, "packageID", packageID)
	maxExt := s.settings.GetInt(ctx, SettingMaxExtensions, s.opts.MaxExtensions)

	pkg, err := s.store.Packages().GetByID(ctx, packageID)
	if err != nil {
		return nil, asValidation(err, "unknown package %d", packageID)
	}
	if !pkg.IsActive {
		return nil, domain.NewValidationError("package %d is not available", packageID)
	}

	current, err := s.GetRental(ctx, userID, rentalID)
	if err != nil {
		return nil, err
	}
	if err := checkExtendable(current, current.ExtensionCount, maxExt, s.now()); err != nil {
		return nil, err
	}

	var res *domain.SettleResult
	charge := current.PaymentModel == domain.PaymentModelPrepaid && pkg.Price.IsPositive()
	if charge {
		res, err = s.ledger.Settle(ctx, domain.SettleRequest{
			UserID:      userID,
			Amount:      pkg.Price,
			Sources:     domain.DefaultPaymentSources,
			RentalID:    rentalID,
			Kind:        domain.PaymentKindExtension,
			Description: "extension of " + current.Code,
		})
		if err != nil {
			logger.ExitMethodWithError("Lifecycle.Extend", err, "rentalID", rentalID)
			return nil, err
		}
	}

	var extended *domain.Rental
	err = s.inTx(ctx, "extend", func(ctx context.Context, tx repository.Repositories) error {
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		count, err := tx.Extensions().CountByRental(ctx, rentalID)
		if err != nil {
			return err
		}
		if err := checkExtendable(r, count, maxExt, s.now()); err != nil {
			return err
		}

		ext := &domain.Extension{
			RentalID:        r.ID,
			PackageID:       pkg.ID,
			ExtendedMinutes: pkg.DurationMinutes,
			Cost:            decimal.Zero,
		}
		if res != nil {
			ext.Cost = pkg.Price
			ext.TransactionID = res.TransactionID
			if err := tx.Payments().Create(ctx, &domain.RentalPayment{
				RentalID:      r.ID,
				TransactionID: res.TransactionID,
				Kind:          domain.PaymentKindExtension,
				Amount:        pkg.Price,
				Points:        res.Breakdown.Points,
				Wallet:        res.Breakdown.Wallet,
			}); err != nil {
				return err
			}
			r.AmountPaid = r.AmountPaid.Add(pkg.Price)
		}
		if err := tx.Extensions().Create(ctx, ext); err != nil {
			return err
		}
		r.ExtensionCount = count + 1
		r.DueAt = r.DueAt.Add(pkg.Duration())
		if err := tx.Rentals().Update(ctx, r); err != nil {
			return err
		}
		extended = r
		return nil
	})
	if err != nil {
		if res != nil {
			if rerr := s.ledger.Refund(ctx, res.TransactionID, pkg.Price); rerr != nil {
				logger.Alert("extension_refund_failed", "rentalID", rentalID, "transactionID", res.TransactionID, "error", rerr)
			}
		}
		logger.ExitMethodWithError("Lifecycle.Extend", err, "rentalID", rentalID)
		return nil, err
	}

	s.fire(ctx, extended, domain.EventExtensionConfirmed, map[string]string{"extended_minutes": strconv.Itoa(pkg.DurationMinutes)})
	logger.ExitMethod("Lifecycle.Extend", "rentalID", rentalID, "dueAt", extended.DueAt)
	return extended, nil
}

func checkExtendable(r *domain.Rental, count, maxExt int, now time.Time) error {
	if r.Status != domain.RentalStatusActive {
		return domain.NewInvalidTransitionError("cannot extend a %s rental", r.Status)
	}
	// past due but not yet swept to OVERDUE
	if !now.Before(r.DueAt) {
		return domain.NewInvalidTransitionError("rental was due at %s, return it before extending", r.DueAt.Format(time.RFC3339))
	}
	if count >= maxExt {
		return domain.NewInvalidTransitionError("rental already extended the maximum of %d times", maxExt)
	}
	return nil
}

// Cancel aborts a rental inside the cancellation window once the device is
// verified back in its origin bay, and refunds everything paid for it.
func (s *Lifecycle) Cancel(ctx context.Context, userID int64, rentalID uuid.UUID, reason string) (*domain.Rental, error) {
	logger.EnterMethod("Lifecycle.Cancel", "userID", userID, "rentalID", rentalID)

	var cancelled *domain.Rental
	err := s.inTx(ctx, "cancel", func(ctx context.Context, tx repository.Repositories) error {
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if r.UserID != userID {
			return domain.NewNotFoundError("rental %s not found", rentalID)
		}
		if r.Status != domain.RentalStatusPending && r.Status != domain.RentalStatusActive {
			return domain.NewInvalidTransitionError("cannot cancel a %s rental", r.Status)
		}
		now := s.now()
		if !s.cancelWindowOpen(r, now) {
			return domain.NewInvalidTransitionError("cancellation window of %s has closed", s.opts.CancellationWindow)
		}
		if err := s.verifyDockedAtOrigin(ctx, tx, r); err != nil {
			return err
		}

		payments, err := tx.Payments().ListByRental(ctx, r.ID)
		if err != nil {
			return err
		}

		r.Status = domain.RentalStatusCancelled
		r.EndedAt = &now
		r.SetMeta(domain.MetaCancelReason, reason)
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
		cancelled = r
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrPhysicalVerification) {
			logger.Alert("cancel_without_physical_return", "userID", userID, "rentalID", rentalID, "error", err)
		}
		logger.ExitMethodWithError("Lifecycle.Cancel", err, "rentalID", rentalID)
		return nil, err
	}

	if cancelled.PaymentStatus == domain.PaymentStatusRefundPending {
		if r, err := s.completeRefunds(ctx, rentalID); err != nil {
			logger.WithRental(rentalID.String()).Warn("Refund deferred to reconciler", "error", err)
		} else {
			cancelled = r
		}
	}

	s.fire(ctx, cancelled, domain.EventRentalCancelled, map[string]string{"reason": reason})
	logger.ExitMethod("Lifecycle.Cancel", "rentalID", rentalID, "paymentStatus", cancelled.PaymentStatus)
	return cancelled, nil
}

// verifyDockedAtOrigin refuses a cancellation unless the hardware has reported
// the rental's device seated in the bay it was taken from.
func (s *Lifecycle) verifyDockedAtOrigin(ctx context.Context, tx repository.Repositories, r *domain.Rental) error {
	if r.DeviceID == nil {
		return domain.NewPhysicalVerificationError("rental %s has no device to verify", r.ID)
	}
	device, err := tx.Devices().GetForUpdate(ctx, *r.DeviceID)
	if err != nil {
		return err
	}
	if !device.InOriginSlot(r) {
		return domain.NewPhysicalVerificationError("device %s is not back in its origin slot", device.Serial)
	}
	slot, err := tx.Slots().GetForUpdate(ctx, r.OriginSlotID)
	if err != nil {
		return err
	}
	if slot.Status != domain.SlotStatusOccupied {
		return domain.NewPhysicalVerificationError("origin slot %d is %s", slot.SlotNumber, slot.Status)
	}
	return nil
}

func hasRefundable(payments []domain.RentalPayment) bool {
	for _, p := range payments {
		if p.Kind.Refundable() {
			return true
		}
	}
	return false
}

// completeRefunds returns every refundable payment of a REFUND_PENDING rental
// and marks it REFUNDED. The ledger caps each refund at what is still
// unrefunded, so a retry after a partial failure cannot pay out twice.
func (s *Lifecycle) completeRefunds(ctx context.Context, rentalID uuid.UUID) (*domain.Rental, error) {
	payments, err := s.store.Payments().ListByRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	var refunded []domain.RentalPayment
	for _, p := range payments {
		if !p.Kind.Refundable() {
			continue
		}
		if err := s.ledger.Refund(ctx, p.TransactionID, p.Amount); err != nil {
			return nil, err
		}
		split := pricing.Prorate(p.Amount, domain.Breakdown{Points: p.Points, Wallet: p.Wallet})
		refunded = append(refunded, domain.RentalPayment{
			RentalID:      rentalID,
			TransactionID: p.TransactionID,
			Kind:          domain.PaymentKindRefund,
			Amount:        p.Amount,
			Points:        split.Points,
			Wallet:        split.Wallet,
		})
	}

	var out *domain.Rental
	err = s.inTx(ctx, "refund.record", func(ctx context.Context, tx repository.Repositories) error {
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		out = r
		if r.PaymentStatus != domain.PaymentStatusRefundPending {
			return nil
		}
		for i := range refunded {
			p := refunded[i]
			if err := tx.Payments().Create(ctx, &p); err != nil {
				return err
			}
		}
		r.PaymentStatus = domain.PaymentStatusRefunded
		return tx.Rentals().Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Return closes a rental whose device was seated at kioskID/slotNumber. A
// rental that is already terminal is returned unchanged.
func (s *Lifecycle) Return(ctx context.Context, rentalID uuid.UUID, kioskID int64, slotNumber, batteryLevel int) (*domain.Rental, error) {
	logger.EnterMethod("Lifecycle.Return", "rentalID", rentalID, "kioskID", kioskID, "slotNumber", slotNumber)
	if batteryLevel < 0 || batteryLevel > 100 {
		return nil, domain.NewValidationError("battery level %d out of range", batteryLevel)
	}
	feeCfg, err := s.settings.GetActiveFeeConfig(ctx)
	if err != nil {
		logger.Warn("Fee configuration unavailable", "error", err)
		feeCfg = nil
	}
	bonus := s.opts.CompletionBonus

	var (
		returned  *domain.Rental
		duplicate bool
		awardDue  bool
	)
	err = s.inTx(ctx, "return", func(ctx context.Context, tx repository.Repositories) error {
		duplicate, awardDue = false, false
		r, err := tx.Rentals().GetForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if r.Status.IsTerminal() {
			duplicate = true
			returned = r
			return nil
		}
		if r.Status == domain.RentalStatusPending || r.StartedAt == nil {
			return domain.NewInvalidTransitionError("rental %s has not started", r.ID)
		}
		if r.DeviceID == nil {
			return domain.NewIntegrityDefectError("live rental %s has no device", r.ID)
		}
		if _, err := tx.Kiosks().GetByID(ctx, kioskID); err != nil {
			return asValidation(err, "unknown kiosk %d", kioskID)
		}

		now := s.now()
		r.EndedAt = &now
		r.ReturnedOnTime = !now.After(r.DueAt)

		var outstanding decimal.Decimal
		switch r.PaymentModel {
		case domain.PaymentModelPostpaid:
			outstanding = pricing.UsageCost(r.RatePerMinute(), now.Sub(*r.StartedAt))
		default:
			if !r.ReturnedOnTime {
				fee, _ := pricing.LateFee(r.RatePerMinute(), r.OverdueMinutes(now), feeCfg)
				r.OverdueAmount = decimal.Max(r.OverdueAmount, fee)
			}
			outstanding = r.OverdueAmount
		}

		if err := s.alloc.ReleaseOrigin(ctx, tx, r); err != nil {
			return err
		}
		slot, err := s.alloc.PlaceReturn(ctx, tx, kioskID, slotNumber, *r.DeviceID, batteryLevel)
		if err != nil {
			return err
		}
		returnKiosk, returnSlot := kioskID, slot.ID
		r.ReturnKioskID = &returnKiosk
		r.ReturnSlotID = &returnSlot
		r.Status = domain.RentalStatusCompleted
		r.AmountDue = outstanding
		if outstanding.IsPositive() {
			r.PaymentStatus = domain.PaymentStatusPending
		}
		if r.ReturnedOnTime && !r.BonusAwarded && bonus.IsPositive() {
			r.BonusAwarded = true
			awardDue = true
		}
		if err := tx.Rentals().Update(ctx, r); err != nil {
			return err
		}
		returned = r
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("Lifecycle.Return", err, "rentalID", rentalID)
		return nil, err
	}
	if duplicate {
		logger.Warn("Duplicate return ignored", "rentalID", rentalID, "status", returned.Status, "kioskID", kioskID, "slotNumber", slotNumber)
		return returned, nil
	}

	if returned.AmountDue.IsPositive() {
		kind := domain.PaymentKindLateFee
		if returned.PaymentModel == domain.PaymentModelPostpaid {
			kind = domain.PaymentKindUsage
		}
		returned = s.collectOutstanding(ctx, returned, kind)
	}
	if awardDue {
		if _, err := s.ledger.Award(ctx, returned.UserID, bonus, "on-time return "+returned.Code); err != nil {
			logger.Alert("completion_bonus_failed", "rentalID", rentalID, "error", err)
		} else {
			s.fire(ctx, returned, domain.EventBonusAwarded, map[string]string{"points": bonus.String()})
		}
	}

	s.fire(ctx, returned, domain.EventRentalReturned, map[string]string{"on_time": strconv.FormatBool(returned.ReturnedOnTime)})
	logger.ExitMethod("Lifecycle.Return", "rentalID", rentalID, "onTime", returned.ReturnedOnTime, "amountDue", returned.AmountDue.String())
	return returned, nil
}

// collectOutstanding tries to settle AmountDue right away. On failure the
// rental keeps payment status PENDING and the user is told.
func (s *Lifecycle) collectOutstanding(ctx context.Context, r *domain.Rental, kind domain.PaymentKind) *domain.Rental {
	amount := r.AmountDue
	res, err := s.ledger.Settle(ctx, domain.SettleRequest{
		UserID:      r.UserID,
		Amount:      amount,
		Sources:     domain.DefaultPaymentSources,
		RentalID:    r.ID,
		Kind:        kind,
		Description: strings.ToLower(string(kind)) + " for " + r.Code,
	})
	if err != nil {
		logger.WithRental(r.ID.String()).Warn("Auto-collect failed, payment left pending", "amount", amount.String(), "error", err)
		s.fire(ctx, r, domain.EventPaymentPending, map[string]string{"amount": amount.StringFixed(2)})
		return r
	}

	var paid *domain.Rental
	err = s.inTx(ctx, "collect.record", func(ctx context.Context, tx repository.Repositories) error {
		cur, err := tx.Rentals().GetForUpdate(ctx, r.ID)
		if err != nil {
			return err
		}
		if err := tx.Payments().Create(ctx, &domain.RentalPayment{
			RentalID:      cur.ID,
			TransactionID: res.TransactionID,
			Kind:          kind,
			Amount:        amount,
			Points:        res.Breakdown.Points,
			Wallet:        res.Breakdown.Wallet,
		}); err != nil {
			return err
		}
		cur.AmountPaid = cur.AmountPaid.Add(amount)
		cur.AmountDue = decimal.Max(cur.AmountDue.Sub(amount), decimal.Zero)
		if !cur.AmountDue.IsPositive() {
			cur.PaymentStatus = domain.PaymentStatusPaid
		}
		if err := tx.Rentals().Update(ctx, cur); err != nil {
			return err
		}
		paid = cur
		return nil
	})
	if err != nil {
		logger.Alert("collected_payment_unrecorded", "rentalID", r.ID, "transactionID", res.TransactionID, "error", err)
		return r
	}
	return paid
}

func (s *Lifecycle) GetActiveRental(ctx context.Context, userID int64) (*domain.Rental, error) {
	return s.store.Rentals().GetLiveByUser(ctx, userID)
}

// GetRental hides other users' rentals behind NOT_FOUND.
func (s *Lifecycle) GetRental(ctx context.Context, userID int64, rentalID uuid.UUID) (*domain.Rental, error) {
	r, err := s.store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, domain.NewNotFoundError("rental %s not found", rentalID)
	}
	return r, nil
}

func (s *Lifecycle) ListRentals(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if status != "" {
		switch domain.RentalStatus(status) {
		case domain.RentalStatusPending, domain.RentalStatusActive, domain.RentalStatusOverdue,
			domain.RentalStatusCompleted, domain.RentalStatusCancelled:
		default:
			return nil, 0, domain.NewValidationError("unknown status %q", status)
		}
	}
	return s.store.Rentals().ListByUser(ctx, userID, status, page, pageSize)
}
