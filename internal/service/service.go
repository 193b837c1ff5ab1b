package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
)

// RentalService is the API-facing surface of the rental lifecycle.
type RentalService interface {
	Start(ctx context.Context, userID, kioskID, packageID int64) (*domain.Rental, error)
	Extend(ctx context.Context, userID int64, rentalID uuid.UUID, packageID int64) (*domain.Rental, error)
	Cancel(ctx context.Context, userID int64, rentalID uuid.UUID, reason string) (*domain.Rental, error)
	Return(ctx context.Context, rentalID uuid.UUID, kioskID int64, slotNumber, batteryLevel int) (*domain.Rental, error)
	GetActiveRental(ctx context.Context, userID int64) (*domain.Rental, error)
	GetRental(ctx context.Context, userID int64, rentalID uuid.UUID) (*domain.Rental, error)
	ListRentals(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error)
}

// RentalMaintenance holds the lifecycle entry points driven by the reconciler.
// Each is idempotent: calling it on a rental that no longer qualifies is a
// no-op.
type RentalMaintenance interface {
	MarkOverdue(ctx context.Context, rentalID uuid.UUID) error
	AssessLateFee(ctx context.Context, rentalID uuid.UUID) error
	ForceClose(ctx context.Context, rentalID uuid.UUID) error
	ExpirePending(ctx context.Context, rentalID uuid.UUID) error
	RetryRefund(ctx context.Context, rentalID uuid.UUID) error
	SendDueReminder(ctx context.Context, rentalID uuid.UUID) error
	CompleteDockedReturn(ctx context.Context, rentalID uuid.UUID) error
}

type NotificationService interface {
	GetNotifications(ctx context.Context, userID int64, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID int64) error
}

// LedgerGateway moves money. The lifecycle only records the transaction ids
// it returns.
type LedgerGateway interface {
	Settle(ctx context.Context, req domain.SettleRequest) (*domain.SettleResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
	Award(ctx context.Context, userID int64, points decimal.Decimal, reference string) (string, error)
}

// NotificationHook is fire-and-forget.
type NotificationHook interface {
	Fire(ctx context.Context, userID int64, kind domain.EventKind, payload map[string]string)
}

// ConfigStore exposes hot-reloadable settings.
type ConfigStore interface {
	// GetActiveFeeConfig returns nil, nil when no policy is active.
	GetActiveFeeConfig(ctx context.Context) (*domain.FeeConfiguration, error)
	GetInt(ctx context.Context, key string, def int) int
}

// Setting keys read through ConfigStore.
const (
	SettingMaxExtensions = "max_extensions"
	SettingMinBattery    = "min_battery_level"
)

// Options tunes the lifecycle. Zero values fall back to the defaults below.
type Options struct {
	MinBatteryLevel    int
	CancellationWindow time.Duration
	MaxExtensions      int
	AbandonmentAfter   time.Duration
	AbandonmentPenalty decimal.Decimal
	CompletionBonus    decimal.Decimal
	StalePendingAfter  time.Duration
	DueReminderBefore  time.Duration
	MaxConflictRetries int
	RetryBase          time.Duration
	Now                func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MinBatteryLevel <= 0 {
		o.MinBatteryLevel = 20
	}
	if o.CancellationWindow <= 0 {
		o.CancellationWindow = 5 * time.Minute
	}
	if o.MaxExtensions <= 0 {
		o.MaxExtensions = 3
	}
	if o.AbandonmentAfter <= 0 {
		o.AbandonmentAfter = 24 * time.Hour
	}
	if o.StalePendingAfter <= 0 {
		o.StalePendingAfter = 15 * time.Minute
	}
	if o.DueReminderBefore <= 0 {
		o.DueReminderBefore = 10 * time.Minute
	}
	if o.MaxConflictRetries < 0 {
		o.MaxConflictRetries = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 25 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
