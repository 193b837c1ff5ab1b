package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
)

// ErrDuplicateRentalCode is returned by RentalRepository.Create when the
// generated short code collides with an existing one.
var ErrDuplicateRentalCode = errors.New("rental code already in use")

// Cursor is a keyset position for the reconciler sweeps: the sort key and id
// of the last row seen. The zero value starts from the first row.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// IsZero reports whether c is the start of a sweep.
func (c Cursor) IsZero() bool { return c.At.IsZero() && c.ID == uuid.Nil }

// DueQuery selects rentals in Status due strictly before Before, ordered by
// (due_at, id) and starting after After. An empty PaymentModel matches both.
type DueQuery struct {
	Status       domain.RentalStatus
	Before       time.Time
	PaymentModel domain.PaymentModel
	After        Cursor
	Limit        int
}

// Methods named ...ForUpdate acquire a row lock held until the surrounding
// transaction ends. They are only meaningful on a Repositories value handed
// out by Store.WithinTx.

type RentalRepository interface {
	Create(ctx context.Context, rental *domain.Rental) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Rental, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Rental, error)
	Update(ctx context.Context, rental *domain.Rental) error
	GetLiveByUser(ctx context.Context, userID int64) (*domain.Rental, error)
	GetLiveByDevice(ctx context.Context, deviceID int64) (*domain.Rental, error)
	ListByUser(ctx context.Context, userID int64, status string, page, pageSize int32) ([]domain.Rental, int32, error)

	// Reconciler candidate queries
	ListDueBefore(ctx context.Context, q DueQuery) ([]domain.Rental, error)
	ListCreatedBefore(ctx context.Context, status domain.RentalStatus, before time.Time, limit int) ([]domain.Rental, error)
	// ListByPaymentStatus is ordered by (created_at, id) and starts after after.
	ListByPaymentStatus(ctx context.Context, status domain.PaymentStatus, after Cursor, limit int) ([]domain.Rental, error)
	ListDueBetween(ctx context.Context, from, to time.Time, limit int) ([]domain.Rental, error)
	ListDockedAtOrigin(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Rental, error)
}

type ExtensionRepository interface {
	Create(ctx context.Context, ext *domain.Extension) error
	ListByRental(ctx context.Context, rentalID uuid.UUID) ([]domain.Extension, error)
	CountByRental(ctx context.Context, rentalID uuid.UUID) (int, error)
}

type KioskRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Kiosk, error)
	GetBySerial(ctx context.Context, serial string) (*domain.Kiosk, error)
}

type SlotRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Slot, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Slot, error)
	GetByNumberForUpdate(ctx context.Context, kioskID int64, slotNumber int) (*domain.Slot, error)
	// LockBestCandidate locks and returns the AVAILABLE slot at kioskID whose
	// AVAILABLE occupant has the highest battery at or above minBattery.
	// Rows locked by concurrent transactions are skipped.
	LockBestCandidate(ctx context.Context, kioskID int64, minBattery int) (*domain.SlotCandidate, error)
	Update(ctx context.Context, slot *domain.Slot) error
	ListOccupiedWithoutLiveRental(ctx context.Context) ([]domain.Slot, error)
}

type DeviceRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Device, error)
	GetBySerial(ctx context.Context, serial string) (*domain.Device, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Device, error)
	GetInSlot(ctx context.Context, slotID int64) (*domain.Device, error)
	Update(ctx context.Context, device *domain.Device) error
	ListRentedWithoutLiveRental(ctx context.Context) ([]domain.Device, error)
}

type PackageRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.RentalPackage, error)
	ListActive(ctx context.Context) ([]domain.RentalPackage, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.RentalPayment) error
	ListByRental(ctx context.Context, rentalID uuid.UUID) ([]domain.RentalPayment, error)
}

type FeeConfigRepository interface {
	GetActive(ctx context.Context) (*domain.FeeConfiguration, error)
}

type AppConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID int64, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int64) error
}

// AccountRepository backs the built-in ledger gateway.
type AccountRepository interface {
	GetForUpdate(ctx context.Context, userID int64) (*domain.Account, error)
	Adjust(ctx context.Context, userID int64, points, wallet decimal.Decimal) error
	CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error
	GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*domain.LedgerTransaction, error)
	AddRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

// Repositories groups the repositories that take part in a transaction.
type Repositories interface {
	Rentals() RentalRepository
	Extensions() ExtensionRepository
	Kiosks() KioskRepository
	Slots() SlotRepository
	Devices() DeviceRepository
	Packages() PackageRepository
	Payments() PaymentRepository
	Accounts() AccountRepository
}

// Store is the unit-of-work boundary. fn runs inside one transaction that is
// committed when fn returns nil and rolled back otherwise; no partial state is
// ever visible to other transactions.
type Store interface {
	Repositories
	FeeConfigs() FeeConfigRepository
	AppConfig() AppConfigRepository
	Notifications() NotificationRepository
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}
