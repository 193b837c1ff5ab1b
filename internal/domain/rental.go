package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RentalStatus string

const (
	RentalStatusPending   RentalStatus = "PENDING"
	RentalStatusActive    RentalStatus = "ACTIVE"
	RentalStatusOverdue   RentalStatus = "OVERDUE"
	RentalStatusCompleted RentalStatus = "COMPLETED"
	RentalStatusCancelled RentalStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s RentalStatus) IsTerminal() bool {
	return s == RentalStatusCompleted || s == RentalStatusCancelled
}

// IsLive reports whether the rental still holds a device and its origin slot.
func (s RentalStatus) IsLive() bool {
	return s == RentalStatusPending || s == RentalStatusActive || s == RentalStatusOverdue
}

// LiveRentalStatuses lists the statuses that hold resources.
var LiveRentalStatuses = []RentalStatus{RentalStatusPending, RentalStatusActive, RentalStatusOverdue}

type PaymentStatus string

const (
	PaymentStatusNone          PaymentStatus = "NONE"
	PaymentStatusPending       PaymentStatus = "PENDING"
	PaymentStatusPaid          PaymentStatus = "PAID"
	PaymentStatusRefundPending PaymentStatus = "REFUND_PENDING"
	PaymentStatusRefunded      PaymentStatus = "REFUNDED"
)

// Metadata keys written by the lifecycle and the reconciler.
const (
	MetaCancelReason     = "cancel_reason"
	MetaCloseReason      = "close_reason"
	MetaReminderSent     = "due_reminder_sent"
	MetaLateFeeNotified  = "late_fee_notified"
	MetaPaymentFailure   = "payment_failure"
	MetaAbandonmentFee   = "abandonment_penalty"
	MetaReturnSource     = "return_source"
	MetaDuplicateReturns = "duplicate_returns"
)

type Rental struct {
	ID            uuid.UUID `json:"id"`
	Code          string    `json:"rental_code"`
	UserID        int64     `json:"user_id"`
	OriginKioskID int64     `json:"origin_kiosk_id"`
	OriginSlotID  int64     `json:"origin_slot_id"`
	ReturnKioskID *int64    `json:"return_kiosk_id,omitempty"`
	ReturnSlotID  *int64    `json:"return_slot_id,omitempty"`
	DeviceID      *int64    `json:"device_id,omitempty"`
	PackageID     int64     `json:"package_id"`
	// Package snapshot, captured at creation. Fee math never reads the live package.
	PaymentModel   PaymentModel      `json:"payment_model"`
	PackagePrice   decimal.Decimal   `json:"package_price"`
	PackageMinutes int               `json:"package_minutes"`
	Status         RentalStatus      `json:"status"`
	PaymentStatus  PaymentStatus     `json:"payment_status"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	DueAt          time.Time         `json:"due_at"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	AmountPaid     decimal.Decimal   `json:"amount_paid"`
	AmountDue      decimal.Decimal   `json:"amount_due"`
	OverdueAmount  decimal.Decimal   `json:"overdue_amount"`
	ReturnedOnTime bool              `json:"is_returned_on_time"`
	BonusAwarded   bool              `json:"timely_return_bonus_awarded"`
	ExtensionCount int               `json:"extension_count"`
	Metadata       map[string]string `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// RatePerMinute is the snapshot package price spread over its duration.
func (r *Rental) RatePerMinute() decimal.Decimal {
	if r.PackageMinutes <= 0 {
		return decimal.Zero
	}
	return r.PackagePrice.Div(decimal.NewFromInt(int64(r.PackageMinutes)))
}

// OverdueMinutes returns whole minutes elapsed past DueAt at t.
func (r *Rental) OverdueMinutes(t time.Time) int {
	if !t.After(r.DueAt) {
		return 0
	}
	return int(t.Sub(r.DueAt) / time.Minute)
}

// SetMeta records a metadata value, allocating the map on first use.
func (r *Rental) SetMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// Clone returns a deep copy safe to mutate independently.
func (r *Rental) Clone() *Rental {
	c := *r
	c.ReturnKioskID = cloneInt64(r.ReturnKioskID)
	c.ReturnSlotID = cloneInt64(r.ReturnSlotID)
	c.DeviceID = cloneInt64(r.DeviceID)
	c.StartedAt = cloneTime(r.StartedAt)
	c.EndedAt = cloneTime(r.EndedAt)
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Extension is one paid prolongation of a rental. Immutable once created.
type Extension struct {
	ID              int64           `json:"id"`
	RentalID        uuid.UUID       `json:"rental_id"`
	PackageID       int64           `json:"package_id"`
	ExtendedMinutes int             `json:"extended_minutes"`
	Cost            decimal.Decimal `json:"cost"`
	TransactionID   string          `json:"transaction_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
