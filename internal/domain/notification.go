package domain

import "time"

type EventKind string

const (
	EventRentalStarted       EventKind = "RENTAL_STARTED"
	EventDueReminder         EventKind = "RENTAL_DUE_REMINDER"
	EventDueReminderSchedule EventKind = "RENTAL_DUE_REMINDER_SCHEDULED"
	EventExtensionConfirmed  EventKind = "RENTAL_EXTENDED"
	EventRentalCancelled     EventKind = "RENTAL_CANCELLED"
	EventRentalReturned      EventKind = "RENTAL_RETURNED"
	EventRentalOverdue       EventKind = "RENTAL_OVERDUE"
	EventLateFeeCharged      EventKind = "LATE_FEE_CHARGED"
	EventPaymentPending      EventKind = "PAYMENT_PENDING"
	EventRentalAbandoned     EventKind = "RENTAL_ABANDONED"
	EventBonusAwarded        EventKind = "COMPLETION_BONUS_AWARDED"
	EventPaymentFailed       EventKind = "RENTAL_PAYMENT_FAILED"
)

type Notification struct {
	ID         int64             `json:"id"`
	UserID     int64             `json:"user_id"`
	Kind       EventKind         `json:"kind"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}
