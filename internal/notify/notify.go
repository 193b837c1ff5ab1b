// Package notify delivers lifecycle events to users as in-app notifications.
// Delivery is best effort: the lifecycle never waits on it and never fails
// because of it.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

var titles = map[domain.EventKind]string{
	domain.EventRentalStarted:       "Rental started",
	domain.EventDueReminder:         "Return due soon",
	domain.EventDueReminderSchedule: "Reminder scheduled",
	domain.EventExtensionConfirmed:  "Rental extended",
	domain.EventRentalCancelled:     "Rental cancelled",
	domain.EventRentalReturned:      "Power bank returned",
	domain.EventRentalOverdue:       "Rental overdue",
	domain.EventLateFeeCharged:      "Late fee charged",
	domain.EventPaymentPending:      "Payment outstanding",
	domain.EventRentalAbandoned:     "Rental closed as lost",
	domain.EventBonusAwarded:        "Bonus points awarded",
	domain.EventPaymentFailed:       "Payment failed",
}

// Recorder persists one notification row per event.
type Recorder struct {
	repo repository.NotificationRepository
}

func NewRecorder(repo repository.NotificationRepository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) Fire(ctx context.Context, userID int64, kind domain.EventKind, payload map[string]string) {
	if err := r.Record(ctx, userID, kind, payload); err != nil {
		logger.Warn("Failed to record notification", "userID", userID, "kind", kind, "error", err)
	}
}

func (r *Recorder) Record(ctx context.Context, userID int64, kind domain.EventKind, payload map[string]string) error {
	title, ok := titles[kind]
	if !ok {
		title = string(kind)
	}
	n := &domain.Notification{
		UserID:     userID,
		Kind:       kind,
		Title:      title,
		Message:    message(kind, payload),
		Attributes: payload,
	}
	return r.repo.Create(ctx, n)
}

func message(kind domain.EventKind, p map[string]string) string {
	code := p["rental_code"]
	switch kind {
	case domain.EventRentalStarted:
		return fmt.Sprintf("Rental %s started. Please return by %s.", code, p["due_at"])
	case domain.EventDueReminder:
		return fmt.Sprintf("Rental %s is due at %s.", code, p["due_at"])
	case domain.EventExtensionConfirmed:
		return fmt.Sprintf("Rental %s extended until %s.", code, p["due_at"])
	case domain.EventRentalCancelled:
		return fmt.Sprintf("Rental %s was cancelled and refunded.", code)
	case domain.EventRentalReturned:
		return fmt.Sprintf("Rental %s returned. Thank you!", code)
	case domain.EventRentalOverdue:
		return fmt.Sprintf("Rental %s is overdue. Late fees apply.", code)
	case domain.EventLateFeeCharged:
		return fmt.Sprintf("A late fee of %s applies to rental %s.", p["amount"], code)
	case domain.EventPaymentPending, domain.EventPaymentFailed:
		return fmt.Sprintf("We could not collect %s for rental %s.", p["amount"], code)
	case domain.EventRentalAbandoned:
		return fmt.Sprintf("Rental %s was closed and the power bank marked lost.", code)
	case domain.EventBonusAwarded:
		return fmt.Sprintf("You earned %s points for returning on time.", p["points"])
	}
	return fmt.Sprintf("Update on rental %s.", code)
}

// Hook is what the lifecycle calls.
type Hook interface {
	Fire(ctx context.Context, userID int64, kind domain.EventKind, payload map[string]string)
}

// Async runs a hook on its own goroutine with a detached, bounded context so a
// slow or failing sink never delays the caller.
type Async struct {
	next    Hook
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Hook, timeout time.Duration) *Async {
	return &Async{next: next, timeout: timeout}
}

func (a *Async) Fire(_ context.Context, userID int64, kind domain.EventKind, payload map[string]string) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Notification hook panicked", "kind", kind, "panic", p)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.next.Fire(ctx, userID, kind, payload)
	}()
}

// Wait blocks until in-flight deliveries finish. Used at shutdown and in tests.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Fire(context.Context, int64, domain.EventKind, map[string]string) {}
