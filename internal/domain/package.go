package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentModel string

const (
	PaymentModelPrepaid  PaymentModel = "PREPAID"
	PaymentModelPostpaid PaymentModel = "POSTPAID"
)

// RentalPackage is a purchasable duration/price bundle.
type RentalPackage struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
	PaymentModel    PaymentModel    `json:"payment_model"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (p *RentalPackage) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}
