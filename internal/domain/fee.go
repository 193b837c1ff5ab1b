package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type FeeType string

const (
	FeeTypeMultiplier FeeType = "MULTIPLIER"
	FeeTypeFlatRate   FeeType = "FLAT_RATE"
	FeeTypeCompound   FeeType = "COMPOUND"
)

// FeeConfiguration is a late-fee policy. At most one row is active.
type FeeConfiguration struct {
	ID                 int64               `json:"id"`
	Name               string              `json:"name"`
	FeeType            FeeType             `json:"fee_type"`
	Multiplier         decimal.Decimal     `json:"multiplier"`
	FlatRatePerHour    decimal.Decimal     `json:"flat_rate_per_hour"`
	GracePeriodMinutes int                 `json:"grace_period_minutes"`
	MaxDailyRate       decimal.NullDecimal `json:"max_daily_rate"`
	IsActive           bool                `json:"is_active"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// DefaultFeeConfiguration is used when no policy is active: 2x the package
// rate per overdue minute with no grace period.
func DefaultFeeConfiguration() FeeConfiguration {
	return FeeConfiguration{
		Name:       "default",
		FeeType:    FeeTypeMultiplier,
		Multiplier: decimal.NewFromInt(2),
	}
}
