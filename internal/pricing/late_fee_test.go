package pricing

import (
	"testing"

	"chargeshare-backend/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeLateFee(t *testing.T) {
	rate := dec("1.50") // 90 per hour package

	t.Run("Zero overdue minutes", func(t *testing.T) {
		cfg := domain.FeeConfiguration{FeeType: domain.FeeTypeMultiplier, Multiplier: dec("2")}
		assert.True(t, ComputeLateFee(rate, 0, cfg).IsZero())
	})

	t.Run("Inside grace period", func(t *testing.T) {
		cfg := domain.FeeConfiguration{FeeType: domain.FeeTypeMultiplier, Multiplier: dec("2"), GracePeriodMinutes: 15}
		assert.True(t, ComputeLateFee(rate, 15, cfg).IsZero())
		assert.True(t, ComputeLateFee(rate, 10, cfg).IsZero())
	})

	t.Run("Multiplier", func(t *testing.T) {
		cfg := domain.FeeConfiguration{FeeType: domain.FeeTypeMultiplier, Multiplier: dec("2"), GracePeriodMinutes: 10}
		// 30 effective minutes * 1.50 * 2
		assert.Equal(t, "90.00", ComputeLateFee(rate, 40, cfg).StringFixed(2))
	})

	t.Run("Flat rate", func(t *testing.T) {
		cfg := domain.FeeConfiguration{FeeType: domain.FeeTypeFlatRate, FlatRatePerHour: dec("50")}
		assert.Equal(t, "75.00", ComputeLateFee(rate, 90, cfg).StringFixed(2))
	})

	t.Run("Compound", func(t *testing.T) {
		cfg := domain.FeeConfiguration{FeeType: domain.FeeTypeCompound, Multiplier: dec("1"), FlatRatePerHour: dec("60")}
		// 60 * 1.50 + 60
		assert.Equal(t, "150.00", ComputeLateFee(rate, 60, cfg).StringFixed(2))
	})

	t.Run("Daily cap scales with elapsed time", func(t *testing.T) {
		cfg := domain.FeeConfiguration{
			FeeType:      domain.FeeTypeMultiplier,
			Multiplier:   dec("2"),
			MaxDailyRate: decimal.NewNullDecimal(dec("240")),
		}
		// uncapped would be 12h * 60 * 3 = 2160, cap is 240/24 * 12 = 120
		assert.Equal(t, "120.00", ComputeLateFee(rate, 12*60, cfg).StringFixed(2))
	})

	t.Run("Cap is never exceeded by rounding", func(t *testing.T) {
		cfg := domain.FeeConfiguration{
			FeeType:         domain.FeeTypeFlatRate,
			FlatRatePerHour: dec("100"),
			MaxDailyRate:    decimal.NewNullDecimal(dec("500")),
		}
		// uncapped 1.67, cap 500/24/60 = 0.347222...
		fee := ComputeLateFee(rate, 1, cfg)
		assert.Equal(t, "0.34", fee.StringFixed(2))
		assert.True(t, fee.LessThanOrEqual(dec("0.347222")))
	})

	t.Run("Negative inputs never produce a negative fee", func(t *testing.T) {
		cfg := domain.FeeConfiguration{FeeType: domain.FeeTypeCompound, Multiplier: dec("-3"), FlatRatePerHour: dec("-1")}
		assert.True(t, ComputeLateFee(dec("-1"), 100, cfg).IsZero())
	})
}

func TestComputeLateFee_Properties(t *testing.T) {
	rate := dec("0.8333")
	configs := map[string]domain.FeeConfiguration{
		"multiplier": {FeeType: domain.FeeTypeMultiplier, Multiplier: dec("2.5"), GracePeriodMinutes: 5},
		"flat":       {FeeType: domain.FeeTypeFlatRate, FlatRatePerHour: dec("35"), GracePeriodMinutes: 20},
		"compound":   {FeeType: domain.FeeTypeCompound, Multiplier: dec("1.2"), FlatRatePerHour: dec("10"), GracePeriodMinutes: 0},
		"capped": {
			FeeType:            domain.FeeTypeCompound,
			Multiplier:         dec("3"),
			FlatRatePerHour:    dec("100"),
			GracePeriodMinutes: 10,
			MaxDailyRate:       decimal.NewNullDecimal(dec("500")),
		},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			prev := decimal.Zero
			for minutes := 0; minutes <= 3*24*60; minutes++ {
				fee := ComputeLateFee(rate, minutes, cfg)
				assert.False(t, fee.IsNegative())
				assert.True(t, fee.GreaterThanOrEqual(prev), "fee decreased at %d minutes", minutes)
				if minutes <= cfg.GracePeriodMinutes {
					assert.True(t, fee.IsZero(), "fee charged inside grace at %d minutes", minutes)
				}
				if cfg.MaxDailyRate.Valid {
					effective := decimal.NewFromInt(int64(max(minutes-cfg.GracePeriodMinutes, 0)))
					bound := cfg.MaxDailyRate.Decimal.Div(decimal.NewFromInt(24)).Mul(effective.Div(decimal.NewFromInt(60)))
					assert.True(t, fee.LessThanOrEqual(bound), "fee above cap at %d minutes", minutes)
				}
				prev = fee
			}
		})
	}
}

func TestLateFee_DefaultWhenNoActiveConfig(t *testing.T) {
	fee, degraded := LateFee(dec("1"), 30, nil)
	assert.True(t, degraded)
	assert.Equal(t, "60.00", fee.StringFixed(2))

	cfg := &domain.FeeConfiguration{FeeType: domain.FeeTypeMultiplier, Multiplier: dec("1")}
	fee, degraded = LateFee(dec("1"), 30, cfg)
	assert.False(t, degraded)
	assert.Equal(t, "30.00", fee.StringFixed(2))
}
