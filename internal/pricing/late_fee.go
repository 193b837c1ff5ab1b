package pricing

import (
	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
)

var (
	minutesPerHour = decimal.NewFromInt(60)
	hoursPerDay    = decimal.NewFromInt(24)
)

// ComputeLateFee returns the late fee for a rental overdue by overdueMinutes.
//
// The grace period is subtracted first; nothing is charged inside it. The fee
// then depends on cfg.FeeType:
//
//	MULTIPLIER: baseRatePerMinute * multiplier * minutes
//	FLAT_RATE:  flatRatePerHour * minutes/60
//	COMPOUND:   the sum of both
//
// When MaxDailyRate is set the fee is capped at (maxDailyRate/24) * minutes/60,
// so the cap grows linearly with elapsed time. Negative inputs are treated as
// zero. The fee is rounded to cents and the cap is rounded down to cents.
func ComputeLateFee(baseRatePerMinute decimal.Decimal, overdueMinutes int, cfg domain.FeeConfiguration) decimal.Decimal {
	effective := overdueMinutes - max(cfg.GracePeriodMinutes, 0)
	if effective <= 0 {
		return decimal.Zero
	}
	minutes := decimal.NewFromInt(int64(effective))
	hours := minutes.Div(minutesPerHour)

	byMultiplier := nonNegative(baseRatePerMinute).Mul(nonNegative(cfg.Multiplier)).Mul(minutes)
	byFlatRate := nonNegative(cfg.FlatRatePerHour).Mul(hours)

	var fee decimal.Decimal
	switch cfg.FeeType {
	case domain.FeeTypeFlatRate:
		fee = byFlatRate
	case domain.FeeTypeCompound:
		fee = byMultiplier.Add(byFlatRate)
	default:
		fee = byMultiplier
	}

	fee = nonNegative(fee).Round(2)
	if cfg.MaxDailyRate.Valid {
		// rounded down so cents never push the fee past the bound
		limit := nonNegative(cfg.MaxDailyRate.Decimal).Div(hoursPerDay).Mul(hours).RoundFloor(2)
		fee = decimal.Min(fee, limit)
	}
	return fee
}

// LateFee is ComputeLateFee with the fallback policy applied when no fee
// configuration is active. The second return value reports degraded mode.
func LateFee(baseRatePerMinute decimal.Decimal, overdueMinutes int, cfg *domain.FeeConfiguration) (decimal.Decimal, bool) {
	if cfg == nil {
		logger.Warn("No active fee configuration, using default multiplier",
			"degraded", true,
			"multiplier", domain.DefaultFeeConfiguration().Multiplier.String())
		return ComputeLateFee(baseRatePerMinute, overdueMinutes, domain.DefaultFeeConfiguration()), true
	}
	return ComputeLateFee(baseRatePerMinute, overdueMinutes, *cfg), false
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
