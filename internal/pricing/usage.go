package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"chargeshare-backend/internal/domain"
)

// BilledMinutes rounds elapsed time up to whole minutes, minimum one.
func BilledMinutes(elapsed time.Duration) int {
	minutes := int((elapsed + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		return 1
	}
	return minutes
}

// UsageCost prices a postpaid rental by the minutes actually used.
func UsageCost(ratePerMinute decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	return nonNegative(ratePerMinute).Mul(decimal.NewFromInt(int64(BilledMinutes(elapsed)))).Round(2)
}

// Prorate splits amount across the sources of an earlier payment in the same
// proportion. The wallet share absorbs the rounding remainder so the parts
// always sum to amount.
func Prorate(amount decimal.Decimal, paid domain.Breakdown) domain.Breakdown {
	total := paid.Total()
	if !total.IsPositive() || !amount.IsPositive() {
		return domain.Breakdown{Points: decimal.Zero, Wallet: decimal.Zero}
	}
	if amount.GreaterThan(total) {
		amount = total
	}
	points := amount.Mul(paid.Points).Div(total).Round(2)
	if points.GreaterThan(paid.Points) {
		points = paid.Points
	}
	wallet := amount.Sub(points)
	if wallet.GreaterThan(paid.Wallet) {
		wallet = paid.Wallet
		points = amount.Sub(wallet)
	}
	return domain.Breakdown{Points: points, Wallet: wallet}
}
