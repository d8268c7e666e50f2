// Package proration computes mid-period plan change charges.
package proration

import (
	"math"
	"time"

	"hq-billing-be/pkg/billing/money"

	"github.com/shopspring/decimal"
)

// DaysPerPeriod is the divisor used for the daily rate regardless of interval.
const DaysPerPeriod = 30

var daysPerPeriod = decimal.NewFromInt(DaysPerPeriod)

// RemainingDays counts whole or partial days left until periodEnd. A period
// that already ended has zero days left.
func RemainingDays(now, periodEnd time.Time) int {
	if !periodEnd.After(now) {
		return 0
	}
	return int(math.Ceil(periodEnd.Sub(now).Hours() / 24))
}

// UpgradeCharge is the immediate charge for an upgrade: the current plan's
// daily rate times the days remaining, rounded to the currency's minor unit.
func UpgradeCharge(currentPrice decimal.Decimal, remainingDays int, currency string) decimal.Decimal {
	if remainingDays <= 0 {
		return decimal.Zero
	}
	charge := currentPrice.Div(daysPerPeriod).Mul(decimal.NewFromInt(int64(remainingDays)))
	return money.Round(charge, currency)
}
