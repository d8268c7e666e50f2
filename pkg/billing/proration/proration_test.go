package proration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUpgradeChargeTenDaysRemaining(t *testing.T) {
	charge := UpgradeCharge(decimal.NewFromInt(100), 10, "USD")
	assert.Equal(t, "33.33", charge.StringFixed(2))
}

func TestUpgradeChargeNothingRemaining(t *testing.T) {
	assert.True(t, UpgradeCharge(decimal.NewFromInt(100), 0, "USD").IsZero())
}

func TestUpgradeChargeZeroDecimalCurrency(t *testing.T) {
	charge := UpgradeCharge(decimal.NewFromInt(150000), 7, "IDR")
	assert.Equal(t, "35000", charge.String())
}

func TestRemainingDays(t *testing.T) {
	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 10, RemainingDays(now, now.AddDate(0, 0, 10)))
	assert.Equal(t, 1, RemainingDays(now, now.Add(3*time.Hour)))
	assert.Equal(t, 0, RemainingDays(now, now.Add(-time.Hour)))
}
