package metering

import (
	"testing"

	"hq-billing-be/internal/entity"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	plan := &entity.Plan{
		Currency: "USD",
		Limits: []entity.PlanLimit{
			{MetricName: "storage", MaxValue: 50, Unit: "GB", OverageRate: decimal.RequireFromString("0.5")},
			{MetricName: "api_calls", MaxValue: entity.UnlimitedLimit},
			{MetricName: "seats", MaxValue: 5, IsSoftLimit: true},
		},
	}

	t.Run("unlimited never overflows", func(t *testing.T) {
		res := Evaluate(plan, map[string]decimal.Decimal{"api_calls": decimal.NewFromInt(1_000_000_000)})
		assert.True(t, res.WithinLimits)
		assert.Empty(t, res.Overages)
	})

	t.Run("one overage per metric above its cap", func(t *testing.T) {
		res := Evaluate(plan, map[string]decimal.Decimal{
			"storage": decimal.NewFromInt(62),
			"seats":   decimal.NewFromInt(5),
		})
		assert.False(t, res.WithinLimits)
		require.Len(t, res.Overages, 1)
		o := res.Overages[0]
		assert.Equal(t, "storage", o.MetricName)
		assert.True(t, decimal.NewFromInt(12).Equal(o.Overage))
		assert.Equal(t, "6", o.Charge.String())
	})

	t.Run("usage is reported per limit", func(t *testing.T) {
		res := Evaluate(plan, map[string]decimal.Decimal{"seats": decimal.NewFromInt(4)})
		require.Len(t, res.Usage, 3)
		for _, u := range res.Usage {
			if u.MetricName == "seats" {
				assert.Equal(t, 80.0, u.PercentUsed)
			}
			if u.MetricName == "api_calls" {
				assert.True(t, u.Unlimited)
			}
		}
	})
}
