// Package metering compares recorded usage against plan limits.
package metering

import (
	"context"
	"sort"
	"time"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Meter struct{}

func NewMeter() *Meter {
	return &Meter{}
}

// Check sums raw usage per metric over the subscription's current period.
// Billable overage rows are money, not usage, and are left out.
func (m *Meter) Check(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, plan *entity.Plan) (*entity.UsageCheckResult, error) {
	sums, err := uow.UsageMetricRepository().SumByMetric(ctx,
		specification.ByTenantID{TenantID: sub.TenantId},
		specification.BillableOverage{Billable: false},
		specification.UsageInPeriod{Start: sub.CurrentPeriodStart, End: sub.CurrentPeriodEnd},
	)
	if err != nil {
		return nil, err
	}

	result := Evaluate(plan, sums)
	result.SubscriptionId = sub.Id
	result.PeriodStart = sub.CurrentPeriodStart
	result.PeriodEnd = sub.CurrentPeriodEnd
	return result, nil
}

// Evaluate applies the plan limits to usage totals. Unlimited limits never
// produce an overage; a limited metric above its cap produces exactly one.
func Evaluate(plan *entity.Plan, sums map[string]decimal.Decimal) *entity.UsageCheckResult {
	result := &entity.UsageCheckResult{
		WithinLimits: true,
		Usage:        []entity.MetricUsage{},
		Overages:     []entity.UsageOverage{},
	}

	limits := append([]entity.PlanLimit(nil), plan.Limits...)
	sort.SliceStable(limits, func(i, j int) bool { return limits[i].MetricName < limits[j].MetricName })

	for _, limit := range limits {
		current, ok := sums[limit.MetricName]
		if !ok {
			current = decimal.Zero
		}

		usage := entity.MetricUsage{
			MetricName: limit.MetricName,
			Current:    current,
			Limit:      limit.MaxValue,
			Unit:       limit.Unit,
			Unlimited:  limit.IsUnlimited(),
		}
		if !usage.Unlimited && limit.MaxValue > 0 {
			usage.PercentUsed = current.Div(decimal.NewFromInt(limit.MaxValue)).Mul(hundred).Round(2).InexactFloat64()
		}
		result.Usage = append(result.Usage, usage)

		if limit.IsUnlimited() {
			continue
		}
		ceiling := decimal.NewFromInt(limit.MaxValue)
		if current.GreaterThan(ceiling) {
			over := current.Sub(ceiling)
			result.Overages = append(result.Overages, entity.UsageOverage{
				MetricName:  limit.MetricName,
				Current:     current,
				Limit:       limit.MaxValue,
				Overage:     over,
				Unit:        limit.Unit,
				IsSoftLimit: limit.IsSoftLimit,
				Charge:      money.Round(over.Mul(limit.OverageRate), plan.Currency),
			})
			result.WithinLimits = false
		}
	}
	return result
}

// OverageCharges is the monetary overage billed for a window: the sum of the
// tenant's billable overage rows whose period starts in [start, end).
func (m *Meter) OverageCharges(ctx context.Context, uow unitofwork.UnitOfWork, tenantId uuid.UUID, start, end time.Time) (decimal.Decimal, error) {
	return uow.UsageMetricRepository().Sum(ctx,
		specification.ByTenantID{TenantID: tenantId},
		specification.BillableOverage{Billable: true},
		specification.UsageInPeriod{Start: start, End: end},
	)
}
