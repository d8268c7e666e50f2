package service

import (
	"testing"
	"time"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBillingCycleBillsElapsedPeriods(t *testing.T) {
	f := newFixture(t)
	svc := f.billing()
	plan := f.createPlan("Pro", "100.00", func(p *entity.Plan) { p.TaxRate = decimal.RequireFromString("0.1") })
	tenant := uuid.New()

	// Period ended yesterday.
	start := f.now.AddDate(0, 0, -31)
	sub := f.createSubscription(tenant, plan, entity.SubscriptionStatusActive, start)
	notDue := f.createSubscription(uuid.New(), plan, entity.SubscriptionStatusActive, f.now.AddDate(0, 0, -3))

	usage := NewUsageService(f.uowFactory, f.meter, f.log)
	overageAt := start.AddDate(0, 0, 10)
	_, err := usage.TrackUsage(f.ctx, tenant, &dto.TrackUsageRequest{
		MetricName:        "api_calls",
		Value:             decimal.RequireFromString("12.50"),
		IsBillableOverage: true,
		PeriodStart:       &overageAt,
	})
	require.NoError(t, err)

	summary, err := svc.ProcessBillingCycle(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, JobBillingCycle, summary.Job)
	require.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)

	result := summary.Results[0]
	assert.Equal(t, sub.Id, result.SubscriptionId)
	assert.Equal(t, "billed", result.Action)
	require.NotNil(t, result.BillingCycleId)
	require.NotNil(t, result.InvoiceId)

	cycle := f.cycle(*result.BillingCycleId)
	assert.Equal(t, entity.BillingCycleKindRegular, cycle.Kind)
	assert.Equal(t, "100.00", cycle.BaseAmount.StringFixed(2))
	assert.Equal(t, "12.50", cycle.OverageAmount.StringFixed(2))
	assert.Equal(t, "11.25", cycle.TaxAmount.StringFixed(2))
	assert.Equal(t, "123.75", cycle.TotalAmount.StringFixed(2))
	assert.Equal(t, sub.CurrentPeriodEnd.Unix(), cycle.PeriodStart.Unix())
	assert.Equal(t, f.now.AddDate(0, 0, f.cfg.PaymentTermsDays).Unix(), cycle.DueDate.Unix())

	invoice := f.invoice(*result.InvoiceId)
	assert.Equal(t, entity.InvoiceStatusSent, invoice.Status)
	assert.True(t, cycle.TotalAmount.Equal(invoice.TotalAmount))

	stored := f.subscription(sub.Id)
	assert.Equal(t, sub.CurrentPeriodEnd.Unix(), stored.CurrentPeriodStart.Unix())
	assert.Equal(t, sub.CurrentPeriodEnd.AddDate(0, 0, 30).Unix(), stored.CurrentPeriodEnd.Unix())
	assert.Equal(t, notDue.CurrentPeriodEnd.Unix(), f.subscription(notDue.Id).CurrentPeriodEnd.Unix())

	t.Run("a second run bills nothing", func(t *testing.T) {
		again, err := svc.ProcessBillingCycle(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, again.Processed)

		count, err := f.uowFactory.NewUnitOfWork(f.ctx).BillingCycleRepository().Count(f.ctx,
			specification.BySubscriptionID{SubscriptionID: sub.Id})
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})
}

func TestProcessBillingCycleBillsBoundaryOverageOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.billing()
	plan := f.createPlan("Pro", "100.00")
	tenant := uuid.New()
	sub := f.createSubscription(tenant, plan, entity.SubscriptionStatusActive, f.now.AddDate(0, 0, -31))

	// Reported for the period that begins where the elapsed one ends.
	boundary := sub.CurrentPeriodEnd
	usage := NewUsageService(f.uowFactory, f.meter, f.log)
	_, err := usage.TrackUsage(f.ctx, tenant, &dto.TrackUsageRequest{
		MetricName:        "api_calls",
		Value:             decimal.NewFromInt(50),
		IsBillableOverage: true,
		PeriodStart:       &boundary,
	})
	require.NoError(t, err)

	billed := decimal.Zero
	for i := 0; i < 2; i++ {
		summary, err := svc.ProcessBillingCycle(f.ctx)
		require.NoError(t, err)
		require.Len(t, summary.Results, 1)
		require.NotNil(t, summary.Results[0].BillingCycleId)
		billed = billed.Add(f.cycle(*summary.Results[0].BillingCycleId).OverageAmount)
		f.now = f.now.AddDate(0, 0, 30)
	}
	assert.Equal(t, "50.00", billed.StringFixed(2))

	uow := f.uowFactory.NewUnitOfWork(f.ctx)
	cycles, err := uow.BillingCycleRepository().FindAll(f.ctx, specification.BySubscriptionID{SubscriptionID: sub.Id})
	require.NoError(t, err)
	require.Len(t, cycles, 2)
}

func TestProcessBillingCycleHonoursScheduledCancellation(t *testing.T) {
	f := newFixture(t)
	plan := f.createPlan("Pro", "100.00")
	sub := f.createSubscription(uuid.New(), plan, entity.SubscriptionStatusActive, f.now.AddDate(0, 0, -31))

	uow := f.uowFactory.NewUnitOfWork(f.ctx)
	sub.CancelAtPeriodEnd = true
	require.NoError(t, uow.SubscriptionRepository().Update(f.ctx, sub))

	summary, err := f.billing().ProcessBillingCycle(f.ctx)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "cancelled", summary.Results[0].Action)
	assert.Nil(t, summary.Results[0].InvoiceId)

	stored := f.subscription(sub.Id)
	assert.Equal(t, entity.SubscriptionStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	assert.Equal(t, sub.CurrentPeriodEnd.Unix(), stored.CancelledAt.Unix())
}

func TestProcessBillingCycleSettlesFreePlans(t *testing.T) {
	f := newFixture(t)
	plan := f.createPlan("Free", "0")
	sub := f.createSubscription(uuid.New(), plan, entity.SubscriptionStatusActive, f.now.AddDate(0, 0, -31))

	summary, err := f.billing().ProcessBillingCycle(f.ctx)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	result := summary.Results[0]
	assert.True(t, result.Success)
	require.NotNil(t, result.BillingCycleId)
	require.NotNil(t, result.InvoiceId)

	cycle := f.cycle(*result.BillingCycleId)
	assert.Equal(t, entity.BillingCycleStatusPaid, cycle.Status)
	require.NotNil(t, cycle.ProcessedAt)

	invoice := f.invoice(*result.InvoiceId)
	assert.Equal(t, entity.InvoiceStatusPaid, invoice.Status)
	assert.True(t, invoice.TotalAmount.IsZero())
	require.NotNil(t, invoice.PaidDate)
	assert.Equal(t, cycle.Id, *invoice.BillingCycleId)
	assert.Equal(t, entity.SubscriptionStatusActive, f.subscription(sub.Id).Status)
}

func TestProcessDunningCancelsAfterGracePeriod(t *testing.T) {
	f := newFixture(t)
	plan := f.createPlan("Pro", "100.00")

	lateSub := f.createSubscription(uuid.New(), plan, entity.SubscriptionStatusPastDue, f.now.AddDate(0, -2, 0))
	late := f.createCycle(lateSub, entity.BillingCycleStatusOverdue, "100.00", f.now.AddDate(0, 0, -31))

	graceSub := f.createSubscription(uuid.New(), plan, entity.SubscriptionStatusPastDue, f.now.AddDate(0, -2, 0))
	grace := f.createCycle(graceSub, entity.BillingCycleStatusOverdue, "100.00", f.now.AddDate(0, 0, -29))

	summary, err := f.billing().ProcessDunning(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	assert.Equal(t, "dunned", summary.Results[0].Action)

	assert.Equal(t, entity.BillingCycleStatusCancelled, f.cycle(late.Id).Status)
	dunned := f.subscription(lateSub.Id)
	assert.Equal(t, entity.SubscriptionStatusCancelled, dunned.Status)
	assert.Equal(t, "payment overdue", dunned.CancellationReason)

	assert.Equal(t, entity.BillingCycleStatusOverdue, f.cycle(grace.Id).Status)
	assert.Equal(t, entity.SubscriptionStatusPastDue, f.subscription(graceSub.Id).Status)
}

func TestMarkOverdueCyclesSuspendsSubscription(t *testing.T) {
	f := newFixture(t)
	subs := f.subscriptions()
	plan := f.createPlan("Pro", "100.00")
	tenant := uuid.New()

	created, err := subs.CreateSubscription(f.ctx, tenant, &dto.CreateSubscriptionRequest{PlanId: plan.Id})
	require.NoError(t, err)

	f.now = f.now.AddDate(0, 0, f.cfg.PaymentTermsDays+1)
	summary, err := f.billing().MarkOverdueCycles(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	assert.True(t, summary.Results[0].Success)

	assert.Equal(t, entity.BillingCycleStatusOverdue, f.cycle(created.BillingCycle.Id).Status)
	assert.Equal(t, entity.InvoiceStatusOverdue, f.invoice(created.Invoice.Id).Status)
	assert.Equal(t, entity.SubscriptionStatusPastDue, f.subscription(created.Subscription.Id).Status)

	again, err := f.billing().MarkOverdueCycles(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
}

func TestCreateBillingCycleValidatesAmounts(t *testing.T) {
	f := newFixture(t)
	svc := f.billing()
	plan := f.createPlan("Pro", "100.00")
	sub := f.createSubscription(uuid.New(), plan, entity.SubscriptionStatusActive, f.now)

	negative := decimal.NewFromInt(-5)
	_, err := svc.CreateBillingCycle(f.ctx, &dto.CreateBillingCycleRequest{SubscriptionId: sub.Id, DiscountAmount: &negative})
	require.Error(t, err)

	discount := decimal.NewFromInt(20)
	res, err := svc.CreateBillingCycle(f.ctx, &dto.CreateBillingCycleRequest{SubscriptionId: sub.Id, DiscountAmount: &discount})
	require.NoError(t, err)
	assert.Equal(t, "80.00", res.TotalAmount.StringFixed(2))
	assert.Equal(t, string(entity.BillingCycleStatusPending), res.Status)

	same, err := svc.CreateBillingCycle(f.ctx, &dto.CreateBillingCycleRequest{SubscriptionId: sub.Id})
	require.NoError(t, err)
	assert.Equal(t, res.Id, same.Id)
}

func TestBillingAnalytics(t *testing.T) {
	f := newFixture(t)
	svc := f.billing()
	monthly := f.createPlan("Monthly", "100.00")
	yearly := f.createPlan("Yearly", "1200.00", func(p *entity.Plan) { p.BillingInterval = entity.BillingIntervalYearly })
	trial := f.createPlan("Trial", "50.00")

	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f.createSubscription(uuid.New(), monthly, entity.SubscriptionStatusActive, monthStart.AddDate(0, -1, 0))
	f.createSubscription(uuid.New(), yearly, entity.SubscriptionStatusActive, monthStart.AddDate(0, -1, 0))
	f.createSubscription(uuid.New(), trial, entity.SubscriptionStatusTrial, monthStart.AddDate(0, -1, 0))

	mrr, err := svc.GetMRR(f.ctx, "month")
	require.NoError(t, err)
	assert.Equal(t, "current_month", mrr.Period)
	assert.Equal(t, "200.00", mrr.MRR.StringFixed(2))
	assert.Equal(t, "2400.00", mrr.ARR.StringFixed(2))
	assert.EqualValues(t, 2, mrr.ActiveSubscriptions)

	_, err = svc.GetMRR(f.ctx, "fortnight")
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	churn, err := svc.GetChurnRate(f.ctx, "current_month")
	require.NoError(t, err)
	assert.True(t, churn.ChurnRate.IsZero())
	assert.EqualValues(t, 3, churn.StartingSubscribed)
}
