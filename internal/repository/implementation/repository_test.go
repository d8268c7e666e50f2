package implementation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/model"
	"hq-billing-be/internal/repository/contract"
	"hq-billing-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "billing.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func TestPlanRepositoryPersistsLimits(t *testing.T) {
	ctx := context.Background()
	repo := NewPlanRepository(setupDB(t))

	plan := &entity.Plan{
		Name:            "Pro",
		Price:           decimal.RequireFromString("99.90"),
		Currency:        "USD",
		BillingInterval: entity.BillingIntervalMonthly,
		Features:        []string{"sso", "audit_log"},
		IsActive:        true,
		Limits: []entity.PlanLimit{
			{MetricName: "storage", MaxValue: 50, Unit: "GB", OverageRate: decimal.RequireFromString("0.5")},
			{MetricName: "api_calls", MaxValue: entity.UnlimitedLimit},
		},
	}
	require.NoError(t, repo.Create(ctx, plan))
	require.NotEqual(t, uuid.Nil, plan.Id)

	found, err := repo.FindOne(ctx, specification.ByID{ID: plan.Id})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, decimal.RequireFromString("99.90").Equal(found.Price))
	assert.Equal(t, []string{"sso", "audit_log"}, found.Features)
	require.Len(t, found.Limits, 2)
	assert.Equal(t, "api_calls", found.Limits[0].MetricName)
	assert.True(t, found.Limits[0].IsUnlimited())

	require.NoError(t, repo.ReplaceLimits(ctx, plan.Id, []entity.PlanLimit{{MetricName: "seats", MaxValue: 5}}))
	found, err = repo.FindOne(ctx, specification.ByID{ID: plan.Id})
	require.NoError(t, err)
	require.Len(t, found.Limits, 1)
	assert.Equal(t, "seats", found.Limits[0].MetricName)
}

func TestPlanRepositoryFindOneMissing(t *testing.T) {
	repo := NewPlanRepository(setupDB(t))
	found, err := repo.FindOne(context.Background(), specification.ByID{ID: uuid.New()})
	assert.NoError(t, err)
	assert.Nil(t, found)
}

func TestSubscriptionRepositoryOptimisticVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(setupDB(t))
	now := time.Now()

	sub := &entity.Subscription{
		TenantId:           uuid.New(),
		PlanId:             uuid.New(),
		Status:             entity.SubscriptionStatusActive,
		StartedAt:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, 30),
	}
	require.NoError(t, repo.Create(ctx, sub))
	assert.Equal(t, int64(1), sub.Version)

	stale := *sub

	sub.CancelAtPeriodEnd = true
	require.NoError(t, repo.Update(ctx, sub))
	assert.Equal(t, int64(2), sub.Version)

	stale.Status = entity.SubscriptionStatusCancelled
	err := repo.Update(ctx, &stale)
	assert.ErrorIs(t, err, contract.ErrConcurrentModification)

	stored, err := repo.FindOne(ctx, specification.ByID{ID: sub.Id})
	require.NoError(t, err)
	assert.Equal(t, entity.SubscriptionStatusActive, stored.Status)
	assert.True(t, stored.CancelAtPeriodEnd)
}

func TestInvoiceRepositoryItemsAndAggregates(t *testing.T) {
	ctx := context.Background()
	repo := NewInvoiceRepository(setupDB(t))
	tenant := uuid.New()
	now := time.Now()

	for i, total := range []string{"100.10", "50.05"} {
		inv := &entity.Invoice{
			TenantId:      tenant,
			InvoiceNumber: "INV-TEST-" + string(rune('A'+i)),
			Status:        entity.InvoiceStatusPaid,
			IssuedDate:    now,
			DueDate:       now,
			Currency:      "USD",
			Items: []entity.InvoiceItem{
				{Type: entity.InvoiceItemSubscription, Description: "Pro", Quantity: decimal.NewFromInt(1),
					UnitPrice: decimal.RequireFromString(total), Amount: decimal.RequireFromString(total)},
			},
		}
		inv.RecalculateTotals()
		require.NoError(t, repo.Create(ctx, inv))
		require.Len(t, inv.Items, 1)
	}

	sum, err := repo.SumTotal(ctx, specification.ByTenantID{TenantID: tenant})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150.15").Equal(sum), "got %s", sum)

	tenants, err := repo.CountDistinctTenants(ctx, specification.StatusIn{Statuses: specification.Statuses(entity.InvoiceStatusPaid)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), tenants)
}

func TestUsageRepositorySumByMetric(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageMetricRepository(setupDB(t))
	tenant := uuid.New()
	now := time.Now()

	for _, m := range []struct {
		name     string
		value    string
		billable bool
	}{
		{"storage", "10", false},
		{"storage", "15.5", false},
		{"overage_storage", "7.25", true},
	} {
		require.NoError(t, repo.Create(ctx, &entity.UsageMetric{
			TenantId:          tenant,
			MetricName:        m.name,
			MetricValue:       decimal.RequireFromString(m.value),
			IsBillableOverage: m.billable,
			PeriodStart:       now,
			PeriodEnd:         now,
			RecordedAt:        now,
		}))
	}

	totals, err := repo.SumByMetric(ctx, specification.ByTenantID{TenantID: tenant}, specification.BillableOverage{Billable: false})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25.5").Equal(totals["storage"]))
	assert.NotContains(t, totals, "overage_storage")

	billable, err := repo.Sum(ctx, specification.ByTenantID{TenantID: tenant}, specification.BillableOverage{Billable: true})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("7.25").Equal(billable))
}

func TestUsageInPeriodExcludesPeriodEnd(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageMetricRepository(setupDB(t))
	tenant := uuid.New()
	p0 := time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC)
	p1 := p0.AddDate(0, 0, 30)
	p2 := p1.AddDate(0, 0, 30)

	for _, at := range []time.Time{p0, p1} {
		require.NoError(t, repo.Create(ctx, &entity.UsageMetric{
			TenantId:          tenant,
			MetricName:        "api_calls",
			MetricValue:       decimal.NewFromInt(50),
			IsBillableOverage: true,
			PeriodStart:       at,
			PeriodEnd:         at,
			RecordedAt:        at,
		}))
	}

	first, err := repo.Sum(ctx, specification.ByTenantID{TenantID: tenant}, specification.UsageInPeriod{Start: p0, End: p1})
	require.NoError(t, err)
	second, err := repo.Sum(ctx, specification.ByTenantID{TenantID: tenant}, specification.UsageInPeriod{Start: p1, End: p2})
	require.NoError(t, err)

	assert.Equal(t, "50", first.String())
	assert.Equal(t, "50", second.String())
}

func TestBillingCycleRepositoryCount(t *testing.T) {
	ctx := context.Background()
	repo := NewBillingCycleRepository(setupDB(t))
	subId := uuid.New()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		periodStart := start.AddDate(0, i, 0)
		require.NoError(t, repo.Create(ctx, &entity.BillingCycle{
			SubscriptionId: subId,
			Kind:           entity.BillingCycleKindRegular,
			PeriodStart:    periodStart,
			PeriodEnd:      periodStart.AddDate(0, 1, 0),
			Status:         entity.BillingCycleStatusPending,
			Currency:       "USD",
			DueDate:        periodStart.AddDate(0, 1, 7),
			IdempotencyKey: subId.String() + periodStart.Format("2006-01"),
		}))
	}

	count, err := repo.Count(ctx, specification.BySubscriptionID{SubscriptionID: subId})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	none, err := repo.Count(ctx, specification.BySubscriptionID{SubscriptionID: uuid.New()})
	require.NoError(t, err)
	assert.Zero(t, none)
}
