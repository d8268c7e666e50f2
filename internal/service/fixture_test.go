package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hq-billing-be/internal/config"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/model"
	"hq-billing-be/internal/pkg/locker"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/pkg/metrics"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/events"
	"hq-billing-be/pkg/billing/gateway"
	"hq-billing-be/pkg/billing/invoicing"
	"hq-billing-be/pkg/billing/lifecycle"
	"hq-billing-be/pkg/billing/metering"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	t          *testing.T
	ctx        context.Context
	uowFactory unitofwork.RepositoryFactory
	log        logger.ILogger
	metrics    *metrics.BillingMetrics
	lifecycle  *lifecycle.Manager
	generator  *invoicing.Generator
	meter      *metering.Meter
	locker     locker.Locker
	cfg        config.BillingConfig
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "billing.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))

	log := logger.NewNopLogger()
	cfg := config.BillingConfig{
		DefaultCurrency:  "USD",
		PaymentTermsDays: 7,
		DunningDays:      30,
		ProviderTimeout:  2 * time.Second,
		LockTTL:          5 * time.Second,
		PlanCacheTTL:     time.Minute,
	}
	return &fixture{
		t:          t,
		ctx:        context.Background(),
		uowFactory: unitofwork.NewRepositoryFactory(db),
		log:        log,
		metrics:    metrics.NewBillingMetrics(prometheus.NewRegistry()),
		lifecycle:  lifecycle.NewManager(log, cfg.PaymentTermsDays),
		generator:  invoicing.NewGenerator(log),
		meter:      metering.NewMeter(),
		locker:     locker.NewMemoryLocker(),
		cfg:        cfg,
		now:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) subscriptions() *subscriptionService {
	s := NewSubscriptionService(f.uowFactory, f.lifecycle, f.generator, f.meter, f.locker,
		events.NoopPublisher{}, f.metrics, f.log, f.cfg).(*subscriptionService)
	s.now = f.clock
	return s
}

func (f *fixture) billing() *billingService {
	s := NewBillingService(f.uowFactory, f.lifecycle, f.generator, f.meter, f.locker,
		events.NoopPublisher{}, f.metrics, f.log, f.cfg).(*billingService)
	s.now = f.clock
	return s
}

func (f *fixture) invoices(queue IInvoiceMailQueue) *invoiceService {
	if queue == nil {
		queue = &recordingQueue{}
	}
	s := NewInvoiceService(f.uowFactory, f.generator, f.lifecycle, queue,
		events.NoopPublisher{}, f.log, f.cfg.PaymentTermsDays).(*invoiceService)
	s.now = f.clock
	return s
}

func (f *fixture) providers(gateways ...gateway.PaymentGateway) *providerService {
	s := NewProviderService(f.uowFactory, gateway.NewManager(gateways...), f.generator, f.lifecycle,
		events.NoopPublisher{}, f.metrics, f.log, f.cfg).(*providerService)
	s.now = f.clock
	return s
}

type planOption func(*entity.Plan)

func withLimit(metric string, max int64, overageRate string) planOption {
	return func(p *entity.Plan) {
		p.Limits = append(p.Limits, entity.PlanLimit{
			MetricName:  metric,
			MaxValue:    max,
			OverageRate: decimal.RequireFromString(overageRate),
		})
	}
}

func inCurrency(currency string) planOption {
	return func(p *entity.Plan) { p.Currency = currency }
}

func withTrial(days int) planOption {
	return func(p *entity.Plan) { p.TrialDays = days }
}

func (f *fixture) createPlan(name, price string, opts ...planOption) *entity.Plan {
	f.t.Helper()
	plan := &entity.Plan{
		Name:            name,
		Price:           decimal.RequireFromString(price),
		Currency:        "USD",
		BillingInterval: entity.BillingIntervalMonthly,
		Features:        []string{},
		IsActive:        true,
	}
	for _, opt := range opts {
		opt(plan)
	}
	require.NoError(f.t, f.uowFactory.NewUnitOfWork(f.ctx).PlanRepository().Create(f.ctx, plan))
	return plan
}

// createSubscription inserts a subscription directly, bypassing the initial
// billing of CreateSubscription.
func (f *fixture) createSubscription(tenantId uuid.UUID, plan *entity.Plan, status entity.SubscriptionStatus, periodStart time.Time) *entity.Subscription {
	f.t.Helper()
	sub := &entity.Subscription{
		Id:                 uuid.New(),
		TenantId:           tenantId,
		PlanId:             plan.Id,
		Status:             status,
		StartedAt:          periodStart,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodStart.AddDate(0, 0, plan.BillingInterval.PeriodDays()),
	}
	require.NoError(f.t, f.uowFactory.NewUnitOfWork(f.ctx).SubscriptionRepository().Create(f.ctx, sub))
	return sub
}

func (f *fixture) createCycle(sub *entity.Subscription, status entity.BillingCycleStatus, total string, due time.Time) *entity.BillingCycle {
	f.t.Helper()
	cycle := &entity.BillingCycle{
		Id:             uuid.New(),
		SubscriptionId: sub.Id,
		Kind:           entity.BillingCycleKindRegular,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		BaseAmount:     decimal.RequireFromString(total),
		Currency:       "USD",
		DueDate:        due,
		Status:         status,
		IdempotencyKey: "test:" + uuid.NewString(),
	}
	cycle.RecalculateTotal()
	require.NoError(f.t, f.uowFactory.NewUnitOfWork(f.ctx).BillingCycleRepository().Create(f.ctx, cycle))
	return cycle
}

func (f *fixture) subscription(id uuid.UUID) *entity.Subscription {
	f.t.Helper()
	sub, err := f.uowFactory.NewUnitOfWork(f.ctx).SubscriptionRepository().FindOne(f.ctx, specification.ByID{ID: id})
	require.NoError(f.t, err)
	require.NotNil(f.t, sub)
	return sub
}

func (f *fixture) cycle(id uuid.UUID) *entity.BillingCycle {
	f.t.Helper()
	cycle, err := f.uowFactory.NewUnitOfWork(f.ctx).BillingCycleRepository().FindOne(f.ctx, specification.ByID{ID: id})
	require.NoError(f.t, err)
	require.NotNil(f.t, cycle)
	return cycle
}

func (f *fixture) invoice(id uuid.UUID) *entity.Invoice {
	f.t.Helper()
	invoice, err := f.uowFactory.NewUnitOfWork(f.ctx).InvoiceRepository().FindOne(f.ctx, specification.ByID{ID: id})
	require.NoError(f.t, err)
	require.NotNil(f.t, invoice)
	return invoice
}

func (f *fixture) transaction(id uuid.UUID) *entity.PaymentTransaction {
	f.t.Helper()
	tx, err := f.uowFactory.NewUnitOfWork(f.ctx).PaymentTransactionRepository().FindOne(f.ctx, specification.ByID{ID: id})
	require.NoError(f.t, err)
	require.NotNil(f.t, tx)
	return tx
}

type recordingQueue struct {
	sent []string
}

func (q *recordingQueue) Enqueue(_ context.Context, invoiceId uuid.UUID, to string) error {
	q.sent = append(q.sent, invoiceId.String()+":"+to)
	return nil
}

// fakeGateway answers charges and refunds with canned results.
type fakeGateway struct {
	provider  entity.PaymentProvider
	chargeErr error
	status    entity.TransactionStatus
	charges   []*gateway.ChargeRequest
	refunds   []*gateway.RefundRequest

	// Empty accepts every currency.
	currencies []string
}

func newFakeGateway(provider entity.PaymentProvider) *fakeGateway {
	return &fakeGateway{provider: provider, status: entity.TransactionStatusCompleted}
}

func (g *fakeGateway) Provider() entity.PaymentProvider { return g.provider }

func (g *fakeGateway) SupportsCurrency(currency string) bool {
	if len(g.currencies) == 0 {
		return true
	}
	for _, c := range g.currencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

func (g *fakeGateway) Charge(_ context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.charges = append(g.charges, req)
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	return &gateway.ChargeResult{
		ProviderTransactionId: "prov-" + req.OrderId,
		Status:                g.status,
	}, nil
}

func (g *fakeGateway) QueryStatus(_ context.Context, req *gateway.StatusRequest) (*gateway.StatusResult, error) {
	return &gateway.StatusResult{ProviderTransactionId: req.ProviderTransactionId, Status: g.status}, nil
}

func (g *fakeGateway) Refund(_ context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	g.refunds = append(g.refunds, req)
	return &gateway.RefundResult{
		ProviderRefundId: "re-" + req.RefundKey,
		Status:           entity.TransactionStatusCompleted,
	}, nil
}

func (g *fakeGateway) AttachPaymentMethod(_ context.Context, req *gateway.AttachRequest) (*gateway.AttachResult, error) {
	return &gateway.AttachResult{
		ProviderMethodId:   "pm-" + req.Token,
		ProviderCustomerId: "cus-" + req.TenantId,
		CardBrand:          "visa",
		CardLast4:          "4242",
		ExpMonth:           12,
		ExpYear:            2030,
	}, nil
}

func (g *fakeGateway) DetachPaymentMethod(context.Context, *entity.PaymentMethod) error {
	return nil
}

func (g *fakeGateway) VerifyAndParseWebhook(context.Context, []byte, map[string]string) (*gateway.WebhookEvent, error) {
	return nil, gateway.ErrWebhookVerification
}
