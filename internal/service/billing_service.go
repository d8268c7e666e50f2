package service

import (
	"context"
	"time"

	"hq-billing-be/internal/config"
	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/locker"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/pkg/metrics"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/events"
	"hq-billing-be/pkg/billing/invoicing"
	"hq-billing-be/pkg/billing/lifecycle"
	"hq-billing-be/pkg/billing/metering"
	"hq-billing-be/pkg/billing/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var billingTracer = otel.Tracer("hq-billing/service/billing")

const (
	JobBillingCycle    = "billing-cycle"
	JobDunning         = "dunning"
	JobOverdue         = "overdue"
	JobOverdueInvoices = "overdue-invoices"
	JobPlanChanges     = "plan-changes"
)

type IBillingService interface {
	CreateBillingCycle(ctx context.Context, req *dto.CreateBillingCycleRequest) (*dto.BillingCycleResponse, error)
	ProcessBillingCycle(ctx context.Context) (*dto.BillingRunSummary, error)
	ProcessDunning(ctx context.Context) (*dto.BillingRunSummary, error)
	MarkOverdueCycles(ctx context.Context) (*dto.BillingRunSummary, error)
	GetMRR(ctx context.Context, periodKeyword string) (*dto.MRRResponse, error)
	GetChurnRate(ctx context.Context, periodKeyword string) (*dto.ChurnResponse, error)
	GetARPU(ctx context.Context, periodKeyword string) (*dto.ARPUResponse, error)
	GetBillingAnalytics(ctx context.Context, periodKeyword string) (*dto.BillingAnalyticsResponse, error)
}

type billingService struct {
	uowFactory unitofwork.RepositoryFactory
	lifecycle  *lifecycle.Manager
	generator  *invoicing.Generator
	meter      *metering.Meter
	locker     locker.Locker
	publisher  events.Publisher
	metrics    *metrics.BillingMetrics
	logger     logger.ILogger
	cfg        config.BillingConfig
	now        func() time.Time
}

func NewBillingService(
	uowFactory unitofwork.RepositoryFactory,
	lifecycleManager *lifecycle.Manager,
	generator *invoicing.Generator,
	meter *metering.Meter,
	lock locker.Locker,
	publisher events.Publisher,
	billingMetrics *metrics.BillingMetrics,
	logger logger.ILogger,
	cfg config.BillingConfig,
) IBillingService {
	return &billingService{
		uowFactory: uowFactory,
		lifecycle:  lifecycleManager,
		generator:  generator,
		meter:      meter,
		locker:     lock,
		publisher:  publisher,
		metrics:    billingMetrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *billingService) CreateBillingCycle(ctx context.Context, req *dto.CreateBillingCycleRequest) (*dto.BillingCycleResponse, error) {
	var cycle *entity.BillingCycle
	err := withLock(ctx, s.locker, subscriptionLockKey(req.SubscriptionId), s.cfg.LockTTL, func() error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		sub, plan, err := loadSubscriptionWithPlan(ctx, uow, req.SubscriptionId)
		if err != nil {
			return err
		}
		if !sub.IsOpen() {
			return ErrInvalidSubscriptionState.Wrap(&entity.TransitionError{Entity: "subscription", From: string(sub.Status), To: "billed"})
		}

		p := lifecycle.CycleParams{
			Kind:          entity.BillingCycleKindRegular,
			PeriodStart:   sub.CurrentPeriodStart,
			PeriodEnd:     sub.CurrentPeriodEnd,
			BaseAmount:    plan.Price,
			OverageAmount: decimal.Zero,
		}
		if req.PeriodStart != nil {
			p.PeriodStart = *req.PeriodStart
		}
		if req.PeriodEnd != nil {
			p.PeriodEnd = *req.PeriodEnd
		}
		if req.BaseAmount != nil {
			p.BaseAmount = *req.BaseAmount
		}
		if req.OverageAmount != nil {
			p.OverageAmount = *req.OverageAmount
		}
		if req.DiscountAmount != nil {
			p.DiscountAmount = *req.DiscountAmount
		}
		if req.DueDate != nil {
			p.DueDate = *req.DueDate
		}

		var v apperror.Collector
		v.Check(p.PeriodEnd.After(p.PeriodStart), "period_end must be after period_start")
		v.Check(!p.BaseAmount.IsNegative(), "base_amount must not be negative")
		v.Check(!p.OverageAmount.IsNegative(), "overage_amount must not be negative")
		v.Check(!p.DiscountAmount.IsNegative(), "discount_amount must not be negative")
		if err := v.Err("invalid billing cycle"); err != nil {
			return err
		}

		cycle, _, err = s.lifecycle.OpenCycle(ctx, uow, sub, plan, p, s.now())
		if err != nil {
			return err
		}
		return uow.Commit()
	})
	if err != nil {
		return nil, err
	}
	return toCycleResponse(cycle), nil
}

// ProcessBillingCycle bills every trial or active subscription whose period
// has elapsed. Each subscription runs under its own lock and transaction; a
// failure is recorded in the summary and the run moves on.
func (s *billingService) ProcessBillingCycle(ctx context.Context) (*dto.BillingRunSummary, error) {
	ctx, span := billingTracer.Start(ctx, "ProcessBillingCycle")
	defer span.End()

	now := s.now()
	uow := s.uowFactory.NewUnitOfWork(ctx)
	subs, err := uow.SubscriptionRepository().FindAll(ctx,
		specification.StatusIn{Statuses: specification.Statuses(entity.SubscriptionStatusTrial, entity.SubscriptionStatusActive)},
		specification.PeriodEndedBefore{At: now},
		specification.OrderBy{Field: "current_period_end"},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load due subscriptions")
		return nil, err
	}

	summary := newRunSummary(JobBillingCycle, now)
	for _, sub := range subs {
		result := s.billSubscription(ctx, sub.Id, now)
		summary.add(result)
		s.metrics.BillingCyclesProcessed.WithLabelValues(resultLabel(result)).Inc()
	}
	s.finishRun(summary)

	span.SetAttributes(
		attribute.Int("billing.processed", summary.Processed),
		attribute.Int("billing.failed", summary.Failed),
	)
	span.SetStatus(codes.Ok, "billing run completed")
	return &summary.BillingRunSummary, nil
}

func (s *billingService) billSubscription(ctx context.Context, subscriptionId uuid.UUID, now time.Time) dto.BillingRunResult {
	ctx, span := billingTracer.Start(ctx, "BillSubscription",
		trace.WithAttributes(attribute.String("subscription.id", subscriptionId.String())),
	)
	defer span.End()

	result := dto.BillingRunResult{SubscriptionId: subscriptionId}
	var (
		sub         *entity.Subscription
		invoice     *entity.Invoice
		invCreated  bool
		planChanged bool
		activated   bool
	)

	err := withLock(ctx, s.locker, subscriptionLockKey(subscriptionId), s.cfg.LockTTL, func() error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		var (
			plan *entity.Plan
			err  error
		)
		sub, plan, err = loadSubscriptionWithPlan(ctx, uow, subscriptionId)
		if err != nil {
			return err
		}

		// Another run may have billed it between the scan and the lock.
		due := sub.Status == entity.SubscriptionStatusTrial || sub.Status == entity.SubscriptionStatusActive
		if !due || !sub.CurrentPeriodEnd.Before(now) {
			result.Action = "skipped"
			return nil
		}

		if sub.CancelAtPeriodEnd {
			if err := lifecycle.Cancel(sub, "cancelled at period end", sub.CurrentPeriodEnd); err != nil {
				return err
			}
			if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
				return err
			}
			result.Action = "cancelled"
			return uow.Commit()
		}

		elapsedStart, elapsedEnd := sub.CurrentPeriodStart, sub.CurrentPeriodEnd

		if activated, err = lifecycle.ActivateEndedTrial(sub, now); err != nil {
			return err
		}

		if pending, changed, err := s.lifecycle.ApplyPendingPlanChange(ctx, uow, sub, now); err != nil {
			return err
		} else if changed {
			plan = pending
			planChanged = true
		}

		overage, err := s.meter.OverageCharges(ctx, uow, sub.TenantId, elapsedStart, elapsedEnd)
		if err != nil {
			return err
		}

		base := plan.Price
		if sub.Status == entity.SubscriptionStatusTrial {
			base = decimal.Zero
		}

		nextStart := elapsedEnd
		cycle, _, err := s.lifecycle.OpenCycle(ctx, uow, sub, plan, lifecycle.CycleParams{
			Kind:          entity.BillingCycleKindRegular,
			PeriodStart:   nextStart,
			PeriodEnd:     nextStart.AddDate(0, 0, plan.BillingInterval.PeriodDays()),
			BaseAmount:    base,
			OverageAmount: overage,
		}, now)
		if err != nil {
			return err
		}
		result.BillingCycleId = &cycle.Id

		customer, err := invoicing.LastCustomer(ctx, uow, sub.TenantId)
		if err != nil {
			return err
		}
		invoice, invCreated, err = invoiceCycle(ctx, uow, s.generator, sub, plan, cycle, customer, now)
		if err != nil {
			return err
		}
		if invoice != nil {
			result.InvoiceId = &invoice.Id
		}

		lifecycle.AdvancePeriod(sub, plan)
		if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
			return err
		}
		result.Action = "billed"
		return uow.Commit()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "billing failed")
		s.logger.Error("BILLING", "Failed to bill subscription", map[string]interface{}{
			"subscription_id": subscriptionId.String(),
			"error":           err.Error(),
		})
		result.Success = false
		result.Error = err.Error()
		result.BillingCycleId = nil
		result.InvoiceId = nil
		return result
	}

	result.Success = true
	switch result.Action {
	case "cancelled":
		s.publisher.SubscriptionChanged(ctx, sub, "cancelled")
	case "billed":
		if invCreated {
			s.metrics.InvoicesGenerated.Inc()
			s.publisher.InvoiceIssued(ctx, invoice)
		}
		if activated {
			s.publisher.SubscriptionChanged(ctx, sub, "activated")
		}
		if planChanged {
			s.publisher.SubscriptionChanged(ctx, sub, "plan_changed")
		}
	}
	return result
}

// ProcessDunning cancels every unsettled cycle whose due date is at least
// DunningDays old, together with its subscription and open invoices.
func (s *billingService) ProcessDunning(ctx context.Context) (*dto.BillingRunSummary, error) {
	ctx, span := billingTracer.Start(ctx, "ProcessDunning")
	defer span.End()

	now := s.now()
	cutoff := now.AddDate(0, 0, -s.cfg.DunningDays)

	uow := s.uowFactory.NewUnitOfWork(ctx)
	cycles, err := uow.BillingCycleRepository().FindAll(ctx,
		specification.StatusIn{Statuses: specification.Statuses(entity.UnsettledCycleStatuses...)},
		specification.DueOnOrBefore{At: cutoff},
		specification.OrderBy{Field: "due_date"},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load overdue cycles")
		return nil, err
	}

	summary := newRunSummary(JobDunning, now)
	for _, cycle := range cycles {
		summary.add(s.dunCycle(ctx, cycle.Id, cycle.SubscriptionId, now))
	}
	s.finishRun(summary)

	span.SetAttributes(attribute.Int("dunning.processed", summary.Processed))
	span.SetStatus(codes.Ok, "dunning completed")
	return &summary.BillingRunSummary, nil
}

func (s *billingService) dunCycle(ctx context.Context, cycleId, subscriptionId uuid.UUID, now time.Time) dto.BillingRunResult {
	result := dto.BillingRunResult{SubscriptionId: subscriptionId, BillingCycleId: &cycleId}
	var (
		sub       *entity.Subscription
		cycle     *entity.BillingCycle
		voided    []*entity.Invoice
		cancelled bool
	)

	err := withLock(ctx, s.locker, subscriptionLockKey(subscriptionId), s.cfg.LockTTL, func() error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		var err error
		cycle, err = uow.BillingCycleRepository().FindOne(ctx, specification.ByID{ID: cycleId})
		if err != nil {
			return err
		}
		if cycle == nil {
			return ErrBillingCycleNotFound
		}
		if cycle.IsSettled() {
			result.Action = "skipped"
			return nil
		}

		if err := cycle.TransitionTo(entity.BillingCycleStatusCancelled); err != nil {
			return err
		}
		if err := uow.BillingCycleRepository().Update(ctx, cycle); err != nil {
			return err
		}

		if voided, err = s.generator.CancelForCycle(ctx, uow, cycle.Id, "dunning"); err != nil {
			return err
		}

		sub, err = uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: subscriptionId})
		if err != nil {
			return err
		}
		if sub != nil && sub.IsOpen() {
			if err := lifecycle.Cancel(sub, "payment overdue", now); err != nil {
				return err
			}
			if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
				return err
			}
			cancelled = true
		}

		result.Action = "dunned"
		return uow.Commit()
	})
	if err != nil {
		s.logger.Error("BILLING", "Dunning failed", map[string]interface{}{
			"subscription_id": subscriptionId.String(),
			"cycle_id":        cycleId.String(),
			"error":           err.Error(),
		})
		result.Error = err.Error()
		return result
	}

	result.Success = true
	if result.Action != "dunned" {
		return result
	}
	for _, invoice := range voided {
		s.publisher.InvoiceVoided(ctx, invoice, "dunning")
	}
	if cancelled {
		s.metrics.DunningCancellations.Inc()
		s.publisher.SubscriptionDunned(ctx, sub, cycle)
		s.logger.Warn("BILLING", "Subscription cancelled by dunning", map[string]interface{}{
			"subscription_id": sub.Id.String(),
			"cycle_id":        cycle.Id.String(),
			"due_date":        cycle.DueDate.Format(time.RFC3339),
		})
	}
	return result
}

// MarkOverdueCycles flags pending and processing cycles past their due date,
// marks their invoices overdue and suspends the subscription.
func (s *billingService) MarkOverdueCycles(ctx context.Context) (*dto.BillingRunSummary, error) {
	now := s.now()
	uow := s.uowFactory.NewUnitOfWork(ctx)
	cycles, err := uow.BillingCycleRepository().FindAll(ctx,
		specification.StatusIn{Statuses: specification.Statuses(entity.BillingCycleStatusPending, entity.BillingCycleStatusProcessing)},
		specification.DueBefore{At: now},
	)
	if err != nil {
		return nil, err
	}

	summary := newRunSummary(JobOverdue, now)
	for _, c := range cycles {
		cycleId := c.Id
		result := dto.BillingRunResult{SubscriptionId: c.SubscriptionId, BillingCycleId: &cycleId, Action: "overdue"}
		var suspended *entity.Subscription

		err := withLock(ctx, s.locker, subscriptionLockKey(c.SubscriptionId), s.cfg.LockTTL, func() error {
			uow := s.uowFactory.NewUnitOfWork(ctx)
			if err := uow.Begin(ctx); err != nil {
				return err
			}
			defer uow.Rollback()

			cycle, err := uow.BillingCycleRepository().FindOne(ctx, specification.ByID{ID: cycleId})
			if err != nil {
				return err
			}
			if cycle == nil || cycle.Status == entity.BillingCycleStatusOverdue || cycle.IsSettled() {
				result.Action = "skipped"
				return nil
			}
			if err := s.generator.MarkCycleOverdue(ctx, uow, cycle); err != nil {
				return err
			}

			sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: cycle.SubscriptionId})
			if err != nil {
				return err
			}
			if sub != nil {
				changed, err := lifecycle.Suspend(sub)
				if err != nil {
					return err
				}
				if changed {
					if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
						return err
					}
					suspended = sub
				}
			}
			return uow.Commit()
		})
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Success = true
			if suspended != nil {
				s.publisher.SubscriptionChanged(ctx, suspended, "past_due")
			}
		}
		summary.add(result)
	}
	s.finishRun(summary)
	return &summary.BillingRunSummary, nil
}

func (s *billingService) GetMRR(ctx context.Context, periodKeyword string) (*dto.MRRResponse, error) {
	keyword, r, err := resolvePeriod(periodKeyword, s.now())
	if err != nil {
		return nil, err
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	mrr, count, err := s.mrrAt(ctx, uow, r.End)
	if err != nil {
		return nil, err
	}
	return &dto.MRRResponse{
		Period:              keyword,
		Start:               r.Start,
		End:                 r.End,
		MRR:                 mrr,
		ARR:                 mrr.Mul(decimal.NewFromInt(12)),
		ActiveSubscriptions: count,
	}, nil
}

// mrrAt sums the monthly price of every paying subscription that had started
// and was not yet cancelled at the given instant.
func (s *billingService) mrrAt(ctx context.Context, uow unitofwork.UnitOfWork, at time.Time) (decimal.Decimal, int64, error) {
	subs, err := uow.SubscriptionRepository().FindAll(ctx,
		specification.StartedOnOrBefore{At: at},
		specification.NotCancelledBy{At: at},
		specification.StatusNotIn{Statuses: specification.Statuses(entity.SubscriptionStatusTrial)},
	)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if len(subs) == 0 {
		return decimal.Zero, 0, nil
	}

	planIds := make([]uuid.UUID, 0, len(subs))
	seen := map[uuid.UUID]bool{}
	for _, sub := range subs {
		if !seen[sub.PlanId] {
			seen[sub.PlanId] = true
			planIds = append(planIds, sub.PlanId)
		}
	}
	plans, err := uow.PlanRepository().FindAll(ctx, specification.ByIDs{IDs: planIds})
	if err != nil {
		return decimal.Zero, 0, err
	}
	byId := make(map[uuid.UUID]*entity.Plan, len(plans))
	for _, p := range plans {
		byId[p.Id] = p
	}

	total := decimal.Zero
	for _, sub := range subs {
		if plan, ok := byId[sub.PlanId]; ok {
			total = total.Add(plan.MonthlyPrice())
		}
	}
	return money.Round(total, s.cfg.DefaultCurrency), int64(len(subs)), nil
}

func (s *billingService) GetChurnRate(ctx context.Context, periodKeyword string) (*dto.ChurnResponse, error) {
	keyword, r, err := resolvePeriod(periodKeyword, s.now())
	if err != nil {
		return nil, err
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	rate, cancelled, starting, err := s.churn(ctx, uow, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return &dto.ChurnResponse{
		Period:             keyword,
		Start:              r.Start,
		End:                r.End,
		ChurnRate:          rate,
		CancelledCount:     cancelled,
		StartingSubscribed: starting,
	}, nil
}

// churn is cancellations in the window over subscriptions live at its start, in percent.
func (s *billingService) churn(ctx context.Context, uow unitofwork.UnitOfWork, start, end time.Time) (decimal.Decimal, int64, int64, error) {
	starting, err := uow.SubscriptionRepository().Count(ctx,
		specification.StartedOnOrBefore{At: start},
		specification.NotCancelledBy{At: start},
	)
	if err != nil {
		return decimal.Zero, 0, 0, err
	}
	cancelled, err := uow.SubscriptionRepository().Count(ctx,
		specification.CancelledBetween{Start: start, End: end},
	)
	if err != nil {
		return decimal.Zero, 0, 0, err
	}
	if starting == 0 {
		return decimal.Zero, cancelled, starting, nil
	}
	rate := decimal.NewFromInt(cancelled).Div(decimal.NewFromInt(starting)).Mul(decimal.NewFromInt(100)).Round(2)
	return rate, cancelled, starting, nil
}

func (s *billingService) GetARPU(ctx context.Context, periodKeyword string) (*dto.ARPUResponse, error) {
	keyword, r, err := resolvePeriod(periodKeyword, s.now())
	if err != nil {
		return nil, err
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	arpu, revenue, tenants, err := s.arpu(ctx, uow, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return &dto.ARPUResponse{
		Period:        keyword,
		Start:         r.Start,
		End:           r.End,
		ARPU:          arpu,
		Revenue:       revenue,
		PayingTenants: tenants,
	}, nil
}

// arpu divides collected revenue by the number of tenants that paid. Credit
// notes are stored paid with negative totals, so refunds net out.
func (s *billingService) arpu(ctx context.Context, uow unitofwork.UnitOfWork, start, end time.Time) (decimal.Decimal, decimal.Decimal, int64, error) {
	paid := specification.StatusIn{Statuses: specification.Statuses(entity.InvoiceStatusPaid, entity.InvoiceStatusRefunded)}
	window := specification.PaidBetween{Start: start, End: end}

	revenue, err := uow.InvoiceRepository().SumTotal(ctx, paid, window)
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, err
	}
	tenants, err := uow.InvoiceRepository().CountDistinctTenants(ctx, paid, window)
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, err
	}
	revenue = money.Round(revenue, s.cfg.DefaultCurrency)
	if tenants == 0 {
		return decimal.Zero, revenue, 0, nil
	}
	return revenue.Div(decimal.NewFromInt(tenants)).Round(2), revenue, tenants, nil
}

func (s *billingService) GetBillingAnalytics(ctx context.Context, periodKeyword string) (*dto.BillingAnalyticsResponse, error) {
	keyword, r, err := resolvePeriod(periodKeyword, s.now())
	if err != nil {
		return nil, err
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)

	mrr, _, err := s.mrrAt(ctx, uow, r.End)
	if err != nil {
		return nil, err
	}
	churnRate, cancelled, _, err := s.churn(ctx, uow, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	arpu, revenue, _, err := s.arpu(ctx, uow, r.Start, r.End)
	if err != nil {
		return nil, err
	}

	invoices := uow.InvoiceRepository()
	outstanding, err := invoices.SumTotal(ctx, specification.StatusIn{Statuses: specification.Statuses(entity.PayableInvoiceStatuses...)})
	if err != nil {
		return nil, err
	}
	paidCount, err := invoices.Count(ctx,
		specification.StatusIn{Statuses: specification.Statuses(entity.InvoiceStatusPaid)},
		specification.PaidBetween{Start: r.Start, End: r.End},
	)
	if err != nil {
		return nil, err
	}
	overdueCount, err := invoices.Count(ctx, specification.StatusIn{Statuses: specification.Statuses(entity.InvoiceStatusOverdue)})
	if err != nil {
		return nil, err
	}

	subs := uow.SubscriptionRepository()
	countStatus := func(st entity.SubscriptionStatus) (int64, error) {
		return subs.Count(ctx, specification.StatusIn{Statuses: specification.Statuses(st)})
	}
	active, err := countStatus(entity.SubscriptionStatusActive)
	if err != nil {
		return nil, err
	}
	trial, err := countStatus(entity.SubscriptionStatusTrial)
	if err != nil {
		return nil, err
	}
	pastDue, err := countStatus(entity.SubscriptionStatusPastDue)
	if err != nil {
		return nil, err
	}
	created, err := subs.Count(ctx, specification.CreatedBetween{Start: r.Start, End: r.End})
	if err != nil {
		return nil, err
	}

	return &dto.BillingAnalyticsResponse{
		Period:                 keyword,
		Start:                  r.Start,
		End:                    r.End,
		MRR:                    mrr,
		ARR:                    mrr.Mul(decimal.NewFromInt(12)),
		ChurnRate:              churnRate,
		ARPU:                   arpu,
		Revenue:                revenue,
		OutstandingAmount:      money.Round(outstanding, s.cfg.DefaultCurrency),
		PaidInvoices:           paidCount,
		OverdueInvoices:        overdueCount,
		ActiveSubscriptions:    active,
		TrialSubscriptions:     trial,
		PastDueSubscriptions:   pastDue,
		NewSubscriptions:       created,
		CancelledSubscriptions: cancelled,
	}, nil
}

func loadSubscriptionWithPlan(ctx context.Context, uow unitofwork.UnitOfWork, subscriptionId uuid.UUID) (*entity.Subscription, *entity.Plan, error) {
	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: subscriptionId})
	if err != nil {
		return nil, nil, err
	}
	if sub == nil {
		return nil, nil, ErrSubscriptionNotFound
	}
	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: sub.PlanId})
	if err != nil {
		return nil, nil, err
	}
	if plan == nil {
		return nil, nil, ErrPlanNotFound
	}
	return sub, plan, nil
}

// invoiceCycle issues the invoice of a freshly opened cycle. A zero-total
// cycle has nothing to collect, so its invoice is settled as soon as it is
// issued and the cycle is paid with it.
func invoiceCycle(ctx context.Context, uow unitofwork.UnitOfWork, generator *invoicing.Generator, sub *entity.Subscription, plan *entity.Plan, cycle *entity.BillingCycle, customer invoicing.Customer, now time.Time) (*entity.Invoice, bool, error) {
	invoice, created, err := generator.FromBillingCycle(ctx, uow, sub, plan, cycle, customer, now)
	if err != nil {
		return nil, false, err
	}
	if !cycle.TotalAmount.IsZero() || invoice.Status == entity.InvoiceStatusPaid {
		return invoice, created, nil
	}
	if _, err := generator.MarkPaid(ctx, uow, invoice, invoicing.Payment{Method: "none", PaidAt: now}); err != nil {
		return nil, false, err
	}
	cycle.Status = entity.BillingCycleStatusPaid
	cycle.ProcessedAt = &now
	return invoice, created, nil
}

type runSummary struct {
	dto.BillingRunSummary
	started time.Time
}

func newRunSummary(job string, now time.Time) *runSummary {
	return &runSummary{
		BillingRunSummary: dto.BillingRunSummary{
			Job:       job,
			StartedAt: now,
			Results:   []dto.BillingRunResult{},
		},
		started: time.Now(),
	}
}

func (r *runSummary) add(result dto.BillingRunResult) {
	r.Processed++
	if result.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Results = append(r.Results, result)
}

func (s *billingService) finishRun(r *runSummary) {
	r.Duration = time.Since(r.started).String()
	outcome := "success"
	if r.Failed > 0 {
		outcome = "partial"
	}
	s.metrics.JobRunsTotal.WithLabelValues(r.Job, outcome).Inc()
	s.logger.Info("BILLING", "Billing job finished", map[string]interface{}{
		"job":       r.Job,
		"processed": r.Processed,
		"succeeded": r.Succeeded,
		"failed":    r.Failed,
		"duration":  r.Duration,
	})
}

func resultLabel(result dto.BillingRunResult) string {
	if !result.Success {
		return "failed"
	}
	return result.Action
}
