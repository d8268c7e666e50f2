package service

import (
	"context"
	"fmt"
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
	"hq-billing-be/pkg/billing/proration"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PlanChangeUpgrade   = "upgrade"
	PlanChangeDowngrade = "downgrade"
	PlanChangeSwap      = "swap"
)

type ISubscriptionService interface {
	CreateSubscription(ctx context.Context, tenantId uuid.UUID, req *dto.CreateSubscriptionRequest) (*dto.CreateSubscriptionResponse, error)
	GetSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.SubscriptionResponse, error)
	GetTenantSubscription(ctx context.Context, tenantId uuid.UUID) (*dto.SubscriptionResponse, error)
	ListSubscriptions(ctx context.Context, req *dto.ListSubscriptionsRequest) (*dto.SubscriptionListResponse, error)
	UpdateSubscriptionPlan(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID, req *dto.UpdateSubscriptionPlanRequest) (*dto.PlanChangeResponse, error)
	CancelSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	PauseSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.SubscriptionResponse, error)
	ResumeSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.SubscriptionResponse, error)
	ReactivateSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.CreateSubscriptionResponse, error)
	CalculateSubscriptionHealth(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.SubscriptionHealthResponse, error)
	ApplyPendingPlanChanges(ctx context.Context) (*dto.BillingRunSummary, error)
}

type subscriptionService struct {
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

func NewSubscriptionService(
	uowFactory unitofwork.RepositoryFactory,
	lifecycleManager *lifecycle.Manager,
	generator *invoicing.Generator,
	meter *metering.Meter,
	lock locker.Locker,
	publisher events.Publisher,
	billingMetrics *metrics.BillingMetrics,
	logger logger.ILogger,
	cfg config.BillingConfig,
) ISubscriptionService {
	return &subscriptionService{
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

// loadScoped loads a subscription and its plan, hiding subscriptions of
// other tenants behind not found.
func loadScoped(ctx context.Context, uow unitofwork.UnitOfWork, tenantId *uuid.UUID, id uuid.UUID) (*entity.Subscription, *entity.Plan, error) {
	sub, plan, err := loadSubscriptionWithPlan(ctx, uow, id)
	if err != nil {
		return nil, nil, err
	}
	if tenantId != nil && sub.TenantId != *tenantId {
		return nil, nil, ErrSubscriptionNotFound
	}
	return sub, plan, nil
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, tenantId uuid.UUID, req *dto.CreateSubscriptionRequest) (*dto.CreateSubscriptionResponse, error) {
	var res *dto.CreateSubscriptionResponse
	var invoice *entity.Invoice
	var sub *entity.Subscription

	err := withLock(ctx, s.locker, tenantLockKey(tenantId), s.cfg.LockTTL, func() error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		existing, err := uow.SubscriptionRepository().Count(ctx,
			specification.ByTenantID{TenantID: tenantId},
			specification.StatusIn{Statuses: specification.Statuses(entity.OpenSubscriptionStatuses...)},
		)
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrTenantAlreadySubscribed
		}

		plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: req.PlanId})
		if err != nil {
			return err
		}
		if plan == nil || !plan.IsActive {
			return ErrPlanNotFound
		}

		trialDays := 0
		if req.WithTrial {
			trialDays = plan.TrialDays
			if req.TrialDays != nil {
				trialDays = *req.TrialDays
			}
			if trialDays <= 0 {
				return apperror.Validation("invalid subscription", "plan has no trial period and trial_days is not set")
			}
		}

		methodId, err := s.resolvePaymentMethod(ctx, uow, tenantId, req.PaymentMethodId)
		if err != nil {
			return err
		}

		now := s.now()
		sub = &entity.Subscription{
			Id:                 uuid.New(),
			TenantId:           tenantId,
			PlanId:             plan.Id,
			StartedAt:          now,
			CurrentPeriodStart: now,
			PaymentMethodId:    methodId,
		}
		if trialDays > 0 {
			trialEnd := now.AddDate(0, 0, trialDays)
			sub.Status = entity.SubscriptionStatusTrial
			sub.TrialEndsAt = &trialEnd
			sub.CurrentPeriodEnd = trialEnd
		} else {
			sub.Status = entity.SubscriptionStatusActive
			sub.CurrentPeriodEnd = now.AddDate(0, 0, plan.BillingInterval.PeriodDays())
		}
		if err := uow.SubscriptionRepository().Create(ctx, sub); err != nil {
			return err
		}

		res = &dto.CreateSubscriptionResponse{}
		if sub.Status == entity.SubscriptionStatusActive {
			cycle, inv, err := s.openInitialCycle(ctx, uow, sub, plan, invoicing.Customer{
				Name:  req.CustomerName,
				Email: req.CustomerEmail,
			}, now)
			if err != nil {
				return err
			}
			invoice = inv
			res.BillingCycle = toCycleResponse(cycle)
			if inv != nil {
				res.Invoice = toInvoiceResponse(inv)
			}
		}
		if err := uow.Commit(); err != nil {
			return err
		}
		res.Subscription = toSubscriptionResponse(sub, plan)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SUBSCRIPTION", "Subscription created", map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"tenant_id":       tenantId.String(),
		"plan_id":         sub.PlanId.String(),
		"status":          string(sub.Status),
	})
	s.publisher.SubscriptionChanged(ctx, sub, "created")
	if invoice != nil {
		s.metrics.InvoicesGenerated.Inc()
		s.publisher.InvoiceIssued(ctx, invoice)
	}
	return res, nil
}

// resolvePaymentMethod checks an explicit method belongs to the tenant, or
// falls back to the tenant's default method when there is one.
func (s *subscriptionService) resolvePaymentMethod(ctx context.Context, uow unitofwork.UnitOfWork, tenantId uuid.UUID, requested *uuid.UUID) (*uuid.UUID, error) {
	if requested != nil {
		method, err := uow.PaymentMethodRepository().FindOne(ctx,
			specification.ByID{ID: *requested},
			specification.ByTenantID{TenantID: tenantId},
		)
		if err != nil {
			return nil, err
		}
		if method == nil {
			return nil, ErrPaymentMethodNotFound
		}
		return &method.Id, nil
	}

	method, err := uow.PaymentMethodRepository().FindOne(ctx,
		specification.ByTenantID{TenantID: tenantId},
		specification.FilterBy{Field: "is_default", Value: true},
	)
	if err != nil || method == nil {
		return nil, err
	}
	return &method.Id, nil
}

// openInitialCycle bills the first period in advance.
func (s *subscriptionService) openInitialCycle(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, plan *entity.Plan, customer invoicing.Customer, now time.Time) (*entity.BillingCycle, *entity.Invoice, error) {
	cycle, _, err := s.lifecycle.OpenCycle(ctx, uow, sub, plan, lifecycle.CycleParams{
		Kind:        entity.BillingCycleKindInitial,
		PeriodStart: sub.CurrentPeriodStart,
		PeriodEnd:   sub.CurrentPeriodEnd,
		BaseAmount:  plan.Price,
	}, now)
	if err != nil {
		return nil, nil, err
	}
	if customer.Name == "" && customer.Email == "" {
		if customer, err = invoicing.LastCustomer(ctx, uow, sub.TenantId); err != nil {
			return nil, nil, err
		}
	}
	invoice, _, err := invoiceCycle(ctx, uow, s.generator, sub, plan, cycle, customer, now)
	if err != nil {
		return nil, nil, err
	}
	return cycle, invoice, nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.SubscriptionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sub, plan, err := loadScoped(ctx, uow, tenantId, id)
	if err != nil {
		return nil, err
	}
	return toSubscriptionResponse(sub, plan), nil
}

// GetTenantSubscription returns the tenant's open subscription, or the most
// recent one when none is open.
func (s *subscriptionService) GetTenantSubscription(ctx context.Context, tenantId uuid.UUID) (*dto.SubscriptionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sub, err := uow.SubscriptionRepository().FindOne(ctx,
		specification.ByTenantID{TenantID: tenantId},
		specification.StatusIn{Statuses: specification.Statuses(entity.OpenSubscriptionStatuses...)},
	)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		sub, err = uow.SubscriptionRepository().FindOne(ctx,
			specification.ByTenantID{TenantID: tenantId},
			specification.OrderBy{Field: "created_at", Desc: true},
		)
		if err != nil {
			return nil, err
		}
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: sub.PlanId})
	if err != nil {
		return nil, err
	}
	return toSubscriptionResponse(sub, plan), nil
}

func (s *subscriptionService) ListSubscriptions(ctx context.Context, req *dto.ListSubscriptionsRequest) (*dto.SubscriptionListResponse, error) {
	var filters []specification.Specification
	if req.Status != "" {
		filters = append(filters, specification.StatusIn{Statuses: []string{req.Status}})
	}
	if req.PlanId != uuid.Nil {
		filters = append(filters, specification.ByPlanID{PlanID: req.PlanId})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	total, err := uow.SubscriptionRepository().Count(ctx, filters...)
	if err != nil {
		return nil, err
	}

	page, size, offset := pageSpec(req.Page, req.PageSize)
	subs, err := uow.SubscriptionRepository().FindAll(ctx, append(filters,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: size, Offset: offset},
	)...)
	if err != nil {
		return nil, err
	}

	planIds := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		planIds = append(planIds, sub.PlanId)
	}
	plans := map[uuid.UUID]*entity.Plan{}
	if len(planIds) > 0 {
		found, err := uow.PlanRepository().FindAll(ctx, specification.ByIDs{IDs: planIds})
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			plans[p.Id] = p
		}
	}

	res := &dto.SubscriptionListResponse{
		Subscriptions: make([]*dto.SubscriptionResponse, 0, len(subs)),
		Total:         total,
		Page:          page,
		PageSize:      size,
	}
	for _, sub := range subs {
		res.Subscriptions = append(res.Subscriptions, toSubscriptionResponse(sub, plans[sub.PlanId]))
	}
	return res, nil
}

// UpdateSubscriptionPlan applies one of three policies. An immediate upgrade
// switches now and bills the proration; a downgrade is deferred to the end of
// the period; everything else swaps the plan without charge.
func (s *subscriptionService) UpdateSubscriptionPlan(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID, req *dto.UpdateSubscriptionPlanRequest) (*dto.PlanChangeResponse, error) {
	prorate := req.Prorate == nil || *req.Prorate

	var (
		res     *dto.PlanChangeResponse
		sub     *entity.Subscription
		invoice *entity.Invoice
	)
	err := withLock(ctx, s.locker, subscriptionLockKey(id), s.cfg.LockTTL, func() error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		var (
			current *entity.Plan
			err     error
		)
		sub, current, err = loadScoped(ctx, uow, tenantId, id)
		if err != nil {
			return err
		}
		if !sub.IsOpen() {
			return ErrInvalidSubscriptionState.Wrap(&entity.TransitionError{Entity: "subscription", From: string(sub.Status), To: "plan_change"})
		}

		target, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: req.PlanId})
		if err != nil {
			return err
		}
		if target == nil || !target.IsActive {
			return ErrPlanNotFound
		}

		var v apperror.Collector
		v.Check(target.Id != current.Id, "subscription is already on this plan")
		v.Check(target.Currency == current.Currency, fmt.Sprintf("plan currency %s does not match %s", target.Currency, current.Currency))
		if err := v.Err("invalid plan change"); err != nil {
			return err
		}

		now := s.now()
		res = &dto.PlanChangeResponse{ProratedAmount: decimal.Zero}
		targetPrice, currentPrice := target.MonthlyPrice(), current.MonthlyPrice()
		switch {
		case targetPrice.LessThan(currentPrice):
			res.Change = PlanChangeDowngrade
			changeDate := sub.CurrentPeriodEnd
			sub.PendingPlanId = &target.Id
			sub.PlanChangeDate = &changeDate

		case targetPrice.GreaterThan(currentPrice) && req.Immediate:
			res.Change = PlanChangeUpgrade
			res.Applied = true
			sub.ClearPendingPlanChange()

			// A trial pays nothing for the current period, so there is
			// nothing to prorate.
			charge := decimal.Zero
			if prorate && sub.Status != entity.SubscriptionStatusTrial {
				charge = proration.UpgradeCharge(current.Price, proration.RemainingDays(now, sub.CurrentPeriodEnd), current.Currency)
			}
			sub.PlanId = target.Id

			if charge.IsPositive() {
				cycle, _, err := s.lifecycle.OpenCycle(ctx, uow, sub, target, lifecycle.CycleParams{
					Kind:           entity.BillingCycleKindUpgradeProration,
					PeriodStart:    now,
					PeriodEnd:      sub.CurrentPeriodEnd,
					BaseAmount:     charge,
					IdempotencyKey: lifecycle.ProrationKey(sub.Id, now),
				}, now)
				if err != nil {
					return err
				}
				customer, err := invoicing.LastCustomer(ctx, uow, sub.TenantId)
				if err != nil {
					return err
				}
				if invoice, _, err = invoiceCycle(ctx, uow, s.generator, sub, target, cycle, customer, now); err != nil {
					return err
				}
				res.ProratedAmount = charge
				res.BillingCycle = toCycleResponse(cycle)
				if invoice != nil {
					res.Invoice = toInvoiceResponse(invoice)
				}
			}

		default:
			if targetPrice.GreaterThan(currentPrice) {
				res.Change = PlanChangeUpgrade
			} else {
				res.Change = PlanChangeSwap
			}
			res.Applied = true
			sub.ClearPendingPlanChange()
			sub.PlanId = target.Id
		}

		if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
			return stateError(ErrInvalidSubscriptionState, err)
		}
		if err := uow.Commit(); err != nil {
			return err
		}

		shown := current
		if res.Applied {
			shown = target
		}
		res.Subscription = toSubscriptionResponse(sub, shown)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SUBSCRIPTION", "Plan change requested", map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"to_plan_id":      req.PlanId.String(),
		"change":          res.Change,
		"applied":         res.Applied,
		"prorated":        res.ProratedAmount.String(),
	})
	if res.Applied {
		s.publisher.SubscriptionChanged(ctx, sub, "plan_changed")
	} else {
		s.publisher.SubscriptionChanged(ctx, sub, "plan_change_scheduled")
	}
	if invoice != nil {
		s.metrics.InvoicesGenerated.Inc()
		s.publisher.InvoiceIssued(ctx, invoice)
	}
	return res, nil
}

// CancelSubscription either flags the subscription for cancellation at the
// end of its period or ends it now together with its unsettled cycles.
func (s *subscriptionService) CancelSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	var (
		res    *dto.SubscriptionResponse
		sub    *entity.Subscription
		voided []*entity.Invoice
	)
	err := withLock(ctx, s.locker, subscriptionLockKey(id), s.cfg.LockTTL, func() error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		var (
			plan *entity.Plan
			err  error
		)
		sub, plan, err = loadScoped(ctx, uow, tenantId, id)
		if err != nil {
			return err
		}

		if req.AtPeriodEnd {
			if !sub.IsOpen() {
				return ErrInvalidSubscriptionState.Wrap(&entity.TransitionError{
					Entity: "subscription",
					From:   string(sub.Status),
					To:     string(entity.SubscriptionStatusCancelled),
				})
			}
			sub.CancelAtPeriodEnd = true
			if req.Reason != "" {
				sub.CancellationReason = req.Reason
			}
		} else {
			if err := lifecycle.Cancel(sub, req.Reason, s.now()); err != nil {
				return stateError(ErrInvalidSubscriptionState, err)
			}
			cycles, err := s.lifecycle.CancelUnsettledCycles(ctx, uow, sub.Id)
			if err != nil {
				return err
			}
			for _, cycle := range cycles {
				cancelled, err := s.generator.CancelForCycle(ctx, uow, cycle.Id, "subscription cancelled")
				if err != nil {
					return err
				}
				voided = append(voided, cancelled...)
			}
		}

		if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
			return stateError(ErrInvalidSubscriptionState, err)
		}
		if err := uow.Commit(); err != nil {
			return err
		}
		res = toSubscriptionResponse(sub, plan)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SUBSCRIPTION", "Subscription cancellation", map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"at_period_end":   req.AtPeriodEnd,
		"reason":          req.Reason,
		"voided_invoices": len(voided),
	})
	if req.AtPeriodEnd {
		s.publisher.SubscriptionChanged(ctx, sub, "cancellation_scheduled")
	} else {
		s.publisher.SubscriptionChanged(ctx, sub, "cancelled")
	}
	for _, inv := range voided {
		s.publisher.InvoiceVoided(ctx, inv, "subscription cancelled")
	}
	return res, nil
}

// transition runs a plain status change under the subscription lock.
func (s *subscriptionService) transition(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID, from, to entity.SubscriptionStatus, change string) (*dto.SubscriptionResponse, error) {
	var (
		res *dto.SubscriptionResponse
		sub *entity.Subscription
	)
	err := withLock(ctx, s.locker, subscriptionLockKey(id), s.cfg.LockTTL, func() error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		var (
			plan *entity.Plan
			err  error
		)
		sub, plan, err = loadScoped(ctx, uow, tenantId, id)
		if err != nil {
			return err
		}
		if sub.Status != from {
			return ErrInvalidSubscriptionState.Wrap(&entity.TransitionError{
				Entity: "subscription",
				From:   string(sub.Status),
				To:     string(to),
			})
		}
		if err := sub.TransitionTo(to); err != nil {
			return stateError(ErrInvalidSubscriptionState, err)
		}
		if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
			return stateError(ErrInvalidSubscriptionState, err)
		}
		if err := uow.Commit(); err != nil {
			return err
		}
		res = toSubscriptionResponse(sub, plan)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SUBSCRIPTION", "Subscription status changed", map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"from":            string(from),
		"to":              string(to),
	})
	s.publisher.SubscriptionChanged(ctx, sub, change)
	return res, nil
}

func (s *subscriptionService) PauseSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.SubscriptionResponse, error) {
	return s.transition(ctx, tenantId, id, entity.SubscriptionStatusActive, entity.SubscriptionStatusPastDue, "paused")
}

func (s *subscriptionService) ResumeSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.SubscriptionResponse, error) {
	return s.transition(ctx, tenantId, id, entity.SubscriptionStatusPastDue, entity.SubscriptionStatusActive, "resumed")
}

// ReactivateSubscription brings a cancelled subscription back with a fresh
// period starting now, billed like a new subscription.
func (s *subscriptionService) ReactivateSubscription(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.CreateSubscriptionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	existing, _, err := loadScoped(ctx, uow, tenantId, id)
	if err != nil {
		return nil, err
	}

	var (
		res     *dto.CreateSubscriptionResponse
		sub     *entity.Subscription
		invoice *entity.Invoice
	)
	err = withLock(ctx, s.locker, tenantLockKey(existing.TenantId), s.cfg.LockTTL, func() error {
		return withLock(ctx, s.locker, subscriptionLockKey(id), s.cfg.LockTTL, func() error {
			uow := s.uowFactory.NewUnitOfWork(ctx)
			if err := uow.Begin(ctx); err != nil {
				return err
			}
			defer uow.Rollback()

			var (
				plan *entity.Plan
				err  error
			)
			sub, plan, err = loadScoped(ctx, uow, tenantId, id)
			if err != nil {
				return err
			}
			if sub.Status != entity.SubscriptionStatusCancelled {
				return ErrInvalidSubscriptionState.Wrap(&entity.TransitionError{
					Entity: "subscription",
					From:   string(sub.Status),
					To:     string(entity.SubscriptionStatusActive),
				})
			}
			if !plan.IsActive {
				return apperror.Validation("subscription cannot be reactivated", fmt.Sprintf("plan %s is no longer available", plan.Name))
			}

			open, err := uow.SubscriptionRepository().Count(ctx,
				specification.ByTenantID{TenantID: sub.TenantId},
				specification.StatusIn{Statuses: specification.Statuses(entity.OpenSubscriptionStatuses...)},
			)
			if err != nil {
				return err
			}
			if open > 0 {
				return ErrTenantAlreadySubscribed
			}

			now := s.now()
			if err := sub.TransitionTo(entity.SubscriptionStatusActive); err != nil {
				return stateError(ErrInvalidSubscriptionState, err)
			}
			sub.CancelledAt = nil
			sub.CancellationReason = ""
			sub.CancelAtPeriodEnd = false
			sub.TrialEndsAt = nil
			sub.CurrentPeriodStart = now
			sub.CurrentPeriodEnd = now.AddDate(0, 0, plan.BillingInterval.PeriodDays())

			cycle, inv, err := s.openInitialCycle(ctx, uow, sub, plan, invoicing.Customer{}, now)
			if err != nil {
				return err
			}
			invoice = inv
			if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
				return stateError(ErrInvalidSubscriptionState, err)
			}
			if err := uow.Commit(); err != nil {
				return err
			}

			res = &dto.CreateSubscriptionResponse{
				Subscription: toSubscriptionResponse(sub, plan),
				BillingCycle: toCycleResponse(cycle),
			}
			if inv != nil {
				res.Invoice = toInvoiceResponse(inv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SUBSCRIPTION", "Subscription reactivated", map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"tenant_id":       sub.TenantId.String(),
	})
	s.publisher.SubscriptionChanged(ctx, sub, "reactivated")
	if invoice != nil {
		s.metrics.InvoicesGenerated.Inc()
		s.publisher.InvoiceIssued(ctx, invoice)
	}
	return res, nil
}

const (
	healthPastDuePenalty      = 30
	healthOveragePenalty      = 10
	healthCancellationPenalty = 20
	healthCancellationWindow  = 7 * 24 * time.Hour
)

func (s *subscriptionService) CalculateSubscriptionHealth(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.SubscriptionHealthResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sub, plan, err := loadScoped(ctx, uow, tenantId, id)
	if err != nil {
		return nil, err
	}
	usage, err := s.meter.Check(ctx, uow, sub, plan)
	if err != nil {
		return nil, err
	}
	return SubscriptionHealth(sub, len(usage.Overages), s.now()), nil
}

// SubscriptionHealth scores a subscription from 100 down.
func SubscriptionHealth(sub *entity.Subscription, overages int, now time.Time) *dto.SubscriptionHealthResponse {
	score := 100
	factors := []string{}

	if sub.Status == entity.SubscriptionStatusPastDue {
		score -= healthPastDuePenalty
		factors = append(factors, "subscription is past due")
	}
	if overages > 0 {
		score -= healthOveragePenalty * overages
		factors = append(factors, fmt.Sprintf("%d metric(s) over plan limits", overages))
	}
	if sub.CancelAtPeriodEnd && sub.CurrentPeriodEnd.Sub(now) <= healthCancellationWindow {
		score -= healthCancellationPenalty
		factors = append(factors, "cancellation scheduled within 7 days")
	}
	if score < 0 {
		score = 0
	}

	status := "critical"
	switch {
	case score >= 80:
		status = "healthy"
	case score >= 60:
		status = "warning"
	}
	return &dto.SubscriptionHealthResponse{
		SubscriptionId: sub.Id,
		Score:          score,
		Status:         status,
		Factors:        factors,
	}
}

// ApplyPendingPlanChanges swaps in every deferred downgrade whose date has
// passed. The billing run applies them too when it crosses the boundary
// first.
func (s *subscriptionService) ApplyPendingPlanChanges(ctx context.Context) (*dto.BillingRunSummary, error) {
	now := s.now()
	uow := s.uowFactory.NewUnitOfWork(ctx)
	subs, err := uow.SubscriptionRepository().FindAll(ctx,
		specification.StatusIn{Statuses: specification.Statuses(entity.OpenSubscriptionStatuses...)},
		specification.PlanChangeDue{At: now},
	)
	if err != nil {
		return nil, err
	}

	summary := newRunSummary(JobPlanChanges, now)
	for _, candidate := range subs {
		summary.add(s.applyPendingChange(ctx, candidate.Id, now))
	}
	summary.Duration = time.Since(summary.started).String()
	outcome := "success"
	if summary.Failed > 0 {
		outcome = "partial"
	}
	s.metrics.JobRunsTotal.WithLabelValues(summary.Job, outcome).Inc()

	s.logger.Info("SUBSCRIPTION", "Pending plan changes applied", map[string]interface{}{
		"processed": summary.Processed,
		"failed":    summary.Failed,
	})
	return &summary.BillingRunSummary, nil
}

func (s *subscriptionService) applyPendingChange(ctx context.Context, id uuid.UUID, now time.Time) dto.BillingRunResult {
	result := dto.BillingRunResult{SubscriptionId: id, Action: "skipped"}
	var sub *entity.Subscription

	err := withLock(ctx, s.locker, subscriptionLockKey(id), s.cfg.LockTTL, func() error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		var err error
		sub, err = uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: id})
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}
		if !sub.HasPendingPlanChange(now) {
			return nil
		}

		_, changed, err := s.lifecycle.ApplyPendingPlanChange(ctx, uow, sub, now)
		if err != nil {
			return err
		}
		if changed {
			result.Action = "plan_changed"
		} else {
			result.Action = "dropped"
		}
		if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
			return err
		}
		return uow.Commit()
	})
	if err != nil {
		result.Error = err.Error()
		s.logger.Error("SUBSCRIPTION", "Failed to apply pending plan change", map[string]interface{}{
			"subscription_id": id.String(),
			"error":           err.Error(),
		})
		return result
	}

	result.Success = true
	if result.Action == "plan_changed" {
		s.publisher.SubscriptionChanged(ctx, sub, "plan_changed")
	}
	return result
}
