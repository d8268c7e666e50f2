// Package lifecycle holds the subscription and billing cycle mutations shared
// by the billing run and the subscription API. Every function runs inside
// the caller's unit of work.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Manager struct {
	logger           logger.ILogger
	paymentTermsDays int
}

func NewManager(logger logger.ILogger, paymentTermsDays int) *Manager {
	return &Manager{
		logger:           logger,
		paymentTermsDays: paymentTermsDays,
	}
}

type CycleParams struct {
	Kind           entity.BillingCycleKind
	PeriodStart    time.Time
	PeriodEnd      time.Time
	BaseAmount     decimal.Decimal
	OverageAmount  decimal.Decimal
	DiscountAmount decimal.Decimal
	// Zero means now + payment terms.
	DueDate        time.Time
	IdempotencyKey string
}

func CycleKey(subscriptionId uuid.UUID, periodStart time.Time) string {
	return fmt.Sprintf("cycle:%s:%s", subscriptionId, periodStart.UTC().Format(time.RFC3339))
}

func ProrationKey(subscriptionId uuid.UUID, at time.Time) string {
	return fmt.Sprintf("proration:%s:%d", subscriptionId, at.Unix())
}

// OpenCycle inserts a pending cycle, or returns the existing one when a cycle
// with the same idempotency key was already opened. Tax is the plan's rate
// applied to base + overage - discount.
func (m *Manager) OpenCycle(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, plan *entity.Plan, p CycleParams, now time.Time) (*entity.BillingCycle, bool, error) {
	if p.Kind == "" {
		p.Kind = entity.BillingCycleKindRegular
	}
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = CycleKey(sub.Id, p.PeriodStart)
	}

	existing, err := uow.BillingCycleRepository().FindOne(ctx, specification.ByIdempotencyKey{Key: p.IdempotencyKey})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	dueDate := p.DueDate
	if dueDate.IsZero() {
		dueDate = now.AddDate(0, 0, m.paymentTermsDays)
	}

	taxable := p.BaseAmount.Add(p.OverageAmount).Sub(p.DiscountAmount)
	tax := decimal.Zero
	if taxable.IsPositive() && plan.TaxRate.IsPositive() {
		tax = money.Round(taxable.Mul(plan.TaxRate), plan.Currency)
	}

	cycle := &entity.BillingCycle{
		Id:             uuid.New(),
		SubscriptionId: sub.Id,
		Kind:           p.Kind,
		PeriodStart:    p.PeriodStart,
		PeriodEnd:      p.PeriodEnd,
		BaseAmount:     money.Round(p.BaseAmount, plan.Currency),
		OverageAmount:  money.Round(p.OverageAmount, plan.Currency),
		TaxAmount:      tax,
		DiscountAmount: money.Round(p.DiscountAmount, plan.Currency),
		Currency:       plan.Currency,
		DueDate:        dueDate,
		Status:         entity.BillingCycleStatusPending,
		IdempotencyKey: p.IdempotencyKey,
	}
	cycle.RecalculateTotal()

	if err := uow.BillingCycleRepository().Create(ctx, cycle); err != nil {
		return nil, false, err
	}

	m.logger.Info("BILLING", "Billing cycle opened", map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"cycle_id":        cycle.Id.String(),
		"kind":            string(cycle.Kind),
		"total":           cycle.TotalAmount.String(),
	})
	return cycle, true, nil
}

// AdvancePeriod moves the subscription to the next fixed-length period.
func AdvancePeriod(sub *entity.Subscription, plan *entity.Plan) {
	start := sub.CurrentPeriodEnd
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = start.AddDate(0, 0, plan.BillingInterval.PeriodDays())
}

// ActivateEndedTrial moves a trial whose end has passed to active.
func ActivateEndedTrial(sub *entity.Subscription, now time.Time) (bool, error) {
	if sub.Status != entity.SubscriptionStatusTrial {
		return false, nil
	}
	if sub.TrialEndsAt != nil && sub.TrialEndsAt.After(now) {
		return false, nil
	}
	if err := sub.TransitionTo(entity.SubscriptionStatusActive); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyPendingPlanChange swaps in a deferred downgrade once its date has been
// reached. A pending plan that no longer exists or was deactivated is dropped.
func (m *Manager) ApplyPendingPlanChange(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, now time.Time) (*entity.Plan, bool, error) {
	if !sub.HasPendingPlanChange(now) {
		return nil, false, nil
	}

	pendingId := *sub.PendingPlanId
	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: pendingId})
	if err != nil {
		return nil, false, err
	}

	sub.ClearPendingPlanChange()
	if plan == nil || !plan.IsActive {
		m.logger.Warn("SUBSCRIPTION", "Pending plan no longer available, change dropped", map[string]interface{}{
			"subscription_id": sub.Id.String(),
			"pending_plan_id": pendingId.String(),
		})
		return nil, false, nil
	}

	oldPlanId := sub.PlanId
	sub.PlanId = plan.Id
	m.logger.Info("SUBSCRIPTION", "Deferred plan change applied", map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"from_plan_id":    oldPlanId.String(),
		"to_plan_id":      plan.Id.String(),
	})
	return plan, true, nil
}

// CancelUnsettledCycles cancels the subscription's pending and processing
// cycles and returns them.
func (m *Manager) CancelUnsettledCycles(ctx context.Context, uow unitofwork.UnitOfWork, subscriptionId uuid.UUID) ([]*entity.BillingCycle, error) {
	cycles, err := uow.BillingCycleRepository().FindAll(ctx,
		specification.BySubscriptionID{SubscriptionID: subscriptionId},
		specification.StatusIn{Statuses: specification.Statuses(
			entity.BillingCycleStatusPending,
			entity.BillingCycleStatusProcessing,
		)},
	)
	if err != nil {
		return nil, err
	}

	for _, cycle := range cycles {
		if err := cycle.TransitionTo(entity.BillingCycleStatusCancelled); err != nil {
			return nil, err
		}
		if err := uow.BillingCycleRepository().Update(ctx, cycle); err != nil {
			return nil, err
		}
	}
	return cycles, nil
}

// Cancel ends a subscription now.
func Cancel(sub *entity.Subscription, reason string, at time.Time) error {
	if err := sub.TransitionTo(entity.SubscriptionStatusCancelled); err != nil {
		return err
	}
	sub.CancelledAt = &at
	sub.CancelAtPeriodEnd = false
	sub.ClearPendingPlanChange()
	if reason != "" {
		sub.CancellationReason = reason
	}
	return nil
}

// Suspend moves an active subscription to past_due after a missed payment.
func Suspend(sub *entity.Subscription) (bool, error) {
	if sub.Status != entity.SubscriptionStatusActive && sub.Status != entity.SubscriptionStatusTrial {
		return false, nil
	}
	if err := sub.TransitionTo(entity.SubscriptionStatusPastDue); err != nil {
		return false, err
	}
	return true, nil
}

// ReinstateAfterPayment returns a past_due subscription to active once none
// of its cycles are overdue any more.
func (m *Manager) ReinstateAfterPayment(ctx context.Context, uow unitofwork.UnitOfWork, subscriptionId uuid.UUID) (*entity.Subscription, bool, error) {
	sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: subscriptionId})
	if err != nil || sub == nil {
		return nil, false, err
	}
	if sub.Status != entity.SubscriptionStatusPastDue {
		return sub, false, nil
	}

	overdue, err := uow.BillingCycleRepository().FindAll(ctx,
		specification.BySubscriptionID{SubscriptionID: subscriptionId},
		specification.StatusIn{Statuses: specification.Statuses(entity.BillingCycleStatusOverdue)},
	)
	if err != nil {
		return nil, false, err
	}
	if len(overdue) > 0 {
		return sub, false, nil
	}

	if err := sub.TransitionTo(entity.SubscriptionStatusActive); err != nil {
		return nil, false, err
	}
	if err := uow.SubscriptionRepository().Update(ctx, sub); err != nil {
		return nil, false, err
	}
	m.logger.Info("SUBSCRIPTION", "Subscription reinstated after payment", map[string]interface{}{
		"subscription_id": sub.Id.String(),
	})
	return sub, true, nil
}
