package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateSubscriptionRequest struct {
	PlanId          uuid.UUID  `json:"plan_id" validate:"required"`
	WithTrial       bool       `json:"with_trial"`
	TrialDays       *int       `json:"trial_days,omitempty" validate:"omitempty,gte=1,lte=365"`
	PaymentMethodId *uuid.UUID `json:"payment_method_id,omitempty"`
	CustomerName    string     `json:"customer_name"`
	CustomerEmail   string     `json:"customer_email" validate:"omitempty,email"`
}

type UpdateSubscriptionPlanRequest struct {
	PlanId    uuid.UUID `json:"plan_id" validate:"required"`
	Immediate bool      `json:"immediate"`
	Prorate   *bool     `json:"prorate,omitempty"` // defaults to true
}

type CancelSubscriptionRequest struct {
	AtPeriodEnd bool   `json:"at_period_end"`
	Reason      string `json:"reason" validate:"max=500"`
}

type ListSubscriptionsRequest struct {
	Status   string    `query:"status" validate:"omitempty,oneof=trial active past_due cancelled"`
	PlanId   uuid.UUID `query:"-"` // parsed by the controller
	Page     int       `query:"page"`
	PageSize int       `query:"page_size"`
}

type SubscriptionResponse struct {
	Id                 uuid.UUID     `json:"id"`
	TenantId           uuid.UUID     `json:"tenant_id"`
	PlanId             uuid.UUID     `json:"plan_id"`
	Plan               *PlanResponse `json:"plan,omitempty"`
	Status             string        `json:"status"`
	TrialEndsAt        *time.Time    `json:"trial_ends_at,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	CurrentPeriodStart time.Time     `json:"current_period_start"`
	CurrentPeriodEnd   time.Time     `json:"current_period_end"`
	CancelAtPeriodEnd  bool          `json:"cancel_at_period_end"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	PendingPlanId      *uuid.UUID    `json:"pending_plan_id,omitempty"`
	PlanChangeDate     *time.Time    `json:"plan_change_date,omitempty"`
	PaymentMethodId    *uuid.UUID    `json:"payment_method_id,omitempty"`
}

// PlanChangeResponse reports which policy applied to a plan change.
type PlanChangeResponse struct {
	Subscription   *SubscriptionResponse `json:"subscription"`
	Change         string                `json:"change"` // upgrade | downgrade | swap
	Applied        bool                  `json:"applied"`
	ProratedAmount decimal.Decimal       `json:"prorated_amount"`
	BillingCycle   *BillingCycleResponse `json:"billing_cycle,omitempty"`
	Invoice        *InvoiceResponse      `json:"invoice,omitempty"`
}

type CreateSubscriptionResponse struct {
	Subscription *SubscriptionResponse `json:"subscription"`
	BillingCycle *BillingCycleResponse `json:"billing_cycle,omitempty"`
	Invoice      *InvoiceResponse      `json:"invoice,omitempty"`
}

type SubscriptionHealthResponse struct {
	SubscriptionId uuid.UUID `json:"subscription_id"`
	Score          int       `json:"score"`
	Status         string    `json:"status"` // healthy | warning | critical
	Factors        []string  `json:"factors"`
}

type SubscriptionListResponse struct {
	Subscriptions []*SubscriptionResponse `json:"subscriptions"`
	Total         int64                   `json:"total"`
	Page          int                     `json:"page"`
	PageSize      int                     `json:"page_size"`
}
