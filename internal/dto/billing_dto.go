package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillingCycleResponse struct {
	Id             uuid.UUID       `json:"id"`
	SubscriptionId uuid.UUID       `json:"subscription_id"`
	Kind           string          `json:"kind"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	OverageAmount  decimal.Decimal `json:"overage_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	DueDate        time.Time       `json:"due_date"`
	Status         string          `json:"status"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// CreateBillingCycleRequest opens a cycle for an explicit period. Zero
// values fall back to the subscription's current period and plan price.
type CreateBillingCycleRequest struct {
	SubscriptionId uuid.UUID        `json:"subscription_id" validate:"required"`
	PeriodStart    *time.Time       `json:"period_start,omitempty"`
	PeriodEnd      *time.Time       `json:"period_end,omitempty"`
	BaseAmount     *decimal.Decimal `json:"base_amount,omitempty"`
	OverageAmount  *decimal.Decimal `json:"overage_amount,omitempty"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
	DueDate        *time.Time       `json:"due_date,omitempty"`
}

// BillingRunResult is one subscription's outcome in a batch job.
type BillingRunResult struct {
	SubscriptionId uuid.UUID  `json:"subscription_id"`
	Success        bool       `json:"success"`
	Action         string     `json:"action,omitempty"`
	BillingCycleId *uuid.UUID `json:"billing_cycle_id,omitempty"`
	InvoiceId      *uuid.UUID `json:"invoice_id,omitempty"`
	Error          string     `json:"error,omitempty"`
}

type BillingRunSummary struct {
	Job       string             `json:"job"`
	StartedAt time.Time          `json:"started_at"`
	Duration  string             `json:"duration"`
	Processed int                `json:"processed"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []BillingRunResult `json:"results"`
}

type MRRResponse struct {
	Period              string          `json:"period"`
	Start               time.Time       `json:"start"`
	End                 time.Time       `json:"end"`
	MRR                 decimal.Decimal `json:"mrr"`
	ARR                 decimal.Decimal `json:"arr"`
	ActiveSubscriptions int64           `json:"active_subscriptions"`
}

type ChurnResponse struct {
	Period             string          `json:"period"`
	Start              time.Time       `json:"start"`
	End                time.Time       `json:"end"`
	ChurnRate          decimal.Decimal `json:"churn_rate"` // percent
	CancelledCount     int64           `json:"cancelled_count"`
	StartingSubscribed int64           `json:"starting_subscribed"`
}

type ARPUResponse struct {
	Period        string          `json:"period"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	ARPU          decimal.Decimal `json:"arpu"`
	Revenue       decimal.Decimal `json:"revenue"`
	PayingTenants int64           `json:"paying_tenants"`
}

type BillingAnalyticsResponse struct {
	Period                 string          `json:"period"`
	Start                  time.Time       `json:"start"`
	End                    time.Time       `json:"end"`
	MRR                    decimal.Decimal `json:"mrr"`
	ARR                    decimal.Decimal `json:"arr"`
	ChurnRate              decimal.Decimal `json:"churn_rate"`
	ARPU                   decimal.Decimal `json:"arpu"`
	Revenue                decimal.Decimal `json:"revenue"`
	OutstandingAmount      decimal.Decimal `json:"outstanding_amount"`
	PaidInvoices           int64           `json:"paid_invoices"`
	OverdueInvoices        int64           `json:"overdue_invoices"`
	ActiveSubscriptions    int64           `json:"active_subscriptions"`
	TrialSubscriptions     int64           `json:"trial_subscriptions"`
	PastDueSubscriptions   int64           `json:"past_due_subscriptions"`
	NewSubscriptions       int64           `json:"new_subscriptions"`
	CancelledSubscriptions int64           `json:"cancelled_subscriptions"`
}
