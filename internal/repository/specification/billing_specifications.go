package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByTenantID struct {
	TenantID uuid.UUID
}

func (s ByTenantID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("tenant_id = ?", s.TenantID)
}

type ByPlanID struct {
	PlanID uuid.UUID
}

func (s ByPlanID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("plan_id = ?", s.PlanID)
}

type BySubscriptionID struct {
	SubscriptionID uuid.UUID
}

func (s BySubscriptionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("subscription_id = ?", s.SubscriptionID)
}

type ByBillingCycleID struct {
	BillingCycleID uuid.UUID
}

func (s ByBillingCycleID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("billing_cycle_id = ?", s.BillingCycleID)
}

type ByInvoiceID struct {
	InvoiceID uuid.UUID
}

func (s ByInvoiceID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("invoice_id = ?", s.InvoiceID)
}

type ByOriginalInvoiceID struct {
	InvoiceID uuid.UUID
}

func (s ByOriginalInvoiceID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("original_invoice_id = ?", s.InvoiceID)
}

type ByIdempotencyKey struct {
	Key string
}

func (s ByIdempotencyKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("idempotency_key = ?", s.Key)
}

type ByProviderTransactionID struct {
	ProviderTransactionID string
}

func (s ByProviderTransactionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("provider_transaction_id = ?", s.ProviderTransactionID)
}

type ByMetricName struct {
	MetricName string
}

func (s ByMetricName) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("metric_name = ?", s.MetricName)
}

// StatusIn filters on the status column; an empty list matches nothing.
type StatusIn struct {
	Statuses []string
}

func (s StatusIn) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status IN ?", s.Statuses)
}

type StatusNotIn struct {
	Statuses []string
}

func (s StatusNotIn) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status NOT IN ?", s.Statuses)
}

// Statuses converts typed status constants for StatusIn/StatusNotIn.
func Statuses[S ~string](values ...S) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

type ActivePlans struct{}

func (s ActivePlans) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}

type PeriodEndedBefore struct {
	At time.Time
}

func (s PeriodEndedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("current_period_end < ?", s.At)
}

type DueBefore struct {
	At time.Time
}

func (s DueBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("due_date < ?", s.At)
}

type DueOnOrBefore struct {
	At time.Time
}

func (s DueOnOrBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("due_date <= ?", s.At)
}

type CreatedBetween struct {
	Start time.Time
	End   time.Time
}

func (s CreatedBetween) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at >= ? AND created_at <= ?", s.Start, s.End)
}

type IssuedBetween struct {
	Start time.Time
	End   time.Time
}

func (s IssuedBetween) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("issued_date >= ? AND issued_date <= ?", s.Start, s.End)
}

type PaidBetween struct {
	Start time.Time
	End   time.Time
}

func (s PaidBetween) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("paid_date >= ? AND paid_date <= ?", s.Start, s.End)
}

type UsagePeriodBetween struct {
	Start time.Time
	End   time.Time
}

func (s UsagePeriodBetween) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("period_start >= ? AND period_start <= ?", s.Start, s.End)
}

// UsageInPeriod matches rows whose period starts in [Start, End). Billing
// periods share their boundary instant, so the end is excluded.
type UsageInPeriod struct {
	Start time.Time
	End   time.Time
}

func (s UsageInPeriod) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("period_start >= ? AND period_start < ?", s.Start, s.End)
}

type BillableOverage struct {
	Billable bool
}

func (s BillableOverage) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_billable_overage = ?", s.Billable)
}

type PlanChangeDue struct {
	At time.Time
}

func (s PlanChangeDue) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("pending_plan_id IS NOT NULL AND plan_change_date <= ?", s.At)
}

type StartedOnOrBefore struct {
	At time.Time
}

func (s StartedOnOrBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("started_at <= ?", s.At)
}

type CancelledBetween struct {
	Start time.Time
	End   time.Time
}

func (s CancelledBetween) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("cancelled_at >= ? AND cancelled_at <= ?", s.Start, s.End)
}

// NotCancelledBy keeps rows that were not cancelled, or were cancelled after At.
type NotCancelledBy struct {
	At time.Time
}

func (s NotCancelledBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("cancelled_at IS NULL OR cancelled_at > ?", s.At)
}

type ByPaymentMethodID struct {
	PaymentMethodID uuid.UUID
}

func (s ByPaymentMethodID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("payment_method_id = ?", s.PaymentMethodID)
}
