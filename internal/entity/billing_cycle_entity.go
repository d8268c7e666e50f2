package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillingCycleStatus string
type BillingCycleKind string

const (
	BillingCycleStatusPending    BillingCycleStatus = "pending"
	BillingCycleStatusProcessing BillingCycleStatus = "processing"
	BillingCycleStatusPaid       BillingCycleStatus = "paid"
	BillingCycleStatusOverdue    BillingCycleStatus = "overdue"
	BillingCycleStatusCancelled  BillingCycleStatus = "cancelled"

	BillingCycleKindInitial          BillingCycleKind = "initial"
	BillingCycleKindRegular          BillingCycleKind = "regular"
	BillingCycleKindUpgradeProration BillingCycleKind = "upgrade_proration"
)

var billingCycleTransitions = map[BillingCycleStatus][]BillingCycleStatus{
	BillingCycleStatusPending:    {BillingCycleStatusProcessing, BillingCycleStatusPaid, BillingCycleStatusOverdue, BillingCycleStatusCancelled},
	BillingCycleStatusProcessing: {BillingCycleStatusPending, BillingCycleStatusPaid, BillingCycleStatusOverdue, BillingCycleStatusCancelled},
	BillingCycleStatusOverdue:    {BillingCycleStatusProcessing, BillingCycleStatusPaid, BillingCycleStatusCancelled},
}

// UnsettledCycleStatuses are cycles that still expect a payment.
var UnsettledCycleStatuses = []BillingCycleStatus{
	BillingCycleStatusPending,
	BillingCycleStatusProcessing,
	BillingCycleStatusOverdue,
}

type BillingCycle struct {
	Id             uuid.UUID
	SubscriptionId uuid.UUID
	Kind           BillingCycleKind
	PeriodStart    time.Time
	PeriodEnd      time.Time
	BaseAmount     decimal.Decimal
	OverageAmount  decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	Currency       string
	DueDate        time.Time
	Status         BillingCycleStatus
	IdempotencyKey string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CycleTotal is base + overage + tax - discount.
func CycleTotal(base, overage, tax, discount decimal.Decimal) decimal.Decimal {
	return base.Add(overage).Add(tax).Sub(discount)
}

func (c *BillingCycle) RecalculateTotal() {
	c.TotalAmount = CycleTotal(c.BaseAmount, c.OverageAmount, c.TaxAmount, c.DiscountAmount)
}

func (c *BillingCycle) CanTransitionTo(next BillingCycleStatus) error {
	return checkTransition("billing cycle", billingCycleTransitions, c.Status, next)
}

func (c *BillingCycle) TransitionTo(next BillingCycleStatus) error {
	if err := c.CanTransitionTo(next); err != nil {
		return err
	}
	c.Status = next
	return nil
}

func (c *BillingCycle) IsSettled() bool {
	return c.Status == BillingCycleStatusPaid || c.Status == BillingCycleStatusCancelled
}
