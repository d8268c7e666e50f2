package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string
type InvoiceItemType string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusRefunded  InvoiceStatus = "refunded"

	InvoiceItemSubscription InvoiceItemType = "subscription"
	InvoiceItemOverage      InvoiceItemType = "overage"
	InvoiceItemTax          InvoiceItemType = "tax"
	InvoiceItemDiscount     InvoiceItemType = "discount"
	InvoiceItemCredit       InvoiceItemType = "credit"
)

// Voiding is draft -> cancelled. Issued invoices are cancelled by dunning or
// by an administrative status change.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:   {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:    {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue: {InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusPaid:    {InvoiceStatusRefunded},
}

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled, InvoiceStatusRefunded:
		return true
	}
	return false
}

// PayableInvoiceStatuses are the statuses a payment can be taken against.
var PayableInvoiceStatuses = []InvoiceStatus{InvoiceStatusSent, InvoiceStatusOverdue}

type Invoice struct {
	Id                uuid.UUID
	TenantId          uuid.UUID
	SubscriptionId    *uuid.UUID
	BillingCycleId    *uuid.UUID
	OriginalInvoiceId *uuid.UUID
	InvoiceNumber     string
	IdempotencyKey    *string
	Status            InvoiceStatus
	IssuedDate        time.Time
	DueDate           time.Time
	PaidDate          *time.Time
	Subtotal          decimal.Decimal
	TaxAmount         decimal.Decimal
	DiscountAmount    decimal.Decimal
	TotalAmount       decimal.Decimal
	Currency          string
	PaymentProvider   string
	PaymentMethod     string
	ExternalId        string
	CustomerName      string
	CustomerEmail     string
	CustomerAddress   string
	Notes             string
	Metadata          map[string]interface{}
	Items             []InvoiceItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type InvoiceItem struct {
	Id          uuid.UUID
	InvoiceId   uuid.UUID
	Type        InvoiceItemType
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	SortOrder   int
}

func (i *Invoice) CanTransitionTo(next InvoiceStatus) error {
	return checkTransition("invoice", invoiceTransitions, i.Status, next)
}

func (i *Invoice) TransitionTo(next InvoiceStatus) error {
	if err := i.CanTransitionTo(next); err != nil {
		return err
	}
	i.Status = next
	return nil
}

func (i *Invoice) IsCreditNote() bool {
	return i.OriginalInvoiceId != nil
}

// RecalculateTotals derives subtotal, tax, discount and total from the items.
// Discount lines hold positive amounts and are subtracted; credit lines
// already carry negative amounts and count towards the subtotal.
func (i *Invoice) RecalculateTotals() {
	subtotal := decimal.Zero
	tax := decimal.Zero
	discount := decimal.Zero
	for _, item := range i.Items {
		switch item.Type {
		case InvoiceItemTax:
			tax = tax.Add(item.Amount)
		case InvoiceItemDiscount:
			discount = discount.Add(item.Amount.Abs())
		default:
			subtotal = subtotal.Add(item.Amount)
		}
	}
	i.Subtotal = subtotal
	i.TaxAmount = tax
	i.DiscountAmount = discount
	i.TotalAmount = subtotal.Add(tax).Sub(discount)
}

func (i *Invoice) DaysOverdue(now time.Time) int {
	if !now.After(i.DueDate) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}
