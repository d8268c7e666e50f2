// Package invoicing materializes invoices from billing cycles and keeps
// invoice and cycle payment status in sync.
package invoicing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Generator struct {
	logger logger.ILogger
}

func NewGenerator(logger logger.ILogger) *Generator {
	return &Generator{logger: logger}
}

type Customer struct {
	Name    string
	Email   string
	Address string
}

func InvoiceKey(billingCycleId uuid.UUID) string {
	return "invoice:" + billingCycleId.String()
}

// CycleInvoiceNumber is derived from the cycle so that a retried generation
// produces the same number.
func CycleInvoiceNumber(cycle *entity.BillingCycle) string {
	return fmt.Sprintf("INV-%s-%s", cycle.PeriodStart.Format("200601"), shortId(cycle.Id))
}

func ManualInvoiceNumber(invoiceId uuid.UUID, issued time.Time) string {
	return fmt.Sprintf("INV-M-%s-%s", issued.Format("20060102"), shortId(invoiceId))
}

func CreditNoteNumber(original *entity.Invoice, sequence int) string {
	return fmt.Sprintf("CN-%s-%d", original.InvoiceNumber, sequence)
}

func shortId(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

// FromBillingCycle issues the invoice for a cycle. It is idempotent per
// cycle: a second call returns the invoice created by the first.
func (g *Generator) FromBillingCycle(ctx context.Context, uow unitofwork.UnitOfWork, sub *entity.Subscription, plan *entity.Plan, cycle *entity.BillingCycle, customer Customer, now time.Time) (*entity.Invoice, bool, error) {
	key := InvoiceKey(cycle.Id)
	existing, err := uow.InvoiceRepository().FindOne(ctx, specification.ByIdempotencyKey{Key: key})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	subId := sub.Id
	cycleId := cycle.Id
	invoice := &entity.Invoice{
		Id:              uuid.New(),
		TenantId:        sub.TenantId,
		SubscriptionId:  &subId,
		BillingCycleId:  &cycleId,
		InvoiceNumber:   CycleInvoiceNumber(cycle),
		IdempotencyKey:  &key,
		Status:          entity.InvoiceStatusSent,
		IssuedDate:      now,
		DueDate:         cycle.DueDate,
		Currency:        cycle.Currency,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerAddress: customer.Address,
		Items:           cycleItems(plan, cycle),
		Metadata: map[string]interface{}{
			"cycle_kind":   string(cycle.Kind),
			"period_start": cycle.PeriodStart.Format(time.RFC3339),
			"period_end":   cycle.PeriodEnd.Format(time.RFC3339),
		},
	}
	invoice.RecalculateTotals()

	if err := uow.InvoiceRepository().Create(ctx, invoice); err != nil {
		return nil, false, err
	}

	g.logger.Info("INVOICE", "Invoice generated", map[string]interface{}{
		"invoice_id":     invoice.Id.String(),
		"invoice_number": invoice.InvoiceNumber,
		"cycle_id":       cycle.Id.String(),
		"total":          invoice.TotalAmount.String(),
	})
	return invoice, true, nil
}

func cycleItems(plan *entity.Plan, cycle *entity.BillingCycle) []entity.InvoiceItem {
	period := fmt.Sprintf("%s - %s", cycle.PeriodStart.Format("2006-01-02"), cycle.PeriodEnd.Format("2006-01-02"))
	description := fmt.Sprintf("%s plan (%s)", plan.Name, period)
	if cycle.Kind == entity.BillingCycleKindUpgradeProration {
		description = fmt.Sprintf("Upgrade to %s, prorated (%s)", plan.Name, period)
	}

	items := []entity.InvoiceItem{
		line(entity.InvoiceItemSubscription, description, cycle.BaseAmount),
	}
	if cycle.OverageAmount.IsPositive() {
		items = append(items, line(entity.InvoiceItemOverage, "Usage overage", cycle.OverageAmount))
	}
	if cycle.DiscountAmount.IsPositive() {
		items = append(items, line(entity.InvoiceItemDiscount, "Discount", cycle.DiscountAmount))
	}
	if cycle.TaxAmount.IsPositive() {
		items = append(items, line(entity.InvoiceItemTax, fmt.Sprintf("Tax (%s%%)", plan.TaxRate.Mul(decimal.NewFromInt(100)).String()), cycle.TaxAmount))
	}
	for i := range items {
		items[i].SortOrder = i + 1
	}
	return items
}

func line(itemType entity.InvoiceItemType, description string, amount decimal.Decimal) entity.InvoiceItem {
	return entity.InvoiceItem{
		Id:          uuid.New(),
		Type:        itemType,
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   amount,
		Amount:      amount,
	}
}

// ManualItems prices request lines for a manual invoice. Credit lines are
// stored negative.
func ManualItems(items []entity.InvoiceItem, currency string) []entity.InvoiceItem {
	out := make([]entity.InvoiceItem, len(items))
	for i, item := range items {
		qty := item.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		amount := money.Round(qty.Mul(item.UnitPrice), currency)
		if item.Type == entity.InvoiceItemCredit {
			amount = amount.Abs().Neg()
		}
		item.Id = uuid.New()
		item.Quantity = qty
		item.Amount = amount
		item.SortOrder = i + 1
		out[i] = item
	}
	return out
}

type Payment struct {
	Provider   string
	Method     string
	ExternalId string
	PaidAt     time.Time
}

// MarkPaid is the single place where an invoice and its billing cycle are
// flagged paid. Both rows are written through uow, so the caller's
// transaction covers them together. Marking a paid invoice again is a no-op.
func (g *Generator) MarkPaid(ctx context.Context, uow unitofwork.UnitOfWork, invoice *entity.Invoice, payment Payment) (bool, error) {
	if invoice.Status == entity.InvoiceStatusPaid {
		return false, nil
	}
	if err := invoice.TransitionTo(entity.InvoiceStatusPaid); err != nil {
		return false, err
	}

	paidAt := payment.PaidAt
	invoice.PaidDate = &paidAt
	if payment.Provider != "" {
		invoice.PaymentProvider = payment.Provider
	}
	if payment.Method != "" {
		invoice.PaymentMethod = payment.Method
	}
	if payment.ExternalId != "" {
		invoice.ExternalId = payment.ExternalId
	}
	if err := uow.InvoiceRepository().Update(ctx, invoice); err != nil {
		return false, err
	}

	if invoice.BillingCycleId != nil {
		cycle, err := uow.BillingCycleRepository().FindOne(ctx, specification.ByID{ID: *invoice.BillingCycleId})
		if err != nil {
			return false, err
		}
		if cycle != nil && cycle.Status != entity.BillingCycleStatusPaid {
			if err := cycle.TransitionTo(entity.BillingCycleStatusPaid); err != nil {
				return false, err
			}
			cycle.ProcessedAt = &paidAt
			if err := uow.BillingCycleRepository().Update(ctx, cycle); err != nil {
				return false, err
			}
		}
	}

	g.logger.Info("INVOICE", "Invoice marked paid", map[string]interface{}{
		"invoice_id": invoice.Id.String(),
		"provider":   invoice.PaymentProvider,
		"external":   invoice.ExternalId,
	})
	return true, nil
}

// CancelForCycle cancels the open invoices of a cycle. Used when the cycle
// itself is cancelled so both stay consistent.
func (g *Generator) CancelForCycle(ctx context.Context, uow unitofwork.UnitOfWork, cycleId uuid.UUID, reason string) ([]*entity.Invoice, error) {
	invoices, err := uow.InvoiceRepository().FindAll(ctx,
		specification.ByBillingCycleID{BillingCycleID: cycleId},
		specification.StatusIn{Statuses: specification.Statuses(
			entity.InvoiceStatusDraft,
			entity.InvoiceStatusSent,
			entity.InvoiceStatusOverdue,
		)},
	)
	if err != nil {
		return nil, err
	}

	for _, invoice := range invoices {
		if err := invoice.TransitionTo(entity.InvoiceStatusCancelled); err != nil {
			return nil, err
		}
		if reason != "" {
			if invoice.Metadata == nil {
				invoice.Metadata = map[string]interface{}{}
			}
			invoice.Metadata["cancellation_reason"] = reason
		}
		if err := uow.InvoiceRepository().Update(ctx, invoice); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// MarkCycleOverdue flags the cycle and its sent invoices overdue.
func (g *Generator) MarkCycleOverdue(ctx context.Context, uow unitofwork.UnitOfWork, cycle *entity.BillingCycle) error {
	if err := cycle.TransitionTo(entity.BillingCycleStatusOverdue); err != nil {
		return err
	}
	if err := uow.BillingCycleRepository().Update(ctx, cycle); err != nil {
		return err
	}

	invoices, err := uow.InvoiceRepository().FindAll(ctx,
		specification.ByBillingCycleID{BillingCycleID: cycle.Id},
		specification.StatusIn{Statuses: specification.Statuses(entity.InvoiceStatusSent)},
	)
	if err != nil {
		return err
	}
	for _, invoice := range invoices {
		if err := invoice.TransitionTo(entity.InvoiceStatusOverdue); err != nil {
			return err
		}
		if err := uow.InvoiceRepository().Update(ctx, invoice); err != nil {
			return err
		}
	}
	return nil
}

// LastCustomer copies the customer snapshot of the tenant's most recent
// invoice. Subscriptions do not store billing contact details.
func LastCustomer(ctx context.Context, uow unitofwork.UnitOfWork, tenantId uuid.UUID) (Customer, error) {
	latest, err := uow.InvoiceRepository().FindOne(ctx,
		specification.ByTenantID{TenantID: tenantId},
		specification.OrderBy{Field: "issued_date", Desc: true},
	)
	if err != nil || latest == nil {
		return Customer{}, err
	}
	return Customer{
		Name:    latest.CustomerName,
		Email:   latest.CustomerEmail,
		Address: latest.CustomerAddress,
	}, nil
}
