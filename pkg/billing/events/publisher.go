// Package events publishes billing domain events to the NATS bus.
package events

import (
	"context"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/logger"
	pkgEvents "hq-billing-be/pkg/events"
	pktNats "hq-billing-be/pkg/nats"
)

// Publisher abstracts billing event publishing. Publishing is best effort:
// failures are logged and never fail the business operation.
type Publisher interface {
	InvoiceIssued(ctx context.Context, invoice *entity.Invoice)
	InvoicePaid(ctx context.Context, invoice *entity.Invoice)
	InvoiceVoided(ctx context.Context, invoice *entity.Invoice, reason string)
	CreditNoteIssued(ctx context.Context, creditNote *entity.Invoice)
	PaymentFailed(ctx context.Context, tx *entity.PaymentTransaction)
	PaymentRefunded(ctx context.Context, refund *entity.PaymentTransaction)
	SubscriptionChanged(ctx context.Context, sub *entity.Subscription, change string)
	SubscriptionDunned(ctx context.Context, sub *entity.Subscription, cycle *entity.BillingCycle)
}

// NatsPublisher implements Publisher using NATS
type NatsPublisher struct {
	publisher *pktNats.Publisher
	logger    logger.ILogger
}

func NewNatsPublisher(publisher *pktNats.Publisher, logger logger.ILogger) *NatsPublisher {
	return &NatsPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *NatsPublisher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, pkgEvents.New(eventType, data)); err != nil {
		p.logger.Error("EVENTS", "Failed to publish "+eventType+" event", map[string]interface{}{"error": err.Error()})
	}
}

func invoicePayload(invoice *entity.Invoice) map[string]interface{} {
	return map[string]interface{}{
		"invoice_id":     invoice.Id.String(),
		"invoice_number": invoice.InvoiceNumber,
		"tenant_id":      invoice.TenantId.String(),
		"status":         string(invoice.Status),
		"total_amount":   invoice.TotalAmount.String(),
		"currency":       invoice.Currency,
		"due_date":       invoice.DueDate,
		"entity_type":    "invoice",
		"entity_id":      invoice.Id.String(),
	}
}

func (p *NatsPublisher) InvoiceIssued(ctx context.Context, invoice *entity.Invoice) {
	p.publish(ctx, pkgEvents.TypeInvoiceIssued, invoicePayload(invoice))
}

func (p *NatsPublisher) InvoicePaid(ctx context.Context, invoice *entity.Invoice) {
	data := invoicePayload(invoice)
	data["paid_date"] = invoice.PaidDate
	data["payment_provider"] = invoice.PaymentProvider
	p.publish(ctx, pkgEvents.TypeInvoicePaid, data)
}

func (p *NatsPublisher) InvoiceVoided(ctx context.Context, invoice *entity.Invoice, reason string) {
	data := invoicePayload(invoice)
	data["reason"] = reason
	p.publish(ctx, pkgEvents.TypeInvoiceVoided, data)
}

func (p *NatsPublisher) CreditNoteIssued(ctx context.Context, creditNote *entity.Invoice) {
	data := invoicePayload(creditNote)
	if creditNote.OriginalInvoiceId != nil {
		data["original_invoice_id"] = creditNote.OriginalInvoiceId.String()
	}
	p.publish(ctx, pkgEvents.TypeCreditNoteIssued, data)
}

func transactionPayload(tx *entity.PaymentTransaction) map[string]interface{} {
	return map[string]interface{}{
		"transaction_id":          tx.Id.String(),
		"invoice_id":              tx.InvoiceId.String(),
		"tenant_id":               tx.TenantId.String(),
		"provider":                string(tx.Provider),
		"provider_transaction_id": tx.ProviderTransactionId,
		"status":                  string(tx.Status),
		"amount":                  tx.Amount.String(),
		"currency":                tx.Currency,
		"entity_type":             "payment_transaction",
		"entity_id":               tx.Id.String() + ":" + string(tx.Status),
	}
}

func (p *NatsPublisher) PaymentFailed(ctx context.Context, tx *entity.PaymentTransaction) {
	data := transactionPayload(tx)
	data["failure_reason"] = tx.FailureReason
	p.publish(ctx, pkgEvents.TypePaymentFailed, data)
}

func (p *NatsPublisher) PaymentRefunded(ctx context.Context, refund *entity.PaymentTransaction) {
	data := transactionPayload(refund)
	if refund.ParentTransactionId != nil {
		data["parent_transaction_id"] = refund.ParentTransactionId.String()
	}
	p.publish(ctx, pkgEvents.TypePaymentRefunded, data)
}

func (p *NatsPublisher) SubscriptionChanged(ctx context.Context, sub *entity.Subscription, change string) {
	p.publish(ctx, pkgEvents.TypeSubscriptionChanged, map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"tenant_id":       sub.TenantId.String(),
		"plan_id":         sub.PlanId.String(),
		"status":          string(sub.Status),
		"change":          change,
		"entity_type":     "subscription",
		"entity_id":       sub.Id.String() + ":" + change + ":" + sub.UpdatedAt.Format("20060102150405.000"),
	})
}

func (p *NatsPublisher) SubscriptionDunned(ctx context.Context, sub *entity.Subscription, cycle *entity.BillingCycle) {
	p.publish(ctx, pkgEvents.TypeSubscriptionDunned, map[string]interface{}{
		"subscription_id":  sub.Id.String(),
		"tenant_id":        sub.TenantId.String(),
		"billing_cycle_id": cycle.Id.String(),
		"due_date":         cycle.DueDate,
		"total_amount":     cycle.TotalAmount.String(),
		"entity_type":      "subscription",
		"entity_id":        sub.Id.String() + ":dunned",
	})
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

func (NoopPublisher) InvoiceIssued(context.Context, *entity.Invoice) {}
func (NoopPublisher) InvoicePaid(context.Context, *entity.Invoice) {}
func (NoopPublisher) InvoiceVoided(context.Context, *entity.Invoice, string) {}
func (NoopPublisher) CreditNoteIssued(context.Context, *entity.Invoice) {}
func (NoopPublisher) PaymentFailed(context.Context, *entity.PaymentTransaction) {}
func (NoopPublisher) PaymentRefunded(context.Context, *entity.PaymentTransaction) {}
func (NoopPublisher) SubscriptionChanged(context.Context, *entity.Subscription, string) {}
func (NoopPublisher) SubscriptionDunned(context.Context, *entity.Subscription, *entity.BillingCycle) {}
