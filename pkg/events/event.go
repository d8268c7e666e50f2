package events

import "time"

// Billing event types. Each is published on subject "events.<TYPE>".
const (
	TypeInvoiceIssued       = "INVOICE_ISSUED"
	TypeInvoicePaid         = "INVOICE_PAID"
	TypeInvoiceVoided       = "INVOICE_VOIDED"
	TypeCreditNoteIssued    = "CREDIT_NOTE_ISSUED"
	TypePaymentFailed       = "PAYMENT_FAILED"
	TypePaymentRefunded     = "PAYMENT_REFUNDED"
	TypeSubscriptionChanged = "SUBSCRIPTION_CHANGED"
	TypeSubscriptionDunned  = "SUBSCRIPTION_DUNNED"

	// TypeUsageRecorded is consumed, not produced: product services report
	// metered usage with it.
	TypeUsageRecorded = "USAGE_RECORDED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "INVOICE_PAID").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
