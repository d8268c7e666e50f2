package model

import "github.com/google/uuid"

// ensureID assigns a UUID before insert. Keys are generated here rather than
// by a database default so the schema works on any GORM dialect.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// AllModels lists every persisted billing model in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Plan{},
		&PlanLimit{},
		&PaymentMethod{},
		&Subscription{},
		&BillingCycle{},
		&Invoice{},
		&InvoiceItem{},
		&PaymentTransaction{},
		&UsageMetric{},
	}
}
