package unitofwork

import (
	"context"

	"hq-billing-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	PlanRepository() contract.PlanRepository
	SubscriptionRepository() contract.SubscriptionRepository
	BillingCycleRepository() contract.BillingCycleRepository
	InvoiceRepository() contract.InvoiceRepository
	PaymentTransactionRepository() contract.PaymentTransactionRepository
	PaymentMethodRepository() contract.PaymentMethodRepository
	UsageMetricRepository() contract.UsageMetricRepository
}
