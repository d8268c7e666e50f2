package contract

import (
	"context"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"

	"github.com/shopspring/decimal"
)

type InvoiceRepository interface {
	// Create persists the invoice together with its items.
	Create(ctx context.Context, invoice *entity.Invoice) error
	// Update writes the invoice row; items are immutable once created.
	Update(ctx context.Context, invoice *entity.Invoice) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Invoice, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Invoice, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	SumTotal(ctx context.Context, specs ...specification.Specification) (decimal.Decimal, error)
	CountDistinctTenants(ctx context.Context, specs ...specification.Specification) (int64, error)
}
