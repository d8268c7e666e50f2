package contract

import (
	"context"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"
)

type BillingCycleRepository interface {
	Create(ctx context.Context, cycle *entity.BillingCycle) error
	Update(ctx context.Context, cycle *entity.BillingCycle) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.BillingCycle, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.BillingCycle, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
