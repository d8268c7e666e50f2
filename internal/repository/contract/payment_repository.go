package contract

import (
	"context"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"

	"github.com/google/uuid"
)

type PaymentTransactionRepository interface {
	Create(ctx context.Context, tx *entity.PaymentTransaction) error
	Update(ctx context.Context, tx *entity.PaymentTransaction) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.PaymentTransaction, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentTransaction, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}

type PaymentMethodRepository interface {
	Create(ctx context.Context, method *entity.PaymentMethod) error
	Update(ctx context.Context, method *entity.PaymentMethod) error
	Delete(ctx context.Context, id uuid.UUID) error
	ClearDefault(ctx context.Context, tenantId uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.PaymentMethod, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentMethod, error)
}
