package contract

import (
	"context"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"

	"github.com/google/uuid"
)

type PlanRepository interface {
	Create(ctx context.Context, plan *entity.Plan) error
	Update(ctx context.Context, plan *entity.Plan) error
	ReplaceLimits(ctx context.Context, planId uuid.UUID, limits []entity.PlanLimit) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Plan, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Plan, error)
}
