package contract

import (
	"context"
	"errors"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"
)

// ErrConcurrentModification is returned by Update when the stored version
// no longer matches the one that was read.
var ErrConcurrentModification = errors.New("subscription was modified concurrently")

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *entity.Subscription) error
	Update(ctx context.Context, subscription *entity.Subscription) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Subscription, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
