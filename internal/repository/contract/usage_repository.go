package contract

import (
	"context"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"

	"github.com/shopspring/decimal"
)

type UsageMetricRepository interface {
	Create(ctx context.Context, metric *entity.UsageMetric) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.UsageMetric, error)
	// SumByMetric groups matching rows by metric name.
	SumByMetric(ctx context.Context, specs ...specification.Specification) (map[string]decimal.Decimal, error)
	Sum(ctx context.Context, specs ...specification.Specification) (decimal.Decimal, error)
}
