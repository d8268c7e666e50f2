package implementation

import (
	"context"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/mapper"
	"hq-billing-be/internal/model"
	"hq-billing-be/internal/repository/contract"
	"hq-billing-be/internal/repository/specification"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type UsageMetricRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.BillingMapper
}

func NewUsageMetricRepository(db *gorm.DB) contract.UsageMetricRepository {
	return &UsageMetricRepositoryImpl{
		db:     db,
		mapper: mapper.NewBillingMapper(),
	}
}

func (r *UsageMetricRepositoryImpl) Create(ctx context.Context, metric *entity.UsageMetric) error {
	m := r.mapper.UsageToModel(metric)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*metric = *r.mapper.UsageToEntity(m)
	return nil
}

func (r *UsageMetricRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.UsageMetric, error) {
	var models []*model.UsageMetric
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.UsageMetric, len(models))
	for i, m := range models {
		entities[i] = r.mapper.UsageToEntity(m)
	}
	return entities, nil
}

type metricTotal struct {
	MetricName string
	Total      decimal.Decimal
}

func (r *UsageMetricRepositoryImpl) SumByMetric(ctx context.Context, specs ...specification.Specification) (map[string]decimal.Decimal, error) {
	var rows []metricTotal
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.UsageMetric{}), specs...)
	err := query.
		Select("metric_name, COALESCE(SUM(metric_value), 0) AS total").
		Group("metric_name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.MetricName] = row.Total.Round(4)
	}
	return totals, nil
}

func (r *UsageMetricRepositoryImpl) Sum(ctx context.Context, specs ...specification.Specification) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.UsageMetric{}), specs...)
	if err := query.Select("COALESCE(SUM(metric_value), 0)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total.Round(4), nil
}
