package implementation

import (
	"context"
	"errors"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/mapper"
	"hq-billing-be/internal/model"
	"hq-billing-be/internal/repository/contract"
	"hq-billing-be/internal/repository/specification"

	"gorm.io/gorm"
)

type BillingCycleRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.BillingMapper
}

func NewBillingCycleRepository(db *gorm.DB) contract.BillingCycleRepository {
	return &BillingCycleRepositoryImpl{
		db:     db,
		mapper: mapper.NewBillingMapper(),
	}
}

func (r *BillingCycleRepositoryImpl) Create(ctx context.Context, cycle *entity.BillingCycle) error {
	m := r.mapper.CycleToModel(cycle)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*cycle = *r.mapper.CycleToEntity(m)
	return nil
}

func (r *BillingCycleRepositoryImpl) Update(ctx context.Context, cycle *entity.BillingCycle) error {
	m := r.mapper.CycleToModel(cycle)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*cycle = *r.mapper.CycleToEntity(m)
	return nil
}

func (r *BillingCycleRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.BillingCycle, error) {
	var m model.BillingCycle
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.CycleToEntity(&m), nil
}

func (r *BillingCycleRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.BillingCycle, error) {
	var models []*model.BillingCycle
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.BillingCycle, len(models))
	for i, m := range models {
		entities[i] = r.mapper.CycleToEntity(m)
	}
	return entities, nil
}

func (r *BillingCycleRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.BillingCycle{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
