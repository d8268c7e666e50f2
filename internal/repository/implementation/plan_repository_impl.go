package implementation

import (
	"context"
	"errors"

	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/mapper"
	"hq-billing-be/internal/model"
	"hq-billing-be/internal/repository/contract"
	"hq-billing-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PlanRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.PlanMapper
}

func NewPlanRepository(db *gorm.DB) contract.PlanRepository {
	return &PlanRepositoryImpl{
		db:     db,
		mapper: mapper.NewPlanMapper(),
	}
}

func preloadLimits(db *gorm.DB) *gorm.DB {
	return db.Preload("Limits", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("metric_name ASC")
	})
}

func (r *PlanRepositoryImpl) Create(ctx context.Context, plan *entity.Plan) error {
	m := r.mapper.ToModel(plan)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	plan.Id = m.Id
	plan.CreatedAt = m.CreatedAt
	plan.UpdatedAt = m.UpdatedAt

	if len(plan.Limits) > 0 {
		return r.ReplaceLimits(ctx, plan.Id, plan.Limits)
	}
	return nil
}

func (r *PlanRepositoryImpl) Update(ctx context.Context, plan *entity.Plan) error {
	m := r.mapper.ToModel(plan)
	if err := r.db.WithContext(ctx).Omit("Limits").Save(m).Error; err != nil {
		return err
	}
	plan.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PlanRepositoryImpl) ReplaceLimits(ctx context.Context, planId uuid.UUID, limits []entity.PlanLimit) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("plan_id = ?", planId).Delete(&model.PlanLimit{}).Error; err != nil {
		return err
	}
	if len(limits) == 0 {
		return nil
	}

	models := make([]*model.PlanLimit, len(limits))
	for i := range limits {
		limits[i].PlanId = planId
		models[i] = r.mapper.LimitToModel(&limits[i])
		models[i].Id = uuid.Nil
	}
	if err := db.Create(&models).Error; err != nil {
		return err
	}
	for i, m := range models {
		limits[i].Id = m.Id
	}
	return nil
}

func (r *PlanRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Plan, error) {
	var m model.Plan
	query := preloadLimits(applySpecifications(r.db.WithContext(ctx), specs...))
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *PlanRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Plan, error) {
	var models []*model.Plan
	query := preloadLimits(applySpecifications(r.db.WithContext(ctx), specs...))
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Plan, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}
