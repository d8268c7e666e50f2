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

type PaymentTransactionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.PaymentMapper
}

func NewPaymentTransactionRepository(db *gorm.DB) contract.PaymentTransactionRepository {
	return &PaymentTransactionRepositoryImpl{
		db:     db,
		mapper: mapper.NewPaymentMapper(),
	}
}

func (r *PaymentTransactionRepositoryImpl) Create(ctx context.Context, tx *entity.PaymentTransaction) error {
	m := r.mapper.TransactionToModel(tx)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*tx = *r.mapper.TransactionToEntity(m)
	return nil
}

func (r *PaymentTransactionRepositoryImpl) Update(ctx context.Context, tx *entity.PaymentTransaction) error {
	m := r.mapper.TransactionToModel(tx)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	tx.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PaymentTransactionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.PaymentTransaction, error) {
	var m model.PaymentTransaction
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.TransactionToEntity(&m), nil
}

func (r *PaymentTransactionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentTransaction, error) {
	var models []*model.PaymentTransaction
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.PaymentTransaction, len(models))
	for i, m := range models {
		entities[i] = r.mapper.TransactionToEntity(m)
	}
	return entities, nil
}

func (r *PaymentTransactionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.PaymentTransaction{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

type PaymentMethodRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.PaymentMapper
}

func NewPaymentMethodRepository(db *gorm.DB) contract.PaymentMethodRepository {
	return &PaymentMethodRepositoryImpl{
		db:     db,
		mapper: mapper.NewPaymentMapper(),
	}
}

func (r *PaymentMethodRepositoryImpl) Create(ctx context.Context, method *entity.PaymentMethod) error {
	m := r.mapper.MethodToModel(method)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*method = *r.mapper.MethodToEntity(m)
	return nil
}

func (r *PaymentMethodRepositoryImpl) Update(ctx context.Context, method *entity.PaymentMethod) error {
	m := r.mapper.MethodToModel(method)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	method.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *PaymentMethodRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.PaymentMethod{}, "id = ?", id).Error
}

func (r *PaymentMethodRepositoryImpl) ClearDefault(ctx context.Context, tenantId uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentMethod{}).
		Where("tenant_id = ? AND is_default = ?", tenantId, true).
		Update("is_default", false).Error
}

func (r *PaymentMethodRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.PaymentMethod, error) {
	var m model.PaymentMethod
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.MethodToEntity(&m), nil
}

func (r *PaymentMethodRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentMethod, error) {
	var models []*model.PaymentMethod
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.PaymentMethod, len(models))
	for i, m := range models {
		entities[i] = r.mapper.MethodToEntity(m)
	}
	return entities, nil
}
