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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.InvoiceMapper
}

func NewInvoiceRepository(db *gorm.DB) contract.InvoiceRepository {
	return &InvoiceRepositoryImpl{
		db:     db,
		mapper: mapper.NewInvoiceMapper(),
	}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sort_order ASC")
	})
}

func (r *InvoiceRepositoryImpl) Create(ctx context.Context, invoice *entity.Invoice) error {
	if invoice.Id == uuid.Nil {
		invoice.Id = uuid.New()
	}
	m := r.mapper.ToModel(invoice)
	for i, item := range invoice.Items {
		item.InvoiceId = invoice.Id
		if item.SortOrder == 0 {
			item.SortOrder = i + 1
		}
		m.Items = append(m.Items, r.mapper.ItemToModel(item))
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*invoice = *r.mapper.ToEntity(m)
	return nil
}

func (r *InvoiceRepositoryImpl) Update(ctx context.Context, invoice *entity.Invoice) error {
	m := r.mapper.ToModel(invoice)
	if err := r.db.WithContext(ctx).Omit("Items").Save(m).Error; err != nil {
		return err
	}
	invoice.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *InvoiceRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Invoice, error) {
	var m model.Invoice
	query := preloadItems(applySpecifications(r.db.WithContext(ctx), specs...))
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *InvoiceRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Invoice, error) {
	var models []*model.Invoice
	query := preloadItems(applySpecifications(r.db.WithContext(ctx), specs...))
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Invoice, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *InvoiceRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.Invoice{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *InvoiceRepositoryImpl) SumTotal(ctx context.Context, specs ...specification.Specification) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.Invoice{}), specs...)
	if err := query.Select("COALESCE(SUM(total_amount), 0)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total.Round(2), nil
}

func (r *InvoiceRepositoryImpl) CountDistinctTenants(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.Invoice{}), specs...)
	if err := query.Distinct("tenant_id").Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
