package mapper

import (
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/model"
)

type InvoiceMapper struct{}

func NewInvoiceMapper() *InvoiceMapper {
	return &InvoiceMapper{}
}

func (m *InvoiceMapper) ToEntity(i *model.Invoice) *entity.Invoice {
	if i == nil {
		return nil
	}
	items := make([]entity.InvoiceItem, 0, len(i.Items))
	for _, it := range i.Items {
		items = append(items, entity.InvoiceItem{
			Id:          it.Id,
			InvoiceId:   it.InvoiceId,
			Type:        entity.InvoiceItemType(it.Type),
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      it.Amount,
			SortOrder:   it.SortOrder,
		})
	}
	return &entity.Invoice{
		Id:                i.Id,
		TenantId:          i.TenantId,
		SubscriptionId:    i.SubscriptionId,
		BillingCycleId:    i.BillingCycleId,
		OriginalInvoiceId: i.OriginalInvoiceId,
		InvoiceNumber:     i.InvoiceNumber,
		IdempotencyKey:    i.IdempotencyKey,
		Status:            entity.InvoiceStatus(i.Status),
		IssuedDate:        i.IssuedDate,
		DueDate:           i.DueDate,
		PaidDate:          i.PaidDate,
		Subtotal:          i.Subtotal,
		TaxAmount:         i.TaxAmount,
		DiscountAmount:    i.DiscountAmount,
		TotalAmount:       i.TotalAmount,
		Currency:          i.Currency,
		PaymentProvider:   i.PaymentProvider,
		PaymentMethod:     i.PaymentMethod,
		ExternalId:        i.ExternalId,
		CustomerName:      i.CustomerName,
		CustomerEmail:     i.CustomerEmail,
		CustomerAddress:   i.CustomerAddress,
		Notes:             i.Notes,
		Metadata:          toMap(i.Metadata),
		Items:             items,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}

// ToModel maps the invoice row only; items are written by the repository.
func (m *InvoiceMapper) ToModel(i *entity.Invoice) *model.Invoice {
	if i == nil {
		return nil
	}
	return &model.Invoice{
		Id:                i.Id,
		TenantId:          i.TenantId,
		SubscriptionId:    i.SubscriptionId,
		BillingCycleId:    i.BillingCycleId,
		OriginalInvoiceId: i.OriginalInvoiceId,
		InvoiceNumber:     i.InvoiceNumber,
		IdempotencyKey:    i.IdempotencyKey,
		Status:            string(i.Status),
		IssuedDate:        i.IssuedDate,
		DueDate:           i.DueDate,
		PaidDate:          i.PaidDate,
		Subtotal:          i.Subtotal,
		TaxAmount:         i.TaxAmount,
		DiscountAmount:    i.DiscountAmount,
		TotalAmount:       i.TotalAmount,
		Currency:          i.Currency,
		PaymentProvider:   i.PaymentProvider,
		PaymentMethod:     i.PaymentMethod,
		ExternalId:        i.ExternalId,
		CustomerName:      i.CustomerName,
		CustomerEmail:     i.CustomerEmail,
		CustomerAddress:   i.CustomerAddress,
		Notes:             i.Notes,
		Metadata:          toJSON(i.Metadata),
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}

func (m *InvoiceMapper) ItemToModel(item entity.InvoiceItem) *model.InvoiceItem {
	return &model.InvoiceItem{
		Id:          item.Id,
		InvoiceId:   item.InvoiceId,
		Type:        string(item.Type),
		Description: item.Description,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		Amount:      item.Amount,
		SortOrder:   item.SortOrder,
	}
}
