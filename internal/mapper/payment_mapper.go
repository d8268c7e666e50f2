package mapper

import (
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/model"
)

type PaymentMapper struct{}

func NewPaymentMapper() *PaymentMapper {
	return &PaymentMapper{}
}

func (m *PaymentMapper) TransactionToEntity(t *model.PaymentTransaction) *entity.PaymentTransaction {
	if t == nil {
		return nil
	}
	return &entity.PaymentTransaction{
		Id:                    t.Id,
		InvoiceId:             t.InvoiceId,
		TenantId:              t.TenantId,
		ParentTransactionId:   t.ParentTransactionId,
		Type:                  entity.TransactionType(t.Type),
		Amount:                t.Amount,
		Currency:              t.Currency,
		Status:                entity.TransactionStatus(t.Status),
		Provider:              entity.PaymentProvider(t.Provider),
		ProviderTransactionId: t.ProviderTransactionId,
		PaymentMethod:         t.PaymentMethod,
		IdempotencyKey:        t.IdempotencyKey,
		FailureReason:         t.FailureReason,
		RedirectUrl:           t.RedirectUrl,
		RawResponse:           toMap(t.RawResponse),
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

func (m *PaymentMapper) TransactionToModel(t *entity.PaymentTransaction) *model.PaymentTransaction {
	if t == nil {
		return nil
	}
	return &model.PaymentTransaction{
		Id:                    t.Id,
		InvoiceId:             t.InvoiceId,
		TenantId:              t.TenantId,
		ParentTransactionId:   t.ParentTransactionId,
		Type:                  string(t.Type),
		Amount:                t.Amount,
		Currency:              t.Currency,
		Status:                string(t.Status),
		Provider:              string(t.Provider),
		ProviderTransactionId: t.ProviderTransactionId,
		PaymentMethod:         t.PaymentMethod,
		IdempotencyKey:        t.IdempotencyKey,
		FailureReason:         t.FailureReason,
		RedirectUrl:           t.RedirectUrl,
		RawResponse:           toJSON(t.RawResponse),
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

func (m *PaymentMapper) MethodToEntity(pm *model.PaymentMethod) *entity.PaymentMethod {
	if pm == nil {
		return nil
	}
	return &entity.PaymentMethod{
		Id:                 pm.Id,
		TenantId:           pm.TenantId,
		Type:               entity.PaymentMethodType(pm.Type),
		Provider:           entity.PaymentProvider(pm.Provider),
		ProviderMethodId:   pm.ProviderMethodId,
		ProviderCustomerId: pm.ProviderCustomerId,
		CardBrand:          pm.CardBrand,
		CardLast4:          pm.CardLast4,
		ExpMonth:           pm.ExpMonth,
		ExpYear:            pm.ExpYear,
		BankName:           pm.BankName,
		AccountLast4:       pm.AccountLast4,
		IsDefault:          pm.IsDefault,
		CreatedAt:          pm.CreatedAt,
		UpdatedAt:          pm.UpdatedAt,
	}
}

func (m *PaymentMapper) MethodToModel(pm *entity.PaymentMethod) *model.PaymentMethod {
	if pm == nil {
		return nil
	}
	return &model.PaymentMethod{
		Id:                 pm.Id,
		TenantId:           pm.TenantId,
		Type:               string(pm.Type),
		Provider:           string(pm.Provider),
		ProviderMethodId:   pm.ProviderMethodId,
		ProviderCustomerId: pm.ProviderCustomerId,
		CardBrand:          pm.CardBrand,
		CardLast4:          pm.CardLast4,
		ExpMonth:           pm.ExpMonth,
		ExpYear:            pm.ExpYear,
		BankName:           pm.BankName,
		AccountLast4:       pm.AccountLast4,
		IsDefault:          pm.IsDefault,
		CreatedAt:          pm.CreatedAt,
		UpdatedAt:          pm.UpdatedAt,
	}
}
