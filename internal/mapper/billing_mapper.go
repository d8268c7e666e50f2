package mapper

import (
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/model"
)

type BillingMapper struct{}

func NewBillingMapper() *BillingMapper {
	return &BillingMapper{}
}

func (m *BillingMapper) CycleToEntity(c *model.BillingCycle) *entity.BillingCycle {
	if c == nil {
		return nil
	}
	return &entity.BillingCycle{
		Id:             c.Id,
		SubscriptionId: c.SubscriptionId,
		Kind:           entity.BillingCycleKind(c.Kind),
		PeriodStart:    c.PeriodStart,
		PeriodEnd:      c.PeriodEnd,
		BaseAmount:     c.BaseAmount,
		OverageAmount:  c.OverageAmount,
		TaxAmount:      c.TaxAmount,
		DiscountAmount: c.DiscountAmount,
		TotalAmount:    c.TotalAmount,
		Currency:       c.Currency,
		DueDate:        c.DueDate,
		Status:         entity.BillingCycleStatus(c.Status),
		IdempotencyKey: c.IdempotencyKey,
		ProcessedAt:    c.ProcessedAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (m *BillingMapper) CycleToModel(c *entity.BillingCycle) *model.BillingCycle {
	if c == nil {
		return nil
	}
	return &model.BillingCycle{
		Id:             c.Id,
		SubscriptionId: c.SubscriptionId,
		Kind:           string(c.Kind),
		PeriodStart:    c.PeriodStart,
		PeriodEnd:      c.PeriodEnd,
		BaseAmount:     c.BaseAmount,
		OverageAmount:  c.OverageAmount,
		TaxAmount:      c.TaxAmount,
		DiscountAmount: c.DiscountAmount,
		TotalAmount:    c.TotalAmount,
		Currency:       c.Currency,
		DueDate:        c.DueDate,
		Status:         string(c.Status),
		IdempotencyKey: c.IdempotencyKey,
		ProcessedAt:    c.ProcessedAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (m *BillingMapper) UsageToEntity(u *model.UsageMetric) *entity.UsageMetric {
	if u == nil {
		return nil
	}
	return &entity.UsageMetric{
		Id:                u.Id,
		TenantId:          u.TenantId,
		MetricName:        u.MetricName,
		MetricValue:       u.MetricValue,
		IsBillableOverage: u.IsBillableOverage,
		PeriodStart:       u.PeriodStart,
		PeriodEnd:         u.PeriodEnd,
		Metadata:          toMap(u.Metadata),
		RecordedAt:        u.RecordedAt,
	}
}

func (m *BillingMapper) UsageToModel(u *entity.UsageMetric) *model.UsageMetric {
	if u == nil {
		return nil
	}
	return &model.UsageMetric{
		Id:                u.Id,
		TenantId:          u.TenantId,
		MetricName:        u.MetricName,
		MetricValue:       u.MetricValue,
		IsBillableOverage: u.IsBillableOverage,
		PeriodStart:       u.PeriodStart,
		PeriodEnd:         u.PeriodEnd,
		Metadata:          toJSON(u.Metadata),
		RecordedAt:        u.RecordedAt,
	}
}
