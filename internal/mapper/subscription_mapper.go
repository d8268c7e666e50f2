package mapper

import (
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/model"
)

type SubscriptionMapper struct{}

func NewSubscriptionMapper() *SubscriptionMapper {
	return &SubscriptionMapper{}
}

func (m *SubscriptionMapper) ToEntity(s *model.Subscription) *entity.Subscription {
	if s == nil {
		return nil
	}
	return &entity.Subscription{
		Id:                 s.Id,
		TenantId:           s.TenantId,
		PlanId:             s.PlanId,
		Status:             entity.SubscriptionStatus(s.Status),
		TrialEndsAt:        s.TrialEndsAt,
		StartedAt:          s.StartedAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CancelledAt:        s.CancelledAt,
		CancellationReason: s.CancellationReason,
		PendingPlanId:      s.PendingPlanId,
		PlanChangeDate:     s.PlanChangeDate,
		PaymentMethodId:    s.PaymentMethodId,
		Version:            s.Version,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func (m *SubscriptionMapper) ToModel(s *entity.Subscription) *model.Subscription {
	if s == nil {
		return nil
	}
	return &model.Subscription{
		Id:                 s.Id,
		TenantId:           s.TenantId,
		PlanId:             s.PlanId,
		Status:             string(s.Status),
		TrialEndsAt:        s.TrialEndsAt,
		StartedAt:          s.StartedAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CancelledAt:        s.CancelledAt,
		CancellationReason: s.CancellationReason,
		PendingPlanId:      s.PendingPlanId,
		PlanChangeDate:     s.PlanChangeDate,
		PaymentMethodId:    s.PaymentMethodId,
		Version:            s.Version,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}
