package mapper

import (
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/model"
)

type PlanMapper struct{}

func NewPlanMapper() *PlanMapper {
	return &PlanMapper{}
}

func (m *PlanMapper) ToEntity(p *model.Plan) *entity.Plan {
	if p == nil {
		return nil
	}
	limits := make([]entity.PlanLimit, 0, len(p.Limits))
	for _, l := range p.Limits {
		limits = append(limits, *m.LimitToEntity(l))
	}
	return &entity.Plan{
		Id:              p.Id,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Currency:        p.Currency,
		BillingInterval: entity.BillingInterval(p.BillingInterval),
		TrialDays:       p.TrialDays,
		TaxRate:         p.TaxRate,
		Features:        toStrings(p.Features),
		IsActive:        p.IsActive,
		SortOrder:       p.SortOrder,
		Limits:          limits,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// ToModel maps the plan row only; limits are persisted separately.
func (m *PlanMapper) ToModel(p *entity.Plan) *model.Plan {
	if p == nil {
		return nil
	}
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return &model.Plan{
		Id:              p.Id,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Currency:        p.Currency,
		BillingInterval: string(p.BillingInterval),
		TrialDays:       p.TrialDays,
		TaxRate:         p.TaxRate,
		Features:        toJSON(features),
		IsActive:        p.IsActive,
		SortOrder:       p.SortOrder,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (m *PlanMapper) LimitToEntity(l *model.PlanLimit) *entity.PlanLimit {
	if l == nil {
		return nil
	}
	return &entity.PlanLimit{
		Id:          l.Id,
		PlanId:      l.PlanId,
		MetricName:  l.MetricName,
		MaxValue:    l.MaxValue,
		Unit:        l.Unit,
		IsSoftLimit: l.IsSoftLimit,
		OverageRate: l.OverageRate,
	}
}

func (m *PlanMapper) LimitToModel(l *entity.PlanLimit) *model.PlanLimit {
	if l == nil {
		return nil
	}
	return &model.PlanLimit{
		Id:          l.Id,
		PlanId:      l.PlanId,
		MetricName:  l.MetricName,
		MaxValue:    l.MaxValue,
		Unit:        l.Unit,
		IsSoftLimit: l.IsSoftLimit,
		OverageRate: l.OverageRate,
	}
}
