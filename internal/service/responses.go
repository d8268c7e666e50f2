package service

import (
	"time"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
)

func toPlanResponse(p *entity.Plan) *dto.PlanResponse {
	if p == nil {
		return nil
	}
	limits := make([]dto.PlanLimitResponse, 0, len(p.Limits))
	for _, l := range p.Limits {
		limits = append(limits, dto.PlanLimitResponse{
			MetricName:  l.MetricName,
			MaxValue:    l.MaxValue,
			Unlimited:   l.IsUnlimited(),
			Unit:        l.Unit,
			IsSoftLimit: l.IsSoftLimit,
			OverageRate: l.OverageRate,
		})
	}
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return &dto.PlanResponse{
		Id:              p.Id,
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		Currency:        p.Currency,
		BillingInterval: string(p.BillingInterval),
		TrialDays:       p.TrialDays,
		TaxRate:         p.TaxRate,
		Features:        features,
		IsActive:        p.IsActive,
		SortOrder:       p.SortOrder,
		Limits:          limits,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toSubscriptionResponse(s *entity.Subscription, plan *entity.Plan) *dto.SubscriptionResponse {
	return &dto.SubscriptionResponse{
		Id:                 s.Id,
		TenantId:           s.TenantId,
		PlanId:             s.PlanId,
		Plan:               toPlanResponse(plan),
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
	}
}

func toCycleResponse(c *entity.BillingCycle) *dto.BillingCycleResponse {
	if c == nil {
		return nil
	}
	return &dto.BillingCycleResponse{
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
		ProcessedAt:    c.ProcessedAt,
	}
}

func toInvoiceResponse(i *entity.Invoice) *dto.InvoiceResponse {
	if i == nil {
		return nil
	}
	items := make([]dto.InvoiceItemResponse, 0, len(i.Items))
	for _, item := range i.Items {
		items = append(items, dto.InvoiceItemResponse{
			Id:          item.Id,
			Type:        string(item.Type),
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}
	return &dto.InvoiceResponse{
		Id:                i.Id,
		TenantId:          i.TenantId,
		SubscriptionId:    i.SubscriptionId,
		BillingCycleId:    i.BillingCycleId,
		OriginalInvoiceId: i.OriginalInvoiceId,
		InvoiceNumber:     i.InvoiceNumber,
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
		Metadata:          i.Metadata,
		Items:             items,
	}
}

func toOverdueInvoiceResponse(i *entity.Invoice, now time.Time) *dto.InvoiceResponse {
	res := toInvoiceResponse(i)
	res.DaysOverdue = i.DaysOverdue(now)
	return res
}

func toTransactionResponse(t *entity.PaymentTransaction) *dto.PaymentTransactionResponse {
	return &dto.PaymentTransactionResponse{
		Id:                    t.Id,
		InvoiceId:             t.InvoiceId,
		ParentTransactionId:   t.ParentTransactionId,
		Type:                  string(t.Type),
		Amount:                t.Amount,
		Currency:              t.Currency,
		Status:                string(t.Status),
		Provider:              string(t.Provider),
		ProviderTransactionId: t.ProviderTransactionId,
		PaymentMethod:         t.PaymentMethod,
		FailureReason:         t.FailureReason,
		RedirectUrl:           t.RedirectUrl,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

func toPaymentMethodResponse(m *entity.PaymentMethod) *dto.PaymentMethodResponse {
	return &dto.PaymentMethodResponse{
		Id:           m.Id,
		Type:         string(m.Type),
		Provider:     string(m.Provider),
		CardBrand:    m.CardBrand,
		CardLast4:    m.CardLast4,
		ExpMonth:     m.ExpMonth,
		ExpYear:      m.ExpYear,
		BankName:     m.BankName,
		AccountLast4: m.AccountLast4,
		IsDefault:    m.IsDefault,
		CreatedAt:    m.CreatedAt,
	}
}

func toUsageCheckResponse(r *entity.UsageCheckResult) *dto.UsageCheckResponse {
	res := &dto.UsageCheckResponse{
		SubscriptionId: r.SubscriptionId,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		WithinLimits:   r.WithinLimits,
		Usage:          make([]dto.MetricUsageResponse, 0, len(r.Usage)),
		Overages:       make([]dto.UsageOverageResponse, 0, len(r.Overages)),
	}
	for _, u := range r.Usage {
		res.Usage = append(res.Usage, dto.MetricUsageResponse{
			MetricName:  u.MetricName,
			Current:     u.Current,
			Limit:       u.Limit,
			Unit:        u.Unit,
			Unlimited:   u.Unlimited,
			PercentUsed: u.PercentUsed,
		})
	}
	for _, o := range r.Overages {
		res.Overages = append(res.Overages, dto.UsageOverageResponse{
			MetricName:  o.MetricName,
			Current:     o.Current,
			Limit:       o.Limit,
			Overage:     o.Overage,
			Unit:        o.Unit,
			IsSoftLimit: o.IsSoftLimit,
			Charge:      o.Charge,
		})
	}
	return res
}

// pageSpec normalizes page/pageSize into an offset.
func pageSpec(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}
