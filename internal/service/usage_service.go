package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/metering"
	"hq-billing-be/pkg/billing/period"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type IUsageService interface {
	TrackUsage(ctx context.Context, tenantId uuid.UUID, req *dto.TrackUsageRequest) (*dto.UsageMetricResponse, error)
	CheckUsageAgainstLimits(ctx context.Context, tenantId uuid.UUID, subscriptionId *uuid.UUID) (*dto.UsageCheckResponse, error)
	CalculateOverageCharges(ctx context.Context, tenantId uuid.UUID, start, end time.Time) (*dto.OverageChargesResponse, error)
	GetUsageAnalytics(ctx context.Context, tenantId uuid.UUID, periodKeyword string) (*dto.UsageAnalyticsResponse, error)
	GetUsageTrends(ctx context.Context, tenantId uuid.UUID, metricName, periodKeyword string) (*dto.UsageTrendResponse, error)
}

type usageService struct {
	uowFactory unitofwork.RepositoryFactory
	meter      *metering.Meter
	logger     logger.ILogger
	now        func() time.Time
}

func NewUsageService(uowFactory unitofwork.RepositoryFactory, meter *metering.Meter, logger logger.ILogger) IUsageService {
	return &usageService{
		uowFactory: uowFactory,
		meter:      meter,
		logger:     logger,
		now:        time.Now,
	}
}

// TrackUsage appends one usage row. Nothing is aggregated at write time.
func (s *usageService) TrackUsage(ctx context.Context, tenantId uuid.UUID, req *dto.TrackUsageRequest) (*dto.UsageMetricResponse, error) {
	var v apperror.Collector
	v.Check(strings.TrimSpace(req.MetricName) != "", "metric_name is required")
	v.Check(!req.Value.IsNegative(), "value must not be negative")
	if req.PeriodStart != nil && req.PeriodEnd != nil {
		v.Check(!req.PeriodEnd.Before(*req.PeriodStart), "period_end must not be before period_start")
	}
	if err := v.Err("invalid usage record"); err != nil {
		return nil, err
	}

	now := s.now()
	start, end := now, now
	if req.PeriodStart != nil {
		start = *req.PeriodStart
		end = start
	}
	if req.PeriodEnd != nil {
		end = *req.PeriodEnd
	}

	metric := &entity.UsageMetric{
		Id:                uuid.New(),
		TenantId:          tenantId,
		MetricName:        req.MetricName,
		MetricValue:       req.Value,
		IsBillableOverage: req.IsBillableOverage || strings.HasPrefix(req.MetricName, entity.LegacyOveragePrefix),
		PeriodStart:       start,
		PeriodEnd:         end,
		Metadata:          req.Metadata,
		RecordedAt:        now,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.UsageMetricRepository().Create(ctx, metric); err != nil {
		return nil, err
	}

	s.logger.Debug("USAGE", "Usage recorded", map[string]interface{}{
		"tenant_id": tenantId.String(),
		"metric":    metric.MetricName,
		"value":     metric.MetricValue.String(),
	})
	return &dto.UsageMetricResponse{
		Id:                metric.Id,
		TenantId:          metric.TenantId,
		MetricName:        metric.MetricName,
		MetricValue:       metric.MetricValue,
		IsBillableOverage: metric.IsBillableOverage,
		PeriodStart:       metric.PeriodStart,
		PeriodEnd:         metric.PeriodEnd,
		RecordedAt:        metric.RecordedAt,
	}, nil
}

// CheckUsageAgainstLimits checks the given subscription, or the tenant's
// open subscription when none is given.
func (s *usageService) CheckUsageAgainstLimits(ctx context.Context, tenantId uuid.UUID, subscriptionId *uuid.UUID) (*dto.UsageCheckResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	specs := []specification.Specification{specification.ByTenantID{TenantID: tenantId}}
	if subscriptionId != nil {
		specs = append(specs, specification.ByID{ID: *subscriptionId})
	} else {
		specs = append(specs, specification.StatusIn{Statuses: specification.Statuses(entity.OpenSubscriptionStatuses...)})
	}
	sub, err := uow.SubscriptionRepository().FindOne(ctx, specs...)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: sub.PlanId})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}

	result, err := s.meter.Check(ctx, uow, sub, plan)
	if err != nil {
		return nil, err
	}
	return toUsageCheckResponse(result), nil
}

func (s *usageService) CalculateOverageCharges(ctx context.Context, tenantId uuid.UUID, start, end time.Time) (*dto.OverageChargesResponse, error) {
	if end.Before(start) {
		return nil, apperror.Validation("invalid window", "end must not be before start")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	amount, err := s.meter.OverageCharges(ctx, uow, tenantId, start, end)
	if err != nil {
		return nil, err
	}
	return &dto.OverageChargesResponse{
		TenantId: tenantId,
		Start:    start,
		End:      end,
		Amount:   amount,
	}, nil
}

func (s *usageService) GetUsageAnalytics(ctx context.Context, tenantId uuid.UUID, periodKeyword string) (*dto.UsageAnalyticsResponse, error) {
	keyword, r, err := resolvePeriod(periodKeyword, s.now())
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	rows, err := uow.UsageMetricRepository().FindAll(ctx,
		specification.ByTenantID{TenantID: tenantId},
		specification.UsagePeriodBetween{Start: r.Start, End: r.End},
	)
	if err != nil {
		return nil, err
	}

	byMetric := map[string]*dto.MetricSummary{}
	for _, row := range rows {
		summary, ok := byMetric[row.MetricName]
		if !ok {
			summary = &dto.MetricSummary{MetricName: row.MetricName, Total: decimal.Zero, Peak: row.MetricValue}
			byMetric[row.MetricName] = summary
		}
		summary.Total = summary.Total.Add(row.MetricValue)
		summary.Records++
		if row.MetricValue.GreaterThan(summary.Peak) {
			summary.Peak = row.MetricValue
		}
	}

	res := &dto.UsageAnalyticsResponse{
		Period:  keyword,
		Start:   r.Start,
		End:     r.End,
		Metrics: make([]dto.MetricSummary, 0, len(byMetric)),
	}
	for _, summary := range byMetric {
		summary.Average = summary.Total.Div(decimal.NewFromInt(int64(summary.Records))).Round(2)
		res.Metrics = append(res.Metrics, *summary)
	}
	sort.Slice(res.Metrics, func(i, j int) bool { return res.Metrics[i].MetricName < res.Metrics[j].MetricName })
	return res, nil
}

// GetUsageTrends buckets a metric by day for windows up to 31 days and by
// ISO week (Monday start) for longer ones. Empty buckets are reported as zero.
func (s *usageService) GetUsageTrends(ctx context.Context, tenantId uuid.UUID, metricName, periodKeyword string) (*dto.UsageTrendResponse, error) {
	if strings.TrimSpace(metricName) == "" {
		return nil, apperror.Validation("invalid trend query", "metric is required")
	}
	keyword, r, err := resolvePeriod(periodKeyword, s.now())
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	rows, err := uow.UsageMetricRepository().FindAll(ctx,
		specification.ByTenantID{TenantID: tenantId},
		specification.ByMetricName{MetricName: metricName},
		specification.UsagePeriodBetween{Start: r.Start, End: r.End},
	)
	if err != nil {
		return nil, err
	}

	granularity := "day"
	bucketOf := func(t time.Time) time.Time { return period.StartOfDay(t) }
	step := func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	if r.Days() > 31 {
		granularity = "week"
		bucketOf = startOfISOWeek
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	}

	totals := map[time.Time]decimal.Decimal{}
	for _, row := range rows {
		b := bucketOf(row.PeriodStart.In(r.Start.Location()))
		totals[b] = totals[b].Add(row.MetricValue)
	}

	res := &dto.UsageTrendResponse{
		MetricName:  metricName,
		Period:      keyword,
		Granularity: granularity,
		Points:      []dto.UsageTrendPoint{},
	}
	for b := bucketOf(r.Start); !b.After(r.End); b = step(b) {
		res.Points = append(res.Points, dto.UsageTrendPoint{Bucket: b, Value: totals[b]})
	}
	return res, nil
}

func startOfISOWeek(t time.Time) time.Time {
	day := period.StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func resolvePeriod(keyword string, now time.Time) (string, period.Range, error) {
	canonical, err := period.Normalize(keyword)
	if err != nil {
		return "", period.Range{}, ErrInvalidPeriod.Wrap(err)
	}
	r, err := period.Resolve(canonical, now)
	if err != nil {
		return "", period.Range{}, ErrInvalidPeriod.Wrap(err)
	}
	return canonical, r, nil
}
