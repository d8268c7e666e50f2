package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/repository/memory"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type IPlanService interface {
	GetAvailablePlans(ctx context.Context) ([]*dto.PlanResponse, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*dto.PlanResponse, error)
	CreatePlan(ctx context.Context, req *dto.CreatePlanRequest) (*dto.PlanResponse, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, req *dto.UpdatePlanRequest) (*dto.PlanResponse, error)
	UpdatePlanLimits(ctx context.Context, id uuid.UUID, req *dto.UpdatePlanLimitsRequest) (*dto.PlanResponse, error)
	DeletePlan(ctx context.Context, id uuid.UUID) error
	ComparePlans(ctx context.Context, ids []uuid.UUID) (*dto.PlanComparisonResponse, error)
	GetRecommendedPlan(ctx context.Context, req *dto.RecommendPlanRequest) ([]dto.PlanRecommendation, error)
}

type planService struct {
	uowFactory unitofwork.RepositoryFactory
	cache      *memory.PlanCache
	logger     logger.ILogger
}

func NewPlanService(uowFactory unitofwork.RepositoryFactory, cache *memory.PlanCache, logger logger.ILogger) IPlanService {
	return &planService{
		uowFactory: uowFactory,
		cache:      cache,
		logger:     logger,
	}
}

// GetAvailablePlans returns active plans, cheapest first.
func (s *planService) GetAvailablePlans(ctx context.Context) ([]*dto.PlanResponse, error) {
	plans, err := s.availablePlans(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.PlanResponse, 0, len(plans))
	for _, p := range plans {
		res = append(res, toPlanResponse(p))
	}
	return res, nil
}

func (s *planService) availablePlans(ctx context.Context) ([]*entity.Plan, error) {
	if cached, ok := s.cache.GetAvailable(); ok {
		return cached, nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	plans, err := uow.PlanRepository().FindAll(ctx,
		specification.ActivePlans{},
		specification.OrderBy{Field: "price"},
		specification.OrderBy{Field: "sort_order"},
	)
	if err != nil {
		return nil, err
	}
	s.cache.SetAvailable(plans)
	return plans, nil
}

func (s *planService) GetPlan(ctx context.Context, id uuid.UUID) (*dto.PlanResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	return toPlanResponse(plan), nil
}

func (s *planService) CreatePlan(ctx context.Context, req *dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	var v apperror.Collector
	v.Check(!req.Price.IsNegative(), "price must not be negative")
	v.Check(entity.BillingInterval(req.BillingInterval).IsValid(), "billing_interval must be monthly or yearly")
	validateTaxRate(&v, req.TaxRate)
	limits := limitsFromRequest(&v, req.Limits)
	if err := v.Err("invalid plan"); err != nil {
		return nil, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	plan := &entity.Plan{
		Id:              uuid.New(),
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		Currency:        strings.ToUpper(req.Currency),
		BillingInterval: entity.BillingInterval(req.BillingInterval),
		TrialDays:       req.TrialDays,
		TaxRate:         req.TaxRate,
		Features:        req.Features,
		IsActive:        isActive,
		SortOrder:       req.SortOrder,
		Limits:          limits,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.PlanRepository().Create(ctx, plan); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}
	s.cache.Invalidate()

	s.logger.Info("PLAN", "Plan created", map[string]interface{}{
		"plan_id": plan.Id.String(),
		"name":    plan.Name,
		"price":   plan.Price.String(),
	})
	return s.GetPlan(ctx, plan.Id)
}

func (s *planService) UpdatePlan(ctx context.Context, id uuid.UUID, req *dto.UpdatePlanRequest) (*dto.PlanResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}

	var v apperror.Collector
	if req.Name != nil {
		plan.Name = *req.Name
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.Price != nil {
		v.Check(!req.Price.IsNegative(), "price must not be negative")
		plan.Price = *req.Price
	}
	if req.BillingInterval != nil {
		v.Check(entity.BillingInterval(*req.BillingInterval).IsValid(), "billing_interval must be monthly or yearly")
		plan.BillingInterval = entity.BillingInterval(*req.BillingInterval)
	}
	if req.TrialDays != nil {
		plan.TrialDays = *req.TrialDays
	}
	if req.TaxRate != nil {
		validateTaxRate(&v, *req.TaxRate)
		plan.TaxRate = *req.TaxRate
	}
	if req.Features != nil {
		plan.Features = req.Features
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}
	if req.SortOrder != nil {
		plan.SortOrder = *req.SortOrder
	}
	if err := v.Err("invalid plan"); err != nil {
		return nil, err
	}

	if err := uow.PlanRepository().Update(ctx, plan); err != nil {
		return nil, err
	}
	s.cache.Invalidate()

	s.logger.Info("PLAN", "Plan updated", map[string]interface{}{"plan_id": id.String()})
	return s.GetPlan(ctx, id)
}

// UpdatePlanLimits replaces the whole limit set; omitted metrics are dropped.
func (s *planService) UpdatePlanLimits(ctx context.Context, id uuid.UUID, req *dto.UpdatePlanLimitsRequest) (*dto.PlanResponse, error) {
	var v apperror.Collector
	limits := limitsFromRequest(&v, req.Limits)
	if err := v.Err("invalid plan limits"); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.PlanRepository().ReplaceLimits(ctx, id, limits); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}
	s.cache.Invalidate()

	s.logger.Info("PLAN", "Plan limits replaced", map[string]interface{}{
		"plan_id": id.String(),
		"limits":  len(limits),
	})
	return s.GetPlan(ctx, id)
}

// DeletePlan deactivates the plan. Plans with trial or active subscriptions
// are refused.
func (s *planService) DeletePlan(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	plan, err := uow.PlanRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return err
	}
	if plan == nil {
		return ErrPlanNotFound
	}

	active, err := uow.SubscriptionRepository().Count(ctx,
		specification.ByPlanID{PlanID: id},
		specification.StatusIn{Statuses: specification.Statuses(entity.SubscriptionStatusTrial, entity.SubscriptionStatusActive)},
	)
	if err != nil {
		return err
	}
	if active > 0 {
		return ErrPlanHasActiveSubscriptions
	}

	plan.IsActive = false
	if err := uow.PlanRepository().Update(ctx, plan); err != nil {
		return err
	}
	s.cache.Invalidate()

	s.logger.Info("PLAN", "Plan deactivated", map[string]interface{}{"plan_id": id.String()})
	return nil
}

func (s *planService) ComparePlans(ctx context.Context, ids []uuid.UUID) (*dto.PlanComparisonResponse, error) {
	if len(ids) < 2 {
		return nil, apperror.Validation("at least two plans are required for a comparison")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	found, err := uow.PlanRepository().FindAll(ctx, specification.ByIDs{IDs: ids})
	if err != nil {
		return nil, err
	}
	byId := make(map[uuid.UUID]*entity.Plan, len(found))
	for _, p := range found {
		byId[p.Id] = p
	}

	plans := make([]*entity.Plan, 0, len(ids))
	for _, id := range ids {
		p, ok := byId[id]
		if !ok {
			return nil, ErrPlanNotFound.Wrap(fmt.Errorf("plan %s", id))
		}
		plans = append(plans, p)
	}

	metricUnits := map[string]string{}
	var metricNames []string
	featureSet := map[string]bool{}
	var features []string
	for _, p := range plans {
		for _, l := range p.Limits {
			if _, seen := metricUnits[l.MetricName]; !seen {
				metricNames = append(metricNames, l.MetricName)
			}
			metricUnits[l.MetricName] = l.Unit
		}
		for _, f := range p.Features {
			if !featureSet[f] {
				featureSet[f] = true
				features = append(features, f)
			}
		}
	}
	sort.Strings(metricNames)

	res := &dto.PlanComparisonResponse{
		Plans:        make([]*dto.PlanResponse, 0, len(plans)),
		Metrics:      make([]dto.PlanComparisonRow, 0, len(metricNames)),
		PriceDeltas:  make([]decimal.Decimal, 0, len(plans)),
		FeatureUnion: features,
	}
	base := plans[0].MonthlyPrice()
	for _, p := range plans {
		res.Plans = append(res.Plans, toPlanResponse(p))
		res.PriceDeltas = append(res.PriceDeltas, p.MonthlyPrice().Sub(base).Round(2))
	}
	for _, name := range metricNames {
		row := dto.PlanComparisonRow{MetricName: name, Unit: metricUnits[name]}
		for _, p := range plans {
			var value int64
			if l := p.FindLimit(name); l != nil {
				value = l.MaxValue
			}
			row.Values = append(row.Values, value)
		}
		res.Metrics = append(res.Metrics, row)
	}
	return res, nil
}

func (s *planService) GetRecommendedPlan(ctx context.Context, req *dto.RecommendPlanRequest) ([]dto.PlanRecommendation, error) {
	plans, err := s.availablePlans(ctx)
	if err != nil {
		return nil, err
	}

	recs := make([]dto.PlanRecommendation, 0, len(plans))
	for _, p := range plans {
		score, overages := ScorePlan(p, req.Usage)
		recs = append(recs, dto.PlanRecommendation{
			Plan:     toPlanResponse(p),
			Score:    score,
			Overages: overages,
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Score.Equal(recs[j].Score) {
			return recs[i].Score.GreaterThan(recs[j].Score)
		}
		return recs[i].Plan.Price.LessThan(recs[j].Plan.Price)
	})
	return recs, nil
}

var (
	scoreWithin    = decimal.NewFromInt(10)
	scoreOverage   = decimal.NewFromInt(20)
	scorePriceBase = decimal.NewFromInt(1000)
	scorePriceDiv  = decimal.NewFromInt(100)
)

// ScorePlan ranks a plan against observed usage. Each metric within its limit
// adds value/limit*10 (an unlimited metric adds the full 10), each metric over
// its limit subtracts 20, and (1000-price)/100 rewards cheaper plans. Only the
// final score is clamped at zero.
func ScorePlan(plan *entity.Plan, usage map[string]decimal.Decimal) (decimal.Decimal, []string) {
	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)

	score := decimal.Zero
	overages := []string{}
	for _, name := range names {
		value := usage[name]
		limit := plan.FindLimit(name)
		if limit == nil {
			continue
		}
		if limit.IsUnlimited() {
			score = score.Add(scoreWithin)
			continue
		}

		ceiling := decimal.NewFromInt(limit.MaxValue)
		if value.GreaterThan(ceiling) {
			score = score.Sub(scoreOverage)
			overages = append(overages, fmt.Sprintf("%s: %s exceeds limit %d %s", name, value.String(), limit.MaxValue, limit.Unit))
			continue
		}
		if limit.MaxValue > 0 {
			score = score.Add(value.Div(ceiling).Mul(scoreWithin))
		}
	}

	score = score.Add(scorePriceBase.Sub(plan.Price).Div(scorePriceDiv))
	if score.IsNegative() {
		score = decimal.Zero
	}
	return score.Round(2), overages
}

func validateTaxRate(v *apperror.Collector, rate decimal.Decimal) {
	v.Check(!rate.IsNegative() && rate.LessThan(decimal.NewFromInt(1)), "tax_rate must be a fraction between 0 and 1")
}

func limitsFromRequest(v *apperror.Collector, reqs []dto.PlanLimitRequest) []entity.PlanLimit {
	seen := map[string]bool{}
	limits := make([]entity.PlanLimit, 0, len(reqs))
	for _, l := range reqs {
		if seen[l.MetricName] {
			v.Add(fmt.Sprintf("duplicate limit for metric %q", l.MetricName))
		}
		seen[l.MetricName] = true
		v.Check(l.MaxValue >= entity.UnlimitedLimit, fmt.Sprintf("limit for %q must be -1 (unlimited) or a non-negative number", l.MetricName))
		v.Check(!l.OverageRate.IsNegative(), fmt.Sprintf("overage rate for %q must not be negative", l.MetricName))

		limits = append(limits, entity.PlanLimit{
			Id:          uuid.New(),
			MetricName:  l.MetricName,
			MaxValue:    l.MaxValue,
			Unit:        l.Unit,
			IsSoftLimit: l.IsSoftLimit,
			OverageRate: l.OverageRate,
		})
	}
	return limits
}
