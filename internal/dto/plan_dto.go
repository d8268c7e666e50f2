package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlanLimitRequest struct {
	MetricName  string          `json:"metric_name" validate:"required"`
	MaxValue    int64           `json:"max_value" validate:"gte=-1"` // -1 = unlimited
	Unit        string          `json:"unit"`
	IsSoftLimit bool            `json:"is_soft_limit"`
	OverageRate decimal.Decimal `json:"overage_rate"`
}

type CreatePlanRequest struct {
	Name            string             `json:"name" validate:"required"`
	Description     string             `json:"description"`
	Price           decimal.Decimal    `json:"price"`
	Currency        string             `json:"currency" validate:"required,len=3"`
	BillingInterval string             `json:"billing_interval" validate:"required,oneof=monthly yearly"`
	TrialDays       int                `json:"trial_days" validate:"gte=0"`
	TaxRate         decimal.Decimal    `json:"tax_rate"`
	Features        []string           `json:"features"`
	IsActive        *bool              `json:"is_active,omitempty"`
	SortOrder       int                `json:"sort_order"`
	Limits          []PlanLimitRequest `json:"limits" validate:"dive"`
}

// UpdatePlanRequest only touches the fields that are present.
type UpdatePlanRequest struct {
	Name            *string          `json:"name,omitempty" validate:"omitempty,min=1"`
	Description     *string          `json:"description,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	BillingInterval *string          `json:"billing_interval,omitempty" validate:"omitempty,oneof=monthly yearly"`
	TrialDays       *int             `json:"trial_days,omitempty" validate:"omitempty,gte=0"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
	Features        []string         `json:"features,omitempty"`
	IsActive        *bool            `json:"is_active,omitempty"`
	SortOrder       *int             `json:"sort_order,omitempty"`
}

type UpdatePlanLimitsRequest struct {
	Limits []PlanLimitRequest `json:"limits" validate:"dive"`
}

type PlanLimitResponse struct {
	MetricName  string          `json:"metric_name"`
	MaxValue    int64           `json:"max_value"`
	Unlimited   bool            `json:"unlimited"`
	Unit        string          `json:"unit"`
	IsSoftLimit bool            `json:"is_soft_limit"`
	OverageRate decimal.Decimal `json:"overage_rate"`
}

type PlanResponse struct {
	Id              uuid.UUID           `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	Price           decimal.Decimal     `json:"price"`
	Currency        string              `json:"currency"`
	BillingInterval string              `json:"billing_interval"`
	TrialDays       int                 `json:"trial_days"`
	TaxRate         decimal.Decimal     `json:"tax_rate"`
	Features        []string            `json:"features"`
	IsActive        bool                `json:"is_active"`
	SortOrder       int                 `json:"sort_order"`
	Limits          []PlanLimitResponse `json:"limits"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type ComparePlansRequest struct {
	PlanIds []uuid.UUID `query:"plan_ids" validate:"required,min=2"`
}

// PlanComparisonRow is one metric across the compared plans, in request order.
type PlanComparisonRow struct {
	MetricName string  `json:"metric_name"`
	Unit       string  `json:"unit,omitempty"`
	Values     []int64 `json:"values"` // -1 = unlimited, 0 = not included
}

type PlanComparisonResponse struct {
	Plans        []*PlanResponse     `json:"plans"`
	Metrics      []PlanComparisonRow `json:"metrics"`
	PriceDeltas  []decimal.Decimal   `json:"price_deltas"` // relative to the first plan
	FeatureUnion []string            `json:"feature_union"`
}

type RecommendPlanRequest struct {
	Usage map[string]decimal.Decimal `json:"usage" validate:"required"`
}

type PlanRecommendation struct {
	Plan     *PlanResponse   `json:"plan"`
	Score    decimal.Decimal `json:"score"`
	Overages []string        `json:"overages"`
}
