package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TrackUsageRequest struct {
	MetricName        string                 `json:"metric_name" validate:"required,max=100"`
	Value             decimal.Decimal        `json:"value"`
	IsBillableOverage bool                   `json:"is_billable_overage"`
	PeriodStart       *time.Time             `json:"period_start,omitempty"`
	PeriodEnd         *time.Time             `json:"period_end,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

type UsageMetricResponse struct {
	Id                uuid.UUID       `json:"id"`
	TenantId          uuid.UUID       `json:"tenant_id"`
	MetricName        string          `json:"metric_name"`
	MetricValue       decimal.Decimal `json:"metric_value"`
	IsBillableOverage bool            `json:"is_billable_overage"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	RecordedAt        time.Time       `json:"recorded_at"`
}

type MetricUsageResponse struct {
	MetricName  string          `json:"metric_name"`
	Current     decimal.Decimal `json:"current"`
	Limit       int64           `json:"limit"` // -1 = unlimited
	Unit        string          `json:"unit,omitempty"`
	Unlimited   bool            `json:"unlimited"`
	PercentUsed float64         `json:"percent_used"`
}

type UsageOverageResponse struct {
	MetricName  string          `json:"metric_name"`
	Current     decimal.Decimal `json:"current"`
	Limit       int64           `json:"limit"`
	Overage     decimal.Decimal `json:"overage"`
	Unit        string          `json:"unit,omitempty"`
	IsSoftLimit bool            `json:"is_soft_limit"`
	Charge      decimal.Decimal `json:"charge"`
}

type UsageCheckResponse struct {
	SubscriptionId uuid.UUID              `json:"subscription_id"`
	PeriodStart    time.Time              `json:"period_start"`
	PeriodEnd      time.Time              `json:"period_end"`
	WithinLimits   bool                   `json:"within_limits"`
	Usage          []MetricUsageResponse  `json:"usage"`
	Overages       []UsageOverageResponse `json:"overages"`
}

type OverageChargesResponse struct {
	TenantId uuid.UUID       `json:"tenant_id"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Amount   decimal.Decimal `json:"amount"`
}

type MetricSummary struct {
	MetricName string          `json:"metric_name"`
	Total      decimal.Decimal `json:"total"`
	Average    decimal.Decimal `json:"average"`
	Peak       decimal.Decimal `json:"peak"`
	Records    int             `json:"records"`
}

type UsageAnalyticsResponse struct {
	Period  string          `json:"period"`
	Start   time.Time       `json:"start"`
	End     time.Time       `json:"end"`
	Metrics []MetricSummary `json:"metrics"`
}

type UsageTrendPoint struct {
	Bucket time.Time       `json:"bucket"`
	Value  decimal.Decimal `json:"value"`
}

type UsageTrendResponse struct {
	MetricName  string            `json:"metric_name"`
	Period      string            `json:"period"`
	Granularity string            `json:"granularity"` // day | week
	Points      []UsageTrendPoint `json:"points"`
}
