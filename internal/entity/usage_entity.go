package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LegacyOveragePrefix is still honoured by TrackUsage so that older emitters
// that encode billability in the metric name keep working.
const LegacyOveragePrefix = "overage_"

type UsageMetric struct {
	Id                uuid.UUID
	TenantId          uuid.UUID
	MetricName        string
	MetricValue       decimal.Decimal
	IsBillableOverage bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
	Metadata          map[string]interface{}
	RecordedAt        time.Time
}

type MetricUsage struct {
	MetricName  string
	Current     decimal.Decimal
	Limit       int64
	Unit        string
	Unlimited   bool
	PercentUsed float64
}

type UsageOverage struct {
	MetricName  string
	Current     decimal.Decimal
	Limit       int64
	Overage     decimal.Decimal
	Unit        string
	IsSoftLimit bool
	Charge      decimal.Decimal
}

type UsageCheckResult struct {
	SubscriptionId uuid.UUID
	PeriodStart    time.Time
	PeriodEnd      time.Time
	WithinLimits   bool
	Usage          []MetricUsage
	Overages       []UsageOverage
}
