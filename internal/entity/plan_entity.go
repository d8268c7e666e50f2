package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalYearly  BillingInterval = "yearly"
)

// UnlimitedLimit marks a PlanLimit without a ceiling.
const UnlimitedLimit int64 = -1

func (b BillingInterval) IsValid() bool {
	return b == BillingIntervalMonthly || b == BillingIntervalYearly
}

// PeriodDays is the length of one billing period. Periods are fixed-length,
// not calendar months.
func (b BillingInterval) PeriodDays() int {
	if b == BillingIntervalYearly {
		return 365
	}
	return 30
}

type Plan struct {
	Id              uuid.UUID
	Name            string
	Description     string
	Price           decimal.Decimal
	Currency        string
	BillingInterval BillingInterval
	TrialDays       int
	TaxRate         decimal.Decimal
	Features        []string
	IsActive        bool
	SortOrder       int
	Limits          []PlanLimit
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PlanLimit struct {
	Id          uuid.UUID
	PlanId      uuid.UUID
	MetricName  string
	MaxValue    int64
	Unit        string
	IsSoftLimit bool
	OverageRate decimal.Decimal
}

func (l PlanLimit) IsUnlimited() bool {
	return l.MaxValue == UnlimitedLimit
}

func (p *Plan) FindLimit(metric string) *PlanLimit {
	for i := range p.Limits {
		if p.Limits[i].MetricName == metric {
			return &p.Limits[i]
		}
	}
	return nil
}

// MonthlyPrice normalizes the plan price to one month, used for MRR.
func (p *Plan) MonthlyPrice() decimal.Decimal {
	if p.BillingInterval == BillingIntervalYearly {
		return p.Price.Div(decimal.NewFromInt(12))
	}
	return p.Price
}
