package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Plan struct {
	Id              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name            string          `gorm:"type:varchar(255);not null"`
	Description     string          `gorm:"type:text"`
	Price           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency        string          `gorm:"type:varchar(3);not null"`
	BillingInterval string          `gorm:"type:varchar(20);not null"`
	TrialDays       int             `gorm:"not null"`
	TaxRate         decimal.Decimal `gorm:"type:decimal(5,4);not null"`
	Features        datatypes.JSON  `gorm:"type:json"`
	IsActive        bool            `gorm:"not null;index"`
	SortOrder       int             `gorm:"not null"`
	CreatedAt       time.Time       `gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime"`

	Limits []*PlanLimit `gorm:"foreignKey:PlanId"`
}

func (Plan) TableName() string {
	return "plans"
}

func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.Id)
	return nil
}

type PlanLimit struct {
	Id          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PlanId      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_plan_limit_metric"`
	MetricName  string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_plan_limit_metric"`
	MaxValue    int64           `gorm:"not null"` // -1 = unlimited
	Unit        string          `gorm:"type:varchar(50)"`
	IsSoftLimit bool            `gorm:"not null"`
	OverageRate decimal.Decimal `gorm:"type:decimal(12,4);not null"`
}

func (PlanLimit) TableName() string {
	return "plan_limits"
}

func (l *PlanLimit) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.Id)
	return nil
}
