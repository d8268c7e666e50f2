package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UsageMetric struct {
	Id                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantId          uuid.UUID       `gorm:"type:uuid;not null;index:idx_usage_tenant_metric"`
	MetricName        string          `gorm:"type:varchar(100);not null;index:idx_usage_tenant_metric"`
	MetricValue       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	IsBillableOverage bool            `gorm:"not null;index"`
	PeriodStart       time.Time       `gorm:"not null;index"`
	PeriodEnd         time.Time       `gorm:"not null"`
	Metadata          datatypes.JSON  `gorm:"type:json"`
	RecordedAt        time.Time       `gorm:"not null"`
}

func (UsageMetric) TableName() string {
	return "usage_metrics"
}

func (m *UsageMetric) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.Id)
	return nil
}
