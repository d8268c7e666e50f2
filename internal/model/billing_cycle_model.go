package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BillingCycle struct {
	Id             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SubscriptionId uuid.UUID       `gorm:"type:uuid;not null;index"`
	Kind           string          `gorm:"type:varchar(30);not null"`
	PeriodStart    time.Time       `gorm:"not null"`
	PeriodEnd      time.Time       `gorm:"not null"`
	BaseAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OverageAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	DueDate        time.Time       `gorm:"not null;index"`
	Status         string          `gorm:"type:varchar(20);not null;index"`
	IdempotencyKey string          `gorm:"type:varchar(255);not null;uniqueIndex"`
	ProcessedAt    *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (BillingCycle) TableName() string {
	return "billing_cycles"
}

func (c *BillingCycle) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.Id)
	return nil
}
