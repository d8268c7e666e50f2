package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Subscription struct {
	Id                 uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantId           uuid.UUID  `gorm:"type:uuid;not null;index"`
	PlanId             uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status             string     `gorm:"type:varchar(20);not null;index"`
	TrialEndsAt        *time.Time
	StartedAt          time.Time  `gorm:"not null"`
	CurrentPeriodStart time.Time  `gorm:"not null"`
	CurrentPeriodEnd   time.Time  `gorm:"not null;index"`
	CancelAtPeriodEnd  bool       `gorm:"not null"`
	CancelledAt        *time.Time
	CancellationReason string     `gorm:"type:text"`
	PendingPlanId      *uuid.UUID `gorm:"type:uuid"`
	PlanChangeDate     *time.Time `gorm:"index"`
	PaymentMethodId    *uuid.UUID `gorm:"type:uuid;index"`
	Version            int64      `gorm:"not null"`
	CreatedAt          time.Time  `gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.Id)
	return nil
}
