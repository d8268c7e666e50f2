package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentTransaction struct {
	Id                    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceId             uuid.UUID       `gorm:"type:uuid;not null;index"`
	TenantId              uuid.UUID       `gorm:"type:uuid;not null;index"`
	ParentTransactionId   *uuid.UUID      `gorm:"type:uuid;index"`
	Type                  string          `gorm:"type:varchar(20);not null"`
	Amount                decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency              string          `gorm:"type:varchar(3);not null"`
	Status                string          `gorm:"type:varchar(20);not null;index"`
	Provider              string          `gorm:"type:varchar(20);not null"`
	ProviderTransactionId string          `gorm:"type:varchar(255);index"`
	PaymentMethod         string          `gorm:"type:varchar(50)"`
	IdempotencyKey        string          `gorm:"type:varchar(255);not null;uniqueIndex"`
	FailureReason         string          `gorm:"type:text"`
	RedirectUrl           string          `gorm:"type:text"`
	RawResponse           datatypes.JSON  `gorm:"type:json"`
	CreatedAt             time.Time       `gorm:"autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.Id)
	return nil
}

type PaymentMethod struct {
	Id                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantId           uuid.UUID `gorm:"type:uuid;not null;index"`
	Type               string    `gorm:"type:varchar(20);not null"`
	Provider           string    `gorm:"type:varchar(20);not null"`
	ProviderMethodId   string    `gorm:"type:varchar(255);not null"`
	ProviderCustomerId string    `gorm:"type:varchar(255)"`
	CardBrand          string    `gorm:"type:varchar(50)"`
	CardLast4          string    `gorm:"type:varchar(4)"`
	ExpMonth           int
	ExpYear            int
	BankName           string    `gorm:"type:varchar(100)"`
	AccountLast4       string    `gorm:"type:varchar(4)"`
	IsDefault          bool      `gorm:"not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

func (PaymentMethod) TableName() string {
	return "payment_methods"
}

func (m *PaymentMethod) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.Id)
	return nil
}
