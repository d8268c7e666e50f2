package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Invoice struct {
	Id                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantId          uuid.UUID       `gorm:"type:uuid;not null;index"`
	SubscriptionId    *uuid.UUID      `gorm:"type:uuid;index"`
	BillingCycleId    *uuid.UUID      `gorm:"type:uuid;index"`
	OriginalInvoiceId *uuid.UUID      `gorm:"type:uuid;index"`
	InvoiceNumber     string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	IdempotencyKey    *string         `gorm:"type:varchar(255);uniqueIndex"`
	Status            string          `gorm:"type:varchar(20);not null;index"`
	IssuedDate        time.Time       `gorm:"not null"`
	DueDate           time.Time       `gorm:"not null;index"`
	PaidDate          *time.Time
	Subtotal          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxAmount         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	PaymentProvider   string          `gorm:"type:varchar(20)"`
	PaymentMethod     string          `gorm:"type:varchar(50)"`
	ExternalId        string          `gorm:"type:varchar(255)"`
	CustomerName      string          `gorm:"type:varchar(255)"`
	CustomerEmail     string          `gorm:"type:varchar(255)"`
	CustomerAddress   string          `gorm:"type:text"`
	Notes             string          `gorm:"type:text"`
	Metadata          datatypes.JSON  `gorm:"type:json"`
	CreatedAt         time.Time       `gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime"`

	Items []*InvoiceItem `gorm:"foreignKey:InvoiceId"`
}

func (Invoice) TableName() string {
	return "invoices"
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.Id)
	return nil
}

type InvoiceItem struct {
	Id          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceId   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Type        string          `gorm:"type:varchar(20);not null"`
	Description string          `gorm:"type:text;not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	SortOrder   int             `gorm:"not null"`
}

func (InvoiceItem) TableName() string {
	return "invoice_items"
}

func (i *InvoiceItem) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.Id)
	return nil
}
