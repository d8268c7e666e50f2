package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceItemRequest struct {
	Type        string          `json:"type" validate:"required,oneof=subscription overage tax discount credit"`
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateInvoiceRequest struct {
	TenantId        uuid.UUID            `json:"tenant_id" validate:"required"`
	SubscriptionId  *uuid.UUID           `json:"subscription_id,omitempty"`
	Currency        string               `json:"currency" validate:"required,len=3"`
	DueDate         *time.Time           `json:"due_date,omitempty"`
	CustomerName    string               `json:"customer_name"`
	CustomerEmail   string               `json:"customer_email" validate:"omitempty,email"`
	CustomerAddress string               `json:"customer_address"`
	Notes           string               `json:"notes"`
	Items           []InvoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateInvoiceStatusRequest struct {
	Status   string                 `json:"status" validate:"required,oneof=draft sent paid overdue cancelled refunded"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type CreditNoteItemRequest struct {
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

type CreateCreditNoteRequest struct {
	Reason string                  `json:"reason" validate:"max=500"`
	Items  []CreditNoteItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ListInvoicesRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=draft sent paid overdue cancelled refunded"`
	Period   string `query:"period"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

type ExportInvoicesRequest struct {
	Format string `query:"format" validate:"required,oneof=csv pdf xlsx"`
	Status string `query:"status" validate:"omitempty,oneof=draft sent paid overdue cancelled refunded"`
	Period string `query:"period"`
}

type InvoiceItemResponse struct {
	Id          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

type InvoiceResponse struct {
	Id                uuid.UUID              `json:"id"`
	TenantId          uuid.UUID              `json:"tenant_id"`
	SubscriptionId    *uuid.UUID             `json:"subscription_id,omitempty"`
	BillingCycleId    *uuid.UUID             `json:"billing_cycle_id,omitempty"`
	OriginalInvoiceId *uuid.UUID             `json:"original_invoice_id,omitempty"`
	InvoiceNumber     string                 `json:"invoice_number"`
	Status            string                 `json:"status"`
	IssuedDate        time.Time              `json:"issued_date"`
	DueDate           time.Time              `json:"due_date"`
	PaidDate          *time.Time             `json:"paid_date,omitempty"`
	Subtotal          decimal.Decimal        `json:"subtotal"`
	TaxAmount         decimal.Decimal        `json:"tax_amount"`
	DiscountAmount    decimal.Decimal        `json:"discount_amount"`
	TotalAmount       decimal.Decimal        `json:"total_amount"`
	Currency          string                 `json:"currency"`
	PaymentProvider   string                 `json:"payment_provider,omitempty"`
	PaymentMethod     string                 `json:"payment_method,omitempty"`
	ExternalId        string                 `json:"external_id,omitempty"`
	CustomerName      string                 `json:"customer_name,omitempty"`
	CustomerEmail     string                 `json:"customer_email,omitempty"`
	CustomerAddress   string                 `json:"customer_address,omitempty"`
	Notes             string                 `json:"notes,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Items             []InvoiceItemResponse  `json:"items"`
	DaysOverdue       int                    `json:"days_overdue,omitempty"`
}

type InvoiceListResponse struct {
	Invoices []*InvoiceResponse `json:"invoices"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// ExportFile is a rendered invoice export ready to stream.
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

// InvoiceEmailMessage is the payload of the invoice mail queue.
type InvoiceEmailMessage struct {
	InvoiceId uuid.UUID `json:"invoice_id"`
	To        string    `json:"to"`
}
