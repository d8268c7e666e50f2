package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProcessPaymentRequest struct {
	Provider        string     `json:"provider" validate:"required,oneof=midtrans stripe"`
	PaymentMethodId *uuid.UUID `json:"payment_method_id,omitempty"`
}

type RefundPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"` // defaults to the full amount
	Reason string           `json:"reason" validate:"required,max=500"`
}

type PaymentTransactionResponse struct {
	Id                    uuid.UUID       `json:"id"`
	InvoiceId             uuid.UUID       `json:"invoice_id"`
	ParentTransactionId   *uuid.UUID      `json:"parent_transaction_id,omitempty"`
	Type                  string          `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                string          `json:"status"`
	Provider              string          `json:"provider"`
	ProviderTransactionId string          `json:"provider_transaction_id,omitempty"`
	PaymentMethod         string          `json:"payment_method,omitempty"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	RedirectUrl           string          `json:"redirect_url,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

type ListTransactionsRequest struct {
	InvoiceId uuid.UUID `query:"-"` // parsed by the controller
	Status    string    `query:"status" validate:"omitempty,oneof=pending processing completed failed expired cancelled refunded"`
	Page      int       `query:"page"`
	PageSize  int       `query:"page_size"`
}

type AddPaymentMethodRequest struct {
	Provider     string `json:"provider" validate:"required,oneof=midtrans stripe"`
	Type         string `json:"type" validate:"required,oneof=card bank_transfer ewallet"`
	Token        string `json:"token" validate:"required_if=Type card"`
	Email        string `json:"email" validate:"omitempty,email"`
	BankName     string `json:"bank_name"`
	AccountLast4 string `json:"account_last4" validate:"omitempty,len=4,numeric"`
	MakeDefault  bool   `json:"make_default"`
}

type PaymentMethodResponse struct {
	Id           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Provider     string    `json:"provider"`
	CardBrand    string    `json:"card_brand,omitempty"`
	CardLast4    string    `json:"card_last4,omitempty"`
	ExpMonth     int       `json:"exp_month,omitempty"`
	ExpYear      int       `json:"exp_year,omitempty"`
	BankName     string    `json:"bank_name,omitempty"`
	AccountLast4 string    `json:"account_last4,omitempty"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

type WebhookResponse struct {
	Provider      string     `json:"provider"`
	EventType     string     `json:"event_type"`
	TransactionId *uuid.UUID `json:"transaction_id,omitempty"`
	Status        string     `json:"status,omitempty"`
	Applied       bool       `json:"applied"`
}

type TransactionListResponse struct {
	Transactions []*PaymentTransactionResponse `json:"transactions"`
	Total        int64                         `json:"total"`
	Page         int                           `json:"page"`
	PageSize     int                           `json:"page_size"`
}
