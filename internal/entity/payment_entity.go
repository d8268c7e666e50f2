package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentProvider string
type TransactionStatus string
type TransactionType string
type PaymentMethodType string

const (
	PaymentProviderMidtrans PaymentProvider = "midtrans"
	PaymentProviderStripe   PaymentProvider = "stripe"

	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusExpired    TransactionStatus = "expired"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusRefunded   TransactionStatus = "refunded"

	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"

	PaymentMethodCard         PaymentMethodType = "card"
	PaymentMethodBankTransfer PaymentMethodType = "bank_transfer"
	PaymentMethodEWallet      PaymentMethodType = "ewallet"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {
		TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusExpired, TransactionStatusCancelled,
	},
	TransactionStatusProcessing: {
		TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusExpired, TransactionStatusCancelled,
	},
	TransactionStatusCompleted: {TransactionStatusRefunded},
}

func (p PaymentProvider) IsValid() bool {
	return p == PaymentProviderMidtrans || p == PaymentProviderStripe
}

func (s TransactionStatus) IsFinal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusExpired,
		TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}

func (t PaymentMethodType) IsValid() bool {
	switch t {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodEWallet:
		return true
	}
	return false
}

type PaymentTransaction struct {
	Id                    uuid.UUID
	InvoiceId             uuid.UUID
	TenantId              uuid.UUID
	ParentTransactionId   *uuid.UUID
	Type                  TransactionType
	Amount                decimal.Decimal
	Currency              string
	Status                TransactionStatus
	Provider              PaymentProvider
	ProviderTransactionId string
	PaymentMethod         string
	IdempotencyKey        string
	FailureReason         string
	RedirectUrl           string
	RawResponse           map[string]interface{}
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (t *PaymentTransaction) CanTransitionTo(next TransactionStatus) error {
	return checkTransition("payment transaction", transactionTransitions, t.Status, next)
}

func (t *PaymentTransaction) TransitionTo(next TransactionStatus) error {
	if err := t.CanTransitionTo(next); err != nil {
		return err
	}
	t.Status = next
	return nil
}

type PaymentMethod struct {
	Id                 uuid.UUID
	TenantId           uuid.UUID
	Type               PaymentMethodType
	Provider           PaymentProvider
	ProviderMethodId   string
	ProviderCustomerId string
	CardBrand          string
	CardLast4          string
	ExpMonth           int
	ExpYear            int
	BankName           string
	AccountLast4       string
	IsDefault          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
