// Package gateway adapts external payment providers to one capability interface.
package gateway

import (
	"context"
	"errors"
	"sort"
	"strings"

	"hq-billing-be/internal/entity"

	"github.com/shopspring/decimal"
)

var (
	ErrGatewayNotFound     = errors.New("payment gateway not found")
	ErrWebhookVerification = errors.New("webhook verification failed")
	ErrInvalidWebhook      = errors.New("invalid webhook payload")
	ErrUnsupportedMethod   = errors.New("payment method type not supported by provider")
	ErrProviderTimeout     = errors.New("payment provider did not respond in time")
	ErrUnsupportedCurrency = errors.New("currency not supported by provider")
)

// Normalized webhook event types.
const (
	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventPaymentRefunded = "payment.refunded"
	EventPaymentPending  = "payment.pending"

	// The payment stays settled; RefundedAmount carries the running total.
	EventPaymentPartiallyRefunded = "payment.partially_refunded"
)

// PaymentGateway is what the billing engine needs from a payment provider.
type PaymentGateway interface {
	Provider() entity.PaymentProvider
	SupportsCurrency(currency string) bool

	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	QueryStatus(ctx context.Context, req *StatusRequest) (*StatusResult, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	AttachPaymentMethod(ctx context.Context, req *AttachRequest) (*AttachResult, error)
	DetachPaymentMethod(ctx context.Context, method *entity.PaymentMethod) error

	// VerifyAndParseWebhook authenticates the payload before decoding it.
	VerifyAndParseWebhook(ctx context.Context, payload []byte, headers map[string]string) (*WebhookEvent, error)
}

type ChargeRequest struct {
	// OrderId is our transaction id; providers echo it back in webhooks.
	OrderId            string
	IdempotencyKey     string
	Amount             decimal.Decimal
	Currency           string
	Description        string
	CustomerName       string
	CustomerEmail      string
	PaymentMethodType  entity.PaymentMethodType
	ProviderMethodId   string
	ProviderCustomerId string
}

type ChargeResult struct {
	ProviderTransactionId string
	Status                entity.TransactionStatus
	RedirectUrl           string
	FailureReason         string
	Raw                   map[string]interface{}
}

type StatusRequest struct {
	OrderId               string
	ProviderTransactionId string
}

type StatusResult struct {
	ProviderTransactionId string
	Status                entity.TransactionStatus
	Raw                   map[string]interface{}
}

type RefundRequest struct {
	OrderId               string
	ProviderTransactionId string
	RefundKey             string
	Amount                decimal.Decimal
	Currency              string
	Reason                string
}

type RefundResult struct {
	ProviderRefundId string
	Status           entity.TransactionStatus
	Raw              map[string]interface{}
}

type AttachRequest struct {
	TenantId           string
	Type               entity.PaymentMethodType
	Token              string
	ProviderCustomerId string
	CustomerEmail      string
	BankName           string
	AccountLast4       string
}

type AttachResult struct {
	ProviderMethodId   string
	ProviderCustomerId string
	CardBrand          string
	CardLast4          string
	ExpMonth           int
	ExpYear            int
}

type WebhookEvent struct {
	Provider              entity.PaymentProvider
	EventType             string
	OrderId               string
	ProviderTransactionId string
	Status                entity.TransactionStatus
	Amount                decimal.Decimal
	Currency              string
	FailureReason         string
	Raw                   map[string]interface{}

	// RefundedAmount is the total the provider has refunded on the payment
	// so far. Set on refund events only.
	RefundedAmount decimal.Decimal
}

// IsRefund reports whether the event is about money returned on a payment.
func (e *WebhookEvent) IsRefund() bool {
	return e.EventType == EventPaymentRefunded || e.EventType == EventPaymentPartiallyRefunded
}

// EventTypeFor maps a transaction status to the normalized webhook event type.
func EventTypeFor(status entity.TransactionStatus) string {
	switch status {
	case entity.TransactionStatusCompleted:
		return EventPaymentSuccess
	case entity.TransactionStatusFailed, entity.TransactionStatusExpired, entity.TransactionStatusCancelled:
		return EventPaymentFailed
	case entity.TransactionStatusRefunded:
		return EventPaymentRefunded
	default:
		return EventPaymentPending
	}
}

// Manager selects a gateway by the provider tag persisted on transactions.
type Manager struct {
	gateways map[entity.PaymentProvider]PaymentGateway
}

func NewManager(gateways ...PaymentGateway) *Manager {
	m := &Manager{gateways: make(map[entity.PaymentProvider]PaymentGateway)}
	for _, g := range gateways {
		m.Register(g)
	}
	return m
}

func (m *Manager) Register(gateway PaymentGateway) {
	m.gateways[gateway.Provider()] = gateway
}

func (m *Manager) Get(provider entity.PaymentProvider) (PaymentGateway, error) {
	gateway, ok := m.gateways[provider]
	if !ok {
		return nil, ErrGatewayNotFound
	}
	return gateway, nil
}

func (m *Manager) List() []entity.PaymentProvider {
	providers := make([]entity.PaymentProvider, 0, len(m.gateways))
	for provider := range m.gateways {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// call runs a blocking SDK call and gives up when ctx expires. The SDKs used
// here do not all accept a context, so the call keeps running in the
// background after a timeout; its result is discarded.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrProviderTimeout
		}
		return zero, ctx.Err()
	}
}

// header looks a header up case-insensitively.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
