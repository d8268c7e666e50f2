package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hq-billing-be/internal/entity"
	"hq-billing-be/pkg/billing/money"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeGateway holds its own API client, so gateways built with
// different keys never share state.
type StripeGateway struct {
	client        *stripe.Client
	webhookSecret string
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	return &StripeGateway{
		client:        stripe.NewClient(cfg.SecretKey),
		webhookSecret: cfg.WebhookSecret,
	}
}

func (g *StripeGateway) Provider() entity.PaymentProvider {
	return entity.PaymentProviderStripe
}

func (g *StripeGateway) SupportsCurrency(currency string) bool {
	return len(currency) == 3
}

func (g *StripeGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if req.PaymentMethodType != "" && req.PaymentMethodType != entity.PaymentMethodCard {
		return nil, ErrUnsupportedMethod
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:      stripe.Int64(money.ToMinorUnits(req.Amount, req.Currency)),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
	}
	params.AddMetadata("order_id", req.OrderId)
	if req.ProviderCustomerId != "" {
		params.Customer = stripe.String(req.ProviderCustomerId)
	}
	if req.ProviderMethodId != "" {
		params.PaymentMethod = stripe.String(req.ProviderMethodId)
		params.Confirm = stripe.Bool(true)
		params.OffSession = stripe.Bool(true)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := call(ctx, func() (*stripe.PaymentIntent, error) {
		return g.client.V1PaymentIntents.Create(ctx, params)
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return &ChargeResult{
				Status:        entity.TransactionStatusFailed,
				FailureReason: stripeErr.Msg,
			}, nil
		}
		return nil, fmt.Errorf("stripe charge: %w", err)
	}

	result := &ChargeResult{
		ProviderTransactionId: pi.ID,
		Status:                MapStripeIntentStatus(pi.Status),
		Raw: map[string]interface{}{
			"id":            pi.ID,
			"status":        string(pi.Status),
			"client_secret": pi.ClientSecret,
		},
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		result.RedirectUrl = pi.NextAction.RedirectToURL.URL
	}
	if pi.LastPaymentError != nil {
		result.FailureReason = pi.LastPaymentError.Msg
	}
	return result, nil
}

func (g *StripeGateway) QueryStatus(ctx context.Context, req *StatusRequest) (*StatusResult, error) {
	if req.ProviderTransactionId == "" {
		return nil, fmt.Errorf("stripe status: provider transaction id is required")
	}
	pi, err := call(ctx, func() (*stripe.PaymentIntent, error) {
		return g.client.V1PaymentIntents.Retrieve(ctx, req.ProviderTransactionId, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("stripe status: %w", err)
	}
	return &StatusResult{
		ProviderTransactionId: pi.ID,
		Status:                MapStripeIntentStatus(pi.Status),
		Raw: map[string]interface{}{
			"id":     pi.ID,
			"status": string(pi.Status),
		},
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.ProviderTransactionId),
		Amount:        stripe.Int64(money.ToMinorUnits(req.Amount, req.Currency)),
	}
	params.AddMetadata("order_id", req.OrderId)
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.RefundKey != "" {
		params.SetIdempotencyKey(req.RefundKey)
	}

	r, err := call(ctx, func() (*stripe.Refund, error) {
		return g.client.V1Refunds.Create(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("stripe refund: %w", err)
	}

	status := entity.TransactionStatusProcessing
	switch r.Status {
	case stripe.RefundStatusSucceeded:
		status = entity.TransactionStatusCompleted
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		status = entity.TransactionStatusFailed
	}
	return &RefundResult{
		ProviderRefundId: r.ID,
		Status:           status,
		Raw: map[string]interface{}{
			"id":     r.ID,
			"status": string(r.Status),
		},
	}, nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, req *AttachRequest) (*AttachResult, error) {
	if req.Type != entity.PaymentMethodCard {
		return nil, ErrUnsupportedMethod
	}

	customerID := req.ProviderCustomerId
	if customerID == "" {
		c, err := call(ctx, func() (*stripe.Customer, error) {
			params := &stripe.CustomerCreateParams{Email: stripe.String(req.CustomerEmail)}
			params.AddMetadata("tenant_id", req.TenantId)
			return g.client.V1Customers.Create(ctx, params)
		})
		if err != nil {
			return nil, fmt.Errorf("stripe customer: %w", err)
		}
		customerID = c.ID
	}

	pm, err := call(ctx, func() (*stripe.PaymentMethod, error) {
		return g.client.V1PaymentMethods.Attach(ctx, req.Token, &stripe.PaymentMethodAttachParams{
			Customer: stripe.String(customerID),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("stripe attach: %w", err)
	}

	result := &AttachResult{
		ProviderMethodId:   pm.ID,
		ProviderCustomerId: customerID,
	}
	if pm.Card != nil {
		result.CardBrand = string(pm.Card.Brand)
		result.CardLast4 = pm.Card.Last4
		result.ExpMonth = int(pm.Card.ExpMonth)
		result.ExpYear = int(pm.Card.ExpYear)
	}
	return result, nil
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, method *entity.PaymentMethod) error {
	_, err := call(ctx, func() (*stripe.PaymentMethod, error) {
		return g.client.V1PaymentMethods.Detach(ctx, method.ProviderMethodId, nil)
	})
	if err != nil {
		return fmt.Errorf("stripe detach: %w", err)
	}
	return nil
}

func (g *StripeGateway) VerifyAndParseWebhook(ctx context.Context, payload []byte, headers map[string]string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header(headers, "Stripe-Signature"), g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookVerification, err)
	}

	raw := map[string]interface{}{}
	_ = json.Unmarshal(event.Data.Raw, &raw)

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled", "payment_intent.processing":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		status := MapStripeIntentStatus(pi.Status)
		currency := strings.ToUpper(string(pi.Currency))
		out := &WebhookEvent{
			Provider:              entity.PaymentProviderStripe,
			EventType:             EventTypeFor(status),
			OrderId:               pi.Metadata["order_id"],
			ProviderTransactionId: pi.ID,
			Status:                status,
			Amount:                money.FromMinorUnits(pi.Amount, currency),
			Currency:              currency,
			Raw:                   raw,
		}
		if pi.LastPaymentError != nil {
			out.FailureReason = pi.LastPaymentError.Msg
		}
		if event.Type == "payment_intent.payment_failed" {
			out.Status = entity.TransactionStatusFailed
			out.EventType = EventPaymentFailed
		}
		return out, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		currency := strings.ToUpper(string(ch.Currency))
		out := &WebhookEvent{
			Provider:       entity.PaymentProviderStripe,
			EventType:      EventPaymentRefunded,
			OrderId:        ch.Metadata["order_id"],
			Status:         entity.TransactionStatusRefunded,
			Amount:         money.FromMinorUnits(ch.Amount, currency),
			Currency:       currency,
			RefundedAmount: money.FromMinorUnits(ch.AmountRefunded, currency),
			Raw:            raw,
		}
		// charge.refunded fires for every refund, not only the last one.
		if !ch.Refunded && ch.AmountRefunded < ch.Amount {
			out.EventType = EventPaymentPartiallyRefunded
			out.Status = entity.TransactionStatusCompleted
		}
		if ch.PaymentIntent != nil {
			out.ProviderTransactionId = ch.PaymentIntent.ID
		}
		return out, nil
	}

	return &WebhookEvent{
		Provider:  entity.PaymentProviderStripe,
		EventType: string(event.Type),
		Amount:    decimal.Zero,
		Raw:       raw,
	}, nil
}

func MapStripeIntentStatus(status stripe.PaymentIntentStatus) entity.TransactionStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return entity.TransactionStatusCompleted
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return entity.TransactionStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return entity.TransactionStatusCancelled
	default:
		return entity.TransactionStatusPending
	}
}
