package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"hq-billing-be/internal/entity"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

type fakeSnap struct {
	lastReq *snap.Request
}

func (f *fakeSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	f.lastReq = req
	return &snap.Response{Token: "snap-token", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-token"}, nil
}

type fakeCore struct {
	charge  *coreapi.ChargeResponse
	status  *coreapi.TransactionStatusResponse
	refund  *coreapi.RefundResponse
	err     *midtrans.Error
	delay   time.Duration
	lastReq *coreapi.ChargeReq
}

func (f *fakeCore) ChargeTransaction(req *coreapi.ChargeReq) (*coreapi.ChargeResponse, *midtrans.Error) {
	f.lastReq = req
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	return f.charge, nil
}

func (f *fakeCore) CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakeCore) RefundTransaction(param string, req *coreapi.RefundReq) (*coreapi.RefundResponse, *midtrans.Error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.refund, nil
}

func midtransPayload(t *testing.T, serverKey, status, signature string) []byte {
	t.Helper()
	if signature == "" {
		signature = MidtransSignature("order-1", "200", "150000.00", serverKey)
	}
	body, err := json.Marshal(map[string]string{
		"order_id":           "order-1",
		"status_code":        "200",
		"gross_amount":       "150000.00",
		"signature_key":      signature,
		"transaction_id":     "mt-123",
		"transaction_status": status,
		"currency":           "idr",
	})
	require.NoError(t, err)
	return body
}

func TestMidtransWebhook(t *testing.T) {
	g := newMidtransGateway(MidtransConfig{ServerKey: "server-key"}, &fakeSnap{}, &fakeCore{})

	t.Run("valid signature settles", func(t *testing.T) {
		event, err := g.VerifyAndParseWebhook(context.Background(), midtransPayload(t, "server-key", "settlement", ""), nil)
		require.NoError(t, err)
		assert.Equal(t, EventPaymentSuccess, event.EventType)
		assert.Equal(t, entity.TransactionStatusCompleted, event.Status)
		assert.Equal(t, "order-1", event.OrderId)
		assert.Equal(t, "mt-123", event.ProviderTransactionId)
		assert.True(t, decimal.NewFromInt(150000).Equal(event.Amount))
		assert.Equal(t, "IDR", event.Currency)
	})

	t.Run("signature from another key is rejected", func(t *testing.T) {
		_, err := g.VerifyAndParseWebhook(context.Background(), midtransPayload(t, "other-key", "settlement", ""), nil)
		assert.ErrorIs(t, err, ErrWebhookVerification)
	})

	t.Run("tampered signature is rejected", func(t *testing.T) {
		_, err := g.VerifyAndParseWebhook(context.Background(), midtransPayload(t, "server-key", "settlement", "deadbeef"), nil)
		assert.ErrorIs(t, err, ErrWebhookVerification)
	})

	t.Run("expire maps to failure event", func(t *testing.T) {
		event, err := g.VerifyAndParseWebhook(context.Background(), midtransPayload(t, "server-key", "expire", ""), nil)
		require.NoError(t, err)
		assert.Equal(t, EventPaymentFailed, event.EventType)
		assert.Equal(t, entity.TransactionStatusExpired, event.Status)
	})

	t.Run("garbage body", func(t *testing.T) {
		_, err := g.VerifyAndParseWebhook(context.Background(), []byte("{"), nil)
		assert.ErrorIs(t, err, ErrInvalidWebhook)
	})

	refundPayload := func(t *testing.T, status string, extra map[string]interface{}) []byte {
		t.Helper()
		body := map[string]interface{}{
			"order_id":           "order-1",
			"status_code":        "200",
			"gross_amount":       "150000.00",
			"signature_key":      MidtransSignature("order-1", "200", "150000.00", "server-key"),
			"transaction_status": status,
			"currency":           "idr",
		}
		for k, v := range extra {
			body[k] = v
		}
		b, err := json.Marshal(body)
		require.NoError(t, err)
		return b
	}

	t.Run("partial refund keeps the payment settled", func(t *testing.T) {
		payload := refundPayload(t, "partial_refund", map[string]interface{}{"refund_amount": "50000.00"})
		event, err := g.VerifyAndParseWebhook(context.Background(), payload, nil)
		require.NoError(t, err)
		assert.Equal(t, EventPaymentPartiallyRefunded, event.EventType)
		assert.Equal(t, entity.TransactionStatusCompleted, event.Status)
		assert.True(t, event.IsRefund())
		assert.Equal(t, "50000", event.RefundedAmount.String())
	})

	t.Run("refund totals are summed from the refund list", func(t *testing.T) {
		payload := refundPayload(t, "partial_refund", map[string]interface{}{
			"refunds": []map[string]string{
				{"refund_amount": "20000.00", "refund_key": "r1"},
				{"refund_amount": "30000.00", "refund_key": "r2"},
			},
		})
		event, err := g.VerifyAndParseWebhook(context.Background(), payload, nil)
		require.NoError(t, err)
		assert.Equal(t, "50000", event.RefundedAmount.String())
	})

	t.Run("full refund without an amount covers the gross", func(t *testing.T) {
		event, err := g.VerifyAndParseWebhook(context.Background(), refundPayload(t, "refund", nil), nil)
		require.NoError(t, err)
		assert.Equal(t, EventPaymentRefunded, event.EventType)
		assert.Equal(t, entity.TransactionStatusRefunded, event.Status)
		assert.Equal(t, "150000", event.RefundedAmount.String())
	})
}

func TestMapMidtransStatus(t *testing.T) {
	tests := []struct {
		status, fraud string
		want          entity.TransactionStatus
	}{
		{"capture", "accept", entity.TransactionStatusCompleted},
		{"capture", "challenge", entity.TransactionStatusProcessing},
		{"capture", "deny", entity.TransactionStatusFailed},
		{"settlement", "", entity.TransactionStatusCompleted},
		{"pending", "", entity.TransactionStatusPending},
		{"deny", "", entity.TransactionStatusFailed},
		{"cancel", "", entity.TransactionStatusCancelled},
		{"expire", "", entity.TransactionStatusExpired},
		{"refund", "", entity.TransactionStatusRefunded},
		{"partial_refund", "", entity.TransactionStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.fraud, func(t *testing.T) {
			assert.Equal(t, tt.want, MapMidtransStatus(tt.status, tt.fraud))
		})
	}
}

func TestMidtransCharge(t *testing.T) {
	t.Run("without saved card opens snap checkout", func(t *testing.T) {
		s := &fakeSnap{}
		g := newMidtransGateway(MidtransConfig{ServerKey: "k", FinishURL: "https://billing.example/finish"}, s, &fakeCore{})

		res, err := g.Charge(context.Background(), &ChargeRequest{
			OrderId:      "tx-1",
			Amount:       decimal.RequireFromString("99000"),
			Currency:     "IDR",
			Description:  "Pro plan",
			CustomerName: "Ada Lovelace",
		})
		require.NoError(t, err)
		assert.Equal(t, entity.TransactionStatusPending, res.Status)
		assert.Equal(t, "snap-token", res.ProviderTransactionId)
		assert.NotEmpty(t, res.RedirectUrl)
		assert.Equal(t, int64(99000), s.lastReq.TransactionDetails.GrossAmt)
		assert.Equal(t, "Ada", s.lastReq.CustomerDetail.FName)
		assert.Equal(t, "https://billing.example/finish", s.lastReq.Callbacks.Finish)
	})

	t.Run("saved card goes through core api", func(t *testing.T) {
		c := &fakeCore{charge: &coreapi.ChargeResponse{
			TransactionID:     "mt-9",
			TransactionStatus: "capture",
			FraudStatus:       "accept",
		}}
		g := newMidtransGateway(MidtransConfig{ServerKey: "k"}, &fakeSnap{}, c)

		res, err := g.Charge(context.Background(), &ChargeRequest{
			OrderId:           "tx-2",
			Amount:            decimal.NewFromInt(50000),
			Currency:          "IDR",
			PaymentMethodType: entity.PaymentMethodCard,
			ProviderMethodId:  "saved-token",
		})
		require.NoError(t, err)
		assert.Equal(t, entity.TransactionStatusCompleted, res.Status)
		assert.Equal(t, "mt-9", res.ProviderTransactionId)
		assert.Equal(t, "saved-token", c.lastReq.CreditCard.TokenID)
	})

	t.Run("provider error is returned", func(t *testing.T) {
		c := &fakeCore{err: &midtrans.Error{Message: "denied by bank", StatusCode: 400}}
		g := newMidtransGateway(MidtransConfig{ServerKey: "k"}, &fakeSnap{}, c)

		_, err := g.Charge(context.Background(), &ChargeRequest{
			OrderId:           "tx-3",
			Amount:            decimal.NewFromInt(1),
			Currency:          "IDR",
			PaymentMethodType: entity.PaymentMethodCard,
			ProviderMethodId:  "tok",
		})
		assert.ErrorContains(t, err, "denied by bank")
	})

	t.Run("slow provider times out", func(t *testing.T) {
		c := &fakeCore{charge: &coreapi.ChargeResponse{}, delay: 200 * time.Millisecond}
		g := newMidtransGateway(MidtransConfig{ServerKey: "k"}, &fakeSnap{}, c)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := g.Charge(ctx, &ChargeRequest{
			OrderId:           "tx-4",
			Amount:            decimal.NewFromInt(1),
			Currency:          "IDR",
			PaymentMethodType: entity.PaymentMethodCard,
			ProviderMethodId:  "tok",
		})
		assert.ErrorIs(t, err, ErrProviderTimeout)
	})

	t.Run("other currencies are refused before reaching midtrans", func(t *testing.T) {
		s := &fakeSnap{}
		c := &fakeCore{charge: &coreapi.ChargeResponse{}}
		g := newMidtransGateway(MidtransConfig{ServerKey: "k"}, s, c)

		_, err := g.Charge(context.Background(), &ChargeRequest{
			OrderId:  "tx-5",
			Amount:   decimal.RequireFromString("33.33"),
			Currency: "USD",
		})
		assert.ErrorIs(t, err, ErrUnsupportedCurrency)
		assert.Nil(t, s.lastReq)

		_, err = g.Charge(context.Background(), &ChargeRequest{
			OrderId:           "tx-6",
			Amount:            decimal.RequireFromString("33.33"),
			Currency:          "USD",
			PaymentMethodType: entity.PaymentMethodCard,
			ProviderMethodId:  "tok",
		})
		assert.ErrorIs(t, err, ErrUnsupportedCurrency)
		assert.Nil(t, c.lastReq)
	})
}

func TestMidtransRefund(t *testing.T) {
	c := &fakeCore{refund: &coreapi.RefundResponse{StatusCode: "200", RefundKey: "refund:1"}}
	g := newMidtransGateway(MidtransConfig{ServerKey: "k"}, &fakeSnap{}, c)

	_, err := g.Refund(context.Background(), &RefundRequest{
		OrderId:   "tx-1",
		RefundKey: "refund:1",
		Amount:    decimal.RequireFromString("10.50"),
		Currency:  "USD",
	})
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)

	assert.True(t, g.SupportsCurrency("idr"))
	assert.False(t, g.SupportsCurrency("USD"))
	assert.True(t, (&StripeGateway{}).SupportsCurrency("usd"))
}

func TestStripeWebhook(t *testing.T) {
	const secret = "whsec_test"
	g := &StripeGateway{webhookSecret: secret}

	sign := func(payload []byte) map[string]string {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   payload,
			Secret:    secret,
			Timestamp: time.Now(),
		})
		return map[string]string{"stripe-signature": signed.Header}
	}

	event := func(eventType string, object map[string]interface{}) []byte {
		b, _ := json.Marshal(map[string]interface{}{
			"id":          "evt_1",
			"object":      "event",
			"type":        eventType,
			"api_version": "2020-08-27",
			"data":        map[string]interface{}{"object": object},
		})
		return b
	}

	t.Run("payment intent succeeded", func(t *testing.T) {
		payload := event("payment_intent.succeeded", map[string]interface{}{
			"id":       "pi_1",
			"object":   "payment_intent",
			"status":   "succeeded",
			"amount":   2500,
			"currency": "usd",
			"metadata": map[string]string{"order_id": "tx-1"},
		})

		ev, err := g.VerifyAndParseWebhook(context.Background(), payload, sign(payload))
		require.NoError(t, err)
		assert.Equal(t, EventPaymentSuccess, ev.EventType)
		assert.Equal(t, "tx-1", ev.OrderId)
		assert.Equal(t, "pi_1", ev.ProviderTransactionId)
		assert.Equal(t, "25", ev.Amount.String())
		assert.Equal(t, "USD", ev.Currency)
	})

	t.Run("payment failed", func(t *testing.T) {
		payload := event("payment_intent.payment_failed", map[string]interface{}{
			"id":                 "pi_2",
			"object":             "payment_intent",
			"status":             "requires_payment_method",
			"amount":             1000,
			"currency":           "usd",
			"metadata":           map[string]string{"order_id": "tx-2"},
			"last_payment_error": map[string]interface{}{"message": "card declined"},
		})

		ev, err := g.VerifyAndParseWebhook(context.Background(), payload, sign(payload))
		require.NoError(t, err)
		assert.Equal(t, EventPaymentFailed, ev.EventType)
		assert.Equal(t, entity.TransactionStatusFailed, ev.Status)
		assert.Equal(t, "card declined", ev.FailureReason)
	})

	t.Run("partial charge refund", func(t *testing.T) {
		payload := event("charge.refunded", map[string]interface{}{
			"id":              "ch_1",
			"object":          "charge",
			"amount":          4000,
			"amount_refunded": 1500,
			"refunded":        false,
			"currency":        "usd",
			"payment_intent":  "pi_1",
			"metadata":        map[string]string{"order_id": "tx-1"},
		})

		ev, err := g.VerifyAndParseWebhook(context.Background(), payload, sign(payload))
		require.NoError(t, err)
		assert.Equal(t, EventPaymentPartiallyRefunded, ev.EventType)
		assert.Equal(t, entity.TransactionStatusCompleted, ev.Status)
		assert.Equal(t, "15", ev.RefundedAmount.String())
		assert.Equal(t, "40", ev.Amount.String())
		assert.Equal(t, "pi_1", ev.ProviderTransactionId)
	})

	t.Run("full charge refund", func(t *testing.T) {
		payload := event("charge.refunded", map[string]interface{}{
			"id":              "ch_2",
			"object":          "charge",
			"amount":          4000,
			"amount_refunded": 4000,
			"refunded":        true,
			"currency":        "usd",
			"metadata":        map[string]string{"order_id": "tx-2"},
		})

		ev, err := g.VerifyAndParseWebhook(context.Background(), payload, sign(payload))
		require.NoError(t, err)
		assert.Equal(t, EventPaymentRefunded, ev.EventType)
		assert.Equal(t, entity.TransactionStatusRefunded, ev.Status)
		assert.Equal(t, "40", ev.RefundedAmount.String())
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := event("payment_intent.succeeded", map[string]interface{}{"id": "pi_3"})
		_, err := g.VerifyAndParseWebhook(context.Background(), payload, map[string]string{
			"Stripe-Signature": fmt.Sprintf("t=%d,v1=%s", time.Now().Unix(), "00"),
		})
		assert.True(t, errors.Is(err, ErrWebhookVerification))
	})
}

func TestManager(t *testing.T) {
	m := NewManager(
		newMidtransGateway(MidtransConfig{}, &fakeSnap{}, &fakeCore{}),
		&StripeGateway{},
	)

	g, err := m.Get(entity.PaymentProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentProviderStripe, g.Provider())

	_, err = m.Get("paypal")
	assert.ErrorIs(t, err, ErrGatewayNotFound)

	assert.Equal(t, []entity.PaymentProvider{"midtrans", "stripe"}, m.List())
}
