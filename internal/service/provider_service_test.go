package service

import (
	"encoding/json"
	"errors"
	"testing"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/pkg/billing/gateway"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// billedSubscription creates a subscription through the service so that it
// comes with a pending cycle and a sent invoice.
func billedSubscription(t *testing.T, f *fixture, price string, opts ...planOption) (uuid.UUID, *dto.CreateSubscriptionResponse) {
	t.Helper()
	plan := f.createPlan("Plan "+price, price, opts...)
	tenant := uuid.New()
	res, err := f.subscriptions().CreateSubscription(f.ctx, tenant, &dto.CreateSubscriptionRequest{
		PlanId:        plan.Id,
		CustomerName:  "Acme",
		CustomerEmail: "billing@acme.test",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Invoice)
	return tenant, res
}

func TestProcessPaymentSettlesInvoiceAndCycle(t *testing.T) {
	f := newFixture(t)
	gw := newFakeGateway(entity.PaymentProviderStripe)
	svc := f.providers(gw)
	tenant, created := billedSubscription(t, f, "100.00")

	tx, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "stripe"})
	require.NoError(t, err)
	assert.Equal(t, string(entity.TransactionStatusCompleted), tx.Status)
	assert.Equal(t, "100.00", tx.Amount.StringFixed(2))
	assert.Equal(t, "prov-"+tx.Id.String(), tx.ProviderTransactionId)

	require.Len(t, gw.charges, 1)
	assert.Equal(t, "pay:"+created.Invoice.Id.String()+":1", gw.charges[0].IdempotencyKey)

	invoice := f.invoice(created.Invoice.Id)
	assert.Equal(t, entity.InvoiceStatusPaid, invoice.Status)
	assert.Equal(t, "stripe", invoice.PaymentProvider)
	assert.Equal(t, entity.BillingCycleStatusPaid, f.cycle(created.BillingCycle.Id).Status)

	_, err = svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "stripe"})
	assert.ErrorIs(t, err, ErrInvalidInvoiceState)

	_, err = svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "paypal"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestProcessPaymentFailureReleasesCycle(t *testing.T) {
	f := newFixture(t)
	gw := newFakeGateway(entity.PaymentProviderStripe)
	gw.chargeErr = errors.New("card_declined")
	svc := f.providers(gw)
	tenant, created := billedSubscription(t, f, "100.00")

	_, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "stripe"})
	assert.ErrorIs(t, err, ErrPaymentFailed)

	list, err := svc.ListTransactions(f.ctx, &tenant, &dto.ListTransactionsRequest{InvoiceId: created.Invoice.Id})
	require.NoError(t, err)
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, string(entity.TransactionStatusFailed), list.Transactions[0].Status)
	assert.Contains(t, list.Transactions[0].FailureReason, "card_declined")

	assert.Equal(t, entity.InvoiceStatusSent, f.invoice(created.Invoice.Id).Status)
	assert.Equal(t, entity.BillingCycleStatusPending, f.cycle(created.BillingCycle.Id).Status)

	t.Run("a retry is a new attempt", func(t *testing.T) {
		gw.chargeErr = nil
		tx, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "stripe"})
		require.NoError(t, err)
		assert.Equal(t, string(entity.TransactionStatusCompleted), tx.Status)
		require.Len(t, gw.charges, 2)
		assert.Equal(t, "pay:"+created.Invoice.Id.String()+":2", gw.charges[1].IdempotencyKey)
	})
}

func TestProcessPaymentTimeoutLeavesAttemptInFlight(t *testing.T) {
	f := newFixture(t)
	gw := newFakeGateway(entity.PaymentProviderStripe)
	gw.chargeErr = gateway.ErrProviderTimeout
	svc := f.providers(gw)
	tenant, created := billedSubscription(t, f, "100.00")

	_, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "stripe"})
	assert.ErrorIs(t, err, ErrProviderTimeout)

	list, err := svc.ListTransactions(f.ctx, nil, &dto.ListTransactionsRequest{InvoiceId: created.Invoice.Id})
	require.NoError(t, err)
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, string(entity.TransactionStatusProcessing), list.Transactions[0].Status)
	assert.Equal(t, entity.BillingCycleStatusProcessing, f.cycle(created.BillingCycle.Id).Status)

	t.Run("the in-flight attempt is returned instead of charging again", func(t *testing.T) {
		gw.chargeErr = nil
		tx, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "stripe"})
		require.NoError(t, err)
		assert.Equal(t, list.Transactions[0].Id, tx.Id)
		assert.Len(t, gw.charges, 1)
	})

	t.Run("another provider cannot start a parallel attempt", func(t *testing.T) {
		svc := f.providers(gw, newFakeGateway(entity.PaymentProviderMidtrans))
		_, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "midtrans"})
		assert.ErrorIs(t, err, ErrInvalidInvoiceState)
	})

	t.Run("status polling settles it", func(t *testing.T) {
		tx, err := svc.GetPaymentStatus(f.ctx, &tenant, list.Transactions[0].Id)
		require.NoError(t, err)
		assert.Equal(t, string(entity.TransactionStatusCompleted), tx.Status)
		assert.Equal(t, entity.InvoiceStatusPaid, f.invoice(created.Invoice.Id).Status)
	})
}

func TestRefundPayment(t *testing.T) {
	f := newFixture(t)
	gw := newFakeGateway(entity.PaymentProviderStripe)
	svc := f.providers(gw)
	tenant, created := billedSubscription(t, f, "100.00")

	paid, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "stripe"})
	require.NoError(t, err)

	partial := decimal.NewFromInt(40)
	refund, err := svc.RefundPayment(f.ctx, paid.Id, &dto.RefundPaymentRequest{Amount: &partial, Reason: "downtime"})
	require.NoError(t, err)
	assert.Equal(t, string(entity.TransactionTypeRefund), refund.Type)
	assert.Equal(t, string(entity.TransactionStatusCompleted), refund.Status)
	require.NotNil(t, refund.ParentTransactionId)
	assert.Equal(t, paid.Id, *refund.ParentTransactionId)
	assert.Equal(t, "refund:"+paid.Id.String()+":1", gw.refunds[0].RefundKey)

	assert.Equal(t, entity.TransactionStatusCompleted, f.transaction(paid.Id).Status)
	assert.Equal(t, entity.InvoiceStatusPaid, f.invoice(created.Invoice.Id).Status)

	tooMuch := decimal.NewFromInt(61)
	_, err = svc.RefundPayment(f.ctx, paid.Id, &dto.RefundPaymentRequest{Amount: &tooMuch, Reason: "x"})
	require.Error(t, err)

	rest, err := svc.RefundPayment(f.ctx, paid.Id, &dto.RefundPaymentRequest{Reason: "closing account"})
	require.NoError(t, err)
	assert.Equal(t, "60.00", rest.Amount.StringFixed(2))

	assert.Equal(t, entity.TransactionStatusRefunded, f.transaction(paid.Id).Status)
	assert.Equal(t, entity.InvoiceStatusRefunded, f.invoice(created.Invoice.Id).Status)

	_, err = svc.RefundPayment(f.ctx, paid.Id, &dto.RefundPaymentRequest{Reason: "again"})
	assert.ErrorIs(t, err, ErrInvalidTransactionState)
}

func midtransNotification(t *testing.T, serverKey, orderId, status, grossAmount string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"order_id":           orderId,
		"status_code":        "200",
		"gross_amount":       grossAmount,
		"signature_key":      gateway.MidtransSignature(orderId, "200", grossAmount, serverKey),
		"transaction_id":     "mt-" + orderId[:8],
		"transaction_status": status,
		"currency":           "idr",
	})
	require.NoError(t, err)
	return body
}

func midtransRefundNotification(t *testing.T, orderId, status, grossAmount, refunded string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"order_id":           orderId,
		"status_code":        "200",
		"gross_amount":       grossAmount,
		"signature_key":      gateway.MidtransSignature(orderId, "200", grossAmount, "server-key"),
		"transaction_id":     "mt-" + orderId[:8],
		"transaction_status": status,
		"currency":           "idr",
		"refund_amount":      refunded,
	})
	require.NoError(t, err)
	return body
}

// pendingMidtransPayment stores an attempt as if the Snap checkout had been
// created, without calling Midtrans.
func pendingMidtransPayment(t *testing.T, f *fixture, created *dto.CreateSubscriptionResponse) *entity.PaymentTransaction {
	t.Helper()
	tx := &entity.PaymentTransaction{
		Id:             uuid.New(),
		InvoiceId:      created.Invoice.Id,
		TenantId:       created.Subscription.TenantId,
		Type:           entity.TransactionTypePayment,
		Amount:         created.Invoice.TotalAmount,
		Currency:       created.Invoice.Currency,
		Status:         entity.TransactionStatusPending,
		Provider:       entity.PaymentProviderMidtrans,
		IdempotencyKey: paymentAttemptKey(created.Invoice.Id, 1),
	}
	require.NoError(t, f.uowFactory.NewUnitOfWork(f.ctx).PaymentTransactionRepository().Create(f.ctx, tx))
	return tx
}

func TestMidtransWebhookSettlement(t *testing.T) {
	f := newFixture(t)
	midtrans := gateway.NewMidtransGateway(gateway.MidtransConfig{ServerKey: "server-key"})
	svc := f.providers(midtrans)
	_, created := billedSubscription(t, f, "150000", inCurrency("IDR"))
	tx := pendingMidtransPayment(t, f, created)

	t.Run("forged signature changes nothing", func(t *testing.T) {
		payload := midtransNotification(t, "wrong-key", tx.Id.String(), "settlement", "150000.00")
		_, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		assert.ErrorIs(t, err, ErrInvalidSignature)
		assert.Equal(t, entity.TransactionStatusPending, f.transaction(tx.Id).Status)
		assert.Equal(t, entity.InvoiceStatusSent, f.invoice(created.Invoice.Id).Status)
	})

	t.Run("settlement marks the invoice paid", func(t *testing.T) {
		payload := midtransNotification(t, "server-key", tx.Id.String(), "settlement", "150000.00")
		res, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, gateway.EventPaymentSuccess, res.EventType)
		require.NotNil(t, res.TransactionId)
		assert.Equal(t, tx.Id, *res.TransactionId)

		stored := f.transaction(tx.Id)
		assert.Equal(t, entity.TransactionStatusCompleted, stored.Status)
		assert.Equal(t, "mt-"+tx.Id.String()[:8], stored.ProviderTransactionId)

		invoice := f.invoice(created.Invoice.Id)
		assert.Equal(t, entity.InvoiceStatusPaid, invoice.Status)
		require.NotNil(t, invoice.PaidDate)
		assert.Equal(t, entity.BillingCycleStatusPaid, f.cycle(created.BillingCycle.Id).Status)
	})

	t.Run("redelivery is a duplicate", func(t *testing.T) {
		payload := midtransNotification(t, "server-key", tx.Id.String(), "settlement", "150000.00")
		res, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		require.NoError(t, err)
		assert.False(t, res.Applied)
	})

	t.Run("late expiry is stale and acknowledged", func(t *testing.T) {
		payload := midtransNotification(t, "server-key", tx.Id.String(), "expire", "150000.00")
		res, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, entity.TransactionStatusCompleted, f.transaction(tx.Id).Status)
	})

	t.Run("unknown order is acknowledged", func(t *testing.T) {
		payload := midtransNotification(t, "server-key", uuid.NewString(), "settlement", "10.00")
		res, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Nil(t, res.TransactionId)
	})
}

func TestPaymentRejectsCurrencyTheProviderCannotCharge(t *testing.T) {
	f := newFixture(t)
	gw := newFakeGateway(entity.PaymentProviderMidtrans)
	gw.currencies = []string{"IDR"}
	svc := f.providers(gw)
	tenant, created := billedSubscription(t, f, "33.33")

	_, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "midtrans"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
	assert.Empty(t, gw.charges)

	txs, err := f.uowFactory.NewUnitOfWork(f.ctx).PaymentTransactionRepository().FindAll(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, entity.InvoiceStatusSent, f.invoice(created.Invoice.Id).Status)
}

func TestRefundRejectsCurrencyTheProviderCannotReturn(t *testing.T) {
	f := newFixture(t)
	stripe := newFakeGateway(entity.PaymentProviderStripe)
	svc := f.providers(stripe)
	tenant, created := billedSubscription(t, f, "40.00")

	paid, err := svc.ProcessPayment(f.ctx, &tenant, created.Invoice.Id, &dto.ProcessPaymentRequest{Provider: "stripe"})
	require.NoError(t, err)

	stripe.currencies = []string{"IDR"}
	_, err = svc.RefundPayment(f.ctx, paid.Id, &dto.RefundPaymentRequest{Reason: "duplicate"})
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
	assert.Empty(t, stripe.refunds)

	refunds, err := f.uowFactory.NewUnitOfWork(f.ctx).PaymentTransactionRepository().FindAll(f.ctx,
		specification.FilterBy{Field: "parent_transaction_id", Value: paid.Id},
	)
	require.NoError(t, err)
	assert.Empty(t, refunds)
	assert.Equal(t, entity.TransactionStatusCompleted, f.transaction(paid.Id).Status)
}

func TestMidtransRefundWebhooks(t *testing.T) {
	f := newFixture(t)
	midtrans := gateway.NewMidtransGateway(gateway.MidtransConfig{ServerKey: "server-key"})
	svc := f.providers(midtrans)
	_, created := billedSubscription(t, f, "150000", inCurrency("IDR"))
	tx := pendingMidtransPayment(t, f, created)

	settled, err := svc.HandleWebhook(f.ctx, "midtrans", midtransNotification(t, "server-key", tx.Id.String(), "settlement", "150000.00"), nil)
	require.NoError(t, err)
	require.True(t, settled.Applied)

	providerRefunds := func(t *testing.T) []*entity.PaymentTransaction {
		t.Helper()
		refunds, err := f.uowFactory.NewUnitOfWork(f.ctx).PaymentTransactionRepository().FindAll(f.ctx,
			specification.FilterBy{Field: "parent_transaction_id", Value: tx.Id},
		)
		require.NoError(t, err)
		return refunds
	}

	t.Run("partial refund keeps the invoice paid", func(t *testing.T) {
		payload := midtransRefundNotification(t, tx.Id.String(), "partial_refund", "150000.00", "50000.00")
		res, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, gateway.EventPaymentPartiallyRefunded, res.EventType)

		refunds := providerRefunds(t)
		require.Len(t, refunds, 1)
		assert.Equal(t, entity.TransactionTypeRefund, refunds[0].Type)
		assert.Equal(t, entity.TransactionStatusCompleted, refunds[0].Status)
		assert.Equal(t, "50000.00", refunds[0].Amount.StringFixed(2))
		assert.Equal(t, "IDR", refunds[0].Currency)

		assert.Equal(t, entity.TransactionStatusCompleted, f.transaction(tx.Id).Status)
		assert.Equal(t, entity.InvoiceStatusPaid, f.invoice(created.Invoice.Id).Status)
	})

	t.Run("redelivered partial refund is a duplicate", func(t *testing.T) {
		payload := midtransRefundNotification(t, tx.Id.String(), "partial_refund", "150000.00", "50000.00")
		res, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Len(t, providerRefunds(t), 1)
	})

	t.Run("full refund records the remainder and refunds the invoice", func(t *testing.T) {
		payload := midtransRefundNotification(t, tx.Id.String(), "refund", "150000.00", "150000.00")
		res, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		require.NoError(t, err)
		assert.True(t, res.Applied)

		refunds := providerRefunds(t)
		require.Len(t, refunds, 2)
		total := decimal.Zero
		for _, r := range refunds {
			total = total.Add(r.Amount)
		}
		assert.Equal(t, "150000.00", total.StringFixed(2))

		assert.Equal(t, entity.TransactionStatusRefunded, f.transaction(tx.Id).Status)
		assert.Equal(t, entity.InvoiceStatusRefunded, f.invoice(created.Invoice.Id).Status)
	})

	t.Run("refund after the payment is refunded changes nothing", func(t *testing.T) {
		payload := midtransRefundNotification(t, tx.Id.String(), "refund", "150000.00", "150000.00")
		res, err := svc.HandleWebhook(f.ctx, "midtrans", payload, nil)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Len(t, providerRefunds(t), 2)
	})
}

func TestPaymentMethods(t *testing.T) {
	f := newFixture(t)
	svc := f.providers(newFakeGateway(entity.PaymentProviderStripe))
	tenant := uuid.New()

	first, err := svc.AddPaymentMethod(f.ctx, tenant, &dto.AddPaymentMethodRequest{Provider: "stripe", Type: "card", Token: "tok_1"})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	assert.Equal(t, "4242", first.CardLast4)

	second, err := svc.AddPaymentMethod(f.ctx, tenant, &dto.AddPaymentMethodRequest{Provider: "stripe", Type: "card", Token: "tok_2"})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	_, err = svc.SetDefaultPaymentMethod(f.ctx, tenant, second.Id)
	require.NoError(t, err)

	methods, err := svc.GetPaymentMethods(f.ctx, tenant)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, second.Id, methods[0].Id)
	assert.False(t, methods[1].IsDefault)

	plan := f.createPlan("Pro", "10.00")
	_, err = f.subscriptions().CreateSubscription(f.ctx, tenant, &dto.CreateSubscriptionRequest{PlanId: plan.Id})
	require.NoError(t, err)

	err = svc.RemovePaymentMethod(f.ctx, tenant, second.Id)
	assert.ErrorIs(t, err, ErrPaymentMethodInUse)

	require.NoError(t, svc.RemovePaymentMethod(f.ctx, tenant, first.Id))
	err = svc.RemovePaymentMethod(f.ctx, uuid.New(), second.Id)
	assert.ErrorIs(t, err, ErrPaymentMethodNotFound)
}
