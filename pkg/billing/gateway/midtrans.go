package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"hq-billing-be/internal/entity"
	"hq-billing-be/pkg/billing/money"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type coreAPI interface {
	ChargeTransaction(req *coreapi.ChargeReq) (*coreapi.ChargeResponse, *midtrans.Error)
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
	RefundTransaction(param string, req *coreapi.RefundReq) (*coreapi.RefundResponse, *midtrans.Error)
}

type MidtransConfig struct {
	ServerKey    string
	IsProduction bool
	FinishURL    string
}

type MidtransGateway struct {
	serverKey string
	finishURL string
	snap      snapAPI
	core      coreAPI
}

func NewMidtransGateway(cfg MidtransConfig) *MidtransGateway {
	env := midtrans.Sandbox
	if cfg.IsProduction {
		env = midtrans.Production
	}

	var sClient snap.Client
	sClient.New(cfg.ServerKey, env)

	var cClient coreapi.Client
	cClient.New(cfg.ServerKey, env)

	return newMidtransGateway(cfg, &sClient, &cClient)
}

func newMidtransGateway(cfg MidtransConfig, s snapAPI, c coreAPI) *MidtransGateway {
	return &MidtransGateway{
		serverKey: cfg.ServerKey,
		finishURL: cfg.FinishURL,
		snap:      s,
		core:      c,
	}
}

func (g *MidtransGateway) Provider() entity.PaymentProvider {
	return entity.PaymentProviderMidtrans
}

// MidtransCurrency is the only currency Midtrans settles.
const MidtransCurrency = "IDR"

func (g *MidtransGateway) SupportsCurrency(currency string) bool {
	return strings.EqualFold(currency, MidtransCurrency)
}

func (g *MidtransGateway) checkCurrency(currency string) error {
	if !g.SupportsCurrency(currency) {
		return fmt.Errorf("%w: midtrans accepts %s only, got %q", ErrUnsupportedCurrency, MidtransCurrency, currency)
	}
	return nil
}

// Charge uses a saved card token through the core API when one is available
// and otherwise opens a Snap checkout the customer completes in the browser.
func (g *MidtransGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if err := g.checkCurrency(req.Currency); err != nil {
		return nil, err
	}
	grossAmt := money.ToMinorUnits(req.Amount, MidtransCurrency)
	firstName, lastName := splitName(req.CustomerName)
	customer := &midtrans.CustomerDetails{
		FName: firstName,
		LName: lastName,
		Email: req.CustomerEmail,
	}
	items := &[]midtrans.ItemDetails{{
		ID:    req.OrderId,
		Price: grossAmt,
		Qty:   1,
		Name:  truncate(req.Description, 50),
	}}

	if req.PaymentMethodType == entity.PaymentMethodCard && req.ProviderMethodId != "" {
		chargeReq := &coreapi.ChargeReq{
			PaymentType: coreapi.PaymentTypeCreditCard,
			TransactionDetails: midtrans.TransactionDetails{
				OrderID:  req.OrderId,
				GrossAmt: grossAmt,
			},
			CreditCard: &coreapi.CreditCardDetails{
				TokenID:        req.ProviderMethodId,
				Authentication: false,
			},
			CustomerDetails: customer,
			Items:           items,
		}

		resp, err := call(ctx, func() (*coreapi.ChargeResponse, error) {
			r, midErr := g.core.ChargeTransaction(chargeReq)
			if midErr != nil {
				return nil, fmt.Errorf("midtrans charge: %s", midErr.GetMessage())
			}
			return r, nil
		})
		if err != nil {
			return nil, err
		}

		status := MapMidtransStatus(resp.TransactionStatus, resp.FraudStatus)
		result := &ChargeResult{
			ProviderTransactionId: resp.TransactionID,
			Status:                status,
			RedirectUrl:           resp.RedirectURL,
			Raw:                   toRaw(resp),
		}
		if status == entity.TransactionStatusFailed {
			result.FailureReason = resp.StatusMessage
		}
		return result, nil
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderId,
			GrossAmt: grossAmt,
		},
		CreditCard: &snap.CreditCardDetails{
			Secure: true,
		},
		CustomerDetail:  customer,
		Items:           items,
		EnabledPayments: snap.AllSnapPaymentType,
	}
	if g.finishURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: g.finishURL}
	}

	resp, err := call(ctx, func() (*snap.Response, error) {
		r, midErr := g.snap.CreateTransaction(snapReq)
		if midErr != nil {
			return nil, fmt.Errorf("midtrans snap: %s", midErr.GetMessage())
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	return &ChargeResult{
		ProviderTransactionId: resp.Token,
		Status:                entity.TransactionStatusPending,
		RedirectUrl:           resp.RedirectURL,
		Raw: map[string]interface{}{
			"token":        resp.Token,
			"redirect_url": resp.RedirectURL,
		},
	}, nil
}

func (g *MidtransGateway) QueryStatus(ctx context.Context, req *StatusRequest) (*StatusResult, error) {
	resp, err := call(ctx, func() (*coreapi.TransactionStatusResponse, error) {
		r, midErr := g.core.CheckTransaction(req.OrderId)
		if midErr != nil {
			return nil, fmt.Errorf("midtrans status: %s", midErr.GetMessage())
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		ProviderTransactionId: resp.TransactionID,
		Status:                MapMidtransStatus(resp.TransactionStatus, resp.FraudStatus),
		Raw:                   toRaw(resp),
	}, nil
}

func (g *MidtransGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	if err := g.checkCurrency(req.Currency); err != nil {
		return nil, err
	}
	refundReq := &coreapi.RefundReq{
		RefundKey: req.RefundKey,
		Amount:    money.ToMinorUnits(req.Amount, MidtransCurrency),
		Reason:    req.Reason,
	}

	resp, err := call(ctx, func() (*coreapi.RefundResponse, error) {
		r, midErr := g.core.RefundTransaction(req.OrderId, refundReq)
		if midErr != nil {
			return nil, fmt.Errorf("midtrans refund: %s", midErr.GetMessage())
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	status := entity.TransactionStatusCompleted
	if !strings.HasPrefix(resp.StatusCode, "2") {
		status = entity.TransactionStatusFailed
	}
	return &RefundResult{
		ProviderRefundId: req.RefundKey,
		Status:           status,
		Raw:              toRaw(resp),
	}, nil
}

// AttachPaymentMethod stores the saved token produced by Midtrans.js; card data
// never reaches this service.
func (g *MidtransGateway) AttachPaymentMethod(ctx context.Context, req *AttachRequest) (*AttachResult, error) {
	switch req.Type {
	case entity.PaymentMethodCard:
		if req.Token == "" {
			return nil, fmt.Errorf("%w: card token is required", ErrUnsupportedMethod)
		}
		return &AttachResult{ProviderMethodId: req.Token}, nil
	case entity.PaymentMethodBankTransfer, entity.PaymentMethodEWallet:
		return &AttachResult{ProviderMethodId: req.Token}, nil
	default:
		return nil, ErrUnsupportedMethod
	}
}

func (g *MidtransGateway) DetachPaymentMethod(ctx context.Context, method *entity.PaymentMethod) error {
	return nil
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	Currency          string `json:"currency"`
	StatusMessage     string `json:"status_message"`
	RefundAmount      string `json:"refund_amount"`
	Refunds           []struct {
		RefundAmount string `json:"refund_amount"`
		RefundKey    string `json:"refund_key"`
	} `json:"refunds"`
}

// refundedTotal is what Midtrans has refunded so far. Older notifications
// only list the individual refunds.
func (n *midtransNotification) refundedTotal() (decimal.Decimal, error) {
	if n.RefundAmount != "" {
		return decimal.NewFromString(n.RefundAmount)
	}
	total := decimal.Zero
	for _, r := range n.Refunds {
		amount, err := decimal.NewFromString(r.RefundAmount)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, nil
}

func (g *MidtransGateway) VerifyAndParseWebhook(ctx context.Context, payload []byte, headers map[string]string) (*WebhookEvent, error) {
	var n midtransNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	if n.OrderID == "" || n.SignatureKey == "" {
		return nil, ErrInvalidWebhook
	}

	expected := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return nil, ErrWebhookVerification
	}

	amount, err := decimal.NewFromString(n.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: gross_amount %q", ErrInvalidWebhook, n.GrossAmount)
	}

	raw := map[string]interface{}{}
	_ = json.Unmarshal(payload, &raw)

	status := MapMidtransStatus(n.TransactionStatus, n.FraudStatus)
	event := &WebhookEvent{
		Provider:              entity.PaymentProviderMidtrans,
		EventType:             EventTypeFor(status),
		OrderId:               n.OrderID,
		ProviderTransactionId: n.TransactionID,
		Status:                status,
		Amount:                amount,
		Currency:              strings.ToUpper(n.Currency),
		Raw:                   raw,
	}
	if status == entity.TransactionStatusFailed || status == entity.TransactionStatusExpired {
		event.FailureReason = n.TransactionStatus
	}

	switch n.TransactionStatus {
	case "refund", "partial_refund":
		refunded, err := n.refundedTotal()
		if err != nil {
			return nil, fmt.Errorf("%w: refund_amount: %v", ErrInvalidWebhook, err)
		}
		if n.TransactionStatus == "refund" && refunded.IsZero() {
			refunded = amount
		}
		event.RefundedAmount = refunded
		if n.TransactionStatus == "partial_refund" {
			event.EventType = EventPaymentPartiallyRefunded
		}
	}
	return event, nil
}

// MidtransSignature is hex(sha512(order_id + status_code + gross_amount + server_key)).
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func MapMidtransStatus(transactionStatus, fraudStatus string) entity.TransactionStatus {
	switch transactionStatus {
	case "capture":
		switch fraudStatus {
		case "challenge":
			return entity.TransactionStatusProcessing
		case "deny":
			return entity.TransactionStatusFailed
		}
		return entity.TransactionStatusCompleted
	case "settlement":
		return entity.TransactionStatusCompleted
	case "deny", "failure":
		return entity.TransactionStatusFailed
	case "cancel":
		return entity.TransactionStatusCancelled
	case "expire":
		return entity.TransactionStatusExpired
	case "refund":
		return entity.TransactionStatusRefunded
	case "partial_refund":
		// Part of the money is back with the customer; the payment itself
		// stays settled.
		return entity.TransactionStatusCompleted
	case "authorize":
		return entity.TransactionStatusProcessing
	default:
		return entity.TransactionStatusPending
	}
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func toRaw(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	raw := map[string]interface{}{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	return raw
}
