package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hq-billing-be/internal/config"
	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/pkg/metrics"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/events"
	"hq-billing-be/pkg/billing/gateway"
	"hq-billing-be/pkg/billing/invoicing"
	"hq-billing-be/pkg/billing/lifecycle"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var paymentTracer = otel.Tracer("hq-billing/service/payment")

// IProviderService records every provider interaction as a payment
// transaction, whichever gateway handled it.
type IProviderService interface {
	ProcessPayment(ctx context.Context, tenantId *uuid.UUID, invoiceId uuid.UUID, req *dto.ProcessPaymentRequest) (*dto.PaymentTransactionResponse, error)
	GetPaymentStatus(ctx context.Context, tenantId *uuid.UUID, transactionId uuid.UUID) (*dto.PaymentTransactionResponse, error)
	RefundPayment(ctx context.Context, transactionId uuid.UUID, req *dto.RefundPaymentRequest) (*dto.PaymentTransactionResponse, error)
	GetPaymentMethods(ctx context.Context, tenantId uuid.UUID) ([]*dto.PaymentMethodResponse, error)
	AddPaymentMethod(ctx context.Context, tenantId uuid.UUID, req *dto.AddPaymentMethodRequest) (*dto.PaymentMethodResponse, error)
	RemovePaymentMethod(ctx context.Context, tenantId uuid.UUID, id uuid.UUID) error
	SetDefaultPaymentMethod(ctx context.Context, tenantId uuid.UUID, id uuid.UUID) (*dto.PaymentMethodResponse, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, headers map[string]string) (*dto.WebhookResponse, error)
	ListTransactions(ctx context.Context, tenantId *uuid.UUID, req *dto.ListTransactionsRequest) (*dto.TransactionListResponse, error)
}

type providerService struct {
	uowFactory unitofwork.RepositoryFactory
	gateways   *gateway.Manager
	generator  *invoicing.Generator
	lifecycle  *lifecycle.Manager
	publisher  events.Publisher
	metrics    *metrics.BillingMetrics
	logger     logger.ILogger
	timeout    time.Duration
	now        func() time.Time
}

func NewProviderService(
	uowFactory unitofwork.RepositoryFactory,
	gateways *gateway.Manager,
	generator *invoicing.Generator,
	lifecycleManager *lifecycle.Manager,
	publisher events.Publisher,
	billingMetrics *metrics.BillingMetrics,
	logger logger.ILogger,
	cfg config.BillingConfig,
) IProviderService {
	return &providerService{
		uowFactory: uowFactory,
		gateways:   gateways,
		generator:  generator,
		lifecycle:  lifecycleManager,
		publisher:  publisher,
		metrics:    billingMetrics,
		logger:     logger,
		timeout:    cfg.ProviderTimeout,
		now:        time.Now,
	}
}

func (s *providerService) gatewayFor(provider string) (gateway.PaymentGateway, error) {
	p := entity.PaymentProvider(provider)
	if !p.IsValid() {
		return nil, ErrUnsupportedProvider.Wrap(fmt.Errorf("provider %q", provider))
	}
	g, err := s.gateways.Get(p)
	if err != nil {
		return nil, ErrUnsupportedProvider.Wrap(err)
	}
	return g, nil
}

// providerCall runs fn with the provider timeout and records its latency.
func providerCall[T any](ctx context.Context, s *providerService, provider entity.PaymentProvider, operation string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	v, err := fn(callCtx)
	s.metrics.ProviderCallDuration.WithLabelValues(string(provider), operation).Observe(time.Since(started).Seconds())

	if errors.Is(err, gateway.ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded) {
		var zero T
		return zero, ErrProviderTimeout.Wrap(err)
	}
	return v, err
}

func paymentAttemptKey(invoiceId uuid.UUID, attempt int) string {
	return fmt.Sprintf("pay:%s:%d", invoiceId, attempt)
}

func refundKey(transactionId uuid.UUID, sequence int) string {
	return fmt.Sprintf("refund:%s:%d", transactionId, sequence)
}

// ProcessPayment charges a payable invoice. An attempt already in flight
// for the same invoice and provider is returned instead of charging twice.
func (s *providerService) ProcessPayment(ctx context.Context, tenantId *uuid.UUID, invoiceId uuid.UUID, req *dto.ProcessPaymentRequest) (*dto.PaymentTransactionResponse, error) {
	ctx, span := paymentTracer.Start(ctx, "ProcessPayment", trace.WithAttributes(
		attribute.String("invoice.id", invoiceId.String()),
		attribute.String("payment.provider", req.Provider),
	))
	defer span.End()

	gw, err := s.gatewayFor(req.Provider)
	if err != nil {
		return nil, err
	}
	provider := gw.Provider()

	var (
		tx      *entity.PaymentTransaction
		invoice *entity.Invoice
		method  *entity.PaymentMethod
		reused  bool
	)

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	invoice, err = findInvoice(ctx, uow, tenantId, invoiceId)
	if err != nil {
		return nil, err
	}
	if !isPayable(invoice) {
		return nil, ErrInvalidInvoiceState.Wrap(fmt.Errorf("invoice %s is %s", invoice.InvoiceNumber, invoice.Status))
	}
	if !gw.SupportsCurrency(invoice.Currency) {
		return nil, ErrUnsupportedCurrency.Wrap(fmt.Errorf("%s cannot charge %s", provider, invoice.Currency))
	}

	attempts, err := uow.PaymentTransactionRepository().FindAll(ctx,
		specification.ByInvoiceID{InvoiceID: invoice.Id},
		specification.FilterBy{Field: "type", Value: string(entity.TransactionTypePayment)},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}
	for _, attempt := range attempts {
		if attempt.Status != entity.TransactionStatusPending && attempt.Status != entity.TransactionStatusProcessing {
			continue
		}
		if attempt.Provider != provider {
			return nil, ErrInvalidInvoiceState.Wrap(fmt.Errorf("payment already in progress with %s", attempt.Provider))
		}
		tx = attempt
		reused = true
		break
	}

	if !reused {
		method, err = s.chargeMethod(ctx, uow, invoice, provider, req.PaymentMethodId)
		if err != nil {
			return nil, err
		}

		tx = &entity.PaymentTransaction{
			Id:             uuid.New(),
			InvoiceId:      invoice.Id,
			TenantId:       invoice.TenantId,
			Type:           entity.TransactionTypePayment,
			Amount:         invoice.TotalAmount,
			Currency:       invoice.Currency,
			Status:         entity.TransactionStatusPending,
			Provider:       provider,
			IdempotencyKey: paymentAttemptKey(invoice.Id, len(attempts)+1),
		}
		if method != nil {
			tx.PaymentMethod = string(method.Type)
		}
		if err := uow.PaymentTransactionRepository().Create(ctx, tx); err != nil {
			return nil, err
		}
		if err := s.markCycleProcessing(ctx, uow, invoice); err != nil {
			return nil, err
		}
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	if reused {
		s.logger.Info("PAYMENT", "Payment already in flight, returning existing attempt", map[string]interface{}{
			"invoice_id":     invoice.Id.String(),
			"transaction_id": tx.Id.String(),
		})
		return toTransactionResponse(tx), nil
	}

	chargeReq := &gateway.ChargeRequest{
		OrderId:        tx.Id.String(),
		IdempotencyKey: tx.IdempotencyKey,
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		Description:    "Invoice " + invoice.InvoiceNumber,
		CustomerName:   invoice.CustomerName,
		CustomerEmail:  invoice.CustomerEmail,
	}
	if method != nil {
		chargeReq.PaymentMethodType = method.Type
		chargeReq.ProviderMethodId = method.ProviderMethodId
		chargeReq.ProviderCustomerId = method.ProviderCustomerId
	}

	result, chargeErr := providerCall(ctx, s, provider, "charge", func(ctx context.Context) (*gateway.ChargeResult, error) {
		return gw.Charge(ctx, chargeReq)
	})

	update := statusUpdate{}
	switch {
	case errors.Is(chargeErr, ErrProviderTimeout):
		update.Status = entity.TransactionStatusProcessing
	case chargeErr != nil:
		update.Status = entity.TransactionStatusFailed
		update.FailureReason = chargeErr.Error()
	default:
		update = statusUpdate{
			Status:                result.Status,
			ProviderTransactionId: result.ProviderTransactionId,
			FailureReason:         result.FailureReason,
			RedirectUrl:           result.RedirectUrl,
			Raw:                   result.Raw,
		}
	}

	out, err := s.settle(ctx, tx.Id, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record payment result")
		return nil, err
	}
	s.metrics.PaymentsTotal.WithLabelValues(string(provider), string(out.tx.Status)).Inc()

	if chargeErr != nil {
		span.RecordError(chargeErr)
		span.SetStatus(codes.Error, "charge failed")
		s.logger.Error("PAYMENT", "Provider charge failed", map[string]interface{}{
			"transaction_id": tx.Id.String(),
			"provider":       string(provider),
			"error":          chargeErr.Error(),
		})
		if errors.Is(chargeErr, ErrProviderTimeout) {
			return nil, chargeErr
		}
		return nil, ErrPaymentFailed.Wrap(chargeErr)
	}

	span.SetAttributes(attribute.String("payment.status", string(out.tx.Status)))
	span.SetStatus(codes.Ok, "charge recorded")
	s.logger.Info("PAYMENT", "Payment processed", map[string]interface{}{
		"transaction_id": tx.Id.String(),
		"invoice_id":     invoice.Id.String(),
		"provider":       string(provider),
		"status":         string(out.tx.Status),
	})
	return toTransactionResponse(out.tx), nil
}

func isPayable(invoice *entity.Invoice) bool {
	for _, st := range entity.PayableInvoiceStatuses {
		if invoice.Status == st {
			return true
		}
	}
	return false
}

// chargeMethod picks the saved method for a charge: the requested one, else
// the subscription's, else the tenant default. Only methods of the charging
// provider qualify; none means a hosted checkout.
func (s *providerService) chargeMethod(ctx context.Context, uow unitofwork.UnitOfWork, invoice *entity.Invoice, provider entity.PaymentProvider, requested *uuid.UUID) (*entity.PaymentMethod, error) {
	byTenant := specification.ByTenantID{TenantID: invoice.TenantId}
	byProvider := specification.FilterBy{Field: "provider", Value: string(provider)}

	if requested != nil {
		method, err := uow.PaymentMethodRepository().FindOne(ctx, specification.ByID{ID: *requested}, byTenant)
		if err != nil {
			return nil, err
		}
		if method == nil {
			return nil, ErrPaymentMethodNotFound
		}
		if method.Provider != provider {
			return nil, apperror.Validation("invalid payment method", fmt.Sprintf("payment method belongs to %s, not %s", method.Provider, provider))
		}
		return method, nil
	}

	if invoice.SubscriptionId != nil {
		sub, err := uow.SubscriptionRepository().FindOne(ctx, specification.ByID{ID: *invoice.SubscriptionId})
		if err != nil {
			return nil, err
		}
		if sub != nil && sub.PaymentMethodId != nil {
			method, err := uow.PaymentMethodRepository().FindOne(ctx, specification.ByID{ID: *sub.PaymentMethodId}, byProvider)
			if err != nil {
				return nil, err
			}
			if method != nil {
				return method, nil
			}
		}
	}

	return uow.PaymentMethodRepository().FindOne(ctx, byTenant, byProvider,
		specification.FilterBy{Field: "is_default", Value: true},
	)
}

func (s *providerService) markCycleProcessing(ctx context.Context, uow unitofwork.UnitOfWork, invoice *entity.Invoice) error {
	if invoice.BillingCycleId == nil {
		return nil
	}
	cycle, err := uow.BillingCycleRepository().FindOne(ctx, specification.ByID{ID: *invoice.BillingCycleId})
	if err != nil || cycle == nil {
		return err
	}
	if cycle.Status != entity.BillingCycleStatusPending {
		return nil
	}
	if err := cycle.TransitionTo(entity.BillingCycleStatusProcessing); err != nil {
		return err
	}
	return uow.BillingCycleRepository().Update(ctx, cycle)
}

type statusUpdate struct {
	Status                entity.TransactionStatus
	ProviderTransactionId string
	FailureReason         string
	RedirectUrl           string
	Raw                   map[string]interface{}
}

type settleOutcome struct {
	tx         *entity.PaymentTransaction
	invoice    *entity.Invoice
	applied    bool
	paid       bool
	failed     bool
	refunded   bool
	reinstated *entity.Subscription
}

// settle applies a provider status to a transaction and carries it over to
// the invoice and billing cycle in one transaction, then publishes the
// resulting events. A status the transaction already has is a no-op.
func (s *providerService) settle(ctx context.Context, transactionId uuid.UUID, update statusUpdate) (*settleOutcome, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	tx, err := uow.PaymentTransactionRepository().FindOne(ctx, specification.ByID{ID: transactionId})
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}

	out, err := s.applyStatus(ctx, uow, tx, update)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}
	s.publishOutcome(ctx, out)
	return out, nil
}

func (s *providerService) applyStatus(ctx context.Context, uow unitofwork.UnitOfWork, tx *entity.PaymentTransaction, update statusUpdate) (*settleOutcome, error) {
	out := &settleOutcome{tx: tx}

	if update.ProviderTransactionId != "" {
		tx.ProviderTransactionId = update.ProviderTransactionId
	}
	if update.RedirectUrl != "" {
		tx.RedirectUrl = update.RedirectUrl
	}
	if update.Raw != nil {
		tx.RawResponse = update.Raw
	}

	if update.Status == "" || update.Status == tx.Status {
		return out, uow.PaymentTransactionRepository().Update(ctx, tx)
	}
	if err := tx.TransitionTo(update.Status); err != nil {
		return nil, stateError(ErrInvalidTransactionState, err)
	}
	if update.FailureReason != "" {
		tx.FailureReason = update.FailureReason
	}
	if err := uow.PaymentTransactionRepository().Update(ctx, tx); err != nil {
		return nil, err
	}
	out.applied = true

	if tx.Type != entity.TransactionTypePayment {
		return out, nil
	}

	invoice, err := findInvoice(ctx, uow, nil, tx.InvoiceId)
	if err != nil {
		return nil, err
	}
	out.invoice = invoice

	switch tx.Status {
	case entity.TransactionStatusCompleted:
		if !isPayable(invoice) {
			s.logger.Warn("PAYMENT", "Payment completed for an invoice that is not payable", map[string]interface{}{
				"transaction_id": tx.Id.String(),
				"invoice_id":     invoice.Id.String(),
				"invoice_status": string(invoice.Status),
			})
			return out, nil
		}
		previous := invoice.Status
		out.paid, err = s.generator.MarkPaid(ctx, uow, invoice, invoicing.Payment{
			Provider:   string(tx.Provider),
			Method:     tx.PaymentMethod,
			ExternalId: tx.ProviderTransactionId,
			PaidAt:     s.now(),
		})
		if err != nil {
			return nil, stateError(ErrInvalidInvoiceState, err)
		}
		if previous == entity.InvoiceStatusOverdue && invoice.SubscriptionId != nil {
			sub, reinstated, err := s.lifecycle.ReinstateAfterPayment(ctx, uow, *invoice.SubscriptionId)
			if err != nil {
				return nil, err
			}
			if reinstated {
				out.reinstated = sub
			}
		}

	case entity.TransactionStatusFailed, entity.TransactionStatusExpired, entity.TransactionStatusCancelled:
		out.failed = true
		if invoice.BillingCycleId != nil {
			cycle, err := uow.BillingCycleRepository().FindOne(ctx, specification.ByID{ID: *invoice.BillingCycleId})
			if err != nil {
				return nil, err
			}
			if cycle != nil && cycle.Status == entity.BillingCycleStatusProcessing {
				if err := cycle.TransitionTo(entity.BillingCycleStatusPending); err != nil {
					return nil, err
				}
				if err := uow.BillingCycleRepository().Update(ctx, cycle); err != nil {
					return nil, err
				}
			}
		}

	case entity.TransactionStatusRefunded:
		if invoice.Status == entity.InvoiceStatusPaid {
			if err := invoice.TransitionTo(entity.InvoiceStatusRefunded); err != nil {
				return nil, stateError(ErrInvalidInvoiceState, err)
			}
			if err := uow.InvoiceRepository().Update(ctx, invoice); err != nil {
				return nil, err
			}
			out.refunded = true
		}
	}
	return out, nil
}

func (s *providerService) publishOutcome(ctx context.Context, out *settleOutcome) {
	if out.paid {
		s.publisher.InvoicePaid(ctx, out.invoice)
	}
	if out.failed {
		s.publisher.PaymentFailed(ctx, out.tx)
	}
	if out.refunded {
		s.publisher.PaymentRefunded(ctx, out.tx)
	}
	if out.reinstated != nil {
		s.publisher.SubscriptionChanged(ctx, out.reinstated, "reinstated")
	}
}

// GetPaymentStatus asks the provider about a transaction that is still in
// flight and records the answer. Final transactions are returned as stored.
func (s *providerService) GetPaymentStatus(ctx context.Context, tenantId *uuid.UUID, transactionId uuid.UUID) (*dto.PaymentTransactionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	tx, err := uow.PaymentTransactionRepository().FindOne(ctx, tenantScope(tenantId, specification.ByID{ID: transactionId})...)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	if tx.Status.IsFinal() {
		return toTransactionResponse(tx), nil
	}

	gw, err := s.gatewayFor(string(tx.Provider))
	if err != nil {
		return nil, err
	}
	status, err := providerCall(ctx, s, tx.Provider, "status", func(ctx context.Context) (*gateway.StatusResult, error) {
		return gw.QueryStatus(ctx, &gateway.StatusRequest{
			OrderId:               tx.Id.String(),
			ProviderTransactionId: tx.ProviderTransactionId,
		})
	})
	if err != nil {
		if errors.Is(err, ErrProviderTimeout) {
			return nil, err
		}
		return nil, apperror.Upstream("payment status lookup failed", err)
	}

	out, err := s.settle(ctx, tx.Id, statusUpdate{
		Status:                status.Status,
		ProviderTransactionId: status.ProviderTransactionId,
		Raw:                   status.Raw,
	})
	if err != nil {
		return nil, err
	}
	if out.applied {
		s.metrics.PaymentsTotal.WithLabelValues(string(tx.Provider), string(out.tx.Status)).Inc()
	}
	return toTransactionResponse(out.tx), nil
}

// RefundPayment refunds all or part of a completed payment. Once the
// refunds add up to the payment, the payment and its invoice are marked
// refunded.
func (s *providerService) RefundPayment(ctx context.Context, transactionId uuid.UUID, req *dto.RefundPaymentRequest) (*dto.PaymentTransactionResponse, error) {
	ctx, span := paymentTracer.Start(ctx, "RefundPayment", trace.WithAttributes(
		attribute.String("transaction.id", transactionId.String()),
	))
	defer span.End()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	parent, err := uow.PaymentTransactionRepository().FindOne(ctx, specification.ByID{ID: transactionId})
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrTransactionNotFound
	}
	if parent.Type != entity.TransactionTypePayment || parent.Status != entity.TransactionStatusCompleted {
		return nil, ErrInvalidTransactionState.Wrap(&entity.TransitionError{
			Entity: "payment transaction",
			From:   string(parent.Status),
			To:     string(entity.TransactionStatusRefunded),
		})
	}

	gw, err := s.gatewayFor(string(parent.Provider))
	if err != nil {
		return nil, err
	}
	if !gw.SupportsCurrency(parent.Currency) {
		return nil, ErrUnsupportedCurrency.Wrap(fmt.Errorf("%s cannot refund %s", parent.Provider, parent.Currency))
	}

	refunds, err := uow.PaymentTransactionRepository().FindAll(ctx,
		specification.FilterBy{Field: "parent_transaction_id", Value: parent.Id},
	)
	if err != nil {
		return nil, err
	}
	refunded := decimal.Zero
	for _, r := range refunds {
		if r.Status == entity.TransactionStatusCompleted || r.Status == entity.TransactionStatusProcessing || r.Status == entity.TransactionStatusPending {
			refunded = refunded.Add(r.Amount)
		}
	}
	remaining := parent.Amount.Sub(refunded)

	amount := remaining
	if req.Amount != nil {
		amount = *req.Amount
	}
	var v apperror.Collector
	v.Check(amount.IsPositive(), "amount must be positive")
	v.Check(!amount.GreaterThan(remaining), fmt.Sprintf("amount exceeds the refundable %s", remaining.String()))
	if err := v.Err("invalid refund"); err != nil {
		return nil, err
	}

	parentId := parent.Id
	refund := &entity.PaymentTransaction{
		Id:                  uuid.New(),
		InvoiceId:           parent.InvoiceId,
		TenantId:            parent.TenantId,
		ParentTransactionId: &parentId,
		Type:                entity.TransactionTypeRefund,
		Amount:              amount,
		Currency:            parent.Currency,
		Status:              entity.TransactionStatusPending,
		Provider:            parent.Provider,
		PaymentMethod:       parent.PaymentMethod,
		IdempotencyKey:      refundKey(parent.Id, len(refunds)+1),
	}
	if err := uow.PaymentTransactionRepository().Create(ctx, refund); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	result, refundErr := providerCall(ctx, s, parent.Provider, "refund", func(ctx context.Context) (*gateway.RefundResult, error) {
		return gw.Refund(ctx, &gateway.RefundRequest{
			OrderId:               parent.Id.String(),
			ProviderTransactionId: parent.ProviderTransactionId,
			RefundKey:             refund.IdempotencyKey,
			Amount:                amount,
			Currency:              parent.Currency,
			Reason:                req.Reason,
		})
	})

	update := statusUpdate{}
	switch {
	case errors.Is(refundErr, ErrProviderTimeout):
		update.Status = entity.TransactionStatusProcessing
	case refundErr != nil:
		update.Status = entity.TransactionStatusFailed
		update.FailureReason = refundErr.Error()
	default:
		update.Status = result.Status
		update.ProviderTransactionId = result.ProviderRefundId
		update.Raw = result.Raw
	}

	settleUow := s.uowFactory.NewUnitOfWork(ctx)
	if err := settleUow.Begin(ctx); err != nil {
		return nil, err
	}
	defer settleUow.Rollback()

	out, err := s.applyStatus(ctx, settleUow, refund, update)
	if err != nil {
		return nil, err
	}

	var parentOut *settleOutcome
	if refund.Status == entity.TransactionStatusCompleted && refunded.Add(amount).Equal(parent.Amount) {
		parentOut, err = s.applyStatus(ctx, settleUow, parent, statusUpdate{Status: entity.TransactionStatusRefunded})
		if err != nil {
			return nil, err
		}
	}
	if err := settleUow.Commit(); err != nil {
		return nil, err
	}
	s.metrics.PaymentsTotal.WithLabelValues(string(parent.Provider), "refund_"+string(refund.Status)).Inc()

	if refundErr != nil {
		span.RecordError(refundErr)
		span.SetStatus(codes.Error, "refund failed")
		s.logger.Error("PAYMENT", "Provider refund failed", map[string]interface{}{
			"transaction_id": parent.Id.String(),
			"refund_id":      refund.Id.String(),
			"error":          refundErr.Error(),
		})
		if errors.Is(refundErr, ErrProviderTimeout) {
			return nil, refundErr
		}
		return nil, ErrPaymentFailed.Wrap(refundErr)
	}

	if parentOut != nil {
		s.publishOutcome(ctx, parentOut)
	} else if out.applied && refund.Status == entity.TransactionStatusCompleted {
		s.publisher.PaymentRefunded(ctx, refund)
	}

	span.SetStatus(codes.Ok, "refund recorded")
	s.logger.Info("PAYMENT", "Payment refunded", map[string]interface{}{
		"transaction_id": parent.Id.String(),
		"refund_id":      refund.Id.String(),
		"amount":         amount.String(),
		"status":         string(refund.Status),
	})
	return toTransactionResponse(refund), nil
}

func (s *providerService) GetPaymentMethods(ctx context.Context, tenantId uuid.UUID) ([]*dto.PaymentMethodResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	methods, err := uow.PaymentMethodRepository().FindAll(ctx,
		specification.ByTenantID{TenantID: tenantId},
		specification.OrderBy{Field: "is_default", Desc: true},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.PaymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		res = append(res, toPaymentMethodResponse(m))
	}
	return res, nil
}

// AddPaymentMethod attaches the method at the provider and stores it. The
// tenant's first method becomes the default.
func (s *providerService) AddPaymentMethod(ctx context.Context, tenantId uuid.UUID, req *dto.AddPaymentMethodRequest) (*dto.PaymentMethodResponse, error) {
	gw, err := s.gatewayFor(req.Provider)
	if err != nil {
		return nil, err
	}
	methodType := entity.PaymentMethodType(req.Type)
	if !methodType.IsValid() {
		return nil, apperror.Validation("invalid payment method", fmt.Sprintf("type %q is not supported", req.Type))
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	existing, err := uow.PaymentMethodRepository().FindAll(ctx, specification.ByTenantID{TenantID: tenantId})
	if err != nil {
		return nil, err
	}
	customerId := ""
	for _, m := range existing {
		if m.Provider == gw.Provider() && m.ProviderCustomerId != "" {
			customerId = m.ProviderCustomerId
			break
		}
	}

	attached, err := providerCall(ctx, s, gw.Provider(), "attach", func(ctx context.Context) (*gateway.AttachResult, error) {
		return gw.AttachPaymentMethod(ctx, &gateway.AttachRequest{
			TenantId:           tenantId.String(),
			Type:               methodType,
			Token:              req.Token,
			ProviderCustomerId: customerId,
			CustomerEmail:      req.Email,
			BankName:           req.BankName,
			AccountLast4:       req.AccountLast4,
		})
	})
	if err != nil {
		if errors.Is(err, gateway.ErrUnsupportedMethod) {
			return nil, apperror.Validation("invalid payment method", err.Error())
		}
		if errors.Is(err, ErrProviderTimeout) {
			return nil, err
		}
		return nil, apperror.Upstream("failed to attach payment method", err)
	}

	method := &entity.PaymentMethod{
		Id:                 uuid.New(),
		TenantId:           tenantId,
		Type:               methodType,
		Provider:           gw.Provider(),
		ProviderMethodId:   attached.ProviderMethodId,
		ProviderCustomerId: attached.ProviderCustomerId,
		CardBrand:          attached.CardBrand,
		CardLast4:          attached.CardLast4,
		ExpMonth:           attached.ExpMonth,
		ExpYear:            attached.ExpYear,
		BankName:           req.BankName,
		AccountLast4:       req.AccountLast4,
		IsDefault:          req.MakeDefault || len(existing) == 0,
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()
	if method.IsDefault {
		if err := uow.PaymentMethodRepository().ClearDefault(ctx, tenantId); err != nil {
			return nil, err
		}
	}
	if err := uow.PaymentMethodRepository().Create(ctx, method); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("PAYMENT", "Payment method added", map[string]interface{}{
		"tenant_id": tenantId.String(),
		"method_id": method.Id.String(),
		"provider":  string(method.Provider),
		"type":      string(method.Type),
	})
	return toPaymentMethodResponse(method), nil
}

// RemovePaymentMethod refuses methods an open subscription still bills
// against. Removing the default promotes the newest remaining method.
func (s *providerService) RemovePaymentMethod(ctx context.Context, tenantId uuid.UUID, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	method, err := uow.PaymentMethodRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.ByTenantID{TenantID: tenantId},
	)
	if err != nil {
		return err
	}
	if method == nil {
		return ErrPaymentMethodNotFound
	}

	inUse, err := uow.SubscriptionRepository().Count(ctx,
		specification.ByPaymentMethodID{PaymentMethodID: method.Id},
		specification.StatusIn{Statuses: specification.Statuses(entity.OpenSubscriptionStatuses...)},
	)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return ErrPaymentMethodInUse
	}

	if gw, err := s.gatewayFor(string(method.Provider)); err == nil {
		if _, err := providerCall(ctx, s, method.Provider, "detach", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, gw.DetachPaymentMethod(ctx, method)
		}); err != nil {
			if errors.Is(err, ErrProviderTimeout) {
				return err
			}
			return apperror.Upstream("failed to detach payment method", err)
		}
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()
	if err := uow.PaymentMethodRepository().Delete(ctx, method.Id); err != nil {
		return err
	}
	if method.IsDefault {
		next, err := uow.PaymentMethodRepository().FindOne(ctx,
			specification.ByTenantID{TenantID: tenantId},
			specification.OrderBy{Field: "created_at", Desc: true},
		)
		if err != nil {
			return err
		}
		if next != nil {
			next.IsDefault = true
			if err := uow.PaymentMethodRepository().Update(ctx, next); err != nil {
				return err
			}
		}
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	s.logger.Info("PAYMENT", "Payment method removed", map[string]interface{}{
		"tenant_id": tenantId.String(),
		"method_id": method.Id.String(),
	})
	return nil
}

func (s *providerService) SetDefaultPaymentMethod(ctx context.Context, tenantId uuid.UUID, id uuid.UUID) (*dto.PaymentMethodResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	method, err := uow.PaymentMethodRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.ByTenantID{TenantID: tenantId},
	)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, ErrPaymentMethodNotFound
	}
	if err := uow.PaymentMethodRepository().ClearDefault(ctx, tenantId); err != nil {
		return nil, err
	}
	method.IsDefault = true
	if err := uow.PaymentMethodRepository().Update(ctx, method); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return toPaymentMethodResponse(method), nil
}

// HandleWebhook verifies the payload before touching anything. Events for
// unknown transactions and stale status changes are acknowledged without
// effect so the provider stops retrying them.
func (s *providerService) HandleWebhook(ctx context.Context, provider string, payload []byte, headers map[string]string) (*dto.WebhookResponse, error) {
	ctx, span := paymentTracer.Start(ctx, "HandleWebhook", trace.WithAttributes(
		attribute.String("payment.provider", provider),
	))
	defer span.End()

	gw, err := s.gatewayFor(provider)
	if err != nil {
		return nil, err
	}

	event, err := gw.VerifyAndParseWebhook(ctx, payload, headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook rejected")
		if errors.Is(err, gateway.ErrWebhookVerification) {
			s.metrics.WebhooksTotal.WithLabelValues(provider, "rejected").Inc()
			s.logger.Warn("WEBHOOK", "Webhook signature rejected", map[string]interface{}{
				"provider": provider,
			})
			return nil, ErrInvalidSignature.Wrap(err)
		}
		s.metrics.WebhooksTotal.WithLabelValues(provider, "invalid").Inc()
		return nil, apperror.Validation("invalid webhook payload", err.Error())
	}

	res := &dto.WebhookResponse{
		Provider:  provider,
		EventType: event.EventType,
		Status:    string(event.Status),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	tx, err := s.webhookTransaction(ctx, uow, event)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		s.metrics.WebhooksTotal.WithLabelValues(provider, "ignored").Inc()
		s.logger.Warn("WEBHOOK", "Webhook for unknown transaction", map[string]interface{}{
			"provider":       provider,
			"order_id":       event.OrderId,
			"provider_tx_id": event.ProviderTransactionId,
		})
		return res, nil
	}
	res.TransactionId = &tx.Id

	var out *settleOutcome
	if event.IsRefund() && tx.Type == entity.TransactionTypePayment {
		out, err = s.reconcileRefunds(ctx, tx.Id, event)
	} else {
		out, err = s.settle(ctx, tx.Id, statusUpdate{
			Status:                event.Status,
			ProviderTransactionId: event.ProviderTransactionId,
			FailureReason:         event.FailureReason,
			Raw:                   event.Raw,
		})
	}
	if err != nil {
		if errors.Is(err, ErrInvalidTransactionState) {
			s.metrics.WebhooksTotal.WithLabelValues(provider, "stale").Inc()
			s.logger.Warn("WEBHOOK", "Webhook status change not applicable", map[string]interface{}{
				"provider":       provider,
				"transaction_id": tx.Id.String(),
				"current":        string(tx.Status),
				"incoming":       string(event.Status),
			})
			return res, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook processing failed")
		return nil, err
	}

	res.Applied = out.applied
	result := "duplicate"
	if out.applied {
		result = "applied"
		s.metrics.PaymentsTotal.WithLabelValues(provider, string(out.tx.Status)).Inc()
	}
	s.metrics.WebhooksTotal.WithLabelValues(provider, result).Inc()

	span.SetStatus(codes.Ok, "webhook handled")
	s.logger.Info("WEBHOOK", "Webhook processed", map[string]interface{}{
		"provider":       provider,
		"event_type":     event.EventType,
		"transaction_id": tx.Id.String(),
		"status":         string(out.tx.Status),
		"applied":        out.applied,
	})
	return res, nil
}

// reconcileRefunds records money the provider reports as refunded on a
// payment. Refunds already on record, including those issued through
// RefundPayment, are netted out, so only the difference becomes a new refund
// transaction. The payment and its invoice move to refunded once the
// provider's total covers the whole amount.
func (s *providerService) reconcileRefunds(ctx context.Context, transactionId uuid.UUID, event *gateway.WebhookEvent) (*settleOutcome, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	parent, err := uow.PaymentTransactionRepository().FindOne(ctx, specification.ByID{ID: transactionId})
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrTransactionNotFound
	}
	out := &settleOutcome{tx: parent}
	if parent.Status != entity.TransactionStatusCompleted {
		return out, nil
	}

	refunds, err := uow.PaymentTransactionRepository().FindAll(ctx,
		specification.FilterBy{Field: "parent_transaction_id", Value: parent.Id},
	)
	if err != nil {
		return nil, err
	}
	recorded := decimal.Zero
	for _, r := range refunds {
		if r.Status == entity.TransactionStatusCompleted || r.Status == entity.TransactionStatusProcessing || r.Status == entity.TransactionStatusPending {
			recorded = recorded.Add(r.Amount)
		}
	}

	total := decimal.Min(event.RefundedAmount, parent.Amount)
	var refund *entity.PaymentTransaction
	if delta := total.Sub(recorded); delta.IsPositive() {
		parentId := parent.Id
		refund = &entity.PaymentTransaction{
			Id:                  uuid.New(),
			InvoiceId:           parent.InvoiceId,
			TenantId:            parent.TenantId,
			ParentTransactionId: &parentId,
			Type:                entity.TransactionTypeRefund,
			Amount:              delta,
			Currency:            parent.Currency,
			Status:              entity.TransactionStatusCompleted,
			Provider:            parent.Provider,
			PaymentMethod:       parent.PaymentMethod,
			IdempotencyKey:      fmt.Sprintf("refund:%s:provider:%s", parent.Id, total.String()),
			RawResponse:         event.Raw,
		}
		if err := uow.PaymentTransactionRepository().Create(ctx, refund); err != nil {
			return nil, err
		}
		out.applied = true
	}

	var parentOut *settleOutcome
	if total.Equal(parent.Amount) {
		if parentOut, err = s.applyStatus(ctx, uow, parent, statusUpdate{Status: entity.TransactionStatusRefunded}); err != nil {
			return nil, err
		}
		out = parentOut
		out.applied = true
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	if parentOut != nil {
		s.publishOutcome(ctx, parentOut)
	} else if refund != nil {
		s.publisher.PaymentRefunded(ctx, refund)
	}
	if refund != nil {
		s.logger.Info("PAYMENT", "Provider refund recorded", map[string]interface{}{
			"transaction_id": parent.Id.String(),
			"refund_id":      refund.Id.String(),
			"amount":         refund.Amount.String(),
			"refunded_total": total.String(),
		})
	}
	return out, nil
}

// webhookTransaction finds the transaction by our order id, falling back to
// the provider's own id for events that do not echo it.
func (s *providerService) webhookTransaction(ctx context.Context, uow unitofwork.UnitOfWork, event *gateway.WebhookEvent) (*entity.PaymentTransaction, error) {
	if id, err := uuid.Parse(event.OrderId); err == nil {
		tx, err := uow.PaymentTransactionRepository().FindOne(ctx, specification.ByID{ID: id})
		if err != nil || tx != nil {
			return tx, err
		}
	}
	if event.ProviderTransactionId == "" {
		return nil, nil
	}
	return uow.PaymentTransactionRepository().FindOne(ctx,
		specification.ByProviderTransactionID{ProviderTransactionID: event.ProviderTransactionId},
		specification.FilterBy{Field: "type", Value: string(entity.TransactionTypePayment)},
	)
}

func (s *providerService) ListTransactions(ctx context.Context, tenantId *uuid.UUID, req *dto.ListTransactionsRequest) (*dto.TransactionListResponse, error) {
	filters := tenantScope(tenantId)
	if req.InvoiceId != uuid.Nil {
		filters = append(filters, specification.ByInvoiceID{InvoiceID: req.InvoiceId})
	}
	if req.Status != "" {
		filters = append(filters, specification.StatusIn{Statuses: []string{req.Status}})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	total, err := uow.PaymentTransactionRepository().Count(ctx, filters...)
	if err != nil {
		return nil, err
	}

	page, size, offset := pageSpec(req.Page, req.PageSize)
	txs, err := uow.PaymentTransactionRepository().FindAll(ctx, append(filters,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: size, Offset: offset},
	)...)
	if err != nil {
		return nil, err
	}

	res := &dto.TransactionListResponse{
		Transactions: make([]*dto.PaymentTransactionResponse, 0, len(txs)),
		Total:        total,
		Page:         page,
		PageSize:     size,
	}
	for _, tx := range txs {
		res.Transactions = append(res.Transactions, toTransactionResponse(tx))
	}
	return res, nil
}
