package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/apperror"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/events"
	"hq-billing-be/pkg/billing/export"
	"hq-billing-be/pkg/billing/invoicing"
	"hq-billing-be/pkg/billing/lifecycle"
	"hq-billing-be/pkg/billing/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tenant-facing methods take a *uuid.UUID tenant: nil means an admin caller
// that may see every tenant.
type IInvoiceService interface {
	CreateInvoice(ctx context.Context, req *dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	GenerateInvoice(ctx context.Context, billingCycleId uuid.UUID) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, tenantId *uuid.UUID, req *dto.ListInvoicesRequest) (*dto.InvoiceListResponse, error)
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, req *dto.UpdateInvoiceStatusRequest) (*dto.InvoiceResponse, error)
	VoidInvoice(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.InvoiceResponse, error)
	CreateCreditNote(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID, req *dto.CreateCreditNoteRequest) (*dto.InvoiceResponse, error)
	GetOverdueInvoices(ctx context.Context, tenantId *uuid.UUID) ([]*dto.InvoiceResponse, error)
	SendInvoice(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.InvoiceResponse, error)
	MarkOverdueInvoices(ctx context.Context) (*dto.BillingRunSummary, error)
	ExportInvoices(ctx context.Context, tenantId *uuid.UUID, req *dto.ExportInvoicesRequest) (*dto.ExportFile, error)
}

type invoiceService struct {
	uowFactory       unitofwork.RepositoryFactory
	generator        *invoicing.Generator
	lifecycle        *lifecycle.Manager
	mailQueue        IInvoiceMailQueue
	publisher        events.Publisher
	logger           logger.ILogger
	paymentTermsDays int
	now              func() time.Time
}

func NewInvoiceService(
	uowFactory unitofwork.RepositoryFactory,
	generator *invoicing.Generator,
	lifecycleManager *lifecycle.Manager,
	mailQueue IInvoiceMailQueue,
	publisher events.Publisher,
	logger logger.ILogger,
	paymentTermsDays int,
) IInvoiceService {
	return &invoiceService{
		uowFactory:       uowFactory,
		generator:        generator,
		lifecycle:        lifecycleManager,
		mailQueue:        mailQueue,
		publisher:        publisher,
		logger:           logger,
		paymentTermsDays: paymentTermsDays,
		now:              time.Now,
	}
}

func tenantScope(tenantId *uuid.UUID, specs ...specification.Specification) []specification.Specification {
	if tenantId != nil {
		specs = append(specs, specification.ByTenantID{TenantID: *tenantId})
	}
	return specs
}

func findInvoice(ctx context.Context, uow unitofwork.UnitOfWork, tenantId *uuid.UUID, id uuid.UUID) (*entity.Invoice, error) {
	invoice, err := uow.InvoiceRepository().FindOne(ctx, tenantScope(tenantId, specification.ByID{ID: id})...)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

// CreateInvoice stores a manual invoice as a draft. Credit lines are
// stored negative; every other line must be non-negative.
func (s *invoiceService) CreateInvoice(ctx context.Context, req *dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	var v apperror.Collector
	v.Check(req.TenantId != uuid.Nil, "tenant_id is required")
	v.Check(len(strings.TrimSpace(req.Currency)) == 3, "currency must be a 3-letter code")
	v.Check(len(req.Items) > 0, "at least one item is required")
	items := make([]entity.InvoiceItem, 0, len(req.Items))
	for i, item := range req.Items {
		itemType := entity.InvoiceItemType(item.Type)
		switch itemType {
		case entity.InvoiceItemSubscription, entity.InvoiceItemOverage, entity.InvoiceItemTax,
			entity.InvoiceItemDiscount, entity.InvoiceItemCredit:
		default:
			v.Add(fmt.Sprintf("items[%d].type %q is not supported", i, item.Type))
		}
		v.Check(strings.TrimSpace(item.Description) != "", fmt.Sprintf("items[%d].description is required", i))
		v.Check(!item.Quantity.IsNegative(), fmt.Sprintf("items[%d].quantity must not be negative", i))
		v.Check(!item.UnitPrice.IsNegative(), fmt.Sprintf("items[%d].unit_price must not be negative", i))
		items = append(items, entity.InvoiceItem{
			Type:        itemType,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	if err := v.Err("invalid invoice"); err != nil {
		return nil, err
	}

	now := s.now()
	currency := strings.ToUpper(req.Currency)
	invoice := &entity.Invoice{
		Id:              uuid.New(),
		TenantId:        req.TenantId,
		SubscriptionId:  req.SubscriptionId,
		Status:          entity.InvoiceStatusDraft,
		IssuedDate:      now,
		DueDate:         now.AddDate(0, 0, s.paymentTermsDays),
		Currency:        currency,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerAddress: req.CustomerAddress,
		Notes:           req.Notes,
		Items:           invoicing.ManualItems(items, currency),
	}
	if req.DueDate != nil {
		invoice.DueDate = *req.DueDate
	}
	invoice.InvoiceNumber = invoicing.ManualInvoiceNumber(invoice.Id, now)
	invoice.RecalculateTotals()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.InvoiceRepository().Create(ctx, invoice); err != nil {
		return nil, err
	}

	s.logger.Info("INVOICE", "Manual invoice drafted", map[string]interface{}{
		"invoice_id":     invoice.Id.String(),
		"invoice_number": invoice.InvoiceNumber,
		"tenant_id":      invoice.TenantId.String(),
		"total":          invoice.TotalAmount.String(),
	})
	return toInvoiceResponse(invoice), nil
}

// GenerateInvoice issues the invoice of a billing cycle; calling it again for
// the same cycle returns the same invoice.
func (s *invoiceService) GenerateInvoice(ctx context.Context, billingCycleId uuid.UUID) (*dto.InvoiceResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	cycle, err := uow.BillingCycleRepository().FindOne(ctx, specification.ByID{ID: billingCycleId})
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, ErrBillingCycleNotFound
	}
	if cycle.Status == entity.BillingCycleStatusCancelled {
		return nil, ErrInvalidInvoiceState.Wrap(fmt.Errorf("billing cycle %s is cancelled", cycle.Id))
	}

	sub, plan, err := loadSubscriptionWithPlan(ctx, uow, cycle.SubscriptionId)
	if err != nil {
		return nil, err
	}
	customer, err := invoicing.LastCustomer(ctx, uow, sub.TenantId)
	if err != nil {
		return nil, err
	}

	invoice, created, err := s.generator.FromBillingCycle(ctx, uow, sub, plan, cycle, customer, s.now())
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	if created {
		s.publisher.InvoiceIssued(ctx, invoice)
	}
	return toInvoiceResponse(invoice), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.InvoiceResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	invoice, err := findInvoice(ctx, uow, tenantId, id)
	if err != nil {
		return nil, err
	}
	return toOverdueInvoiceResponse(invoice, s.now()), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, tenantId *uuid.UUID, req *dto.ListInvoicesRequest) (*dto.InvoiceListResponse, error) {
	filters := tenantScope(tenantId)
	if req.Status != "" {
		filters = append(filters, specification.StatusIn{Statuses: []string{req.Status}})
	}
	if req.Period != "" {
		_, r, err := resolvePeriod(req.Period, s.now())
		if err != nil {
			return nil, err
		}
		filters = append(filters, specification.IssuedBetween{Start: r.Start, End: r.End})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	total, err := uow.InvoiceRepository().Count(ctx, filters...)
	if err != nil {
		return nil, err
	}

	page, size, offset := pageSpec(req.Page, req.PageSize)
	specs := append(filters,
		specification.OrderBy{Field: "issued_date", Desc: true},
		specification.Pagination{Limit: size, Offset: offset},
	)
	invoices, err := uow.InvoiceRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := &dto.InvoiceListResponse{
		Invoices: make([]*dto.InvoiceResponse, 0, len(invoices)),
		Total:    total,
		Page:     page,
		PageSize: size,
	}
	for _, invoice := range invoices {
		res.Invoices = append(res.Invoices, toOverdueInvoiceResponse(invoice, now))
	}
	return res, nil
}

// UpdateInvoiceStatus is the administrative status change. Moving to paid
// goes through the same path as a provider payment.
func (s *invoiceService) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, req *dto.UpdateInvoiceStatusRequest) (*dto.InvoiceResponse, error) {
	target := entity.InvoiceStatus(req.Status)
	if !target.IsValid() {
		return nil, apperror.Validation("invalid invoice status", fmt.Sprintf("status %q is not supported", req.Status))
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	invoice, err := findInvoice(ctx, uow, nil, id)
	if err != nil {
		return nil, err
	}
	previous := invoice.Status
	now := s.now()

	for k, v := range req.Metadata {
		if invoice.Metadata == nil {
			invoice.Metadata = map[string]interface{}{}
		}
		invoice.Metadata[k] = v
	}

	var voidedCycle *entity.BillingCycle
	switch target {
	case entity.InvoiceStatusPaid:
		payment := invoicing.Payment{
			Provider:   metadataString(req.Metadata, "payment_provider"),
			Method:     metadataString(req.Metadata, "payment_method"),
			ExternalId: metadataString(req.Metadata, "external_id"),
			PaidAt:     now,
		}
		if payment.Method == "" {
			payment.Method = "manual"
		}
		if _, err := s.generator.MarkPaid(ctx, uow, invoice, payment); err != nil {
			return nil, stateError(ErrInvalidInvoiceState, err)
		}
		if previous == entity.InvoiceStatusOverdue && invoice.SubscriptionId != nil {
			if _, _, err := s.lifecycle.ReinstateAfterPayment(ctx, uow, *invoice.SubscriptionId); err != nil {
				return nil, err
			}
		}
	default:
		if err := invoice.TransitionTo(target); err != nil {
			return nil, stateError(ErrInvalidInvoiceState, err)
		}
		if target == entity.InvoiceStatusSent && previous == entity.InvoiceStatusDraft {
			invoice.IssuedDate = now
		}
		if err := uow.InvoiceRepository().Update(ctx, invoice); err != nil {
			return nil, err
		}
		// A cancelled cycle invoice takes its unsettled cycle with it.
		if target == entity.InvoiceStatusCancelled && invoice.BillingCycleId != nil {
			cycle, err := uow.BillingCycleRepository().FindOne(ctx, specification.ByID{ID: *invoice.BillingCycleId})
			if err != nil {
				return nil, err
			}
			if cycle != nil && !cycle.IsSettled() {
				if err := cycle.TransitionTo(entity.BillingCycleStatusCancelled); err != nil {
					return nil, err
				}
				if err := uow.BillingCycleRepository().Update(ctx, cycle); err != nil {
					return nil, err
				}
				voidedCycle = cycle
			}
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("INVOICE", "Invoice status updated", map[string]interface{}{
		"invoice_id": invoice.Id.String(),
		"from":       string(previous),
		"to":         string(invoice.Status),
	})
	switch invoice.Status {
	case entity.InvoiceStatusPaid:
		if previous != entity.InvoiceStatusPaid {
			s.publisher.InvoicePaid(ctx, invoice)
		}
	case entity.InvoiceStatusSent:
		s.publisher.InvoiceIssued(ctx, invoice)
	case entity.InvoiceStatusCancelled:
		s.publisher.InvoiceVoided(ctx, invoice, metadataString(req.Metadata, "reason"))
		if voidedCycle != nil {
			s.logger.Info("INVOICE", "Billing cycle cancelled with its invoice", map[string]interface{}{
				"cycle_id": voidedCycle.Id.String(),
			})
		}
	}
	return toInvoiceResponse(invoice), nil
}

// VoidInvoice is only legal for drafts.
func (s *invoiceService) VoidInvoice(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.InvoiceResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	invoice, err := findInvoice(ctx, uow, tenantId, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != entity.InvoiceStatusDraft {
		return nil, ErrInvalidInvoiceState.Wrap(&entity.TransitionError{
			Entity: "invoice",
			From:   string(invoice.Status),
			To:     string(entity.InvoiceStatusCancelled),
		})
	}
	if err := invoice.TransitionTo(entity.InvoiceStatusCancelled); err != nil {
		return nil, stateError(ErrInvalidInvoiceState, err)
	}
	if err := uow.InvoiceRepository().Update(ctx, invoice); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("INVOICE", "Invoice voided", map[string]interface{}{
		"invoice_id":     invoice.Id.String(),
		"invoice_number": invoice.InvoiceNumber,
	})
	s.publisher.InvoiceVoided(ctx, invoice, "voided")
	return toInvoiceResponse(invoice), nil
}

// CreateCreditNote issues a negative invoice against a paid one. The
// original becomes refunded once its total has been fully credited.
func (s *invoiceService) CreateCreditNote(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID, req *dto.CreateCreditNoteRequest) (*dto.InvoiceResponse, error) {
	var v apperror.Collector
	v.Check(len(req.Items) > 0, "at least one item is required")
	for i, item := range req.Items {
		v.Check(strings.TrimSpace(item.Description) != "", fmt.Sprintf("items[%d].description is required", i))
		v.Check(item.Amount.IsPositive(), fmt.Sprintf("items[%d].amount must be positive", i))
	}
	if err := v.Err("invalid credit note"); err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	original, err := findInvoice(ctx, uow, tenantId, id)
	if err != nil {
		return nil, err
	}
	if original.IsCreditNote() {
		return nil, ErrInvalidInvoiceState.Wrap(fmt.Errorf("invoice %s is itself a credit note", original.InvoiceNumber))
	}
	if original.Status != entity.InvoiceStatusPaid {
		return nil, ErrInvalidInvoiceState.Wrap(&entity.TransitionError{
			Entity: "invoice",
			From:   string(original.Status),
			To:     "credited",
		})
	}

	previous, err := uow.InvoiceRepository().FindAll(ctx, specification.ByOriginalInvoiceID{InvoiceID: original.Id})
	if err != nil {
		return nil, err
	}
	credited := decimal.Zero
	for _, note := range previous {
		credited = credited.Add(note.TotalAmount.Abs())
	}

	now := s.now()
	items := make([]entity.InvoiceItem, 0, len(req.Items))
	requested := decimal.Zero
	for i, item := range req.Items {
		amount := money.Round(item.Amount, original.Currency)
		requested = requested.Add(amount)
		items = append(items, entity.InvoiceItem{
			Id:          uuid.New(),
			Type:        entity.InvoiceItemCredit,
			Description: item.Description,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   amount.Neg(),
			Amount:      amount.Neg(),
			SortOrder:   i + 1,
		})
	}
	if credited.Add(requested).GreaterThan(original.TotalAmount) {
		return nil, apperror.Validation("invalid credit note", fmt.Sprintf(
			"credit of %s exceeds the remaining %s",
			requested.String(), original.TotalAmount.Sub(credited).String(),
		))
	}

	originalId := original.Id
	note := &entity.Invoice{
		Id:                uuid.New(),
		TenantId:          original.TenantId,
		SubscriptionId:    original.SubscriptionId,
		OriginalInvoiceId: &originalId,
		InvoiceNumber:     invoicing.CreditNoteNumber(original, len(previous)+1),
		Status:            entity.InvoiceStatusPaid,
		IssuedDate:        now,
		DueDate:           now,
		PaidDate:          &now,
		Currency:          original.Currency,
		PaymentProvider:   original.PaymentProvider,
		CustomerName:      original.CustomerName,
		CustomerEmail:     original.CustomerEmail,
		CustomerAddress:   original.CustomerAddress,
		Notes:             req.Reason,
		Items:             items,
	}
	note.RecalculateTotals()

	if err := uow.InvoiceRepository().Create(ctx, note); err != nil {
		return nil, err
	}

	if credited.Add(requested).Equal(original.TotalAmount) {
		if err := original.TransitionTo(entity.InvoiceStatusRefunded); err != nil {
			return nil, stateError(ErrInvalidInvoiceState, err)
		}
		if err := uow.InvoiceRepository().Update(ctx, original); err != nil {
			return nil, err
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("INVOICE", "Credit note issued", map[string]interface{}{
		"credit_note_id":  note.Id.String(),
		"credit_note":     note.InvoiceNumber,
		"original":        original.InvoiceNumber,
		"amount":          note.TotalAmount.String(),
		"original_status": string(original.Status),
	})
	s.publisher.CreditNoteIssued(ctx, note)
	return toInvoiceResponse(note), nil
}

func (s *invoiceService) GetOverdueInvoices(ctx context.Context, tenantId *uuid.UUID) ([]*dto.InvoiceResponse, error) {
	now := s.now()
	uow := s.uowFactory.NewUnitOfWork(ctx)
	invoices, err := uow.InvoiceRepository().FindAll(ctx, tenantScope(tenantId,
		specification.StatusNotIn{Statuses: specification.Statuses(
			entity.InvoiceStatusPaid,
			entity.InvoiceStatusCancelled,
			entity.InvoiceStatusRefunded,
		)},
		specification.DueBefore{At: now},
		specification.OrderBy{Field: "due_date"},
	)...)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.InvoiceResponse, 0, len(invoices))
	for _, invoice := range invoices {
		res = append(res, toOverdueInvoiceResponse(invoice, now))
	}
	return res, nil
}

// SendInvoice issues a draft if needed and queues the e-mail.
func (s *invoiceService) SendInvoice(ctx context.Context, tenantId *uuid.UUID, id uuid.UUID) (*dto.InvoiceResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	invoice, err := findInvoice(ctx, uow, tenantId, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(invoice.CustomerEmail) == "" {
		return nil, apperror.Validation("invoice cannot be sent", "customer_email is empty")
	}
	if invoice.Status == entity.InvoiceStatusCancelled {
		return nil, ErrInvalidInvoiceState.Wrap(fmt.Errorf("invoice %s is cancelled", invoice.InvoiceNumber))
	}

	issued := false
	if invoice.Status == entity.InvoiceStatusDraft {
		if err := invoice.TransitionTo(entity.InvoiceStatusSent); err != nil {
			return nil, stateError(ErrInvalidInvoiceState, err)
		}
		invoice.IssuedDate = s.now()
		if err := uow.InvoiceRepository().Update(ctx, invoice); err != nil {
			return nil, err
		}
		issued = true
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	if err := s.mailQueue.Enqueue(ctx, invoice.Id, invoice.CustomerEmail); err != nil {
		return nil, err
	}
	if issued {
		s.publisher.InvoiceIssued(ctx, invoice)
	}

	s.logger.Info("INVOICE", "Invoice e-mail queued", map[string]interface{}{
		"invoice_id": invoice.Id.String(),
		"to":         invoice.CustomerEmail,
	})
	return toInvoiceResponse(invoice), nil
}

// MarkOverdueInvoices flags sent invoices past their due date. Cycle-backed
// invoices are also handled by the billing overdue job; whichever runs
// first wins and the other skips them.
func (s *invoiceService) MarkOverdueInvoices(ctx context.Context) (*dto.BillingRunSummary, error) {
	now := s.now()
	uow := s.uowFactory.NewUnitOfWork(ctx)
	invoices, err := uow.InvoiceRepository().FindAll(ctx,
		specification.StatusIn{Statuses: specification.Statuses(entity.InvoiceStatusSent)},
		specification.DueBefore{At: now},
	)
	if err != nil {
		return nil, err
	}

	summary := newRunSummary(JobOverdueInvoices, now)
	for _, invoice := range invoices {
		invoiceId := invoice.Id
		result := dto.BillingRunResult{InvoiceId: &invoiceId, Action: "overdue"}
		if invoice.SubscriptionId != nil {
			result.SubscriptionId = *invoice.SubscriptionId
		}
		if err := invoice.TransitionTo(entity.InvoiceStatusOverdue); err != nil {
			result.Error = err.Error()
		} else if err := uow.InvoiceRepository().Update(ctx, invoice); err != nil {
			result.Error = err.Error()
		} else {
			result.Success = true
		}
		summary.add(result)
	}
	summary.Duration = time.Since(summary.started).String()

	s.logger.Info("INVOICE", "Overdue invoices marked", map[string]interface{}{
		"processed": summary.Processed,
		"failed":    summary.Failed,
	})
	return &summary.BillingRunSummary, nil
}

func (s *invoiceService) ExportInvoices(ctx context.Context, tenantId *uuid.UUID, req *dto.ExportInvoicesRequest) (*dto.ExportFile, error) {
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return nil, apperror.Validation("invalid export", err.Error())
	}

	now := s.now()
	filters := tenantScope(tenantId)
	if req.Status != "" {
		filters = append(filters, specification.StatusIn{Statuses: []string{req.Status}})
	}
	if req.Period != "" {
		_, r, err := resolvePeriod(req.Period, now)
		if err != nil {
			return nil, err
		}
		filters = append(filters, specification.IssuedBetween{Start: r.Start, End: r.End})
	}
	filters = append(filters, specification.OrderBy{Field: "issued_date"})

	uow := s.uowFactory.NewUnitOfWork(ctx)
	invoices, err := uow.InvoiceRepository().FindAll(ctx, filters...)
	if err != nil {
		return nil, err
	}

	file, err := export.Invoices(format, invoices, now)
	if err != nil {
		return nil, err
	}
	s.logger.Info("INVOICE", "Invoices exported", map[string]interface{}{
		"format": string(format),
		"count":  len(invoices),
	})
	return &dto.ExportFile{
		FileName:    file.Name,
		ContentType: file.ContentType,
		Content:     file.Content,
	}, nil
}

func metadataString(metadata map[string]interface{}, key string) string {
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}
