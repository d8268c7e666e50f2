package service

import (
	"context"
	"encoding/json"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/pkg/logger"
	"hq-billing-be/internal/pkg/mailer"
	"hq-billing-be/internal/repository/specification"
	"hq-billing-be/internal/repository/unitofwork"
	"hq-billing-be/pkg/billing/export"
	"hq-billing-be/pkg/billing/money"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// IInvoiceMailQueue hands invoice e-mails to the background consumer so that
// SMTP latency never holds an API request.
type IInvoiceMailQueue interface {
	Enqueue(ctx context.Context, invoiceId uuid.UUID, to string) error
}

type invoiceMailQueue struct {
	publisher message.Publisher
	topicName string
}

func NewInvoiceMailQueue(publisher message.Publisher, topicName string) IInvoiceMailQueue {
	return &invoiceMailQueue{
		publisher: publisher,
		topicName: topicName,
	}
}

func (q *invoiceMailQueue) Enqueue(ctx context.Context, invoiceId uuid.UUID, to string) error {
	payload, err := json.Marshal(dto.InvoiceEmailMessage{InvoiceId: invoiceId, To: to})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return q.publisher.Publish(q.topicName, msg)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber   message.Subscriber
	topicName    string
	uowFactory   unitofwork.RepositoryFactory
	emailService mailer.IEmailService
	logger       logger.ILogger
}

// NewConsumerService builds the consumer that renders and sends queued invoice e-mails.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	emailService mailer.IEmailService,
	logger logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber:   subscriber,
		topicName:    topicName,
		uowFactory:   uowFactory,
		emailService: emailService,
		logger:       logger,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.InvoiceEmailMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("INVOICE", "Dropping malformed mail job", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	invoice, err := uow.InvoiceRepository().FindOne(ctx, specification.ByID{ID: payload.InvoiceId})
	if err != nil {
		cs.logger.Error("INVOICE", "Failed to load invoice for mail", map[string]interface{}{
			"invoice_id": payload.InvoiceId.String(),
			"error":      err.Error(),
		})
		msg.Nack()
		return
	}
	if invoice == nil {
		cs.logger.Warn("INVOICE", "Invoice for mail job no longer exists", map[string]interface{}{
			"invoice_id": payload.InvoiceId.String(),
		})
		msg.Ack()
		return
	}

	mail := mailer.InvoiceMail{
		To:            payload.To,
		CustomerName:  invoice.CustomerName,
		InvoiceNumber: invoice.InvoiceNumber,
		TotalAmount:   money.Format(invoice.TotalAmount, invoice.Currency),
		DueDate:       invoice.DueDate.Format("2 Jan 2006"),
		Status:        string(invoice.Status),
	}
	if pdf, err := export.InvoicePDF(invoice); err != nil {
		cs.logger.Warn("INVOICE", "Invoice PDF rendering failed, sending without attachment", map[string]interface{}{
			"invoice_id": invoice.Id.String(),
			"error":      err.Error(),
		})
	} else {
		mail.Attachment = &mailer.Attachment{Name: invoice.InvoiceNumber + ".pdf", Content: pdf}
	}

	// SMTP failures are not retried here; the invoice can be re-sent from the API.
	if err := cs.emailService.SendInvoice(mail); err != nil {
		cs.logger.Error("INVOICE", "Failed to send invoice e-mail", map[string]interface{}{
			"invoice_id": invoice.Id.String(),
			"to":         payload.To,
			"error":      err.Error(),
		})
		msg.Ack()
		return
	}

	cs.logger.Info("INVOICE", "Invoice e-mail sent", map[string]interface{}{
		"invoice_id":     invoice.Id.String(),
		"invoice_number": invoice.InvoiceNumber,
		"to":             payload.To,
	})
	msg.Ack()
}
