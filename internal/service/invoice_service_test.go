package service

import (
	"strings"
	"testing"

	"hq-billing-be/internal/dto"
	"hq-billing-be/internal/entity"
	"hq-billing-be/internal/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manualInvoice(t *testing.T, f *fixture, svc *invoiceService, tenant uuid.UUID) *dto.InvoiceResponse {
	t.Helper()
	res, err := svc.CreateInvoice(f.ctx, &dto.CreateInvoiceRequest{
		TenantId:      tenant,
		Currency:      "usd",
		CustomerName:  "Acme",
		CustomerEmail: "billing@acme.test",
		Items: []dto.InvoiceItemRequest{
			{Type: "subscription", Description: "Consulting", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("50")},
			{Type: "discount", Description: "Loyalty", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("10")},
		},
	})
	require.NoError(t, err)
	return res
}

func TestCreateInvoiceDraftsManualInvoice(t *testing.T) {
	f := newFixture(t)
	svc := f.invoices(nil)

	res := manualInvoice(t, f, svc, uuid.New())
	assert.Equal(t, string(entity.InvoiceStatusDraft), res.Status)
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "100.00", res.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", res.DiscountAmount.StringFixed(2))
	assert.Equal(t, "90.00", res.TotalAmount.StringFixed(2))
	assert.Equal(t, f.now.AddDate(0, 0, f.cfg.PaymentTermsDays), res.DueDate.UTC())
	assert.NotEmpty(t, res.InvoiceNumber)

	_, err := svc.CreateInvoice(f.ctx, &dto.CreateInvoiceRequest{
		TenantId: uuid.New(),
		Currency: "usd",
		Items:    []dto.InvoiceItemRequest{{Type: "bogus", Description: "", UnitPrice: decimal.NewFromInt(-1)}},
	})
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Len(t, appErr.Details, 3)
}

func TestVoidInvoiceOnlyFromDraft(t *testing.T) {
	f := newFixture(t)
	svc := f.invoices(nil)
	tenant := uuid.New()

	draft := manualInvoice(t, f, svc, tenant)
	voided, err := svc.VoidInvoice(f.ctx, &tenant, draft.Id)
	require.NoError(t, err)
	assert.Equal(t, string(entity.InvoiceStatusCancelled), voided.Status)

	sent := manualInvoice(t, f, svc, tenant)
	_, err = svc.SendInvoice(f.ctx, &tenant, sent.Id)
	require.NoError(t, err)

	_, err = svc.VoidInvoice(f.ctx, &tenant, sent.Id)
	assert.ErrorIs(t, err, ErrInvalidInvoiceState)
	assert.Equal(t, entity.InvoiceStatusSent, f.invoice(sent.Id).Status)

	other := uuid.New()
	_, err = svc.VoidInvoice(f.ctx, &other, sent.Id)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestSendInvoiceQueuesMail(t *testing.T) {
	f := newFixture(t)
	queue := &recordingQueue{}
	svc := f.invoices(queue)
	tenant := uuid.New()
	draft := manualInvoice(t, f, svc, tenant)

	res, err := svc.SendInvoice(f.ctx, nil, draft.Id)
	require.NoError(t, err)
	assert.Equal(t, string(entity.InvoiceStatusSent), res.Status)
	assert.Equal(t, []string{draft.Id.String() + ":billing@acme.test"}, queue.sent)

	_, err = svc.SendInvoice(f.ctx, nil, draft.Id)
	require.NoError(t, err)
	assert.Len(t, queue.sent, 2)
}

func TestCreditNoteOnlyAgainstPaidInvoices(t *testing.T) {
	f := newFixture(t)
	svc := f.invoices(nil)
	tenant := uuid.New()
	inv := manualInvoice(t, f, svc, tenant)

	credit := func(amount string) (*dto.InvoiceResponse, error) {
		return svc.CreateCreditNote(f.ctx, &tenant, inv.Id, &dto.CreateCreditNoteRequest{
			Reason: "goodwill",
			Items:  []dto.CreditNoteItemRequest{{Description: "Goodwill credit", Amount: decimal.RequireFromString(amount)}},
		})
	}

	_, err := credit("10")
	assert.ErrorIs(t, err, ErrInvalidInvoiceState)

	_, err = svc.SendInvoice(f.ctx, nil, inv.Id)
	require.NoError(t, err)
	_, err = svc.UpdateInvoiceStatus(f.ctx, inv.Id, &dto.UpdateInvoiceStatusRequest{
		Status:   "paid",
		Metadata: map[string]interface{}{"external_id": "wire-42"},
	})
	require.NoError(t, err)
	paid := f.invoice(inv.Id)
	require.Equal(t, entity.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidDate)

	note, err := credit("40")
	require.NoError(t, err)
	assert.Equal(t, "-40.00", note.TotalAmount.StringFixed(2))
	require.NotNil(t, note.OriginalInvoiceId)
	assert.Equal(t, inv.Id, *note.OriginalInvoiceId)
	assert.True(t, strings.HasPrefix(note.InvoiceNumber, "CN-"))
	assert.Equal(t, entity.InvoiceStatusPaid, f.invoice(inv.Id).Status)

	_, err = credit("60")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = credit("50")
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusRefunded, f.invoice(inv.Id).Status)

	_, err = svc.CreateCreditNote(f.ctx, &tenant, note.Id, &dto.CreateCreditNoteRequest{
		Items: []dto.CreditNoteItemRequest{{Description: "x", Amount: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, ErrInvalidInvoiceState)
}

func TestGenerateInvoiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.invoices(nil)
	plan := f.createPlan("Pro", "100.00")
	sub := f.createSubscription(uuid.New(), plan, entity.SubscriptionStatusActive, f.now)
	cycle := f.createCycle(sub, entity.BillingCycleStatusPending, "100.00", f.now.AddDate(0, 0, 7))

	first, err := svc.GenerateInvoice(f.ctx, cycle.Id)
	require.NoError(t, err)
	second, err := svc.GenerateInvoice(f.ctx, cycle.Id)
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)
	require.NotNil(t, first.BillingCycleId)
	assert.Equal(t, cycle.Id, *first.BillingCycleId)
	assert.True(t, cycle.TotalAmount.Equal(first.TotalAmount))

	_, err = svc.GenerateInvoice(f.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrBillingCycleNotFound)
}

func TestMarkOverdueInvoicesAndList(t *testing.T) {
	f := newFixture(t)
	svc := f.invoices(nil)
	tenant := uuid.New()

	inv := manualInvoice(t, f, svc, tenant)
	_, err := svc.SendInvoice(f.ctx, nil, inv.Id)
	require.NoError(t, err)
	manualInvoice(t, f, svc, tenant)

	f.now = f.now.AddDate(0, 0, 10)
	overdue, err := svc.GetOverdueInvoices(f.ctx, &tenant)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, 3, overdue[0].DaysOverdue)

	summary, err := svc.MarkOverdueInvoices(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, JobOverdueInvoices, summary.Job)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, entity.InvoiceStatusOverdue, f.invoice(inv.Id).Status)

	list, err := svc.ListInvoices(f.ctx, &tenant, &dto.ListInvoicesRequest{Status: "overdue"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, list.Total)
}

func TestExportInvoicesCSV(t *testing.T) {
	f := newFixture(t)
	svc := f.invoices(nil)
	tenant := uuid.New()
	inv := manualInvoice(t, f, svc, tenant)
	manualInvoice(t, f, svc, uuid.New())

	file, err := svc.ExportInvoices(f.ctx, &tenant, &dto.ExportInvoicesRequest{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasSuffix(file.FileName, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(file.Content)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], inv.InvoiceNumber)

	_, err = svc.ExportInvoices(f.ctx, &tenant, &dto.ExportInvoicesRequest{Format: "docx"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}
