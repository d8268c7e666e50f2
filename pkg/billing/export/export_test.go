package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"hq-billing-be/internal/entity"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleInvoices() []*entity.Invoice {
	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	paid := issued.AddDate(0, 0, 3)
	return []*entity.Invoice{
		{
			Id:             uuid.New(),
			TenantId:       uuid.New(),
			InvoiceNumber:  "INV-202603-ABCDEF12",
			Status:         entity.InvoiceStatusPaid,
			IssuedDate:     issued,
			DueDate:        issued.AddDate(0, 0, 7),
			PaidDate:       &paid,
			Subtotal:       decimal.RequireFromString("100"),
			TaxAmount:      decimal.RequireFromString("11"),
			DiscountAmount: decimal.Zero,
			TotalAmount:    decimal.RequireFromString("111"),
			Currency:       "USD",
			CustomerName:   "Acme",
			CustomerEmail:  "billing@acme.test",
			Items: []entity.InvoiceItem{
				{Type: entity.InvoiceItemSubscription, Description: "Pro plan", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100), Amount: decimal.NewFromInt(100)},
				{Type: entity.InvoiceItemTax, Description: "Tax (11%)", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(11), Amount: decimal.NewFromInt(11)},
			},
		},
		{
			Id:            uuid.New(),
			TenantId:      uuid.New(),
			InvoiceNumber: "INV-M-20260301-12345678",
			Status:        entity.InvoiceStatusSent,
			IssuedDate:    issued,
			DueDate:       issued.AddDate(0, 0, 7),
			Subtotal:      decimal.RequireFromString("150000"),
			TotalAmount:   decimal.RequireFromString("150000"),
			Currency:      "IDR",
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("docx")
	assert.Error(t, err)
}

func TestCSVUsesCurrencyPlaces(t *testing.T) {
	content, err := CSV(sampleInvoices())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, columns, records[0])
	assert.Equal(t, "INV-202603-ABCDEF12", records[1][0])
	assert.Equal(t, "111.00", records[1][11])
	assert.Equal(t, "2026-03-04", records[1][7])
	assert.Equal(t, "150000", records[2][11])
	assert.Equal(t, "", records[2][7])
}

func TestXLSXRoundTrip(t *testing.T) {
	content, err := XLSX(sampleInvoices())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Invoice Number", rows[0][0])
	assert.Equal(t, "INV-M-20260301-12345678", rows[2][0])
}

func TestPDFOutputs(t *testing.T) {
	invoices := sampleInvoices()

	summary, err := PDF(invoices, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(summary, []byte("%PDF")))

	single, err := InvoicePDF(invoices[0])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(single, []byte("%PDF")))
}

func TestInvoicesNamesFile(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	file, err := Invoices(FormatCSV, sampleInvoices(), at)
	require.NoError(t, err)
	assert.Equal(t, "invoices-20260301-103000.csv", file.Name)
	assert.Equal(t, "text/csv", file.ContentType)
}
