// Package export renders invoice sets as CSV, XLSX or PDF. It only formats;
// selection and totals are the caller's business.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"hq-billing-be/internal/entity"
	"hq-billing-be/pkg/billing/money"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatPDF, FormatXLSX:
		return f, nil
	case "excel":
		return FormatXLSX, nil
	case "":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

type File struct {
	Name        string
	ContentType string
	Content     []byte
}

var columns = []string{
	"Invoice Number", "Status", "Tenant", "Customer", "Email",
	"Issued", "Due", "Paid", "Subtotal", "Tax", "Discount", "Total", "Currency",
}

const dateLayout = "2006-01-02"

// Invoices renders the set in the requested format.
func Invoices(format Format, invoices []*entity.Invoice, generatedAt time.Time) (*File, error) {
	var (
		content []byte
		err     error
	)
	switch format {
	case FormatCSV:
		content, err = CSV(invoices)
	case FormatXLSX:
		content, err = XLSX(invoices)
	case FormatPDF:
		content, err = PDF(invoices, generatedAt)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return &File{
		Name:        fmt.Sprintf("invoices-%s.%s", generatedAt.Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}

func row(inv *entity.Invoice) []string {
	paid := ""
	if inv.PaidDate != nil {
		paid = inv.PaidDate.Format(dateLayout)
	}
	places := money.Places(inv.Currency)
	return []string{
		inv.InvoiceNumber,
		string(inv.Status),
		inv.TenantId.String(),
		inv.CustomerName,
		inv.CustomerEmail,
		inv.IssuedDate.Format(dateLayout),
		inv.DueDate.Format(dateLayout),
		paid,
		inv.Subtotal.StringFixed(places),
		inv.TaxAmount.StringFixed(places),
		inv.DiscountAmount.StringFixed(places),
		inv.TotalAmount.StringFixed(places),
		inv.Currency,
	}
}

func CSV(invoices []*entity.Invoice) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if err := w.Write(row(inv)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func XLSX(invoices []*entity.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Invoices"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, inv := range invoices {
		values := row(inv)
		cells := make([]interface{}, len(values))
		for j, v := range values {
			cells[j] = v
		}
		// Amount columns as numbers so the sheet can sum them.
		cells[8] = inv.Subtotal.InexactFloat64()
		cells[9] = inv.TaxAmount.InexactFloat64()
		cells[10] = inv.DiscountAmount.InexactFloat64()
		cells[11] = inv.TotalAmount.InexactFloat64()

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF renders the set as a landscape summary table.
func PDF(invoices []*entity.Invoice, generatedAt time.Time) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Invoices", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated "+generatedAt.Format(time.RFC1123), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	widths := []float64{38, 20, 45, 45, 24, 24, 24, 30, 27}
	headers := []string{"Number", "Status", "Customer", "Email", "Issued", "Due", "Paid", "Total", "Currency"}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, inv := range invoices {
		r := row(inv)
		cells := []string{r[0], r[1], r[3], r[4], r[5], r[6], r[7], r[11], r[12]}
		for i, c := range cells {
			align := "L"
			if i == 7 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, truncate(c, int(widths[i]/1.8)), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// InvoicePDF renders one invoice with its lines, used as the e-mail attachment.
func InvoicePDF(inv *entity.Invoice) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	title := "Invoice"
	if inv.IsCreditNote() {
		title = "Credit Note"
	}
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, title+" "+inv.InvoiceNumber, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	info := [][2]string{
		{"Status", string(inv.Status)},
		{"Issued", inv.IssuedDate.Format(dateLayout)},
		{"Due", inv.DueDate.Format(dateLayout)},
		{"Bill to", inv.CustomerName},
		{"Email", inv.CustomerEmail},
		{"Address", inv.CustomerAddress},
	}
	for _, kv := range info {
		if kv[1] == "" {
			continue
		}
		pdf.CellFormat(30, 6, kv[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, kv[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(95, 7, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 7, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(40, 7, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range inv.Items {
		pdf.CellFormat(95, 6, truncate(item.Description, 55), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, item.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, money.Format(item.UnitPrice, inv.Currency), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, money.Format(item.Amount, inv.Currency), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	totals := [][2]string{
		{"Subtotal", money.Format(inv.Subtotal, inv.Currency)},
		{"Tax", money.Format(inv.TaxAmount, inv.Currency)},
		{"Discount", money.Format(inv.DiscountAmount, inv.Currency)},
		{"Total", money.Format(inv.TotalAmount, inv.Currency)},
	}
	for i, kv := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Helvetica", "B", 11)
		}
		pdf.CellFormat(150, 6, kv[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, kv[1], "", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, limit int) string {
	if limit < 4 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
