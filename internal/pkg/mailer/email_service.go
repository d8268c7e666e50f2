package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"gopkg.in/gomail.v2"
)

type Attachment struct {
	Name    string
	Content []byte
}

type InvoiceMail struct {
	To            string
	CustomerName  string
	InvoiceNumber string
	TotalAmount   string
	DueDate       string
	Status        string
	Attachment    *Attachment
}

type IEmailService interface {
	SendInvoice(mail InvoiceMail) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
}

func NewEmailService(host string, port int, username, password, senderName string) IEmailService {
	d := gomail.NewDialer(host, port, username, password)

	return &emailService{
		dialer:      d,
		senderEmail: username,
		senderName:  senderName,
	}
}

var invoiceTemplate = template.Must(template.New("invoice").Parse(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Invoice {{.InvoiceNumber}}</h2>
			<p>Hello {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
			<p>Your invoice for <strong>{{.TotalAmount}}</strong> is {{.Status}}.</p>
			<p>Due date: {{.DueDate}}</p>
			<p>The invoice is attached to this email.</p>
		</div>
`))

// RenderInvoiceBody renders the HTML body used for invoice emails.
func RenderInvoiceBody(mail InvoiceMail) (string, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, mail); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *emailService) SendInvoice(mail InvoiceMail) error {
	body, err := RenderInvoiceBody(mail)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", mail.To)
	m.SetHeader("Subject", fmt.Sprintf("Invoice %s", mail.InvoiceNumber))
	m.SetBody("text/html", body)

	if mail.Attachment != nil {
		content := mail.Attachment.Content
		m.Attach(mail.Attachment.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send invoice %s to %s: %w", mail.InvoiceNumber, mail.To, err)
	}
	return nil
}
