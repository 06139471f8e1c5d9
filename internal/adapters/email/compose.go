package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Message kinds, also sent as the "kind" tag.
const (
	KindInvoice  = "invoice"
	KindReceipt  = "receipt"
	KindReminder = "overdue_reminder"
)

// PaymentMessage is the data rendered into payment emails.
type PaymentMessage struct {
	Kind          string
	To            string
	RecipientName string
	Organization  string
	InvoiceNumber string
	Amount        float64
	Currency      string
	DueDate       *time.Time
	PaidAt        *time.Time
	PaymentID     string
}

var subjects = map[string]string{
	KindInvoice:  "Invoice %s from %s",
	KindReceipt:  "Invoice %s from %s has been paid",
	KindReminder: "Reminder: invoice %s from %s is overdue",
}

var bodies = template.Must(template.New("payment").Funcs(template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2 January 2006")
	},
}).Parse(`<p>Hi {{.RecipientName}},</p>
{{- if eq .Kind "invoice"}}
<p>{{.Organization}} has issued invoice <strong>{{.InvoiceNumber}}</strong> for <strong>{{printf "%.2f" .Amount}} {{.Currency}}</strong>{{with date .DueDate}}, due on {{.}}{{end}}.</p>
{{- else if eq .Kind "receipt"}}
<p>Invoice {{.InvoiceNumber}} for <strong>{{printf "%.2f" .Amount}} {{.Currency}}</strong> was paid{{with date .PaidAt}} on {{.}}{{end}}. Thank you for your coaching.</p>
{{- else}}
<p>Invoice <strong>{{.InvoiceNumber}}</strong> for <strong>{{printf "%.2f" .Amount}} {{.Currency}}</strong>{{with date .DueDate}} was due on {{.}}{{end}} and is still outstanding.</p>
{{- end}}
<p>{{.Organization}}</p>
`))

// Compose renders m into a SendRequest.
// PRE: m.Kind is one of the message kinds; m.To is non-empty
// POST: The request carries a kind tag, and payment_id when known
func Compose(m PaymentMessage) (SendRequest, error) {
	subject, ok := subjects[m.Kind]
	if !ok {
		return SendRequest{}, fmt.Errorf("unknown email kind %q", m.Kind)
	}
	if m.To == "" {
		return SendRequest{}, fmt.Errorf("%s email has no recipient", m.Kind)
	}
	var buf bytes.Buffer
	if err := bodies.Execute(&buf, m); err != nil {
		return SendRequest{}, fmt.Errorf("render %s email: %w", m.Kind, err)
	}
	org := m.Organization
	if org == "" {
		org = "CoachHub"
	}
	req := SendRequest{
		To:      []string{m.To},
		Subject: fmt.Sprintf(subject, m.InvoiceNumber, org),
		HTML:    buf.String(),
		Tags:    map[string]string{"kind": m.Kind},
	}
	if m.PaymentID != "" {
		req.Tags["payment_id"] = m.PaymentID
	}
	return req, nil
}
