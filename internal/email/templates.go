package email

import "time"

// EmailTemplate defines the interface for email templates
type EmailTemplate interface {
	Subject() string
	TemplateName() string
}

// TemplateLineItem is one product line as rendered in an email.
type TemplateLineItem struct {
	Name           string
	Quantity       int32
	UnitPriceCents int64
}

// OrderConfirmationEmail represents an order confirmation email
type OrderConfirmationEmail struct {
	Email         string
	CustomerName  string
	OrderID       string
	OrderDate     time.Time
	Items         []TemplateLineItem
	TotalCents    int64
	PaymentMethod string
}

func (e OrderConfirmationEmail) Subject() string {
	return "Order Confirmation - " + e.OrderID
}

func (e OrderConfirmationEmail) TemplateName() string {
	return "order_confirmation"
}

// PaymentReceiptEmail represents a payment confirmation email
type PaymentReceiptEmail struct {
	Email           string
	CustomerName    string
	OrderID         string
	TotalCents      int64
	PaymentMethod   string
	PaymentIntentID string
	ConfirmedAt     time.Time
}

func (e PaymentReceiptEmail) Subject() string {
	return "Payment Received - " + e.OrderID
}

func (e PaymentReceiptEmail) TemplateName() string {
	return "payment_receipt"
}

// Template bodies. Each template name has an HTML and a plain-text
// variant; the service renders both into a multipart message.
const templateText = `
{{define "order_confirmation"}}
<h1>Thanks for your order, {{.CustomerName}}!</h1>
<p>Order <strong>{{.OrderID}}</strong> placed {{.OrderDate.Format "Jan 2, 2006"}}.</p>
<table>
{{range .Items}}<tr><td>{{.Name}}</td><td>{{.Quantity}} &times; {{usd .UnitPriceCents}}</td></tr>
{{end}}</table>
<p>Total: <strong>{{usd .TotalCents}}</strong> ({{.PaymentMethod}})</p>
<p>Your downloads unlock as soon as payment is confirmed.</p>
{{end}}

{{define "order_confirmation_text"}}
Thanks for your order, {{.CustomerName}}!

Order {{.OrderID}} placed {{.OrderDate.Format "Jan 2, 2006"}}.
{{range .Items}}
  - {{.Name}}: {{.Quantity}} x {{usd .UnitPriceCents}}{{end}}

Total: {{usd .TotalCents}} ({{.PaymentMethod}})

Your downloads unlock as soon as payment is confirmed.
{{end}}

{{define "payment_receipt"}}
<h1>Payment received</h1>
<p>Hi {{.CustomerName}}, we received your payment of <strong>{{usd .TotalCents}}</strong> for order <strong>{{.OrderID}}</strong>.</p>
{{if .PaymentIntentID}}<p>Payment reference: {{.PaymentIntentID}}</p>{{end}}
<p>Your plugins are ready to download from your account.</p>
{{end}}

{{define "payment_receipt_text"}}
Payment received

Hi {{.CustomerName}}, we received your payment of {{usd .TotalCents}} for order {{.OrderID}}.
{{if .PaymentIntentID}}Payment reference: {{.PaymentIntentID}}{{end}}

Your plugins are ready to download from your account.
{{end}}
`
