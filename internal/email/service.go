package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// Service handles email composition and sending
type Service struct {
	sender        Sender
	fromAddress   string
	fromName      string
	templateCache *template.Template
}

// NewService creates a new email service
func NewService(sender Sender, fromAddress, fromName string) (*Service, error) {
	tmpl, err := template.New("email").Funcs(template.FuncMap{
		"usd": formatUSD,
	}).Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &Service{
		sender:        sender,
		fromAddress:   fromAddress,
		fromName:      fromName,
		templateCache: tmpl,
	}, nil
}

// SendOrderConfirmation sends an order confirmation email
func (s *Service) SendOrderConfirmation(ctx context.Context, data OrderConfirmationEmail) error {
	htmlBody, textBody, err := s.renderTemplate(data.TemplateName(), data)
	if err != nil {
		return fmt.Errorf("failed to render order confirmation template: %w", err)
	}

	email := &Email{
		To:       []string{data.Email},
		From:     fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress),
		Subject:  data.Subject(),
		HTMLBody: htmlBody,
		TextBody: textBody,
	}

	_, err = s.sender.Send(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send order confirmation email: %w", err)
	}

	return nil
}

// SendPaymentReceipt sends a payment confirmation email
func (s *Service) SendPaymentReceipt(ctx context.Context, data PaymentReceiptEmail) error {
	htmlBody, textBody, err := s.renderTemplate(data.TemplateName(), data)
	if err != nil {
		return fmt.Errorf("failed to render payment receipt template: %w", err)
	}

	email := &Email{
		To:       []string{data.Email},
		From:     fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress),
		Subject:  data.Subject(),
		HTMLBody: htmlBody,
		TextBody: textBody,
	}

	_, err = s.sender.Send(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send payment receipt email: %w", err)
	}

	return nil
}

// renderTemplate renders the HTML and plain-text variants of a template.
func (s *Service) renderTemplate(name string, data any) (htmlBody, textBody string, err error) {
	var html bytes.Buffer
	if err := s.templateCache.ExecuteTemplate(&html, name, data); err != nil {
		return "", "", fmt.Errorf("template %s: %w", name, err)
	}

	var text bytes.Buffer
	if err := s.templateCache.ExecuteTemplate(&text, name+"_text", data); err != nil {
		return "", "", fmt.Errorf("template %s_text: %w", name, err)
	}

	return html.String(), text.String(), nil
}

func formatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
