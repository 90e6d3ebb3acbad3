package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

func NewSendGrid(key, from string) (*SendGridSender, error) {
	if key == "" || from == "" {
		return nil, errors.New("sendgrid: api key and from address are required")
	}
	return &SendGridSender{client: sendgrid.NewSendClient(key), from: sgmail.NewEmail("", from)}, nil
}

func (s *SendGridSender) Send(ctx context.Context, m Message) error {
	msg := sgmail.NewSingleEmail(s.from, m.Subject, sgmail.NewEmail("", m.To), m.Text, m.HTML)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// MailgunSender delivers through the Mailgun messages API.
type MailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
}

func NewMailgun(domain, key, from string) (*MailgunSender, error) {
	if domain == "" || key == "" || from == "" {
		return nil, errors.New("mailgun: domain, api key and from address are required")
	}
	return &MailgunSender{mg: mailgun.NewMailgun(domain, key), from: from}, nil
}

// SetAPIBase points the client at another endpoint, e.g. the EU region.
func (s *MailgunSender) SetAPIBase(url string) { s.mg.SetAPIBase(url) }

func (s *MailgunSender) Send(ctx context.Context, m Message) error {
	msg := s.mg.NewMessage(s.from, m.Subject, m.Text, m.To)
	if m.HTML != "" {
		msg.SetHtml(m.HTML)
	}
	if _, _, err := s.mg.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	return nil
}
