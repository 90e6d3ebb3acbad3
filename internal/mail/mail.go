// Package mail sends transactional email through SendGrid, Mailgun or, in
// development, the log.
package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/clinic-scheduling/internal/config"
	"github.com/iliyamo/clinic-scheduling/internal/logging"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// sendTimeout bounds a provider call made outside a request context.
const sendTimeout = 15 * time.Second

// New builds the Sender selected by cfg.Provider, guarded by a circuit
// breaker so a provider outage does not stall every password reset.
func New(cfg config.MailConfig) (Sender, error) {
	var (
		s   Sender
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "sendgrid":
		s, err = NewSendGrid(cfg.SendGridKey, cfg.From)
	case "mailgun":
		s, err = NewMailgun(cfg.MailgunDomain, cfg.MailgunKey, cfg.From)
	case "log", "":
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithBreaker(s, cfg.Provider), nil
}

// LogSender writes messages to the application log instead of sending
// them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m Message) error {
	logging.Info().Str("to", m.To).Str("subject", m.Subject).Str("body", m.Text).Msg("mail (log provider)")
	return nil
}

// breakerSender trips after repeated provider failures and fails fast
// until the provider recovers.
type breakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// WithBreaker wraps s in a circuit breaker named after the provider.
func WithBreaker(s Sender, name string) Sender {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mail-" + name,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("mail circuit breaker state change")
		},
	})
	return &breakerSender{next: s, cb: cb}
}

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("mail provider unavailable")

func (b *breakerSender) Send(ctx context.Context, m Message) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, m)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// PasswordReset builds the reset email pointing at link.
func PasswordReset(to, name, link string, ttl time.Duration) Message {
	greeting := "Hola"
	if name = strings.TrimSpace(name); name != "" {
		greeting += " " + name
	}
	minutes := int(ttl.Minutes())
	text := fmt.Sprintf("%s,\n\nRecibimos una solicitud para restablecer tu contraseña.\n"+
		"Abre este enlace (válido por %d minutos):\n%s\n\nSi no fuiste tú, ignora este correo.\n",
		greeting, minutes, link)
	body := fmt.Sprintf(`<p>%s,</p><p>Recibimos una solicitud para restablecer tu contraseña.</p>`+
		`<p><a href="%s">Restablecer contraseña</a> (válido por %d minutos)</p>`+
		`<p>Si no fuiste tú, ignora este correo.</p>`,
		html.EscapeString(greeting), html.EscapeString(link), minutes)
	return Message{To: to, Subject: "Restablecer contraseña", Text: text, HTML: body}
}

// Async sends m in the background with its own deadline, logging the
// outcome.  The caller's response never waits on the provider.
func Async(s Sender, m Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := s.Send(ctx, m); err != nil {
			logging.Error().Err(err).Str("to", m.To).Msg("mail send failed")
		}
	}()
}
