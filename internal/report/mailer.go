package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"imgmigrate/internal/apperr"
	"imgmigrate/internal/models"
)

// DefaultPort is the SMTP submission port.
const DefaultPort = 587

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender delivers prepared messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends rendered reports, one message per recipient.
type Mailer struct {
	cfg    Config
	sender Sender
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Mailer.
type Option func(*Mailer)

// WithSender replaces the SMTP client.
func WithSender(sender Sender) Option {
	return func(m *Mailer) { m.sender = sender }
}

// WithClock sets the time source used for the subject date.
func WithClock(now func() time.Time) Option {
	return func(m *Mailer) { m.now = now }
}

// NewMailer creates a mailer for the given SMTP settings.
func NewMailer(cfg Config, opts ...Option) *Mailer {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	m := &Mailer{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "report"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send mails the report for findings to every recipient. An empty recipient
// list is a no-op.
func (m *Mailer) Send(ctx context.Context, forumURL string, findings []models.Finding, recipients []string) error {
	recipients = cleanRecipients(recipients)
	if len(recipients) == 0 {
		return nil
	}
	if strings.TrimSpace(m.cfg.From) == "" {
		return apperr.New(apperr.KindMail, "mail.from is not configured")
	}

	body := Render(forumURL, findings)
	subject := Subject(m.now(), len(findings))

	messages := make([]*mail.Msg, 0, len(recipients))
	for _, recipient := range recipients {
		msg := mail.NewMsg()
		if err := msg.From(m.cfg.From); err != nil {
			return apperr.Wrap(apperr.KindMail, err, "invalid sender address %q", m.cfg.From)
		}
		if err := msg.To(recipient); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", recipient, err)
		}
		msg.Subject(subject)
		msg.SetBodyString(mail.TypeTextPlain, body)
		messages = append(messages, msg)
	}

	sender, err := m.client()
	if err != nil {
		return err
	}
	if err := sender.DialAndSendWithContext(ctx, messages...); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	m.logger.Info("report sent", "recipients", len(recipients), "images", len(findings))
	return nil
}

func (m *Mailer) client() (Sender, error) {
	if m.sender != nil {
		return m.sender, nil
	}
	if strings.TrimSpace(m.cfg.Host) == "" {
		return nil, apperr.New(apperr.KindMail, "mail.host is not configured")
	}
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return client, nil
}

func cleanRecipients(recipients []string) []string {
	out := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
