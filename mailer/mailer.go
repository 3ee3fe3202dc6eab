// Package mailer provides outbound email delivery for alerting and CRM
// notifications. The production implementation speaks SMTP directly; the
// Sender interface keeps consumers testable and lets deployments without
// mail configured degrade gracefully via IsConfigured.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/clarioncrm/clarion"
)

// Static errors for the mailer
var (
	ErrNotConfigured = errors.New("mailer not configured")
	ErrNoRecipients  = errors.New("message has no recipients")
	ErrSubjectEmpty  = errors.New("message subject cannot be empty")
	ErrBodyEmpty     = errors.New("message body cannot be empty")
)

// Message is an outbound email.
type Message struct {
	Subject  string
	To       []string
	TextBody string
	HTMLBody string
}

func (m *Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	if m.Subject == "" {
		return ErrSubjectEmpty
	}
	if m.TextBody == "" && m.HTMLBody == "" {
		return ErrBodyEmpty
	}
	return nil
}

// Sender delivers email messages.
type Sender interface {
	// IsConfigured reports whether the sender has enough configuration to
	// attempt delivery. Callers should treat false as "alerting disabled"
	// rather than an error.
	IsConfigured() bool

	// Send delivers the message. Returns an error when delivery fails or
	// the sender is unconfigured.
	Send(ctx context.Context, msg Message) error
}

// Config holds SMTP delivery settings. A zero Host leaves the mailer
// unconfigured, which is a valid deployment state.
type Config struct {
	Host     string `yaml:"host" toml:"host" env:"MAIL_HOST"`
	Port     int    `yaml:"port" toml:"port" env:"MAIL_PORT" default:"587"`
	Username string `yaml:"username" toml:"username" env:"MAIL_USERNAME"`
	Password string `yaml:"password" toml:"password" env:"MAIL_PASSWORD"`
	From     string `yaml:"from" toml:"from" env:"MAIL_FROM"`
}

// SMTPSender is the production Sender backed by net/smtp.
type SMTPSender struct {
	config Config
	logger clarion.Logger
	// send is swapped in tests; defaults to smtp.SendMail.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a sender for the given configuration. A nil
// logger defaults to a no-op.
func NewSMTPSender(cfg Config, logger clarion.Logger) *SMTPSender {
	if logger == nil {
		logger = clarion.NoopLogger{}
	}
	return &SMTPSender{config: cfg, logger: logger, send: smtp.SendMail}
}

// IsConfigured implements Sender.
func (s *SMTPSender) IsConfigured() bool {
	return s.config.Host != "" && s.config.From != ""
}

// Send implements Sender. The context bounds are advisory only; net/smtp
// has no context support, so cancellation is checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mail send aborted: %w", err)
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.send(addr, auth, s.config.From, msg.To, s.encode(msg)); err != nil {
		return fmt.Errorf("sending mail via %s: %w", addr, err)
	}

	s.logger.Debug("Mail sent", "subject", msg.Subject, "recipients", len(msg.To))
	return nil
}

// encode renders the RFC 5322 message. When both bodies are present the
// HTML part wins; multipart/alternative is not needed for alert mail.
func (s *SMTPSender) encode(msg Message) []byte {
	body := msg.TextBody
	contentType := "text/plain; charset=utf-8"
	if msg.HTMLBody != "" {
		body = msg.HTMLBody
		contentType = "text/html; charset=utf-8"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
