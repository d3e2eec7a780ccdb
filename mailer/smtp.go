package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// Config holds SMTP connection settings and the public base URL used
// to build reset and verification links.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the sender address on outgoing mail.
	From string

	// BaseURL is the storefront origin the links point at, without a
	// trailing slash, e.g. "https://shop.purebrew.example".
	BaseURL string
}

// SMTP sends account mail through a plain SMTP relay.
type SMTP struct {
	config Config
	addr   string
}

// NewSMTP describes the newsmtp operation and its observable behavior.
//
// NewSMTP may return an error when input validation, dependency calls, or security checks fail.
// NewSMTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewSMTP(config Config) (*SMTP, error) {
	if config.Host == "" {
		return nil, errors.New("mailer: host is required")
	}
	if config.Port <= 0 {
		config.Port = 587
	}
	if config.From == "" {
		return nil, errors.New("mailer: from address is required")
	}
	if config.BaseURL == "" {
		return nil, errors.New("mailer: base url is required")
	}
	return &SMTP{
		config: config,
		addr:   fmt.Sprintf("%s:%d", config.Host, config.Port),
	}, nil
}

// SendPasswordReset describes the sendpasswordreset operation and its observable behavior.
//
// SendPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// SendPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *SMTP) SendPasswordReset(ctx context.Context, to, token string) error {
	link := m.config.BaseURL + "/reset-password/" + token
	body := fmt.Sprintf(
		"A password reset was requested for your PureBrew account.\r\n\r\n"+
			"Reset it here within the next hour:\r\n%s\r\n\r\n"+
			"If you did not request this, you can ignore this message.\r\n", link)
	return m.send(ctx, to, "Reset your PureBrew password", body)
}

// SendEmailVerification describes the sendemailverification operation and its observable behavior.
//
// SendEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// SendEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *SMTP) SendEmailVerification(ctx context.Context, to, token string) error {
	link := m.config.BaseURL + "/users/emails/verify/" + token
	body := fmt.Sprintf(
		"This address was added to a PureBrew account.\r\n\r\n"+
			"Confirm it here within the next hour:\r\n%s\r\n\r\n"+
			"If this wasn't you, no action is needed.\r\n", link)
	return m.send(ctx, to, "Confirm your email address", body)
}

func (m *SMTP) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := email.NewEmail()
	msg.From = m.config.From
	msg.To = []string{to}
	msg.Subject = subject
	msg.Text = []byte(body)

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	if err := msg.Send(m.addr, auth); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
