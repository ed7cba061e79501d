// Package mailer provides the outbound mail transport used by the mail
// dispatch workers.
package mailer

import (
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"

	"github.com/avolkov/taskhub-api/internal/config"
	"github.com/avolkov/taskhub-api/internal/platform/logger"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Transport delivers a single message. Implementations must be safe for
// concurrent use: the worker pool calls Send from multiple goroutines.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPTransport delivers messages over SMTP using go-mail.
type SMTPTransport struct {
	cfg config.SMTPConfig
}

// NewSMTPTransport creates an SMTP transport from the given configuration.
func NewSMTPTransport(cfg config.SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &SMTPTransport{cfg: cfg}, nil
}

var _ Transport = (*SMTPTransport)(nil)

// Send implements Transport.Send over SMTP.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	m := mail.NewMsg()

	if t.cfg.FromName != "" {
		if err := m.FromFormat(t.cfg.FromName, t.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := m.From(t.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if msg.ToName != "" {
		if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
			return fmt.Errorf("setting to address: %w", err)
		}
	} else {
		if err := m.To(msg.To); err != nil {
			return fmt.Errorf("setting to address: %w", err)
		}
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
	}

	if t.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Implicit TLS for port 465, STARTTLS otherwise.
		if t.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if t.cfg.Username != "" && t.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}

	client, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// LogTransport logs messages instead of delivering them. It is the
// fallback when no SMTP host is configured, so local environments still
// surface verification and recovery links.
type LogTransport struct{}

var _ Transport = (*LogTransport)(nil)

// Send implements Transport.Send by logging the message at WARN level.
func (t *LogTransport) Send(ctx context.Context, msg *Message) error {
	logger.FromContext(ctx).Warn("SMTP not configured - logging mail instead of sending",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}

// NewTransport returns the SMTP transport when a host is configured and
// the logging fallback otherwise.
func NewTransport(cfg config.SMTPConfig) (Transport, error) {
	if cfg.Host == "" {
		return &LogTransport{}, nil
	}
	return NewSMTPTransport(cfg)
}
