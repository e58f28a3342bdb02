package email

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/wneessen/go-mail"
)

// SMTPConfig describes the relay used for outgoing reports.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// StartTLS makes STARTTLS mandatory; otherwise the session stays in plain text.
	StartTLS bool
}

// SMTPMailer sends one message per connection through an authenticated relay.
type SMTPMailer struct {
	config SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{config: cfg}, nil
}

func (m *SMTPMailer) Transport() string { return TransportSMTP }

// Send dials, authenticates, sends and quits. There is no retry.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	out, err := buildMsg(msg)
	if err != nil {
		return err
	}

	client, err := m.newClient()
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("failed to send via %s:%d: %w", m.config.Host, m.config.Port, err)
	}

	log.Infof("Email sent to %s via %s:%d", msg.To, m.config.Host, m.config.Port)
	return nil
}

func (m *SMTPMailer) newClient() (*mail.Client, error) {
	policy := mail.NoTLS
	if m.config.StartTLS {
		policy = mail.TLSMandatory
	}
	opts := []mail.Option{
		mail.WithPort(m.config.Port),
		mail.WithTLSPolicy(policy),
	}
	if m.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.config.Username),
			mail.WithPassword(m.config.Password),
		)
	}
	return mail.NewClient(m.config.Host, opts...)
}

func buildMsg(msg *Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	out.Subject(msg.Subject)
	out.SetDate()
	out.SetMessageID()
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}
