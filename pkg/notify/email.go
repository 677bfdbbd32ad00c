package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// EmailConfig describes the SMTP relay and the envelope.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// TLS is "opportunistic", "mandatory" or "none".
	TLS string
}

// EmailNotifier mails the announcement to a fixed list of recipients.
type EmailNotifier struct {
	cfg  EmailConfig
	opts []mail.Option
}

// NewEmailNotifier validates cfg and prepares the SMTP client options. The
// connection is opened per message.
func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("email notifier: smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("email notifier: sender is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("email notifier: at least one recipient is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	var policy mail.TLSPolicy
	switch cfg.TLS {
	case "", "opportunistic":
		policy = mail.TLSOpportunistic
	case "mandatory":
		policy = mail.TLSMandatory
	case "none":
		policy = mail.NoTLS
	default:
		return nil, fmt.Errorf("email notifier: unknown tls policy %q", cfg.TLS)
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &EmailNotifier{cfg: cfg, opts: opts}, nil
}

func (e *EmailNotifier) Name() string { return "email" }

// Send mails message with its first line as the subject.
func (e *EmailNotifier) Send(ctx context.Context, message string) error {
	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return fmt.Errorf("%w: sender: %w", ErrNotification, err)
	}
	if err := m.To(e.cfg.To...); err != nil {
		return fmt.Errorf("%w: recipients: %w", ErrNotification, err)
	}
	subject, _, _ := strings.Cut(message, "\n")
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, message)

	client, err := mail.NewClient(e.cfg.Host, e.opts...)
	if err != nil {
		return fmt.Errorf("%w: smtp client: %w", ErrNotification, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("%w: send mail: %w", ErrNotification, err)
	}
	return nil
}
