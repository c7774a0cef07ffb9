package notify

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Mailer sends one message to one address
type Mailer interface {
	Send(ctx context.Context, address, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NoopMailer is used when no SMTP server is configured
type NoopMailer struct{}

func (NoopMailer) Send(context.Context, string, string, string) error { return nil }

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer returns a NoopMailer when cfg has no host.
func NewMailer(cfg SMTPConfig) Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		log.Info("SMTP_HOST not set, email notifications are disabled")
		return NoopMailer{}
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, address, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", address)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	// gomail has no deadline support, the send is abandoned when ctx ends
	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "send email to %s", address)
		}
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "send email to %s", address)
	}
}
