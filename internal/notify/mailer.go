package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Mailer sends templated mail over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	log    zerolog.Logger
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func NewMailer(cfg SMTPConfig, log zerolog.Logger) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		log:    log.With().Str("component", "mailer").Logger(),
	}
}

func (m *Mailer) Send(ctx context.Context, tmpl Template, recipient string, data Data, attachments ...Attachment) error {
	subject, body, err := Render(tmpl, data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	for _, att := range attachments {
		content := att.Content
		msg.Attach(att.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(content))
			return err
		}))
	}

	// gomail has no context support; run the dial in a goroutine and respect
	// the caller's deadline.
	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		m.log.Debug().Str("template", string(tmpl)).Str("to", recipient).Msg("mail sent")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
