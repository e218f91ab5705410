// Package mail sends rendered notifications over SMTP.
package mail

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"notifications.app/engine/core/config"
)

type Message struct {
	To      []string
	Bcc     []string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	if len(msg.To) > 0 {
		m.SetHeader("To", msg.To...)
	} else {
		m.SetHeader("To", s.from)
	}
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", msg.Bcc...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

// Batches splits addresses into groups of at most size.
func Batches(addresses []string, size int) [][]string {
	if size <= 0 {
		size = len(addresses)
	}
	var out [][]string
	for start := 0; start < len(addresses); start += size {
		end := min(start+size, len(addresses))
		out = append(out, addresses[start:end])
	}
	return out
}
