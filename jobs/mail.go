package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
)

// Mailer delivers one plain-text message.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPMailer sends mail through an unauthenticated relay such as Mailpit.
type SMTPMailer struct {
	Host string
	Port int
	From string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer constructs a mailer for host:port.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{Host: host, Port: port, From: from, send: smtp.SendMail}
}

// Send writes msg to the relay.
func (m *SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if m == nil || m.Host == "" {
		return errors.New("smtp mailer not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)

	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	return send(addr, nil, m.From, []string{msg.To}, []byte(b.String()))
}

// MailJob handles TaskTypeSendEmail.
type MailJob struct {
	Mailer Mailer
	Logger *slog.Logger
}

// Handle processes TaskTypeSendEmail tasks.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return fmt.Errorf("mail: recipient required: %w", asynq.SkipRetry)
	}
	logger := jobLogger(j.Logger, TaskTypeSendEmail)
	if j.Mailer == nil {
		logger.Info("mail delivery disabled", slog.String("to", payload.To), slog.String("subject", payload.Subject))
		return nil
	}
	if err := j.Mailer.Send(ctx, payload); err != nil {
		logger.Error("send mail", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	logger.Info("mail sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
