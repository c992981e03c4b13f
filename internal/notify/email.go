package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
)

// EmailConfig holds SMTP connection details.
type EmailConfig struct {
	Addr     string // host:port
	From     string
	To       []string
	Username string
	Password string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSink mails a short notice for every completion. Progress is dropped.
type EmailSink struct {
	cfg  EmailConfig
	send sendMailFunc
}

func NewEmailSink(cfg EmailConfig) (*EmailSink, error) {
	if cfg.Addr == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("email sink needs smtp_addr, smtp_from and smtp_to")
	}
	return &EmailSink{cfg: cfg, send: smtp.SendMail}, nil
}

func (s *EmailSink) Progress(context.Context, domain.Progress) error { return nil }

func (s *EmailSink) Completion(ctx context.Context, c domain.Completion) error {
	ctx, span := otel.Tracer("notify").Start(ctx, "email.completion")
	defer span.End()
	span.SetAttributes(attribute.String("timer.id", c.TimerID))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		host, _, _ := strings.Cut(s.cfg.Addr, ":")
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)
	}
	msg := buildMIME(s.cfg.From, s.cfg.To,
		fmt.Sprintf("Timer %s finished", c.TimerID),
		fmt.Sprintf("Timer %s reached zero at %s.\r\n", c.TimerID, c.FinishedAt),
	)

	// smtp.SendMail takes no context; run it aside so ctx still bounds the wait.
	done := make(chan error, 1)
	go func() { done <- s.send(s.cfg.Addr, auth, s.cfg.From, s.cfg.To, msg) }()

	select {
	case err := <-done:
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "smtp send failed")
			return fmt.Errorf("smtp send for %s: %w", c.TimerID, err)
		}
		return nil
	case <-ctx.Done():
		err := fmt.Errorf("email send timed out: %w", ctx.Err())
		span.RecordError(err)
		span.SetStatus(codes.Error, "timeout")
		return err
	}
}

func buildMIME(from string, to []string, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, strings.Join(to, ", "), subject, body,
	))
}
