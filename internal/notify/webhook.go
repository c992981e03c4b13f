package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/pkg/retry"
)

// WebhookSink POSTs every completion as JSON to a fixed URL. Progress is not
// forwarded: one request per tick per timer is more than any receiver wants.
type WebhookSink struct {
	url    string
	client *http.Client
	retry  retry.Config
	logger *slog.Logger
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

func WithHTTPClient(c *http.Client) WebhookOption { return func(s *WebhookSink) { s.client = c } }

// WithRetry sets the number of attempts and the backoff base.
func WithRetry(attempts int, base time.Duration) WebhookOption {
	return func(s *WebhookSink) {
		s.retry.MaxAttempts = attempts
		s.retry.BaseDelay = base
	}
}

func NewWebhookSink(url string, logger *slog.Logger, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		retry:  retry.Config{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.OnRetry = func(attempt int, err error) {
		s.logger.Warn("webhook delivery failed, retrying",
			slog.String("url", s.url),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return s
}

func (s *WebhookSink) Progress(context.Context, domain.Progress) error { return nil }

func (s *WebhookSink) Completion(ctx context.Context, c domain.Completion) error {
	ctx, span := otel.Tracer("notify").Start(ctx, "webhook.completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.url", s.url),
		attribute.String("timer.id", c.TimerID),
	)

	body, err := JSON.Marshal(c)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encode completion: %w", err)
	}

	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.post(ctx, body)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook delivery failed")
		return err
	}
	return nil
}

func (s *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", JSON.ContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook call to %s: %w", s.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook %s returned status %d", s.url, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return retry.Permanent(fmt.Errorf("webhook %s returned status %d", s.url, resp.StatusCode))
	}
	return nil
}
