package notify

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
)

// LogSink writes every notification as a structured log line. Progress goes
// out at debug level so a busy engine does not flood info logs.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Progress(ctx context.Context, p domain.Progress) error {
	s.logger.DebugContext(ctx, "timer progress",
		slog.String("timer_id", p.TimerID),
		slog.Int64("remaining_ms", p.RemainingMs),
		slog.Int64("duration_ms", p.DurationMs),
		slog.Bool("running", p.Running),
	)
	return nil
}

func (s *LogSink) Completion(ctx context.Context, c domain.Completion) error {
	s.logger.InfoContext(ctx, "timer completed",
		slog.String("timer_id", c.TimerID),
		slog.String("finished_at", c.FinishedAt),
	)
	return nil
}
