package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/pkg/clock"
	"github.com/ramiqadoumi/go-countdown/pkg/telemetry"
)

// countdown is the per-timer scheduler goroutine. It wakes once per tick,
// recomputes the remaining time from the absolute deadline, and stops when
// the deadline passes, its context is cancelled, or it no longer owns the
// record.
func (e *Engine) countdown(ctx context.Context, id string, rn *run) {
	defer close(rn.done)

	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case scheduled := <-ticker.C():
			if !e.tick(ctx, id, rn, scheduled) {
				return
			}
		}
	}
}

// tick performs one scheduler step and reports whether the countdown goes on.
// Progress is delivered under the run context. Completion is not: the run is
// already detached by then, and nothing joins it.
func (e *Engine) tick(ctx context.Context, id string, rn *run, scheduled time.Time) bool {
	e.mu.Lock()
	rec, ok := e.timers[id]
	if !ok || rec.run != rn {
		// Deleted, or detached by pause/reset/restart: nothing left to do.
		e.mu.Unlock()
		return false
	}

	now := e.clock.Now()
	telemetry.EngineTickLagSeconds.Observe(clock.Remaining(scheduled, now).Seconds())

	remaining := clock.Millis(clock.Remaining(now, rec.targetAt))
	if remaining > 0 {
		rec.remainingMs = remaining
		p := rec.progress()
		e.mu.Unlock()

		telemetry.EngineTicksTotal.Inc()
		e.emitProgress(ctx, p)
		return true
	}

	rec.detach()
	rec.remainingMs = 0
	rec.targetAt = time.Time{}
	rec.running = false
	rec.completed = true
	c := domain.Completion{TimerID: id, FinishedAt: domain.FormatTimestamp(now)}
	e.mu.Unlock()

	telemetry.EngineCompletionsTotal.Inc()
	e.emitCompletion(c)
	e.logger.Info("timer completed", slog.String("timer_id", id))
	return false
}
