package engine

import (
	"context"
	"time"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/pkg/telemetry"
)

// record is the engine-private state of one timer. Every field is guarded
// by Engine.mu.
type record struct {
	seq         uint64
	id          string
	name        string
	durationMs  int64
	remainingMs int64
	// targetAt is the absolute deadline; meaningful only while running.
	targetAt  time.Time
	running   bool
	completed bool
	createdAt time.Time

	// run is non-nil exactly while a scheduler goroutine owns the countdown.
	run *run
}

// run is the handle to one scheduler goroutine.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// join waits for the goroutine to exit. It must be called without holding
// Engine.mu, because the goroutine takes the lock once per tick. nil-safe.
func (r *run) join() {
	if r == nil {
		return
	}
	<-r.done
}

func (rec *record) attach(rn *run) {
	rec.run = rn
	telemetry.EngineTimersRunning.Inc()
}

// detach cancels and unhooks the current run, returning it so the caller can
// join it after releasing the lock. Once detached, the goroutine can no
// longer touch the record or emit for it.
func (rec *record) detach() *run {
	rn := rec.run
	if rn == nil {
		return nil
	}
	rec.run = nil
	rn.cancel()
	telemetry.EngineTimersRunning.Dec()
	return rn
}

func (rec *record) snapshot() domain.Timer {
	return domain.Timer{
		ID:          rec.id,
		Name:        rec.name,
		DurationMs:  rec.durationMs,
		RemainingMs: rec.remainingMs,
		Running:     rec.running,
		Completed:   rec.completed,
		CreatedAt:   domain.FormatTimestamp(rec.createdAt),
	}
}

func (rec *record) progress() domain.Progress {
	return domain.Progress{
		TimerID:     rec.id,
		RemainingMs: rec.remainingMs,
		DurationMs:  rec.durationMs,
		Running:     rec.running,
	}
}
