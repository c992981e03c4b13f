// Package engine is the countdown-timer registry.
//
// An Engine owns every timer record behind a single mutex. Start and Resume
// attach one scheduler goroutine per timer; Pause, Reset, Delete and a
// restarting Start detach it, cancel its context and wait for it to exit
// before returning, so callers never observe a notification from a countdown
// they have already stopped.
package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/internal/notify"
	"github.com/ramiqadoumi/go-countdown/pkg/clock"
	"github.com/ramiqadoumi/go-countdown/pkg/telemetry"
)

const (
	DefaultTickInterval  = time.Second
	DefaultNotifyTimeout = 5 * time.Second
)

// Operation outcomes reported in countdown_engine_operations_total.
const (
	outcomeOK        = "ok"
	outcomeNoop      = "noop"
	outcomeNotFound  = "not_found"
	outcomeDuplicate = "duplicate"
	outcomeLimit     = "limit"
)

// Engine is the timer registry. The zero value is not usable; call New.
type Engine struct {
	mu     sync.Mutex
	timers map[string]*record
	seq    uint64

	sink          notify.Sink
	clock         clock.Clock
	interval      time.Duration
	maxTimers     int
	notifyTimeout time.Duration
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c clock.Clock) Option           { return func(e *Engine) { e.clock = c } }
func WithTickInterval(d time.Duration) Option  { return func(e *Engine) { e.interval = d } }
func WithLogger(l *slog.Logger) Option         { return func(e *Engine) { e.logger = l } }
func WithNotifyTimeout(d time.Duration) Option { return func(e *Engine) { e.notifyTimeout = d } }

// WithMaxTimers caps how many timers may exist at once. Zero means no cap;
// one gives the single-timer variant.
func WithMaxTimers(n int) Option { return func(e *Engine) { e.maxTimers = n } }

// New constructs an Engine delivering notifications to sink.
// A nil sink discards notifications.
func New(sink notify.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = notify.Discard
	}
	e := &Engine{
		timers:        make(map[string]*record),
		sink:          sink,
		clock:         clock.Real(),
		interval:      DefaultTickInterval,
		notifyTimeout: DefaultNotifyTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.interval <= 0 {
		e.interval = DefaultTickInterval
	}
	if e.notifyTimeout <= 0 {
		e.notifyTimeout = DefaultNotifyTimeout
	}
	return e
}

// Create registers a new idle timer. The duration is taken as given:
// zero and negative values are accepted and complete on the first tick
// once started.
func (e *Engine) Create(id, name string, durationMs int64) (domain.Timer, error) {
	e.mu.Lock()
	if _, exists := e.timers[id]; exists {
		e.mu.Unlock()
		e.count("create", outcomeDuplicate)
		return domain.Timer{}, &domain.DuplicateTimerError{TimerID: id}
	}
	if e.maxTimers > 0 && len(e.timers) >= e.maxTimers {
		e.mu.Unlock()
		e.count("create", outcomeLimit)
		return domain.Timer{}, &domain.TimerLimitError{Limit: e.maxTimers}
	}

	e.seq++
	rec := &record{
		seq:         e.seq,
		id:          id,
		name:        name,
		durationMs:  durationMs,
		remainingMs: durationMs,
		createdAt:   e.clock.Now(),
	}
	e.timers[id] = rec
	snap := rec.snapshot()
	telemetry.EngineTimers.Set(float64(len(e.timers)))
	e.mu.Unlock()

	e.count("create", outcomeOK)
	e.logger.Info("timer created",
		slog.String("timer_id", id),
		slog.String("name", name),
		slog.Int64("duration_ms", durationMs),
	)
	return snap, nil
}

// List returns a snapshot of every timer in creation order.
func (e *Engine) List() []domain.Timer {
	e.mu.Lock()
	recs := make([]*record, 0, len(e.timers))
	for _, rec := range e.timers {
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, func(a, b *record) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]domain.Timer, len(recs))
	for i, rec := range recs {
		out[i] = rec.snapshot()
	}
	e.mu.Unlock()
	return out
}

// Get returns a snapshot of one timer.
func (e *Engine) Get(id string) (domain.Timer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.timers[id]
	if !ok {
		return domain.Timer{}, &domain.TimerNotFoundError{TimerID: id}
	}
	return rec.snapshot(), nil
}

// Delete removes a timer. Any running countdown is cancelled and has exited
// by the time Delete returns; no notification for id follows.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	rec, ok := e.timers[id]
	if !ok {
		e.mu.Unlock()
		e.count("delete", outcomeNotFound)
		return &domain.TimerNotFoundError{TimerID: id}
	}
	delete(e.timers, id)
	old := rec.detach()
	telemetry.EngineTimers.Set(float64(len(e.timers)))
	e.mu.Unlock()

	old.join()
	e.count("delete", outcomeOK)
	e.logger.Info("timer deleted", slog.String("timer_id", id))
	return nil
}

// Start (re)starts the countdown from the timer's current remaining time.
// A countdown already in progress for id is stopped first, so at most one
// scheduler goroutine ever runs per timer.
func (e *Engine) Start(id string) error {
	return e.start("start", id, false)
}

// Resume continues a paused countdown. It is a no-op on a running timer.
// A timer with nothing left (completed or never positive) resumes from its
// full configured duration.
func (e *Engine) Resume(id string) error {
	return e.start("resume", id, true)
}

func (e *Engine) start(op, id string, resume bool) error {
	e.mu.Lock()
	rec, ok := e.timers[id]
	if !ok {
		e.mu.Unlock()
		e.count(op, outcomeNotFound)
		return &domain.TimerNotFoundError{TimerID: id}
	}
	if resume {
		if rec.running {
			e.mu.Unlock()
			e.count(op, outcomeNoop)
			return nil
		}
		if rec.remainingMs <= 0 {
			rec.remainingMs = rec.durationMs
		}
	}

	old := rec.detach()
	if rec.remainingMs < 0 {
		rec.remainingMs = 0
	}
	rec.targetAt = e.clock.Now().Add(clock.FromMillis(rec.remainingMs))
	rec.running = true
	rec.completed = false

	ctx, cancel := context.WithCancel(context.Background())
	rn := &run{cancel: cancel, done: make(chan struct{})}
	rec.attach(rn)
	p := rec.progress()
	e.mu.Unlock()

	old.join()
	e.emitProgress(context.Background(), p)
	go e.countdown(ctx, id, rn)

	e.count(op, outcomeOK)
	e.logger.Debug("timer started",
		slog.String("timer_id", id),
		slog.String("op", op),
		slog.Int64("remaining_ms", p.RemainingMs),
	)
	return nil
}

// Pause freezes a running countdown at its current remaining time.
// It is a no-op on a timer that is not running.
func (e *Engine) Pause(id string) error {
	e.mu.Lock()
	rec, ok := e.timers[id]
	if !ok {
		e.mu.Unlock()
		e.count("pause", outcomeNotFound)
		return &domain.TimerNotFoundError{TimerID: id}
	}
	if !rec.running {
		e.mu.Unlock()
		e.count("pause", outcomeNoop)
		return nil
	}

	old := rec.detach()
	rec.remainingMs = clock.Millis(clock.Remaining(e.clock.Now(), rec.targetAt))
	rec.targetAt = time.Time{}
	rec.running = false
	p := rec.progress()
	e.mu.Unlock()

	old.join()
	e.emitProgress(context.Background(), p)
	e.count("pause", outcomeOK)
	e.logger.Debug("timer paused", slog.String("timer_id", id), slog.Int64("remaining_ms", p.RemainingMs))
	return nil
}

// Reset stops any countdown and restores the full configured duration.
func (e *Engine) Reset(id string) error {
	e.mu.Lock()
	rec, ok := e.timers[id]
	if !ok {
		e.mu.Unlock()
		e.count("reset", outcomeNotFound)
		return &domain.TimerNotFoundError{TimerID: id}
	}

	old := rec.detach()
	rec.remainingMs = rec.durationMs
	rec.targetAt = time.Time{}
	rec.running = false
	rec.completed = false
	p := rec.progress()
	e.mu.Unlock()

	old.join()
	e.emitProgress(context.Background(), p)
	e.count("reset", outcomeOK)
	e.logger.Debug("timer reset", slog.String("timer_id", id))
	return nil
}

// Close stops every running countdown, freezing each at its remaining time,
// and waits for all scheduler goroutines to exit. No notifications are sent.
// The engine stays usable afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	now := e.clock.Now()
	var runs []*run
	for _, rec := range e.timers {
		if !rec.running {
			continue
		}
		runs = append(runs, rec.detach())
		rec.remainingMs = clock.Millis(clock.Remaining(now, rec.targetAt))
		rec.targetAt = time.Time{}
		rec.running = false
	}
	e.mu.Unlock()

	for _, rn := range runs {
		rn.join()
	}
	e.logger.Info("engine closed", slog.Int("stopped", len(runs)))
}

// emitProgress delivers p under parent bounded by the notify timeout.
// Scheduler ticks pass their run context, so detaching the run aborts the
// delivery and join returns promptly.
func (e *Engine) emitProgress(parent context.Context, p domain.Progress) {
	ctx, cancel := context.WithTimeout(parent, e.notifyTimeout)
	defer cancel()
	if err := e.sink.Progress(ctx, p); err != nil {
		e.logger.Warn("progress notification failed",
			slog.String("timer_id", p.TimerID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) emitCompletion(c domain.Completion) {
	ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
	defer cancel()
	if err := e.sink.Completion(ctx, c); err != nil {
		e.logger.Warn("completion notification failed",
			slog.String("timer_id", c.TimerID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) count(op, outcome string) {
	telemetry.EngineOperations.WithLabelValues(op, outcome).Inc()
}
