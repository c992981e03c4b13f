package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/pkg/telemetry"
)

const defaultCheckInterval = time.Second

// Engine is the part of the timer registry the scheduler drives.
type Engine interface {
	Create(id, name string, durationMs int64) (domain.Timer, error)
	Reset(id string) error
	Start(id string) error
}

// Scheduler restarts scheduled presets whenever their cron expression is due.
type Scheduler struct {
	engine   Engine
	presets  []Preset
	next     map[string]time.Time
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithCheckInterval(d time.Duration) Option { return func(s *Scheduler) { s.interval = d } }
func WithNow(now func() time.Time) Option     { return func(s *Scheduler) { s.now = now } }

func NewScheduler(engine Engine, presets []Preset, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:   engine,
		presets:  presets,
		next:     make(map[string]time.Time),
		interval: defaultCheckInterval,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed creates every preset as an idle timer. Presets whose id is already
// registered are left alone.
func (s *Scheduler) Seed() error {
	for _, p := range s.presets {
		_, err := s.engine.Create(p.ID, p.Name, p.DurationMs())
		var dup *domain.DuplicateTimerError
		if err != nil && !errors.As(err, &dup) {
			return fmt.Errorf("seed preset %q: %w", p.ID, err)
		}
	}
	s.logger.Info("presets seeded", slog.Int("count", len(s.presets)))
	return nil
}

// Run checks schedules every interval until ctx is cancelled. It returns at
// once when no preset carries a cron expression.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.hasSchedules() {
		return
	}
	s.plan(s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.now())
		}
	}
}

func (s *Scheduler) hasSchedules() bool {
	for _, p := range s.presets {
		if p.Scheduled() {
			return true
		}
	}
	return false
}

func (s *Scheduler) plan(now time.Time) {
	for _, p := range s.presets {
		if p.Scheduled() {
			s.next[p.ID] = p.schedule.Next(now)
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	for _, p := range s.presets {
		if !p.Scheduled() {
			continue
		}
		due, ok := s.next[p.ID]
		if !ok || now.Before(due) {
			continue
		}
		s.next[p.ID] = p.schedule.Next(now)
		if err := s.fire(p); err != nil {
			s.logger.Error("preset fire failed",
				slog.String("preset", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		telemetry.ScheduleFiredTotal.WithLabelValues(p.ID).Inc()
		s.logger.Info("preset fired",
			slog.String("preset", p.ID),
			slog.Time("next_run", s.next[p.ID]),
		)
	}
}

// fire restarts the preset from its full duration, recreating it if it was
// deleted since the last run.
func (s *Scheduler) fire(p Preset) error {
	err := s.engine.Reset(p.ID)
	var notFound *domain.TimerNotFoundError
	if errors.As(err, &notFound) {
		_, err = s.engine.Create(p.ID, p.Name, p.DurationMs())
	}
	if err != nil {
		return err
	}
	return s.engine.Start(p.ID)
}
