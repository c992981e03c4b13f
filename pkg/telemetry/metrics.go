package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Engine ──────────────────────────────────────────────────────────────────

	EngineTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "countdown",
		Subsystem: "engine",
		Name:      "timers",
		Help:      "Timers currently held by the registry.",
	})

	EngineTimersRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "countdown",
		Subsystem: "engine",
		Name:      "timers_running",
		Help:      "Timers with an attached scheduler goroutine.",
	})

	EngineOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Registry operations, labelled by operation and outcome.",
	}, []string{"op", "outcome"})

	EngineTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "countdown",
		Subsystem: "engine",
		Name:      "ticks_total",
		Help:      "Scheduler ticks that produced a progress notification.",
	})

	EngineCompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "countdown",
		Subsystem: "engine",
		Name:      "completions_total",
		Help:      "Countdowns that reached zero.",
	})

	EngineTickLagSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "countdown",
		Subsystem: "engine",
		Name:      "tick_lag_seconds",
		Help:      "Delay between a tick being scheduled and the scheduler observing it.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	// ─── Notifications ───────────────────────────────────────────────────────────

	NotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Notifications a sink failed to deliver, labelled by sink and kind.",
	}, []string{"sink", "kind"})

	NotifyDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Subsystem: "notify",
		Name:      "delivered_total",
		Help:      "Notifications delivered, labelled by sink and kind.",
	}, []string{"sink", "kind"})

	// ─── API ─────────────────────────────────────────────────────────────────────

	APIRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "countdown",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Create requests rejected by the rate limiter.",
	})

	ScheduleFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Subsystem: "schedule",
		Name:      "fired_total",
		Help:      "Preset schedules fired, labelled by preset id.",
	}, []string{"preset"})
)
