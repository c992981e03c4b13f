package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-countdown/internal/domain"
	"github.com/ramiqadoumi/go-countdown/internal/postgres"
	redisstore "github.com/ramiqadoumi/go-countdown/internal/redis"
	"github.com/ramiqadoumi/go-countdown/pkg/telemetry"
)

const defaultHistoryLimit = 20

// Registry is the timer engine as seen by the HTTP layer.
type Registry interface {
	Create(id, name string, durationMs int64) (domain.Timer, error)
	List() []domain.Timer
	Get(id string) (domain.Timer, error)
	Delete(id string) error
	Start(id string) error
	Pause(id string) error
	Resume(id string) error
	Reset(id string) error
}

// REST handles HTTP requests for timerd.
type REST struct {
	registry Registry
	limiter  redisstore.RateLimiter
	history  postgres.CompletionRepository
	logger   *slog.Logger
}

// RESTOption attaches an optional integration.
type RESTOption func(*REST)

// WithRateLimiter guards timer creation per client address.
func WithRateLimiter(l redisstore.RateLimiter) RESTOption { return func(h *REST) { h.limiter = l } }

// WithHistory enables GET /timers/{id}/completions.
func WithHistory(repo postgres.CompletionRepository) RESTOption {
	return func(h *REST) { h.history = repo }
}

// NewREST creates a new REST handler.
func NewREST(registry Registry, logger *slog.Logger, opts ...RESTOption) *REST {
	h := &REST{registry: registry, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the timer API on r.
func (h *REST) Routes(r chi.Router) {
	r.Route("/timers", func(r chi.Router) {
		r.Post("/", h.CreateTimer)
		r.Get("/", h.ListTimers)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTimer)
			r.Delete("/", h.DeleteTimer)
			r.Post("/start", h.action("start", h.registry.Start))
			r.Post("/pause", h.action("pause", h.registry.Pause))
			r.Post("/resume", h.action("resume", h.registry.Resume))
			r.Post("/reset", h.action("reset", h.registry.Reset))
			r.Get("/completions", h.ListCompletions)
		})
	})
}

// CreateTimerRequest is the JSON body for POST /api/v1/timers.
type CreateTimerRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs *int64 `json:"duration_ms"`
}

// CreateTimer handles POST /api/v1/timers.
func (h *REST) CreateTimer(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.span(r, "timerd.create_timer")
	defer span.End()

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, "create:"+clientHost(r))
		if err != nil {
			// Fail open: a Redis outage must not block timer creation.
			h.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			telemetry.APIRateLimitedTotal.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(h.limiter.Window().Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	var req CreateTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DurationMs == nil {
		writeError(w, http.StatusBadRequest, "field 'duration_ms' is required")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.New().String()
	}
	span.SetAttributes(attribute.String("timer.id", req.ID), attribute.Int64("timer.duration_ms", *req.DurationMs))

	t, err := h.registry.Create(req.ID, req.Name, *req.DurationMs)
	if err != nil {
		h.fail(w, span, err)
		return
	}
	w.Header().Set("Location", "/api/v1/timers/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

// TimerListResponse is the GET /api/v1/timers response body.
type TimerListResponse struct {
	Timers []domain.Timer `json:"timers"`
}

// ListTimers handles GET /api/v1/timers.
func (h *REST) ListTimers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TimerListResponse{Timers: h.registry.List()})
}

// GetTimer handles GET /api/v1/timers/{id}.
func (h *REST) GetTimer(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTimer handles DELETE /api/v1/timers/{id}.
func (h *REST) DeleteTimer(w http.ResponseWriter, r *http.Request) {
	_, span := h.span(r, "timerd.delete_timer")
	defer span.End()

	if err := h.registry.Delete(chi.URLParam(r, "id")); err != nil {
		h.fail(w, span, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// action handles POST /api/v1/timers/{id}/{op} and answers with the timer
// snapshot taken after the operation.
func (h *REST) action(op string, fn func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := h.span(r, "timerd."+op+"_timer")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := fn(id); err != nil {
			h.fail(w, span, err)
			return
		}
		t, err := h.registry.Get(id)
		if err != nil {
			// Deleted concurrently.
			h.fail(w, span, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// CompletionResponse is one entry of GET /api/v1/timers/{id}/completions.
type CompletionResponse struct {
	TimerID    string `json:"timer_id"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// ListCompletions handles GET /api/v1/timers/{id}/completions.
func (h *REST) ListCompletions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "completion history is not configured")
		return
	}
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	id := chi.URLParam(r, "id")
	recs, err := h.history.ListByTimer(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("list completions", slog.String("timer_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read completion history")
		return
	}
	out := make([]CompletionResponse, len(recs))
	for i, rec := range recs {
		out[i] = CompletionResponse{
			TimerID:    rec.TimerID,
			DurationMs: rec.DurationMs,
			FinishedAt: domain.FormatTimestamp(rec.FinishedAt),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"completions": out})
}

func (h *REST) span(r *http.Request, name string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("timerd").Start(r.Context(), name)
	if id := chi.URLParam(r, "id"); id != "" {
		span.SetAttributes(attribute.String("timer.id", id))
	}
	return ctx, span
}

// fail maps engine errors onto HTTP status codes.
func (h *REST) fail(w http.ResponseWriter, span trace.Span, err error) {
	var (
		notFound *domain.TimerNotFoundError
		dup      *domain.DuplicateTimerError
		limit    *domain.TimerLimitError
	)
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.As(err, &dup):
		code = http.StatusConflict
	case errors.As(err, &limit):
		code = http.StatusUnprocessableEntity
	default:
		h.logger.Error("timer operation failed", slog.String("error", err.Error()))
	}
	if span != nil && code >= http.StatusInternalServerError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	writeError(w, code, err.Error())
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
