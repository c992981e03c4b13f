package telemetry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramiqadoumi/go-countdown/pkg/telemetry"
)

func TestMetricsMux_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	telemetry.NewMetricsMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsMux_ReadyzReportsFailure(t *testing.T) {
	mux := telemetry.NewMetricsMux(func(context.Context) error { return errors.New("redis down") })
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}

func TestMetricsMux_ExposesEngineMetrics(t *testing.T) {
	telemetry.EngineTicksTotal.Inc()
	rec := httptest.NewRecorder()
	telemetry.NewMetricsMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "countdown_engine_ticks_total")
}
