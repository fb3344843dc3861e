package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/energygw/internal/observability"
)

func TestNewChecker(t *testing.T) {
	t.Parallel()

	checker := NewChecker("1.0.0", observability.NopLogger())

	assert.Equal(t, "1.0.0", checker.version)
	assert.Equal(t, DefaultCheckTimeout, checker.timeout)
	assert.False(t, checker.IsDraining())
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   Status
	}{
		{
			name: "no checks",
			want: StatusHealthy,
		},
		{
			name: "all pass",
			checks: map[string]CheckFunc{
				"cache": func(context.Context) error { return nil },
			},
			want: StatusHealthy,
		},
		{
			name: "one fails",
			checks: map[string]CheckFunc{
				"cache": func(context.Context) error { return errors.New("connection refused") },
				"other": func(context.Context) error { return nil },
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewChecker("test", observability.NopLogger())
			for name, fn := range tt.checks {
				checker.RegisterCheck(name, fn)
			}

			resp := checker.Readiness(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestChecker_Readiness_ReportsMessage(t *testing.T) {
	t.Parallel()

	checker := NewChecker("test", observability.NopLogger())
	checker.RegisterCheck("cache", func(context.Context) error { return errors.New("redis down") })

	resp := checker.Readiness(context.Background())
	assert.Equal(t, Check{Status: StatusUnhealthy, Message: "redis down"}, resp.Checks["cache"])
}

func TestChecker_Readiness_CheckTimeout(t *testing.T) {
	t.Parallel()

	checker := NewChecker("test", observability.NopLogger(), WithCheckTimeout(20*time.Millisecond))
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	resp := checker.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestChecker_UnregisterCheck(t *testing.T) {
	t.Parallel()

	checker := NewChecker("test", observability.NopLogger())
	checker.RegisterCheck("cache", func(context.Context) error { return errors.New("down") })
	checker.UnregisterCheck("cache")

	assert.Equal(t, StatusHealthy, checker.Readiness(context.Background()).Status)
}

func TestChecker_Draining(t *testing.T) {
	t.Parallel()

	checker := NewChecker("test", observability.NopLogger())
	checker.SetDraining(true)
	assert.True(t, checker.IsDraining())
	assert.Equal(t, StatusDraining, checker.Readiness(context.Background()).Status)

	checker.SetDraining(false)
	assert.Equal(t, StatusHealthy, checker.Readiness(context.Background()).Status)
}

func TestReadinessHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fail     bool
		draining bool
		want     int
	}{
		{name: "ready", want: http.StatusOK},
		{name: "check failing", fail: true, want: http.StatusServiceUnavailable},
		{name: "draining", draining: true, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewChecker("test", observability.NopLogger())
			checker.RegisterCheck("cache", func(context.Context) error {
				if tt.fail {
					return errors.New("down")
				}
				return nil
			})
			checker.SetDraining(tt.draining)

			rec := httptest.NewRecorder()
			checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body.Checks, "cache")
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	checker := NewChecker("1.2.3", observability.NopLogger())
	checker.RegisterCheck("cache", func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	checker.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, "1.2.3", body.Version)
}

func TestHealthMetrics_Collectors(t *testing.T) {
	t.Parallel()

	m := GetHealthMetrics()
	assert.Same(t, m, GetHealthMetrics())
	assert.Len(t, m.Collectors(), 3)
	m.Init()
}

func TestReadiness_RecordsCheckMetrics(t *testing.T) {
	m := GetHealthMetrics()
	drainingBefore := testutil.ToFloat64(m.probesTotal.WithLabelValues(probeReadiness, string(StatusDraining)))

	c := NewChecker("test", observability.NopLogger())
	c.RegisterCheck("metrics-up", func(context.Context) error { return nil })
	c.RegisterCheck("metrics-down", func(context.Context) error { return errors.New("redis: connection refused") })
	c.SetDraining(true)

	resp := c.Readiness(context.Background())
	assert.Equal(t, StatusDraining, resp.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkUp.WithLabelValues("metrics-up")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.checkUp.WithLabelValues("metrics-down")))
	assert.Equal(t, drainingBefore+1,
		testutil.ToFloat64(m.probesTotal.WithLabelValues(probeReadiness, string(StatusDraining))))

	c.UnregisterCheck("metrics-down")
	assert.False(t, m.checkUp.DeleteLabelValues("metrics-down"), "series should be gone")
}
