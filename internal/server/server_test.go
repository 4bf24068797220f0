package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlet99/metric-alert-engine/internal/alerting"
	"github.com/atlet99/metric-alert-engine/internal/config"
	"github.com/atlet99/metric-alert-engine/internal/engine"
	"github.com/atlet99/metric-alert-engine/internal/monitoring"
	"github.com/atlet99/metric-alert-engine/internal/notify"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// createTestConfig creates a minimal test configuration
func createTestConfig() *config.Config {
	return &config.Config{
		Port:         "0",
		APIRateLimit: 1000,
		APIRateBurst: 1000,
	}
}

type testServer struct {
	srv     *Server
	engine  *engine.Engine
	clock   *testClock
	metrics *monitoring.PrometheusMetrics
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	metrics := monitoring.NewPrometheusMetrics()

	eng := engine.New(engine.Options{
		SeedDefaultRules: true,
		Channels:         []notify.Channel{notify.NewLogChannel(logger)},
		Logger:           logger,
		Metrics:          metrics,
		Clock:            clock.Now,
	})
	return &testServer{
		srv:     New(cfg, eng, logger, metrics, nil),
		engine:  eng,
		clock:   clock,
		metrics: metrics,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestRecordMetricAndSummary(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	for _, v := range []string{"10", "20", "30"} {
		rec := ts.do(t, http.MethodPost, "/api/metrics", `{"name":"queue_depth","value":`+v+`,"tags":{"queue":"mail"}}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/api/metrics/queue_depth/summary?duration=60", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got summaryResponse
	decodeBody(t, rec, &got)
	assert.Equal(t, "queue_depth", got.Name)
	assert.Equal(t, 60, got.DurationSeconds)
	assert.Equal(t, 3, got.Summary.Count)
	assert.Equal(t, 20.0, got.Summary.Avg)
	assert.Equal(t, 10.0, got.Summary.Min)
	assert.Equal(t, 30.0, got.Summary.Max)

	rec = ts.do(t, http.MethodGet, "/api/metrics", "")
	assert.Contains(t, rec.Body.String(), "queue_depth")
}

func TestRecordMetric_BadRequests(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"name":`, "INVALID_REQUEST"},
		{"unknown field", `{"name":"a","value":1,"unit":"ms"}`, "INVALID_REQUEST"},
		{"missing value", `{"name":"a"}`, "VALIDATION_FAILED"},
		{"empty name", `{"name":"","value":1}`, "VALIDATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/metrics", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestSummary_InvalidDuration(t *testing.T) {
	ts := newTestServer(t, createTestConfig())
	rec := ts.do(t, http.MethodGet, "/api/metrics/cpu_usage/summary?duration=-5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDurationParam_HugeValueIsCapped(t *testing.T) {
	ts := newTestServer(t, createTestConfig())
	rec := ts.do(t, http.MethodPost, "/api/metrics", `{"name":"queue_depth","value":7}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/metrics/queue_depth/summary?duration=10000000000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got summaryResponse
	decodeBody(t, rec, &got)
	assert.Equal(t, maxWindowSeconds, got.DurationSeconds)
	assert.Equal(t, 1, got.Summary.Count)

	rec = ts.do(t, http.MethodGet, "/api/alerts/statistics?duration=10000000000", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/metrics/queue_depth/summary?duration=99999999999999999999", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlowResponseScenario_OverHTTP(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	rec := ts.do(t, http.MethodPost, "/api/metrics", `{"name":"response_time","value":6000}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/alerts/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active alertsResponse
	decodeBody(t, rec, &active)
	require.Equal(t, 1, active.Count)
	alert := active.Alerts[0]
	assert.Equal(t, "slow_response", alert.RuleName)
	assert.Equal(t, alerting.LevelWarning, alert.Level)

	rec = ts.do(t, http.MethodGet, "/api/alerts/"+alert.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/alerts/"+alert.ID+"/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resolved alerting.Alert
	decodeBody(t, rec, &resolved)
	assert.True(t, resolved.Resolved)
	assert.NotNil(t, resolved.ResolvedAt)

	rec = ts.do(t, http.MethodGet, "/api/alerts/active", "")
	decodeBody(t, rec, &active)
	assert.Equal(t, 0, active.Count)
	assert.NotNil(t, active.Alerts)

	rec = ts.do(t, http.MethodGet, "/api/alerts/statistics?duration=3600", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats alerting.Statistics
	decodeBody(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalAlerts)
	assert.Equal(t, 0, stats.ActiveAlerts)
	assert.Equal(t, 1, stats.AlertsByLevel[alerting.LevelWarning])
}

func TestResolveUnknownAlert(t *testing.T) {
	ts := newTestServer(t, createTestConfig())
	rec := ts.do(t, http.MethodPost, "/api/alerts/nope/resolve", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestRuleEndpoints(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	rec := ts.do(t, http.MethodGet, "/api/rules", "")
	var list rulesResponse
	decodeBody(t, rec, &list)
	assert.Equal(t, 4, list.Count)

	body := `{"name":"disk_full","metric_name":"disk_usage","threshold":90,"comparison":">",
		"duration_seconds":300,"level":"critical","type":"resource"}`
	rec = ts.do(t, http.MethodPost, "/api/rules", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created alerting.Rule
	decodeBody(t, rec, &created)
	assert.True(t, created.Enabled)

	rec = ts.do(t, http.MethodPost, "/api/rules", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/rules", strings.Replace(body, `"critical"`, `"fatal"`, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")

	rec = ts.do(t, http.MethodPut, "/api/rules/disk_full", `{"threshold":95}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated alerting.Rule
	decodeBody(t, rec, &updated)
	assert.Equal(t, 95.0, updated.Threshold)
	assert.Equal(t, "disk_usage", updated.MetricName)

	rec = ts.do(t, http.MethodPut, "/api/rules/disk_full/enabled", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &updated)
	assert.False(t, updated.Enabled)

	rec = ts.do(t, http.MethodPut, "/api/rules/disk_full/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/rules/disk_full", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/rules/disk_full", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/rules/disk_full", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := createTestConfig()
	cfg.APIRateLimit = 0.001
	cfg.APIRateBurst = 2
	ts := newTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(t, http.MethodGet, "/api/rules", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// separate bucket per endpoint
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/alerts/active", "").Code)
	// health is not limited
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "").Code)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report monitoring.HealthReport
	decodeBody(t, rec, &report)
	assert.Equal(t, monitoring.HealthStatusHealthy, report.Status)
	assert.Contains(t, report.Checks, "notification_queue")
	assert.Contains(t, report.Checks, "rules")

	ts.do(t, http.MethodGet, "/api/rules", "")
	rec = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{endpoint="GET /api/rules",method="GET",status_code="200"}`)
}

func TestRequestMiddlewareFeedsStore(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	ts.do(t, http.MethodGet, "/api/rules", "")
	ts.do(t, http.MethodGet, "/api/rules/missing", "")

	store := ts.engine.Store()
	assert.Equal(t, 2, store.Summarize("request_count", time.Minute).Count)
	assert.Equal(t, 1, store.Summarize("error_count", time.Minute).Count)
	assert.Equal(t, 2, store.Summarize("response_time", time.Minute).Count)
}

func TestServerRun_ShutsDownOnCancel(t *testing.T) {
	cfg := createTestConfig()
	cfg.Port = "0"
	ts := newTestServer(t, cfg)
	ts.srv.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.srv.Run(ctx, 5*time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", clientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.4")
	assert.Equal(t, "192.0.2.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewHTTPRateLimiter(RateLimiterConfig{PerIP: true})
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	rl.now = clock.Now

	for i := 0; i < maxLimiters; i++ {
		rl.getOrCreateLimiter("k" + strconv.Itoa(i))
	}
	assert.Equal(t, maxLimiters, rl.Len())

	clock.Advance(limiterIdle + time.Second)
	rl.getOrCreateLimiter("fresh")
	assert.Equal(t, 1, rl.Len())
}
