package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sensor-collector/internal/infrastructure/config"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/logging"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor-collector/internal/ingest"
)

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

type fakeBroker struct {
	fakeChecker
	state mqtt.State
}

func (f fakeBroker) State() mqtt.State { return f.state }

type fakeRows struct {
	n   int64
	err error
}

func (f fakeRows) Count(context.Context) (int64, error) { return f.n, f.err }

type fakeStats struct{ stats ingest.Stats }

func (f fakeStats) Stats() ingest.Stats { return f.stats }

// testServer creates a Server with healthy fakes; modify tweaks deps before New.
func testServer(t *testing.T, modify func(*Deps)) (*Server, *bytes.Buffer) {
	t.Helper()

	var logs bytes.Buffer
	deps := Deps{
		Config: config.HTTPConfig{
			Enabled:  true,
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.HTTPTimeoutConfig{Read: 5, Write: 5, Idle: 30},
		},
		Logger:   logging.NewWithWriter(&logs, config.LoggingConfig{Level: "debug", Format: "json"}, "test"),
		Database: fakeChecker{},
		Broker:   fakeBroker{state: mqtt.StateSubscribed},
		Readings: fakeRows{n: 42},
		Pipeline: fakeStats{stats: ingest.Stats{Received: 5, Stored: 3, DecodeErrors: 1, ConstraintViolations: 1}},
		Gatherer: prometheus.NewRegistry(),
		Version:  "test",
	}
	if modify != nil {
		modify(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, &logs
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_RequiredDeps(t *testing.T) {
	logger := logging.Default()
	base := Deps{
		Logger:   logger,
		Database: fakeChecker{},
		Broker:   fakeBroker{},
		Readings: fakeRows{},
	}

	tests := []struct {
		name   string
		modify func(*Deps)
	}{
		{"no logger", func(d *Deps) { d.Logger = nil }},
		{"no database", func(d *Deps) { d.Database = nil }},
		{"no broker", func(d *Deps) { d.Broker = nil }},
		{"no readings", func(d *Deps) { d.Readings = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := base
			tt.modify(&deps)
			if _, err := New(deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}

	srv, err := New(base)
	if err != nil {
		t.Fatalf("New(base): %v", err)
	}
	if srv.gatherer != prometheus.DefaultGatherer {
		t.Error("gatherer should default to prometheus.DefaultGatherer")
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Deps)
		wantCode   int
		wantStatus string
		wantComp   map[string]string
	}{
		{
			name:       "all healthy",
			wantCode:   http.StatusOK,
			wantStatus: statusOK,
			wantComp:   map[string]string{"database": "ok", "mqtt": "ok"},
		},
		{
			name:       "database down",
			modify:     func(d *Deps) { d.Database = fakeChecker{err: errors.New("disk gone")} },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: statusUnhealthy,
			wantComp:   map[string]string{"database": "disk gone", "mqtt": "ok"},
		},
		{
			name: "broker down",
			modify: func(d *Deps) {
				d.Broker = fakeBroker{fakeChecker: fakeChecker{err: mqtt.ErrNotConnected}, state: mqtt.StateConnecting}
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: statusUnhealthy,
			wantComp:   map[string]string{"database": "ok", "mqtt": mqtt.ErrNotConnected.Error()},
		},
		{
			name: "optional mirror down",
			modify: func(d *Deps) {
				d.Optional = map[string]HealthChecker{
					"influxdb": fakeChecker{},
					"redis":    fakeChecker{err: errors.New("connection refused")},
				}
			},
			wantCode:   http.StatusOK,
			wantStatus: statusDegraded,
			wantComp: map[string]string{
				"database": "ok",
				"mqtt":     "ok",
				"influxdb": "ok",
				"redis":    "connection refused",
			},
		},
		{
			name: "required and optional down",
			modify: func(d *Deps) {
				d.Database = fakeChecker{err: errors.New("locked")}
				d.Optional = map[string]HealthChecker{"redis": fakeChecker{err: errors.New("refused")}}
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: statusUnhealthy,
			wantComp:   map[string]string{"database": "locked", "mqtt": "ok", "redis": "refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, tt.modify)
			rec := get(t, srv, "/api/v1/health")

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			body := decodeBody[HealthResponse](t, rec)
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Version != "test" {
				t.Errorf("version = %q", body.Version)
			}
			if len(body.Components) != len(tt.wantComp) {
				t.Errorf("components = %v, want %v", body.Components, tt.wantComp)
			}
			for name, want := range tt.wantComp {
				if got := body.Components[name]; got != want {
					t.Errorf("components[%q] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestStats(t *testing.T) {
	srv, _ := testServer(t, nil)
	rec := get(t, srv, "/api/v1/stats")

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody[StatsResponse](t, rec)
	if body.Rows != 42 {
		t.Errorf("rows = %d, want 42", body.Rows)
	}
	if body.MQTTState != "subscribed" {
		t.Errorf("mqtt_state = %q, want subscribed", body.MQTTState)
	}
	if body.Pipeline == nil {
		t.Fatal("pipeline stats missing")
	}
	if body.Pipeline.Received != 5 || body.Pipeline.Stored != 3 {
		t.Errorf("pipeline = %+v", *body.Pipeline)
	}
	if body.UptimeSeconds < 0 {
		t.Errorf("uptime_seconds = %d", body.UptimeSeconds)
	}
}

func TestStats_NoPipeline(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Pipeline = nil })
	rec := get(t, srv, "/api/v1/stats")

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"pipeline"`) {
		t.Errorf("pipeline should be omitted: %s", rec.Body.String())
	}
}

func TestStats_CountError(t *testing.T) {
	srv, logs := testServer(t, func(d *Deps) { d.Readings = fakeRows{err: errors.New("database is locked")} })
	rec := get(t, srv, "/api/v1/stats")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want 500", rec.Code)
	}
	body := decodeBody[Error](t, rec)
	if body.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeInternal)
	}
	if !strings.Contains(logs.String(), "database is locked") {
		t.Error("count error should be logged")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_exposed_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	srv, _ := testServer(t, func(d *Deps) { d.Gatherer = reg })
	rec := get(t, srv, "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_exposed_total 3") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, nil)
	rec := get(t, srv, "/api/v1/readings")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", rec.Code)
	}
	if body := decodeBody[Error](t, rec); body.Code != ErrCodeNotFound {
		t.Errorf("code = %q", body.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want 405", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := get(t, srv, "/api/v1/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, logs := testServer(t, nil)
	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", rec.Code)
	}
	if !strings.Contains(logs.String(), "panic recovered in HTTP handler") {
		t.Error("panic should be logged")
	}
}

func TestServer_StartClose(t *testing.T) {
	srv, _ := testServer(t, nil)

	if srv.Addr() != "" {
		t.Errorf("Addr() before Start = %q", srv.Addr())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // second Close is a no-op

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+srv.Addr()+"/api/v1/health", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d, body %s", resp.StatusCode, body)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first, _ := testServer(t, nil)
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { first.Close() }) //nolint:errcheck // test cleanup

	_, portStr, err := net.SplitHostPort(first.Addr())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}
	second, _ := testServer(t, func(d *Deps) { d.Config.Port = port })
	if err := second.Start(ctx); err == nil {
		second.Close() //nolint:errcheck // test cleanup
		t.Fatal("Start on a bound port should fail")
	}
}

