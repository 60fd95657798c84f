package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/sensor-collector/internal/ingest"
)

// healthCheckTimeout bounds the whole /health request.
const healthCheckTimeout = 5 * time.Second

// Health status values.
const (
	statusOK        = "ok"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// handleHealth checks every component. The database and broker are
// required: if either fails the response is 503. Optional components only
// mark the report degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     statusOK,
		Version:    s.version,
		Components: make(map[string]string, 2+len(s.optional)),
	}

	required := map[string]HealthChecker{
		"database": s.database,
		"mqtt":     s.broker,
	}
	for name, checker := range required {
		if msg := check(ctx, checker); msg != "" {
			resp.Components[name] = msg
			resp.Status = statusUnhealthy
			continue
		}
		resp.Components[name] = statusOK
	}

	names := make([]string, 0, len(s.optional))
	for name := range s.optional {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if msg := check(ctx, s.optional[name]); msg != "" {
			resp.Components[name] = msg
			if resp.Status == statusOK {
				resp.Status = statusDegraded
			}
			continue
		}
		resp.Components[name] = statusOK
	}

	status := http.StatusOK
	if resp.Status == statusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// check returns "" when healthy, otherwise the error text.
func check(ctx context.Context, checker HealthChecker) string {
	if err := checker.HealthCheck(ctx); err != nil {
		return err.Error()
	}
	return ""
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Version       string        `json:"version"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Rows          int64         `json:"rows"`
	MQTTState     string        `json:"mqtt_state"`
	Pipeline      *ingest.Stats `json:"pipeline,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rows, err := s.readings.Count(r.Context())
	if err != nil {
		s.logger.Error("counting stored readings", "error", err)
		writeInternalError(w, "failed to count stored readings")
		return
	}

	resp := StatsResponse{
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Rows:          rows,
		MQTTState:     s.broker.State().String(),
	}
	if s.pipeline != nil {
		stats := s.pipeline.Stats()
		resp.Pipeline = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}
