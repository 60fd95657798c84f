package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sensor-collector/internal/infrastructure/config"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/logging"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor-collector/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerStatus is the broker surface the server reports on.
// *mqtt.Client implements it.
type BrokerStatus interface {
	HealthChecker
	State() mqtt.State
}

// RowCounter reports the number of stored readings. *reading.Store implements it.
type RowCounter interface {
	Count(ctx context.Context) (int64, error)
}

// StatsSource reports pipeline counters. *ingest.Pipeline implements it.
type StatsSource interface {
	Stats() ingest.Stats
}

// Deps holds the dependencies required by the status server.
type Deps struct {
	Config   config.HTTPConfig
	Logger   *logging.Logger
	Database HealthChecker
	Broker   BrokerStatus
	Readings RowCounter
	Pipeline StatsSource

	// Optional components (InfluxDB, Redis) by name. Their failures
	// degrade the health report but do not make it fail.
	Optional map[string]HealthChecker

	// Gatherer backs /metrics; defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Version string
}

// Server is the status HTTP server.
type Server struct {
	cfg       config.HTTPConfig
	logger    *logging.Logger
	database  HealthChecker
	broker    BrokerStatus
	readings  RowCounter
	pipeline  StatsSource
	optional  map[string]HealthChecker
	gatherer  prometheus.Gatherer
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a status server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if deps.Readings == nil {
		return nil, fmt.Errorf("readings are required")
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		database:  deps.Database,
		broker:    deps.Broker,
		readings:  deps.Readings,
		pipeline:  deps.Pipeline,
		optional:  deps.Optional,
		gatherer:  gatherer,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// Bind errors (port in use) are returned here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("status server listening", "address", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}
