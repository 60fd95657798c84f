// Sensor Collector
//
// This is the entry point for the sensor collector. It subscribes to the
// MQTT topic sensors/data with a persistent session and stores each reading
// once in the SQLite table sensor_data, keyed by (sensor_id, time).
//
// Optional mirrors (InfluxDB, Redis) and a loopback status server are
// enabled from configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/sensor-collector/internal/api"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/cache"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/config"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/database"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/influxdb"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/logging"
	"github.com/nerrad567/sensor-collector/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensor-collector/internal/ingest"
	"github.com/nerrad567/sensor-collector/internal/metrics"
	"github.com/nerrad567/sensor-collector/internal/reading"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown and an error only for startup failures
// (configuration, database, schema, status server bind).
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting sensor collector",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	mqtt.BridgeLibraryLogs(log.With("component", "paho"))

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	store := reading.NewStore(db)
	if schemaErr := store.InitSchema(ctx); schemaErr != nil {
		return fmt.Errorf("initialising schema: %w", schemaErr)
	}
	log.Info("database ready", "path", db.Path())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ingestMetrics := metrics.New(reg)

	optional := make(map[string]api.HealthChecker)
	var mirrors []ingest.Mirror

	// Connect to InfluxDB (optional, failures do not stop ingestion)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			log.Warn("InfluxDB unavailable, mirror disabled", "error", influxErr)
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				ingestMetrics.MirrorError(ingest.InfluxMirror{}.Name())
				log.Error("InfluxDB write error", "error", err)
			})
			mirrors = append(mirrors, ingest.InfluxMirror{Writer: influxClient})
			optional["influxdb"] = influxClient
			log.Info("InfluxDB mirror enabled",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	}

	// Connect to Redis (optional, failures do not stop ingestion)
	if cfg.Redis.Enabled {
		cacheClient, cacheErr := cache.Connect(ctx, cfg.Redis)
		if cacheErr != nil {
			log.Warn("Redis unavailable, latest-reading cache disabled", "error", cacheErr)
		} else {
			defer func() {
				log.Info("closing Redis connection")
				if closeErr := cacheClient.Close(); closeErr != nil {
					log.Error("error closing Redis", "error", closeErr)
				}
			}()
			mirrors = append(mirrors, ingest.CacheMirror{Cache: cacheClient})
			optional["redis"] = cacheClient
			log.Info("Redis cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL())
		}
	}

	pipeline, err := ingest.New(ingest.Deps{
		Store:   store,
		Logger:  log.With("component", "ingest"),
		Metrics: ingestMetrics,
		Mirrors: mirrors,
		Topic:   cfg.MQTT.Topic,
		QoS:     byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0-2 by config
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	// The route is registered before connecting so messages queued in the
	// persistent session are handled as soon as the broker delivers them.
	mqttLog := log.With("component", "mqtt")
	mqttClient := mqtt.New(cfg.MQTT, mqttLog)
	mqttClient.SetOnConnect(pipeline.OnConnect)
	mqttClient.SetOnDisconnect(pipeline.OnDisconnect)
	mqttClient.SetOnMessage(func(topic string, payload []byte) {
		mqttLog.Info("message on unrouted topic", "topic", topic, "payload", string(payload))
	})
	if regErr := pipeline.Register(mqttClient); regErr != nil {
		return fmt.Errorf("registering pipeline: %w", regErr)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// Status server starts first so it reports the broker as down while
	// the initial connection is retried.
	if cfg.HTTP.Enabled {
		server, serverErr := api.New(api.Deps{
			Config:   cfg.HTTP,
			Logger:   log.With("component", "api"),
			Database: db,
			Broker:   mqttClient,
			Readings: store,
			Pipeline: pipeline,
			Optional: optional,
			Gatherer: reg,
			Version:  version,
		})
		if serverErr != nil {
			return fmt.Errorf("creating status server: %w", serverErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting status server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	}

	// Connect blocks while paho retries; only a shutdown signal ends it early.
	if connErr := mqttClient.Connect(ctx); connErr != nil {
		if ctx.Err() != nil {
			log.Info("shutdown requested before broker connection")
			return nil
		}
		if errors.Is(connErr, mqtt.ErrClosed) {
			return nil
		}
		return fmt.Errorf("connecting to MQTT: %w", connErr)
	}

	log.Info("sensor collector running",
		"topic", pipeline.Topic(),
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	<-ctx.Done()
	log.Info("shutdown signal received", "stats", pipeline.Stats())

	return nil
}

// getConfigPath returns the configuration file path.
// Checks SENSORS_CONFIG environment variable first, then falls back to default.
func getConfigPath() string {
	if path := os.Getenv("SENSORS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
