package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/sensor-collector/internal/infrastructure/mqtt/mqtttest"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SENSORS_CONFIG", path)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SENSORS_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config failure", err)
	}
}

// TestRun_MissingDatabasePath verifies validation rejects an empty database path.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
database:
  path: ""
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
logging:
  level: error
`)

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path is required") {
		t.Errorf("error = %v, want database.path validation failure", err)
	}
}

// TestRun_UnreachableBrokerShutsDownCleanly verifies that an unreachable
// broker is not a startup failure: run waits for it and exits cleanly on
// cancellation.
func TestRun_UnreachableBrokerShutsDownCleanly(t *testing.T) {
	writeConfig(t, fmt.Sprintf(`
database:
  path: %q
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
  reconnect:
    initial_delay: 1
    max_delay: 1
http:
  enabled: false
logging:
  level: error
`, filepath.Join(t.TempDir(), "sensor-data.db")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() = %v, want nil on shutdown", err)
	}
}

// TestRun_StoresReadingFromBroker runs the collector against an in-process
// broker and checks the stored row through the status server.
func TestRun_StoresReadingFromBroker(t *testing.T) {
	broker := mqtttest.Start(t)
	httpPort := freePort(t)

	writeConfig(t, fmt.Sprintf(`
database:
  path: %q
mqtt:
  broker:
    host: %q
    port: %d
    client_id: "collector-main-test"
  reconnect:
    initial_delay: 1
    max_delay: 2
http:
  enabled: true
  host: "127.0.0.1"
  port: %d
logging:
  level: error
`, filepath.Join(t.TempDir(), "sensor-data.db"), broker.Host, broker.Port, httpPort))

	// Retained, so it is delivered as soon as the collector subscribes.
	payload := []byte(`{"sensor_id":"s1","time":"2024-01-01T00:00:00Z","temp":21.5,"hum":40,"pm_1_0":3,"pm_2_5":5,"pm_10_0":8}`)
	if err := broker.Server.Publish("sensors/data", payload, true, 1); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	statsURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1/stats", httpPort)
	mqtttest.WaitFor(t, 10*time.Second, "stored row", func() bool {
		resp, err := http.Get(statsURL) //nolint:noctx // test polling
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Rows      int64  `json:"rows"`
			MQTTState string `json:"mqtt_state"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return body.Rows == 1 && body.MQTTState == "subscribed"
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("SENSORS_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("SENSORS_CONFIG", "/etc/sensors.yaml")
	if got := getConfigPath(); got != "/etc/sensors.yaml" {
		t.Errorf("getConfigPath() = %q, want /etc/sensors.yaml", got)
	}
}
