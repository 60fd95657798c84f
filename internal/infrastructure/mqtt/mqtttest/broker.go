// Package mqtttest runs an in-process MQTT broker for tests.
//
// It wraps mochi-mqtt so tests exercise a real MQTT 3.1.1/5 broker over
// TCP without an external Mosquitto.
package mqtttest

import (
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/sensor-collector/internal/infrastructure/config"
)

// Broker is a running in-process broker listening on a loopback port.
type Broker struct {
	Server *mochi.Server
	Host   string
	Port   int
}

// Start launches a broker on a free loopback port. It is shut down by
// t.Cleanup.
func Start(t testing.TB) *Broker {
	t.Helper()

	addr := freeAddr(t)
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("mqtttest: split %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("mqtttest: port %q: %v", portStr, err)
	}

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("mqtttest: add auth hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "mqtttest", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("mqtttest: add listener: %v", err)
	}

	go func() {
		_ = server.Serve() //nolint:errcheck // Listener errors surface as dial failures below
	}()
	t.Cleanup(func() {
		_ = server.Close() //nolint:errcheck // Test cleanup
	})

	waitListening(t, addr)

	return &Broker{Server: server, Host: host, Port: port}
}

// MQTTConfig returns a collector MQTT config pointing at the broker, with
// short reconnect delays.
func (b *Broker) MQTTConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     b.Host,
			Port:     b.Port,
			ClientID: clientID,
		},
		Topic:     "sensors/data",
		QoS:       1,
		KeepAlive: 60,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     2,
		},
	}
}

// Publish injects a message as the broker's inline client.
func (b *Broker) Publish(t testing.TB, topic string, payload []byte, qos byte) {
	t.Helper()
	if err := b.Server.Publish(topic, payload, false, qos); err != nil {
		t.Fatalf("mqtttest: publish %s: %v", topic, err)
	}
}

// Kick drops the network connection of a connected client, as a broker
// restart or network fault would. It reports whether the client was found.
func (b *Broker) Kick(clientID string) bool {
	cl, ok := b.Server.Clients.Get(clientID)
	if !ok {
		return false
	}
	cl.Stop(io.ErrUnexpectedEOF)
	return true
}

// WaitFor polls cond every 10ms until it is true or timeout elapses.
func WaitFor(t testing.TB, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for %s", timeout, what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func freeAddr(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mqtttest: reserve port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close() //nolint:errcheck // Port is reused by the broker
	return addr
}

func waitListening(t testing.TB, addr string) {
	t.Helper()
	WaitFor(t, 5*time.Second, "broker listener "+addr, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close() //nolint:errcheck // Probe connection
		return true
	})
}
