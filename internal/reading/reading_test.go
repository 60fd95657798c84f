package reading

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestReading_LogValue(t *testing.T) {
	r, err := Decode([]byte(`{"sensor_id":"s2","time":"2024-01-01T00:05:00Z","temp":19.0}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("rejected", "reading", r)

	var entry struct {
		Reading map[string]any `json:"reading"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}

	if len(entry.Reading) != 7 {
		t.Fatalf("reading group has %d keys, want 7: %v", len(entry.Reading), entry.Reading)
	}
	if entry.Reading["sensor_id"] != "s2" || entry.Reading["temp"] != 19.0 {
		t.Errorf("reading group = %v", entry.Reading)
	}
	for _, key := range []string{"hum", "pm_1_0", "pm_2_5", "pm_10_0"} {
		if v, ok := entry.Reading[key]; !ok || v != nil {
			t.Errorf("%s = %v (present %v), want null", key, v, ok)
		}
	}
}

func TestReading_String(t *testing.T) {
	sensor := "s1"
	if got := (Reading{SensorID: &sensor}).String(); got != `sensor_id="s1" time=<null>` {
		t.Errorf("String() = %s", got)
	}
}
