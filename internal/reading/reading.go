package reading

import (
	"fmt"
	"log/slog"
	"time"
)

// Reading is one sensor telemetry record as it arrives on sensors/data.
//
// Every field is a pointer: nil means the key was absent (or null) in the
// payload and is stored as SQL NULL. No defaults are substituted.
// A Reading is built from one message, inserted once and then discarded.
type Reading struct {
	SensorID *string  `json:"sensor_id"`
	Time     *string  `json:"time"`
	Temp     *float64 `json:"temp"`
	Hum      *float64 `json:"hum"`
	PM1_0    *int64   `json:"pm_1_0"`
	PM2_5    *int64   `json:"pm_2_5"`
	PM10_0   *int64   `json:"pm_10_0"`
}

// String formats the reading's key for log and error messages.
func (r Reading) String() string {
	return fmt.Sprintf("sensor_id=%s time=%s", strValue(r.SensorID), strValue(r.Time))
}

// LogValue implements slog.LogValuer: the seven stored values as a group,
// with absent fields logged as null.
func (r Reading) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("sensor_id", value(r.SensorID)),
		slog.Any("time", value(r.Time)),
		slog.Any("temp", value(r.Temp)),
		slog.Any("hum", value(r.Hum)),
		slog.Any("pm_1_0", value(r.PM1_0)),
		slog.Any("pm_2_5", value(r.PM2_5)),
		slog.Any("pm_10_0", value(r.PM10_0)),
	)
}

// Timestamp parses Time as RFC 3339. ok is false when Time is absent or in
// another format; the stored string is never rewritten either way.
func (r Reading) Timestamp() (t time.Time, ok bool) {
	if r.Time == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, *r.Time)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// value dereferences p, returning an untyped nil for a nil pointer.
func value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func strValue(p *string) string {
	if p == nil {
		return "<null>"
	}
	return fmt.Sprintf("%q", *p)
}
