package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/sensor-collector/internal/reading"
)

// Mirror receives every reading after it has been stored in SQLite.
type Mirror interface {
	// Name labels the mirror in logs and metrics.
	Name() string

	// Mirror copies one stored reading. Errors are logged by the pipeline.
	Mirror(ctx context.Context, r reading.Reading) error
}

// ErrUnmirrorableTime is returned when a reading's time is not RFC 3339 and
// so cannot become a time-series timestamp.
var ErrUnmirrorableTime = errors.New("ingest: reading time is not RFC 3339")

// SensorPointWriter is implemented by *influxdb.Client.
type SensorPointWriter interface {
	WriteSensorReading(sensorID string, ts time.Time, fields map[string]any) error
}

// InfluxMirror writes readings as points tagged by sensor_id.
type InfluxMirror struct {
	Writer SensorPointWriter
}

// Name implements Mirror.
func (InfluxMirror) Name() string { return "influxdb" }

// Mirror implements Mirror.
func (m InfluxMirror) Mirror(_ context.Context, r reading.Reading) error {
	if r.SensorID == nil {
		return fmt.Errorf("mirroring reading %s: missing sensor_id", r)
	}
	ts, ok := r.Timestamp()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnmirrorableTime, r)
	}

	return m.Writer.WriteSensorReading(*r.SensorID, ts, readingFields(r))
}

// readingFields returns the measured values; nil entries are absent values.
func readingFields(r reading.Reading) map[string]any {
	fields := make(map[string]any, 5)
	if r.Temp != nil {
		fields["temp"] = *r.Temp
	}
	if r.Hum != nil {
		fields["hum"] = *r.Hum
	}
	if r.PM1_0 != nil {
		fields["pm_1_0"] = *r.PM1_0
	}
	if r.PM2_5 != nil {
		fields["pm_2_5"] = *r.PM2_5
	}
	if r.PM10_0 != nil {
		fields["pm_10_0"] = *r.PM10_0
	}
	return fields
}

// LatestSetter is implemented by *cache.Client.
type LatestSetter interface {
	SetLatest(ctx context.Context, sensorID string, value []byte) error
}

// CacheMirror keeps the last stored reading of each sensor as JSON.
type CacheMirror struct {
	Cache LatestSetter
}

// Name implements Mirror.
func (CacheMirror) Name() string { return "redis" }

// Mirror implements Mirror.
func (m CacheMirror) Mirror(ctx context.Context, r reading.Reading) error {
	if r.SensorID == nil {
		return fmt.Errorf("caching reading %s: missing sensor_id", r)
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reading %s: %w", r, err)
	}
	return m.Cache.SetLatest(ctx, *r.SensorID, data)
}
