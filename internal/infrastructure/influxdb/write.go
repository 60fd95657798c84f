package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SensorMeasurement is the measurement name mirrored readings are written to.
const SensorMeasurement = "sensor_data"

// SensorPoint builds the point for one sensor reading: tagged by sensor_id,
// timestamped by the reading's own time. Nil-valued fields are left out.
func SensorPoint(sensorID string, ts time.Time, fields map[string]any) *write.Point {
	present := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != nil {
			present[k] = v
		}
	}

	return write.NewPoint(
		SensorMeasurement,
		map[string]string{"sensor_id": sensorID},
		present,
		ts,
	)
}

// WriteSensorReading queues one reading for the next batch.
//
// A reading with no measured values is rejected, as InfluxDB refuses
// points without fields. Delivery errors arrive through SetOnError.
func (c *Client) WriteSensorReading(sensorID string, ts time.Time, fields map[string]any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := SensorPoint(sensorID, ts, fields)
	if len(point.FieldList()) == 0 {
		return fmt.Errorf("%w: reading for %s has no values", ErrWriteFailed, sensorID)
	}

	c.writeAPI.WritePoint(point)
	return nil
}
