// Package reading defines the sensor reading record, decodes it from MQTT
// payloads and stores it in SQLite.
//
// The sensor_data table is keyed by (sensor_id, time). The store is the only
// place that enforces non-empty sensor_id and time: Decode accepts them as
// they arrive and Insert reports a *ConstraintViolation when SQLite rejects
// the row.
//
//	r, err := reading.Decode(payload)
//	if err != nil {
//	    // *reading.DecodeError, payload dropped
//	}
//	if err := store.Insert(ctx, r); errors.Is(err, reading.ErrConstraintViolation) {
//	    // duplicate delivery or missing key field
//	}
package reading
