// Package influxdb mirrors stored sensor readings into InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Writes are batched and
// non-blocking (batch_size, flush_interval in config.yaml); asynchronous
// failures are reported through SetOnError. SQLite stays the system of
// record: the mirror is optional and best effort.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.WriteSensorReading("s1", ts, map[string]any{"temp": 21.5})
package influxdb
