// Package ingest wires broker messages to the sensor_data table.
//
// A Pipeline is registered on the MQTT client for sensors/data. For each
// message it decodes the payload, inserts the reading in its own
// transaction and then forwards stored readings to optional mirrors
// (InfluxDB, Redis). Every delivery gets a delivery_id for log correlation.
//
// Nothing is retried. A reading rejected by the table's constraints (a
// duplicate key, or an empty or missing sensor_id or time) is logged with
// all seven values and dropped; the first stored row for a key is final.
package ingest
