package influxdb

import "errors"

// Sentinel errors returned by the mirror client. Match them with errors.Is.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps the ping failure from Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned for writes after Close or before Connect.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed is returned when a reading has nothing to write.
	// Server-side failures arrive later through SetOnError.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
