// Package api serves the collector's local status endpoints over HTTP.
//
//	GET /api/v1/health  database and broker health (200, or 503 when either is down)
//	GET /api/v1/stats   stored row count, broker state and pipeline counters
//	GET /metrics        Prometheus exposition
//
// The server binds to loopback by default and has no authentication: it
// exposes counters only, never stored readings.
//
//	server, err := api.New(deps)
//	if err := server.Start(ctx); err != nil { ... }
//	defer server.Close()
package api
