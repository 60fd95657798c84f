// Package cache keeps each sensor's latest stored reading in Redis.
//
// Keys follow sensor:last:{sensor_id} and hold the reading as JSON with a
// TTL (redis.ttl, default 24h). The cache is optional and never consulted
// when deciding whether a reading is stored.
package cache
