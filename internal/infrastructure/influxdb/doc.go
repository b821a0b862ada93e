// Package influxdb provides the optional time-series mirror for Homepulse
// Core.
//
// It wraps the official influxdb-client-go v2 library with Homepulse-specific
// patterns for connection management, reading mirroring, and health monitoring.
//
// # Purpose
//
// SQLite is the source of truth for readings. This package mirrors each
// committed reading into an InfluxDB bucket for dashboarding and
// long-range trend queries. The mirror is strictly best-effort: a mirror
// failure never fails or rolls back the SQLite insert.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "homepulse",
//	    Bucket:  "readings",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteReading(deviceID, sourceKind, location, ts, fields, false)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency sensor data.
package influxdb
