// Package influxdb provides InfluxDB v2 connectivity for optional hub
// telemetry.
//
// This package manages:
//   - Connection with token authentication and ping verification
//   - Non-blocking batched metric writes
//   - Health monitoring
//
// The hub records fleet occupancy (registered devices, controllers) and
// relay throughput (commands forwarded, messages relayed). Telemetry is
// strictly observational: routing works identically with it disabled.
package influxdb
