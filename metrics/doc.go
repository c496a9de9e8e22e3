// Package metrics exposes engine telemetry and pool occupancy as Prometheus
// metrics.
package metrics
