// Package stats aggregates resolved cases into per-day statistics. Sinks are
// pluggable: the in-memory sink backs reporting snapshots while durable sinks
// in the sub-packages persist the same counters.
package stats
