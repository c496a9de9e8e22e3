// Package tracing integrates OpenTelemetry with the dispatch engine. Stage
// executions and surge episodes are wrapped in spans; applications that do
// not install a provider get no-op spans.
package tracing
