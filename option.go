package triage

import (
	"github.com/viant/triage/intake"
	"github.com/viant/triage/internal/clock"
	"github.com/viant/triage/metrics"
	"github.com/viant/triage/service/stats"
	"github.com/viant/triage/telemetry"
	"github.com/viant/triage/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the service.
type Option func(s *Service)

// WithGenerator sets the case generator used by the feeders and the surge
// injector
func WithGenerator(generator intake.Generator) Option {
	return func(s *Service) {
		s.generator = generator
	}
}

// WithListeners adds telemetry listeners
func WithListeners(listeners ...telemetry.Listener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, listeners...)
	}
}

// WithDurableSink adds sinks every resolved case is written to after the
// in-memory statistics
func WithDurableSink(sinks ...stats.Sink) Option {
	return func(s *Service) {
		s.durable = append(s.durable, sinks...)
	}
}

// WithClock sets the logical clock. Durable sinks built outside the service
// use its DayOf to attribute cases to days.
func WithClock(c *clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithMetrics registers the Prometheus collectors: they listen to telemetry
// and watch the pools and the ledger
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The function is
// safe to call multiple times – the first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter, for example
// OTLP, Jaeger or Zipkin. The first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
