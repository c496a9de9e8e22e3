// Package zaplog writes engine events as structured zap log entries.
package zaplog

import (
	"os"

	"github.com/viant/triage/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a logger.
// level: "debug", "info", "warn", "error" (default "info")
// format: "json" or "console" (default "json")
func NewLogger(level string, format string, serviceName string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	} else {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		logger = logger.With(zap.String("service_name", serviceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, nil
}

// Listener logs every event it receives.
type Listener struct {
	logger *zap.Logger
}

// New creates a listener writing to logger.
func New(logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{logger: logger}
}

// OnEvent logs the event at a level matching its kind.
func (l *Listener) OnEvent(event *telemetry.Event) {
	fields := Fields(event)
	msg := string(event.Kind)
	if event.Message != "" {
		msg = event.Message
	}
	switch LevelOf(event.Kind) {
	case zapcore.ErrorLevel:
		l.logger.Error(msg, fields...)
	case zapcore.WarnLevel:
		l.logger.Warn(msg, fields...)
	case zapcore.InfoLevel:
		l.logger.Info(msg, fields...)
	default:
		l.logger.Debug(msg, fields...)
	}
}

// LevelOf maps an event kind to a log level. Per-case traffic is debug.
func LevelOf(kind telemetry.Kind) zapcore.Level {
	switch kind {
	case telemetry.KindLoanImbalance, telemetry.KindPanic, telemetry.KindSinkError:
		return zapcore.ErrorLevel
	case telemetry.KindUnavailable:
		return zapcore.WarnLevel
	case telemetry.KindSurgeBegin, telemetry.KindSurgeEnd, telemetry.KindLoanGranted:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// Fields converts an event into zap fields.
func Fields(event *telemetry.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("kind", string(event.Kind)),
		zap.Int64("tick", int64(event.Tick)),
	}
	if c := event.Context; c != nil {
		if c.CaseID != "" {
			fields = append(fields, zap.String("case_id", c.CaseID))
		}
		if c.Origin != "" {
			fields = append(fields, zap.String("origin", c.Origin))
		}
		if c.Severity != 0 {
			fields = append(fields, zap.Int("severity", int(c.Severity)))
		}
		if c.From != "" {
			fields = append(fields, zap.String("from", c.From))
		}
		if c.To != "" {
			fields = append(fields, zap.String("to", c.To))
		}
		if c.Pool != "" {
			fields = append(fields, zap.String("pool", c.Pool))
		}
		if c.Outcome != "" {
			fields = append(fields, zap.String("outcome", c.Outcome))
		}
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

var _ telemetry.Listener = (*Listener)(nil)
