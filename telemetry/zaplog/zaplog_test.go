package zaplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/triage/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestListener_OnEvent(t *testing.T) {
	testCases := []struct {
		name  string
		event *telemetry.Event
		level zapcore.Level
		field string
	}{
		{
			name:  "imbalance is an error",
			event: telemetry.NewEvent(telemetry.KindLoanImbalance, 4, &telemetry.Context{Pool: "Cardiology"}),
			level: zapcore.ErrorLevel,
			field: "pool",
		},
		{
			name:  "surge begin is info",
			event: telemetry.NewEvent(telemetry.KindSurgeBegin, 1, nil).WithMetadata("total", 150),
			level: zapcore.InfoLevel,
			field: "total",
		},
		{
			name:  "dispatch is debug",
			event: telemetry.NewEvent(telemetry.KindDispatch, 2, &telemetry.Context{CaseID: "c1", To: "emergency"}),
			level: zapcore.DebugLevel,
			field: "case_id",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			New(zap.New(core)).OnEvent(tc.event)
			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.level, entries[0].Level)
			_, ok := entries[0].ContextMap()[tc.field]
			assert.True(t, ok)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn", "console", "triage")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.NotNil(t, New(nil))
}
