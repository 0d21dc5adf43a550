package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDebugWritesActionFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	defer Set(zap.NewNop())

	Debug("0xabc", "bet_placed", "market_id=1 amount=10")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "bet_placed", entries[0].Message)
	fields := entries[0].ContextMap()
	require.Equal(t, "0xabc", fields["user"])
	require.Equal(t, "market_id=1 amount=10", fields["details"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		require.Equal(t, want, parseLevel(in), in)
	}
}
