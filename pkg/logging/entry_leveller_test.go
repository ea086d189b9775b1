package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEntryLeveller(t *testing.T) {
	levels := map[string]zapcore.Level{
		"":               zapcore.WarnLevel,
		"stacks":         zapcore.InfoLevel,
		"stacks.service": zapcore.DebugLevel,
	}
	tests := []struct {
		name   string
		logger string
		level  zapcore.Level
		want   bool
	}{
		{name: "exact name", logger: "stacks.service", level: zapcore.DebugLevel, want: true},
		{name: "parent name", logger: "stacks.database", level: zapcore.DebugLevel, want: false},
		{name: "parent name at level", logger: "stacks.database", level: zapcore.InfoLevel, want: true},
		{name: "nested child", logger: "stacks.service.network", level: zapcore.DebugLevel, want: true},
		{name: "root fallback", logger: "publish", level: zapcore.InfoLevel, want: false},
		{name: "root fallback at level", logger: "publish", level: zapcore.WarnLevel, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			core, logs := observer.New(zapcore.DebugLevel)
			logger := zap.New(NewEntryLeveller(core, levels)).Named(tt.logger)
			if ce := logger.Check(tt.level, "message"); ce != nil {
				ce.Write()
			}

			if tt.want {
				assert.Equal(1, logs.Len())
			} else {
				assert.Equal(0, logs.Len())
			}
		})
	}
}

func TestEntryLeveller_KeepsLevelsAfterWith(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(NewEntryLeveller(core, map[string]zapcore.Level{"": zapcore.ErrorLevel})).
		With(StackField("AuthDatabaseStack"))

	logger.Info("dropped")
	logger.Error("kept")

	if assert.Equal(1, logs.Len()) {
		entry := logs.All()[0]
		assert.Equal("kept", entry.Message)
		assert.Equal("AuthDatabaseStack", entry.ContextMap()[stackKey])
	}
}
