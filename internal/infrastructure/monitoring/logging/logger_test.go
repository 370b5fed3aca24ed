package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "n", Value: 7}, Int("n", 7))
	assert.Equal(t, Field{Key: "b", Value: true}, Bool("b", true))
	assert.Equal(t, "error", Err(nil).Key)
	assert.Equal(t, "<nil>", Err(nil).Value)
}

func TestZapLogger_EmitsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewLoggerFromCore(core)

	log.Info("task created",
		String("matter", "EP2134"),
		Int("tasks", 3),
		Duration("took", 5*time.Millisecond),
	)

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "task created", entries[0].Message)
	assert.Equal(t, "EP2134", entries[0].ContextMap()["matter"])
	assert.EqualValues(t, 3, entries[0].ContextMap()["tasks"])
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewLoggerFromCore(core).Named("engine").With(String("matter", "US4410"))

	log.Warn("rule skipped")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "engine", entries[0].LoggerName)
	assert.Equal(t, "US4410", entries[0].ContextMap()["matter"])
}

func TestParseLevel_UnknownDefaultsToInfo(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("ERROR"))
}

func TestSetDefault_IgnoresNil(t *testing.T) {
	prev := Default()
	SetDefault(nil)
	assert.Equal(t, prev, Default())
}

func TestNopLogger_DoesNotPanic(t *testing.T) {
	l := NewNopLogger()
	l.Debug("x")
	l.Info("x", Err(nil))
	l.With(String("a", "b")).Named("n").Error("x")
}
