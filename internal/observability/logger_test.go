// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/relock/internal/config"
	"go.uber.org/zap"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestInitializeConsole(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	out := &syncBuffer{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "relock-test",
		Colors:      config.ColorConfig{Info: "green"},
	}, out)

	GetLogger().Info("locator resolved", zap.String("tier", "primary"))

	logged := out.String()
	assert.Contains(t, logged, "locator resolved")
	assert.Contains(t, logged, "relock-test")
	assert.Contains(t, logged, colorGreen, "console format colorizes levels")
}

func TestInitializeJSONLevelFiltering(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	out := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "warn", Format: "json", ServiceName: "relock-test"}, out)

	logger := GetLogger()
	logger.Info("should be filtered")
	logger.Warn("should appear")

	logged := out.String()
	assert.NotContains(t, logged, "should be filtered")
	assert.Contains(t, logged, `"should appear"`)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(logged), "{"), "file/json format is structured")
}

func TestInitializeIsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)

	GetLogger().Info("only once")
	assert.Contains(t, first.String(), "only once")
	assert.Empty(t, second.String())
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	require.NotNil(t, GetLogger(), "uninitialized logger must still be usable")
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	out := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "chatty", Format: "json"}, out)

	logger := GetLogger()
	logger.Debug("hidden")
	logger.Info("visible")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "visible")
}
