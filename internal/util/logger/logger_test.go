package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSetOutput 测试切换输出目标
func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test")
	log.Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "subsystem=test")
}

// TestSetOutput_ExistingLogger 测试已创建的 logger 跟随输出切换
func TestSetOutput_ExistingLogger(t *testing.T) {
	log := Logger("test2")

	buf := &bytes.Buffer{}
	SetOutput(buf)

	log.Info("after switch")
	assert.Contains(t, buf.String(), "after switch")
}

// TestSetLevel 测试动态级别调整同样作用于派生 logger
func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test-level")
	derived := log.With("peer", "abc")

	SetLevel("test-level", slog.LevelError)
	derived.Info("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetLevel("test-level", slog.LevelDebug)
	derived.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

// TestParseConfig 测试级别配置解析
func TestParseConfig(t *testing.T) {
	cfg := ParseConfig("discovery=debug, transport=warn ,error", "json", "0")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("discovery"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("transport/libp2p"))
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("reqresp"))
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.False(t, cfg.AddSource)
}

// TestTruncateID 测试 ID 截取
func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", TruncateID("abc", 8))
	assert.Equal(t, "cdef", TruncateID("abcdef", 4))
}
