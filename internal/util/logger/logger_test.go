package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test.output")
	log.Info("test message", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "test message")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "subsystem=test.output")
}

func TestSetOutput_ExistingLogger(t *testing.T) {
	log := Logger("test.existing")

	buf := &bytes.Buffer{}
	SetOutput(buf)

	log.Info("after switch")
	assert.Contains(t, buf.String(), "after switch")
}

func TestLogger_Cached(t *testing.T) {
	assert.Same(t, Logger("test.cached"), Logger("test.cached"))
}

func TestParseLevelConfig(t *testing.T) {
	cfg := &Config{DefaultLevel: slog.LevelInfo, SubsystemLevels: map[string]slog.Level{}}
	parseLevelConfig(cfg, "relay=debug, muxer=warn ,error,bogus=nope")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("relay"))
	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("relay.router"), "子系统按前缀回退")
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("muxer"))
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("registry"))
	_, ok := cfg.SubsystemLevels["bogus"]
	assert.False(t, ok)
}

func TestSetLevel_AffectsDerivedLoggers(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test.level").With("conn", "c1")
	SetLevel("test.level", slog.LevelError)
	log.Info("hidden")
	require.NotContains(t, buf.String(), "hidden")

	SetLevel("test.level", slog.LevelDebug)
	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "conn=c1")
}

func TestApply(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)

	log := Logger("test.apply")
	Apply("test.apply=error")
	log.Warn("suppressed")
	assert.NotContains(t, buf.String(), "suppressed")

	Apply("test.apply=debug")
	log.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}
