package mspace

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/logger"
)

func TestSpaceFollowsLoggerInit(t *testing.T) {
	prev := logger.L
	t.Cleanup(func() { logger.L = prev })

	s, err := New(0, DefaultConfig)
	require.NoError(t, err)

	// Configured after the space exists.
	var out bytes.Buffer
	require.NoError(t, logger.Init(logger.Options{Enabled: true, Writer: &out, Level: slog.LevelDebug}))

	s.Destroy()
	assert.Contains(t, out.String(), "space destroyed")
}

func TestConfigLoggerTakesPrecedence(t *testing.T) {
	prev := logger.L
	t.Cleanup(func() { logger.L = prev })

	var own, global bytes.Buffer
	cfg := DefaultConfig
	cfg.Logger = slog.New(slog.NewTextHandler(&own, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := New(0, cfg)
	require.NoError(t, err)
	require.NoError(t, logger.Init(logger.Options{Enabled: true, Writer: &global, Level: slog.LevelDebug}))

	s.Destroy()
	assert.Contains(t, own.String(), "space destroyed")
	assert.Empty(t, global.String())
}
