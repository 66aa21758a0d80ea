package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWriter(t *testing.T) {
	saved := L
	t.Cleanup(func() { L = saved })

	var out bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Writer: &out, Level: slog.LevelDebug}))
	Debug("segment added", "base", 4096)
	require.Contains(t, out.String(), "segment added")
	require.Contains(t, out.String(), "base=4096")

	out.Reset()
	require.NoError(t, Init(Options{Enabled: false}))
	Error("dropped")
	require.Empty(t, out.String())
}

func TestInitLogDir(t *testing.T) {
	saved := L
	t.Cleanup(func() { L = saved })

	dir := t.TempDir()
	require.NoError(t, Init(Options{Enabled: true, LogDir: dir, JSON: true}))
	Info("hello")

	matches, err := filepath.Glob(filepath.Join(dir, logPrefix+"*"+logSuffix))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
