package logx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestNew_ConsoleLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, c, err := New(Options{Level: "warn", Console: &buf})
	require.NoError(t, err)
	defer c.Close()

	l.Info("hidden")
	l.Warn("shown", "unit", "Hindi 2023")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, `unit="Hindi 2023"`)
	assert.Contains(t, out, "service=wikifilms")
}

func TestNew_FileGetsJSON(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "wikifilms.log")
	l, c, err := New(Options{Level: "info", File: file, Console: &buf})
	require.NoError(t, err)

	l.Info("unit done", "records", 3)
	require.NoError(t, c.Close())

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	line := strings.TrimSpace(string(b))
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	assert.Equal(t, "unit done", m["msg"])
	assert.Equal(t, float64(3), m["records"])
	assert.Equal(t, "wikifilms", m["service"])
	assert.Contains(t, buf.String(), "unit done")
}

func TestDiscard(t *testing.T) {
	l := OrDiscard(nil)
	require.NotNil(t, l)
	l.Error("nothing happens")
}
