package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("trace")
	require.ErrorIs(t, err, ErrUnknownLevel)
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New("warn", FormatJSON, &buf)
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("index rebuilt", "records", 12)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "index rebuilt", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.EqualValues(t, 12, line["records"])
}

func TestNewText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New("debug", "", &buf)
	require.NoError(t, err)
	log.Debug("opened", "store", "roads")
	assert.Contains(t, buf.String(), "store=roads")

	_, err = New("info", "xml", &buf)
	require.ErrorIs(t, err, ErrUnknownFormat)
	_, err = New("loud", FormatText, &buf)
	require.ErrorIs(t, err, ErrUnknownLevel)

	Discard().Error("nothing")
}
