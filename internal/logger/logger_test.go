package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlert(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info", "json")
	defer SetOutput(os.Stdout, "info", "text")

	Alert("integrity_defect", "slot_id", 7)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, true, record["alert"])
	assert.Equal(t, "integrity_defect", record["alert_kind"])
	assert.Equal(t, float64(7), record["slot_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn", "text")
	defer SetOutput(os.Stdout, "info", "text")

	Info("hidden")
	Debug("hidden")
	assert.Empty(t, buf.String())

	Warn("shown", "rental_id", "abc")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "rental_id=abc")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
