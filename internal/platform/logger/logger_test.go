package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json drops records below level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, "warn", "json")
		log.Info("ignored")
		log.Warn("kept", "audit_id", "a-1")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "kept", rec["msg"])
		assert.Equal(t, "a-1", rec["audit_id"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "debug", "text").Debug("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
