package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citygate/internal/platform/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, config.LogConfig{Level: "info", Format: "json"})

	log.Debug("hidden")
	log.Info("ready", "attempt", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ready", entry["msg"])
	assert.Equal(t, "citygate", entry["service"])
	assert.EqualValues(t, 3, entry["attempt"])
}

func TestNewWithWriterTextDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, config.LogConfig{Level: "debug", Format: "text"})

	log.Debug("polling")

	assert.Contains(t, buf.String(), "msg=polling")
}
