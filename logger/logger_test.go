package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("ledger", &buf, "warn")

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.WithField("uid", "u1").Warn("kept")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "ledger", line["service"])
	assert.Equal(t, "u1", line["uid"])
	assert.Contains(t, line, "timestamp")
}
