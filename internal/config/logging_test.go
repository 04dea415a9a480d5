package config

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerTagsServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, LoggingConfig{Level: "info", Format: "json"})
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "faultline", line["service"])
	require.Equal(t, "hello", line["message"])
}

func TestNewLoggerFallsBackToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, LoggingConfig{Level: "nonsense"})

	logger.Debug().Msg("dropped")
	require.Empty(t, buf.Bytes())

	logger.Info().Msg("kept")
	require.NotEmpty(t, buf.Bytes())
}
