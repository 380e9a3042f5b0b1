package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageline/internal/logging"
)

func TestJSONLoggerCarriesDomainAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Debug("claimed", logging.ActivityID("a-1"), logging.Actor("Alex"), logging.Error(errors.New("x")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "claimed", rec["msg"])
	assert.Equal(t, "a-1", rec[logging.FieldActivityID])
	assert.Equal(t, "Alex", rec[logging.FieldActor])
	assert.Equal(t, "x", rec["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Output: &buf})
	require.NoError(t, err)
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "xml"})
	assert.Error(t, err)
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("bogus"))
}

func TestNopLogger(t *testing.T) {
	logging.NewComponentLogger(nil, "engine").Error("dropped")
}
