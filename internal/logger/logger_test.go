package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("WARNING"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("warn"))
	assert.Equal(t, logger.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, logger.InfoLevel, logger.ParseLevel("chatty"))
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf).With("governor")

	log.Info().Str("tier", "low").Msg("Tier changed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "governor", line["component"])
	assert.Equal(t, "low", line["tier"])
	assert.Equal(t, "Tier changed", line["message"])
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	err := errors.New().WithMessage(errors.ErrReadTiers, "no tiers")
	log.ErrorWithCode(err).Msg("Startup failed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, string(errors.ErrReadTiers), line["error_code"])
	assert.Equal(t, "no tiers", line["error_message"])
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		logger.Nop().With("x").Warn().Msg("dropped")
	})
}
