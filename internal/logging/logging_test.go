package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", "json", &buf)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("session_id", "s1").Msg("scored")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scored", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "s1", line["session_id"])
	assert.Equal(t, "speechcoach", line["service"])
	assert.Contains(t, line, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "console", &buf)
	require.NoError(t, err)

	log.Debug().Str("outcome", "completed").Msg("immediate feedback run finished")
	out := buf.String()
	assert.Contains(t, out, "immediate feedback run finished")
	assert.Contains(t, out, "outcome=completed")
	assert.Contains(t, out, "DBG")
}

func TestNew_EmptyLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("", "json", &buf)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	log.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New("chatty", "json", nil)
	assert.Error(t, err)
}
