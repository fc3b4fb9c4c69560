package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogger(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestInitJSONWithComponent(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "debug", Format: "json", Writer: &buf}))

	logger := Component("blog")
	logger.Info().Str("topic", "go").Msg("Found 2 articles in cache.")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "blog", line["component"])
	assert.Equal(t, "go", line["topic"])
	assert.Equal(t, "Found 2 articles in cache.", line["message"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "caller")
}

func TestInitLevelFilters(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "warn", Format: "json", Writer: &buf}))

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitConsoleFormat(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "info", Format: "console", Writer: &buf}))

	log.Info().Msg("📄 PHASE 2: CONTENT EXTRACTION")
	assert.Contains(t, buf.String(), "PHASE 2")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestInitErrors(t *testing.T) {
	restoreLogger(t)

	assert.Error(t, Init(Config{Level: "chatty"}))
	assert.Error(t, Init(Config{Output: "file"}))
}

func TestInitFileOutput(t *testing.T) {
	restoreLogger(t)

	path := filepath.Join(t.TempDir(), "logs", "inkwell.log")
	require.NoError(t, Init(Config{Level: "info", Format: "json", Output: "file", FilePath: path}))
	log.Info().Msg("to file")
	assert.FileExists(t, path)
}
