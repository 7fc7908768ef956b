package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithTsKey(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf

	logger := New(cfg)
	logger.Info("hello", "item_id", "test-runner")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "test-runner", line["item_id"])
	assert.Contains(t, line, "ts")
	assert.NotContains(t, line, "time")
}

func TestNew_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf

	logger := New(cfg)
	logger.Debug("invisible")
	assert.Zero(t, buf.Len())

	cfg.Debug = true
	logger = New(cfg)
	logger.Debug("visible")
	assert.NotZero(t, buf.Len())
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("CAPMATCH_DEBUG", "1")
	logger := NewFromEnv()
	assert.NotNil(t, logger)
}
