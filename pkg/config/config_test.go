package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultMaxQueueSize, *cfg.Bus.MaxQueueSize)
	assert.Equal(t, DefaultMaxConcurrency, *cfg.TaskRunner.MaxConcurrency)
	assert.True(t, *cfg.TaskRunner.RetryOnFailure)
	assert.Equal(t, DefaultContextTargetTok, cfg.ContextStore.DefaultTargetTokens)
}

func TestParsePartialYAMLFillsDefaults(t *testing.T) {
	yaml := `
bus:
  max_queue_size: 50
task_runner:
  max_concurrency: 8
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, 50, *cfg.Bus.MaxQueueSize)
	assert.Equal(t, DefaultMaxHistorySize, *cfg.Bus.MaxHistorySize)
	assert.Equal(t, 8, *cfg.TaskRunner.MaxConcurrency)
	assert.Equal(t, DefaultMaxRetries, *cfg.TaskRunner.MaxRetries)
}

func TestParseRejectsInvalidConcurrency(t *testing.T) {
	yaml := `
task_runner:
  max_concurrency: 0
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)
}

func TestBusConfigConversion(t *testing.T) {
	cfg := Default()
	bc := cfg.BusConfig()
	assert.Equal(t, DefaultMaxQueueSize, bc.MaxQueueSize)
	assert.Equal(t, DefaultMaxHistorySize, bc.MaxHistorySize)
}

func TestTaskRunnerConfigConversion(t *testing.T) {
	cfg := Default()
	tc := cfg.TaskRunnerConfig()
	assert.Equal(t, DefaultMaxConcurrency, tc.MaxConcurrency)
	assert.Equal(t, DefaultMaxRetries, tc.MaxRetries)
}
