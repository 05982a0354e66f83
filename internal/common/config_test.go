package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 2, config.Queue.Concurrency)
	assert.Equal(t, time.Second, config.Queue.PollInterval())
	assert.Equal(t, 10*time.Second, config.Queue.MaxPollInterval())
	assert.Equal(t, 30*time.Minute, config.Queue.JobTimeout())
	assert.Equal(t, 5*time.Second, config.Queue.BackoffDelay())
	assert.Equal(t, 7*24*time.Hour, config.Queue.CleanupAgeDuration())
	assert.Equal(t, "./data/queue.db", config.Storage.QueuePath)
	assert.Equal(t, "./data/jobs.db", config.Storage.JobsPath)
	assert.Equal(t, "./output/jobs", config.Output.Dir)
	assert.Equal(t, "unlimited", config.Output.MaxTokens)
}

func TestFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 8080

[queue]
concurrency = 4
poll_interval_ms = 250

[output]
max_tokens = "50000"
`), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 4, config.Queue.Concurrency)
	assert.Equal(t, 250*time.Millisecond, config.Queue.PollInterval())
	assert.Equal(t, "50000", config.Output.MaxTokens)
	// Untouched keys keep their defaults
	assert.Equal(t, 10000, config.Queue.MaxPollMs)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("POLL_INTERVAL_MS", "100")
	t.Setenv("JOB_TIMEOUT_MS", "60000")
	t.Setenv("API_PORT", "9999")
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_KEY", "secret")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 8, config.Queue.Concurrency)
	assert.Equal(t, 100, config.Queue.PollIntervalMs)
	assert.Equal(t, time.Minute, config.Queue.JobTimeout())
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, "secret", config.Server.APIKey)
}

func TestInvalidEnvValuesIgnored(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")
	t.Setenv("POLL_INTERVAL_MS", "-10")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 2, config.Queue.Concurrency)
	assert.Equal(t, 1000, config.Queue.PollIntervalMs)
}

func TestFlagOverridesBeatEverything(t *testing.T) {
	t.Setenv("API_PORT", "9999")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	ApplyFlagOverrides(config, 3333, "0.0.0.0")

	assert.Equal(t, 3333, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestMissingConfigFileErrors(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
