package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dirhook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultDir, cfg.Dir)
	assert.Equal(t, "http://localhost:8080/file/", cfg.WorkerURL)
	assert.Equal(t, DefaultMaxInFlight, cfg.MaxInFlight)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Zero(t, cfg.RequestTimeout)
	assert.Equal(t, LogFormatAuto, cfg.LogFormat)
	assert.Empty(t, cfg.LockPath)
}

func TestLoadWorkerURLFromEnv(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{WorkerURLEnv: "http://example.test/file/"}))
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/file/", cfg.WorkerURL)
}

func TestLoadIgnoresEmptyWorkerURLEnv(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{WorkerURLEnv: "  "}))
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerURL, cfg.WorkerURL)
}

func TestLoadReadsEnvOnce(t *testing.T) {
	calls := 0
	getenv := func(key string) string {
		calls++
		return ""
	}
	_, err := Load("", getenv)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
dir: /srv/incoming
worker_url: http://worker.internal/jobs/
max_in_flight: 8
connect_timeout: 3s
request_timeout: 1m
lock_path: /run/dirhook.lock
log_format: json
verbose: true
`)

	cfg, err := Load(path, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "/srv/incoming", cfg.Dir)
	assert.Equal(t, "http://worker.internal/jobs/", cfg.WorkerURL)
	assert.Equal(t, 8, cfg.MaxInFlight)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.RequestTimeout)
	assert.Equal(t, "/run/dirhook.lock", cfg.LockPath)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.True(t, cfg.Verbose)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfigFile(t, "worker_url: http://from-file/\n")

	cfg, err := Load(path, envMap(map[string]string{WorkerURLEnv: "http://from-env/"}))
	require.NoError(t, err)
	assert.Equal(t, "http://from-env/", cfg.WorkerURL)

	cfg, err = Load(path, envMap(map[string]string{WorkerURLEnv: "http://from-env/"}), func(c *Config) {
		c.WorkerURL = "http://from-flag/"
	})
	require.NoError(t, err)
	assert.Equal(t, "http://from-flag/", cfg.WorkerURL)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, ""), envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerURL, cfg.WorkerURL)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfigFile(t, "wroker_url: http://typo/\n"), envMap(nil))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative worker url", func(c *Config) { c.WorkerURL = "/file/" }},
		{"unsupported scheme", func(c *Config) { c.WorkerURL = "ftp://host/file/" }},
		{"negative max in flight", func(c *Config) { c.MaxInFlight = -1 }},
		{"negative connect timeout", func(c *Config) { c.ConnectTimeout = -time.Second }},
		{"negative request timeout", func(c *Config) { c.RequestTimeout = -time.Second }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"blank dir", func(c *Config) { c.Dir = "   " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
