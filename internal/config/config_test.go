package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Snapshots.Enabled)
	require.Equal(t, 3, cfg.Snapshots.MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.Snapshots.WorkerTimeout)
	require.Equal(t, time.Second, cfg.Politeness.Window)
	require.Equal(t, 60*time.Second, cfg.Politeness.EntryTTL)
	require.Equal(t, 100, cfg.Quota.Limit)
	require.Equal(t, 24*time.Hour, cfg.Quota.Window)

	delays, err := cfg.RetryDelays()
	require.NoError(t, err)
	require.Equal(t, []time.Duration{5 * time.Minute, 30 * time.Minute, 2 * time.Hour}, delays)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: true
snapshots:
  enabled: false
  max_attempts: 5
  retry_delays: ["1m", "10m"]
  local_mode: true
quota:
  limit: 10
  window: 1h
auth:
  worker_secret: hunter2
broker:
  publish_url: https://broker.example.com/publish
  worker_url: https://app.example.com/v1/snapshots/deliver
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
	require.False(t, cfg.Snapshots.Enabled)
	require.Equal(t, 5, cfg.Snapshots.MaxAttempts)
	require.True(t, cfg.Snapshots.LocalMode)
	require.Equal(t, 10, cfg.Quota.Limit)
	require.Equal(t, "hunter2", cfg.Auth.WorkerSecret)

	delays, err := cfg.RetryDelays()
	require.NoError(t, err)
	require.Equal(t, []time.Duration{time.Minute, 10 * time.Minute}, delays)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Snapshots.MaxAttempts = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Snapshots.RetryDelays = []string{"30m", "5m"}
	require.ErrorContains(t, bad.Validate(), "non-decreasing")

	bad = cfg
	bad.Politeness.EntryTTL = 100 * time.Millisecond
	require.ErrorContains(t, bad.Validate(), "entry_ttl")

	bad = cfg
	bad.Broker.PublishURL = "https://broker.example.com"
	bad.Broker.WorkerURL = ""
	require.ErrorContains(t, bad.Validate(), "worker_url")
}
