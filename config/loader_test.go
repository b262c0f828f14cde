package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Events.Backend)
	assert.Equal(t, 2, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 3, cfg.Workflow.MinContexts)
	assert.Equal(t, 10, cfg.Workflow.TopContexts)
	assert.True(t, cfg.Workflow.EnableAgents)
	assert.Equal(t, 10, cfg.Throttle.Limit)
	assert.Equal(t, time.Minute, cfg.Throttle.Period)
	assert.Equal(t, 5*time.Minute, cfg.Auth.TokenTTL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
workflow:
  max_attempts: 4
  min_contexts: 5
events:
  backend: redis
redis:
  addr: redis.internal:6379
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 4, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 5, cfg.Workflow.MinContexts)
	assert.Equal(t, "redis", cfg.Events.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)

	// Values the file does not set keep their defaults.
	assert.Equal(t, 10, cfg.Workflow.TopContexts)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESEARCHFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("RESEARCHFLOW_WORKFLOW_MAX_ATTEMPTS", "1")
	t.Setenv("RESEARCHFLOW_WORKFLOW_ATTEMPT_BACKOFF", "250ms")
	t.Setenv("RESEARCHFLOW_WORKFLOW_ENABLE_AGENTS", "false")
	t.Setenv("RESEARCHFLOW_AUTH_SECRET", "env-secret")
	t.Setenv("RESEARCHFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/researchflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 1, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Workflow.AttemptBackoff)
	assert.False(t, cfg.Workflow.EnableAgents)
	assert.Equal(t, "env-secret", cfg.Auth.Secret)
	assert.Equal(t, []string{"stdout", "/var/log/researchflow.log"}, cfg.Log.OutputPaths)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o644))

	t.Setenv("RESEARCHFLOW_SERVER_HTTP_PORT", "7001")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.HTTPPort)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Events.Backend = "kafka"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Workflow.MinContexts = 0
	assert.Error(t, cfg.Validate())
}

func TestValidatorHook(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return assert.AnError
		}).
		Load()
	assert.Error(t, err)
}
