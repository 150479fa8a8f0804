package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigAppliesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"browser": {"backend": "chromedp"}, "rod": {"user_data_dir": "profile"}}`))

	require.NoError(t, err)
	assert.Equal(t, "chromedp", cfg.Browser.Backend)
	assert.Equal(t, "https://web.whatsapp.com/", cfg.Browser.TargetURL)
	assert.True(t, filepath.IsAbs(cfg.Rod.UserDataDir))
	assert.Equal(t, 30000, cfg.Orchestrator.BootTimeoutMs)
	assert.Equal(t, []int{500, 1000, 2000, 4000}, cfg.Orchestrator.SessionBackoffMs)
	assert.Equal(t, 10000, cfg.Worker.MaxEntities)
}

func TestParseConfigRejectsInvalidValues(t *testing.T) {
	_, err := ParseConfig([]byte(`{"browser": {"backend": "firefox"}}`))
	assert.Error(t, err)

	_, err = ParseConfig([]byte(`{"elasticsearch": {"enabled": true}}`))
	assert.Error(t, err)

	_, err = ParseConfig([]byte(`{"capture": {"max_step": 2}}`))
	assert.Error(t, err)
}

func TestLoadConfigByExtension(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[server]
port = 9090

[orchestrator]
lock_timeout_ms = 1000
session_backoff_ms = [10, 20]
`), 0o644))
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
browser:
  backend: chromedp
capture:
  min_step: 0.2
  max_step: 0.3
`), 0o644))

	cfg, err := LoadConfig(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Orchestrator.LockTimeoutMs)
	assert.Equal(t, []int{10, 20}, cfg.Orchestrator.SessionBackoffMs)

	cfg, err = LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "chromedp", cfg.Browser.Backend)
	assert.InDelta(t, 0.2, cfg.Capture.MinStep, 1e-9)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GROUPAGENT_TARGET_URL":  "https://example.test/app",
		"GROUPAGENT_SERVER_PORT": "7000",
		"GROUPAGENT_HEADLESS":    "false",
		"GROUPAGENT_ES_ENABLED":  "true",
		"GROUPAGENT_ES_ADDRESS":  "http://localhost:9200",
	}
	cfg := Default()

	require.NoError(t, ApplyEnv(cfg, func(k string) string { return env[k] }))

	assert.Equal(t, "https://example.test/app", cfg.Browser.TargetURL)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.False(t, cfg.Rod.Headless)
	assert.False(t, cfg.Chromedp.Headless)
	assert.True(t, cfg.Elasticsearch.Enabled)
	assert.Equal(t, "http://localhost:9200", cfg.Elasticsearch.Address)

	env["GROUPAGENT_SERVER_PORT"] = "not-a-port"
	assert.Error(t, ApplyEnv(cfg, func(k string) string { return env[k] }))
}
