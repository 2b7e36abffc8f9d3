package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "bot:\n  paper_trade: true\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.ScanInterval())
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval())
	assert.Equal(t, 1000.0, cfg.Bot.InitialBankroll)
	assert.Equal(t, "kalshibot.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
kalshi:
  base_url: "https://example.com/trade-api/v2"
  access_key: "from-yaml"
log:
  level: "info"
`)
	t.Setenv("KALSHI_ACCESS_KEY", "from-env")
	t.Setenv("KALSHI_API_SECRET", "c2VjcmV0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Kalshi.AccessKey)
	assert.Equal(t, "c2VjcmV0", cfg.Kalshi.APISecret)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://example.com/trade-api/v2", cfg.Kalshi.BaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_PaperModeNeedsNoCredentials(t *testing.T) {
	cfg := &Config{}
	cfg.Bot.PaperTrade = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_LiveModeRequiresCredentials(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access key")

	cfg.Kalshi.AccessKey = "key-id"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_secret or private_key_path")

	cfg.Kalshi.APISecret = "c2VjcmV0"
	assert.NoError(t, cfg.Validate())
}
