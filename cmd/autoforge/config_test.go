package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfigFrom(filepath.Join(t.TempDir(), "missing.json"), envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60*time.Second, time.Duration(cfg.PollInterval))
	assert.Equal(t, 300*time.Second, time.Duration(cfg.RunTimeout))
	assert.Equal(t, 60, cfg.IntervalMinutes)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.False(t, cfg.MCP)

	_, ok := cfg.vault()
	assert.False(t, ok, "no passphrase means no vault")
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"listen_addr": ":9000",
		"poll_interval": "30s",
		"run_timeout": 120,
		"smtp": {"host": "mail.local", "from": "bot@local"},
		"telegram": {"bot_token": "tok"}
	}`), 0o600))

	cfg, err := loadConfigFrom(path, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.PollInterval))
	assert.Equal(t, 120*time.Second, time.Duration(cfg.RunTimeout))
	assert.Equal(t, "mail.local", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port, "unset keys keep defaults")

	a := cfg.actions()
	assert.Equal(t, "mail.local", a.SMTP.Host)
	assert.Equal(t, "bot@local", a.SMTP.From)
	assert.Equal(t, "tok", a.Telegram.BotToken)
	assert.Equal(t, 120*time.Second, cfg.dispatcher().RunTimeout)
	assert.Equal(t, 30*time.Second, cfg.scheduler().PollInterval)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr": ":9000", "pool_size": 2}`), 0o600))

	cfg, err := loadConfigFrom(path, envMap(map[string]string{
		"AUTOFORGE_LISTEN_ADDR":      ":9100",
		"AUTOFORGE_POOL_SIZE":        "8",
		"AUTOFORGE_POLL_INTERVAL":    "2m",
		"AUTOFORGE_RUN_TIMEOUT":      "45",
		"AUTOFORGE_MCP":              "true",
		"AUTOFORGE_VAULT_PASSPHRASE": "pw",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.PollInterval))
	assert.Equal(t, 45*time.Second, time.Duration(cfg.RunTimeout))
	assert.True(t, cfg.MCP)

	vc, ok := cfg.vault()
	require.True(t, ok)
	assert.Equal(t, "pw", vc.Passphrase)
	assert.NotEmpty(t, vc.Salt)
}

func TestLoadConfig_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"poll_interval": "soon"}`), 0o600))
	_, err := loadConfigFrom(path, envMap(nil))
	assert.Error(t, err)

	_, err = loadConfigFrom(filepath.Join(t.TempDir(), "missing.json"), envMap(map[string]string{"AUTOFORGE_POOL_SIZE": "many"}))
	assert.Error(t, err)

	_, err = loadConfigFrom(filepath.Join(t.TempDir(), "missing.json"), envMap(map[string]string{"AUTOFORGE_RUN_TIMEOUT": "later"}))
	assert.Error(t, err)
}
