package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rendis/autoforge/internal/actions"
	"github.com/rendis/autoforge/internal/engine"
	"github.com/rendis/autoforge/internal/scheduler"
	"github.com/rendis/autoforge/internal/secrets"
)

// Config holds all autoforge server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string         `json:"listen_addr"`
	DBPath          string         `json:"db_path"`
	LogLevel        string         `json:"log_level"`
	PoolSize        int            `json:"pool_size"`
	QueueSize       int            `json:"queue_size"`
	PollInterval    duration       `json:"poll_interval"`
	RunTimeout      duration       `json:"run_timeout"`
	IntervalMinutes int            `json:"default_schedule_interval_minutes"`
	HTTPTimeout     duration       `json:"http_timeout"`
	MaxResponseLen  int            `json:"max_response_chars"`
	SMTP            SMTPConfig     `json:"smtp"`
	Telegram        TelegramConfig `json:"telegram"`
	VaultPassphrase string         `json:"vault_passphrase"`
	VaultSalt       string         `json:"vault_salt"`
	MCP             bool           `json:"mcp"`
}

// SMTPConfig is the mail relay section of settings.json.
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// TelegramConfig is the chat bot section of settings.json.
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	APIBase  string `json:"api_base"`
}

// duration decodes from a Go duration string ("90s") or a number of seconds.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %s", b)
	}
	*d = duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":4200",
		DBPath:          filepath.Join(autoforgeDir(), "autoforge.db"),
		LogLevel:        "info",
		PoolSize:        engine.DefaultWorkers,
		QueueSize:       engine.DefaultQueueSize,
		PollInterval:    duration(scheduler.DefaultPollInterval),
		RunTimeout:      duration(engine.DefaultRunTimeout),
		IntervalMinutes: scheduler.DefaultIntervalMinutes,
		HTTPTimeout:     duration(30 * time.Second),
		MaxResponseLen:  1000,
		SMTP:            SMTPConfig{Port: 587},
	}
}

func autoforgeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autoforge"
	}
	return filepath.Join(home, ".autoforge")
}

func settingsPath() string {
	return filepath.Join(autoforgeDir(), "settings.json")
}

func loadConfig() (Config, error) {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Layer 3: env vars override.
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("AUTOFORGE_LISTEN_ADDR", &cfg.ListenAddr)
	str("AUTOFORGE_DB_PATH", &cfg.DBPath)
	str("AUTOFORGE_LOG_LEVEL", &cfg.LogLevel)
	str("AUTOFORGE_SMTP_HOST", &cfg.SMTP.Host)
	str("AUTOFORGE_SMTP_USERNAME", &cfg.SMTP.Username)
	str("AUTOFORGE_SMTP_PASSWORD", &cfg.SMTP.Password)
	str("AUTOFORGE_SMTP_FROM", &cfg.SMTP.From)
	str("AUTOFORGE_TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	str("AUTOFORGE_VAULT_PASSPHRASE", &cfg.VaultPassphrase)
	str("AUTOFORGE_VAULT_SALT", &cfg.VaultSalt)

	ints := map[string]*int{
		"AUTOFORGE_POOL_SIZE": &cfg.PoolSize,
		"AUTOFORGE_SMTP_PORT": &cfg.SMTP.Port,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*duration{
		"AUTOFORGE_POLL_INTERVAL": &cfg.PollInterval,
		"AUTOFORGE_RUN_TIMEOUT":   &cfg.RunTimeout,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", key, err)
			}
			*dst = duration(d)
		}
	}

	if v := getenv("AUTOFORGE_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}
	return cfg, nil
}

func (c Config) actions() actions.Config {
	return actions.Config{
		HTTPTimeout:      time.Duration(c.HTTPTimeout),
		MaxResponseChars: c.MaxResponseLen,
		SMTP: actions.SMTPConfig{
			Host:     c.SMTP.Host,
			Port:     c.SMTP.Port,
			Username: c.SMTP.Username,
			Password: c.SMTP.Password,
			From:     c.SMTP.From,
		},
		Telegram: actions.TelegramConfig{
			BotToken: c.Telegram.BotToken,
			APIBase:  c.Telegram.APIBase,
		},
	}
}

func (c Config) dispatcher() engine.DispatcherConfig {
	return engine.DispatcherConfig{
		Workers:    c.PoolSize,
		QueueSize:  c.QueueSize,
		RunTimeout: time.Duration(c.RunTimeout),
	}
}

func (c Config) scheduler() scheduler.Config {
	return scheduler.Config{
		PollInterval:           time.Duration(c.PollInterval),
		DefaultIntervalMinutes: c.IntervalMinutes,
	}
}

// vault returns the vault settings, or false when no passphrase is configured.
func (c Config) vault() (secrets.VaultConfig, bool) {
	if c.VaultPassphrase == "" {
		return secrets.VaultConfig{}, false
	}
	salt := c.VaultSalt
	if salt == "" {
		salt = "autoforge"
	}
	return secrets.VaultConfig{Passphrase: c.VaultPassphrase, Salt: []byte(salt)}, true
}
