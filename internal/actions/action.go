package actions

import (
	"context"
	"time"

	"github.com/rendis/autoforge/pkg/schema"
)

// Action is an executor for one kind of chain action.
// Execute must not panic or return a Go error; every failure is an Outcome with OK false.
type Action interface {
	Kind() schema.ActionKind
	Description() string
	Execute(ctx context.Context, config map[string]any) schema.Outcome
}

// ActionInfo is a summary of a registered action for listing.
type ActionInfo struct {
	Kind        schema.ActionKind `json:"type"`
	Description string            `json:"description,omitempty"`
}

// Config carries the collaborator settings the built-in executors need.
type Config struct {
	HTTPTimeout      time.Duration
	MaxResponseChars int
	SMTP             SMTPConfig
	Telegram         TelegramConfig
}

// SMTPConfig addresses the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// TelegramConfig holds the bot credential and API endpoint.
type TelegramConfig struct {
	BotToken string
	APIBase  string
	Timeout  time.Duration
}

const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxResponseChars = 1000
	defaultSMTPPort         = 587
	defaultSMTPFrom         = "autoforge@localhost"
	defaultTelegramAPIBase  = "https://api.telegram.org"
)

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.MaxResponseChars <= 0 {
		c.MaxResponseChars = defaultMaxResponseChars
	}
	if c.SMTP.Port <= 0 {
		c.SMTP.Port = defaultSMTPPort
	}
	if c.SMTP.Timeout <= 0 {
		c.SMTP.Timeout = c.HTTPTimeout
	}
	if c.Telegram.APIBase == "" {
		c.Telegram.APIBase = defaultTelegramAPIBase
	}
	if c.Telegram.Timeout <= 0 {
		c.Telegram.Timeout = c.HTTPTimeout
	}
	return c
}
