package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/autoforge/pkg/schema"
)

// maxProviderBody bounds how much of a provider error body is kept.
const maxProviderBody = 64 * 1024

// TelegramAction implements the "telegram_message" action via the Bot API sendMessage method.
type TelegramAction struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramAction creates a new telegram_message action.
func NewTelegramAction(cfg TelegramConfig) *TelegramAction {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultTelegramAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &TelegramAction{cfg: cfg, client: &http.Client{}}
}

func (a *TelegramAction) Kind() schema.ActionKind { return schema.ActionTelegramMessage }

func (a *TelegramAction) Description() string {
	return "Post a text message to a Telegram chat using the configured bot."
}

type telegramResponse struct {
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (a *TelegramAction) Execute(ctx context.Context, config map[string]any) schema.Outcome {
	chatID := scalarParam(config, "chat_id")
	message := stringParam(config, "message", "")
	if chatID == "" || message == "" {
		return schema.ErrorOutcome("chat_id and message are required for Telegram")
	}
	if a.cfg.BotToken == "" {
		return schema.ErrorOutcome("Telegram bot token not configured")
	}

	payload, err := json.Marshal(map[string]any{"chat_id": chatID, "text": message})
	if err != nil {
		return schema.ErrorOutcome("marshal telegram payload: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(a.cfg.APIBase, "/") + "/bot" + a.cfg.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return schema.ErrorOutcome("%v", a.redact(err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return schema.ErrorOutcome("%s", a.redact(err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return schema.ErrorOutcome("read telegram response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return schema.ErrorOutcome("Telegram API error: %s", string(body))
	}

	var parsed telegramResponse
	details := map[string]any{"success": true, "duration_ms": time.Since(start).Milliseconds()}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Result.MessageID != 0 {
		details["message_id"] = parsed.Result.MessageID
	}
	return schema.OKOutcome(details)
}

// redact strips the bot token from transport errors, which quote the URL.
func (a *TelegramAction) redact(s string) string {
	return strings.ReplaceAll(s, a.cfg.BotToken, "<redacted>")
}
