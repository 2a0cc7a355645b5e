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

// HTTPRequestAction implements the "http_request" action.
//
// The outcome is OK for any response the server returned, including 4xx and
// 5xx; the engine decides chain-level success from status_code.
type HTTPRequestAction struct {
	timeout  time.Duration
	maxChars int
	client   *http.Client
}

// NewHTTPRequestAction creates a new http_request action.
func NewHTTPRequestAction(cfg Config) *HTTPRequestAction {
	cfg = cfg.withDefaults()
	return &HTTPRequestAction{
		timeout:  cfg.HTTPTimeout,
		maxChars: cfg.MaxResponseChars,
		client:   &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
	}
}

func (a *HTTPRequestAction) Kind() schema.ActionKind { return schema.ActionHTTPRequest }

func (a *HTTPRequestAction) Description() string {
	return "Send a GET, POST, PUT or DELETE request and capture the status code and a truncated response."
}

func (a *HTTPRequestAction) Execute(ctx context.Context, config map[string]any) schema.Outcome {
	method := http.MethodGet
	if v, ok := config["method"]; ok {
		m, isString := v.(string)
		if !isString {
			return schema.ErrorOutcome("Unsupported HTTP method: %v", v)
		}
		method = strings.ToUpper(m)
	}
	rawURL := stringParam(config, "url", "")
	if rawURL == "" {
		return schema.ErrorOutcome("URL is required for HTTP request")
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return schema.ErrorOutcome("Unsupported HTTP method: %s", method)
	}

	// Bodies go out as JSON for POST and PUT only.
	var bodyReader io.Reader
	if method == http.MethodPost || method == http.MethodPut {
		body, ok := config["body"]
		if !ok || body == nil {
			body = map[string]any{}
		}
		b, err := json.Marshal(body)
		if err != nil {
			return schema.ErrorOutcome("marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return schema.ErrorOutcome("%v", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headerParam(config, "headers") {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return schema.ErrorOutcome("%v", err)
	}
	defer resp.Body.Close()

	// Runes are at most 4 bytes; read only what the truncation can keep.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(a.maxChars)*4))
	if err != nil {
		return schema.ErrorOutcome("read response body: %v", err)
	}

	return schema.OKOutcome(map[string]any{
		"status_code": resp.StatusCode,
		"response":    truncateChars(string(raw), a.maxChars),
		"success":     resp.StatusCode < 400,
	})
}
