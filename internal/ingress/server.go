// Package ingress serves the inbound HTTP surface: webhook triggers, a health
// probe and, when configured, the metrics exporter.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/autoforge/internal/engine"
	"github.com/rendis/autoforge/internal/logging"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// DefaultMaxBodyBytes bounds an inbound webhook body.
const DefaultMaxBodyBytes = 1 << 20

// WebhookTrigger is satisfied by *trigger.Service.
type WebhookTrigger interface {
	TriggerWebhook(ctx context.Context, chainID string, body []byte, headers http.Header) (*store.Execution, error)
}

// MetricsSource reports dispatcher load for the health probe. Satisfied by *engine.Dispatcher.
type MetricsSource interface {
	Metrics() engine.DispatcherMetrics
}

// Deps holds the dependencies for the ingress server.
type Deps struct {
	Trigger      WebhookTrigger
	Metrics      MetricsSource // optional
	Exporter     http.Handler  // optional, served on GET /metrics
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// Server routes inbound HTTP requests.
type Server struct {
	deps Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the ingress routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/{chainID}", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Exporter != nil {
		mux.Handle("GET /metrics", s.deps.Exporter)
	}
	return mux
}

type webhookResponse struct {
	Message     string `json:"message"`
	ExecutionID string `json:"execution_id"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	chainID := r.PathValue("chainID")
	ctx := logging.WithChainID(r.Context(), chainID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.deps.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "webhook body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read webhook body")
		return
	}

	rec, err := s.deps.Trigger.TriggerWebhook(ctx, chainID, body, r.Header)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logging.LogWith(ctx, s.deps.Logger).Error("webhook trigger failed", "error", err)
		}
		writeError(w, status, messageOf(err))
		return
	}

	writeJSON(w, http.StatusAccepted, webhookResponse{
		Message:     "Webhook received and chain execution triggered",
		ExecutionID: rec.ID,
	})
}

type healthResponse struct {
	Status     string                    `json:"status"`
	Dispatcher *engine.DispatcherMetrics `json:"dispatcher,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.deps.Metrics != nil {
		m := s.deps.Metrics.Metrics()
		resp.Dispatcher = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps trigger rejections to HTTP status codes.
func statusFor(err error) int {
	switch schema.CodeOf(err) {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeChainInactive, schema.ErrCodeWrongTriggerKind, schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeSignature:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func messageOf(err error) string {
	var e *schema.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
