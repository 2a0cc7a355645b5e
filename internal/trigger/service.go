// Package trigger turns manual calls, inbound webhooks and schedule ticks into
// pending execution records and hands them to the dispatcher.
package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/autoforge/internal/logging"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// MsgSecretMisconfigured rejects webhooks whose configured secret is unusable.
const MsgSecretMisconfigured = "webhook secret is misconfigured"

// Dispatcher queues a pending execution for a worker. Satisfied by *engine.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, executionID string) error
}

// Service creates execution records for the three trigger sources.
type Service struct {
	store      store.Store
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a trigger Service.
func NewService(s store.Store, d Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, dispatcher: d, logger: logger, now: time.Now}
}

// TriggerManual starts a run of an active chain with a caller-supplied payload.
// Errors: NOT_FOUND, CHAIN_INACTIVE.
func (s *Service) TriggerManual(ctx context.Context, chainID string, payload map[string]any) (*store.Execution, error) {
	chain, err := s.activeChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return s.start(ctx, chain, schema.TriggerManual, payload)
}

// TriggerWebhook starts a run of a webhook chain from an inbound request.
// When the chain configures a secret the body must carry a matching
// signature; a secret that is not a non-empty string rejects every request.
// Rejections never create a record.
// Errors: NOT_FOUND, CHAIN_INACTIVE, WRONG_TRIGGER_KIND, SIGNATURE_ERROR.
func (s *Service) TriggerWebhook(ctx context.Context, chainID string, body []byte, headers http.Header) (*store.Execution, error) {
	chain, err := s.activeChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if chain.TriggerKind != schema.TriggerWebhook {
		return nil, schema.NewErrorf(schema.ErrCodeWrongTriggerKind,
			"chain %s is not configured for webhook trigger", chain.ID).
			WithDetails(map[string]any{"trigger_type": string(chain.TriggerKind)})
	}
	if raw, ok := chain.TriggerConfig[schema.TriggerConfigSecret]; ok {
		if secret, _ := raw.(string); secret == "" {
			err = schema.NewError(schema.ErrCodeSignature, MsgSecretMisconfigured)
		} else {
			err = VerifySignature(secret, body, headers.Get(SignatureHeader))
		}
		if err != nil {
			logging.LogWith(logging.WithChainID(ctx, chain.ID), s.logger).Warn("webhook rejected", "error", err)
			return nil, err
		}
	}

	payload := map[string]any{
		"webhook_data": webhookData(body),
		"headers":      flattenHeaders(headers),
	}
	return s.start(ctx, chain, schema.TriggerWebhook, payload)
}

// TriggerSchedule starts a run of a schedule chain that the poller found due.
func (s *Service) TriggerSchedule(ctx context.Context, chain *store.Chain, at time.Time) (*store.Execution, error) {
	payload := map[string]any{
		"scheduled": true,
		"timestamp": at.UTC().Format(time.RFC3339),
	}
	return s.start(ctx, chain, schema.TriggerSchedule, payload)
}

func (s *Service) activeChain(ctx context.Context, chainID string) (*store.Chain, error) {
	chain, err := s.store.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if !chain.Active {
		return nil, schema.NewErrorf(schema.ErrCodeChainInactive, "chain %s is not active", chain.ID)
	}
	return chain, nil
}

// start persists a pending record and dispatches it. A dispatch failure is
// logged only: the record stays pending and is picked up by recovery.
func (s *Service) start(ctx context.Context, chain *store.Chain, source schema.TriggerKind, payload map[string]any) (*store.Execution, error) {
	rec := &store.Execution{
		ID:          uuid.New().String(),
		ChainID:     chain.ID,
		Status:      schema.ExecutionStatusPending,
		TriggerData: payload,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateExecution(ctx, rec); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create execution: %s", err.Error()).WithCause(err)
	}

	ctx = logging.WithIDs(ctx, rec.ID, chain.ID, chain.OwnerID)
	log := logging.LogWith(ctx, s.logger)
	if err := s.dispatcher.Dispatch(ctx, rec.ID); err != nil {
		log.Warn("dispatch execution; left pending for recovery", "source", string(source), "error", err)
	} else {
		log.Info("execution triggered", "source", string(source))
	}
	return rec, nil
}

// webhookData parses the body as JSON, falling back to an empty object.
func webhookData(body []byte) any {
	var data any
	if len(body) == 0 || json.Unmarshal(body, &data) != nil || data == nil {
		return map[string]any{}
	}
	return data
}

// flattenHeaders lower-cases header names and joins repeated values.
func flattenHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
