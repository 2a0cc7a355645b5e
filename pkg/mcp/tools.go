package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/autoforge/internal/logging"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

const defaultListLimit = 50

// handleTrigger starts a manual run and returns the pending execution.
func (s *Server) handleTrigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chainID, err := req.RequireString("chain_id")
	if err != nil {
		return mcp.NewToolResultError("chain_id is required"), nil
	}
	payload := mcp.ParseStringMap(req, "payload", nil)

	if ownerID := req.GetString("owner_id", ""); ownerID != "" {
		chain, getErr := s.store.GetChain(ctx, chainID)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("chain lookup failed: %v", getErr)), nil
		}
		if chain.OwnerID != ownerID {
			return mcp.NewToolResultError("chain not found"), nil
		}
	}

	rec, trigErr := s.trigger.TriggerManual(ctx, chainID, payload)
	if trigErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trigger failed: %v", trigErr)), nil
	}

	logging.LogWith(logging.WithIDs(ctx, rec.ID, chainID, ""), s.logger).Info("chain triggered over mcp")
	return marshalResult(map[string]any{
		"execution_id": rec.ID,
		"chain_id":     rec.ChainID,
		"status":       rec.Status,
	})
}

// handleStatus returns an execution together with its event log.
func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	rec, getErr := s.store.GetExecution(ctx, executionID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", getErr)), nil
	}
	events, evErr := s.store.GetEvents(ctx, executionID)
	if evErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event query failed: %v", evErr)), nil
	}
	if events == nil {
		events = []*store.Event{}
	}

	return marshalResult(map[string]any{
		"execution": rec,
		"events":    events,
	})
}

// handleExecutions lists executions, newest first.
func (s *Server) handleExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	filter := store.ExecutionFilter{
		ChainID: req.GetString("chain_id", ""),
		Limit:   extractInt(args, "limit", defaultListLimit),
	}
	if status := req.GetString("status", ""); status != "" {
		es := schema.ExecutionStatus(status)
		filter.Status = &es
	}

	execs, err := s.store.ListExecutions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if execs == nil {
		execs = []*store.Execution{}
	}
	return marshalResult(map[string]any{"executions": execs})
}

// handleDefine validates and stores a new chain.
func (s *Server) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := req.RequireString("owner_id")
	if err != nil {
		return mcp.NewToolResultError("owner_id is required"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	triggerKind, err := req.RequireString("trigger_type")
	if err != nil {
		return mcp.NewToolResultError("trigger_type is required"), nil
	}

	args := req.GetArguments()
	rawActions, ok := args["actions"]
	if !ok || rawActions == nil {
		return mcp.NewToolResultError("actions is required"), nil
	}
	actions, convErr := decodeActions(rawActions)
	if convErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid actions: %v", convErr)), nil
	}

	if _, ownerErr := s.store.GetOwner(ctx, ownerID); ownerErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("owner lookup failed: %v", ownerErr)), nil
	}

	now := time.Now().UTC()
	chain := &store.Chain{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Name:          name,
		Description:   req.GetString("description", ""),
		TriggerKind:   schema.TriggerKind(triggerKind),
		TriggerConfig: mcp.ParseStringMap(req, "trigger_config", map[string]any{}),
		Actions:       actions,
		Active:        req.GetBool("is_active", true),
		Cost:          schema.Amount(extractInt(args, "execution_cost", int(schema.DefaultChainCost))),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if s.validator != nil {
		if valErr := s.validator.ValidateChain(chain); valErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid chain: %v", valErr)), nil
		}
	}
	if storeErr := s.store.CreateChain(ctx, chain); storeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store chain: %v", storeErr)), nil
	}

	logging.LogWith(logging.WithIDs(ctx, "", chain.ID, ownerID), s.logger).Info("chain defined over mcp", "trigger_type", triggerKind)
	return marshalResult(chain)
}

// handleChains lists chains.
func (s *Server) handleChains(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.ChainFilter{
		OwnerID: req.GetString("owner_id", ""),
		Limit:   extractInt(req.GetArguments(), "limit", defaultListLimit),
	}
	if kind := req.GetString("trigger_type", ""); kind != "" {
		tk := schema.TriggerKind(kind)
		filter.TriggerKind = &tk
	}

	chains, err := s.store.ListChains(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if chains == nil {
		chains = []*store.Chain{}
	}
	return marshalResult(map[string]any{"chains": chains})
}

// --- Internal helpers ---

// decodeActions converts the loosely typed tool argument into action definitions.
func decodeActions(raw any) ([]schema.ActionDefinition, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var actions []schema.ActionDefinition
	if err := json.Unmarshal(b, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// extractInt safely extracts an integer from a tool argument map.
func extractInt(args map[string]any, key string, defaultVal int) int {
	if args == nil {
		return defaultVal
	}
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
