package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/autoforge/pkg/schema"
)

// Owner is an account that owns chains and holds a balance.
type Owner struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	Balance   schema.Amount `json:"balance"`
	CreatedAt time.Time     `json:"created_at"`
}

// Chain is a persisted automation definition: a trigger plus an ordered action list.
type Chain struct {
	ID            string                    `json:"id"`
	OwnerID       string                    `json:"owner_id"`
	Name          string                    `json:"name"`
	Description   string                    `json:"description,omitempty"`
	TriggerKind   schema.TriggerKind        `json:"trigger_type"`
	TriggerConfig map[string]any            `json:"trigger_config"`
	Actions       []schema.ActionDefinition `json:"actions"`
	Active        bool                      `json:"is_active"`
	Cost          schema.Amount             `json:"execution_cost"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// Execution is one attempt to run a chain.
type Execution struct {
	ID           string                  `json:"id"`
	ChainID      string                  `json:"chain_id"`
	Status       schema.ExecutionStatus  `json:"status"`
	TriggerData  map[string]any          `json:"trigger_data,omitempty"`
	Result       *schema.ExecutionResult `json:"execution_result,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	Cost         schema.Amount           `json:"cost"`
	Charged      bool                    `json:"charged"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}

// LedgerEntry is an immutable record of a balance change.
type LedgerEntry struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	Amount      schema.Amount `json:"amount"`
	Description string        `json:"description"`
	ExecutionID string        `json:"execution_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Event is an immutable entry in an execution's audit log.
type Event struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	ActionIndex *int            `json:"action_index,omitempty"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

// --- Filter and update types ---

// ChainFilter specifies criteria for listing chains.
type ChainFilter struct {
	OwnerID     string              `json:"owner_id,omitempty"`
	TriggerKind *schema.TriggerKind `json:"trigger_type,omitempty"`
	Active      *bool               `json:"is_active,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
}

// ChainUpdate specifies the owner-mutable fields of a chain.
type ChainUpdate struct {
	Name          *string                   `json:"name,omitempty"`
	Description   *string                   `json:"description,omitempty"`
	TriggerConfig map[string]any            `json:"trigger_config,omitempty"`
	Actions       []schema.ActionDefinition `json:"actions,omitempty"`
	Active        *bool                     `json:"is_active,omitempty"`
	Cost          *schema.Amount            `json:"execution_cost,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	ChainID      string                  `json:"chain_id,omitempty"`
	Status       *schema.ExecutionStatus `json:"status,omitempty"`
	StartedUntil *time.Time              `json:"started_until,omitempty"`
	Limit        int                     `json:"limit,omitempty"`
}
