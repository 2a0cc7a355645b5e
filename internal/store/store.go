package store

import (
	"context"
	"time"

	"github.com/rendis/autoforge/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Owners
	CreateOwner(ctx context.Context, owner *Owner) error
	GetOwner(ctx context.Context, id string) (*Owner, error)

	// Chains
	CreateChain(ctx context.Context, chain *Chain) error
	GetChain(ctx context.Context, id string) (*Chain, error)
	UpdateChain(ctx context.Context, id string, update ChainUpdate) error
	ListChains(ctx context.Context, filter ChainFilter) ([]*Chain, error)
	// DeleteChain rejects with CONFLICT while the chain has pending or running
	// executions. Executions of a deleted chain are kept.
	DeleteChain(ctx context.Context, id string) error

	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	// ClaimExecution moves a pending record to running. It returns false,
	// without mutation, when the record is no longer pending.
	ClaimExecution(ctx context.Context, id string, startedAt time.Time) (bool, error)
	// SaveExecution overwrites a record. Saving a terminal record again with the
	// same status is a no-op; leaving a terminal status is INVALID_TRANSITION.
	SaveExecution(ctx context.Context, exec *Execution) error
	LatestExecutionFor(ctx context.Context, chainID string) (*Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Billing
	// DebitAndLedger atomically debits the owner, appends a ledger entry linked
	// to the execution and marks the execution charged. It returns false with no
	// mutation when the balance is below amount.
	DebitAndLedger(ctx context.Context, ownerID string, amount schema.Amount, description, executionID string) (bool, error)
	ListLedger(ctx context.Context, ownerID string) ([]*LedgerEntry, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, executionID string) ([]*Event, error)

	// Secrets
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
