package engine

import (
	"context"

	"github.com/rendis/autoforge/pkg/schema"
)

// Ledger is the atomic debit the biller needs from the store.
type Ledger interface {
	DebitAndLedger(ctx context.Context, ownerID string, amount schema.Amount, description, executionID string) (bool, error)
}

// ChargeResult reports what a charge did. Reason is set when nothing was charged
// for a reason the execution record should carry.
type ChargeResult struct {
	Charged bool          `json:"charged"`
	Amount  schema.Amount `json:"amount,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// Biller debits owners for successful executions.
type Biller struct {
	ledger Ledger
}

// NewBiller creates a Biller over the given ledger.
func NewBiller(ledger Ledger) *Biller {
	return &Biller{ledger: ledger}
}

// Charge debits amount from the owner and links the ledger entry to the execution.
// A zero amount charges nothing and is not an error. Insufficient balance returns
// INSUFFICIENT_FUNDS with the result's Reason set; balance and ledger are untouched.
func (b *Biller) Charge(ctx context.Context, ownerID string, amount schema.Amount, executionID, description string) (ChargeResult, error) {
	if amount <= 0 {
		return ChargeResult{}, nil
	}
	ok, err := b.ledger.DebitAndLedger(ctx, ownerID, amount, description, executionID)
	if err != nil {
		return ChargeResult{}, err
	}
	if !ok {
		return ChargeResult{Reason: MsgInsufficientFunds},
			schema.NewErrorf(schema.ErrCodeInsufficientFunds, "owner %s cannot cover %s", ownerID, amount).
				WithExecution(executionID)
	}
	return ChargeResult{Charged: true, Amount: amount}, nil
}
