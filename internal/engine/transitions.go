package engine

import (
	"time"

	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// Messages written to execution records by the engine.
const (
	MsgChainNotFound      = "chain not found"
	MsgChainInactive      = "chain is not active"
	MsgActionsFailed      = "one or more actions failed"
	MsgInsufficientFunds  = "insufficient balance to charge for execution"
	MsgRunTimeout         = "execution exceeded time limit"
	MsgRunInterrupted     = "execution interrupted"
	MsgBillingUnavailable = "billing failed: "
)

// The functions below are the only way the engine changes an execution
// record. Each takes the old record by value with an explicit timestamp and
// returns the new record; none touch the store.

// Start moves a pending record to running.
func Start(rec store.Execution, at time.Time) (store.Execution, error) {
	if err := checkTransition(rec, schema.ExecutionStatusRunning); err != nil {
		return rec, err
	}
	rec.Status = schema.ExecutionStatusRunning
	rec.StartedAt = timePtr(at)
	rec.Result = &schema.ExecutionResult{Actions: []schema.ActionResult{}}
	return rec, nil
}

// Reject moves a pending record straight to failed without running it.
func Reject(rec store.Execution, message string, at time.Time) (store.Execution, error) {
	if rec.Status != schema.ExecutionStatusPending {
		return rec, invalidTransition(rec, schema.ExecutionStatusFailed)
	}
	rec.Status = schema.ExecutionStatusFailed
	rec.ErrorMessage = message
	rec.CompletedAt = timePtr(at)
	return rec, nil
}

// RecordResults attaches the per-action results of a running record and
// stamps completion. The status is left for Complete to decide.
func RecordResults(rec store.Execution, results []schema.ActionResult, at time.Time) (store.Execution, error) {
	if rec.Status != schema.ExecutionStatusRunning {
		return rec, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cannot record results on a %s execution", rec.Status).WithExecution(rec.ID)
	}
	actions := make([]schema.ActionResult, len(results))
	copy(actions, results)
	rec.Result = &schema.ExecutionResult{Actions: actions}
	rec.CompletedAt = timePtr(at)
	return rec, nil
}

// Settle applies a billing outcome to a record whose actions all succeeded.
// A failed charge leaves charged false and annotates the record.
func Settle(rec store.Execution, charge ChargeResult) store.Execution {
	switch {
	case charge.Charged:
		rec.Cost = charge.Amount
		rec.Charged = true
	case charge.Reason != "":
		rec.ErrorMessage = charge.Reason
	}
	return rec
}

// Complete moves a running record with results to success when every action
// succeeded and to failed otherwise.
func Complete(rec store.Execution) (store.Execution, error) {
	if rec.Result == nil {
		return rec, schema.NewError(schema.ErrCodeInvalidTransition, "cannot complete an execution without results").
			WithExecution(rec.ID)
	}
	to := schema.ExecutionStatusSuccess
	if !rec.Result.AllSucceeded() {
		to = schema.ExecutionStatusFailed
	}
	if err := checkTransition(rec, to); err != nil {
		return rec, err
	}
	rec.Status = to
	if to == schema.ExecutionStatusFailed {
		rec.ErrorMessage = MsgActionsFailed
	}
	return rec, nil
}

// Fault terminalizes a non-terminal record as failed with the fault's message.
// Results gathered so far are kept.
func Fault(rec store.Execution, message string, at time.Time) (store.Execution, error) {
	if err := checkTransition(rec, schema.ExecutionStatusFailed); err != nil {
		return rec, err
	}
	rec.Status = schema.ExecutionStatusFailed
	rec.ErrorMessage = message
	rec.CompletedAt = timePtr(at)
	return rec, nil
}

func checkTransition(rec store.Execution, to schema.ExecutionStatus) error {
	if !CanTransition(rec.Status, to) {
		return invalidTransition(rec, to)
	}
	return nil
}

func invalidTransition(rec store.Execution, to schema.ExecutionStatus) error {
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid execution transition: %s -> %s", rec.Status, to).
		WithExecution(rec.ID).
		WithDetails(map[string]any{"from": string(rec.Status), "to": string(to)})
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
