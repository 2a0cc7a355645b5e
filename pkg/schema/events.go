package schema

// Event type constants for the execution audit log.
const (
	EventExecutionStarted     = "execution_started"
	EventExecutionSucceeded   = "execution_succeeded"
	EventExecutionFailed      = "execution_failed"
	EventExecutionInterrupted = "execution_interrupted"

	EventActionSucceeded = "action_succeeded"
	EventActionFailed    = "action_failed"

	EventExecutionCharged = "execution_charged"
	EventChargeSkipped    = "charge_skipped"
)

// ExecutionStatus represents the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}
