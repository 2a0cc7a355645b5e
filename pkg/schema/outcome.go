package schema

import "fmt"

// Outcome is the result of a single action invocation. Executors never
// return a Go error past their boundary; every failure is an Outcome with OK false.
type Outcome struct {
	OK      bool           `json:"ok"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// OKOutcome builds a successful outcome.
func OKOutcome(details map[string]any) Outcome {
	return Outcome{OK: true, Details: details}
}

// ErrorOutcome builds a failed outcome with a formatted message.
func ErrorOutcome(format string, args ...any) Outcome {
	return Outcome{OK: false, Error: fmt.Sprintf(format, args...)}
}

// ActionResult is one entry of an execution's result list. Index matches the
// position of the action in the chain's action list.
type ActionResult struct {
	Index      int        `json:"index"`
	ActionKind ActionKind `json:"action_type"`
	Outcome    Outcome    `json:"result"`
	Success    bool       `json:"success"`
}

// ExecutionResult is the accumulated per-action result of a run.
type ExecutionResult struct {
	Actions []ActionResult `json:"actions"`
}

// AllSucceeded reports whether every recorded action succeeded.
func (r *ExecutionResult) AllSucceeded() bool {
	if r == nil {
		return false
	}
	for _, a := range r.Actions {
		if !a.Success {
			return false
		}
	}
	return true
}
