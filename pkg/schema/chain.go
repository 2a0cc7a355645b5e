package schema

import "fmt"

// TriggerKind enumerates how an execution of a chain is initiated.
type TriggerKind string

const (
	TriggerManual   TriggerKind = "manual"
	TriggerWebhook  TriggerKind = "webhook"
	TriggerSchedule TriggerKind = "schedule"
)

// Valid reports whether k is one of the supported trigger kinds.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerManual, TriggerWebhook, TriggerSchedule:
		return true
	}
	return false
}

// ActionKind is the closed set of action kinds a chain may contain.
// Values outside the set are carried verbatim so the engine can report them
// as an unrecognized kind instead of silently dropping them.
type ActionKind string

const (
	ActionHTTPRequest     ActionKind = "http_request"
	ActionSendEmail       ActionKind = "send_email"
	ActionTelegramMessage ActionKind = "telegram_message"
)

// KnownActionKinds lists the supported action kinds in declaration order.
var KnownActionKinds = []ActionKind{ActionHTTPRequest, ActionSendEmail, ActionTelegramMessage}

// Known reports whether k is a supported action kind.
func (k ActionKind) Known() bool {
	for _, known := range KnownActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ActionDefinition is one entry of a chain's ordered action list.
type ActionDefinition struct {
	Kind   ActionKind     `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Trigger config keys.
const (
	TriggerConfigSecret          = "secret"
	TriggerConfigIntervalMinutes = "interval_minutes"
)

// Amount is a monetary value in minor units (cents).
type Amount int64

// DefaultChainCost is the per-run cost applied when a chain is defined without one.
const DefaultChainCost Amount = 10

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
