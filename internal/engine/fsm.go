package engine

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to schema.ExecutionStatus) error

// EventAppender is satisfied by the Store; used by the FSM to emit events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// ValidExecutionTransitions defines the allowed state transitions for execution records.
// pending -> failed covers records rejected before running (missing or inactive chain).
var ValidExecutionTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.ExecutionStatusPending: {schema.ExecutionStatusRunning, schema.ExecutionStatusFailed},
	schema.ExecutionStatusRunning: {schema.ExecutionStatusSuccess, schema.ExecutionStatusFailed},
	schema.ExecutionStatusSuccess: {},
	schema.ExecutionStatusFailed:  {},
}

type hookKey struct {
	from, to schema.ExecutionStatus
}

// ExecutionFSM validates execution lifecycle transitions and records them in the event log.
type ExecutionFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewExecutionFSM creates an ExecutionFSM that emits events via the given appender.
func NewExecutionFSM(appender EventAppender) *ExecutionFSM {
	return &ExecutionFSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition. A hook error aborts the transition.
func (f *ExecutionFSM) OnBefore(from, to schema.ExecutionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition's event has been recorded.
func (f *ExecutionFSM) OnAfter(from, to schema.ExecutionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates from -> to and emits the matching event with payload.
// Persisting the record is the caller's job.
func (f *ExecutionFSM) Transition(ctx context.Context, executionID string, from, to schema.ExecutionStatus, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !CanTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid execution transition: %s -> %s", from, to).
			WithExecution(executionID).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if eventType := executionEventType(to); eventType != "" {
		if err := emit(ctx, f.appender, executionID, nil, eventType, payload); err != nil {
			return err
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to schema.ExecutionStatus) bool {
	allowed, ok := ValidExecutionTransitions[from]
	return ok && slices.Contains(allowed, to)
}

func executionEventType(to schema.ExecutionStatus) string {
	switch to {
	case schema.ExecutionStatusRunning:
		return schema.EventExecutionStarted
	case schema.ExecutionStatusSuccess:
		return schema.EventExecutionSucceeded
	case schema.ExecutionStatusFailed:
		return schema.EventExecutionFailed
	default:
		return ""
	}
}

// emit appends one event. A nil appender drops it.
func emit(ctx context.Context, appender EventAppender, executionID string, actionIndex *int, eventType string, payload map[string]any) error {
	if appender == nil {
		return nil
	}
	var raw json.RawMessage
	if len(payload) > 0 {
		b, err := json.Marshal(payload)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "encode %s event: %s", eventType, err.Error()).WithCause(err)
		}
		raw = b
	}
	event := &store.Event{
		ExecutionID: executionID,
		ActionIndex: actionIndex,
		Type:        eventType,
		Payload:     raw,
	}
	if err := appender.AppendEvent(ctx, event); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "emit %s event: %s", eventType, err.Error()).
			WithExecution(executionID).WithCause(err)
	}
	return nil
}
