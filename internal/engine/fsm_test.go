package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// mockAppender records appended events for assertions.
type mockAppender struct {
	mu     sync.Mutex
	events []*store.Event
}

func (m *mockAppender) AppendEvent(_ context.Context, event *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockAppender) Events() []*store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*store.Event, len(m.events))
	copy(cp, m.events)
	return cp
}

// failAppender always returns an error.
type failAppender struct{}

func (f *failAppender) AppendEvent(_ context.Context, _ *store.Event) error {
	return errors.New("store unavailable")
}

func TestExecutionFSM_ValidTransitions(t *testing.T) {
	app := &mockAppender{}
	fsm := NewExecutionFSM(app)
	ctx := context.Background()

	require.NoError(t, fsm.Transition(ctx, "exec-1", schema.ExecutionStatusPending, schema.ExecutionStatusRunning, nil))
	require.NoError(t, fsm.Transition(ctx, "exec-1", schema.ExecutionStatusRunning, schema.ExecutionStatusSuccess,
		map[string]any{"charged": true}))
	require.NoError(t, fsm.Transition(ctx, "exec-2", schema.ExecutionStatusPending, schema.ExecutionStatusFailed,
		map[string]any{"error": MsgChainInactive}))

	events := app.Events()
	require.Len(t, events, 3)
	assert.Equal(t, schema.EventExecutionStarted, events[0].Type)
	assert.Nil(t, events[0].Payload)
	assert.Equal(t, schema.EventExecutionSucceeded, events[1].Type)
	assert.Equal(t, schema.EventExecutionFailed, events[2].Type)
	assert.Equal(t, "exec-2", events[2].ExecutionID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[2].Payload, &payload))
	assert.Equal(t, MsgChainInactive, payload["error"])
}

func TestExecutionFSM_InvalidTransitions(t *testing.T) {
	app := &mockAppender{}
	fsm := NewExecutionFSM(app)
	ctx := context.Background()

	cases := []struct{ from, to schema.ExecutionStatus }{
		{schema.ExecutionStatusPending, schema.ExecutionStatusSuccess},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusPending},
		{schema.ExecutionStatusSuccess, schema.ExecutionStatusRunning},
		{schema.ExecutionStatusSuccess, schema.ExecutionStatusFailed},
		{schema.ExecutionStatusFailed, schema.ExecutionStatusPending},
		{schema.ExecutionStatusFailed, schema.ExecutionStatusSuccess},
	}
	for _, tc := range cases {
		err := fsm.Transition(ctx, "exec-1", tc.from, tc.to, nil)
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
	}
	assert.Empty(t, app.Events(), "rejected transitions must not emit events")
}

func TestExecutionFSM_TerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []schema.ExecutionStatus{schema.ExecutionStatusSuccess, schema.ExecutionStatusFailed} {
		for _, to := range []schema.ExecutionStatus{
			schema.ExecutionStatusPending, schema.ExecutionStatusRunning,
			schema.ExecutionStatusSuccess, schema.ExecutionStatusFailed,
		} {
			assert.False(t, CanTransition(s, to), "%s -> %s", s, to)
		}
	}
}

func TestExecutionFSM_Hooks(t *testing.T) {
	app := &mockAppender{}
	fsm := NewExecutionFSM(app)
	ctx := context.Background()

	var calls []string
	fsm.OnBefore(schema.ExecutionStatusPending, schema.ExecutionStatusRunning, func(from, to schema.ExecutionStatus) error {
		calls = append(calls, "before:"+string(from)+"->"+string(to))
		return nil
	})
	fsm.OnAfter(schema.ExecutionStatusPending, schema.ExecutionStatusRunning, func(from, to schema.ExecutionStatus) error {
		calls = append(calls, "after:"+string(from)+"->"+string(to))
		return nil
	})

	require.NoError(t, fsm.Transition(ctx, "exec-1", schema.ExecutionStatusPending, schema.ExecutionStatusRunning, nil))
	assert.Equal(t, []string{"before:pending->running", "after:pending->running"}, calls)
}

func TestExecutionFSM_BeforeHookAborts(t *testing.T) {
	app := &mockAppender{}
	fsm := NewExecutionFSM(app)

	fsm.OnBefore(schema.ExecutionStatusRunning, schema.ExecutionStatusSuccess, func(_, _ schema.ExecutionStatus) error {
		return errors.New("vetoed")
	})

	err := fsm.Transition(context.Background(), "exec-1", schema.ExecutionStatusRunning, schema.ExecutionStatusSuccess, nil)
	require.EqualError(t, err, "vetoed")
	assert.Empty(t, app.Events())
}

func TestExecutionFSM_AppenderFailure(t *testing.T) {
	fsm := NewExecutionFSM(&failAppender{})
	err := fsm.Transition(context.Background(), "exec-1", schema.ExecutionStatusPending, schema.ExecutionStatusRunning, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}
