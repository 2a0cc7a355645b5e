package actions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/autoforge/pkg/schema"
)

// stubAction is a minimal Action for registry tests.
type stubAction struct {
	kind  schema.ActionKind
	out   schema.Outcome
	panic bool
}

func (s *stubAction) Kind() schema.ActionKind { return s.kind }
func (s *stubAction) Description() string     { return "stub " + string(s.kind) }
func (s *stubAction) Execute(_ context.Context, _ map[string]any) schema.Outcome {
	if s.panic {
		panic("executor blew up")
	}
	return s.out
}

func TestRegistry_Register_Success(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubAction{kind: schema.ActionHTTPRequest}))
	assert.Equal(t, 1, reg.Count())
	assert.True(t, reg.Has(schema.ActionHTTPRequest))
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubAction{kind: schema.ActionSendEmail}))

	err := reg.Register(&stubAction{kind: schema.ActionSendEmail})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
}

func TestRegistry_Register_Nil(t *testing.T) {
	err := NewRegistry().Register(nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestRegistry_Register_UnknownKind(t *testing.T) {
	err := NewRegistry().Register(&stubAction{kind: "slack_message"})
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestRegistry_Get_NotFound(t *testing.T) {
	_, err := NewRegistry().Get(schema.ActionHTTPRequest)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestRegistry_Execute_UnknownKind(t *testing.T) {
	out := NewDefaultRegistry(Config{}).Execute(context.Background(), "http_requst", map[string]any{})
	assert.False(t, out.OK)
	assert.Equal(t, "Unknown action type: http_requst", out.Error)
}

func TestRegistry_Execute_RecoversPanic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubAction{kind: schema.ActionHTTPRequest, panic: true}))

	out := reg.Execute(context.Background(), schema.ActionHTTPRequest, nil)
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "executor blew up")
}

func TestRegistry_Execute_Dispatches(t *testing.T) {
	reg := NewRegistry()
	want := schema.OKOutcome(map[string]any{"x": 1})
	require.NoError(t, reg.Register(&stubAction{kind: schema.ActionTelegramMessage, out: want}))

	assert.Equal(t, want, reg.Execute(context.Background(), schema.ActionTelegramMessage, nil))
}

func TestRegistry_Default_ListSorted(t *testing.T) {
	infos := NewDefaultRegistry(Config{}).List()
	require.Len(t, infos, 3)
	assert.Equal(t, schema.ActionHTTPRequest, infos[0].Kind)
	assert.Equal(t, schema.ActionSendEmail, infos[1].Kind)
	assert.Equal(t, schema.ActionTelegramMessage, infos[2].Kind)
	for _, info := range infos {
		assert.NotEmpty(t, info.Description)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewDefaultRegistry(Config{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Has(schema.ActionSendEmail)
			_ = reg.List()
			_ = reg.Execute(context.Background(), schema.ActionTelegramMessage, map[string]any{})
		}()
	}
	wg.Wait()
}
