package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/autoforge/internal/actions"
	"github.com/rendis/autoforge/internal/expressions"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// --- Test helpers ---

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fixture struct {
	store *store.LibSQLStore
	owner *store.Owner
	chain *store.Chain
}

func newFixture(t *testing.T, balance, cost schema.Amount, defs ...schema.ActionDefinition) *fixture {
	t.Helper()
	s := newTestStore(t)
	ctx := context.Background()

	owner := &store.Owner{ID: uuid.New().String(), Email: uuid.New().String() + "@example.com", Balance: balance}
	require.NoError(t, s.CreateOwner(ctx, owner))

	chain := &store.Chain{
		ID:          uuid.New().String(),
		OwnerID:     owner.ID,
		Name:        "nightly",
		TriggerKind: schema.TriggerManual,
		Actions:     defs,
		Active:      true,
		Cost:        cost,
	}
	require.NoError(t, s.CreateChain(ctx, chain))
	return &fixture{store: s, owner: owner, chain: chain}
}

func (f *fixture) newExecution(t *testing.T, trigger map[string]any) *store.Execution {
	t.Helper()
	e := &store.Execution{ID: uuid.New().String(), ChainID: f.chain.ID, TriggerData: trigger}
	require.NoError(t, f.store.CreateExecution(context.Background(), e))
	return e
}

func (f *fixture) balance(t *testing.T) schema.Amount {
	t.Helper()
	o, err := f.store.GetOwner(context.Background(), f.owner.ID)
	require.NoError(t, err)
	return o.Balance
}

func (f *fixture) eventTypes(t *testing.T, executionID string) []string {
	t.Helper()
	events, err := f.store.GetEvents(context.Background(), executionID)
	require.NoError(t, err)
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

// stubExecutor returns canned outcomes per action kind and records every call.
type stubExecutor struct {
	mu       sync.Mutex
	outcomes map[schema.ActionKind]schema.Outcome
	calls    []map[string]any
	kinds    []schema.ActionKind
	run      func(ctx context.Context, config map[string]any) schema.Outcome
}

func (s *stubExecutor) Execute(ctx context.Context, kind schema.ActionKind, config map[string]any) schema.Outcome {
	s.mu.Lock()
	s.calls = append(s.calls, config)
	s.kinds = append(s.kinds, kind)
	run := s.run
	out, ok := s.outcomes[kind]
	s.mu.Unlock()
	if run != nil {
		return run(ctx, config)
	}
	if !ok {
		return schema.OKOutcome(map[string]any{"success": true})
	}
	return out
}

func (s *stubExecutor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func httpDef(url string) schema.ActionDefinition {
	return schema.ActionDefinition{Kind: schema.ActionHTTPRequest, Config: map[string]any{"url": url}}
}

func emailDef() schema.ActionDefinition {
	return schema.ActionDefinition{Kind: schema.ActionSendEmail, Config: map[string]any{"to": "a@example.com", "subject": "s", "body": "b"}}
}

func httpOutcome(status int) schema.Outcome {
	return schema.OKOutcome(map[string]any{"status_code": status, "response": "ok", "success": status < 400})
}

func newRunner(s store.Store, exec ActionExecutor) *Runner {
	return NewRunner(s, exec, expressions.NewInterpolator(nil), RunnerConfig{}, nil)
}

// --- Run: happy path and aggregation ---

func TestRun_AllActionsSucceed_Charges(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"), emailDef())
	exec := &stubExecutor{outcomes: map[schema.ActionKind]schema.Outcome{
		schema.ActionHTTPRequest: httpOutcome(200),
	}}
	rec := f.newExecution(t, map[string]any{"source": "test"})

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, out.Status)
	assert.True(t, out.Charged)
	assert.Equal(t, schema.Amount(10), out.Cost)
	assert.Empty(t, out.ErrorMessage)

	stored, err := f.store.GetExecution(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, stored.Status)
	require.NotNil(t, stored.Result)
	require.Len(t, stored.Result.Actions, 2)
	assert.Equal(t, schema.ActionHTTPRequest, stored.Result.Actions[0].ActionKind)
	assert.Equal(t, schema.ActionSendEmail, stored.Result.Actions[1].ActionKind)
	for i, a := range stored.Result.Actions {
		assert.Equal(t, i, a.Index)
		assert.True(t, a.Success)
	}
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.Charged)

	assert.Equal(t, schema.Amount(490), f.balance(t))
	ledger, err := f.store.ListLedger(context.Background(), f.owner.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, schema.Amount(-10), ledger[0].Amount)
	assert.Equal(t, rec.ID, ledger[0].ExecutionID)
	assert.Equal(t, "Execution of chain: nightly", ledger[0].Description)

	assert.Equal(t, []string{
		schema.EventExecutionStarted,
		schema.EventActionSucceeded,
		schema.EventActionSucceeded,
		schema.EventExecutionCharged,
		schema.EventExecutionSucceeded,
	}, f.eventTypes(t, rec.ID))
}

func TestRun_FailingActionDoesNotShortCircuit(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://ok"), httpDef("http://bad"), emailDef())
	exec := &stubExecutor{run: func(_ context.Context, config map[string]any) schema.Outcome {
		if config["url"] == "http://bad" {
			return httpOutcome(502)
		}
		return httpOutcome(200)
	}}
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	assert.Equal(t, MsgActionsFailed, out.ErrorMessage)
	assert.False(t, out.Charged)
	assert.Zero(t, out.Cost)
	assert.Equal(t, 3, exec.Calls())

	require.Len(t, out.Result.Actions, 3)
	assert.True(t, out.Result.Actions[0].Success)
	assert.False(t, out.Result.Actions[1].Success)
	assert.True(t, out.Result.Actions[2].Success)

	assert.Equal(t, schema.Amount(500), f.balance(t), "failed runs are never billed")
	assert.Contains(t, f.eventTypes(t, rec.ID), schema.EventActionFailed)
}

func TestRun_ErrorOutcomeFailsAction(t *testing.T) {
	f := newFixture(t, 500, 10, emailDef(), httpDef("http://a"))
	exec := &stubExecutor{outcomes: map[schema.ActionKind]schema.Outcome{
		schema.ActionSendEmail: schema.ErrorOutcome("SMTP host not configured"),
	}}
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	assert.Equal(t, "SMTP host not configured", out.Result.Actions[0].Outcome.Error)
	assert.Len(t, out.Result.Actions, 2)
}

func TestRun_UnknownActionKind(t *testing.T) {
	f := newFixture(t, 500, 10, schema.ActionDefinition{Kind: "slack_message"})
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, actions.NewRegistry()).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	require.Len(t, out.Result.Actions, 1)
	assert.Equal(t, "Unknown action type: slack_message", out.Result.Actions[0].Outcome.Error)
}

func TestRun_SuccessWhenOverridesStatus(t *testing.T) {
	def := httpDef("http://a")
	def.Config["success_when"] = "status_code == 404"
	f := newFixture(t, 500, 10, def)
	exec := &stubExecutor{outcomes: map[schema.ActionKind]schema.Outcome{
		schema.ActionHTTPRequest: httpOutcome(404),
	}}
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, out.Status)
}

func TestRun_SuccessWhenRejects2xx(t *testing.T) {
	def := httpDef("http://a")
	def.Config["success_when"] = `response contains "queued"`
	f := newFixture(t, 500, 10, def)
	exec := &stubExecutor{outcomes: map[schema.ActionKind]schema.Outcome{
		schema.ActionHTTPRequest: httpOutcome(200),
	}}
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
}

func TestRun_FloatStatusCode(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	exec := &stubExecutor{outcomes: map[schema.ActionKind]schema.Outcome{
		schema.ActionHTTPRequest: schema.OKOutcome(map[string]any{"status_code": float64(500)}),
	}}
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
}

// --- Run: interpolation ---

func TestRun_InterpolatesTriggerData(t *testing.T) {
	def := schema.ActionDefinition{Kind: schema.ActionSendEmail, Config: map[string]any{
		"to":      "${{trigger.user.email}}",
		"subject": "Run ${{execution.id}} of ${{chain.name}}",
		"body":    "b",
	}}
	f := newFixture(t, 500, 10, def)
	exec := &stubExecutor{}
	rec := f.newExecution(t, map[string]any{"user": map[string]any{"email": "dev@example.com"}})

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, out.Status)

	require.Equal(t, 1, exec.Calls())
	assert.Equal(t, "dev@example.com", exec.calls[0]["to"])
	assert.Equal(t, "Run "+rec.ID+" of nightly", exec.calls[0]["subject"])

	reloaded, err := f.store.GetChain(context.Background(), f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, "${{trigger.user.email}}", reloaded.Actions[0].Config["to"], "stored chain keeps its templates")
}

func TestRun_MissingReferenceIsActionFailure(t *testing.T) {
	def := schema.ActionDefinition{Kind: schema.ActionSendEmail, Config: map[string]any{
		"to": "${{trigger.nobody}}", "subject": "s", "body": "b",
	}}
	f := newFixture(t, 500, 10, def, httpDef("http://a"))
	exec := &stubExecutor{}
	rec := f.newExecution(t, map[string]any{})

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	require.Len(t, out.Result.Actions, 2)
	assert.Contains(t, out.Result.Actions[0].Outcome.Error, "trigger.nobody")
	assert.Equal(t, 1, exec.Calls(), "the unresolved action is not executed; the rest still run")
}

// --- Run: billing ---

func TestRun_InsufficientBalance(t *testing.T) {
	f := newFixture(t, 5, 10, httpDef("http://a"))
	exec := &stubExecutor{}
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, out.Status)
	assert.False(t, out.Charged)
	assert.Zero(t, out.Cost)
	assert.Equal(t, MsgInsufficientFunds, out.ErrorMessage)

	stored, err := f.store.GetExecution(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, stored.Status)
	assert.Equal(t, MsgInsufficientFunds, stored.ErrorMessage)
	assert.False(t, stored.Charged)

	assert.Equal(t, schema.Amount(5), f.balance(t))
	ledger, err := f.store.ListLedger(context.Background(), f.owner.ID)
	require.NoError(t, err)
	assert.Empty(t, ledger)
	assert.Contains(t, f.eventTypes(t, rec.ID), schema.EventChargeSkipped)
}

func TestRun_ZeroCostChargesNothing(t *testing.T) {
	f := newFixture(t, 0, 0, httpDef("http://a"))
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, &stubExecutor{}).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, out.Status)
	assert.False(t, out.Charged)
	assert.Empty(t, out.ErrorMessage)
}

func TestRun_ConcurrentRunsNeverOverdraw(t *testing.T) {
	f := newFixture(t, 30, 10, httpDef("http://a"))
	runner := newRunner(f.store, &stubExecutor{})

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = f.newExecution(t, nil).ID
	}

	var wg sync.WaitGroup
	var charged int64
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			out, err := runner.Run(context.Background(), id)
			assert.NoError(t, err)
			if out != nil && out.Charged {
				atomic.AddInt64(&charged, 1)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int64(3), charged)
	assert.Equal(t, schema.Amount(0), f.balance(t))
}

// billingFailStore fails every debit.
type billingFailStore struct {
	store.Store
}

func (b *billingFailStore) DebitAndLedger(context.Context, string, schema.Amount, string, string) (bool, error) {
	return false, errors.New("ledger unavailable")
}

func TestRun_BillingErrorOnlyAnnotates(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)

	out, err := newRunner(&billingFailStore{Store: f.store}, &stubExecutor{}).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, out.Status)
	assert.False(t, out.Charged)
	assert.Equal(t, MsgBillingUnavailable+"ledger unavailable", out.ErrorMessage)
	assert.Equal(t, schema.Amount(500), f.balance(t))
}

// slowCommitStore commits the debit, then holds the run until its deadline passes.
type slowCommitStore struct {
	store.Store
	deadline <-chan struct{}
}

func (s *slowCommitStore) DebitAndLedger(ctx context.Context, ownerID string, amount schema.Amount, description, executionID string) (bool, error) {
	ok, err := s.Store.DebitAndLedger(ctx, ownerID, amount, description, executionID)
	<-s.deadline
	return ok, err
}

func TestRun_DeadlineAfterDebitStillSucceeds(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s := &slowCommitStore{Store: f.store, deadline: ctx.Done()}
	out, err := newRunner(s, &stubExecutor{}).Run(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, out.Status)
	assert.True(t, out.Charged)

	stored, err := f.store.GetExecution(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusSuccess, stored.Status)
	assert.True(t, stored.Charged)
	assert.Empty(t, stored.ErrorMessage)
	assert.Equal(t, schema.Amount(490), f.balance(t))
	assert.Contains(t, f.eventTypes(t, rec.ID), schema.EventExecutionCharged)
	assert.Contains(t, f.eventTypes(t, rec.ID), schema.EventExecutionSucceeded)
}

// --- Run: pre-checks ---

func TestRun_ExecutionNotFound(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	out, err := newRunner(f.store, &stubExecutor{}).Run(context.Background(), "missing")
	assert.Nil(t, out)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRun_NotPendingIsConflict(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)
	runner := newRunner(f.store, &stubExecutor{})

	_, err := runner.Run(context.Background(), rec.ID)
	require.NoError(t, err)

	out, err := runner.Run(context.Background(), rec.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
	assert.Equal(t, schema.ExecutionStatusSuccess, out.Status)
	assert.Equal(t, schema.Amount(490), f.balance(t), "a second delivery must not bill again")
}

func TestRun_InactiveChain(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)
	inactive := false
	require.NoError(t, f.store.UpdateChain(context.Background(), f.chain.ID, store.ChainUpdate{Active: &inactive}))

	exec := &stubExecutor{}
	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	assert.Equal(t, MsgChainInactive, out.ErrorMessage)
	assert.Nil(t, out.StartedAt)
	assert.NotNil(t, out.CompletedAt)
	assert.Zero(t, exec.Calls())
	assert.Equal(t, []string{schema.EventExecutionFailed}, f.eventTypes(t, rec.ID))
}

// missingChainStore reports every chain as absent.
type missingChainStore struct {
	store.Store
}

func (m *missingChainStore) GetChain(_ context.Context, id string) (*store.Chain, error) {
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "chain %s not found", id)
}

func TestRun_MissingChain(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)

	exec := &stubExecutor{}
	out, err := newRunner(&missingChainStore{Store: f.store}, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	assert.Equal(t, MsgChainNotFound, out.ErrorMessage)
	assert.Zero(t, exec.Calls())
}

// lostClaimStore simulates another worker claiming the record first.
type lostClaimStore struct {
	store.Store
}

func (l *lostClaimStore) ClaimExecution(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func TestRun_LostClaim(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)

	exec := &stubExecutor{}
	out, err := newRunner(&lostClaimStore{Store: f.store}, exec).Run(context.Background(), rec.ID)
	assert.Nil(t, out)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
	assert.Zero(t, exec.Calls())

	stored, err := f.store.GetExecution(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusPending, stored.Status, "losing a claim leaves the record alone")
}

func TestRun_DuplicateDeliveryRunsOnce(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)
	exec := &stubExecutor{}
	runner := newRunner(f.store, exec)

	var wg sync.WaitGroup
	var ok, conflicts int64
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := runner.Run(context.Background(), rec.ID)
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case schema.IsCode(err, schema.ErrCodeConflict):
				atomic.AddInt64(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), ok)
	assert.Equal(t, int64(3), conflicts)
	assert.Equal(t, 1, exec.Calls())
}

// --- Run: orchestration faults ---

func TestRun_TimeoutTerminalizes(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://slow"), emailDef())
	exec := &stubExecutor{run: func(ctx context.Context, _ map[string]any) schema.Outcome {
		<-ctx.Done()
		return schema.ErrorOutcome("HTTP request failed: %s", ctx.Err())
	}}
	rec := f.newExecution(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := newRunner(f.store, exec).Run(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	assert.Equal(t, MsgRunTimeout, out.ErrorMessage)
	assert.Equal(t, 1, exec.Calls(), "no further actions start once the ceiling is hit")

	stored, err := f.store.GetExecution(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.Result)
	assert.Len(t, stored.Result.Actions, 1)
	assert.Equal(t, schema.Amount(500), f.balance(t))
}

func TestRun_PanicTerminalizes(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	exec := &stubExecutor{run: func(context.Context, map[string]any) schema.Outcome {
		panic("executor bug")
	}}
	rec := f.newExecution(t, nil)

	out, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	assert.Equal(t, "orchestration panic: executor bug", out.ErrorMessage)

	stored, err := f.store.GetExecution(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, stored.Status)
}

// saveFailStore fails the first non-terminal save, as a dropped connection would.
type saveFailStore struct {
	store.Store
	failed atomic.Bool
}

func (s *saveFailStore) SaveExecution(ctx context.Context, exec *store.Execution) error {
	if exec.Status == schema.ExecutionStatusRunning && s.failed.CompareAndSwap(false, true) {
		return errors.New("disk I/O error")
	}
	return s.Store.SaveExecution(ctx, exec)
}

func TestRun_StoreFaultTerminalizes(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)

	out, err := newRunner(&saveFailStore{Store: f.store}, &stubExecutor{}).Run(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	assert.Equal(t, "persist results: disk I/O error", out.ErrorMessage)

	stored, err := f.store.GetExecution(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, schema.Amount(500), f.balance(t))
}

// --- Interrupt ---

func TestInterrupt(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	rec := f.newExecution(t, nil)
	ok, err := f.store.ClaimExecution(context.Background(), rec.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	running, err := f.store.GetExecution(context.Background(), rec.ID)
	require.NoError(t, err)

	out, err := newRunner(f.store, &stubExecutor{}).Interrupt(context.Background(), running)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionStatusFailed, out.Status)
	assert.Equal(t, MsgRunInterrupted, out.ErrorMessage)
	assert.Equal(t, []string{schema.EventExecutionInterrupted, schema.EventExecutionFailed}, f.eventTypes(t, rec.ID))

	_, err = newRunner(f.store, &stubExecutor{}).Interrupt(context.Background(), out)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestRun_EventPayloads(t *testing.T) {
	f := newFixture(t, 500, 10, httpDef("http://a"))
	exec := &stubExecutor{outcomes: map[schema.ActionKind]schema.Outcome{
		schema.ActionHTTPRequest: httpOutcome(500),
	}}
	rec := f.newExecution(t, nil)

	_, err := newRunner(f.store, exec).Run(context.Background(), rec.ID)
	require.NoError(t, err)

	events, err := f.store.GetEvents(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)

	actionEvent := events[1]
	assert.Equal(t, schema.EventActionFailed, actionEvent.Type)
	require.NotNil(t, actionEvent.ActionIndex)
	assert.Equal(t, 0, *actionEvent.ActionIndex)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[2].Payload, &payload))
	assert.Equal(t, MsgActionsFailed, payload["error"])
}
