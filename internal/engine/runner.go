package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rendis/autoforge/internal/expressions"
	"github.com/rendis/autoforge/internal/logging"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

// ActionExecutor runs one action. Satisfied by *actions.Registry.
type ActionExecutor interface {
	Execute(ctx context.Context, kind schema.ActionKind, config map[string]any) schema.Outcome
}

// ConfigResolver expands references in an action config. Satisfied by *expressions.Interpolator.
type ConfigResolver interface {
	ResolveConfig(ctx context.Context, config map[string]any, scope *expressions.Scope) (map[string]any, error)
}

// RunnerConfig holds runner settings.
type RunnerConfig struct {
	// ChargeDescription formats the ledger description; it receives the chain name.
	ChargeDescription string
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

const defaultChargeDescription = "Execution of chain: %s"

// Runner drives one execution record through its lifecycle: claim, run every
// action in order, bill on full success, persist the terminal state.
type Runner struct {
	store    store.Store
	actions  ActionExecutor
	resolver ConfigResolver
	rules    *expressions.ExprEngine
	biller   *Biller
	fsm      *ExecutionFSM
	cfg      RunnerConfig
	logger   *slog.Logger
}

// NewRunner creates a Runner. resolver may be nil, in which case action
// configs are passed to executors as stored.
func NewRunner(s store.Store, exec ActionExecutor, resolver ConfigResolver, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.ChargeDescription == "" {
		cfg.ChargeDescription = defaultChargeDescription
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    s,
		actions:  exec,
		resolver: resolver,
		rules:    expressions.NewExprEngine(),
		biller:   NewBiller(s),
		fsm:      NewExecutionFSM(s),
		cfg:      cfg,
		logger:   logger,
	}
}

// FSM exposes the runner's state machine so callers can register hooks.
func (r *Runner) FSM() *ExecutionFSM {
	return r.fsm
}

// Run executes the pending record with the given ID.
//
// A missing record returns NOT_FOUND and a record that is no longer pending
// returns CONFLICT; neither is mutated. Every other outcome, including
// orchestration faults and ctx expiring, leaves the record terminal and is
// returned without error.
func (r *Runner) Run(ctx context.Context, executionID string) (out *store.Execution, err error) {
	rec, err := r.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if rec.Status != schema.ExecutionStatusPending {
		return rec, schema.NewErrorf(schema.ErrCodeConflict, "execution is %s, not pending", rec.Status).
			WithExecution(rec.ID)
	}

	ctx = logging.WithChainID(logging.WithExecutionID(ctx, rec.ID), rec.ChainID)
	cur := *rec

	defer func() {
		if p := recover(); p != nil {
			out, err = r.abort(ctx, &cur, fmt.Sprintf("orchestration panic: %v", p))
		}
	}()

	done, err := r.drive(ctx, &cur)
	if err == nil {
		return done, nil
	}
	if schema.IsCode(err, schema.ErrCodeConflict) {
		return nil, err
	}
	return r.abort(ctx, &cur, faultMessage(err))
}

// drive runs the lifecycle, keeping cur in step with what has been persisted.
func (r *Runner) drive(ctx context.Context, cur *store.Execution) (*store.Execution, error) {
	chain, err := r.store.GetChain(ctx, cur.ChainID)
	switch {
	case schema.IsCode(err, schema.ErrCodeNotFound):
		return r.reject(ctx, cur, MsgChainNotFound)
	case err != nil:
		return nil, fmt.Errorf("load chain: %w", err)
	case !chain.Active:
		return r.reject(ctx, cur, MsgChainInactive)
	}
	ctx = logging.WithOwnerID(ctx, chain.OwnerID)

	started, err := Start(*cur, r.cfg.Now())
	if err != nil {
		return nil, err
	}
	claimed, err := r.store.ClaimExecution(ctx, cur.ID, *started.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("claim execution: %w", err)
	}
	if !claimed {
		return nil, schema.NewError(schema.ErrCodeConflict, "execution already claimed").WithExecution(cur.ID)
	}
	*cur = started
	if err := r.fsm.Transition(ctx, cur.ID, schema.ExecutionStatusPending, schema.ExecutionStatusRunning,
		map[string]any{"actions": len(chain.Actions)}); err != nil {
		return nil, err
	}
	logging.LogWith(ctx, r.logger).Info("execution started", "actions", len(chain.Actions))

	r.runActions(ctx, chain, cur)
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeTimeout, MsgRunTimeout).WithExecution(cur.ID).WithCause(err)
	}
	// Every action finished inside the deadline, so the outcome is decided.
	// Recording it, billing and the terminal save must not be cut short once
	// the debit may have committed.
	ctx = context.WithoutCancel(ctx)

	recorded, err := RecordResults(*cur, cur.Result.Actions, r.cfg.Now())
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveExecution(ctx, &recorded); err != nil {
		return nil, fmt.Errorf("persist results: %w", err)
	}
	*cur = recorded

	if cur.Result.AllSucceeded() {
		*cur = Settle(*cur, r.charge(ctx, chain, cur.ID))
	}

	done, err := Complete(*cur)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveExecution(ctx, &done); err != nil {
		return nil, fmt.Errorf("persist execution: %w", err)
	}
	*cur = done

	payload := map[string]any{"charged": done.Charged}
	if done.ErrorMessage != "" {
		payload["error"] = done.ErrorMessage
	}
	if err := r.fsm.Transition(ctx, done.ID, schema.ExecutionStatusRunning, done.Status, payload); err != nil {
		logging.LogWith(ctx, r.logger).Warn("record completion event", "error", err)
	}
	logging.LogWith(ctx, r.logger).Info("execution finished",
		"status", string(done.Status), "charged", done.Charged, "cost", int64(done.Cost))
	return &done, nil
}

// runActions invokes every action in declared order, appending each result to
// cur. A failing action never stops the loop; only ctx expiring does.
func (r *Runner) runActions(ctx context.Context, chain *store.Chain, cur *store.Execution) {
	scope := expressions.NewScope(chain.ID, chain.Name, chain.OwnerID, cur.ID, cur.TriggerData)
	for i, def := range chain.Actions {
		if ctx.Err() != nil {
			return
		}
		res := r.runAction(ctx, i, def, scope)
		cur.Result.Actions = append(cur.Result.Actions, res)

		eventType := schema.EventActionSucceeded
		payload := map[string]any{"action_type": string(def.Kind)}
		if !res.Success {
			eventType = schema.EventActionFailed
			if res.Outcome.Error != "" {
				payload["error"] = res.Outcome.Error
			}
		}
		idx := i
		if err := emit(ctx, r.store, cur.ID, &idx, eventType, payload); err != nil {
			logging.LogWith(ctx, r.logger).Warn("record action event", "index", i, "error", err)
		}
	}
}

func (r *Runner) runAction(ctx context.Context, index int, def schema.ActionDefinition, scope *expressions.Scope) schema.ActionResult {
	res := schema.ActionResult{Index: index, ActionKind: def.Kind}

	config := def.Config
	if r.resolver != nil && expressions.HasInterpolation(config) {
		resolved, err := r.resolver.ResolveConfig(ctx, config, scope)
		if err != nil {
			res.Outcome = schema.ErrorOutcome("%s", faultMessage(err))
			return res
		}
		config = resolved
	}

	res.Outcome = r.actions.Execute(ctx, def.Kind, config)
	res.Success = r.succeeded(ctx, def.Kind, config, res.Outcome)
	if !res.Success {
		logging.LogWith(ctx, r.logger).Info("action failed",
			"index", index, "action_type", string(def.Kind), "error", res.Outcome.Error)
	}
	return res
}

// succeeded decides chain-level success for one outcome. HTTP calls succeed
// below status 400 unless the config carries a success_when rule.
func (r *Runner) succeeded(ctx context.Context, kind schema.ActionKind, config map[string]any, out schema.Outcome) bool {
	if !out.OK {
		return false
	}
	if kind != schema.ActionHTTPRequest {
		return true
	}
	code, hasCode := statusCode(out.Details["status_code"])
	if rule, ok := config["success_when"].(string); ok && rule != "" {
		pass, err := r.rules.EvaluateBool(ctx, rule, map[string]any{
			"status_code": code,
			"response":    out.Details["response"],
		})
		if err != nil {
			logging.LogWith(ctx, r.logger).Warn("evaluate success_when", "rule", rule, "error", err)
			return false
		}
		return pass
	}
	return !hasCode || code < 400
}

// charge bills the owner for a fully successful run. Billing problems never fail the run.
func (r *Runner) charge(ctx context.Context, chain *store.Chain, executionID string) ChargeResult {
	log := logging.LogWith(ctx, r.logger)
	res, err := r.biller.Charge(ctx, chain.OwnerID, chain.Cost, executionID,
		fmt.Sprintf(r.cfg.ChargeDescription, chain.Name))

	var eventType string
	payload := map[string]any{"amount": int64(chain.Cost)}
	switch {
	case err == nil && res.Charged:
		eventType = schema.EventExecutionCharged
		log.Info("execution charged", "amount", chain.Cost.String())
	case err == nil:
		eventType = schema.EventChargeSkipped
		payload["reason"] = "no cost"
	case schema.IsCode(err, schema.ErrCodeInsufficientFunds):
		eventType = schema.EventChargeSkipped
		payload["reason"] = res.Reason
		log.Info("charge skipped", "reason", res.Reason)
	default:
		res = ChargeResult{Reason: MsgBillingUnavailable + faultMessage(err)}
		eventType = schema.EventChargeSkipped
		payload["reason"] = res.Reason
		log.Error("charge execution", "error", err)
	}

	if err := emit(ctx, r.store, executionID, nil, eventType, payload); err != nil {
		log.Warn("record billing event", "error", err)
	}
	return res
}

// reject fails a pending record that cannot run.
func (r *Runner) reject(ctx context.Context, cur *store.Execution, message string) (*store.Execution, error) {
	failed, err := Reject(*cur, message, r.cfg.Now())
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveExecution(ctx, &failed); err != nil {
		return nil, fmt.Errorf("persist rejection: %w", err)
	}
	*cur = failed
	if err := r.fsm.Transition(ctx, failed.ID, schema.ExecutionStatusPending, schema.ExecutionStatusFailed,
		map[string]any{"error": message}); err != nil {
		logging.LogWith(ctx, r.logger).Warn("record rejection event", "error", err)
	}
	logging.LogWith(ctx, r.logger).Info("execution rejected", "reason", message)
	return &failed, nil
}

// abort terminalizes cur as failed after an orchestration fault. It writes
// even when ctx is done so a timed-out run is never left running.
func (r *Runner) abort(ctx context.Context, cur *store.Execution, message string) (*store.Execution, error) {
	ctx = context.WithoutCancel(ctx)
	log := logging.LogWith(ctx, r.logger)

	from := cur.Status
	failed, err := Fault(*cur, message, r.cfg.Now())
	if err != nil {
		log.Error("execution fault after terminal state", "fault", message, "status", string(from))
		return cur, err
	}
	if err := r.store.SaveExecution(ctx, &failed); err != nil {
		log.Error("persist faulted execution", "fault", message, "error", err)
		return cur, fmt.Errorf("persist faulted execution: %w", err)
	}
	*cur = failed
	if err := r.fsm.Transition(ctx, failed.ID, from, schema.ExecutionStatusFailed,
		map[string]any{"error": message}); err != nil {
		log.Warn("record fault event", "error", err)
	}
	log.Error("execution faulted", "error", message)
	return &failed, nil
}

// Interrupt fails a record left running by a worker that never finished it.
func (r *Runner) Interrupt(ctx context.Context, rec *store.Execution) (*store.Execution, error) {
	if rec.Status != schema.ExecutionStatusRunning {
		return rec, schema.NewErrorf(schema.ErrCodeConflict, "execution is %s, not running", rec.Status).
			WithExecution(rec.ID)
	}
	ctx = logging.WithChainID(logging.WithExecutionID(ctx, rec.ID), rec.ChainID)
	if err := emit(ctx, r.store, rec.ID, nil, schema.EventExecutionInterrupted, nil); err != nil {
		logging.LogWith(ctx, r.logger).Warn("record interruption event", "error", err)
	}
	cur := *rec
	return r.abort(ctx, &cur, MsgRunInterrupted)
}

// faultMessage extracts the human message of a coded error.
func faultMessage(err error) string {
	var e *schema.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func statusCode(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
