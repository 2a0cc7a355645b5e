package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/autoforge/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
//
// A single connection is used, so every transaction is serialized. Balance
// debits rely on this together with their conditional UPDATE.
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Owners ---

func (s *LibSQLStore) CreateOwner(ctx context.Context, owner *Owner) error {
	if owner.Balance < 0 {
		return schema.NewError(schema.ErrCodeValidation, "owner balance must not be negative")
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owners (id, email, balance, created_at) VALUES (?, ?, ?, ?)`,
		owner.ID, owner.Email, int64(owner.Balance), owner.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) GetOwner(ctx context.Context, id string) (*Owner, error) {
	o := &Owner{}
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, balance, created_at FROM owners WHERE id = ?`, id,
	).Scan(&o.ID, &o.Email, &balance, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("owner", id)
	}
	if err != nil {
		return nil, err
	}
	o.Balance = schema.Amount(balance)
	return o, nil
}

// --- Chains ---

const chainColumns = `id, owner_id, name, description, trigger_type, trigger_config, actions, is_active, execution_cost, created_at, updated_at`

func (s *LibSQLStore) CreateChain(ctx context.Context, chain *Chain) error {
	triggerConfig, err := marshalMapOrDefault(chain.TriggerConfig)
	if err != nil {
		return fmt.Errorf("marshal trigger_config: %w", err)
	}
	actions, err := marshalActions(chain.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	now := time.Now().UTC()
	if chain.CreatedAt.IsZero() {
		chain.CreatedAt = now
	}
	if chain.UpdatedAt.IsZero() {
		chain.UpdatedAt = chain.CreatedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chains (`+chainColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chain.ID, chain.OwnerID, chain.Name, nullStr(chain.Description), string(chain.TriggerKind),
		string(triggerConfig), string(actions), boolInt(chain.Active), int64(chain.Cost),
		chain.CreatedAt, chain.UpdatedAt,
	)
	return err
}

func (s *LibSQLStore) GetChain(ctx context.Context, id string) (*Chain, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chainColumns+` FROM chains WHERE id = ? AND deleted_at IS NULL`, id)
	c, err := scanChain(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("chain", id)
	}
	return c, err
}

func (s *LibSQLStore) UpdateChain(ctx context.Context, id string, update ChainUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if update.TriggerConfig != nil {
		raw, err := marshalMapOrDefault(update.TriggerConfig)
		if err != nil {
			return fmt.Errorf("marshal trigger_config: %w", err)
		}
		sets = append(sets, "trigger_config = ?")
		args = append(args, string(raw))
	}
	if update.Actions != nil {
		raw, err := marshalActions(update.Actions)
		if err != nil {
			return fmt.Errorf("marshal actions: %w", err)
		}
		sets = append(sets, "actions = ?")
		args = append(args, string(raw))
	}
	if update.Active != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*update.Active))
	}
	if update.Cost != nil {
		if *update.Cost < 0 {
			return schema.NewError(schema.ErrCodeValidation, "execution cost must not be negative")
		}
		sets = append(sets, "execution_cost = ?")
		args = append(args, int64(*update.Cost))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE chains SET %s WHERE id = ? AND deleted_at IS NULL", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "chain", id)
}

func (s *LibSQLStore) ListChains(ctx context.Context, filter ChainFilter) ([]*Chain, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any

	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.TriggerKind != nil {
		where = append(where, "trigger_type = ?")
		args = append(args, string(*filter.TriggerKind))
	}
	if filter.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolInt(*filter.Active))
	}

	query := "SELECT " + chainColumns + " FROM chains WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chains []*Chain
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, rows.Err()
}

func (s *LibSQLStore) DeleteChain(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var inFlight int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM executions WHERE chain_id = ? AND status IN ('pending', 'running')`, id,
	).Scan(&inFlight); err != nil {
		return fmt.Errorf("count in-flight executions: %w", err)
	}
	if inFlight > 0 {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"chain %q has %d in-flight execution(s)", id, inFlight).
			WithDetails(map[string]any{"chain_id": id, "in_flight": inFlight})
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE chains SET deleted_at = ?, is_active = 0 WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "chain", id); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChain(row rowScanner) (*Chain, error) {
	c := &Chain{}
	var (
		desc                   sql.NullString
		trigger                string
		configJSON, actionJSON string
		active                 int
		cost                   int64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &desc, &trigger, &configJSON, &actionJSON,
		&active, &cost, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Description = desc.String
	c.TriggerKind = schema.TriggerKind(trigger)
	c.Active = active != 0
	c.Cost = schema.Amount(cost)
	if err := json.Unmarshal([]byte(configJSON), &c.TriggerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal trigger_config: %w", err)
	}
	if err := json.Unmarshal([]byte(actionJSON), &c.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	return c, nil
}

// ListActiveScheduledChains returns every active chain triggered by schedule.
func ListActiveScheduledChains(ctx context.Context, s Store) ([]*Chain, error) {
	kind := schema.TriggerSchedule
	active := true
	return s.ListChains(ctx, ChainFilter{TriggerKind: &kind, Active: &active})
}

// --- Executions ---

const executionColumns = `id, chain_id, status, trigger_data, execution_result, error_message, cost, charged, started_at, completed_at, created_at`

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec.Status == "" {
		exec.Status = schema.ExecutionStatusPending
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}
	triggerData, result, err := marshalExecutionJSON(exec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.ChainID, string(exec.Status), triggerData, result, nullStr(exec.ErrorMessage),
		int64(exec.Cost), boolInt(exec.Charged), nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
		exec.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	return e, err
}

func (s *LibSQLStore) ClaimExecution(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = 'running', started_at = ? WHERE id = ? AND status = 'pending'`,
		startedAt, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetExecution(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *LibSQLStore) SaveExecution(ctx context.Context, exec *Execution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM executions WHERE id = ?`, exec.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return storeNotFound("execution", exec.ID)
	}
	if err != nil {
		return err
	}

	stored := schema.ExecutionStatus(current)
	if stored.Terminal() && stored == exec.Status {
		return nil
	}
	if statusRank(exec.Status) < statusRank(stored) || (stored.Terminal() && stored != exec.Status) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"execution status cannot move from %s to %s", stored, exec.Status).
			WithExecution(exec.ID)
	}

	triggerData, result, err := marshalExecutionJSON(exec)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE executions SET status = ?, trigger_data = ?, execution_result = ?, error_message = ?,
		   cost = ?, charged = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(exec.Status), triggerData, result, nullStr(exec.ErrorMessage),
		int64(exec.Cost), boolInt(exec.Charged), nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
		exec.ID,
	); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return tx.Commit()
}

func (s *LibSQLStore) LatestExecutionFor(ctx context.Context, chainID string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE chain_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		chainID,
	)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.ChainID != "" {
		where = append(where, "chain_id = ?")
		args = append(args, filter.ChainID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.StartedUntil != nil {
		where = append(where, "started_at <= ?")
		args = append(args, *filter.StartedUntil)
	}

	query := "SELECT " + executionColumns + " FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

func scanExecution(row rowScanner) (*Execution, error) {
	e := &Execution{}
	var (
		status                  string
		triggerJSON, resultJSON sql.NullString
		errMsg                  sql.NullString
		cost                    int64
		charged                 int
		startedAt, completedAt  sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.ChainID, &status, &triggerJSON, &resultJSON, &errMsg,
		&cost, &charged, &startedAt, &completedAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Status = schema.ExecutionStatus(status)
	e.ErrorMessage = errMsg.String
	e.Cost = schema.Amount(cost)
	e.Charged = charged != 0
	if triggerJSON.Valid && triggerJSON.String != "" {
		if err := json.Unmarshal([]byte(triggerJSON.String), &e.TriggerData); err != nil {
			return nil, fmt.Errorf("unmarshal trigger_data: %w", err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		e.Result = &schema.ExecutionResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), e.Result); err != nil {
			return nil, fmt.Errorf("unmarshal execution_result: %w", err)
		}
	}
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return e, nil
}

func marshalExecutionJSON(exec *Execution) (triggerData, result any, err error) {
	if exec.TriggerData != nil {
		b, err := json.Marshal(exec.TriggerData)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal trigger_data: %w", err)
		}
		triggerData = string(b)
	}
	if exec.Result != nil {
		b, err := json.Marshal(exec.Result)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal execution_result: %w", err)
		}
		result = string(b)
	}
	return triggerData, result, nil
}

func statusRank(s schema.ExecutionStatus) int {
	switch s {
	case schema.ExecutionStatusPending:
		return 0
	case schema.ExecutionStatusRunning:
		return 1
	default:
		return 2
	}
}

// --- Billing ---

func (s *LibSQLStore) DebitAndLedger(ctx context.Context, ownerID string, amount schema.Amount, description, executionID string) (bool, error) {
	if amount <= 0 {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "debit amount must be positive, got %s", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Compare and debit in one statement so concurrent charges cannot both pass the check.
	res, err := tx.ExecContext(ctx,
		`UPDATE owners SET balance = balance - ? WHERE id = ? AND balance >= ?`,
		int64(amount), ownerID, int64(amount),
	)
	if err != nil {
		return false, fmt.Errorf("debit owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM owners WHERE id = ?`, ownerID).Scan(&exists); err != nil {
			return false, err
		}
		if exists == 0 {
			return false, storeNotFound("owner", ownerID)
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, owner_id, amount, description, execution_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), ownerID, -int64(amount), description, nullStr(executionID), time.Now().UTC(),
	); err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}

	if executionID != "" {
		res, err := tx.ExecContext(ctx,
			`UPDATE executions SET cost = ?, charged = 1 WHERE id = ?`, int64(amount), executionID)
		if err != nil {
			return false, fmt.Errorf("mark execution charged: %w", err)
		}
		if err := checkRowsAffected(res, "execution", executionID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit charge: %w", err)
	}
	return true, nil
}

func (s *LibSQLStore) ListLedger(ctx context.Context, ownerID string) ([]*LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, amount, description, execution_id, created_at
		 FROM ledger_entries WHERE owner_id = ? ORDER BY created_at ASC, rowid ASC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LedgerEntry
	for rows.Next() {
		le := &LedgerEntry{}
		var amount int64
		var execID sql.NullString
		if err := rows.Scan(&le.ID, &le.OwnerID, &amount, &le.Description, &execID, &le.CreatedAt); err != nil {
			return nil, err
		}
		le.Amount = schema.Amount(amount)
		le.ExecutionID = execID.String
		entries = append(entries, le)
	}
	return entries, rows.Err()
}

// --- Events ---

// AppendEvent appends an event with a monotonically increasing per-execution sequence.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM execution_events WHERE execution_id = ?`, event.ExecutionID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var actionIndex any
	if event.ActionIndex != nil {
		actionIndex = *event.ActionIndex
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO execution_events (execution_id, action_index, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExecutionID, actionIndex, event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, executionID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, action_index, event_type, payload, timestamp, sequence
		 FROM execution_events WHERE execution_id = ? ORDER BY sequence ASC`, executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var actionIndex sql.NullInt64
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &actionIndex, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		if actionIndex.Valid {
			idx := int(actionIndex.Int64)
			e.ActionIndex = &idx
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, rotated_at=CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", key)
	}
	return value, err
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "secret", key)
}

func (s *LibSQLStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func marshalActions(actions []schema.ActionDefinition) (json.RawMessage, error) {
	if len(actions) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(actions)
}
