// Package storage is the SQLite adapter behind the store ports. All
// multi-record writes run inside a single transaction with version
// compare-and-swap, so a transaction row and its balance delta (or an
// allocation's balance and goal halves) are never observable apart.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tally/internal/core"
	"tally/internal/store"
)

const dateLayout = "2006-01-02"

type Repository struct {
	db *sql.DB
}

var _ store.Store = (*Repository)(nil)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, ex execer, t core.Transaction) (string, error) {
	if t.Amount.Cents < 0 {
		return "", core.ErrInvalidAmount
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var idem sql.NullString
	if t.IdempotencyKey != "" {
		idem = sql.NullString{String: t.IdempotencyKey, Valid: true}
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, type, category, amount_cents, method, occurred_on, provider, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, string(t.Type), core.NormalizeCategory(t.Category),
		t.Amount.Cents, string(t.Method), t.OccurredAt.Truncate().Format(dateLayout),
		t.Provider, idem)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return t.ID, nil
}

func (r *Repository) Append(ctx context.Context, t core.Transaction) (string, error) {
	id, err := insertTransaction(ctx, r.db, t)
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"owner_id", t.OwnerID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"method", t.Method)
	return id, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t        core.Transaction
		typ      string
		method   string
		occurred string
		idem     sql.NullString
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &typ, &t.Category, &t.Amount.Cents, &method, &occurred, &t.Provider, &idem); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Method = core.PaymentMethod(method)
	if d, err := time.Parse(dateLayout, occurred); err == nil {
		t.OccurredAt = core.Date{Time: d}
	}
	t.IdempotencyKey = idem.String
	return t, nil
}

const txColumns = `id, owner_id, type, category, amount_cents, method, occurred_on, provider, idempotency_key`

func (r *Repository) Query(ctx context.Context, ownerID string, f store.TransactionFilter) ([]core.Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM transactions WHERE owner_id = ?`
	args := []any{ownerID}
	if f.Type != "" {
		q += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		q += ` AND category = ?`
		args = append(args, core.NormalizeCategory(f.Category))
	}
	if !f.From.IsZero() {
		q += ` AND occurred_on >= ?`
		args = append(args, core.DateOf(f.From).Truncate().Format(dateLayout))
	}
	if !f.To.IsZero() {
		q += ` AND occurred_on <= ?`
		args = append(args, core.DateOf(f.To).Truncate().Format(dateLayout))
	}
	q += ` ORDER BY occurred_on, created_at`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *Repository) FindByIdempotencyKey(ctx context.Context, ownerID, key string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE owner_id = ? AND idempotency_key = ?`,
		ownerID, key)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find by idempotency key: %w", err)
	}
	return t, nil
}

func (r *Repository) GetBalance(ctx context.Context, ownerID string, m core.PaymentMethod) (core.Balance, error) {
	b := core.Balance{OwnerID: ownerID, Method: m}
	err := r.db.QueryRowContext(ctx, `
		SELECT amount_cents, initial_cents, allocated_cents, version
		FROM balances WHERE owner_id = ? AND method = ?`,
		ownerID, string(m)).Scan(&b.Amount.Cents, &b.Initial.Cents, &b.Allocated.Cents, &b.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Balance{}, core.ErrNotFound
	}
	if err != nil {
		return core.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (r *Repository) CreateBalance(ctx context.Context, b core.Balance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balances (owner_id, method, amount_cents, initial_cents, allocated_cents, version)
		VALUES (?, ?, ?, ?, 0, 1)`,
		b.OwnerID, string(b.Method), b.Amount.Cents, b.Initial.Cents)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("create balance: %w", err)
	}
	return nil
}

func updateBalanceCAS(ctx context.Context, ex execer, b core.Balance) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE balances SET amount_cents = ?, allocated_cents = ?, version = version + 1
		WHERE owner_id = ? AND method = ? AND version = ?`,
		b.Amount.Cents, b.Allocated.Cents, b.OwnerID, string(b.Method), b.Version)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance rows: %w", err)
	}
	if n == 0 {
		return core.ErrConflict
	}
	return nil
}

func (r *Repository) PutBalance(ctx context.Context, b core.Balance) error {
	return updateBalanceCAS(ctx, r.db, b)
}

func (r *Repository) UpsertLimit(ctx context.Context, b core.BudgetLimit) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_limits (owner_id, category, limit_cents, frequency, anchor)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, category) DO UPDATE SET
			limit_cents = excluded.limit_cents,
			frequency = excluded.frequency,
			anchor = excluded.anchor`,
		b.OwnerID, core.NormalizeCategory(b.Category), b.Limit.Cents,
		string(b.Frequency), b.Anchor.Truncate().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("upsert budget limit: %w", err)
	}
	return nil
}

func scanLimit(row interface{ Scan(...any) error }) (core.BudgetLimit, error) {
	var (
		b      core.BudgetLimit
		freq   string
		anchor string
	)
	if err := row.Scan(&b.OwnerID, &b.Category, &b.Limit.Cents, &freq, &anchor); err != nil {
		return core.BudgetLimit{}, err
	}
	b.Frequency = core.Frequency(freq)
	if d, err := time.Parse(dateLayout, anchor); err == nil {
		b.Anchor = core.Date{Time: d}
	}
	return b, nil
}

func (r *Repository) GetLimit(ctx context.Context, ownerID, category string) (core.BudgetLimit, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT owner_id, category, limit_cents, frequency, anchor
		FROM budget_limits WHERE owner_id = ? AND category = ?`,
		ownerID, core.NormalizeCategory(category))
	b, err := scanLimit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetLimit{}, core.ErrNotFound
	}
	if err != nil {
		return core.BudgetLimit{}, fmt.Errorf("get budget limit: %w", err)
	}
	return b, nil
}

func (r *Repository) ListLimits(ctx context.Context, ownerID string) ([]core.BudgetLimit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_id, category, limit_cents, frequency, anchor
		FROM budget_limits WHERE owner_id = ? ORDER BY category`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list budget limits: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetLimit
	for rows.Next() {
		b, err := scanLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget limit: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) CreateGoal(ctx context.Context, g core.SavingsGoal) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	var deadline sql.NullString
	if !g.Deadline.IsEmpty() {
		deadline = sql.NullString{String: g.Deadline.Truncate().Format(dateLayout), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO savings_goals (id, owner_id, name, target_cents, current_cents, deadline)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.OwnerID, g.Name, g.Target.Cents, g.Current.Cents, deadline)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

const goalColumns = `id, owner_id, name, target_cents, current_cents, deadline,
	completed_notified, surpassed_notified, missed_notified, version, created_at`

func scanGoal(row interface{ Scan(...any) error }) (core.SavingsGoal, error) {
	var (
		g        core.SavingsGoal
		deadline sql.NullString
	)
	if err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Target.Cents, &g.Current.Cents, &deadline,
		&g.CompletedNotified, &g.SurpassedNotified, &g.MissedNotified, &g.Version, &g.CreatedAt); err != nil {
		return core.SavingsGoal{}, err
	}
	if deadline.Valid {
		if d, err := time.Parse(dateLayout, deadline.String); err == nil {
			g.Deadline = core.Date{Time: d}
		}
	}
	return g, nil
}

func (r *Repository) GetGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, core.ErrNotFound
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (r *Repository) GetGoalByName(ctx context.Context, ownerID, name string) (core.SavingsGoal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE owner_id = ? AND name = ?`, ownerID, name)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, core.ErrNotFound
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal by name: %w", err)
	}
	return g, nil
}

func (r *Repository) ListGoals(ctx context.Context, ownerID string) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM savings_goals WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func updateGoalCAS(ctx context.Context, ex execer, g core.SavingsGoal) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE savings_goals SET current_cents = ?, completed_notified = ?,
			surpassed_notified = ?, missed_notified = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		g.Current.Cents, g.CompletedNotified, g.SurpassedNotified, g.MissedNotified,
		g.ID, g.Version)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update goal rows: %w", err)
	}
	if n == 0 {
		return core.ErrConflict
	}
	return nil
}

func (r *Repository) UpdateGoal(ctx context.Context, g core.SavingsGoal) error {
	return updateGoalCAS(ctx, r.db, g)
}

// AppendWithBalance writes the transaction row and the balance update in one
// database transaction. A version conflict aborts both.
func (r *Repository) AppendWithBalance(ctx context.Context, t core.Transaction, b core.Balance) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateBalanceCAS(ctx, tx, b); err != nil {
		return "", err
	}
	id, err := insertTransaction(ctx, tx, t)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Transaction and balance committed",
		"id", id,
		"owner_id", t.OwnerID,
		"method", t.Method,
		"balance_cents", b.Amount.Cents)
	return id, nil
}

// ApplyAllocation writes the post-allocation balance and goal in one database
// transaction, both under compare-and-swap.
func (r *Repository) ApplyAllocation(ctx context.Context, b core.Balance, g core.SavingsGoal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateBalanceCAS(ctx, tx, b); err != nil {
		return err
	}
	if err := updateGoalCAS(ctx, tx, g); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PendingSyncTransaction is the minimal record the export worker needs.
type PendingSyncTransaction struct {
	ID        string
	CreatedAt time.Time
}

// GetPendingSync returns transactions not yet mirrored to the export sheet.
func (r *Repository) GetPendingSync(ctx context.Context, limit int) ([]PendingSyncTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at FROM transactions
		WHERE sync_status = 'pending' ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncTransaction
	for rows.Next() {
		var p PendingSyncTransaction
		if err := rows.Scan(&p.ID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'synced' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

func (r *Repository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
