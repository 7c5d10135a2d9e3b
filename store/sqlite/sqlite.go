/*
Package sqlite provides a SQLite-backed implementation of the expense stores.

PURPOSE:
  Implements expense.ExpenseStore, expense.UserStore and
  expense.NotificationStore on SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  users:         Organization directory (role, manager_id)
  expenses:      One row per expense; approver chain, rule and history are
                 JSON columns owned by the row
  notifications: Per-user notifications with read flag

ATOMIC UPDATES:
  Update reads the row inside a transaction, applies the mutation to the
  decoded copy and writes it back with "WHERE version = ?". A version
  mismatch is reported as expense.ErrConcurrentModification and nothing
  is written. A failing mutation rolls the transaction back.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite has a single writer, so
  updates are serialized store-wide.

USAGE:
  store, err := sqlite.New("./data/expenses.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - expense/store.go: Interface definitions
  - expense/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/currency"
	"github.com/warp/expense-engine/expense"
)

// Store implements the expense storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ expense.ExpenseStore      = (*Store)(nil)
	_ expense.UserStore         = (*Store)(nil)
	_ expense.NotificationStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL,
		manager_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_users_manager
		ON users(manager_id) WHERE manager_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		employee_name TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		vendor TEXT,
		receipt_url TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		date TEXT NOT NULL,
		converted_amount TEXT NOT NULL,
		rate_source TEXT,
		status TEXT NOT NULL,
		current_step INTEGER,
		approvers_json TEXT NOT NULL,
		rule_json TEXT,
		history_json TEXT NOT NULL,
		rejection_reason TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_employee_date
		ON expenses(employee_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_expenses_status
		ON expenses(status);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		expense_id TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EXPENSES (expense.ExpenseStore interface)
// =============================================================================

const expenseColumns = `id, employee_id, employee_name, description, category, vendor, receipt_url,
	amount, currency, date, converted_amount, rate_source, status, current_step,
	approvers_json, rule_json, history_json, rejection_reason, version, created_at, updated_at`

// Create inserts a new expense at version 1.
func (s *Store) Create(ctx context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := encodeExpense(e)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		e.ID, e.EmployeeID, e.EmployeeName, e.Description, e.Category,
		nullString(e.Vendor), nullString(e.ReceiptURL),
		e.Amount.String(), e.Currency, formatTime(e.Date), e.ConvertedAmount.String(),
		nullString(string(e.RateSource)), string(e.Status), row.currentStep,
		row.approvers, row.rule, row.history, row.rejection,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("expense %s already exists", e.ID)
		}
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	e.Version = 1
	return nil
}

// Get retrieves an expense by ID.
func (s *Store) Get(ctx context.Context, id string) (*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getExpense(ctx, s.db, id)
}

// List returns matching expenses ordered by date, newest first.
func (s *Store) List(ctx context.Context, filter expense.ExpenseFilter) ([]*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ApproverID != "" {
		// Narrow by text match; Matches below does the exact check.
		where = append(where, "approvers_json LIKE ?")
		args = append(args, "%"+filter.ApproverID+"%")
	}

	query := "SELECT " + expenseColumns + " FROM expenses"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var out []*expense.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

// Update applies fn to the stored expense inside a transaction.
func (s *Store) Update(ctx context.Context, id string, fn func(e *expense.Expense) error) (*expense.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	e, err := getExpense(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	version := e.Version

	if err := fn(e); err != nil {
		return nil, err
	}

	row, err := encodeExpense(e)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE expenses SET
			description = ?, category = ?, vendor = ?, receipt_url = ?,
			status = ?, current_step = ?, approvers_json = ?, rule_json = ?,
			history_json = ?, rejection_reason = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		e.Description, e.Category, nullString(e.Vendor), nullString(e.ReceiptURL),
		string(e.Status), row.currentStep, row.approvers, row.rule,
		row.history, row.rejection, formatTime(e.UpdatedAt),
		id, version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: expense %s", expense.ErrConcurrentModification, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expense update: %w", err)
	}
	e.Version = version + 1
	return e, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getExpense(ctx context.Context, db queryer, id string) (*expense.Expense, error) {
	row := db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", expense.ErrExpenseNotFound, id)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(sc scanner) (*expense.Expense, error) {
	var (
		e                                  expense.Expense
		vendor, receipt, rateSource        sql.NullString
		amount, converted, date            string
		status, approversJSON, historyJSON string
		ruleJSON, rejection                sql.NullString
		currentStep                        sql.NullInt64
		createdAt, updatedAt               string
	)
	err := sc.Scan(
		&e.ID, &e.EmployeeID, &e.EmployeeName, &e.Description, &e.Category, &vendor, &receipt,
		&amount, &e.Currency, &date, &converted, &rateSource, &status, &currentStep,
		&approversJSON, &ruleJSON, &historyJSON, &rejection, &e.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Vendor = vendor.String
	e.ReceiptURL = receipt.String
	e.RateSource = currency.Source(rateSource.String)
	e.Status = expense.Status(status)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("expense %s: bad amount %q: %w", e.ID, amount, err)
	}
	if e.ConvertedAmount, err = decimal.NewFromString(converted); err != nil {
		return nil, fmt.Errorf("expense %s: bad converted amount %q: %w", e.ID, converted, err)
	}
	e.Date = parseTime(date)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)

	if currentStep.Valid {
		step := int(currentStep.Int64)
		e.CurrentApproverStep = &step
	}
	if rejection.Valid {
		r := rejection.String
		e.RejectionReason = &r
	}

	var steps []stepRecord
	if err := json.Unmarshal([]byte(approversJSON), &steps); err != nil {
		return nil, fmt.Errorf("expense %s: decode approvers: %w", e.ID, err)
	}
	e.Approvers = make([]expense.ApprovalStep, len(steps))
	for i, st := range steps {
		e.Approvers[i] = st.toStep()
	}

	var history []historyRecord
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return nil, fmt.Errorf("expense %s: decode history: %w", e.ID, err)
	}
	e.History = make([]expense.HistoryEntry, len(history))
	for i, h := range history {
		e.History[i] = expense.HistoryEntry(h)
	}

	if ruleJSON.Valid && ruleJSON.String != "" {
		var r ruleRecord
		if err := json.Unmarshal([]byte(ruleJSON.String), &r); err != nil {
			return nil, fmt.Errorf("expense %s: decode rule: %w", e.ID, err)
		}
		e.ApprovalRule = &expense.ApprovalRule{Type: expense.RuleType(r.Type), Percentage: r.Percentage, SpecificApproverID: r.SpecificApproverID}
	}

	return &e, nil
}

// =============================================================================
// JSON COLUMNS
// =============================================================================

type stepRecord struct {
	Step       int        `json:"step"`
	ApproverID string     `json:"approverId"`
	Status     string     `json:"status"`
	ActedAt    *time.Time `json:"actedAt,omitempty"`
	Comments   string     `json:"comments,omitempty"`
}

func (r stepRecord) toStep() expense.ApprovalStep {
	return expense.ApprovalStep{
		Step:       r.Step,
		ApproverID: r.ApproverID,
		Status:     expense.StepStatus(r.Status),
		ActedAt:    r.ActedAt,
		Comments:   r.Comments,
	}
}

type historyRecord struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Comments  string    `json:"comments,omitempty"`
}

type ruleRecord struct {
	Type               string `json:"type"`
	Percentage         int    `json:"percentage,omitempty"`
	SpecificApproverID string `json:"specificApproverId,omitempty"`
}

type expenseRow struct {
	currentStep sql.NullInt64
	approvers   string
	rule        sql.NullString
	history     string
	rejection   sql.NullString
}

func encodeExpense(e *expense.Expense) (expenseRow, error) {
	var row expenseRow

	steps := make([]stepRecord, len(e.Approvers))
	for i, a := range e.Approvers {
		steps[i] = stepRecord{Step: a.Step, ApproverID: a.ApproverID, Status: string(a.Status), ActedAt: a.ActedAt, Comments: a.Comments}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return row, fmt.Errorf("encode approvers: %w", err)
	}
	row.approvers = string(b)

	history := make([]historyRecord, len(e.History))
	for i, h := range e.History {
		history[i] = historyRecord(h)
	}
	if b, err = json.Marshal(history); err != nil {
		return row, fmt.Errorf("encode history: %w", err)
	}
	row.history = string(b)

	if e.ApprovalRule != nil {
		r := ruleRecord{Type: string(e.ApprovalRule.Type), Percentage: e.ApprovalRule.Percentage, SpecificApproverID: e.ApprovalRule.SpecificApproverID}
		if b, err = json.Marshal(r); err != nil {
			return row, fmt.Errorf("encode rule: %w", err)
		}
		row.rule = sql.NullString{String: string(b), Valid: true}
	}
	if e.CurrentApproverStep != nil {
		row.currentStep = sql.NullInt64{Int64: int64(*e.CurrentApproverStep), Valid: true}
	}
	if e.RejectionReason != nil {
		row.rejection = sql.NullString{String: *e.RejectionReason, Valid: true}
	}
	return row, nil
}

// =============================================================================
// USERS (expense.UserStore interface)
// =============================================================================

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, u expense.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, manager_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			manager_id = excluded.manager_id`,
		u.ID, u.Name, u.Email, string(u.Role), nullString(u.ManagerID),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*expense.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, name, email, role, manager_id FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", expense.ErrUserNotFound, id)
	}
	return u, err
}

// ListUsers returns all users ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]expense.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, email, role, manager_id FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []expense.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ClearManager removes managerID from all of its reports.
func (s *Store) ClearManager(ctx context.Context, managerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "UPDATE users SET manager_id = NULL WHERE manager_id = ?", managerID)
	return err
}

func scanUser(sc scanner) (*expense.User, error) {
	var u expense.User
	var email, manager sql.NullString
	var role string
	if err := sc.Scan(&u.ID, &u.Name, &email, &role, &manager); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Role = expense.Role(role)
	u.ManagerID = manager.String
	return &u, nil
}

// =============================================================================
// NOTIFICATIONS (expense.NotificationStore interface)
// =============================================================================

// AddNotifications inserts notifications, ignoring ones already stored.
func (s *Store) AddNotifications(ctx context.Context, ns []expense.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, n := range ns {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO notifications (id, user_id, expense_id, message, timestamp, read)
			VALUES (?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, n.ExpenseID, n.Message, formatTime(n.Timestamp), n.Read,
		)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
	}
	return tx.Commit()
}

// ListNotifications returns the user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]expense.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, expense_id, message, timestamp, read
		FROM notifications WHERE user_id = ? ORDER BY timestamp DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []expense.Notification
	for rows.Next() {
		var n expense.Notification
		var ts string
		if err := rows.Scan(&n.ID, &n.UserID, &n.ExpenseID, &n.Message, &ts, &n.Read); err != nil {
			return nil, err
		}
		n.Timestamp = parseTime(ts)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkAllRead marks every notification of the user as read.
func (s *Store) MarkAllRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE user_id = ?", userID)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"notifications", "expenses", "users"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
