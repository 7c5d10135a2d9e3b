/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the routing engine and everything that
  involves I/O: where expenses and users live, and how amounts are
  normalized to the base currency. The engine never holds module-level
  state; every collaborator is passed in, so tests inject isolated fixtures.

KEY INTERFACES:
  ExpenseStore:      Expense records, with atomic per-record Update
  UserStore:         Organization directory records
  NotificationStore: Per-user notifications with read state
  Converter:         Base-currency normalization

ATOMIC UPDATES:
  ExpenseStore.Update hands the mutation function a private copy of the
  record. If the function returns an error nothing is written; otherwise the
  whole copy (steps + history + status) replaces the stored record in one
  write. Updates on the same expense are serialized; different expenses
  proceed in parallel.

IMPLEMENTATIONS:
  - expense/store/memory.go: In-memory, per-record locks
  - store/sqlite/sqlite.go:  SQLite, version column + transaction

SEE ALSO:
  - lifecycle.go: Uses these interfaces
  - currency/converter.go: Converter implementation
*/
package expense

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/currency"
)

// =============================================================================
// EXPENSE STORE
// =============================================================================

// ExpenseFilter narrows List results. Zero values match everything.
type ExpenseFilter struct {
	EmployeeID string
	ApproverID string // expenses with this user anywhere in the chain
	Status     Status
}

// Matches reports whether e passes the filter.
func (f ExpenseFilter) Matches(e *Expense) bool {
	if f.EmployeeID != "" && e.EmployeeID != f.EmployeeID {
		return false
	}
	if f.ApproverID != "" && !e.HasApprover(f.ApproverID) {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

type ExpenseStore interface {
	// Create persists a new expense.
	Create(ctx context.Context, e *Expense) error

	// Get returns a copy of the expense or ErrExpenseNotFound.
	Get(ctx context.Context, id string) (*Expense, error)

	// List returns copies of matching expenses ordered by Date descending.
	List(ctx context.Context, filter ExpenseFilter) ([]*Expense, error)

	// Update applies fn to a copy of the expense and commits it atomically
	// if fn returns nil. Returns the committed copy.
	Update(ctx context.Context, id string, fn func(e *Expense) error) (*Expense, error)
}

// =============================================================================
// USER STORE
// =============================================================================

type UserStore interface {
	// GetUser returns the user or ErrUserNotFound.
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SaveUser(ctx context.Context, u User) error

	// ClearManager removes managerID from every user reporting to it.
	ClearManager(ctx context.Context, managerID string) error
}

// =============================================================================
// NOTIFICATION STORE
// =============================================================================

type NotificationStore interface {
	// AddNotifications stores notifications whose ID is not yet known.
	// Existing notifications (and their read flag) are left untouched.
	AddNotifications(ctx context.Context, ns []Notification) error
	ListNotifications(ctx context.Context, userID string) ([]Notification, error)
	MarkAllRead(ctx context.Context, userID string) error
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Converter normalizes amounts to the base currency.
type Converter interface {
	ConvertToBase(ctx context.Context, amount decimal.Decimal, from string) (currency.Conversion, error)
}

// Directory resolves hierarchy facts for routing.
type Directory interface {
	ResolveUser(ctx context.Context, userID string) (*User, error)
	ResolveManager(ctx context.Context, employeeID string) (string, error)
}
