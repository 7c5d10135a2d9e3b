// Package store provides in-memory implementations of the expense stores.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/expense-engine/expense"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ExpenseStore, UserStore and NotificationStore.
// Reads return clones; Update holds a per-expense lock so updates on one
// expense are serialized while different expenses proceed in parallel.
type Memory struct {
	mu            sync.RWMutex
	expenses      map[string]*expense.Expense
	users         map[string]expense.User
	notifications map[string][]expense.Notification

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var (
	_ expense.ExpenseStore      = (*Memory)(nil)
	_ expense.UserStore         = (*Memory)(nil)
	_ expense.NotificationStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	m := &Memory{}
	_ = m.Reset(context.Background())
	return m
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses = make(map[string]*expense.Expense)
	m.users = make(map[string]expense.User)
	m.notifications = make(map[string][]expense.Notification)

	m.locksMu.Lock()
	m.locks = make(map[string]*sync.Mutex)
	m.locksMu.Unlock()
	return nil
}

// =============================================================================
// EXPENSES
// =============================================================================

func (m *Memory) Create(_ context.Context, e *expense.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expenses[e.ID]; ok {
		return fmt.Errorf("expense %s already exists", e.ID)
	}
	c := e.Clone()
	c.Version = 1
	e.Version = 1
	m.expenses[e.ID] = c
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*expense.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", expense.ErrExpenseNotFound, id)
	}
	return e.Clone(), nil
}

func (m *Memory) List(_ context.Context, filter expense.ExpenseFilter) ([]*expense.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*expense.Expense
	for _, e := range m.expenses {
		if filter.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	sortByDateDesc(out)
	return out, nil
}

// Update runs fn on a copy of the expense and commits the copy if fn
// succeeds. A failing fn leaves the stored expense untouched.
func (m *Memory) Update(ctx context.Context, id string, fn func(e *expense.Expense) error) (*expense.Expense, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	working, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(working); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.expenses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", expense.ErrExpenseNotFound, id)
	}
	if stored.Version != working.Version {
		return nil, fmt.Errorf("%w: expense %s", expense.ErrConcurrentModification, id)
	}
	working.Version++
	m.expenses[id] = working.Clone()
	return working, nil
}

func (m *Memory) lockFor(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func sortByDateDesc(es []*expense.Expense) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].Date.Equal(es[j].Date) {
			return es[i].Date.After(es[j].Date)
		}
		return es[i].ID < es[j].ID
	})
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id string) (*expense.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", expense.ErrUserNotFound, id)
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]expense.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]expense.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveUser(_ context.Context, u expense.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) ClearManager(_ context.Context, managerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.ManagerID == managerID {
			u.ManagerID = ""
			m.users[id] = u
		}
	}
	return nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (m *Memory) AddNotifications(_ context.Context, ns []expense.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range ns {
		if m.hasNotificationLocked(n.UserID, n.ID) {
			continue
		}
		m.notifications[n.UserID] = append(m.notifications[n.UserID], n)
	}
	return nil
}

func (m *Memory) hasNotificationLocked(userID, id string) bool {
	for _, n := range m.notifications[userID] {
		if n.ID == id {
			return true
		}
	}
	return false
}

// ListNotifications returns the user's notifications, newest first.
func (m *Memory) ListNotifications(_ context.Context, userID string) ([]expense.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]expense.Notification(nil), m.notifications[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) MarkAllRead(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.notifications[userID]
	for i := range ns {
		ns[i].Read = true
	}
	return nil
}
