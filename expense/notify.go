package expense

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// NOTIFIER - Per-user notifications derived from expense state
// =============================================================================

// Notifier derives notifications from expenses and persists them so the
// read flag survives. Ids are deterministic, so deriving twice never
// duplicates a notification.
//
//   - Approvers get "needs your approval" while they hold the current step.
//   - Employees get "was <status>" when the last two history labels differ.
type Notifier struct {
	Expenses      ExpenseStore
	Users         UserStore
	Notifications NotificationStore
	Log           zerolog.Logger
	Now           func() time.Time
}

func NewNotifier(expenses ExpenseStore, users UserStore, notifications NotificationStore, log zerolog.Logger) *Notifier {
	return &Notifier{
		Expenses:      expenses,
		Users:         users,
		Notifications: notifications,
		Log:           log.With().Str("component", "notifier").Logger(),
		Now:           time.Now,
	}
}

// ForUser refreshes and returns the user's notifications, newest first.
func (n *Notifier) ForUser(ctx context.Context, userID string) ([]Notification, error) {
	user, err := n.Users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var derived []Notification

	if user.Role.CanApprove() {
		pending, err := n.Expenses.List(ctx, ExpenseFilter{ApproverID: userID, Status: StatusPending})
		if err != nil {
			return nil, err
		}
		for _, e := range pending {
			if e.IsAwaiting(userID) {
				derived = append(derived, approvalNotice(e, userID, n.Now()))
			}
		}
	}

	own, err := n.Expenses.List(ctx, ExpenseFilter{EmployeeID: userID})
	if err != nil {
		return nil, err
	}
	for _, e := range own {
		if notice, ok := statusNotice(e, userID); ok {
			derived = append(derived, notice)
		}
	}

	if len(derived) > 0 {
		if err := n.Notifications.AddNotifications(ctx, derived); err != nil {
			return nil, fmt.Errorf("failed to store notifications: %w", err)
		}
	}
	return n.Notifications.ListNotifications(ctx, userID)
}

// MarkAllRead marks every notification of the user as read.
func (n *Notifier) MarkAllRead(ctx context.Context, userID string) error {
	if _, err := n.Users.GetUser(ctx, userID); err != nil {
		return err
	}
	return n.Notifications.MarkAllRead(ctx, userID)
}

func approvalNotice(e *Expense, userID string, now time.Time) Notification {
	return Notification{
		ID:        fmt.Sprintf("approval-%s-%s-%d", e.ID, userID, *e.CurrentApproverStep),
		UserID:    userID,
		ExpenseID: e.ID,
		Message:   fmt.Sprintf("New expense from %s for %s %s needs your approval.", e.EmployeeName, e.Amount.StringFixed(2), e.Currency),
		Timestamp: now,
	}
}

func statusNotice(e *Expense, userID string) (Notification, bool) {
	if len(e.History) < 2 {
		return Notification{}, false
	}
	last := e.History[len(e.History)-1]
	prev := e.History[len(e.History)-2]
	if last.Status == prev.Status {
		return Notification{}, false
	}
	return Notification{
		ID:        fmt.Sprintf("status-%s-%s-%d", e.ID, userID, len(e.History)),
		UserID:    userID,
		ExpenseID: e.ID,
		Message:   fmt.Sprintf("Your expense %q was %s.", e.Description, strings.ToLower(string(e.Status))),
		Timestamp: last.Timestamp,
	}, true
}
