package expense_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/expense-engine/expense"
)

func ptr[T any](v T) *T { return &v }

func TestAddUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: Adding an employee under the manager without an id
	u, err := f.dir.AddUser(ctx, expense.NewUser{Name: "  Nina  ", Email: "nina@example.com", Role: expense.RoleEmployee, ManagerID: "usr_manager"})

	// THEN: Id generated, name trimmed, manager resolvable
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.ID, "usr_"))
	assert.Len(t, u.ID, len("usr_")+9)
	assert.Equal(t, "Nina", u.Name)

	mgr, err := f.dir.ResolveManager(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "usr_manager", mgr)
}

func TestAddUser_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    expense.NewUser
		field string
	}{
		{"missing name", expense.NewUser{Role: expense.RoleEmployee}, "name"},
		{"unknown role", expense.NewUser{Name: "X", Role: "Intern"}, "role"},
		{"manager with manager", expense.NewUser{Name: "X", Role: expense.RoleManager, ManagerID: "usr_admin"}, "manager_id"},
		{"unknown manager", expense.NewUser{Name: "X", Role: expense.RoleEmployee, ManagerID: "usr_ghost"}, "manager_id"},
		{"employee as manager", expense.NewUser{Name: "X", Role: expense.RoleEmployee, ManagerID: "usr_employee"}, "manager_id"},
		{"self managed", expense.NewUser{ID: "usr_self", Name: "X", Role: expense.RoleEmployee, ManagerID: "usr_self"}, "manager_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dir.AddUser(ctx, tt.in)

			var ve *expense.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Errors[0].Field)
		})
	}
}

func TestListManagers(t *testing.T) {
	f := newFixture(t)

	managers, err := f.dir.ListManagers(context.Background())

	require.NoError(t, err)
	for _, m := range managers {
		assert.True(t, m.Role.CanApprove(), m.ID)
	}
	assert.Len(t, managers, 5)
}

func TestUpdateUser_PromotionDropsOwnManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: Sarah becomes a manager
	u, err := f.dir.UpdateUser(ctx, "usr_employee", expense.UserUpdate{Role: ptr(expense.RoleManager)})

	// THEN: She no longer reports to anyone
	require.NoError(t, err)
	assert.Equal(t, expense.RoleManager, u.Role)
	assert.Empty(t, u.ManagerID)
}

func TestUpdateUser_DemotionClearsReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: Michael becomes an employee reporting to David
	u, err := f.dir.UpdateUser(ctx, "usr_manager", expense.UserUpdate{
		Role:      ptr(expense.RoleEmployee),
		ManagerID: ptr("usr_admin"),
	})
	require.NoError(t, err)
	assert.Equal(t, "usr_admin", u.ManagerID)

	// THEN: Sarah has no manager any more
	mgr, err := f.dir.ResolveManager(ctx, "usr_employee")
	require.NoError(t, err)
	assert.Empty(t, mgr)

	// AND: Her next expense routes straight to the admin
	e := f.submit(t, "usr_employee", "100", "USD", nil)
	assert.Equal(t, []string{"usr_admin"}, ids(e.Approvers))
}

func TestUpdateUser_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dir.UpdateUser(ctx, "usr_ghost", expense.UserUpdate{Name: ptr("X")})
	assert.ErrorIs(t, err, expense.ErrUserNotFound)

	_, err = f.dir.UpdateUser(ctx, "usr_employee", expense.UserUpdate{Name: ptr("  ")})
	assert.ErrorIs(t, err, expense.ErrValidation)

	_, err = f.dir.UpdateUser(ctx, "usr_employee", expense.UserUpdate{ManagerID: ptr("usr_loner")})
	assert.ErrorIs(t, err, expense.ErrValidation)

	// Clearing the manager is allowed
	u, err := f.dir.UpdateUser(ctx, "usr_employee", expense.UserUpdate{ManagerID: ptr("")})
	require.NoError(t, err)
	assert.Empty(t, u.ManagerID)
}
