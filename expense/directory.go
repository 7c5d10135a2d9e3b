package expense

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// USER DIRECTORY - Organization hierarchy backed by a UserStore
// =============================================================================

// UserDirectory manages users and answers hierarchy questions for routing.
// It implements Directory.
type UserDirectory struct {
	users UserStore
	log   zerolog.Logger
	newID func() string
}

var _ Directory = (*UserDirectory)(nil)

func NewUserDirectory(users UserStore, log zerolog.Logger) *UserDirectory {
	return &UserDirectory{
		users: users,
		log:   log.With().Str("component", "directory").Logger(),
		newID: func() string { return "usr_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:9] },
	}
}

// ResolveUser returns the user or ErrUserNotFound.
func (d *UserDirectory) ResolveUser(ctx context.Context, userID string) (*User, error) {
	return d.users.GetUser(ctx, userID)
}

// ResolveManager returns the employee's manager id, or "" when none is assigned.
func (d *UserDirectory) ResolveManager(ctx context.Context, employeeID string) (string, error) {
	u, err := d.users.GetUser(ctx, employeeID)
	if err != nil {
		return "", err
	}
	return u.ManagerID, nil
}

func (d *UserDirectory) ListUsers(ctx context.Context) ([]User, error) {
	return d.users.ListUsers(ctx)
}

// ListManagers returns users who may be assigned as managers.
func (d *UserDirectory) ListManagers(ctx context.Context) ([]User, error) {
	all, err := d.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var out []User
	for _, u := range all {
		if u.Role.CanApprove() {
			out = append(out, u)
		}
	}
	return out, nil
}

// NewUser is the input of AddUser.
type NewUser struct {
	ID        string // optional; generated when empty
	Name      string
	Email     string
	Role      Role
	ManagerID string
}

// AddUser validates and stores a new user.
func (d *UserDirectory) AddUser(ctx context.Context, in NewUser) (*User, error) {
	var errs []FieldError
	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if !in.Role.IsValid() {
		errs = append(errs, FieldError{Field: "role", Message: fmt.Sprintf("unknown role %q", in.Role)})
	}
	if in.ManagerID != "" && in.Role != RoleEmployee {
		errs = append(errs, FieldError{Field: "manager_id", Message: "only employees can have a manager"})
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	u := User{
		ID:        in.ID,
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Role:      in.Role,
		ManagerID: in.ManagerID,
	}
	if u.ID == "" {
		u.ID = d.newID()
	}
	if err := d.checkManager(ctx, u.ID, u.ManagerID); err != nil {
		return nil, err
	}

	if err := d.users.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	d.log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("User added")
	return &u, nil
}

// UserUpdate holds the fields to change. Nil fields are left as they are.
type UserUpdate struct {
	Name      *string
	Email     *string
	Role      *Role
	ManagerID *string // "" clears the manager
}

// UpdateUser applies changes and keeps the hierarchy consistent:
// a user leaving the Employee role loses their manager, and a user becoming
// an Employee stops managing anyone.
func (d *UserDirectory) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	u, err := d.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	prevRole := u.Role

	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return nil, NewValidationError("name", "required")
		}
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		u.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.Role != nil {
		if !upd.Role.IsValid() {
			return nil, NewValidationError("role", fmt.Sprintf("unknown role %q", *upd.Role))
		}
		u.Role = *upd.Role
	}
	if upd.ManagerID != nil {
		u.ManagerID = *upd.ManagerID
	}

	if u.Role != RoleEmployee {
		u.ManagerID = ""
	}
	if err := d.checkManager(ctx, u.ID, u.ManagerID); err != nil {
		return nil, err
	}

	if err := d.users.SaveUser(ctx, *u); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	if prevRole != RoleEmployee && u.Role == RoleEmployee {
		if err := d.users.ClearManager(ctx, u.ID); err != nil {
			return nil, fmt.Errorf("failed to clear reports of %s: %w", u.ID, err)
		}
	}
	return u, nil
}

func (d *UserDirectory) checkManager(ctx context.Context, userID, managerID string) error {
	if managerID == "" {
		return nil
	}
	if managerID == userID {
		return NewValidationError("manager_id", "a user cannot manage themselves")
	}
	m, err := d.users.GetUser(ctx, managerID)
	if errors.Is(err, ErrUserNotFound) {
		return NewValidationError("manager_id", "manager not found")
	}
	if err != nil {
		return err
	}
	if !m.Role.CanApprove() {
		return NewValidationError("manager_id", "manager must have the Manager or Admin role")
	}
	return nil
}
