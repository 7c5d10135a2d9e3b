/*
lifecycle.go - Expense submission and approval orchestration

PURPOSE:
  Service ties the pure routing functions (BuildChain, Evaluate) to the
  collaborators that do I/O: the directory, the currency converter and the
  expense store. It is the only place where expenses change state.

FLOW:
  Submit:
    validate ──▶ resolve employee + manager ──▶ convert to base
             ──▶ BuildChain ──▶ create Pending at step 1

  RecordDecision:
    resolve actor ──▶ store.Update(expense, fn) where fn:
      check Pending + current step ──▶ find actor's step
      ──▶ record step + history ──▶ reject | Evaluate

ATOMICITY:
  RecordDecision mutates a private copy inside ExpenseStore.Update. Any
  error returned from the mutation leaves the stored expense untouched.
  The store serializes updates per expense.

SEE ALSO:
  - chain.go: Chain construction
  - rules.go: Rule evaluation
  - store.go: Collaborator interfaces
*/
package expense

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/currency"
)

var currencyCode = regexp.MustCompile(`^[A-Za-z]{3}$`)

// Service manages the expense lifecycle.
type Service struct {
	Expenses  ExpenseStore
	Directory Directory
	Converter Converter
	Routing   RoutingConfig
	Exhausted ExhaustedPolicy
	Log       zerolog.Logger
	Now       func() time.Time
	NewID     func() string
}

// NewService creates a Service with the default clock and id generator.
func NewService(expenses ExpenseStore, dir Directory, conv Converter, routing RoutingConfig, log zerolog.Logger) *Service {
	return &Service{
		Expenses:  expenses,
		Directory: dir,
		Converter: conv,
		Routing:   routing,
		Exhausted: ExhaustedHold,
		Log:       log.With().Str("component", "expense").Logger(),
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput is a new expense as entered by an employee.
type SubmitInput struct {
	EmployeeID  string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Date        time.Time
	Description string
	Vendor      string
	ReceiptURL  string
	Rule        *ApprovalRule
}

func (in SubmitInput) validate() error {
	var errs []FieldError
	if in.EmployeeID == "" {
		errs = append(errs, FieldError{Field: "employee_id", Message: "required"})
	}
	if !in.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be positive"})
	}
	if !currencyCode.MatchString(in.Currency) {
		errs = append(errs, FieldError{Field: "currency", Message: "must be a 3-letter code"})
	}
	if strings.TrimSpace(in.Category) == "" {
		errs = append(errs, FieldError{Field: "category", Message: "required"})
	}
	if strings.TrimSpace(in.Description) == "" {
		errs = append(errs, FieldError{Field: "description", Message: "required"})
	}
	if in.Date.IsZero() {
		errs = append(errs, FieldError{Field: "date", Message: "required"})
	}
	if in.Rule != nil {
		var ve *ValidationError
		if err := in.Rule.Validate(); errors.As(err, &ve) {
			errs = append(errs, ve.Errors...)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Submit validates the input, builds the approver chain and stores the
// expense as Pending at step 1.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Expense, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.Currency = strings.ToUpper(in.Currency)

	employee, err := s.Directory.ResolveUser(ctx, in.EmployeeID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, NewValidationError("employee_id", "unknown employee")
	}
	if err != nil {
		return nil, &DependencyError{Dependency: "directory", Op: "resolve employee", Err: err}
	}

	if in.Rule != nil && in.Rule.hasSpecific() {
		_, err := s.Directory.ResolveUser(ctx, in.Rule.SpecificApproverID)
		if errors.Is(err, ErrUserNotFound) {
			return nil, NewValidationError("approval_rule.specific_approver_id", "unknown user")
		}
		if err != nil {
			return nil, &DependencyError{Dependency: "directory", Op: "resolve specific approver", Err: err}
		}
	}

	managerID, err := s.Directory.ResolveManager(ctx, employee.ID)
	if err != nil {
		return nil, &DependencyError{Dependency: "directory", Op: "resolve manager", Err: err}
	}

	conv, err := s.Converter.ConvertToBase(ctx, in.Amount, in.Currency)
	if errors.Is(err, currency.ErrUnsupportedCurrency) {
		return nil, NewValidationError("currency", fmt.Sprintf("unsupported currency %s", in.Currency))
	}
	if err != nil {
		s.Log.Warn().Err(err).Str("currency", in.Currency).Msg("Currency conversion failed")
		return nil, &DependencyError{Dependency: "currency", Op: "convert", Err: err}
	}
	if conv.Source == currency.SourceStatic {
		s.Log.Warn().Str("currency", in.Currency).Msg("Expense normalized with static fallback rates")
	}

	steps := BuildChain(managerID, conv.Amount, s.Routing)
	if in.Rule != nil && in.Rule.hasSpecific() {
		steps = WithApprover(steps, in.Rule.SpecificApproverID)
	}
	if err := ValidateChain(steps); err != nil {
		return nil, err
	}

	now := s.Now()
	e := &Expense{
		ID:              s.NewID(),
		EmployeeID:      employee.ID,
		EmployeeName:    employee.Name,
		Description:     strings.TrimSpace(in.Description),
		Category:        strings.TrimSpace(in.Category),
		Vendor:          in.Vendor,
		ReceiptURL:      in.ReceiptURL,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Date:            in.Date,
		ConvertedAmount: conv.Amount,
		RateSource:      conv.Source,
		Approvers:       steps,
		ApprovalRule:    in.Rule,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if len(steps) == 0 {
		e.Status = StatusApproved
		e.History = []HistoryEntry{{Status: "Approved (no approvers required)", Timestamp: now, Actor: "System"}}
	} else {
		first := steps[0].Step
		e.Status = StatusPending
		e.CurrentApproverStep = &first
		e.History = []HistoryEntry{{Status: string(StatusPending), Timestamp: now, Actor: "System"}}
	}

	if err := s.Expenses.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}

	s.Log.Info().
		Str("expense_id", e.ID).
		Str("employee_id", e.EmployeeID).
		Str("amount", e.Amount.String()).
		Str("currency", e.Currency).
		Str("normalized", e.ConvertedAmount.String()).
		Int("steps", len(steps)).
		Msg("Expense submitted")
	return e, nil
}

// =============================================================================
// DECISIONS
// =============================================================================

// RecordDecision applies an approval or rejection by actorID.
func (s *Service) RecordDecision(ctx context.Context, expenseID, actorID string, decision Decision, comments string) (*Expense, error) {
	if !decision.IsValid() {
		return nil, NewValidationError("decision", fmt.Sprintf("unknown decision %q", decision))
	}

	actor, err := s.Directory.ResolveUser(ctx, actorID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, &AuthorizationError{ExpenseID: expenseID, ActorID: actorID, Cause: err}
	}
	if err != nil {
		return nil, &DependencyError{Dependency: "directory", Op: "resolve actor", Err: err}
	}

	var outcome Outcome
	updated, err := s.Expenses.Update(ctx, expenseID, func(e *Expense) error {
		if e.Status != StatusPending || e.CurrentApproverStep == nil {
			return &StateError{ExpenseID: e.ID, Status: e.Status}
		}
		current := *e.CurrentApproverStep

		idx := actorStepIndex(e, actorID)
		if idx < 0 {
			return &AuthorizationError{ExpenseID: e.ID, ActorID: actorID, Step: &current}
		}

		now := s.Now()
		step := &e.Approvers[idx]
		step.ActedAt = &now
		step.Comments = comments
		e.UpdatedAt = now

		if decision == DecisionReject {
			step.Status = StepRejected
			e.History = append(e.History, HistoryEntry{Status: "Rejected", Timestamp: now, Actor: actor.Name, Comments: comments})
			reason := comments
			e.Status = StatusRejected
			e.RejectionReason = &reason
			e.CurrentApproverStep = nil
			outcome = Outcome{Status: StatusRejected, Reason: "rejected by approver"}
			return nil
		}

		step.Status = StepApproved
		e.History = append(e.History, HistoryEntry{Status: "Approved by " + actor.Name, Timestamp: now, Actor: actor.Name, Comments: comments})

		outcome = Evaluate(Evaluation{
			Approvers:   e.Approvers,
			Rule:        e.ApprovalRule,
			CurrentStep: current,
			ActedStep:   step.Step,
			ActorID:     actorID,
			Exhausted:   s.Exhausted,
		})
		e.Status = outcome.Status
		e.CurrentApproverStep = outcome.NextStep

		if outcome.Status == StatusRejected {
			reason := outcome.Reason
			e.RejectionReason = &reason
			e.History = append(e.History, HistoryEntry{Status: "Rejected", Timestamp: now, Actor: "System", Comments: reason})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("expense_id", updated.ID).
		Str("actor_id", actorID).
		Str("decision", string(decision)).
		Str("status", string(updated.Status)).
		Str("reason", outcome.Reason).
		Msg("Decision recorded")
	return updated, nil
}

// actorStepIndex finds the step the actor acts on. Without a rule only the
// current step counts. With a rule the actor's current step is preferred,
// otherwise their first pending step anywhere in the chain.
func actorStepIndex(e *Expense, actorID string) int {
	cur := e.StepByNumber(*e.CurrentApproverStep)
	if cur >= 0 && e.Approvers[cur].ApproverID == actorID && e.Approvers[cur].Status == StepPending {
		return cur
	}
	if e.ApprovalRule == nil {
		return -1
	}
	for i, a := range e.Approvers {
		if a.ApproverID == actorID && a.Status == StepPending {
			return i
		}
	}
	return -1
}

// =============================================================================
// QUERIES
// =============================================================================

// GetByID returns the expense with approver names filled in.
func (s *Service) GetByID(ctx context.Context, id string) (*Expense, error) {
	e, err := s.Expenses.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.populateNames(ctx, e)
	return e, nil
}

// ListPendingFor returns Pending expenses whose current step userID holds.
func (s *Service) ListPendingFor(ctx context.Context, userID string) ([]*Expense, error) {
	all, err := s.Expenses.List(ctx, ExpenseFilter{ApproverID: userID, Status: StatusPending})
	if err != nil {
		return nil, err
	}
	out := make([]*Expense, 0, len(all))
	for _, e := range all {
		if e.IsAwaiting(userID) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListForEmployee returns the employee's expenses, newest first.
func (s *Service) ListForEmployee(ctx context.Context, employeeID string) ([]*Expense, error) {
	return s.Expenses.List(ctx, ExpenseFilter{EmployeeID: employeeID})
}

// ListForApprover returns every expense with userID in the chain, any status.
func (s *Service) ListForApprover(ctx context.Context, userID string) ([]*Expense, error) {
	return s.Expenses.List(ctx, ExpenseFilter{ApproverID: userID})
}

func (s *Service) populateNames(ctx context.Context, e *Expense) {
	for i := range e.Approvers {
		u, err := s.Directory.ResolveUser(ctx, e.Approvers[i].ApproverID)
		if err != nil {
			e.Approvers[i].ApproverName = "Unknown Approver"
			continue
		}
		e.Approvers[i].ApproverName = u.Name
	}
}
