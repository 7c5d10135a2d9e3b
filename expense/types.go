/*
Package expense provides the expense approval-routing engine.

PURPOSE:
  Employees submit expenses; each expense is routed through an ordered chain of
  approvers (manager, finance, admin, director) built from the submitter's
  position in the organization and the expense amount normalized to the base
  currency. Every approval or rejection is evaluated against the expense's
  approval rule to decide whether it advances, completes, or is rejected.

KEY CONCEPTS IN THIS FILE (types.go):
  - User / Role:     Directory facts the router needs (who manages whom)
  - Expense:         The routed entity, owning its approvers and history
  - ApprovalStep:    One position in the approver chain
  - ApprovalRule:    Optional policy overriding pure sequential approval
  - HistoryEntry:    Append-only audit trail of transitions

STATE MACHINE:
  ┌────────┐ submit ┌─────────┐  approve (last / rule met)  ┌──────────┐
  │ Draft  │ ─────▶ │ Pending │ ──────────────────────────▶ │ Approved │
  └────────┘        └─────────┘                             └──────────┘
                      │    ▲
                      │    └── approve (advance to next step)
                      │ reject                              ┌──────────┐
                      └───────────────────────────────────▶ │ Rejected │
                                                            └──────────┘

DESIGN PRINCIPLES:
  1. Pure routing: BuildChain and Evaluate take inputs and return values
  2. Precision: amounts use decimal.Decimal, never float64
  3. Ownership: an Expense owns its Approvers and History; users are
     referenced by id only
  4. Atomicity: every transition is applied to a copy and committed whole

SEE ALSO:
  - chain.go:     Approval chain construction
  - rules.go:     Approval rule evaluation
  - lifecycle.go: Submit / RecordDecision orchestration
  - store.go:     Persistence interfaces
*/
package expense

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/currency"
)

// =============================================================================
// USERS
// =============================================================================

type Role string

const (
	RoleEmployee Role = "Employee"
	RoleManager  Role = "Manager"
	RoleAdmin    Role = "Admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// CanApprove reports whether users with this role may be assigned as managers.
func (r Role) CanApprove() bool {
	return r == RoleManager || r == RoleAdmin
}

// User is an organization member. Only employees carry a ManagerID.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	ManagerID string
}

// =============================================================================
// EXPENSE
// =============================================================================

type Status string

const (
	StatusDraft    Status = "Draft"
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// IsTerminal returns true for states that permit no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type StepStatus string

const (
	StepPending  StepStatus = "Pending"
	StepApproved StepStatus = "Approved"
	StepRejected StepStatus = "Rejected"
)

// ApprovalStep is one position in an expense's approver chain.
// It is created Pending and mutated exactly once when its approver acts.
type ApprovalStep struct {
	Step         int
	ApproverID   string
	ApproverName string // populated on read, not persisted
	Status       StepStatus
	ActedAt      *time.Time
	Comments     string
}

// HistoryEntry is an append-only record of a transition.
type HistoryEntry struct {
	Status    string // free-form label, e.g. "Approved by Michael Smith"
	Timestamp time.Time
	Actor     string
	Comments  string
}

type Expense struct {
	ID           string
	EmployeeID   string
	EmployeeName string
	Description  string
	Category     string
	Vendor       string
	ReceiptURL   string

	// Original amount as submitted.
	Amount   decimal.Decimal
	Currency string
	Date     time.Time

	// Amount in the base currency, used for threshold decisions.
	ConvertedAmount decimal.Decimal
	RateSource      currency.Source

	// Workflow
	Status              Status
	CurrentApproverStep *int
	Approvers           []ApprovalStep
	ApprovalRule        *ApprovalRule
	History             []HistoryEntry
	RejectionReason     *string

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StepByNumber returns the index of the step with the given number, or -1.
func (e *Expense) StepByNumber(step int) int {
	for i, a := range e.Approvers {
		if a.Step == step {
			return i
		}
	}
	return -1
}

// IsAwaiting reports whether userID holds the step currently awaiting action.
func (e *Expense) IsAwaiting(userID string) bool {
	if e.Status != StatusPending || e.CurrentApproverStep == nil {
		return false
	}
	i := e.StepByNumber(*e.CurrentApproverStep)
	return i >= 0 && e.Approvers[i].ApproverID == userID && e.Approvers[i].Status == StepPending
}

// HasApprover reports whether userID appears anywhere in the chain.
func (e *Expense) HasApprover(userID string) bool {
	for _, a := range e.Approvers {
		if a.ApproverID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Stores hand out clones so callers never alias
// the committed record.
func (e *Expense) Clone() *Expense {
	c := *e
	c.Approvers = make([]ApprovalStep, len(e.Approvers))
	for i, a := range e.Approvers {
		c.Approvers[i] = a
		if a.ActedAt != nil {
			t := *a.ActedAt
			c.Approvers[i].ActedAt = &t
		}
	}
	c.History = append([]HistoryEntry(nil), e.History...)
	if e.CurrentApproverStep != nil {
		s := *e.CurrentApproverStep
		c.CurrentApproverStep = &s
	}
	if e.ApprovalRule != nil {
		r := *e.ApprovalRule
		c.ApprovalRule = &r
	}
	if e.RejectionReason != nil {
		r := *e.RejectionReason
		c.RejectionReason = &r
	}
	return &c
}

// =============================================================================
// APPROVAL RULE
// =============================================================================

type RuleType string

const (
	RuleSpecificApprover RuleType = "SpecificApprover"
	RulePercentage       RuleType = "Percentage"
	RuleHybrid           RuleType = "Hybrid"
)

// ApprovalRule overrides pure sequential approval. A nil rule means the
// expense resolves only when the last step approves.
type ApprovalRule struct {
	Type               RuleType
	Percentage         int // 1..100, e.g. 60 for 60%
	SpecificApproverID string
}

func (r *ApprovalRule) hasSpecific() bool {
	return (r.Type == RuleSpecificApprover || r.Type == RuleHybrid) && r.SpecificApproverID != ""
}

func (r *ApprovalRule) hasPercentage() bool {
	return (r.Type == RulePercentage || r.Type == RuleHybrid) && r.Percentage > 0
}

// Validate checks the rule is internally consistent.
func (r *ApprovalRule) Validate() error {
	var errs []FieldError
	switch r.Type {
	case RuleSpecificApprover:
		if r.SpecificApproverID == "" {
			errs = append(errs, FieldError{Field: "approval_rule.specific_approver_id", Message: "required for SpecificApprover rule"})
		}
	case RulePercentage:
		if r.Percentage < 1 || r.Percentage > 100 {
			errs = append(errs, FieldError{Field: "approval_rule.percentage", Message: "must be between 1 and 100"})
		}
	case RuleHybrid:
		if r.SpecificApproverID == "" {
			errs = append(errs, FieldError{Field: "approval_rule.specific_approver_id", Message: "required for Hybrid rule"})
		}
		if r.Percentage < 1 || r.Percentage > 100 {
			errs = append(errs, FieldError{Field: "approval_rule.percentage", Message: "must be between 1 and 100"})
		}
	default:
		errs = append(errs, FieldError{Field: "approval_rule.type", Message: fmt.Sprintf("unknown rule type %q", r.Type)})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// =============================================================================
// DECISION
// =============================================================================

type Decision string

const (
	DecisionApprove Decision = "Approve"
	DecisionReject  Decision = "Reject"
)

func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// =============================================================================
// NOTIFICATION
// =============================================================================

// Notification is a per-user message derived from expense state.
type Notification struct {
	ID        string
	UserID    string
	ExpenseID string
	Message   string
	Timestamp time.Time
	Read      bool
}
