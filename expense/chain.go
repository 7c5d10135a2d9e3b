/*
chain.go - Approval chain construction

PURPOSE:
  Builds the ordered approver chain for a newly submitted expense from the
  submitter's manager (if any) and the expense amount in the base currency.
  BuildChain is pure: no I/O, no clock, no directory lookups.

ROUTING:
  manager?  ──▶  [finance if > FinanceThreshold]  ──▶  admin  ──▶  [director if > DirectorThreshold]

  Employee with manager, 100 USD:   [Manager, Admin]
  Employee with manager, 600 USD:   [Manager, Finance, Admin]
  Employee with manager, 1500 USD:  [Manager, Finance, Admin, Director]
  No manager, 50 USD:               [Admin]
  No manager, 1500 USD:             [Admin, Finance, Director]

  Thresholds are exclusive: exactly 500 does not involve finance.
  Without a manager the admin step moves to the front; every other step
  keeps its relative order.

SEE ALSO:
  - lifecycle.go: Converts the amount and calls BuildChain on submit
  - config/config.go: Where RoutingConfig values come from
*/
package expense

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RoutingConfig holds the approvers and thresholds used to build chains.
type RoutingConfig struct {
	AdminApproverID    string
	FinanceApproverID  string
	DirectorApproverID string

	// Amounts in BaseCurrency. An amount must exceed a threshold to escalate.
	FinanceThreshold  decimal.Decimal
	DirectorThreshold decimal.Decimal
	BaseCurrency      string
}

// DefaultRoutingConfig matches the demo organization.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		AdminApproverID:    "usr_admin",
		FinanceApproverID:  "usr_finance",
		DirectorApproverID: "usr_director",
		FinanceThreshold:   decimal.NewFromInt(500),
		DirectorThreshold:  decimal.NewFromInt(1000),
		BaseCurrency:       "USD",
	}
}

// BuildChain returns the approval steps for an expense, numbered 1..N.
// managerID may be empty.
func BuildChain(managerID string, normalized decimal.Decimal, cfg RoutingConfig) []ApprovalStep {
	var steps []ApprovalStep

	if managerID != "" {
		steps = append(steps, pendingStep(managerID))
	}

	steps = append(steps, pendingStep(cfg.AdminApproverID))
	adminIdx := len(steps) - 1

	if normalized.GreaterThan(cfg.FinanceThreshold) {
		steps = insertAt(steps, adminIdx, pendingStep(cfg.FinanceApproverID))
		adminIdx++
	}

	if normalized.GreaterThan(cfg.DirectorThreshold) {
		steps = append(steps, pendingStep(cfg.DirectorApproverID))
	}

	if managerID == "" && adminIdx > 0 {
		admin := steps[adminIdx]
		steps = insertAt(append(steps[:adminIdx:adminIdx], steps[adminIdx+1:]...), 0, admin)
	}

	renumber(steps)
	return steps
}

// WithApprover appends a pending step for approverID unless the chain
// already has one.
func WithApprover(steps []ApprovalStep, approverID string) []ApprovalStep {
	for _, s := range steps {
		if s.ApproverID == approverID {
			return steps
		}
	}
	steps = append(steps, pendingStep(approverID))
	renumber(steps)
	return steps
}

// ValidateChain checks that steps are numbered 1..N in order.
func ValidateChain(steps []ApprovalStep) error {
	for i, s := range steps {
		if s.Step != i+1 {
			return fmt.Errorf("%w: position %d has step %d", ErrInvalidChain, i, s.Step)
		}
		if s.ApproverID == "" {
			return fmt.Errorf("%w: step %d has no approver", ErrInvalidChain, s.Step)
		}
	}
	return nil
}

func pendingStep(approverID string) ApprovalStep {
	return ApprovalStep{ApproverID: approverID, Status: StepPending}
}

func insertAt(steps []ApprovalStep, i int, s ApprovalStep) []ApprovalStep {
	steps = append(steps, ApprovalStep{})
	copy(steps[i+1:], steps[i:])
	steps[i] = s
	return steps
}

func renumber(steps []ApprovalStep) {
	for i := range steps {
		steps[i].Step = i + 1
	}
}
