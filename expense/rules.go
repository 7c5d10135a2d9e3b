/*
rules.go - Approval rule evaluation

PURPOSE:
  Decides, after an approval has been recorded on a step, whether the
  expense is now Approved or stays Pending (and at which step). Evaluate is
  a pure function of the chain, the rule, and who acted where.

PRECEDENCE:
  1. Specific approver (SpecificApprover / Hybrid): the designated approver
     approving resolves the expense, wherever their step sits in the chain.
  2. Percentage (Percentage / Hybrid): ceil(N * pct / 100) approved steps
     resolve the expense. The approval just recorded counts.
  3. No rule: sequential. The last step approving resolves the expense.
  4. Rule present but unmet: advance to the next pending step after the
     current one. An out-of-sequence approval leaves the current step as is.

EXHAUSTED CHAINS:
  With a rule, the chain can run out of pending steps before the rule is
  met (e.g. 100% required but an approver was skipped by an earlier
  out-of-sequence action, or the last step approves short of quorum).
  ExhaustedPolicy decides what happens:
    hold    - stay Pending with no current step; nobody can act again
    approve - treat the exhausted chain as approval
    reject  - reject with "approval rule not satisfied"

  Rejections never reach Evaluate; they are terminal in the lifecycle.
*/
package expense

import "fmt"

// ExhaustedPolicy decides the outcome when a rule-governed chain runs out
// of pending steps without the rule being met.
type ExhaustedPolicy string

const (
	ExhaustedHold    ExhaustedPolicy = "hold"
	ExhaustedApprove ExhaustedPolicy = "approve"
	ExhaustedReject  ExhaustedPolicy = "reject"
)

func (p ExhaustedPolicy) IsValid() bool {
	switch p {
	case ExhaustedHold, ExhaustedApprove, ExhaustedReject:
		return true
	}
	return false
}

// Outcome is the result of evaluating an approval.
type Outcome struct {
	Status   Status
	NextStep *int   // set only when Status is Pending and someone can act
	Reason   string // why the outcome was reached, for logs and rejection
}

// Evaluation holds the inputs of Evaluate.
type Evaluation struct {
	Approvers   []ApprovalStep // including the approval just recorded
	Rule        *ApprovalRule
	CurrentStep int
	ActedStep   int
	ActorID     string
	Exhausted   ExhaustedPolicy
}

// Evaluate returns the new status for an expense after an approval.
func Evaluate(in Evaluation) Outcome {
	if len(in.Approvers) == 0 {
		return Outcome{Status: StatusApproved, Reason: "no approvers required"}
	}

	currentIdx := indexOfStep(in.Approvers, in.CurrentStep)
	rule := in.Rule

	if rule == nil {
		if currentIdx == len(in.Approvers)-1 {
			return Outcome{Status: StatusApproved, Reason: "last step approved"}
		}
		next := in.Approvers[currentIdx+1].Step
		return Outcome{Status: StatusPending, NextStep: &next, Reason: "sequential"}
	}

	if rule.hasSpecific() && rule.SpecificApproverID == in.ActorID {
		return Outcome{Status: StatusApproved, Reason: "specific approver approved"}
	}

	if rule.hasPercentage() {
		required := RequiredApprovals(len(in.Approvers), rule.Percentage)
		if approved := countApproved(in.Approvers); approved >= required {
			return Outcome{
				Status: StatusApproved,
				Reason: fmt.Sprintf("%d of %d approvals reached %d%%", approved, len(in.Approvers), rule.Percentage),
			}
		}
	}

	if in.ActedStep != in.CurrentStep && currentIdx >= 0 && in.Approvers[currentIdx].Status == StepPending {
		current := in.CurrentStep
		return Outcome{Status: StatusPending, NextStep: &current, Reason: "approved out of sequence"}
	}

	for i := currentIdx + 1; i < len(in.Approvers); i++ {
		if in.Approvers[i].Status == StepPending {
			next := in.Approvers[i].Step
			return Outcome{Status: StatusPending, NextStep: &next, Reason: "rule not yet met"}
		}
	}

	switch in.Exhausted {
	case ExhaustedApprove:
		return Outcome{Status: StatusApproved, Reason: "approver chain exhausted"}
	case ExhaustedReject:
		return Outcome{Status: StatusRejected, Reason: "approval rule not satisfied"}
	default:
		return Outcome{Status: StatusPending, Reason: "approver chain exhausted, rule not met"}
	}
}

// RequiredApprovals returns ceil(total * percentage / 100) using integer math.
func RequiredApprovals(total, percentage int) int {
	return (total*percentage + 99) / 100
}

func countApproved(steps []ApprovalStep) int {
	n := 0
	for _, s := range steps {
		if s.Status == StepApproved {
			n++
		}
	}
	return n
}

func indexOfStep(steps []ApprovalStep, step int) int {
	for i, s := range steps {
		if s.Step == step {
			return i
		}
	}
	return -1
}
