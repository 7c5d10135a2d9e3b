package expense_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/expense-engine/currency"
	"github.com/warp/expense-engine/expense"
	"github.com/warp/expense-engine/expense/store"
	"github.com/warp/expense-engine/factory"
)

// =============================================================================
// FIXTURE
// =============================================================================

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Memory
	dir   *expense.UserDirectory
	svc   *expense.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	users := []expense.User{
		{ID: "usr_employee", Name: "Sarah Johnson", Role: expense.RoleEmployee, ManagerID: "usr_manager"},
		{ID: "usr_loner", Name: "Lone Wolf", Role: expense.RoleEmployee},
		{ID: "usr_manager", Name: "Michael Smith", Role: expense.RoleManager},
		{ID: "usr_admin", Name: "David Chen", Role: expense.RoleAdmin},
		{ID: "usr_finance", Name: "Finance Team", Role: expense.RoleAdmin},
		{ID: "usr_director", Name: "Company Director", Role: expense.RoleAdmin},
		{ID: "usr_cfo", Name: "CFO", Role: expense.RoleAdmin},
	}
	for _, u := range users {
		require.NoError(t, mem.SaveUser(ctx, u))
	}

	log := zerolog.Nop()
	dir := expense.NewUserDirectory(mem, log)
	conv := currency.NewConverter(currency.NewStaticSource(), currency.Options{Mode: currency.ModeStrict, Logger: log})
	svc := expense.NewService(mem, dir, conv, expense.DefaultRoutingConfig(), log)
	svc.Now = func() time.Time { return fixedNow }

	var mu sync.Mutex
	n := 0
	svc.NewID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("EXP%03d", n)
	}

	return &fixture{store: mem, dir: dir, svc: svc}
}

func (f *fixture) submit(t *testing.T, employee, amount, cur string, rule *expense.ApprovalRule) *expense.Expense {
	t.Helper()
	e, err := f.svc.Submit(context.Background(), expense.SubmitInput{
		EmployeeID:  employee,
		Amount:      decimal.RequireFromString(amount),
		Currency:    cur,
		Category:    "Travel",
		Date:        fixedNow,
		Description: "Trip to Berlin",
		Rule:        rule,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) decide(t *testing.T, id, actor string, d expense.Decision) *expense.Expense {
	t.Helper()
	e, err := f.svc.RecordDecision(context.Background(), id, actor, d, "")
	require.NoError(t, err)
	return e
}

func ids(steps []expense.ApprovalStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ApproverID
	}
	return out
}

func labels(h []expense.HistoryEntry) []string {
	out := make([]string, len(h))
	for i, e := range h {
		out[i] = e.Status
	}
	return out
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_SmallExpenseWithManager(t *testing.T) {
	f := newFixture(t)

	// WHEN: Sarah submits 100 USD
	e := f.submit(t, "usr_employee", "100", "USD", nil)

	// THEN: Manager then admin, pending at step 1
	assert.Equal(t, []string{"usr_manager", "usr_admin"}, ids(e.Approvers))
	assert.Equal(t, expense.StatusPending, e.Status)
	require.NotNil(t, e.CurrentApproverStep)
	assert.Equal(t, 1, *e.CurrentApproverStep)
	assert.Equal(t, "Sarah Johnson", e.EmployeeName)
	assert.True(t, decimal.NewFromInt(100).Equal(e.ConvertedAmount))
	assert.Equal(t, currency.SourceLive, e.RateSource)

	require.Len(t, e.History, 1)
	assert.Equal(t, expense.HistoryEntry{Status: "Pending", Timestamp: fixedNow, Actor: "System"}, e.History[0])
}

func TestSubmit_ConvertsBeforeRouting(t *testing.T) {
	f := newFixture(t)

	// GIVEN: 250 EUR is 271.74 USD; 480 EUR is 521.74 USD
	small := f.submit(t, "usr_employee", "250", "eur", nil)
	large := f.submit(t, "usr_employee", "480", "EUR", nil)

	// THEN: Only the larger one involves finance
	assert.Equal(t, "EUR", small.Currency)
	assert.Equal(t, "271.74", small.ConvertedAmount.StringFixed(2))
	assert.Equal(t, []string{"usr_manager", "usr_admin"}, ids(small.Approvers))

	assert.Equal(t, "521.74", large.ConvertedAmount.StringFixed(2))
	assert.Equal(t, []string{"usr_manager", "usr_finance", "usr_admin"}, ids(large.Approvers))
}

func TestSubmit_NoManagerLargeAmount(t *testing.T) {
	f := newFixture(t)

	e := f.submit(t, "usr_loner", "1500", "USD", nil)

	assert.Equal(t, []string{"usr_admin", "usr_finance", "usr_director"}, ids(e.Approvers))
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    expense.SubmitInput
		field string
	}{
		{"negative amount", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.NewFromInt(-5), Currency: "USD", Category: "x", Description: "x", Date: fixedNow}, "amount"},
		{"zero amount", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.Zero, Currency: "USD", Category: "x", Description: "x", Date: fixedNow}, "amount"},
		{"malformed currency", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.NewFromInt(5), Currency: "US", Category: "x", Description: "x", Date: fixedNow}, "currency"},
		{"unsupported currency", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.NewFromInt(5), Currency: "XYZ", Category: "x", Description: "x", Date: fixedNow}, "currency"},
		{"missing category", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.NewFromInt(5), Currency: "USD", Description: "x", Date: fixedNow}, "category"},
		{"missing description", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.NewFromInt(5), Currency: "USD", Category: "x", Date: fixedNow}, "description"},
		{"missing date", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.NewFromInt(5), Currency: "USD", Category: "x", Description: "x"}, "date"},
		{"unknown employee", expense.SubmitInput{EmployeeID: "usr_ghost", Amount: decimal.NewFromInt(5), Currency: "USD", Category: "x", Description: "x", Date: fixedNow}, "employee_id"},
		{"unknown specific approver", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.NewFromInt(5), Currency: "USD", Category: "x", Description: "x", Date: fixedNow, Rule: &expense.ApprovalRule{Type: expense.RuleSpecificApprover, SpecificApproverID: "usr_cfoo"}}, "approval_rule.specific_approver_id"},
		{"invalid rule", expense.SubmitInput{EmployeeID: "usr_employee", Amount: decimal.NewFromInt(5), Currency: "USD", Category: "x", Description: "x", Date: fixedNow, Rule: &expense.ApprovalRule{Type: expense.RulePercentage, Percentage: 0}}, "approval_rule.percentage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.in)
			require.ErrorIs(t, err, expense.ErrValidation)

			var ve *expense.ValidationError
			require.ErrorAs(t, err, &ve)
			fields := make([]string, len(ve.Errors))
			for i, fe := range ve.Errors {
				fields[i] = fe.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	// THEN: Nothing was persisted
	all, err := f.store.List(ctx, expense.ExpenseFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

type failingConverter struct{ err error }

func (c failingConverter) ConvertToBase(context.Context, decimal.Decimal, string) (currency.Conversion, error) {
	return currency.Conversion{}, c.err
}

func TestSubmit_ConversionFailureIsDependencyError(t *testing.T) {
	// GIVEN: A converter whose rate source is down
	f := newFixture(t)
	f.svc.Converter = failingConverter{err: currency.ErrRatesUnavailable}

	// WHEN: Submitting
	_, err := f.svc.Submit(context.Background(), expense.SubmitInput{
		EmployeeID: "usr_employee", Amount: decimal.NewFromInt(10), Currency: "EUR",
		Category: "x", Description: "x", Date: fixedNow,
	})

	// THEN: Dependency failure, retryable, nothing stored
	require.ErrorIs(t, err, expense.ErrDependency)
	assert.ErrorIs(t, err, currency.ErrRatesUnavailable)
	assert.True(t, expense.IsRetryable(err))
	all, _ := f.store.List(context.Background(), expense.ExpenseFilter{})
	assert.Empty(t, all)
}

func TestSubmit_FallbackRatesAreMarked(t *testing.T) {
	f := newFixture(t)
	f.svc.Converter = currency.NewConverter(downSource{}, currency.Options{Mode: currency.ModeFallback, Logger: zerolog.Nop()})

	e := f.submit(t, "usr_employee", "100", "GBP", nil)

	assert.Equal(t, currency.SourceStatic, e.RateSource)
	assert.Equal(t, "126.58", e.ConvertedAmount.StringFixed(2))
}

type downSource struct{}

func (downSource) FetchRates(context.Context, string) (currency.Rates, error) {
	return nil, errors.New("connection refused")
}

// =============================================================================
// DECISIONS
// =============================================================================

func TestRecordDecision_SequentialApproval(t *testing.T) {
	f := newFixture(t)
	e := f.submit(t, "usr_employee", "100", "USD", nil)

	// WHEN: Manager approves
	e = f.decide(t, e.ID, "usr_manager", expense.DecisionApprove)

	// THEN: Pending at step 2
	assert.Equal(t, expense.StatusPending, e.Status)
	require.NotNil(t, e.CurrentApproverStep)
	assert.Equal(t, 2, *e.CurrentApproverStep)
	assert.Equal(t, expense.StepApproved, e.Approvers[0].Status)
	require.NotNil(t, e.Approvers[0].ActedAt)

	// WHEN: Admin approves
	e = f.decide(t, e.ID, "usr_admin", expense.DecisionApprove)

	// THEN: Approved with full history
	assert.Equal(t, expense.StatusApproved, e.Status)
	assert.Nil(t, e.CurrentApproverStep)
	assert.Equal(t, []string{"Pending", "Approved by Michael Smith", "Approved by David Chen"}, labels(e.History))
	assert.Equal(t, 3, e.Version)
}

func TestRecordDecision_DirectorRejectsLargeExpense(t *testing.T) {
	// GIVEN: 1500 USD routed through all four approvers
	f := newFixture(t)
	e := f.submit(t, "usr_employee", "1500", "USD", nil)
	require.Equal(t, []string{"usr_manager", "usr_finance", "usr_admin", "usr_director"}, ids(e.Approvers))

	// WHEN: The first three approve and the director rejects
	for _, actor := range []string{"usr_manager", "usr_finance", "usr_admin"} {
		f.decide(t, e.ID, actor, expense.DecisionApprove)
	}
	e, err := f.svc.RecordDecision(context.Background(), e.ID, "usr_director", expense.DecisionReject, "Too expensive")

	// THEN: Rejected with reason and no current step
	require.NoError(t, err)
	assert.Equal(t, expense.StatusRejected, e.Status)
	assert.Nil(t, e.CurrentApproverStep)
	require.NotNil(t, e.RejectionReason)
	assert.Equal(t, "Too expensive", *e.RejectionReason)
	assert.Len(t, e.History, 5)
}

func TestRecordDecision_SingleAdminStep(t *testing.T) {
	// GIVEN: No manager, 50 USD
	f := newFixture(t)
	e := f.submit(t, "usr_loner", "50", "USD", nil)
	require.Equal(t, []string{"usr_admin"}, ids(e.Approvers))

	// WHEN: The admin approves
	e = f.decide(t, e.ID, "usr_admin", expense.DecisionApprove)

	// THEN: Approved
	assert.Equal(t, expense.StatusApproved, e.Status)
	assert.Nil(t, e.CurrentApproverStep)
}

func TestRecordDecision_Reject(t *testing.T) {
	f := newFixture(t)
	e := f.submit(t, "usr_employee", "600", "USD", nil)

	// WHEN: Manager rejects with a reason
	e, err := f.svc.RecordDecision(context.Background(), e.ID, "usr_manager", expense.DecisionReject, "Missing receipt")
	require.NoError(t, err)

	// THEN: Terminal, reason recorded, no current step
	assert.Equal(t, expense.StatusRejected, e.Status)
	require.NotNil(t, e.RejectionReason)
	assert.Equal(t, "Missing receipt", *e.RejectionReason)
	assert.Nil(t, e.CurrentApproverStep)
	assert.Equal(t, expense.StepRejected, e.Approvers[0].Status)
	assert.Equal(t, "Missing receipt", e.Approvers[0].Comments)
	assert.Equal(t, []string{"Pending", "Rejected"}, labels(e.History))

	// AND: Further action is refused
	_, err = f.svc.RecordDecision(context.Background(), e.ID, "usr_finance", expense.DecisionApprove, "")
	assert.ErrorIs(t, err, expense.ErrNotActionable)
	var se *expense.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, expense.StatusRejected, se.Status)
}

func TestRecordDecision_WrongActorLeavesExpenseUntouched(t *testing.T) {
	f := newFixture(t)
	e := f.submit(t, "usr_employee", "100", "USD", nil)

	// WHEN: Admin tries to act on step 1 (held by the manager)
	_, err := f.svc.RecordDecision(context.Background(), e.ID, "usr_admin", expense.DecisionApprove, "")

	// THEN: Unauthorized and nothing changed
	require.ErrorIs(t, err, expense.ErrUnauthorized)
	assert.True(t, expense.IsClientError(err))
	var ae *expense.AuthorizationError
	require.ErrorAs(t, err, &ae)
	require.NotNil(t, ae.Step)
	assert.Equal(t, 1, *ae.Step)

	stored, err := f.svc.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Len(t, stored.History, 1)
	assert.Equal(t, expense.StepPending, stored.Approvers[1].Status)
}

func TestRecordDecision_UnknownActorAndExpense(t *testing.T) {
	f := newFixture(t)
	e := f.submit(t, "usr_employee", "100", "USD", nil)

	_, err := f.svc.RecordDecision(context.Background(), e.ID, "usr_ghost", expense.DecisionApprove, "")
	assert.ErrorIs(t, err, expense.ErrUnauthorized)
	assert.ErrorIs(t, err, expense.ErrUserNotFound)
	assert.NotContains(t, err.Error(), "not found")

	_, err = f.svc.RecordDecision(context.Background(), "nope", "usr_manager", expense.DecisionApprove, "")
	assert.ErrorIs(t, err, expense.ErrExpenseNotFound)
	assert.True(t, expense.IsNotFound(err))

	_, err = f.svc.RecordDecision(context.Background(), e.ID, "usr_manager", expense.Decision("Maybe"), "")
	assert.ErrorIs(t, err, expense.ErrValidation)
}

func TestRecordDecision_SpecificApproverOutOfSequence(t *testing.T) {
	// GIVEN: Rule naming the admin, who sits at step 2
	f := newFixture(t)
	rule := &expense.ApprovalRule{Type: expense.RuleSpecificApprover, SpecificApproverID: "usr_admin"}
	e := f.submit(t, "usr_employee", "100", "USD", rule)

	// WHEN: Admin approves before the manager
	e = f.decide(t, e.ID, "usr_admin", expense.DecisionApprove)

	// THEN: Approved immediately; manager step untouched
	assert.Equal(t, expense.StatusApproved, e.Status)
	assert.Equal(t, expense.StepPending, e.Approvers[0].Status)
	assert.Equal(t, expense.StepApproved, e.Approvers[1].Status)
}

func TestRecordDecision_OutOfSequenceWithoutRuleIsRefused(t *testing.T) {
	f := newFixture(t)
	e := f.submit(t, "usr_employee", "600", "USD", nil)

	_, err := f.svc.RecordDecision(context.Background(), e.ID, "usr_finance", expense.DecisionApprove, "")

	assert.ErrorIs(t, err, expense.ErrUnauthorized)
}

func TestRecordDecision_PercentageRule(t *testing.T) {
	// GIVEN: 60% of [manager, finance, admin] = 2 approvals
	f := newFixture(t)
	rule := &expense.ApprovalRule{Type: expense.RulePercentage, Percentage: 60}
	e := f.submit(t, "usr_employee", "600", "USD", rule)

	// WHEN: Finance approves out of sequence
	e = f.decide(t, e.ID, "usr_finance", expense.DecisionApprove)

	// THEN: Still pending at the manager's step
	assert.Equal(t, expense.StatusPending, e.Status)
	require.NotNil(t, e.CurrentApproverStep)
	assert.Equal(t, 1, *e.CurrentApproverStep)

	// WHEN: Manager approves
	e = f.decide(t, e.ID, "usr_manager", expense.DecisionApprove)

	// THEN: Threshold reached
	assert.Equal(t, expense.StatusApproved, e.Status)
	assert.Equal(t, expense.StepPending, e.Approvers[2].Status)
}

// submitWithDetachedRule stores an expense whose rule names the CFO while
// the chain holds only the manager and the admin.
func (f *fixture) submitWithDetachedRule(t *testing.T) *expense.Expense {
	t.Helper()
	e := f.submit(t, "usr_employee", "100", "USD", nil)
	e, err := f.store.Update(context.Background(), e.ID, func(e *expense.Expense) error {
		e.ApprovalRule = &expense.ApprovalRule{Type: expense.RuleSpecificApprover, SpecificApproverID: "usr_cfo"}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"usr_manager", "usr_admin"}, ids(e.Approvers))
	return e
}

func TestRecordDecision_ExhaustedChain(t *testing.T) {
	t.Run("hold", func(t *testing.T) {
		f := newFixture(t)
		e := f.submitWithDetachedRule(t)
		f.decide(t, e.ID, "usr_manager", expense.DecisionApprove)
		e = f.decide(t, e.ID, "usr_admin", expense.DecisionApprove)

		assert.Equal(t, expense.StatusPending, e.Status)
		assert.Nil(t, e.CurrentApproverStep)

		_, err := f.svc.RecordDecision(context.Background(), e.ID, "usr_admin", expense.DecisionApprove, "")
		assert.ErrorIs(t, err, expense.ErrNotActionable)
	})

	t.Run("reject", func(t *testing.T) {
		f := newFixture(t)
		f.svc.Exhausted = expense.ExhaustedReject
		e := f.submitWithDetachedRule(t)
		f.decide(t, e.ID, "usr_manager", expense.DecisionApprove)
		e = f.decide(t, e.ID, "usr_admin", expense.DecisionApprove)

		assert.Equal(t, expense.StatusRejected, e.Status)
		require.NotNil(t, e.RejectionReason)
		assert.Equal(t, "approval rule not satisfied", *e.RejectionReason)
		assert.Equal(t, "Rejected", e.History[len(e.History)-1].Status)
	})

	t.Run("approve", func(t *testing.T) {
		f := newFixture(t)
		f.svc.Exhausted = expense.ExhaustedApprove
		e := f.submitWithDetachedRule(t)
		f.decide(t, e.ID, "usr_manager", expense.DecisionApprove)
		e = f.decide(t, e.ID, "usr_admin", expense.DecisionApprove)

		assert.Equal(t, expense.StatusApproved, e.Status)
	})
}

func TestSubmit_SpecificApproverJoinsChain(t *testing.T) {
	// GIVEN: 800 GBP under the CFO-or-60% preset
	f := newFixture(t)
	rule, err := factory.Preset("cfo-or-60")
	require.NoError(t, err)

	// WHEN: Submitting
	e := f.submit(t, "usr_employee", "800", "GBP", rule)

	// THEN: The CFO holds a step after the routed approvers
	assert.Equal(t, []string{"usr_manager", "usr_finance", "usr_admin", "usr_director", "usr_cfo"}, ids(e.Approvers))
	assert.Equal(t, 5, e.Approvers[4].Step)
	require.NoError(t, expense.ValidateChain(e.Approvers))

	// WHEN: The CFO approves first
	e = f.decide(t, e.ID, "usr_cfo", expense.DecisionApprove)

	// THEN: The override approves the expense
	assert.Equal(t, expense.StatusApproved, e.Status)
	assert.Nil(t, e.CurrentApproverStep)
	assert.Equal(t, expense.StepPending, e.Approvers[0].Status)
	assert.Equal(t, expense.StepApproved, e.Approvers[4].Status)
}

func TestSubmit_SpecificApproverAlreadyInChain(t *testing.T) {
	f := newFixture(t)
	rule := &expense.ApprovalRule{Type: expense.RuleSpecificApprover, SpecificApproverID: "usr_admin"}

	e := f.submit(t, "usr_employee", "100", "USD", rule)

	assert.Equal(t, []string{"usr_manager", "usr_admin"}, ids(e.Approvers))
}

func TestSubmit_CFOOverrideWalksWholeChain(t *testing.T) {
	// GIVEN: The CFO-override preset on a small expense
	f := newFixture(t)
	rule, err := factory.Preset("cfo-override")
	require.NoError(t, err)
	e := f.submit(t, "usr_employee", "100", "USD", rule)

	// WHEN: The routed approvers approve in order
	f.decide(t, e.ID, "usr_manager", expense.DecisionApprove)
	e = f.decide(t, e.ID, "usr_admin", expense.DecisionApprove)

	// THEN: The expense waits on the CFO instead of stalling
	assert.Equal(t, expense.StatusPending, e.Status)
	require.NotNil(t, e.CurrentApproverStep)
	assert.Equal(t, 3, *e.CurrentApproverStep)

	e = f.decide(t, e.ID, "usr_cfo", expense.DecisionApprove)
	assert.Equal(t, expense.StatusApproved, e.Status)
}

func TestRecordDecision_ConcurrentApprovalsSerialize(t *testing.T) {
	// GIVEN: One pending expense at the manager's step
	f := newFixture(t)
	e := f.submit(t, "usr_employee", "100", "USD", nil)

	// WHEN: The manager approves twice concurrently
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RecordDecision(context.Background(), e.ID, "usr_manager", expense.DecisionApprove, "")
		}(i)
	}
	wg.Wait()

	// THEN: Exactly one succeeds
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, expense.ErrUnauthorized)
	}
	assert.Equal(t, 1, ok)

	stored, err := f.svc.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Len(t, stored.History, 2)
	assert.Equal(t, 2, *stored.CurrentApproverStep)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.submit(t, "usr_employee", "100", "USD", nil)
	b := f.submit(t, "usr_employee", "600", "USD", nil)
	c := f.submit(t, "usr_loner", "50", "USD", nil)
	f.decide(t, a.ID, "usr_manager", expense.DecisionApprove)

	// Manager holds only b's current step
	pending, err := f.svc.ListPendingFor(ctx, "usr_manager")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	// Admin holds a (step 2) and c (step 1)
	pending, err = f.svc.ListPendingFor(ctx, "usr_admin")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, []string{pending[0].ID, pending[1].ID})

	// Approver view includes every expense with the user in the chain
	approvals, err := f.svc.ListForApprover(ctx, "usr_manager")
	require.NoError(t, err)
	assert.Len(t, approvals, 2)

	mine, err := f.svc.ListForEmployee(ctx, "usr_employee")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	got, err := f.svc.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Michael Smith", "Finance Team", "David Chen"},
		[]string{got.Approvers[0].ApproverName, got.Approvers[1].ApproverName, got.Approvers[2].ApproverName})

	_, err = f.svc.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, expense.ErrExpenseNotFound)
}

func TestListForEmployee_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, day := range []int{3, 10, 7} {
		_, err := f.svc.Submit(ctx, expense.SubmitInput{
			EmployeeID:  "usr_employee",
			Amount:      decimal.NewFromInt(int64(10 + i)),
			Currency:    "USD",
			Category:    "Meals",
			Date:        time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
			Description: "Lunch",
		})
		require.NoError(t, err)
	}

	list, err := f.svc.ListForEmployee(ctx, "usr_employee")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 10, list[0].Date.Day())
	assert.Equal(t, 7, list[1].Date.Day())
	assert.Equal(t, 3, list[2].Date.Day())
}
