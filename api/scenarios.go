/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a realistic
	organization and expenses in various approval states.

AVAILABLE SCENARIOS:

	demo:   Six-person organization, one approved, two pending expenses
	rules:  Same organization, fresh expenses routed with approval rules
	empty:  Organization only, no expenses

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create users
 3. Create expenses, either as fixed records or through Service.Submit

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "demo"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - factory/rule.go: Rule presets used by the rules scenario
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/expense"
	"github.com/warp/expense-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo",
		Name:        "Demo Organization",
		Description: "Employee, manager and four admins; approved, pending and CFO-routed expenses",
	},
	{
		ID:          "rules",
		Name:        "Approval Rules",
		Description: "Fresh expenses under percentage, specific-approver and hybrid rules",
	},
	{
		ID:          "empty",
		Name:        "Empty Ledger",
		Description: "Demo organization with no expenses",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": scenarios,
		"current":   h.scenario(),
	})
}

// LoadScenario resets the store and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	if err := h.Load(r.Context(), req.ScenarioID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// Load resets the store and seeds the named scenario.
func (h *Handler) Load(ctx context.Context, id string) error {
	var loader func(context.Context) error
	switch id {
	case "demo":
		loader = h.loadDemoScenario
	case "rules":
		loader = h.loadRulesScenario
	case "empty":
		loader = h.seedUsers
	default:
		return expense.NewValidationError("scenario_id", fmt.Sprintf("unknown scenario %q", id))
	}

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	if err := loader(ctx); err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", id, err)
	}

	h.setScenario(id)
	h.log.Info().Str("scenario", id).Msg("Scenario loaded")
	return nil
}

// =============================================================================
// USERS
// =============================================================================

var demoUsers = []expense.User{
	{ID: "usr_employee", Name: "Sarah Johnson", Email: "sarah.j@example.com", Role: expense.RoleEmployee, ManagerID: "usr_manager"},
	{ID: "usr_manager", Name: "Michael Smith", Email: "michael.s@example.com", Role: expense.RoleManager},
	{ID: "usr_admin", Name: "David Chen", Email: "david.c@example.com", Role: expense.RoleAdmin},
	{ID: "usr_finance", Name: "Finance Team", Email: "finance@example.com", Role: expense.RoleAdmin},
	{ID: "usr_director", Name: "Company Director", Email: "director@example.com", Role: expense.RoleAdmin},
	{ID: "usr_cfo", Name: "CFO", Email: "cfo@example.com", Role: expense.RoleAdmin},
}

func (h *Handler) seedUsers(ctx context.Context) error {
	for _, u := range demoUsers {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// DEMO SCENARIO
// =============================================================================

func (h *Handler) loadDemoScenario(ctx context.Context) error {
	if err := h.seedUsers(ctx); err != nil {
		return err
	}

	ts := func(s string) time.Time {
		t, _ := time.Parse(time.RFC3339, s)
		return t
	}
	day := func(s string) time.Time {
		t, _ := time.Parse(dateLayout, s)
		return t
	}
	acted := func(s string) *time.Time {
		t := ts(s)
		return &t
	}
	step := func(n int) *int { return &n }

	exp003Base, err := h.Currency.ConvertToBase(ctx, decimal.NewFromInt(250), "EUR")
	if err != nil {
		return err
	}

	expenses := []*expense.Expense{
		{
			ID:              "EXP001",
			EmployeeID:      "usr_employee",
			EmployeeName:    "Sarah Johnson",
			Description:     "Client Dinner in New York",
			Category:        "Meals & Entertainment",
			ReceiptURL:      "/receipts/receipt1.pdf",
			Amount:          decimal.RequireFromString("150.75"),
			Currency:        "USD",
			Date:            day("2024-05-10"),
			ConvertedAmount: decimal.RequireFromString("150.75"),
			Status:          expense.StatusApproved,
			Approvers: []expense.ApprovalStep{
				{Step: 1, ApproverID: "usr_manager", Status: expense.StepApproved, ActedAt: acted("2024-05-11T09:00:00Z")},
				{Step: 2, ApproverID: "usr_admin", Status: expense.StepApproved, ActedAt: acted("2024-05-11T10:00:00Z")},
			},
			History: []expense.HistoryEntry{
				{Status: "Pending", Timestamp: ts("2024-05-10T10:05:00Z"), Actor: "System"},
				{Status: "Approved by Michael Smith", Timestamp: ts("2024-05-11T09:00:00Z"), Actor: "Michael Smith"},
				{Status: "Approved by David Chen", Timestamp: ts("2024-05-11T10:00:00Z"), Actor: "David Chen"},
			},
			CreatedAt: ts("2024-05-10T10:05:00Z"),
			UpdatedAt: ts("2024-05-11T10:00:00Z"),
		},
		{
			ID:                  "EXP002",
			EmployeeID:          "usr_employee",
			EmployeeName:        "Sarah Johnson",
			Description:         "Software Subscription (High Value)",
			Category:            "Software",
			ReceiptURL:          "/receipts/receipt2.jpg",
			Amount:              decimal.NewFromInt(600),
			Currency:            "USD",
			Date:                day("2024-05-12"),
			ConvertedAmount:     decimal.NewFromInt(600),
			Status:              expense.StatusPending,
			CurrentApproverStep: step(1),
			Approvers: []expense.ApprovalStep{
				{Step: 1, ApproverID: "usr_manager", Status: expense.StepPending},
				{Step: 2, ApproverID: "usr_finance", Status: expense.StepPending},
			},
			History: []expense.HistoryEntry{
				{Status: "Pending", Timestamp: ts("2024-05-12T18:05:00Z"), Actor: "System"},
			},
			CreatedAt: ts("2024-05-12T18:05:00Z"),
			UpdatedAt: ts("2024-05-12T18:05:00Z"),
		},
		{
			ID:                  "EXP003",
			EmployeeID:          "usr_manager",
			EmployeeName:        "Michael Smith",
			Description:         "Team Lunch",
			Category:            "Meals & Entertainment",
			Amount:              decimal.NewFromInt(250),
			Currency:            "EUR",
			Date:                day("2024-05-15"),
			ConvertedAmount:     exp003Base.Amount,
			RateSource:          exp003Base.Source,
			Status:              expense.StatusPending,
			CurrentApproverStep: step(1),
			Approvers: []expense.ApprovalStep{
				{Step: 1, ApproverID: "usr_cfo", Status: expense.StepPending},
			},
			ApprovalRule: &expense.ApprovalRule{Type: expense.RuleSpecificApprover, SpecificApproverID: "usr_cfo"},
			History: []expense.HistoryEntry{
				{Status: "Pending", Timestamp: ts("2024-05-15T14:00:00Z"), Actor: "System"},
			},
			CreatedAt: ts("2024-05-15T14:00:00Z"),
			UpdatedAt: ts("2024-05-15T14:00:00Z"),
		},
	}

	for _, e := range expenses {
		if err := h.Store.Create(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// RULES SCENARIO
// =============================================================================

func (h *Handler) loadRulesScenario(ctx context.Context) error {
	if err := h.seedUsers(ctx); err != nil {
		return err
	}

	submissions := []struct {
		employee    string
		amount      string
		currency    string
		category    string
		description string
		preset      string
	}{
		{"usr_employee", "1500", "USD", "Travel", "Conference trip (majority rule)", "majority"},
		{"usr_employee", "800", "GBP", "Equipment", "Laptop (CFO override)", "cfo-or-60"},
		{"usr_employee", "120", "EUR", "Meals & Entertainment", "Team breakfast (unanimous)", "unanimous"},
		{"usr_employee", "45.50", "USD", "Office Supplies", "Printer paper (sequential)", ""},
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	for i, s := range submissions {
		var rule *expense.ApprovalRule
		if s.preset != "" {
			r, err := factory.Preset(s.preset)
			if err != nil {
				return err
			}
			rule = r
		}
		_, err := h.Expenses.Submit(ctx, expense.SubmitInput{
			EmployeeID:  s.employee,
			Amount:      decimal.RequireFromString(s.amount),
			Currency:    s.currency,
			Category:    s.category,
			Date:        date.AddDate(0, 0, -i),
			Description: s.description,
			Rule:        rule,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
