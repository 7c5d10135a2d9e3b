/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal.Decimal and serialize as JSON strings ("150.75").
  Requests accept numbers or strings.

VALIDATION:
  Validation is done in the expense package, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON type
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/expense"
	"github.com/warp/expense-engine/factory"
)

const dateLayout = "2006-01-02"

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	ManagerID   string `json:"managerId,omitempty"`
	ManagerName string `json:"managerName,omitempty"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ManagerID string `json:"managerId,omitempty"`
}

// UpdateUserRequest is the body of PUT /api/users/{id}. Omitted fields are kept.
type UpdateUserRequest struct {
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Role      *string `json:"role,omitempty"`
	ManagerID *string `json:"managerId,omitempty"`
}

func toUserDTO(u expense.User, names map[string]string) UserDTO {
	dto := UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		ManagerID: u.ManagerID,
	}
	if u.ManagerID != "" {
		dto.ManagerName = names[u.ManagerID]
		if dto.ManagerName == "" {
			dto.ManagerName = "N/A"
		}
	}
	return dto
}

// =============================================================================
// EXPENSES
// =============================================================================

// SubmitExpenseRequest is the body of POST /api/expenses.
// ApprovalRule and RulePreset are mutually exclusive.
type SubmitExpenseRequest struct {
	EmployeeID   string          `json:"employeeId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Category     string          `json:"category"`
	Date         string          `json:"date"`
	Description  string          `json:"description"`
	Vendor       string          `json:"vendor,omitempty"`
	ReceiptURL   string          `json:"receiptUrl,omitempty"`
	ApprovalRule json.RawMessage `json:"approvalRule,omitempty"`
	RulePreset   string          `json:"rulePreset,omitempty"`
}

// DecisionRequest is the body of approve/reject calls.
type DecisionRequest struct {
	ActorID  string `json:"actorId"`
	Comments string `json:"comments,omitempty"`
}

// ApproverDTO is one step of an expense's approver chain.
type ApproverDTO struct {
	Step         int        `json:"step"`
	ApproverID   string     `json:"approverId"`
	ApproverName string     `json:"approverName,omitempty"`
	Status       string     `json:"status"`
	ActedAt      *time.Time `json:"actedAt,omitempty"`
	Comments     string     `json:"comments,omitempty"`
}

// HistoryDTO is one audit trail entry.
type HistoryDTO struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Comments  string    `json:"comments,omitempty"`
}

// ExpenseDTO represents an expense in API responses.
type ExpenseDTO struct {
	ID                  string            `json:"id"`
	EmployeeID          string            `json:"employeeId"`
	EmployeeName        string            `json:"employeeName"`
	Description         string            `json:"description"`
	Category            string            `json:"category"`
	Vendor              string            `json:"vendor,omitempty"`
	ReceiptURL          string            `json:"receiptUrl,omitempty"`
	Amount              decimal.Decimal   `json:"amount"`
	Currency            string            `json:"currency"`
	Date                string            `json:"date"`
	ConvertedAmount     decimal.Decimal   `json:"convertedAmount"`
	RateSource          string            `json:"rateSource,omitempty"`
	Status              string            `json:"status"`
	CurrentApproverStep *int              `json:"currentApproverStep,omitempty"`
	Approvers           []ApproverDTO     `json:"approvers"`
	ApprovalRule        *factory.RuleJSON `json:"approvalRule,omitempty"`
	History             []HistoryDTO      `json:"history"`
	RejectionReason     *string           `json:"rejectionReason,omitempty"`
	Version             int               `json:"version"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

func toExpenseDTO(e *expense.Expense) ExpenseDTO {
	dto := ExpenseDTO{
		ID:                  e.ID,
		EmployeeID:          e.EmployeeID,
		EmployeeName:        e.EmployeeName,
		Description:         e.Description,
		Category:            e.Category,
		Vendor:              e.Vendor,
		ReceiptURL:          e.ReceiptURL,
		Amount:              e.Amount,
		Currency:            e.Currency,
		Date:                e.Date.Format(dateLayout),
		ConvertedAmount:     e.ConvertedAmount,
		RateSource:          string(e.RateSource),
		Status:              string(e.Status),
		CurrentApproverStep: e.CurrentApproverStep,
		Approvers:           make([]ApproverDTO, len(e.Approvers)),
		ApprovalRule:        factory.FromRule(e.ApprovalRule),
		History:             make([]HistoryDTO, len(e.History)),
		RejectionReason:     e.RejectionReason,
		Version:             e.Version,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
	for i, a := range e.Approvers {
		dto.Approvers[i] = ApproverDTO{
			Step:         a.Step,
			ApproverID:   a.ApproverID,
			ApproverName: a.ApproverName,
			Status:       string(a.Status),
			ActedAt:      a.ActedAt,
			Comments:     a.Comments,
		}
	}
	for i, h := range e.History {
		dto.History[i] = HistoryDTO(h)
	}
	return dto
}

func toExpenseDTOs(es []*expense.Expense) []ExpenseDTO {
	out := make([]ExpenseDTO, len(es))
	for i, e := range es {
		out[i] = toExpenseDTO(e)
	}
	return out
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// NotificationDTO represents a notification in API responses.
type NotificationDTO struct {
	ID        string    `json:"id"`
	ExpenseID string    `json:"expenseId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// =============================================================================
// CURRENCY
// =============================================================================

// CurrenciesDTO lists supported currency codes.
type CurrenciesDTO struct {
	Base       string   `json:"base"`
	Currencies []string `json:"currencies"`
}

// ConversionDTO is the result of GET /api/currencies/convert.
type ConversionDTO struct {
	Amount    decimal.Decimal `json:"amount"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Converted decimal.Decimal `json:"converted"`
	Source    string          `json:"source"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Details string          `json:"details,omitempty"`
	Fields  []FieldErrorDTO `json:"fields,omitempty"`
}

// FieldErrorDTO is one invalid input field.
type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
