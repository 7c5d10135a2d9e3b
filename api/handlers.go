/*
handlers.go - HTTP API handlers for the expense approval engine

PURPOSE:
  Exposes the expense engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the expense package.

ENDPOINTS:
  Users:
    GET    /api/users                          List users (with manager names)
    POST   /api/users                          Add user
    GET    /api/users/{id}                     Get user
    PUT    /api/users/{id}                     Update user (role/manager rules)
    GET    /api/users/{id}/expenses            Expenses submitted by the user
    GET    /api/users/{id}/approvals           Expenses the user is in the chain of
    GET    /api/users/{id}/pending             Expenses awaiting the user's action
    GET    /api/users/{id}/notifications       Notifications (refreshed on read)
    POST   /api/users/{id}/notifications/read  Mark all read
    GET    /api/managers                       Users who can manage others

  Expenses:
    POST   /api/expenses                       Submit
    GET    /api/expenses/{id}                  Get with approver names
    POST   /api/expenses/{id}/approve          Approve as actorId
    POST   /api/expenses/{id}/reject           Reject as actorId

  Currency:
    GET    /api/currencies                     Supported codes
    GET    /api/currencies/convert?amount=&from=&to=

  Scenarios:
    GET    /api/scenarios                      List demo scenarios
    POST   /api/scenarios/load                 Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Actor does not hold the step
  - 404: Resource not found
  - 409: Expense not actionable, concurrent modification
  - 502: Currency or directory dependency failed
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The acting user is passed as actorId in the body.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/currency"
	"github.com/warp/expense-engine/expense"
	"github.com/warp/expense-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs: all expense stores plus Reset
// for scenario loading.
type Store interface {
	expense.ExpenseStore
	expense.UserStore
	expense.NotificationStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Expenses  *expense.Service
	Directory *expense.UserDirectory
	Notifier  *expense.Notifier
	Currency  *currency.Converter

	log zerolog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around an existing expense service.
func NewHandler(store Store, svc *expense.Service, conv *currency.Converter, log zerolog.Logger) *Handler {
	return &Handler{
		Store:     store,
		Expenses:  svc,
		Directory: expense.NewUserDirectory(store, log),
		Notifier:  expense.NewNotifier(store, store, store, log),
		Currency:  conv,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users with their manager's name.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Directory.ListUsers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u, names)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListManagers returns users with the Manager or Admin role.
func (h *Handler) ListManagers(w http.ResponseWriter, r *http.Request) {
	managers, err := h.Directory.ListManagers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]UserDTO, len(managers))
	for i, u := range managers {
		dtos[i] = toUserDTO(u, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Directory.ResolveUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.userDTO(r.Context(), *u))
}

// CreateUser adds a user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	u, err := h.Directory.AddUser(r.Context(), expense.NewUser{
		ID:        req.ID,
		Name:      req.Name,
		Email:     req.Email,
		Role:      expense.Role(req.Role),
		ManagerID: req.ManagerID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.userDTO(r.Context(), *u))
}

// UpdateUser changes a user's fields.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	upd := expense.UserUpdate{Name: req.Name, Email: req.Email, ManagerID: req.ManagerID}
	if req.Role != nil {
		role := expense.Role(*req.Role)
		upd.Role = &role
	}

	u, err := h.Directory.UpdateUser(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.userDTO(r.Context(), *u))
}

func (h *Handler) userDTO(ctx context.Context, u expense.User) UserDTO {
	names := map[string]string{}
	if u.ManagerID != "" {
		if m, err := h.Directory.ResolveUser(ctx, u.ManagerID); err == nil {
			names[m.ID] = m.Name
		}
	}
	return toUserDTO(u, names)
}

// =============================================================================
// EXPENSE LISTS
// =============================================================================

// ListUserExpenses returns expenses submitted by the user, newest first.
func (h *Handler) ListUserExpenses(w http.ResponseWriter, r *http.Request) {
	h.listFor(w, r, h.Expenses.ListForEmployee)
}

// ListUserApprovals returns every expense with the user in the chain.
func (h *Handler) ListUserApprovals(w http.ResponseWriter, r *http.Request) {
	h.listFor(w, r, h.Expenses.ListForApprover)
}

// ListUserPending returns expenses awaiting the user's action.
func (h *Handler) ListUserPending(w http.ResponseWriter, r *http.Request) {
	h.listFor(w, r, h.Expenses.ListPendingFor)
}

func (h *Handler) listFor(w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]*expense.Expense, error)) {
	userID := chi.URLParam(r, "id")
	if _, err := h.Directory.ResolveUser(r.Context(), userID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	es, err := list(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTOs(es))
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// SubmitExpense creates a new expense and routes it.
func (h *Handler) SubmitExpense(w http.ResponseWriter, r *http.Request) {
	var req SubmitExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	in := expense.SubmitInput{
		EmployeeID:  req.EmployeeID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		Vendor:      req.Vendor,
		ReceiptURL:  req.ReceiptURL,
	}

	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			h.writeDomainError(w, r, expense.NewValidationError("date", "expected YYYY-MM-DD or RFC3339"))
			return
		}
		in.Date = d
	}

	rule, err := h.parseRule(req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	in.Rule = rule

	e, err := h.Expenses.Submit(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

func (h *Handler) parseRule(req SubmitExpenseRequest) (*expense.ApprovalRule, error) {
	hasRule := len(req.ApprovalRule) > 0 && strings.TrimSpace(string(req.ApprovalRule)) != "null"
	switch {
	case hasRule && req.RulePreset != "":
		return nil, expense.NewValidationError("approval_rule", "approvalRule and rulePreset are mutually exclusive")
	case req.RulePreset != "":
		return factory.Preset(req.RulePreset)
	case hasRule:
		return factory.ParseRule(req.ApprovalRule)
	}
	return nil, nil
}

// GetExpense returns an expense with approver names populated.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := h.Expenses.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// ApproveExpense records an approval.
func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, expense.DecisionApprove)
}

// RejectExpense records a rejection.
func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, expense.DecisionReject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, d expense.Decision) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.ActorID == "" {
		h.writeDomainError(w, r, expense.NewValidationError("actor_id", "required"))
		return
	}

	if _, err := h.Expenses.RecordDecision(r.Context(), chi.URLParam(r, "id"), req.ActorID, d, req.Comments); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	e, err := h.Expenses.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// ListNotifications refreshes and returns the user's notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ns, err := h.Notifier.ForUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]NotificationDTO, len(ns))
	for i, n := range ns {
		dtos[i] = NotificationDTO{ID: n.ID, ExpenseID: n.ExpenseID, Message: n.Message, Timestamp: n.Timestamp, Read: n.Read}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkNotificationsRead marks every notification of the user as read.
func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifier.MarkAllRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CURRENCY HANDLERS
// =============================================================================

// ListCurrencies returns the supported currency codes.
func (h *Handler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	codes, err := h.Currency.Supported(r.Context())
	if err != nil {
		h.writeDomainError(w, r, &expense.DependencyError{Dependency: "currency", Op: "list", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, CurrenciesDTO{Base: h.Currency.Base(), Currencies: codes})
}

// ConvertCurrency converts ?amount= from ?from= to ?to= (default base).
func (h *Handler) ConvertCurrency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		h.writeDomainError(w, r, expense.NewValidationError("amount", "must be a number"))
		return
	}
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		h.writeDomainError(w, r, expense.NewValidationError("from", "required"))
		return
	}
	if to == "" {
		to = h.Currency.Base()
	}

	conv, err := h.Currency.Convert(r.Context(), amount, from, to)
	if errors.Is(err, currency.ErrUnsupportedCurrency) {
		h.writeDomainError(w, r, expense.NewValidationError("currency", err.Error()))
		return
	}
	if err != nil {
		h.writeDomainError(w, r, &expense.DependencyError{Dependency: "currency", Op: "convert", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, ConversionDTO{
		Amount:    amount,
		From:      strings.ToUpper(from),
		To:        conv.Currency,
		Converted: conv.Amount,
		Source:    string(conv.Source),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// writeDomainError maps expense errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *expense.ValidationError
	switch {
	case errors.As(err, &ve):
		resp := ErrorResponse{Error: "Validation failed", Details: ve.Error()}
		for _, fe := range ve.Errors {
			resp.Fields = append(resp.Fields, FieldErrorDTO{Field: fe.Field, Message: fe.Message})
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, expense.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Not authorized for this step", err)
	case expense.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, expense.ErrNotActionable):
		writeError(w, http.StatusConflict, "Expense not actionable", err)
	case errors.Is(err, expense.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Concurrent modification, retry", err)
	case errors.Is(err, expense.ErrDependency):
		hlog.FromRequest(r).Warn().Err(err).Msg("Dependency failure")
		writeError(w, http.StatusBadGateway, "Dependency unavailable", err)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("Internal error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) scenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}
