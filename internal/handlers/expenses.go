package handlers

import (
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"budgetbot/internal/models"
)

var errNotPositive = errors.New("must be greater than zero")

func positive(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok || !d.IsPositive() {
		return errNotPositive
	}
	return nil
}

func nonNegative(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok || d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func validDate(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := parseDate(s); err != nil {
		return errors.New("must be a date (YYYY-MM-DD)")
	}
	return nil
}

type expenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	Kind        string          `json:"kind"`
}

func (r expenseRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Amount, validation.By(positive)),
		validation.Field(&r.Category, validation.Length(0, 64)),
		validation.Field(&r.Description, validation.Length(0, 500)),
		validation.Field(&r.Date, validation.By(validDate)),
		validation.Field(&r.Kind, validation.In(models.KindExpense, models.KindIncome)),
	)
}

// ExpensesHandler serves GET and POST /api/expenses
func (h *Handler) ExpensesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listExpenses(w, r)
	case http.MethodPost:
		h.createExpense(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	if days < 1 {
		days = 30
	}
	since := h.now().AddDate(0, 0, -days)

	expenses, err := h.Store.ListExpenses(r.Context(), currentUser(r), since)
	if err != nil {
		h.storeError(w, err, "expenses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := currentUser(r)
	e := models.Expense{
		UserID:      userID,
		Kind:        req.Kind,
		Amount:      req.Amount.Round(2),
		Category:    req.Category,
		Description: req.Description,
		SpentAt:     h.now(),
	}
	if e.Kind == "" {
		e.Kind = models.KindExpense
	}
	if req.Date != "" {
		e.SpentAt, _ = parseDate(req.Date)
	}

	e, err := h.Store.CreateExpense(r.Context(), e)
	if err != nil {
		h.storeError(w, err, "expense")
		return
	}

	h.Insights.Invalidate(r.Context(), userID)
	delivered := h.Notifier.SendExpenseUpdated(r.Context(), userID, e, models.ActionCreated)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":               true,
		"expense":               e,
		"notificationDelivered": delivered,
	})
}

// ExpenseHandler serves DELETE /api/expenses/{id}
func (h *Handler) ExpenseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, _ := pathID(r, "/api/expenses/")
	if id == "" {
		http.Error(w, "expense id is required", http.StatusBadRequest)
		return
	}

	userID := currentUser(r)
	e, err := h.Store.DeleteExpense(r.Context(), userID, id)
	if err != nil {
		h.storeError(w, err, "expense")
		return
	}

	h.Insights.Invalidate(r.Context(), userID)
	delivered := h.Notifier.SendExpenseUpdated(r.Context(), userID, e, models.ActionDeleted)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"notificationDelivered": delivered,
	})
}
