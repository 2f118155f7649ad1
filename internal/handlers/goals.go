package handlers

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"budgetbot/internal/models"
)

type goalRequest struct {
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Deadline      string          `json:"deadline"`
}

func (r goalRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.TargetAmount, validation.By(positive)),
		validation.Field(&r.CurrentAmount, validation.By(nonNegative)),
		validation.Field(&r.Deadline, validation.By(validDate)),
	)
}

type progressRequest struct {
	CurrentAmount *decimal.Decimal `json:"currentAmount"`
}

func (r progressRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentAmount, validation.Required.Error("is required"), validation.By(func(v any) error {
			d, _ := v.(*decimal.Decimal)
			if d == nil {
				return nil
			}
			return nonNegative(*d)
		})),
	)
}

// GoalsHandler serves GET and POST /api/goals
func (h *Handler) GoalsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		goals, err := h.Store.ListGoals(r.Context(), currentUser(r))
		if err != nil {
			h.storeError(w, err, "goals")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"goals": goals})
	case http.MethodPost:
		h.createGoal(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g := models.Goal{
		UserID:        currentUser(r),
		Name:          req.Name,
		TargetAmount:  req.TargetAmount.Round(2),
		CurrentAmount: req.CurrentAmount.Round(2),
	}
	if req.Deadline != "" {
		d, _ := parseDate(req.Deadline)
		g.Deadline = &d
	}

	g, err := h.Store.CreateGoal(r.Context(), g)
	if err != nil {
		h.storeError(w, err, "goal")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"goal":       g,
		"percentage": g.Percentage(),
	})
}

// GoalHandler serves PUT /api/goals/{id}/progress
func (h *Handler) GoalHandler(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r, "/api/goals/")
	if id == "" || rest != "progress" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := currentUser(r)
	before, after, err := h.Store.UpdateGoalProgress(r.Context(), userID, id, req.CurrentAmount.Round(2))
	if err != nil {
		h.storeError(w, err, "goal")
		return
	}

	milestone := models.CrossedMilestone(before.Percentage(), after.Percentage())
	delivered := h.Notifier.SendGoalProgress(r.Context(), userID, after, milestone)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"goal":                  after,
		"percentage":            after.Percentage(),
		"milestone":             milestone,
		"notificationDelivered": delivered,
	})
}
