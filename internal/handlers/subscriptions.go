package handlers

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"budgetbot/internal/models"
)

type subscriptionRequest struct {
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	BillingCycle    string          `json:"billingCycle"`
	NextBillingDate string          `json:"nextBillingDate"`
}

func (r subscriptionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Amount, validation.By(positive)),
		validation.Field(&r.BillingCycle, validation.Required,
			validation.In(models.CycleWeekly, models.CycleMonthly, models.CycleYearly)),
		validation.Field(&r.NextBillingDate, validation.Required, validation.By(validDate)),
	)
}

func (r subscriptionRequest) model(userID string) models.BillSubscription {
	next, _ := parseDate(r.NextBillingDate)
	return models.BillSubscription{
		UserID:          userID,
		Name:            r.Name,
		Amount:          r.Amount.Round(2),
		BillingCycle:    r.BillingCycle,
		NextBillingDate: next,
	}
}

// SubscriptionsHandler serves GET and POST /api/subscriptions
func (h *Handler) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	switch r.Method {
	case http.MethodGet:
		subs, err := h.Store.ListSubscriptions(r.Context(), userID)
		if err != nil {
			h.storeError(w, err, "subscriptions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})

	case http.MethodPost:
		var req subscriptionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if err := req.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sub, err := h.Store.CreateSubscription(r.Context(), req.model(userID))
		if err != nil {
			h.storeError(w, err, "subscription")
			return
		}
		delivered := h.Notifier.SendSubscriptionAdded(r.Context(), userID, sub)
		writeJSON(w, http.StatusCreated, map[string]any{
			"success":               true,
			"subscription":          sub,
			"notificationDelivered": delivered,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// SubscriptionHandler serves PUT and DELETE /api/subscriptions/{id}
func (h *Handler) SubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "/api/subscriptions/")
	if id == "" {
		http.Error(w, "subscription id is required", http.StatusBadRequest)
		return
	}
	userID := currentUser(r)

	switch r.Method {
	case http.MethodPut:
		var req subscriptionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if err := req.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sub := req.model(userID)
		sub.ID = id
		sub, err := h.Store.UpdateSubscription(r.Context(), sub)
		if err != nil {
			h.storeError(w, err, "subscription")
			return
		}
		delivered := h.Notifier.SendSubscriptionUpdated(r.Context(), userID, sub)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":               true,
			"subscription":          sub,
			"notificationDelivered": delivered,
		})

	case http.MethodDelete:
		sub, err := h.Store.DeleteSubscription(r.Context(), userID, id)
		if err != nil {
			h.storeError(w, err, "subscription")
			return
		}
		delivered := h.Notifier.SendSubscriptionDeleted(r.Context(), userID, sub)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":               true,
			"notificationDelivered": delivered,
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
