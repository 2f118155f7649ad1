package handlers

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type refreshRequest struct {
	Reason  string   `json:"reason"`
	Widgets []string `json:"widgets"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Length(0, 200)),
		validation.Field(&r.Widgets, validation.Length(0, 20), validation.Each(validation.Required)),
	)
}

// DashboardRefreshHandler asks the caller's open dashboards to reload
func (h *Handler) DashboardRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	delivered := h.Notifier.SendDashboardRefresh(r.Context(), currentUser(r), req.Reason, req.Widgets...)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"notificationDelivered": delivered,
	})
}
