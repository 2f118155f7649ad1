package handlers

import (
	"net/http"

	"budgetbot/internal/insights"
)

// InsightsHandler returns the spending summary for the last ?days days
func (h *Handler) InsightsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	days := queryInt(r, "days", insights.DefaultDays)
	if days < 1 || days > insights.MaxDays {
		http.Error(w, "days must be between 1 and 365", http.StatusBadRequest)
		return
	}

	sum, err := h.Insights.Summarize(r.Context(), currentUser(r), days)
	if err != nil {
		h.storeError(w, err, "insights")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
