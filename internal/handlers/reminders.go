package handlers

import (
	"net/http"
	"time"

	"budgetbot/internal/push"
	"budgetbot/internal/realtime"
)

// BillRemindersHandler is called by the scheduler. It notifies every user
// with a subscription due inside the reminder window.
func (h *Handler) BillRemindersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.validCronSecret(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	now := h.now()
	window := max(h.ReminderWindow, 0)
	today := now.Truncate(24 * time.Hour)
	due, err := h.Store.DueSubscriptions(r.Context(), today, today.AddDate(0, 0, window+1).Add(-time.Nanosecond))
	if err != nil {
		h.storeError(w, err, "subscriptions")
		return
	}

	delivered, pushed := 0, 0
	for _, s := range due {
		ev := realtime.BillReminderEvent(s, now)
		if h.Notifier.Publish(r.Context(), s.UserID, ev) {
			delivered++
		}
		if h.Push != nil {
			pushed += h.Push.SendToUser(r.Context(), s.UserID, push.Message{
				Title: ev.Title,
				Body:  ev.Message,
				URL:   "/subscriptions",
			})
		}
		h.Metrics.BillReminder()
	}

	h.Logger.Info("[CRON] Bill reminders processed",
		"due", len(due), "delivered", delivered, "pushed", pushed)
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": len(due),
		"delivered": delivered,
		"pushed":    pushed,
	})
}
