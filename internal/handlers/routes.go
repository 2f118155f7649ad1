package handlers

import "net/http"

// Routes builds the HTTP surface. Everything under /api except register,
// login and the cron hook requires a signed-in user.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	protect := h.Auth.RequireUser

	// Public routes
	mux.HandleFunc("/healthz", h.HealthHandler)
	mux.HandleFunc("/api/register", h.RegisterHandler)
	mux.HandleFunc("/api/login", h.LoginHandler)
	mux.HandleFunc("/api/logout", h.LogoutHandler)
	mux.HandleFunc("/api/cron/bill-reminders", h.BillRemindersHandler)
	mux.HandleFunc("/api/push/vapid-key", h.VAPIDKeyHandler)

	// Channel grants check the session themselves so they can answer 400
	// before 401.
	mux.HandleFunc("/pusher/auth", h.PusherAuthHandler)

	// Signed-in routes
	mux.HandleFunc("/api/me", protect(h.MeHandler))
	mux.HandleFunc("/api/notifications/trigger", protect(h.TriggerHandler))
	mux.HandleFunc("/api/expenses", protect(h.ExpensesHandler))
	mux.HandleFunc("/api/expenses/", protect(h.ExpenseHandler))
	mux.HandleFunc("/api/goals", protect(h.GoalsHandler))
	mux.HandleFunc("/api/goals/", protect(h.GoalHandler))
	mux.HandleFunc("/api/subscriptions", protect(h.SubscriptionsHandler))
	mux.HandleFunc("/api/subscriptions/", protect(h.SubscriptionHandler))
	mux.HandleFunc("/api/push/subscribe", protect(h.SubscribePushHandler))
	mux.HandleFunc("/api/dashboard/refresh", protect(h.DashboardRefreshHandler))
	mux.HandleFunc("/api/insights", protect(h.InsightsHandler))

	if h.Metrics != nil {
		mux.Handle("/metrics", h.Metrics.Handler())
	}
	if h.Relay != nil {
		mux.Handle("/app/", h.Relay)
	}
	return mux
}
