package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budgetbot/internal/auth"
	"budgetbot/internal/insights"
	"budgetbot/internal/metrics"
	"budgetbot/internal/push"
	"budgetbot/internal/realtime"
	"budgetbot/internal/store"
)

const maxBodySize = 64 * 1024

type Handler struct {
	Store    store.Store
	Auth     *auth.Authenticator
	Notifier *realtime.Notifier
	Push     *push.Sender
	Insights *insights.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	CronSecret     string
	ReminderWindow int // days

	// Relay serves broker websockets when the self-hosted relay is enabled.
	Relay http.Handler

	now func() time.Time
}

// Deps are the services a Handler is built from. Push, Insights, Metrics and
// Relay are optional.
type Deps struct {
	Store          store.Store
	Auth           *auth.Authenticator
	Notifier       *realtime.Notifier
	Push           *push.Sender
	Insights       *insights.Service
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	CronSecret     string
	ReminderWindow int
	Relay          http.Handler
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		Store:          d.Store,
		Auth:           d.Auth,
		Notifier:       d.Notifier,
		Push:           d.Push,
		Insights:       d.Insights,
		Metrics:        d.Metrics,
		Logger:         d.Logger,
		CronSecret:     d.CronSecret,
		ReminderWindow: d.ReminderWindow,
		Relay:          d.Relay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.Notifier == nil {
		h.Notifier = realtime.New(nil, realtime.DefaultConfig(), realtime.WithLogger(h.Logger))
	}
	if h.Insights == nil {
		h.Insights = insights.NewService(d.Store, nil, time.Hour, insights.WithLogger(h.Logger))
	}
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// currentUser is set by Auth.RequireUser on every protected route.
func currentUser(r *http.Request) string {
	userID, _ := auth.UserFrom(r.Context())
	return userID
}

// pathID returns the path segment after prefix, e.g. "/api/goals/" +
// "abc/progress" -> "abc", "progress".
func pathID(r *http.Request, prefix string) (id, rest string) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	id, rest, _ = strings.Cut(tail, "/")
	return id, rest
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// storeError maps store sentinels to responses and logs everything else.
func (h *Handler) storeError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, what+" not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, what+" already exists", http.StatusConflict)
	default:
		h.Logger.Error("[HTTP] Store failure", "what", what, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"realtime": h.Notifier.Enabled(),
	})
}
