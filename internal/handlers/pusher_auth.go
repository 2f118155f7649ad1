package handlers

import (
	"encoding/json"
	"net/http"

	"budgetbot/internal/realtime"
)

// PusherAuthHandler signs a private channel grant for the caller's own
// channel. It is the only place grants are issued.
func (h *Handler) PusherAuthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		h.Metrics.ChannelAuth("bad_request")
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}
	socketID := r.PostFormValue("socket_id")
	channel := r.PostFormValue("channel_name")
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.PostFormValue("user_id")
	}
	if socketID == "" || channel == "" || userID == "" {
		h.Metrics.ChannelAuth("bad_request")
		http.Error(w, "socket_id, channel_name and user id are required", http.StatusBadRequest)
		return
	}

	sessionUser, err := h.Auth.UserID(r)
	if err != nil {
		h.Metrics.ChannelAuth("unauthenticated")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	deny := func(reason string) {
		h.Logger.Warn("[AUTH] Channel authorization denied",
			"reason", reason, "user", userID, "session_user", sessionUser, "channel", channel)
		h.Metrics.ChannelAuth("denied")
		http.Error(w, "Forbidden", http.StatusForbidden)
	}

	if sessionUser != userID {
		deny("session belongs to another user")
		return
	}
	if _, err := h.Store.GetUser(r.Context(), userID); err != nil {
		deny("unknown user")
		return
	}
	if channel != realtime.ChannelName(userID) {
		deny("channel does not belong to user")
		return
	}

	grant, err := h.Notifier.Authorize(socketID, channel)
	if err != nil {
		h.Logger.Error("[AUTH] Failed to sign channel grant", "user", userID, "channel", channel, "error", err)
		h.Metrics.ChannelAuth("denied")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	h.Metrics.ChannelAuth("granted")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(grant)
}

type triggerRequest struct {
	UserID  string          `json:"userId"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// TriggerHandler sends an arbitrary event to the caller's channel. The reply
// is 200 whenever the request was valid; delivered reports the broker result.
func (h *Handler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller := currentUser(r)

	var req triggerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Event == "" {
		http.Error(w, "event is required", http.StatusBadRequest)
		return
	}
	if req.UserID != "" && req.UserID != caller {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	channel := realtime.ChannelName(caller)
	if req.Channel != "" && req.Channel != channel {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if string(req.Data) == "null" {
		req.Data = nil
	}
	delivered := h.Notifier.TriggerRaw(r.Context(), channel, req.Event, req.Data)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"delivered": delivered,
		"event":     req.Event,
		"channel":   channel,
	})
}
