package handlers

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type pushSubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (r pushSubscribeRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Endpoint, validation.Required, is.URL),
	); err != nil {
		return err
	}
	return validation.Errors{
		"p256dh": validation.Validate(r.Keys.P256dh, validation.Required),
		"auth":   validation.Validate(r.Keys.Auth, validation.Required),
	}.Filter()
}

// VAPIDKeyHandler returns the public VAPID key browsers subscribe with
func (h *Handler) VAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	if h.Push == nil {
		http.Error(w, "Push notifications are disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.Push.PublicKey()})
}

// SubscribePushHandler saves the caller's browser push subscription
func (h *Handler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pushSubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := currentUser(r)
	if err := h.Store.SavePushSubscription(r.Context(), userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		h.Logger.Error("[PUSH] Failed to save subscription", "user", userID, "error", err)
		http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
