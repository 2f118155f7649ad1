package handlers

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"budgetbot/internal/realtime"
	"budgetbot/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.Name, validation.Length(0, 100)),
	)
}

// RegisterHandler creates an account and signs it in
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Store.CreateUser(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.storeError(w, err, "user")
		return
	}

	if err := h.Auth.Login(w, r, user.ID); err != nil {
		h.Logger.Error("[AUTH] Failed to save session", "user", user.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    user,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler checks credentials and starts a session
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.Logger.Error("[AUTH] User lookup failed", "error", err)
		}
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if !user.CheckPassword(req.Password) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := h.Auth.Login(w, r, user.ID); err != nil {
		h.Logger.Error("[AUTH] Failed to save session", "user", user.ID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}

// LogoutHandler ends the session
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Auth.Logout(w, r); err != nil {
		h.Logger.Error("[AUTH] Failed to clear session", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// MeHandler returns the signed-in user
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), currentUser(r))
	if err != nil {
		h.storeError(w, err, "user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"channel":  realtime.ChannelName(user.ID),
		"realtime": h.Notifier.Enabled(),
	})
}
