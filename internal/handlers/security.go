package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// validCronSecret checks X-Cron-Secret (or a Bearer token) against the
// configured secret. An unset secret rejects every caller.
func (h *Handler) validCronSecret(r *http.Request) bool {
	if h.CronSecret == "" {
		return false
	}
	got := r.Header.Get("X-Cron-Secret")
	if got == "" {
		if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			got = v
		}
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.CronSecret)) == 1
}
