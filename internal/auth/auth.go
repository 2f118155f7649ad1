// Package auth resolves the signed-in user of a request, from either the
// session cookie or a Supabase access token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
)

const SessionName = "budgetbot-session"

var (
	ErrNoSession    = errors.New("no authenticated session")
	ErrInvalidToken = errors.New("invalid bearer token")
)

type ctxKey struct{}

// Authenticator checks bearer tokens first, then the session cookie.
type Authenticator struct {
	sessions  sessions.Store
	jwtSecret []byte
}

func New(store sessions.Store, jwtSecret string) *Authenticator {
	return &Authenticator{sessions: store, jwtSecret: []byte(jwtSecret)}
}

// NewCookieStore is the session store used in production.
func NewCookieStore(secret string) *sessions.CookieStore {
	s := sessions.NewCookieStore([]byte(secret))
	s.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return s
}

// UserID returns the id of the authenticated user. ErrNoSession means the
// request carries no credentials at all.
func (a *Authenticator) UserID(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return a.parseToken(strings.TrimPrefix(h, "Bearer "))
	}

	session, err := a.sessions.Get(r, SessionName)
	if err != nil {
		return "", ErrNoSession
	}
	userID, ok := session.Values["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrNoSession
	}
	return userID, nil
}

func (a *Authenticator) parseToken(raw string) (string, error) {
	if len(a.jwtSecret) == 0 || raw == "" {
		return "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Login stores userID in the session cookie.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request, userID string) error {
	session, _ := a.sessions.Get(r, SessionName)
	session.Values["user_id"] = userID
	return session.Save(r, w)
}

// Logout expires the session cookie.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := a.sessions.Get(r, SessionName)
	session.Values["user_id"] = nil
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// RequireUser rejects unauthenticated requests with 401 and stores the user
// id in the request context.
func (a *Authenticator) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.UserID(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), userID)))
	}
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the id stored by RequireUser.
func UserFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(ctxKey{}).(string)
	return userID, ok && userID != ""
}
