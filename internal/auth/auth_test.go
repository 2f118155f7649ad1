package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "supabase-test-secret"

func signToken(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestUserID_Bearer(t *testing.T) {
	a := New(NewCookieStore("session-secret"), jwtSecret)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, jwtSecret, "user-a", time.Now().Add(time.Hour)))
	id, err := a.UserID(r)
	require.NoError(t, err)
	assert.Equal(t, "user-a", id)
}

func TestUserID_BadTokens(t *testing.T) {
	a := New(NewCookieStore("session-secret"), jwtSecret)

	cases := map[string]string{
		"wrong secret": signToken(t, "other", "user-a", time.Now().Add(time.Hour)),
		"expired":      signToken(t, jwtSecret, "user-a", time.Now().Add(-time.Hour)),
		"no subject":   signToken(t, jwtSecret, "", time.Now().Add(time.Hour)),
		"garbage":      "not-a-jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+tok)
			_, err := a.UserID(r)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestUserID_NoJWTSecretRejectsBearer(t *testing.T) {
	a := New(NewCookieStore("session-secret"), "")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, jwtSecret, "user-a", time.Now().Add(time.Hour)))
	_, err := a.UserID(r)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionLoginLogout(t *testing.T) {
	a := New(NewCookieStore("session-secret"), jwtSecret)

	_, err := a.UserID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)

	rec := httptest.NewRecorder()
	require.NoError(t, a.Login(rec, httptest.NewRequest(http.MethodPost, "/login", nil), "user-b"))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	id, err := a.UserID(r)
	require.NoError(t, err)
	assert.Equal(t, "user-b", id)

	rec = httptest.NewRecorder()
	require.NoError(t, a.Logout(rec, r))
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionName {
			assert.True(t, c.MaxAge < 0)
		}
	}
}

func TestRequireUser(t *testing.T) {
	a := New(NewCookieStore("session-secret"), jwtSecret)
	var seen string
	h := a.RequireUser(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFrom(r.Context())
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, seen)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, jwtSecret, "user-c", time.Now().Add(time.Hour)))
	rec = httptest.NewRecorder()
	h(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-c", seen)
}
