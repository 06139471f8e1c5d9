package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"coachhub/internal/domain/authsession"
	"coachhub/internal/domain/rbac"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const (
	sessionContextKey contextKey = "session"
	tokenContextKey   contextKey = "session_token"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "coachhub_session"

// SecureCookies marks cookies Secure. Set in production.
var SecureCookies bool

// SessionGetter loads a stored session by cookie token.
type SessionGetter interface {
	Get(ctx context.Context, token string) (authsession.Session, error)
}

// Auth returns middleware that loads the session named by the cookie into the context.
// It does NOT block unauthenticated requests; use RequireAuth or RequirePermission for that.
func Auth(sessions SessionGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err == nil && cookie.Value != "" {
				if s, err := sessions.Get(r.Context(), cookie.Value); err == nil {
					r = r.WithContext(ContextWithSession(r.Context(), s))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WantsJSON reports whether the caller is a page script rather than a navigation.
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// Unauthenticated sends the caller to the login page: a 303 for navigations,
// a 401 with {"redirect": "/login"} for page scripts.
func Unauthenticated(w http.ResponseWriter, r *http.Request) {
	if WantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"redirect": "/login"})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// RequireAuth returns middleware that blocks unauthenticated requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionFromContext(r.Context()); !ok {
			Unauthenticated(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission returns middleware that blocks requests whose role may not
// perform action on subject. Navigations go back to the dashboard; page
// scripts get a 403.
func RequirePermission(action rbac.Action, subject rbac.Subject) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := GetSessionFromContext(r.Context())
			if !ok {
				Unauthenticated(w, r)
				return
			}
			if !rbac.Can(rbac.Context{Role: s.Role}, action, subject) {
				log.Info().
					Str("user_id", s.UserID).
					Str("role", string(s.Role)).
					Str("action", string(action)).
					Str("subject", string(subject)).
					Msg("permission_denied")
				if WantsJSON(r) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (authsession.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(authsession.Session)
	return s, ok
}

// SessionToken returns the cookie token of the request's session.
func SessionToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok && token != ""
}

// ContextWithSession returns a context carrying s and its token.
func ContextWithSession(ctx context.Context, s authsession.Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, s)
	return context.WithValue(ctx, tokenContextKey, s.Token)
}

// Can reports whether the request's role may perform action on subject.
func Can(ctx context.Context, action rbac.Action, subject rbac.Subject) bool {
	s, ok := GetSessionFromContext(ctx)
	if !ok {
		return false
	}
	return rbac.Can(rbac.Context{Role: s.Role}, action, subject)
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(authsession.MaxAge.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}
