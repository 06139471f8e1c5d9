package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"coachhub/internal/adapters/api"
	"coachhub/internal/adapters/http/middleware"
	"coachhub/internal/application/listutil"
	"coachhub/internal/application/orchestrators"
	"coachhub/internal/application/projections"
	"coachhub/internal/domain/authsession"
	"coachhub/internal/domain/rbac"
	"coachhub/internal/domain/ref"
	"coachhub/internal/domain/user"
)

//go:embed templates/*.html
var templateFS embed.FS

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("path", r.URL.Path).Msg("internal_error")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("json_encode_failed")
	}
}

// noticeStatus maps a described failure to its HTTP status.
func noticeStatus(err error, n orchestrators.Notice) int {
	if errors.Is(err, orchestrators.ErrDraftNotFound) {
		return http.StatusNotFound
	}
	switch api.Kind(n.Kind) {
	case api.KindAuthentication:
		return http.StatusUnauthorized
	case api.KindAuthorization:
		return http.StatusForbidden
	case api.KindValidation:
		return http.StatusUnprocessableEntity
	case api.KindNotFound:
		return http.StatusNotFound
	case api.KindConflict:
		return http.StatusConflict
	case api.KindNetwork:
		return http.StatusServiceUnavailable
	case api.KindServer:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// signOut discards the request's session after the remote API rejected it
// and clears the cookie.
func signOut(w http.ResponseWriter, r *http.Request) {
	if s, ok := middleware.GetSessionFromContext(r.Context()); ok {
		ExpireSession(app.Sessions, app.Drafts)(r.Context())
		log.Info().Str("user_id", s.UserID).Str("path", r.URL.Path).Msg("session_expired")
	}
	middleware.ClearSessionCookie(w)
}

// writeError answers a failed JSON request. Authentication failures sign the
// user out; everything else is a Notice whose text is safe to show.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	n := orchestrators.Describe(err)
	if n.Logout {
		signOut(w, r)
		middleware.Unauthenticated(w, r)
		return
	}
	status := noticeStatus(err, n)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request_failed")
	}
	writeJSON(w, status, n)
}

// pageError answers a failed page navigation.
func pageError(w http.ResponseWriter, r *http.Request, err error) {
	n := orchestrators.Describe(err)
	if n.Logout {
		signOut(w, r)
		middleware.Unauthenticated(w, r)
		return
	}
	status := noticeStatus(err, n)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("page_failed")
	}
	renderTemplateStatus(w, r, status, "error.html", map[string]any{"Notice": n})
}

// currentSession returns the signed-in session. Routes behind RequireAuth always have one.
func currentSession(r *http.Request) authsession.Session {
	s, _ := middleware.GetSessionFromContext(r.Context())
	return s
}

// clientFor returns the remote API client of the request's session.
func clientFor(r *http.Request) RemoteAPI {
	return app.Clients(currentSession(r).Token)
}

// projectionDeps returns projection dependencies for the request's session.
func projectionDeps(r *http.Request) projections.Deps {
	return projections.Deps{API: clientFor(r), Cache: app.Cache}
}

func principalOf(r *http.Request) projections.Principal {
	return projections.PrincipalOf(currentSession(r))
}

func renderTemplate(w http.ResponseWriter, r *http.Request, templateName string, data any) {
	renderTemplateStatus(w, r, http.StatusOK, templateName, data)
}

func renderTemplateStatus(w http.ResponseWriter, r *http.Request, status int, templateName string, data any) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	loc := app.Location
	if loc == nil {
		loc = time.UTC
	}

	funcMap := template.FuncMap{
		"currentRole": func() string { return string(sess.Role) },
		"currentName": func() string {
			if name := strings.TrimSpace(sess.FirstName + " " + sess.LastName); name != "" {
				return name
			}
			return sess.Email
		},
		"isLoggedIn": func() bool { return ok },
		"csrfToken":  func() string { return csrf.Token(r) },
		"can": func(action, subject string) bool {
			return ok && rbac.Can(rbac.Context{Role: sess.Role}, rbac.Action(action), rbac.Subject(subject))
		},
		"renderMarkdown": func(md string) template.HTML {
			var buf bytes.Buffer
			if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
				return template.HTML(template.HTMLEscapeString(md))
			}
			return template.HTML(buf.String())
		},
		"clock": func(t time.Time) string { return t.In(loc).Format("15:04") },
		"dateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(loc).Format("Mon 2 Jan 2006 15:04")
		},
		"date": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.In(loc).Format("2 Jan 2006")
		},
		"money": func(amount float64, currency string) string {
			return fmt.Sprintf("%.2f %s", amount, currency)
		},
		"personName": func(r ref.Ref[user.Summary]) string {
			if s, ok := r.Embedded(); ok {
				if name := s.FullName(); name != "" {
					return name
				}
			}
			return r.ID()
		},
		"monthParam": func(t time.Time) string { return t.Format("2006-01") },
		"pageQuery": func(lp listutil.ListParams, page int) template.URL {
			return template.URL(lp.Encode(page))
		},
		"list": func(items ...string) []string { return items },
		"add":  func(a, b int) int { return a + b },
		"sub":  func(a, b int) int { return a - b },
	}

	tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+templateName)
	if err != nil {
		internalError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
