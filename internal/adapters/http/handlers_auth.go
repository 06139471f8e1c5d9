package web

import (
	"net/http"

	"github.com/gorilla/csrf"

	"coachhub/internal/adapters/http/middleware"
	"coachhub/internal/application/orchestrators"
)

// handleHome sends visitors to their dashboard or the login page.
func handleHome(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleLoginPage handles GET /login
func handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	renderTemplate(w, r, "login.html", map[string]any{
		"CSRFToken": csrf.Token(r),
	})
}

// handleLogin handles POST /login
func handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	input := orchestrators.LoginInput{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}
	deps := orchestrators.LoginDeps{
		Auth:          app.Auth,
		Store:         app.Sessions,
		Now:           app.Now,
		GenerateToken: orchestrators.NewSessionToken,
	}

	s, err := orchestrators.ExecuteLogin(r.Context(), input, deps)
	if err != nil {
		n := orchestrators.Describe(err)
		status := noticeStatus(err, n)
		if n.Logout || status == http.StatusUnprocessableEntity {
			status = http.StatusUnauthorized
		}
		renderTemplateStatus(w, r, status, "login.html", map[string]any{
			"CSRFToken": csrf.Token(r),
			"Email":     input.Email,
			"Error":     n.Message,
		})
		return
	}

	middleware.SetSessionCookie(w, s.Token)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// handleLogout handles POST /logout
func handleLogout(w http.ResponseWriter, r *http.Request) {
	if s, ok := middleware.GetSessionFromContext(r.Context()); ok {
		deps := orchestrators.LogoutDeps{
			Store:  app.Sessions,
			API:    app.Clients(s.Token),
			Drafts: app.Drafts,
		}
		if err := orchestrators.ExecuteLogout(r.Context(), orchestrators.LogoutInput{Token: s.Token}, deps); err != nil {
			internalError(w, r, err)
			return
		}
	}
	middleware.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
