package web

import (
	"net/http"

	"coachhub/internal/adapters/http/middleware"
	"coachhub/internal/domain/rbac"
)

func guard(action rbac.Action, subject rbac.Subject, h http.HandlerFunc) http.Handler {
	return middleware.RequirePermission(action, subject)(h)
}

func authed(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(h)
}

// registerRoutes wires every page and page-script endpoint onto mux.
func registerRoutes(mux *http.ServeMux) {
	// Pages
	mux.HandleFunc("GET /{$}", handleHome)
	mux.HandleFunc("GET /login", handleLoginPage)
	mux.HandleFunc("POST /login", handleLogin)
	mux.HandleFunc("POST /logout", handleLogout)
	mux.Handle("GET /dashboard", authed(handleDashboard))
	mux.Handle("GET /sessions", guard(rbac.ActionView, rbac.SubjectSessions, handleSessionsPage))
	mux.Handle("GET /goals", guard(rbac.ActionView, rbac.SubjectGoals, handleGoalsPage))
	mux.Handle("GET /payments", guard(rbac.ActionView, rbac.SubjectPayments, handlePaymentsPage))
	mux.Handle("GET /payments/export.xlsx", guard(rbac.ActionView, rbac.SubjectPayments, handlePaymentsExport))
	mux.Handle("GET /users", guard(rbac.ActionView, rbac.SubjectUsers, handleUsersPage))
	mux.Handle("GET /admin/perf", guard(rbac.ActionConfigure, rbac.SubjectOrgSettings, handlePerfPage))

	// Sessions
	mux.Handle("GET /api/sessions", guard(rbac.ActionView, rbac.SubjectSessions, handleListSessions))
	mux.Handle("POST /api/sessions/{id}/status", authed(handleUpdateSessionStatus))

	// Scheduling wizard
	mux.Handle("GET /api/scheduling/options", guard(rbac.ActionCreate, rbac.SubjectSessions, handleSchedulingOptions))
	mux.Handle("POST /api/scheduling/drafts", guard(rbac.ActionCreate, rbac.SubjectSessions, handleOpenDraft))
	mux.Handle("GET /api/scheduling/drafts/{id}", authed(handleGetDraft))
	mux.Handle("PATCH /api/scheduling/drafts/{id}", authed(handleEditDraft))
	mux.Handle("DELETE /api/scheduling/drafts/{id}", authed(handleCloseDraft))
	mux.Handle("POST /api/scheduling/drafts/{id}/next", authed(handleDraftNext))
	mux.Handle("POST /api/scheduling/drafts/{id}/back", authed(handleDraftBack))
	mux.Handle("POST /api/scheduling/drafts/{id}/submit", authed(handleDraftSubmit))

	// Goals
	mux.Handle("POST /api/goals/{id}/progress", authed(handleUpdateGoalProgress))
	mux.Handle("PATCH /api/goals/{id}/milestones/{milestoneID}", authed(handleUpdateMilestone))

	// Payments
	mux.Handle("POST /api/payments/{id}/mark-paid", authed(handleMarkPaid))
	mux.Handle("POST /api/payments/{id}/invoice", authed(handleSendInvoice))
	mux.Handle("POST /api/payments/reminders", authed(handleSendReminders))

	// Users
	mux.Handle("POST /api/users/{id}/active", authed(handleToggleUserActive))
}
