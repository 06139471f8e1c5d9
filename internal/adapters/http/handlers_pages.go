package web

import (
	"net/http"
	"time"

	"coachhub/internal/application/listutil"
	"coachhub/internal/application/projections"
	"coachhub/internal/domain/rbac"
)

// perfWindow is how far back the performance page aggregates.
const perfWindow = time.Hour

// handleDashboard handles GET /dashboard
func handleDashboard(w http.ResponseWriter, r *http.Request) {
	p := principalOf(r)
	result, err := projections.QueryDashboard(r.Context(), projections.DashboardQuery{
		Principal: p,
		Now:       app.Now(),
		Location:  app.Location,
	}, projectionDeps(r))
	if err != nil {
		pageError(w, r, err)
		return
	}

	var templateName string
	switch p.Role {
	case rbac.RoleManager, rbac.RoleAdmin:
		templateName = "dashboard_manager.html"
	case rbac.RoleCoach:
		templateName = "dashboard_coach.html"
	default:
		templateName = "dashboard_entrepreneur.html"
	}
	renderTemplate(w, r, templateName, result)
}

// handleSessionsPage handles GET /sessions?month=2026-03&coachId=...
func handleSessionsPage(w http.ResponseWriter, r *http.Request) {
	now := app.Now()
	month := now
	if m := r.URL.Query().Get("month"); m != "" {
		parsed, err := time.ParseInLocation("2006-01", m, app.Location)
		if err != nil {
			http.Error(w, "month must look like 2006-01", http.StatusBadRequest)
			return
		}
		month = parsed
	}
	coachID := r.URL.Query().Get("coachId")

	result, err := projections.QueryCalendar(r.Context(), projections.CalendarQuery{
		Principal: principalOf(r),
		Month:     month,
		Now:       now,
		Location:  app.Location,
		CoachID:   coachID,
	}, projectionDeps(r))
	if err != nil {
		pageError(w, r, err)
		return
	}
	renderTemplate(w, r, "sessions.html", map[string]any{
		"Calendar": result,
		"CoachID":  coachID,
	})
}

// handleGoalsPage handles GET /goals
func handleGoalsPage(w http.ResponseWriter, r *http.Request) {
	lp := listutil.ParseListParams(r.URL.Query(), projections.GoalSortColumns, projections.GoalFilterKeys)
	result, err := projections.QueryGoalList(r.Context(), projections.GoalListQuery{
		Principal: principalOf(r),
		List:      lp,
	}, projectionDeps(r))
	if err != nil {
		pageError(w, r, err)
		return
	}
	renderTemplate(w, r, "goals.html", map[string]any{
		"Goals": result,
		"Now":   app.Now(),
	})
}

// handlePaymentsPage handles GET /payments
func handlePaymentsPage(w http.ResponseWriter, r *http.Request) {
	lp := listutil.ParseListParams(r.URL.Query(), projections.PaymentSortColumns, projections.PaymentFilterKeys)
	now := app.Now()
	result, err := projections.QueryPaymentList(r.Context(), projections.PaymentListQuery{
		Principal: principalOf(r),
		List:      lp,
		Now:       now,
	}, projectionDeps(r))
	if err != nil {
		pageError(w, r, err)
		return
	}
	renderTemplate(w, r, "payments.html", map[string]any{
		"Payments":     result,
		"Now":          now,
		"EmailEnabled": app.Email != nil,
	})
}

// handleUsersPage handles GET /users
func handleUsersPage(w http.ResponseWriter, r *http.Request) {
	lp := listutil.ParseListParams(r.URL.Query(), projections.UserSortColumns, projections.UserFilterKeys)
	result, err := projections.QueryUserList(r.Context(), projections.UserListQuery{
		Principal: principalOf(r),
		List:      lp,
	}, projectionDeps(r))
	if err != nil {
		pageError(w, r, err)
		return
	}
	renderTemplate(w, r, "users.html", map[string]any{
		"Users":  result,
		"SelfID": currentSession(r).UserID,
	})
}

// handlePerfPage handles GET /admin/perf
func handlePerfPage(w http.ResponseWriter, r *http.Request) {
	hits, misses := app.Cache.Stats()
	data := map[string]any{
		"Window":       perfWindow,
		"OpenDrafts":   app.Drafts.Len(),
		"CacheHits":    hits,
		"CacheMisses":  misses,
		"CacheEntries": app.Cache.Len(),
	}
	if app.Collector != nil {
		data["Snapshot"] = app.Collector.Snapshot(app.Now().Add(-perfWindow), 10)
	}
	renderTemplate(w, r, "perf.html", data)
}
