package web

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/listutil"
	"coachhub/internal/application/orchestrators"
	"coachhub/internal/application/projections"
	"coachhub/internal/domain/session"
)

// exportLimit bounds the payments written to one spreadsheet.
const exportLimit = 500

// pageJSON is the list envelope returned to page scripts.
type pageJSON[T any] struct {
	Items []T               `json:"items"`
	Page  listutil.PageInfo `json:"page"`
}

// parseTimeParam reads an RFC 3339 time or a 2006-01-02 date in the app location.
func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, app.Location)
}

// handleListSessions handles GET /api/sessions
func handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		http.Error(w, "Invalid from", http.StatusBadRequest)
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		http.Error(w, "Invalid to", http.StatusBadRequest)
		return
	}

	lp := listutil.ParseListParams(q, projections.SessionSortColumns, projections.SessionFilterKeys)
	result, err := projections.QuerySessionList(r.Context(), projections.SessionListQuery{
		Principal: principalOf(r),
		List:      lp,
		From:      from,
		To:        to,
	}, projectionDeps(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := result.Items
	if items == nil {
		items = []session.Session{}
	}
	writeJSON(w, http.StatusOK, pageJSON[session.Session]{Items: items, Page: result.Page})
}

// handleUpdateSessionStatus handles POST /api/sessions/{id}/status
func handleUpdateSessionStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := strictDecode(r, &body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	updated, err := orchestrators.ExecuteUpdateSessionStatus(r.Context(), orchestrators.UpdateSessionStatusInput{
		Actor:     principalOf(r).RBAC(),
		SessionID: r.PathValue("id"),
		Status:    body.Status,
	}, orchestrators.UpdateSessionStatusDeps{API: clientFor(r), Cache: app.Cache})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleUpdateGoalProgress handles POST /api/goals/{id}/progress
func handleUpdateGoalProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Progress int `json:"progress"`
	}
	if err := strictDecode(r, &body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	g, err := orchestrators.ExecuteUpdateGoalProgress(r.Context(), orchestrators.UpdateGoalProgressInput{
		Actor:    principalOf(r).RBAC(),
		GoalID:   r.PathValue("id"),
		Progress: body.Progress,
	}, orchestrators.GoalDeps{API: clientFor(r), Cache: app.Cache})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleUpdateMilestone handles PATCH /api/goals/{id}/milestones/{milestoneID}
func handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := strictDecode(r, &body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	g, err := orchestrators.ExecuteUpdateMilestone(r.Context(), orchestrators.UpdateMilestoneInput{
		Actor:       principalOf(r).RBAC(),
		GoalID:      r.PathValue("id"),
		MilestoneID: r.PathValue("milestoneID"),
		Status:      body.Status,
		Notes:       body.Notes,
	}, orchestrators.GoalDeps{API: clientFor(r), Cache: app.Cache})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func paymentDeps(r *http.Request) orchestrators.PaymentDeps {
	return orchestrators.PaymentDeps{
		API:   clientFor(r),
		Cache: app.Cache,
		Email: app.Email,
		Now:   app.Now,
	}
}

// handleMarkPaid handles POST /api/payments/{id}/mark-paid
func handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaidAt string `json:"paidAt"`
	}
	if r.ContentLength != 0 {
		if err := strictDecode(r, &body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	paidAt, err := parseTimeParam(body.PaidAt)
	if err != nil {
		http.Error(w, "Invalid paidAt", http.StatusBadRequest)
		return
	}
	s := currentSession(r)
	result, err := orchestrators.ExecuteMarkPaid(r.Context(), orchestrators.MarkPaidInput{
		Actor:          principalOf(r).RBAC(),
		OrganizationID: s.OrganizationID,
		PaymentID:      r.PathValue("id"),
		PaidAt:         paidAt,
	}, paymentDeps(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment":     result.Payment,
		"receiptSent": result.ReceiptSent,
	})
}

// handleSendInvoice handles POST /api/payments/{id}/invoice
func handleSendInvoice(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	sent, err := orchestrators.ExecuteSendInvoice(r.Context(), orchestrators.SendInvoiceInput{
		Actor:          principalOf(r).RBAC(),
		OrganizationID: s.OrganizationID,
		PaymentID:      r.PathValue("id"),
	}, paymentDeps(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messageId": sent.MessageID,
		"sentAt":    sent.SentAt,
	})
}

// handleSendReminders handles POST /api/payments/reminders
func handleSendReminders(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	result, err := orchestrators.ExecuteSendOverdueReminders(r.Context(), orchestrators.SendRemindersInput{
		Actor:          principalOf(r).RBAC(),
		OrganizationID: s.OrganizationID,
	}, paymentDeps(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	skipped := result.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sent":    result.Sent,
		"skipped": skipped,
	})
}

// handlePaymentsExport handles GET /payments/export.xlsx
func handlePaymentsExport(w http.ResponseWriter, r *http.Request) {
	p := principalOf(r)
	q := projections.Scope(p).Apply(api.ListQuery{
		Status: r.URL.Query().Get("status"),
		Limit:  exportLimit,
	})
	fetched, err := clientFor(r).ListPayments(r.Context(), q)
	if err != nil {
		pageError(w, r, err)
		return
	}

	now := app.Now()
	var buf bytes.Buffer
	err = orchestrators.ExecuteExportPayments(r.Context(), orchestrators.ExportPaymentsInput{
		Actor:    p.RBAC(),
		Payments: fetched.Items,
		Now:      now,
	}, &buf)
	if err != nil {
		pageError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="payments-%s.xlsx"`, now.In(app.Location).Format("2006-01-02")))
	buf.WriteTo(w)
	log.Info().Str("user_id", p.UserID).Int("count", len(fetched.Items)).Msg("payments_exported")
}

// handleToggleUserActive handles POST /api/users/{id}/active
func handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := strictDecode(r, &body); err != nil || body.Active == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s := currentSession(r)
	u, err := orchestrators.ExecuteToggleUserActive(r.Context(), orchestrators.ToggleUserActiveInput{
		Actor:   principalOf(r).RBAC(),
		ActorID: s.UserID,
		UserID:  r.PathValue("id"),
		Active:  *body.Active,
	}, orchestrators.ToggleUserActiveDeps{API: clientFor(r), Cache: app.Cache})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
