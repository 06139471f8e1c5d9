package web

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/api"
	"coachhub/internal/adapters/http/middleware"
	"coachhub/internal/application/conflicts"
	"coachhub/internal/application/orchestrators"
	"coachhub/internal/application/projections"
	"coachhub/internal/domain/scheduling"
	"coachhub/internal/domain/session"
)

// draftResponse is a wizard view plus the failure of the last action, if any.
type draftResponse struct {
	orchestrators.DraftView
	Notice *orchestrators.Notice `json:"notice,omitempty"`
}

// conflictRemote adapts the API conflict endpoint to the checker.
func conflictRemote(client RemoteAPI) conflicts.Remote {
	return conflicts.RemoteFunc(func(ctx context.Context, slot scheduling.Slot) (conflicts.Result, error) {
		res, err := client.CheckConflict(ctx, api.ConflictCheckRequest{
			CoachID:     slot.CoachID,
			ScheduledAt: slot.Start,
			Duration:    slot.Duration,
		})
		if err != nil {
			return conflicts.Result{}, err
		}
		return conflicts.Result{HasConflict: res.HasConflict, Conflicting: res.ConflictingSession}, nil
	})
}

// draftDeps builds what a draft opened by the request's session talks to.
func draftDeps(r *http.Request) orchestrators.DraftDeps {
	client := clientFor(r)
	p := principalOf(r)
	deps := projections.Deps{API: client, Cache: app.Cache}
	return orchestrators.DraftDeps{
		Remote: conflictRemote(client),
		Sessions: func(ctx context.Context, coachID string, around time.Time) ([]session.Session, error) {
			return projections.QueryCoachSessions(ctx, projections.CoachSessionsQuery{
				Principal: p,
				CoachID:   coachID,
				Around:    around,
			}, deps)
		},
		Create:    orchestrators.CreateSessionDeps{API: client, Cache: app.Cache},
		Checker:   app.Checker,
		ManagerID: p.UserID,
		Location:  app.Location,
	}
}

// lookupDraft returns the caller's draft named in the path or writes a 404.
func lookupDraft(w http.ResponseWriter, r *http.Request) (*orchestrators.Draft, bool) {
	d, err := app.Drafts.Get(r.PathValue("id"), currentSession(r).Token)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return d, true
}

// writeDraft answers with the draft view; a failed action adds its notice.
func writeDraft(w http.ResponseWriter, r *http.Request, status int, view orchestrators.DraftView, err error) {
	if err == nil {
		writeJSON(w, status, draftResponse{DraftView: view})
		return
	}
	n := orchestrators.Describe(err)
	if n.Logout {
		signOut(w, r)
		middleware.Unauthenticated(w, r)
		return
	}
	writeJSON(w, noticeStatus(err, n), draftResponse{DraftView: view, Notice: &n})
}

// handleSchedulingOptions handles GET /api/scheduling/options?q=
func handleSchedulingOptions(w http.ResponseWriter, r *http.Request) {
	result, err := projections.QuerySchedulingOptions(r.Context(), projections.SchedulingOptionsQuery{
		Principal: principalOf(r),
		Search:    r.URL.Query().Get("q"),
	}, projectionDeps(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coaches":       orEmpty(result.Coaches),
		"entrepreneurs": orEmpty(result.Entrepreneurs),
	})
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// handleOpenDraft handles POST /api/scheduling/drafts
func handleOpenDraft(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	d := app.Drafts.Open(s.Token, draftDeps(r))
	log.Info().Str("user_id", s.UserID).Str("draft_id", d.ID).Msg("scheduling_started")
	writeDraft(w, r, http.StatusCreated, d.View(), nil)
}

// handleGetDraft handles GET /api/scheduling/drafts/{id}
func handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDraft(w, r)
	if !ok {
		return
	}
	writeDraft(w, r, http.StatusOK, d.View(), nil)
}

// handleEditDraft handles PATCH /api/scheduling/drafts/{id}
// A failed load of the coach's sessions is logged; the remote check still runs.
func handleEditDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDraft(w, r)
	if !ok {
		return
	}
	var in scheduling.Draft
	if err := strictDecode(r, &in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	view, err := d.Edit(r.Context(), in)
	if err != nil && api.IsKind(err, api.KindAuthentication) {
		writeDraft(w, r, http.StatusOK, view, err)
		return
	}
	writeDraft(w, r, http.StatusOK, view, nil)
}

// handleDraftNext handles POST /api/scheduling/drafts/{id}/next
func handleDraftNext(w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDraft(w, r)
	if !ok {
		return
	}
	view, err := d.Next()
	writeDraft(w, r, http.StatusOK, view, err)
}

// handleDraftBack handles POST /api/scheduling/drafts/{id}/back
func handleDraftBack(w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDraft(w, r)
	if !ok {
		return
	}
	writeDraft(w, r, http.StatusOK, d.Back(), nil)
}

// handleDraftSubmit handles POST /api/scheduling/drafts/{id}/submit
func handleDraftSubmit(w http.ResponseWriter, r *http.Request) {
	d, ok := lookupDraft(w, r)
	if !ok {
		return
	}
	created, view, err := d.Submit(r.Context())
	if err != nil {
		writeDraft(w, r, http.StatusOK, view, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session": created,
		"draft":   view,
	})
}

// handleCloseDraft handles DELETE /api/scheduling/drafts/{id}
func handleCloseDraft(w http.ResponseWriter, r *http.Request) {
	if err := app.Drafts.Close(r.PathValue("id"), currentSession(r).Token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
