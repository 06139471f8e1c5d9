package orchestrators

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/querycache"
	"coachhub/internal/domain/scheduling"
	"coachhub/internal/domain/session"
)

// Invalidator drops cached reads of a resource. *querycache.Cache implements it.
type Invalidator interface {
	Invalidate(resources ...string)
}

// SessionCreator defines the API interface needed by CreateSession.
type SessionCreator interface {
	CreateSession(ctx context.Context, in scheduling.CreateRequest) (session.Session, error)
}

// CreateSessionInput carries input for the create session orchestrator.
type CreateSessionInput struct {
	Wizard       *scheduling.Wizard
	Availability scheduling.Availability
	ManagerID    string
}

// CreateSessionDeps holds dependencies for CreateSession.
type CreateSessionDeps struct {
	API   SessionCreator
	Cache Invalidator
}

// ErrNoWizard is returned when CreateSession is called without a wizard.
var ErrNoWizard = errors.New("scheduling form is not open")

// ExecuteCreateSession submits the wizard's draft.
// PRE: input.Wizard is on the review step
// POST: On success the sessions cache is invalidated and the wizard is reset;
// on a validation error the wizard returns to the step of the first bad field
// INVARIANT: Nothing is sent while a conflict is known or still being checked
func ExecuteCreateSession(ctx context.Context, input CreateSessionInput, deps CreateSessionDeps) (session.Session, error) {
	w := input.Wizard
	if w == nil {
		return session.Session{}, ErrNoWizard
	}
	if err := w.CanSubmit(input.Availability); err != nil {
		log.Info().Err(err).Str("coach_id", w.Draft().CoachID).Msg("session_submit_blocked")
		return session.Session{}, err
	}
	payload, err := w.Payload(input.ManagerID)
	if err != nil {
		return session.Session{}, err
	}

	created, err := deps.API.CreateSession(ctx, payload)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Kind == api.KindValidation {
			w.ApplyServerErrors(schedulingFieldErrors(apiErr.Details))
		}
		log.Info().Err(err).Str("coach_id", payload.CoachID).Str("kind", string(api.KindOf(err))).Msg("session_create_failed")
		return session.Session{}, err
	}

	deps.Cache.Invalidate(querycache.ResourceSessions)
	w.Reset()
	log.Info().
		Str("session_id", created.ID).
		Str("coach_id", payload.CoachID).
		Str("entrepreneur_id", payload.EntrepreneurID).
		Time("scheduled_at", payload.ScheduledAt).
		Msg("session_created")
	return created, nil
}

func schedulingFieldErrors(details []api.FieldError) []scheduling.FieldError {
	out := make([]scheduling.FieldError, 0, len(details))
	for _, d := range details {
		out = append(out, scheduling.FieldError{Field: d.Field, Message: d.Message})
	}
	return out
}
