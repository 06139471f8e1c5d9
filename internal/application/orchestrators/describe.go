package orchestrators

import (
	"errors"

	"coachhub/internal/adapters/api"
	"coachhub/internal/domain/goal"
	"coachhub/internal/domain/payment"
	"coachhub/internal/domain/scheduling"
	"coachhub/internal/domain/session"
)

// Notice is a failure explained for the person who caused it. Logout is set
// when the session is gone and the user must sign in again.
type Notice struct {
	Kind    string            `json:"kind"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Logout  bool              `json:"logout,omitempty"`
}

var kindTitles = map[api.Kind]Notice{
	api.KindNetwork:        {Title: "Connection problem", Message: "The coaching service could not be reached. Check your connection and try again."},
	api.KindAuthentication: {Title: "Signed out", Message: "Your session has expired. Please sign in again.", Logout: true},
	api.KindAuthorization:  {Title: "Not allowed", Message: "You do not have permission to do that."},
	api.KindValidation:     {Title: "Check your input", Message: "Some fields need attention."},
	api.KindNotFound:       {Title: "Not found", Message: "That record no longer exists."},
	api.KindConflict:       {Title: "Conflict", Message: "That change conflicts with existing data."},
	api.KindServer:         {Title: "Service error", Message: "The coaching service had a problem. Please try again later."},
	api.KindUnknown:        {Title: "Something went wrong", Message: "An unexpected error occurred."},
}

// userErrors are failures whose own text is safe and useful to show.
var userErrors = []error{
	ErrInvalidCredentials,
	ErrDraftNotFound,
	ErrNoWizard,
	ErrDeactivateSelf,
	ErrEmailDisabled,
	scheduling.ErrNoCoach,
	scheduling.ErrNoEntrepreneur,
	scheduling.ErrNoScheduledTime,
	scheduling.ErrBadScheduledTime,
	scheduling.ErrInvalidDuration,
	scheduling.ErrNoMeetingURL,
	scheduling.ErrInvalidMeetingURL,
	scheduling.ErrAlreadyReviewing,
	scheduling.ErrNotReviewing,
	scheduling.ErrConflictChecking,
	scheduling.ErrConflictDetected,
	scheduling.ErrStaleConflictInfo,
	session.ErrInvalidStatus,
	session.ErrInvalidTransition,
	goal.ErrInvalidMilestoneStatus,
	payment.ErrNotOutstanding,
	payment.ErrNoInvoiceNumber,
}

// Describe turns an orchestrator or API error into a Notice. Errors without
// a known meaning get a generic message and never expose their text.
func Describe(err error) Notice {
	if err == nil {
		return Notice{}
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		n := kindTitles[apiErr.Kind]
		if n.Title == "" {
			n = kindTitles[api.KindUnknown]
		}
		n.Kind = string(apiErr.Kind)
		switch apiErr.Kind {
		case api.KindValidation:
			n.Fields = apiErr.Fields()
			if apiErr.Message != "" {
				n.Message = apiErr.Message
			}
		case api.KindConflict, api.KindNotFound:
			if apiErr.Message != "" {
				n.Message = apiErr.Message
			}
		}
		return n
	}
	if errors.Is(err, ErrForbidden) {
		n := kindTitles[api.KindAuthorization]
		n.Kind = string(api.KindAuthorization)
		return n
	}
	for _, known := range userErrors {
		if errors.Is(err, known) {
			return Notice{Kind: string(api.KindValidation), Title: "Cannot continue", Message: known.Error()}
		}
	}
	n := kindTitles[api.KindUnknown]
	n.Kind = string(api.KindUnknown)
	return n
}
