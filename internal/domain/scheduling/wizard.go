package scheduling

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Step is a position in the session creation wizard.
type Step int

// Wizard steps, traversed linearly.
const (
	StepSelectCoach        Step = 1
	StepSelectEntrepreneur Step = 2
	StepScheduleDetails    Step = 3
	StepReviewConfirm      Step = 4
)

// Field names as used by the remote API and the form.
const (
	FieldCoach        = "coachId"
	FieldEntrepreneur = "entrepreneurId"
	FieldScheduledAt  = "scheduledAt"
	FieldEndTime      = "endTime"
	FieldDuration     = "duration"
	FieldLocation     = "location"
	FieldMeetingURL   = "videoConferenceUrl"
	FieldDescription  = "description"
)

// DefaultDuration is the preselected session length in minutes.
const DefaultDuration = 60

// MaxDuration caps a single session at eight hours.
const MaxDuration = 480

// localLayout is the format of an HTML datetime-local input.
const localLayout = "2006-01-02T15:04"

// Domain errors
var (
	ErrNoCoach           = errors.New("select a coach to continue")
	ErrNoEntrepreneur    = errors.New("select an entrepreneur to continue")
	ErrNoScheduledTime   = errors.New("choose a date and time")
	ErrBadScheduledTime  = errors.New("date and time could not be read")
	ErrInvalidDuration   = errors.New("duration must be between 1 and 480 minutes")
	ErrNoMeetingURL      = errors.New("a meeting link is required for online sessions")
	ErrInvalidMeetingURL = errors.New("meeting link must be a full http or https URL")
	ErrAlreadyReviewing  = errors.New("already on the review step; submit or go back")
	ErrNotReviewing      = errors.New("finish the previous steps before submitting")
	ErrConflictChecking  = errors.New("still checking the coach's availability")
	ErrConflictDetected  = errors.New("the coach already has a session at that time")
	ErrStaleConflictInfo = errors.New("availability was checked for different inputs")
)

// fieldSteps maps a field to the step where it is edited.
var fieldSteps = map[string]Step{
	FieldCoach:        StepSelectCoach,
	FieldEntrepreneur: StepSelectEntrepreneur,
	FieldScheduledAt:  StepScheduleDetails,
	FieldEndTime:      StepScheduleDetails,
	FieldDuration:     StepScheduleDetails,
	FieldLocation:     StepScheduleDetails,
	FieldMeetingURL:   StepScheduleDetails,
	FieldDescription:  StepScheduleDetails,
}

// Draft is the raw form input. It is discarded when the wizard closes.
type Draft struct {
	CoachID            string `json:"coachId"`
	EntrepreneurID     string `json:"entrepreneurId"`
	ScheduledAt        string `json:"scheduledAt"`
	Duration           int    `json:"duration"`
	Location           string `json:"location"`
	VideoConferenceURL string `json:"videoConferenceUrl"`
	Description        string `json:"description"`
}

// Slot is the (coach, start, duration) triple a conflict check depends on.
type Slot struct {
	CoachID  string
	Start    time.Time
	Duration int // minutes
}

// Equal reports whether two slots describe the same check.
func (s Slot) Equal(o Slot) bool {
	return s.CoachID == o.CoachID && s.Start.Equal(o.Start) && s.Duration == o.Duration
}

// IsComplete reports whether a conflict check can be issued for the slot.
func (s Slot) IsComplete() bool {
	return s.CoachID != "" && !s.Start.IsZero() && s.Duration > 0
}

// Availability summarises the local and remote conflict checks.
// Slot is the input the remote result was computed for.
type Availability struct {
	Slot           Slot
	LocalConflict  bool
	RemoteConflict bool
	Checking       bool
}

// FieldError is a server-side validation failure on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CreateRequest is the body sent to create a session.
type CreateRequest struct {
	CoachID            string    `json:"coachId"`
	EntrepreneurID     string    `json:"entrepreneurId"`
	ManagerID          string    `json:"managerId"`
	ScheduledAt        time.Time `json:"scheduledAt"`
	EndTime            time.Time `json:"endTime"`
	Duration           int       `json:"duration"`
	Location           string    `json:"location,omitempty"`
	VideoConferenceURL string    `json:"videoConferenceUrl"`
	Description        string    `json:"description,omitempty"`
}

// Wizard is the four-step session creation state machine.
type Wizard struct {
	step   Step
	draft  Draft
	errors map[string]string
	loc    *time.Location
}

// New returns a wizard on step 1. Times without an offset are read in loc.
func New(loc *time.Location) *Wizard {
	if loc == nil {
		loc = time.UTC
	}
	w := &Wizard{loc: loc}
	w.Reset()
	return w
}

// Reset returns the wizard to step 1 with an empty draft.
// POST: Step() == StepSelectCoach, Draft() is empty apart from the default duration
func (w *Wizard) Reset() {
	w.step = StepSelectCoach
	w.draft = Draft{Duration: DefaultDuration}
	w.errors = make(map[string]string)
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	return w.step
}

// Draft returns a copy of the current input.
func (w *Wizard) Draft() Draft {
	return w.draft
}

// FieldErrors returns a copy of the current field errors.
func (w *Wizard) FieldErrors() map[string]string {
	out := make(map[string]string, len(w.errors))
	for k, v := range w.errors {
		out[k] = v
	}
	return out
}

// SetCoach selects the coach. Allowed on any step.
func (w *Wizard) SetCoach(id string) {
	w.draft.CoachID = strings.TrimSpace(id)
	delete(w.errors, FieldCoach)
}

// SetEntrepreneur selects the entrepreneur. Allowed on any step.
func (w *Wizard) SetEntrepreneur(id string) {
	w.draft.EntrepreneurID = strings.TrimSpace(id)
	delete(w.errors, FieldEntrepreneur)
}

// SetSchedule sets the start time input and duration in minutes.
// A non-positive duration keeps the current value.
func (w *Wizard) SetSchedule(scheduledAt string, duration int) {
	w.draft.ScheduledAt = strings.TrimSpace(scheduledAt)
	if duration > 0 {
		w.draft.Duration = duration
	}
	delete(w.errors, FieldScheduledAt)
	delete(w.errors, FieldEndTime)
	delete(w.errors, FieldDuration)
}

// SetDetails sets the location, meeting link and description.
func (w *Wizard) SetDetails(location, meetingURL, description string) {
	w.draft.Location = strings.TrimSpace(location)
	w.draft.VideoConferenceURL = strings.TrimSpace(meetingURL)
	w.draft.Description = description
	delete(w.errors, FieldLocation)
	delete(w.errors, FieldMeetingURL)
	delete(w.errors, FieldDescription)
}

// Apply replaces the whole draft, as sent by a form autosave.
func (w *Wizard) Apply(d Draft) {
	w.SetCoach(d.CoachID)
	w.SetEntrepreneur(d.EntrepreneurID)
	w.SetSchedule(d.ScheduledAt, d.Duration)
	w.SetDetails(d.Location, d.VideoConferenceURL, d.Description)
}

// Next advances one step if the current step's guard passes.
// PRE: Step() < StepReviewConfirm
// POST: On success Step() is incremented; on failure the offending field error is recorded
func (w *Wizard) Next() error {
	var field string
	var err error
	switch w.step {
	case StepSelectCoach:
		field, err = FieldCoach, w.checkCoach()
	case StepSelectEntrepreneur:
		field, err = FieldEntrepreneur, w.checkEntrepreneur()
	case StepScheduleDetails:
		field, err = w.checkDetails()
	default:
		return ErrAlreadyReviewing
	}
	if err != nil {
		w.errors[field] = err.Error()
		return err
	}
	w.step++
	return nil
}

// Back moves one step back without validation.
// POST: Returns false and does nothing on step 1
func (w *Wizard) Back() bool {
	if w.step <= StepSelectCoach {
		return false
	}
	w.step--
	return true
}

// Slot returns the conflict-check inputs for the current draft. Start is zero
// when the time cannot be parsed.
func (w *Wizard) Slot() Slot {
	start, _ := w.StartTime()
	return Slot{CoachID: w.draft.CoachID, Start: start, Duration: w.draft.Duration}
}

// StartTime parses the scheduled time input.
func (w *Wizard) StartTime() (time.Time, error) {
	return ParseScheduledAt(w.draft.ScheduledAt, w.loc)
}

// CanSubmit reports whether the wizard may submit given the current
// availability. A remote result computed for another slot never authorises.
// PRE: none
// POST: Returns nil only on the review step with valid input and no known conflict
func (w *Wizard) CanSubmit(a Availability) error {
	if w.step != StepReviewConfirm {
		return ErrNotReviewing
	}
	if err := w.checkCoach(); err != nil {
		return err
	}
	if err := w.checkEntrepreneur(); err != nil {
		return err
	}
	if _, err := w.checkDetails(); err != nil {
		return err
	}
	if a.LocalConflict {
		return ErrConflictDetected
	}
	if a.Checking {
		return ErrConflictChecking
	}
	if !a.Slot.Equal(w.Slot()) {
		return ErrStaleConflictInfo
	}
	if a.RemoteConflict {
		return ErrConflictDetected
	}
	return nil
}

// Payload composes the create request. endTime = scheduledAt + duration.
// PRE: CanSubmit returned nil
// POST: Times are in UTC
func (w *Wizard) Payload(managerID string) (CreateRequest, error) {
	start, err := w.StartTime()
	if err != nil {
		return CreateRequest{}, err
	}
	start = start.UTC()
	return CreateRequest{
		CoachID:            w.draft.CoachID,
		EntrepreneurID:     w.draft.EntrepreneurID,
		ManagerID:          managerID,
		ScheduledAt:        start,
		EndTime:            start.Add(time.Duration(w.draft.Duration) * time.Minute),
		Duration:           w.draft.Duration,
		Location:           w.draft.Location,
		VideoConferenceURL: w.draft.VideoConferenceURL,
		Description:        w.draft.Description,
	}, nil
}

// ApplyServerErrors records field errors returned by the server and moves the
// wizard back to the earliest step holding one of them.
// POST: Returns false and leaves the step unchanged when no field is recognised
func (w *Wizard) ApplyServerErrors(details []FieldError) bool {
	target := Step(0)
	for _, d := range details {
		step, ok := fieldSteps[d.Field]
		if !ok {
			continue
		}
		w.errors[d.Field] = d.Message
		if target == 0 || step < target {
			target = step
		}
	}
	if target == 0 {
		return false
	}
	w.step = target
	return true
}

func (w *Wizard) checkCoach() error {
	if w.draft.CoachID == "" {
		return ErrNoCoach
	}
	return nil
}

func (w *Wizard) checkEntrepreneur() error {
	if w.draft.EntrepreneurID == "" {
		return ErrNoEntrepreneur
	}
	return nil
}

func (w *Wizard) checkDetails() (string, error) {
	if w.draft.ScheduledAt == "" {
		return FieldScheduledAt, ErrNoScheduledTime
	}
	if _, err := w.StartTime(); err != nil {
		return FieldScheduledAt, err
	}
	if w.draft.Duration <= 0 || w.draft.Duration > MaxDuration {
		return FieldDuration, ErrInvalidDuration
	}
	if err := ValidateMeetingURL(w.draft.VideoConferenceURL); err != nil {
		return FieldMeetingURL, err
	}
	return "", nil
}

// ValidateMeetingURL requires an absolute http or https URL with a host.
func ValidateMeetingURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrNoMeetingURL
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidMeetingURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidMeetingURL
	}
	return nil
}

// ParseScheduledAt accepts RFC 3339 or an HTML datetime-local value read in loc.
func ParseScheduledAt(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrNoScheduledTime
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(localLayout, raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, ErrBadScheduledTime
}
