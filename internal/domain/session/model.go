package session

import (
	"errors"
	"strings"
	"time"

	"coachhub/internal/domain/ref"
	"coachhub/internal/domain/user"
)

// Status constants
const (
	StatusScheduled   = "scheduled"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusNoShow      = "no_show"
	StatusRescheduled = "rescheduled"
)

// ValidStatuses contains all valid session statuses.
var ValidStatuses = []string{StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled}

// transitions lists the statuses reachable from each status.
// Completed, cancelled and no-show sessions are final.
var transitions = map[string][]string{
	StatusScheduled:   {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusRescheduled: {StatusScheduled, StatusCancelled},
}

// Domain errors
var (
	ErrEmptyCoach        = errors.New("coach is required")
	ErrEmptyEntrepreneur = errors.New("entrepreneur is required")
	ErrZeroStart         = errors.New("scheduled time is required")
	ErrNoEnd             = errors.New("either an end time or a positive duration is required")
	ErrEndBeforeStart    = errors.New("end time must be after the scheduled time")
	ErrInvalidStatus     = errors.New("status must be one of: scheduled, completed, cancelled, no_show, rescheduled")
	ErrInvalidTransition = errors.New("status change is not allowed")
)

// AgendaItem is one ordered entry in a session agenda.
type AgendaItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Duration    int    `json:"duration"` // minutes
}

// Notes holds free text partitioned by the role that wrote it.
type Notes struct {
	CoachNotes        string   `json:"coachNotes,omitempty"`
	EntrepreneurNotes string   `json:"entrepreneurNotes,omitempty"`
	ManagerNotes      string   `json:"managerNotes,omitempty"`
	ActionItems       []string `json:"actionItems,omitempty"`
}

// Session is a coaching session as consumed by the scheduling core.
type Session struct {
	ID                 string                `json:"_id"`
	CoachID            ref.Ref[user.Summary] `json:"coachId"`
	EntrepreneurID     ref.Ref[user.Summary] `json:"entrepreneurId"`
	ManagerID          string                `json:"managerId,omitempty"`
	Entrepreneur       *user.Summary         `json:"entrepreneur,omitempty"`
	ScheduledAt        time.Time             `json:"scheduledAt"`
	EndTime            *time.Time            `json:"endTime,omitempty"`
	Duration           int                   `json:"duration,omitempty"` // minutes
	Status             string                `json:"status"`
	Location           string                `json:"location,omitempty"`
	VideoConferenceURL string                `json:"videoConferenceUrl,omitempty"`
	Description        string                `json:"description,omitempty"`
	AgendaItems        []AgendaItem          `json:"agendaItems,omitempty"`
	Notes              Notes                 `json:"notes"`
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Validate checks if the Session has valid data.
// PRE: Session struct is populated
// POST: Returns nil if valid, error otherwise
func (s *Session) Validate() error {
	if s.CoachID.ID() == "" {
		return ErrEmptyCoach
	}
	if s.EntrepreneurID.ID() == "" {
		return ErrEmptyEntrepreneur
	}
	if s.ScheduledAt.IsZero() {
		return ErrZeroStart
	}
	if (s.EndTime == nil || s.EndTime.IsZero()) && s.Duration <= 0 {
		return ErrNoEnd
	}
	if !s.End().After(s.ScheduledAt) {
		return ErrEndBeforeStart
	}
	if s.Status != "" && !IsValidStatus(s.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// End returns the explicit end time, or ScheduledAt plus Duration minutes.
// INVARIANT: Session fields are not mutated
func (s *Session) End() time.Time {
	if s.EndTime != nil && !s.EndTime.IsZero() {
		return *s.EndTime
	}
	return s.ScheduledAt.Add(time.Duration(s.Duration) * time.Minute)
}

// Interval returns the [ScheduledAt, End) range the session occupies.
func (s *Session) Interval() Interval {
	return Interval{Start: s.ScheduledAt, End: s.End()}
}

// DurationMinutes returns Duration, or the span between start and end when only
// an end time was sent.
func (s *Session) DurationMinutes() int {
	if s.Duration > 0 {
		return s.Duration
	}
	return int(s.End().Sub(s.ScheduledAt) / time.Minute)
}

// EntrepreneurName returns the embedded entrepreneur name when the API sent one.
func (s *Session) EntrepreneurName() string {
	if s.Entrepreneur != nil {
		return s.Entrepreneur.FullName()
	}
	if e, ok := s.EntrepreneurID.Embedded(); ok {
		return e.FullName()
	}
	return ""
}

// IsUpcoming reports whether the session is still scheduled and has not ended.
func (s *Session) IsUpcoming(now time.Time) bool {
	return (s.Status == StatusScheduled || s.Status == StatusRescheduled) && s.End().After(now)
}

// OccursOn reports whether the session starts on the same calendar day as day
// in day's location.
func (s *Session) OccursOn(day time.Time) bool {
	start := s.ScheduledAt.In(day.Location())
	y1, m1, d1 := start.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// CanTransition reports whether the status may change from s.Status to next.
// PRE: next is a valid status
// POST: Returns false for final statuses and unknown targets
func (s *Session) CanTransition(next string) bool {
	for _, t := range transitions[s.Status] {
		if t == next {
			return true
		}
	}
	return false
}

// FindConflicts returns the sessions of coachID whose interval intersects
// [start, start+duration). An empty result means no conflict.
// PRE: duration > 0
// POST: Returned sessions all belong to coachID and overlap the candidate
func FindConflicts(coachID string, start time.Time, duration time.Duration, existing []Session) []Session {
	coachID = strings.TrimSpace(coachID)
	if coachID == "" || duration <= 0 {
		return nil
	}
	candidate := Interval{Start: start, End: start.Add(duration)}
	var conflicts []Session
	for _, s := range existing {
		if s.CoachID.ID() != coachID {
			continue
		}
		if candidate.Overlaps(s.Interval()) {
			conflicts = append(conflicts, s)
		}
	}
	return conflicts
}

// IsValidStatus reports whether status is a known session status.
func IsValidStatus(status string) bool {
	for _, v := range ValidStatuses {
		if v == status {
			return true
		}
	}
	return false
}
