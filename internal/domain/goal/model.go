package goal

import (
	"errors"
	"strings"
	"time"

	"coachhub/internal/domain/ref"
	"coachhub/internal/domain/user"
)

// Status constants
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
)

// Priority constants
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Milestone status constants
const (
	MilestonePending    = "pending"
	MilestoneInProgress = "in_progress"
	MilestoneCompleted  = "completed"
)

// ValidStatuses contains all valid goal statuses.
var ValidStatuses = []string{StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked}

// ValidPriorities contains all valid goal priorities.
var ValidPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// ValidMilestoneStatuses contains all valid milestone statuses.
var ValidMilestoneStatuses = []string{MilestonePending, MilestoneInProgress, MilestoneCompleted}

// Domain errors
var (
	ErrEmptyTitle             = errors.New("title is required")
	ErrEmptyEntrepreneur      = errors.New("entrepreneur is required")
	ErrInvalidStatus          = errors.New("status must be one of: not_started, in_progress, completed, blocked")
	ErrInvalidPriority        = errors.New("priority must be one of: low, medium, high, critical")
	ErrInvalidMilestoneStatus = errors.New("milestone status must be one of: pending, in_progress, completed")
	ErrMilestoneIndex         = errors.New("milestone does not exist")
)

// Milestone is a checkpoint towards a goal.
type Milestone struct {
	ID          string     `json:"_id,omitempty"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	TargetDate  *time.Time `json:"targetDate,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Comment is a remark left on a goal.
type Comment struct {
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Goal is an entrepreneur objective tracked by a coach.
type Goal struct {
	ID             string                `json:"_id"`
	Title          string                `json:"title"`
	Description    string                `json:"description,omitempty"`
	EntrepreneurID ref.Ref[user.Summary] `json:"entrepreneurId"`
	CoachID        ref.Ref[user.Summary] `json:"coachId"`
	Status         string                `json:"status"`
	Priority       string                `json:"priority"`
	Progress       int                   `json:"progress"`
	TargetDate     *time.Time            `json:"targetDate,omitempty"`
	Milestones     []Milestone           `json:"milestones,omitempty"`
	Comments       []Comment             `json:"comments,omitempty"`
	SessionIDs     []string              `json:"linkedSessions,omitempty"`
}

// Validate checks if the Goal has valid data.
// PRE: Goal struct is populated
// POST: Returns nil if valid, error otherwise
func (g *Goal) Validate() error {
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	if g.EntrepreneurID.ID() == "" {
		return ErrEmptyEntrepreneur
	}
	if !contains(ValidStatuses, g.Status) {
		return ErrInvalidStatus
	}
	if !contains(ValidPriorities, g.Priority) {
		return ErrInvalidPriority
	}
	for _, m := range g.Milestones {
		if !contains(ValidMilestoneStatuses, m.Status) {
			return ErrInvalidMilestoneStatus
		}
	}
	return nil
}

// ClampProgress limits a progress value to 0..100.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// EffectiveProgress returns Progress clamped to 0..100.
// INVARIANT: Goal fields are not mutated
func (g *Goal) EffectiveProgress() int {
	return ClampProgress(g.Progress)
}

// SetProgress stores a clamped progress value and moves not-started goals to
// in-progress, or in-progress goals to completed at 100.
// POST: 0 <= Progress <= 100
func (g *Goal) SetProgress(p int) {
	g.Progress = ClampProgress(p)
	switch {
	case g.Progress == 100 && g.Status != StatusBlocked:
		g.Status = StatusCompleted
	case g.Progress > 0 && g.Status == StatusNotStarted:
		g.Status = StatusInProgress
	}
}

// MilestoneCompletion returns completed and total milestone counts.
func (g *Goal) MilestoneCompletion() (done, total int) {
	for _, m := range g.Milestones {
		if m.Status == MilestoneCompleted {
			done++
		}
	}
	return done, len(g.Milestones)
}

// UpdateMilestone sets the status of milestone i, stamping CompletedAt when it
// becomes completed and clearing it otherwise.
// PRE: 0 <= i < len(Milestones)
// POST: Milestones[i].Status == status
func (g *Goal) UpdateMilestone(i int, status, notes string, now time.Time) error {
	if i < 0 || i >= len(g.Milestones) {
		return ErrMilestoneIndex
	}
	if !contains(ValidMilestoneStatuses, status) {
		return ErrInvalidMilestoneStatus
	}
	m := &g.Milestones[i]
	m.Status = status
	if notes != "" {
		m.Notes = notes
	}
	if status == MilestoneCompleted {
		if m.CompletedAt == nil {
			t := now
			m.CompletedAt = &t
		}
	} else {
		m.CompletedAt = nil
	}
	return nil
}

// IsOverdue reports whether an unfinished goal is past its target date.
func (g *Goal) IsOverdue(now time.Time) bool {
	if g.TargetDate == nil || g.Status == StatusCompleted {
		return false
	}
	return now.After(*g.TargetDate)
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
