package orchestrators

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"coachhub/internal/application/conflicts"
	"coachhub/internal/domain/scheduling"
	"coachhub/internal/domain/session"
)

// DefaultDraftIdle is how long an untouched scheduling draft is kept.
const DefaultDraftIdle = 30 * time.Minute

// ErrDraftNotFound is returned for unknown, expired or foreign drafts.
var ErrDraftNotFound = errors.New("scheduling draft not found")

// CoachSessionsLoader returns the coach's sessions around a time, for the
// local overlap check.
type CoachSessionsLoader func(ctx context.Context, coachID string, around time.Time) ([]session.Session, error)

// DraftDeps holds what one open scheduling draft talks to.
type DraftDeps struct {
	Remote    conflicts.Remote
	Sessions  CoachSessionsLoader
	Create    CreateSessionDeps
	Checker   conflicts.Options
	ManagerID string
	Location  *time.Location
}

// Draft is one open scheduling wizard together with its conflict checker.
type Draft struct {
	ID    string
	Owner string

	mu      sync.Mutex
	wizard  *scheduling.Wizard
	checker *conflicts.Checker
	deps    DraftDeps
	local   []session.Session // coach sessions for the current slot
	localOf scheduling.Slot
	touched time.Time
}

// DraftView is the state a page script renders.
type DraftView struct {
	ID             string                  `json:"id"`
	Step           scheduling.Step         `json:"step"`
	Draft          scheduling.Draft        `json:"draft"`
	FieldErrors    map[string]string       `json:"fieldErrors"`
	Remote         conflicts.State         `json:"remote"`
	LocalConflicts []session.Session       `json:"localConflicts,omitempty"`
	Warning        string                  `json:"warning,omitempty"`
	CanSubmit      bool                    `json:"canSubmit"`
	Blocked        string                  `json:"blocked,omitempty"`
	Availability   scheduling.Availability `json:"-"`
}

// View returns the draft's current state.
func (d *Draft) View() DraftView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

func (d *Draft) viewLocked() DraftView {
	st := d.checker.State()
	avail := conflicts.Assess(st, d.local)
	v := DraftView{
		ID:             d.ID,
		Step:           d.wizard.Step(),
		Draft:          d.wizard.Draft(),
		FieldErrors:    d.wizard.FieldErrors(),
		Remote:         st,
		LocalConflicts: d.local,
		Warning:        st.Warning,
		Availability:   avail,
	}
	if len(d.local) > 0 && v.Warning == "" {
		v.Warning = conflicts.ConflictWarning
	}
	if err := d.wizard.CanSubmit(avail); err != nil {
		v.Blocked = err.Error()
	} else {
		v.CanSubmit = true
	}
	return v
}

// Edit replaces the draft input, refreshes the local overlap check and
// schedules a remote check for the new slot. A failed load of the coach's
// sessions is returned with the view; the next edit of the slot retries it.
// POST: The remote check is pending or idle for the new slot
func (d *Draft) Edit(ctx context.Context, in scheduling.Draft) (DraftView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched = time.Now()
	d.wizard.Apply(in)
	slot := d.wizard.Slot()
	err := d.refreshLocalLocked(ctx, slot)
	if err != nil {
		log.Warn().Err(err).Str("draft_id", d.ID).Str("coach_id", slot.CoachID).Msg("local_conflict_load_failed")
	}
	d.checker.Update(slot)
	return d.viewLocked(), err
}

// refreshLocalLocked reloads the coach's sessions when the slot changed.
// PRE: d.mu is held
func (d *Draft) refreshLocalLocked(ctx context.Context, slot scheduling.Slot) error {
	if slot.Equal(d.localOf) {
		return nil
	}
	d.localOf = slot
	d.local = nil
	if !slot.IsComplete() || d.deps.Sessions == nil {
		return nil
	}
	existing, err := d.deps.Sessions(ctx, slot.CoachID, slot.Start)
	if err != nil {
		d.localOf = scheduling.Slot{}
		return err
	}
	d.local = conflicts.Local(slot, existing)
	return nil
}

// Next advances the wizard.
func (d *Draft) Next() (DraftView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched = time.Now()
	err := d.wizard.Next()
	return d.viewLocked(), err
}

// Back moves the wizard one step back.
func (d *Draft) Back() DraftView {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched = time.Now()
	d.wizard.Back()
	return d.viewLocked()
}

// Submit creates the session when the gate allows it.
// POST: On success the wizard is back on step 1 with an empty draft
func (d *Draft) Submit(ctx context.Context) (session.Session, DraftView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched = time.Now()
	avail := conflicts.Assess(d.checker.State(), d.local)
	created, err := ExecuteCreateSession(ctx, CreateSessionInput{
		Wizard:       d.wizard,
		Availability: avail,
		ManagerID:    d.deps.ManagerID,
	}, d.deps.Create)
	if err == nil {
		d.local = nil
		d.localOf = scheduling.Slot{}
		d.checker.Update(d.wizard.Slot())
	}
	return created, d.viewLocked(), err
}

func (d *Draft) close() {
	d.checker.Close()
}

// DraftRegistry holds the open scheduling drafts of every signed-in user.
type DraftRegistry struct {
	idle time.Duration

	mu     sync.Mutex
	drafts map[string]*Draft
}

// NewDraftRegistry creates an empty registry. idle <= 0 uses DefaultDraftIdle.
func NewDraftRegistry(idle time.Duration) *DraftRegistry {
	if idle <= 0 {
		idle = DefaultDraftIdle
	}
	return &DraftRegistry{idle: idle, drafts: make(map[string]*Draft)}
}

// Open starts a new draft for owner.
// POST: The draft is on step 1 and its checker is idle
func (r *DraftRegistry) Open(owner string, deps DraftDeps) *Draft {
	opts := deps.Checker
	if opts.Location == nil {
		opts.Location = deps.Location
	}
	d := &Draft{
		ID:      uuid.NewString(),
		Owner:   owner,
		wizard:  scheduling.New(deps.Location),
		checker: conflicts.NewChecker(deps.Remote, opts),
		deps:    deps,
		touched: time.Now(),
	}
	r.mu.Lock()
	r.drafts[d.ID] = d
	r.mu.Unlock()
	log.Debug().Str("draft_id", d.ID).Msg("scheduling_draft_opened")
	return d
}

// Get returns owner's draft id.
func (r *DraftRegistry) Get(id, owner string) (*Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok || d.Owner != owner {
		return nil, ErrDraftNotFound
	}
	return d, nil
}

// Close discards owner's draft id and cancels its pending conflict check.
func (r *DraftRegistry) Close(id, owner string) error {
	r.mu.Lock()
	d, ok := r.drafts[id]
	if !ok || d.Owner != owner {
		r.mu.Unlock()
		return ErrDraftNotFound
	}
	delete(r.drafts, id)
	r.mu.Unlock()
	d.close()
	log.Debug().Str("draft_id", id).Msg("scheduling_draft_closed")
	return nil
}

// CloseOwner discards every draft of owner, as on logout.
func (r *DraftRegistry) CloseOwner(owner string) int {
	r.mu.Lock()
	var closing []*Draft
	for id, d := range r.drafts {
		if d.Owner == owner {
			closing = append(closing, d)
			delete(r.drafts, id)
		}
	}
	r.mu.Unlock()
	for _, d := range closing {
		d.close()
	}
	return len(closing)
}

// Sweep closes drafts untouched since now minus the idle window.
func (r *DraftRegistry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idle)
	r.mu.Lock()
	var closing []*Draft
	for id, d := range r.drafts {
		d.mu.Lock()
		stale := d.touched.Before(cutoff)
		d.mu.Unlock()
		if stale {
			closing = append(closing, d)
			delete(r.drafts, id)
		}
	}
	r.mu.Unlock()
	for _, d := range closing {
		d.close()
	}
	if len(closing) > 0 {
		log.Info().Int("count", len(closing)).Msg("scheduling_drafts_swept")
	}
	return len(closing)
}

// Len returns the number of open drafts.
func (r *DraftRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}
