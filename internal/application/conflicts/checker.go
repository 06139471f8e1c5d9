package conflicts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"coachhub/internal/domain/scheduling"
	"coachhub/internal/domain/session"
)

// Status of the remote conflict check.
type Status string

// Status values
const (
	StatusIdle        Status = "idle"
	StatusChecking    Status = "checking"
	StatusClear       Status = "clear"
	StatusConflict    Status = "conflict"
	StatusUnavailable Status = "unavailable"
)

// DefaultDebounce is the quiet period before a check is sent.
const DefaultDebounce = 300 * time.Millisecond

// DefaultTimeout bounds a single remote check.
const DefaultTimeout = 10 * time.Second

// ConflictWarning is shown when the server reports an overlap without details.
const ConflictWarning = "This coach already has a session that overlaps the selected time."

// Result is the server's answer for one slot.
type Result struct {
	HasConflict bool
	Conflicting *session.Session
}

// Warning returns the message shown for a conflicting result, with times in loc.
// A nil loc means UTC.
func (r Result) Warning(loc *time.Location) string {
	if !r.HasConflict {
		return ""
	}
	if r.Conflicting == nil || r.Conflicting.ScheduledAt.IsZero() {
		return ConflictWarning
	}
	if loc == nil {
		loc = time.UTC
	}
	when := r.Conflicting.ScheduledAt.In(loc).Format("Mon 2 Jan 15:04")
	if name := r.Conflicting.EntrepreneurName(); name != "" {
		return fmt.Sprintf("This coach already has a session with %s at %s.", name, when)
	}
	return fmt.Sprintf("This coach already has a session at %s.", when)
}

// Remote asks the server whether a slot overlaps an existing session.
type Remote interface {
	CheckConflict(ctx context.Context, slot scheduling.Slot) (Result, error)
}

// RemoteFunc adapts a function to Remote.
type RemoteFunc func(ctx context.Context, slot scheduling.Slot) (Result, error)

// CheckConflict calls f.
func (f RemoteFunc) CheckConflict(ctx context.Context, slot scheduling.Slot) (Result, error) {
	return f(ctx, slot)
}

// Timer is the part of *time.Timer the checker uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it via StdAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// StdAfterFunc wraps time.AfterFunc.
func StdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// State is the remote check result for Slot.
type State struct {
	Slot       scheduling.Slot `json:"-"`
	Status     Status          `json:"status"`
	Conflict   bool            `json:"conflict"`
	IsChecking bool            `json:"isChecking"`
	Warning    string          `json:"warning,omitempty"`
}

// Options configures a Checker. Zero values take the defaults.
// Location is the zone warnings are written in; nil means UTC.
type Options struct {
	Debounce  time.Duration
	Timeout   time.Duration
	AfterFunc AfterFunc
	Location  *time.Location
}

// Checker debounces remote conflict checks for one scheduling form.
// Only the response for the most recent input is applied.
type Checker struct {
	remote    Remote
	debounce  time.Duration
	timeout   time.Duration
	afterFunc AfterFunc
	loc       *time.Location

	mu       sync.Mutex
	gen      uint64
	timer    Timer
	cancel   context.CancelFunc
	state    State
	closed   bool
	requests int
}

// NewChecker creates a Checker in the idle state.
func NewChecker(remote Remote, opts Options) *Checker {
	c := &Checker{
		remote:    remote,
		debounce:  opts.Debounce,
		timeout:   opts.Timeout,
		afterFunc: opts.AfterFunc,
		loc:       opts.Location,
		state:     State{Status: StatusIdle},
	}
	if c.debounce <= 0 {
		c.debounce = DefaultDebounce
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.afterFunc == nil {
		c.afterFunc = StdAfterFunc
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	return c
}

// Update records new inputs. A changed complete slot cancels any pending or
// in-flight check and schedules a new one; an incomplete slot returns to idle.
// PRE: none
// POST: State().Slot == slot unless the checker is closed
func (c *Checker) Update(slot scheduling.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if slot.Equal(c.state.Slot) && c.state.Status != StatusIdle {
		return
	}
	c.stopLocked()
	if !slot.IsComplete() {
		c.state = State{Slot: slot, Status: StatusIdle}
		return
	}
	c.state = State{Slot: slot, Status: StatusChecking, IsChecking: true}
	gen := c.gen
	c.timer = c.afterFunc(c.debounce, func() { c.run(gen, slot) })
}

// State returns the current remote check state.
func (c *Checker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Requests returns how many remote checks have been sent.
func (c *Checker) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// Close cancels pending work. Late responses are discarded.
// POST: Update is a no-op
func (c *Checker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopLocked()
}

// stopLocked invalidates the current generation.
// PRE: c.mu is held
func (c *Checker) stopLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Checker) run(gen uint64, slot scheduling.Slot) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	c.cancel = cancel
	c.timer = nil
	c.requests++
	c.mu.Unlock()

	res, err := c.remote.CheckConflict(ctx, slot)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if gen != c.gen {
		log.Debug().Str("coach_id", slot.CoachID).Msg("conflict_check_stale")
		return
	}
	c.cancel = nil
	switch {
	case err != nil:
		log.Warn().Err(err).Str("coach_id", slot.CoachID).Msg("conflict_check_failed")
		c.state = State{Slot: slot, Status: StatusUnavailable}
	case res.HasConflict:
		c.state = State{Slot: slot, Status: StatusConflict, Conflict: true, Warning: res.Warning(c.loc)}
	default:
		c.state = State{Slot: slot, Status: StatusClear}
	}
}

// Local returns the coach's existing sessions that overlap slot.
func Local(slot scheduling.Slot, existing []session.Session) []session.Session {
	if !slot.IsComplete() {
		return nil
	}
	return session.FindConflicts(slot.CoachID, slot.Start, time.Duration(slot.Duration)*time.Minute, existing)
}

// Assess combines the local overlaps and the remote state for the submit gate.
func Assess(st State, local []session.Session) scheduling.Availability {
	return scheduling.Availability{
		Slot:           st.Slot,
		LocalConflict:  len(local) > 0,
		RemoteConflict: st.Conflict,
		Checking:       st.IsChecking,
	}
}
