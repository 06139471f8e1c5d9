package projections

import (
	"context"
	"slices"
	"time"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/querycache"
	domainSession "coachhub/internal/domain/session"
)

// calendarLimit bounds the sessions fetched for one calendar view.
const calendarLimit = 200

// CalendarQuery carries query parameters.
type CalendarQuery struct {
	Principal Principal
	Month     time.Time // any instant inside the month to show
	Now       time.Time
	Location  *time.Location // nil means UTC
	CoachID   string         // optional filter for managers
}

// CalendarDay is one cell of the month grid.
type CalendarDay struct {
	Date     time.Time
	InMonth  bool
	IsToday  bool
	Sessions []domainSession.Session
}

// CalendarResult is a Monday-first month grid plus the today panel.
type CalendarResult struct {
	Month    time.Time
	Prev     time.Time
	Next     time.Time
	Weeks    [][]CalendarDay
	Today    []domainSession.Session
	Upcoming []domainSession.Session
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// weekdayOffset returns days since Monday.
func weekdayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func sortByStart(sessions []domainSession.Session) {
	slices.SortStableFunc(sessions, func(a, b domainSession.Session) int {
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})
}

// QueryCalendar builds the month grid and today panel for the principal.
// PRE: query.Principal is authenticated
// POST: Weeks holds whole weeks covering the month; each session sits on the
// day it starts in query.Location
func QueryCalendar(ctx context.Context, query CalendarQuery, deps Deps) (CalendarResult, error) {
	loc := query.Location
	if loc == nil {
		loc = time.UTC
	}
	now := query.Now.In(loc)
	month := query.Month
	if month.IsZero() {
		month = now
	}
	month = month.In(loc)
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	gridStart := first.AddDate(0, 0, -weekdayOffset(first))
	last := first.AddDate(0, 1, -1)
	gridEnd := last.AddDate(0, 0, 7-weekdayOffset(last))

	fetched, err := cachedList(ctx, deps, querycache.ResourceSessions, query.Principal, api.ListQuery{
		CoachID: query.CoachID,
		From:    gridStart,
		To:      gridEnd,
		Limit:   calendarLimit,
	}, deps.API.ListSessions)
	if err != nil {
		return CalendarResult{}, err
	}
	sessions := slices.Clone(fetched.Items)
	sortByStart(sessions)

	result := CalendarResult{
		Month: first,
		Prev:  first.AddDate(0, -1, 0),
		Next:  first.AddDate(0, 1, 0),
	}
	today := startOfDay(now)
	var week []CalendarDay
	for day := gridStart; day.Before(gridEnd); day = day.AddDate(0, 0, 1) {
		cell := CalendarDay{
			Date:    day,
			InMonth: day.Month() == first.Month(),
			IsToday: day.Equal(today),
		}
		for _, s := range sessions {
			if s.OccursOn(day) {
				cell.Sessions = append(cell.Sessions, s)
			}
		}
		week = append(week, cell)
		if len(week) == 7 {
			result.Weeks = append(result.Weeks, week)
			week = nil
		}
	}

	todays, err := QueryToday(ctx, TodayQuery{Principal: query.Principal, Now: query.Now, Location: loc, CoachID: query.CoachID}, deps)
	if err != nil {
		return CalendarResult{}, err
	}
	result.Today = todays.Sessions
	result.Upcoming = todays.Upcoming
	return result, nil
}

// TodayQuery carries query parameters.
type TodayQuery struct {
	Principal Principal
	Now       time.Time
	Location  *time.Location
	CoachID   string
}

// TodayResult lists today's sessions and those still ahead today.
type TodayResult struct {
	Sessions []domainSession.Session
	Upcoming []domainSession.Session
}

// QueryToday returns the sessions starting today in query.Location.
// POST: Sessions are ordered by start; Upcoming is the subset not yet ended
func QueryToday(ctx context.Context, query TodayQuery, deps Deps) (TodayResult, error) {
	loc := query.Location
	if loc == nil {
		loc = time.UTC
	}
	now := query.Now.In(loc)
	day := startOfDay(now)
	fetched, err := cachedList(ctx, deps, querycache.ResourceSessions, query.Principal, api.ListQuery{
		CoachID: query.CoachID,
		From:    day,
		To:      day.AddDate(0, 0, 1),
		Limit:   calendarLimit,
	}, deps.API.ListSessions)
	if err != nil {
		return TodayResult{}, err
	}
	var result TodayResult
	for _, s := range fetched.Items {
		if !s.OccursOn(day) {
			continue
		}
		result.Sessions = append(result.Sessions, s)
		if s.IsUpcoming(now) {
			result.Upcoming = append(result.Upcoming, s)
		}
	}
	sortByStart(result.Sessions)
	sortByStart(result.Upcoming)
	return result, nil
}

// CoachSessionsQuery carries query parameters.
type CoachSessionsQuery struct {
	Principal Principal
	CoachID   string
	Around    time.Time
}

// conflictWindow is how far either side of a candidate slot local overlap
// checks look.
const conflictWindow = 24 * time.Hour

// QueryCoachSessions returns the coach's sessions near a candidate slot, for
// the local overlap check.
// PRE: query.CoachID is non-empty
func QueryCoachSessions(ctx context.Context, query CoachSessionsQuery, deps Deps) ([]domainSession.Session, error) {
	fetched, err := cachedList(ctx, deps, querycache.ResourceSessions, query.Principal, api.ListQuery{
		CoachID: query.CoachID,
		From:    query.Around.Add(-conflictWindow),
		To:      query.Around.Add(conflictWindow),
		Limit:   calendarLimit,
	}, deps.API.ListSessions)
	if err != nil {
		return nil, err
	}
	return slices.Clone(fetched.Items), nil
}
