package rbac

import (
	"errors"
	"strings"
)

// Role is the platform role of the signed-in user.
type Role string

// Subject is the kind of resource a permission applies to.
type Subject string

// Action is an operation on a subject.
type Action string

// Role constants
const (
	RoleManager      Role = "manager"
	RoleCoach        Role = "coach"
	RoleEntrepreneur Role = "entrepreneur"
	RoleAdmin        Role = "admin"
)

// Subject constants
const (
	SubjectSessions    Subject = "sessions"
	SubjectGoals       Subject = "goals"
	SubjectPayments    Subject = "payments"
	SubjectUsers       Subject = "users"
	SubjectOrgSettings Subject = "orgSettings"
	SubjectFeedback    Subject = "feedback"
)

// Action constants
const (
	ActionView      Action = "view"
	ActionManage    Action = "manage"
	ActionCreate    Action = "create"
	ActionEdit      Action = "edit"
	ActionDelete    Action = "delete"
	ActionInvoice   Action = "invoice"
	ActionConfigure Action = "configure"
)

// ValidRoles contains all valid role values.
var ValidRoles = []Role{RoleManager, RoleCoach, RoleEntrepreneur, RoleAdmin}

// AllSubjects contains every subject known to the matrix.
var AllSubjects = []Subject{SubjectSessions, SubjectGoals, SubjectPayments, SubjectUsers, SubjectOrgSettings, SubjectFeedback}

// AllActions contains every action known to the matrix.
var AllActions = []Action{ActionView, ActionManage, ActionCreate, ActionEdit, ActionDelete, ActionInvoice, ActionConfigure}

// ErrInvalidRole is returned by ParseRole for unknown roles.
var ErrInvalidRole = errors.New("role must be one of: manager, coach, entrepreneur, admin")

// Context carries the only state a permission check needs.
type Context struct {
	Role Role
}

// matrix is sparse: a missing subject means no permissions for that pair.
var matrix = map[Role]map[Subject][]Action{
	RoleAdmin: {
		SubjectSessions:    {ActionView, ActionManage, ActionCreate, ActionEdit, ActionDelete},
		SubjectGoals:       {ActionView, ActionManage, ActionCreate, ActionEdit, ActionDelete},
		SubjectPayments:    {ActionView, ActionManage, ActionCreate, ActionEdit, ActionDelete, ActionInvoice},
		SubjectUsers:       {ActionView, ActionManage, ActionCreate, ActionEdit, ActionDelete},
		SubjectOrgSettings: {ActionView, ActionConfigure},
		SubjectFeedback:    {ActionView, ActionManage, ActionCreate, ActionEdit, ActionDelete},
	},
	RoleManager: {
		SubjectSessions:    {ActionView, ActionManage, ActionCreate, ActionEdit, ActionDelete},
		SubjectGoals:       {ActionView, ActionManage, ActionCreate, ActionEdit},
		SubjectPayments:    {ActionView, ActionManage, ActionInvoice},
		SubjectUsers:       {ActionView, ActionManage, ActionCreate, ActionEdit},
		SubjectOrgSettings: {ActionView, ActionConfigure},
		SubjectFeedback:    {ActionView, ActionManage},
	},
	RoleCoach: {
		SubjectSessions: {ActionView, ActionEdit},
		SubjectGoals:    {ActionView, ActionCreate, ActionEdit},
		SubjectPayments: {ActionView, ActionInvoice},
		SubjectFeedback: {ActionView, ActionCreate},
	},
	RoleEntrepreneur: {
		SubjectSessions: {ActionView},
		SubjectGoals:    {ActionView, ActionEdit},
		SubjectFeedback: {ActionView, ActionCreate},
	},
}

// Can reports whether the role in ctx may perform action on subject.
// The result gates what the UI renders; the remote API enforces authorization.
// PRE: none
// POST: Returns false for unknown roles or subjects
// INVARIANT: matrix is not mutated
func Can(ctx Context, action Action, subject Subject) bool {
	subjects, ok := matrix[ctx.Role]
	if !ok {
		return false
	}
	actions, ok := subjects[subject]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// HasRole reports whether ctx holds one of roles.
func HasRole(ctx Context, roles ...Role) bool {
	for _, r := range roles {
		if ctx.Role == r {
			return true
		}
	}
	return false
}

// Allowed returns a copy of the actions role may perform on subject.
// PRE: none
// POST: Returns an empty slice when the pair is absent from the matrix
func Allowed(role Role, subject Subject) []Action {
	actions := matrix[role][subject]
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// ParseRole converts a raw role string, as found in tokens and API payloads.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ValidRoles {
		if v == r {
			return r, nil
		}
	}
	return "", ErrInvalidRole
}
