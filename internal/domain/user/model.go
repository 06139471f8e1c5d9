package user

import (
	"errors"
	"strings"

	"coachhub/internal/domain/rbac"
)

// Max length constants for user-editable fields.
const (
	MaxEmailLength = 254
)

// Domain errors
var (
	ErrEmptyEmail      = errors.New("email cannot be empty")
	ErrInvalidEmail    = errors.New("email must contain '@'")
	ErrEmailTooLong    = errors.New("email cannot exceed 254 characters")
	ErrEmptyName       = errors.New("first and last name are required")
	ErrInvalidRole     = rbac.ErrInvalidRole
	ErrNegativeRate    = errors.New("hourly rate cannot be negative")
	ErrRateForNonCoach = errors.New("only coaches carry an hourly rate")
)

// User is an account on the remote platform as returned by the users API.
type User struct {
	ID             string    `json:"_id"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Email          string    `json:"email"`
	Role           rbac.Role `json:"role"`
	OrganizationID string    `json:"organizationId"`
	HourlyRate     *float64  `json:"hourlyRate,omitempty"`
	IsActive       bool      `json:"isActive"`
	StartupName    string    `json:"startupName,omitempty"`
}

// Summary is the embedded form of a user inside sessions, goals and payments.
type Summary struct {
	ID          string `json:"_id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email,omitempty"`
	StartupName string `json:"startupName,omitempty"`
}

// RefID implements ref.Identifiable.
func (s Summary) RefID() string {
	return s.ID
}

// FullName returns "First Last", trimmed.
func (s Summary) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Validate checks if the User has valid data.
// PRE: User struct is populated
// POST: Returns nil if valid, error otherwise
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	if len(u.Email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !strings.Contains(u.Email, "@") {
		return ErrInvalidEmail
	}
	if strings.TrimSpace(u.FirstName) == "" || strings.TrimSpace(u.LastName) == "" {
		return ErrEmptyName
	}
	if _, err := rbac.ParseRole(string(u.Role)); err != nil {
		return ErrInvalidRole
	}
	if u.HourlyRate != nil {
		if *u.HourlyRate < 0 {
			return ErrNegativeRate
		}
		if u.Role != rbac.RoleCoach {
			return ErrRateForNonCoach
		}
	}
	return nil
}

// FullName returns "First Last", trimmed.
// INVARIANT: User fields are not mutated
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Summary returns the embedded representation of the user.
// INVARIANT: User fields are not mutated
func (u *User) Summary() Summary {
	return Summary{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		StartupName: u.StartupName,
	}
}

// RBAC returns the permission context for the user.
func (u *User) RBAC() rbac.Context {
	return rbac.Context{Role: u.Role}
}
