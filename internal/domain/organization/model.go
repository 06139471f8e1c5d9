package organization

import (
	"errors"
	"strings"
	"time"
)

// DefaultCurrency is used when an organization has none configured.
const DefaultCurrency = "USD"

// Domain errors
var (
	ErrEmptyName       = errors.New("organization name is required")
	ErrInvalidTimezone = errors.New("organization timezone is not a known IANA zone")
)

// Organization is a tenant grouping managers, coaches and entrepreneurs.
type Organization struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Validate checks if the Organization has valid data.
// PRE: Organization struct is populated
// POST: Returns nil if valid, error otherwise
func (o *Organization) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return ErrEmptyName
	}
	if o.Timezone != "" {
		if _, err := time.LoadLocation(o.Timezone); err != nil {
			return ErrInvalidTimezone
		}
	}
	return nil
}

// Location returns the organization's time zone, or UTC.
func (o *Organization) Location() *time.Location {
	if o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BillingCurrency returns the upper-cased currency or DefaultCurrency.
func (o *Organization) BillingCurrency() string {
	if c := strings.TrimSpace(o.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return DefaultCurrency
}
