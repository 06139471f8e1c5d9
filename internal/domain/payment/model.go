package payment

import (
	"errors"
	"sort"
	"strings"
	"time"

	"coachhub/internal/domain/ref"
	"coachhub/internal/domain/user"
)

// Status constants
const (
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusOverdue  = "overdue"
	StatusFailed   = "failed"
	StatusRefunded = "refunded"
	StatusVoid     = "void"
)

// ValidStatuses contains all valid payment statuses.
var ValidStatuses = []string{StatusPending, StatusPaid, StatusOverdue, StatusFailed, StatusRefunded, StatusVoid}

// Domain errors
var (
	ErrEmptyCoach      = errors.New("coach is required")
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrEmptyCurrency   = errors.New("currency is required")
	ErrInvalidStatus   = errors.New("status must be one of: pending, paid, overdue, failed, refunded, void")
	ErrNotOutstanding  = errors.New("only pending, overdue or failed payments can be marked paid")
	ErrNoInvoiceNumber = errors.New("payment has no invoice number")
)

// Payment is an amount owed to a coach for one or more sessions.
type Payment struct {
	ID            string                `json:"_id"`
	CoachID       ref.Ref[user.Summary] `json:"coachId"`
	Amount        float64               `json:"amount"`
	Currency      string                `json:"currency"`
	Status        string                `json:"status"`
	DueDate       *time.Time            `json:"dueDate,omitempty"`
	PaidAt        *time.Time            `json:"paidAt,omitempty"`
	SessionIDs    []string              `json:"sessionIds,omitempty"`
	InvoiceNumber string                `json:"invoiceNumber,omitempty"`
}

// Validate checks if the Payment has valid data.
// PRE: Payment struct is populated
// POST: Returns nil if valid, error otherwise
func (p *Payment) Validate() error {
	if p.CoachID.ID() == "" {
		return ErrEmptyCoach
	}
	if p.Amount < 0 {
		return ErrNegativeAmount
	}
	if strings.TrimSpace(p.Currency) == "" {
		return ErrEmptyCurrency
	}
	for _, s := range ValidStatuses {
		if s == p.Status {
			return nil
		}
	}
	return ErrInvalidStatus
}

// IsOutstanding reports whether money is still owed.
// INVARIANT: Payment fields are not mutated
func (p *Payment) IsOutstanding() bool {
	switch p.Status {
	case StatusPending, StatusOverdue, StatusFailed:
		return true
	}
	return false
}

// IsOverdue reports whether the payment is outstanding and past its due date,
// or already flagged overdue by the server.
func (p *Payment) IsOverdue(now time.Time) bool {
	if p.Status == StatusOverdue {
		return true
	}
	return p.IsOutstanding() && p.DueDate != nil && now.After(*p.DueDate)
}

// CanMarkPaid reports whether MarkPaid is allowed.
func (p *Payment) CanMarkPaid() bool {
	return p.IsOutstanding()
}

// MarkPaid transitions an outstanding payment to paid.
// PRE: payment is outstanding
// POST: Status is paid and PaidAt is set
func (p *Payment) MarkPaid(at time.Time) error {
	if !p.CanMarkPaid() {
		return ErrNotOutstanding
	}
	p.Status = StatusPaid
	p.PaidAt = &at
	return nil
}

// Totals aggregates amounts for one currency.
type Totals struct {
	Currency    string
	Paid        float64
	Outstanding float64
	Overdue     float64
	Count       int
}

// Summarize groups payments by currency, sorted by currency code.
// Refunded and void payments are counted but add no amount.
func Summarize(payments []Payment, now time.Time) []Totals {
	byCurrency := make(map[string]*Totals)
	for i := range payments {
		p := &payments[i]
		cur := strings.ToUpper(p.Currency)
		t, ok := byCurrency[cur]
		if !ok {
			t = &Totals{Currency: cur}
			byCurrency[cur] = t
		}
		t.Count++
		switch {
		case p.Status == StatusPaid:
			t.Paid += p.Amount
		case p.IsOutstanding():
			t.Outstanding += p.Amount
			if p.IsOverdue(now) {
				t.Overdue += p.Amount
			}
		}
	}
	out := make([]Totals, 0, len(byCurrency))
	for _, t := range byCurrency {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
