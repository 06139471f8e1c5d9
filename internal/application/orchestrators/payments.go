package orchestrators

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/api"
	"coachhub/internal/adapters/email"
	"coachhub/internal/application/querycache"
	"coachhub/internal/domain/organization"
	"coachhub/internal/domain/payment"
	"coachhub/internal/domain/rbac"
	"coachhub/internal/domain/user"
)

// reminderFetchLimit bounds the payments scanned for overdue reminders.
const reminderFetchLimit = 500

// ErrEmailDisabled is returned by email-only actions when no sender is configured.
var ErrEmailDisabled = errors.New("email sending is not configured")

// PaymentAPI defines the API interface needed by the payment orchestrators.
type PaymentAPI interface {
	GetPayment(ctx context.Context, id string) (payment.Payment, error)
	ListPayments(ctx context.Context, q api.ListQuery) (api.Page[payment.Payment], error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (payment.Payment, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetOrganization(ctx context.Context, id string) (organization.Organization, error)
}

// PaymentDeps holds dependencies for the payment orchestrators.
// Email may be nil, in which case no messages are sent.
type PaymentDeps struct {
	API   PaymentAPI
	Cache Invalidator
	Email email.Sender
	Now   func() time.Time
}

// recipients resolves payment coaches to addresses, loading each coach once.
type recipients struct {
	api   PaymentAPI
	known map[string]user.Summary
}

func newRecipients(a PaymentAPI) *recipients {
	return &recipients{api: a, known: make(map[string]user.Summary)}
}

// of returns the coach of p, preferring the embedded summary when it carries an email.
func (r *recipients) of(ctx context.Context, p payment.Payment) (user.Summary, error) {
	if s, ok := p.CoachID.Embedded(); ok && s.Email != "" {
		return s, nil
	}
	id := p.CoachID.ID()
	if s, ok := r.known[id]; ok {
		return s, nil
	}
	u, err := r.api.GetUser(ctx, id)
	if err != nil {
		return user.Summary{}, err
	}
	s := u.Summary()
	r.known[id] = s
	return s, nil
}

// organizationName returns the display name of orgID, or "" when it cannot be loaded.
func organizationName(ctx context.Context, a PaymentAPI, orgID string) string {
	if orgID == "" {
		return ""
	}
	org, err := a.GetOrganization(ctx, orgID)
	if err != nil {
		log.Debug().Err(err).Str("organization_id", orgID).Msg("organization_load_failed")
		return ""
	}
	return org.Name
}

func paymentMessage(kind string, p payment.Payment, to user.Summary, org string) email.PaymentMessage {
	return email.PaymentMessage{
		Kind:          kind,
		To:            to.Email,
		RecipientName: to.FullName(),
		Organization:  org,
		InvoiceNumber: p.InvoiceNumber,
		Amount:        p.Amount,
		Currency:      p.Currency,
		DueDate:       p.DueDate,
		PaidAt:        p.PaidAt,
		PaymentID:     p.ID,
	}
}

// MarkPaidInput carries input for the mark paid orchestrator.
type MarkPaidInput struct {
	Actor          rbac.Context
	OrganizationID string
	PaymentID      string
	PaidAt         time.Time // zero means now
}

// MarkPaidResult reports the updated payment and whether a receipt went out.
type MarkPaidResult struct {
	Payment     payment.Payment
	ReceiptSent bool
}

// ExecuteMarkPaid records an outstanding payment as paid and emails the coach a receipt.
// PRE: the payment is outstanding
// POST: On success the payments cache is invalidated; a failed receipt does
// not fail the mutation
func ExecuteMarkPaid(ctx context.Context, input MarkPaidInput, deps PaymentDeps) (MarkPaidResult, error) {
	if !rbac.Can(input.Actor, rbac.ActionManage, rbac.SubjectPayments) {
		return MarkPaidResult{}, ErrForbidden
	}
	current, err := deps.API.GetPayment(ctx, input.PaymentID)
	if err != nil {
		return MarkPaidResult{}, err
	}
	if !current.CanMarkPaid() {
		return MarkPaidResult{}, payment.ErrNotOutstanding
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = deps.Now()
	}

	updated, err := deps.API.MarkPaid(ctx, input.PaymentID, paidAt)
	if err != nil {
		return MarkPaidResult{}, err
	}
	deps.Cache.Invalidate(querycache.ResourcePayments)
	log.Info().Str("payment_id", input.PaymentID).Time("paid_at", paidAt).Msg("payment_marked_paid")

	result := MarkPaidResult{Payment: updated}
	if deps.Email == nil || updated.InvoiceNumber == "" {
		return result, nil
	}
	if updated.PaidAt == nil {
		updated.PaidAt = &paidAt
	}
	to, err := newRecipients(deps.API).of(ctx, updated)
	if err == nil {
		var req email.SendRequest
		req, err = email.Compose(paymentMessage(email.KindReceipt, updated, to, organizationName(ctx, deps.API, input.OrganizationID)))
		if err == nil {
			_, err = deps.Email.Send(ctx, req)
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("payment_id", input.PaymentID).Msg("receipt_not_sent")
		return result, nil
	}
	result.ReceiptSent = true
	return result, nil
}

// SendInvoiceInput carries input for the send invoice orchestrator.
type SendInvoiceInput struct {
	Actor          rbac.Context
	OrganizationID string
	PaymentID      string
}

// ExecuteSendInvoice emails the invoice of an outstanding payment to its coach.
// PRE: the payment has an invoice number and is outstanding
// POST: Exactly one email is sent
func ExecuteSendInvoice(ctx context.Context, input SendInvoiceInput, deps PaymentDeps) (email.SendResult, error) {
	if !rbac.Can(input.Actor, rbac.ActionInvoice, rbac.SubjectPayments) {
		return email.SendResult{}, ErrForbidden
	}
	if deps.Email == nil {
		return email.SendResult{}, ErrEmailDisabled
	}
	p, err := deps.API.GetPayment(ctx, input.PaymentID)
	if err != nil {
		return email.SendResult{}, err
	}
	if p.InvoiceNumber == "" {
		return email.SendResult{}, payment.ErrNoInvoiceNumber
	}
	if !p.IsOutstanding() {
		return email.SendResult{}, payment.ErrNotOutstanding
	}
	to, err := newRecipients(deps.API).of(ctx, p)
	if err != nil {
		return email.SendResult{}, err
	}
	req, err := email.Compose(paymentMessage(email.KindInvoice, p, to, organizationName(ctx, deps.API, input.OrganizationID)))
	if err != nil {
		return email.SendResult{}, err
	}
	res, err := deps.Email.Send(ctx, req)
	if err != nil {
		return email.SendResult{}, err
	}
	log.Info().Str("payment_id", p.ID).Str("invoice", p.InvoiceNumber).Str("message_id", res.MessageID).Msg("invoice_sent")
	return res, nil
}

// SendRemindersInput carries input for the overdue reminders orchestrator.
type SendRemindersInput struct {
	Actor          rbac.Context
	OrganizationID string
}

// SendRemindersResult reports what the reminder run did.
type SendRemindersResult struct {
	Sent    int
	Skipped []string // payment IDs without an invoice number or a reachable coach
}

// ExecuteSendOverdueReminders emails every coach with an overdue invoice in
// the organization, in one batch.
// POST: Sent + len(Skipped) equals the number of overdue payments found
func ExecuteSendOverdueReminders(ctx context.Context, input SendRemindersInput, deps PaymentDeps) (SendRemindersResult, error) {
	if !rbac.Can(input.Actor, rbac.ActionInvoice, rbac.SubjectPayments) {
		return SendRemindersResult{}, ErrForbidden
	}
	if deps.Email == nil {
		return SendRemindersResult{}, ErrEmailDisabled
	}
	page, err := deps.API.ListPayments(ctx, api.ListQuery{OrganizationID: input.OrganizationID, Limit: reminderFetchLimit})
	if err != nil {
		return SendRemindersResult{}, err
	}
	now := deps.Now()
	org := organizationName(ctx, deps.API, input.OrganizationID)
	coaches := newRecipients(deps.API)

	var result SendRemindersResult
	var reqs []email.SendRequest
	for _, p := range page.Items {
		if !p.IsOverdue(now) {
			continue
		}
		if p.InvoiceNumber == "" {
			result.Skipped = append(result.Skipped, p.ID)
			continue
		}
		to, err := coaches.of(ctx, p)
		if err != nil {
			log.Info().Err(err).Str("payment_id", p.ID).Msg("reminder_recipient_unknown")
			result.Skipped = append(result.Skipped, p.ID)
			continue
		}
		req, err := email.Compose(paymentMessage(email.KindReminder, p, to, org))
		if err != nil {
			result.Skipped = append(result.Skipped, p.ID)
			continue
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return result, nil
	}
	sent, err := deps.Email.SendBatch(ctx, reqs)
	result.Sent = len(sent)
	if err != nil {
		return result, err
	}
	log.Info().Int("sent", result.Sent).Int("skipped", len(result.Skipped)).Msg("overdue_reminders_sent")
	return result, nil
}
