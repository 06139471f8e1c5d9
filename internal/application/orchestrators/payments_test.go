package orchestrators

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"coachhub/internal/adapters/api"
	"coachhub/internal/adapters/email"
	"coachhub/internal/domain/organization"
	"coachhub/internal/domain/payment"
	"coachhub/internal/domain/ref"
	"coachhub/internal/domain/user"
)

// failingSender rejects every send.
type failingSender struct{}

func (failingSender) Send(context.Context, email.SendRequest) (email.SendResult, error) {
	return email.SendResult{}, errors.New("provider unavailable")
}

func (failingSender) SendBatch(context.Context, []email.SendRequest) ([]email.SendResult, error) {
	return nil, errors.New("provider unavailable")
}

func daysFromFixed(d int) *time.Time {
	t := fixedTime.AddDate(0, 0, d)
	return &t
}

// newPaymentsAPI seeds one coach reachable only through GetUser and one
// embedded in its payment.
func newPaymentsAPI() *fakeAPI {
	fake := newFakeAPI()
	fake.org = organization.Organization{ID: "o1", Name: "Acme"}
	fake.users["c1"] = user.User{ID: "c1", FirstName: "Casey", LastName: "Lee", Email: "casey@example.com"}
	fake.payments["p1"] = payment.Payment{
		ID:            "p1",
		CoachID:       ref.ByID[user.Summary]("c1"),
		Amount:        120.5,
		Currency:      "usd",
		Status:        payment.StatusPending,
		DueDate:       daysFromFixed(-3),
		InvoiceNumber: "INV-1",
		SessionIDs:    []string{"s1", "s2"},
	}
	fake.payments["p2"] = payment.Payment{
		ID:            "p2",
		CoachID:       ref.Embed(user.Summary{ID: "c2", FirstName: "Dana", Email: "dana@example.com"}),
		Amount:        80,
		Currency:      "usd",
		Status:        payment.StatusOverdue,
		InvoiceNumber: "INV-2",
	}
	fake.payments["p3"] = payment.Payment{
		ID:       "p3",
		CoachID:  ref.ByID[user.Summary]("c1"),
		Amount:   40,
		Currency: "eur",
		Status:   payment.StatusPending,
		DueDate:  daysFromFixed(-1),
	}
	fake.payments["p4"] = payment.Payment{
		ID:            "p4",
		CoachID:       ref.ByID[user.Summary]("c1"),
		Amount:        60,
		Currency:      "eur",
		Status:        payment.StatusPending,
		DueDate:       daysFromFixed(10),
		InvoiceNumber: "INV-4",
	}
	return fake
}

func TestExecuteMarkPaid_SendsReceipt(t *testing.T) {
	fake := newPaymentsAPI()
	sender := email.NewNoopSender()
	cache := &mockInvalidator{}

	res, err := ExecuteMarkPaid(context.Background(), MarkPaidInput{
		Actor:          asManager,
		OrganizationID: "o1",
		PaymentID:      "p1",
	}, PaymentDeps{API: fake, Cache: cache, Email: sender, Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Payment.Status != payment.StatusPaid || !fake.paidAt.Equal(fixedTime) {
		t.Errorf("payment = %+v, paid at %v", res.Payment, fake.paidAt)
	}
	if !res.ReceiptSent {
		t.Fatal("ReceiptSent = false")
	}
	sent := sender.Sent()
	if len(sent) != 1 || sent[0].To[0] != "casey@example.com" {
		t.Fatalf("sent = %+v", sent)
	}
	if !strings.Contains(sent[0].Subject, "INV-1") || !strings.Contains(sent[0].Subject, "Acme") {
		t.Errorf("Subject = %q", sent[0].Subject)
	}
	if len(cache.resources) != 1 {
		t.Errorf("invalidated %v", cache.resources)
	}
}

func TestExecuteMarkPaid_ReceiptFailureKeepsPayment(t *testing.T) {
	fake := newPaymentsAPI()
	paidAt := fixedTime.Add(-time.Hour)
	res, err := ExecuteMarkPaid(context.Background(), MarkPaidInput{
		Actor:     asManager,
		PaymentID: "p2",
		PaidAt:    paidAt,
	}, PaymentDeps{API: fake, Cache: &mockInvalidator{}, Email: failingSender{}, Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReceiptSent || res.Payment.Status != payment.StatusPaid || !fake.paidAt.Equal(paidAt) {
		t.Errorf("result = %+v", res)
	}
	if fake.count("GetUser") != 0 {
		t.Error("embedded coach looked up again")
	}
}

func TestExecuteMarkPaid_Guards(t *testing.T) {
	fake := newPaymentsAPI()
	p := fake.payments["p1"]
	p.Status = payment.StatusRefunded
	fake.payments["p1"] = p
	deps := PaymentDeps{API: fake, Cache: &mockInvalidator{}, Now: fixedNow}

	if _, err := ExecuteMarkPaid(context.Background(), MarkPaidInput{Actor: asCoach, PaymentID: "p2"}, deps); !errors.Is(err, ErrForbidden) {
		t.Errorf("coach: err = %v, want ErrForbidden", err)
	}
	if _, err := ExecuteMarkPaid(context.Background(), MarkPaidInput{Actor: asManager, PaymentID: "p1"}, deps); !errors.Is(err, payment.ErrNotOutstanding) {
		t.Errorf("refunded: err = %v, want ErrNotOutstanding", err)
	}
	if fake.count("MarkPaid") != 0 {
		t.Error("remote call made despite a guard")
	}
}

func TestExecuteSendInvoice(t *testing.T) {
	fake := newPaymentsAPI()
	sender := email.NewNoopSender()
	deps := PaymentDeps{API: fake, Email: sender, Now: fixedNow}

	if _, err := ExecuteSendInvoice(context.Background(), SendInvoiceInput{Actor: asCoach, OrganizationID: "o1", PaymentID: "p4"}, deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent := sender.Sent(); len(sent) != 1 || !strings.Contains(sent[0].Subject, "INV-4") {
		t.Errorf("sent = %+v", sent)
	}

	tests := []struct {
		name string
		id   string
		deps PaymentDeps
		want error
	}{
		{"no invoice number", "p3", deps, payment.ErrNoInvoiceNumber},
		{"email disabled", "p4", PaymentDeps{API: fake, Now: fixedNow}, ErrEmailDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExecuteSendInvoice(context.Background(), SendInvoiceInput{Actor: asManager, PaymentID: tt.id}, tt.deps)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExecuteSendOverdueReminders(t *testing.T) {
	fake := newPaymentsAPI()
	sender := email.NewNoopSender()

	res, err := ExecuteSendOverdueReminders(context.Background(), SendRemindersInput{
		Actor:          asManager,
		OrganizationID: "o1",
	}, PaymentDeps{API: fake, Email: sender, Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Sent != 2 || !slices.Equal(res.Skipped, []string{"p3"}) {
		t.Errorf("result = %+v", res)
	}
	var to []string
	for _, req := range sender.Sent() {
		to = append(to, req.To...)
	}
	slices.Sort(to)
	if !slices.Equal(to, []string{"casey@example.com", "dana@example.com"}) {
		t.Errorf("reminders went to %v", to)
	}
	if fake.count("GetUser") != 1 {
		t.Errorf("GetUser calls = %d, want 1", fake.count("GetUser"))
	}
}

func TestExecuteSendOverdueReminders_BatchFailure(t *testing.T) {
	res, err := ExecuteSendOverdueReminders(context.Background(), SendRemindersInput{
		Actor: asManager,
	}, PaymentDeps{API: newPaymentsAPI(), Email: failingSender{}, Now: fixedNow})
	if err == nil || res.Sent != 0 {
		t.Errorf("result = %+v, err = %v", res, err)
	}
}

func TestExecuteExportPayments(t *testing.T) {
	fake := newPaymentsAPI()
	page, _ := fake.ListPayments(context.Background(), api.ListQuery{})

	var buf bytes.Buffer
	err := ExecuteExportPayments(context.Background(), ExportPaymentsInput{
		Actor:    asCoach,
		Payments: page.Items,
		Now:      fixedTime,
	}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Payments")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 5 || rows[0][0] != "Invoice" {
		t.Fatalf("rows = %v", rows)
	}
	p1 := rows[1]
	if p1[0] != "INV-1" || p1[1] != "c1" || p1[3] != "USD" || p1[5] != "2026-02-26" || p1[7] != "yes" || p1[8] != "2" {
		t.Errorf("p1 row = %v", p1)
	}
	if rows[2][1] != "Dana" {
		t.Errorf("embedded coach label = %q", rows[2][1])
	}
	if rows[4][7] != "no" {
		t.Errorf("p4 overdue = %q", rows[4][7])
	}

	totals, err := f.GetRows("Totals")
	if err != nil {
		t.Fatalf("GetRows Totals: %v", err)
	}
	if len(totals) != 3 || totals[1][0] != "EUR" || totals[1][1] != "2" || totals[2][0] != "USD" {
		t.Errorf("totals = %v", totals)
	}
}

func TestExecuteExportPayments_Forbidden(t *testing.T) {
	var buf bytes.Buffer
	err := ExecuteExportPayments(context.Background(), ExportPaymentsInput{Actor: asEntrepreneur}, &buf)
	if !errors.Is(err, ErrForbidden) || buf.Len() != 0 {
		t.Errorf("err = %v, wrote %d bytes", err, buf.Len())
	}
}
