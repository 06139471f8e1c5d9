package orchestrators

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"coachhub/internal/domain/payment"
	"coachhub/internal/domain/rbac"
)

const (
	paymentsSheet = "Payments"
	totalsSheet   = "Totals"
	dateLayout    = "2006-01-02"
)

var paymentHeader = []any{"Invoice", "Coach", "Amount", "Currency", "Status", "Due", "Paid", "Overdue", "Sessions"}

// ExportPaymentsInput carries input for the export payments orchestrator.
type ExportPaymentsInput struct {
	Actor    rbac.Context
	Payments []payment.Payment
	Now      time.Time
}

// ExecuteExportPayments writes payments and their per-currency totals as an
// xlsx workbook to w.
// PRE: input.Payments are already scoped to the actor
// POST: The workbook has a Payments sheet with one row per payment and a Totals sheet
func ExecuteExportPayments(ctx context.Context, input ExportPaymentsInput, w io.Writer) error {
	if !rbac.Can(input.Actor, rbac.ActionView, rbac.SubjectPayments) {
		return ErrForbidden
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", paymentsSheet); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(paymentsSheet, "A1", &paymentHeader); err != nil {
		return err
	}
	for i, p := range input.Payments {
		if err := ctx.Err(); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			p.InvoiceNumber,
			coachLabel(p),
			p.Amount,
			strings.ToUpper(p.Currency),
			p.Status,
			formatDate(p.DueDate),
			formatDate(p.PaidAt),
			yesNo(p.IsOverdue(input.Now)),
			len(p.SessionIDs),
		}
		if err := f.SetSheetRow(paymentsSheet, cell, &row); err != nil {
			return err
		}
	}
	last := len(input.Payments) + 1
	if err := f.SetCellStyle(paymentsSheet, "A1", "I1", header); err != nil {
		return err
	}
	if last > 1 {
		if err := f.SetCellStyle(paymentsSheet, "C2", fmt.Sprintf("C%d", last), money); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(paymentsSheet, "A", "B", 24); err != nil {
		return err
	}
	if err := f.SetPanes(paymentsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	if err := writeTotals(f, payment.Summarize(input.Payments, input.Now), header, money); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return err
	}
	log.Info().Int("rows", len(input.Payments)).Msg("payments_exported")
	return nil
}

func writeTotals(f *excelize.File, totals []payment.Totals, header, money int) error {
	if _, err := f.NewSheet(totalsSheet); err != nil {
		return err
	}
	cols := []any{"Currency", "Payments", "Paid", "Outstanding", "Overdue"}
	if err := f.SetSheetRow(totalsSheet, "A1", &cols); err != nil {
		return err
	}
	if err := f.SetCellStyle(totalsSheet, "A1", "E1", header); err != nil {
		return err
	}
	for i, t := range totals {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{t.Currency, t.Count, t.Paid, t.Outstanding, t.Overdue}
		if err := f.SetSheetRow(totalsSheet, cell, &row); err != nil {
			return err
		}
	}
	if len(totals) > 0 {
		return f.SetCellStyle(totalsSheet, "C2", fmt.Sprintf("E%d", len(totals)+1), money)
	}
	return nil
}

func coachLabel(p payment.Payment) string {
	if s, ok := p.CoachID.Embedded(); ok {
		if name := s.FullName(); name != "" {
			return name
		}
	}
	return p.CoachID.ID()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
