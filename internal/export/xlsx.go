// Package export writes the settlement history to an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mmynk/splitledger/internal/models"
)

const (
	SettlementsSheet = "Settlements"
	EntriesSheet     = "Entries"
)

var (
	settlementHeader = []any{"Settlement ID", "Finalized at", "Receiver", "Sender", "Amount", "Note", "Finalized by", "Receipts", "Manual expenses"}
	entryHeader      = []any{"Settlement ID", "Kind", "Date", "Description", "Number", "Total", "Paid by", "Not ours"}
)

// Source is the read side of the ledger the exporter needs.
type Source interface {
	Participants(ctx context.Context) ([]models.Participant, error)
	ListSettlements(ctx context.Context) ([]models.Settlement, error)
	SettlementDetail(ctx context.Context, settlementID string) (*models.SettlementDetail, error)
}

// Exporter renders settlement history as a workbook with one sheet of
// settlements and one sheet of the receipts and expenses each one closed.
type Exporter struct {
	src      Source
	location *time.Location
}

// New creates an Exporter. Timestamps are rendered in loc, or local time when nil.
func New(src Source, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{src: src, location: loc}
}

// Write builds the workbook and writes it to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer) (int, error) {
	ps, err := e.src.Participants(ctx)
	if err != nil {
		return 0, err
	}
	names := make(map[string]string, len(ps))
	for _, p := range ps {
		names[p.ID] = p.Name
	}
	name := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	settlements, err := e.src.ListSettlements(ctx)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SettlementsSheet); err != nil {
		return 0, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(EntriesSheet); err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("failed to create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return 0, fmt.Errorf("failed to create style: %w", err)
	}

	if err := writeHeader(f, SettlementsSheet, settlementHeader, bold); err != nil {
		return 0, err
	}
	if err := writeHeader(f, EntriesSheet, entryHeader, bold); err != nil {
		return 0, err
	}

	entryRow := 2
	for i, s := range settlements {
		detail, err := e.src.SettlementDetail(ctx, s.ID)
		if err != nil {
			return 0, fmt.Errorf("settlement %s: %w", s.ID, err)
		}

		row := []any{
			s.ID,
			time.Unix(s.FinalizedAt, 0).In(e.location).Format("2006-01-02 15:04"),
			name(s.PayerID),
			name(s.DebtorID),
			s.Amount.InexactFloat64(),
			s.Note,
			s.FinalizedBy,
			len(detail.Receipts),
			len(detail.ManualExpenses),
		}
		if err := writeRow(f, SettlementsSheet, i+2, row); err != nil {
			return 0, err
		}
		if err := styleCell(f, SettlementsSheet, 5, i+2, money); err != nil {
			return 0, err
		}

		for _, r := range detail.Receipts {
			row := []any{s.ID, "receipt", r.Date, r.Store.Name, r.Number, r.FinalPrice.InexactFloat64(), name(r.PayerID), r.NotOurReceipt}
			if err := writeRow(f, EntriesSheet, entryRow, row); err != nil {
				return 0, err
			}
			if err := styleCell(f, EntriesSheet, 6, entryRow, money); err != nil {
				return 0, err
			}
			entryRow++
		}
		for _, m := range detail.ManualExpenses {
			row := []any{s.ID, "manual_expense", m.Date, m.Description, "", m.TotalCost.InexactFloat64(), name(m.PayerID), false}
			if err := writeRow(f, EntriesSheet, entryRow, row); err != nil {
				return 0, err
			}
			if err := styleCell(f, EntriesSheet, 6, entryRow, money); err != nil {
				return 0, err
			}
			entryRow++
		}
	}

	if err := f.SetColWidth(SettlementsSheet, "A", "A", 38); err != nil {
		return 0, err
	}
	if err := f.SetColWidth(EntriesSheet, "A", "A", 38); err != nil {
		return 0, err
	}
	if err := f.SetColWidth(EntriesSheet, "D", "D", 30); err != nil {
		return 0, err
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return len(settlements), nil
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := writeRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleCell(f *excelize.File, sheet string, col, row, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, cell, style)
}
