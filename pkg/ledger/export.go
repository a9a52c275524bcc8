package ledger

import (
	"context"
	"fmt"
	"io"

	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	entriesSheet = "Distribution"
	summarySheet = "Summary"
)

// BrokerNames resolves broker ids to display names for exports
type BrokerNames interface {
	GetMany(ctx context.Context, ids []string) (map[string]*models.Profile, error)
}

// ExportXLSX writes the entries matching filter, plus a per-broker summary
// sheet, as an Excel workbook. names may be nil.
func (s *Service) ExportXLSX(ctx context.Context, w io.Writer, filter models.LedgerFilter, names BrokerNames) error {
	entries, err := s.List(ctx, filter)
	if err != nil {
		return err
	}
	summary, err := s.Summary(ctx, filter)
	if err != nil {
		return err
	}

	brokerName := func(string) string { return "" }
	if names != nil {
		ids := make([]string, len(summary))
		for i, d := range summary {
			ids[i] = d.BrokerID
		}
		profiles, err := names.GetMany(ctx, ids)
		if err != nil {
			return err
		}
		brokerName = func(id string) string {
			if p, ok := profiles[id]; ok {
				return p.FullName
			}
			return ""
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", entriesSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := writeRow(f, entriesSheet, 1, headerStyle,
		"ID", "Lead ID", "Broker ID", "Broker", "Order Position", "Assigned At"); err != nil {
		return err
	}
	for i, e := range entries {
		if err := writeRow(f, entriesSheet, i+2, 0,
			e.ID, e.LeadID, e.BrokerID, brokerName(e.BrokerID), e.OrderPosition, e.AssignedAt); err != nil {
			return err
		}
	}

	if err := writeRow(f, summarySheet, 1, headerStyle,
		"Broker ID", "Broker", "Leads", "First Assigned", "Last Assigned"); err != nil {
		return err
	}
	for i, d := range summary {
		if err := writeRow(f, summarySheet, i+2, 0,
			d.BrokerID, brokerName(d.BrokerID), d.LeadCount, *d.FirstAssigned, *d.LastAssigned); err != nil {
			return err
		}
	}

	for _, sheet := range []string{entriesSheet, summarySheet} {
		if err := f.SetColWidth(sheet, "A", "F", 22); err != nil {
			return fmt.Errorf("failed to size columns: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row, style int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	if style == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, last, style)
}
