package voucher

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"printshop/internal/store"
)

const statsSheet = "Sheet1"

var statsHeader = []interface{}{
	"Staff ID", "Username", "Branch",
	"Unsold", "Unsold sum",
	"Sold", "Sold sum",
	"Consumed", "Consumed sum",
}

// ExportStats writes the Stats report as an XLSX workbook: one row per staff
// member followed by a totals row.
func (s *service) ExportStats(ctx context.Context, actor store.User, w io.Writer) error {
	stats, err := s.Stats(ctx, actor)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(statsSheet, "A1", &statsHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := 2
	for _, st := range stats.Staff {
		values := []interface{}{
			st.StaffID, st.Username, st.Branch,
			st.UnsoldCount, st.UnsoldSum,
			st.SoldCount, st.SoldSum,
			st.ConsumedCount, st.ConsumedSum,
		}
		if err := f.SetSheetRow(statsSheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	totals := []interface{}{
		"", "TOTAL", "",
		stats.UnsoldCount, stats.UnsoldSum,
		stats.SoldCount, stats.SoldSum,
		stats.ConsumedCount, stats.ConsumedSum,
	}
	if err := f.SetSheetRow(statsSheet, fmt.Sprintf("A%d", row), &totals); err != nil {
		return fmt.Errorf("failed to write totals: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
