package garment

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/xuri/excelize/v2"
)

const (
	// ExportFilename is the name used when delivering the spreadsheet.
	ExportFilename = "garment_details.xlsx"
	// ExportMIMEType is the content type of the spreadsheet.
	ExportMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	exportSheet = "Sheet1"
)

// WriteXLSX writes the table as a single-sheet workbook with a header row
// followed by one row per record.
func WriteXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	rows := append([][]string{Columns}, t.Rows()...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// maxTextCell caps the Text column in terminal output. Export keeps it whole.
const maxTextCell = 60

// RenderTable renders the table for terminal display.
func RenderTable(t *Table) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(Columns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, row := range t.Rows() {
		row[1] = truncate(strings.Join(strings.Fields(row[1]), " "), maxTextCell)
		tbl.Row(row...)
	}
	return tbl.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
