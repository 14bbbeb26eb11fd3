package importfile

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/rl1809/shipstore/internal/core/domain"
)

const reportSheet = "Import Results"

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(r io.Reader, maxRows int) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &domain.ValidationError{Field: "file", Reason: fmt.Sprintf("not a valid xlsx workbook: %v", err)}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, &domain.ValidationError{Field: "file", Reason: "file is empty"}
	}

	b, err := newTableBuilder(rows[0], maxRows)
	if err != nil {
		return nil, err
	}
	for i, record := range rows[1:] {
		// rows[0] is line 1
		if err := b.add(record, i+2); err != nil {
			return nil, err
		}
	}
	return b.table, nil
}

// WriteReportXLSX writes the outcomes to a single sheet followed by the
// summary line.
func WriteReportXLSX(w io.Writer, report *domain.ImportReport) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(reportSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	failedStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#C00000"},
	})

	for i, h := range reportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(reportSheet, cell, h)
		f.SetCellStyle(reportSheet, cell, cell, headerStyle)
	}
	f.SetColWidth(reportSheet, "B", "D", 18)
	f.SetColWidth(reportSheet, "F", "F", 60)

	for i, o := range report.Outcomes {
		row := i + 2
		values := []any{o.RowNumber, o.PartNumber, o.Name, o.Barcode, string(o.Status), o.Message}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			f.SetCellValue(reportSheet, cell, v)
		}
		if o.Status == domain.ImportFailed {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			f.SetCellStyle(reportSheet, first, last, failedStyle)
		}
	}

	summary, _ := excelize.CoordinatesToCellName(1, len(report.Outcomes)+3)
	f.SetCellValue(reportSheet, summary, report.Message)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
