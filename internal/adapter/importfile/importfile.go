// Package importfile reads bulk import files and writes import reports.
// CSV and XLSX share one column model: headers are matched
// case-insensitively and row numbers are spreadsheet line numbers, so the
// first data line is row 2.
package importfile

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rl1809/shipstore/internal/core/domain"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Table is a parsed import file.
type Table struct {
	Rows []domain.ImportRow
	// RemarkMissing is set when the file has no remark column
	RemarkMissing bool
}

// RequiredColumns must all be present in the header.
var RequiredColumns = []string{"part_number", "name", "quantity", "box_no", "compartment_no"}

var columns = map[string]func(r *domain.ImportRow, v string){
	"part_number":           func(r *domain.ImportRow, v string) { r.PartNumber = v },
	"name":                  func(r *domain.ImportRow, v string) { r.Name = v },
	"description":           func(r *domain.ImportRow, v string) { r.Description = v },
	"quantity":              func(r *domain.ImportRow, v string) { r.Quantity = v },
	"line_no":               func(r *domain.ImportRow, v string) { r.LineNo = v },
	"page_no":               func(r *domain.ImportRow, v string) { r.PageNo = v },
	"order_no":              func(r *domain.ImportRow, v string) { r.OrderNo = v },
	"material_code":         func(r *domain.ImportRow, v string) { r.MaterialCode = v },
	"ilms_code":             func(r *domain.ImportRow, v string) { r.IlmsCode = v },
	"item_denomination":     func(r *domain.ImportRow, v string) { r.ItemDenomination = v },
	"mustered":              func(r *domain.ImportRow, v string) { r.Mustered = v },
	"compartment_no":        func(r *domain.ImportRow, v string) { r.CompartmentNo = v },
	"box_no":                func(r *domain.ImportRow, v string) { r.BoxNo = v },
	"remark":                func(r *domain.ImportRow, v string) { r.Remark = v },
	"barcode":               func(r *domain.ImportRow, v string) { r.Barcode = v },
	"min_order_level":       func(r *domain.ImportRow, v string) { r.MinOrderLevel = v },
	"min_order_quantity":    func(r *domain.ImportRow, v string) { r.MinOrderQuantity = v },
	"last_maintenance_date": func(r *domain.ImportRow, v string) { r.LastMaintenanceDate = v },
	"next_maintenance_date": func(r *domain.ImportRow, v string) { r.NextMaintenanceDate = v },
}

var aliases = map[string]string{
	"compartment_name": "compartment_no",
	"remarks":          "remark",
}

func canonical(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.ReplaceAll(h, " ", "_")
	if alias, ok := aliases[h]; ok {
		return alias
	}
	return h
}

// FormatFromName picks the format from a file name extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
}

// Parse reads a whole import file. maxRows of zero means no limit.
func Parse(r io.Reader, format Format, maxRows int) (*Table, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r, maxRows)
	case FormatXLSX:
		return ParseXLSX(r, maxRows)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// tableBuilder maps header positions to row fields.
type tableBuilder struct {
	setters []func(r *domain.ImportRow, v string)
	maxRows int
	table   *Table
}

func newTableBuilder(header []string, maxRows int) (*tableBuilder, error) {
	b := &tableBuilder{
		setters: make([]func(r *domain.ImportRow, v string), len(header)),
		maxRows: maxRows,
		table:   &Table{RemarkMissing: true},
	}

	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := canonical(h)
		if set, ok := columns[name]; ok && !seen[name] {
			b.setters[i] = set
			seen[name] = true
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Field: "columns", Reason: "missing required column(s): " + strings.Join(missing, ", ")}
	}
	b.table.RemarkMissing = !seen["remark"]
	return b, nil
}

// add appends a record found on the given line. Blank records are skipped.
func (b *tableBuilder) add(record []string, line int) error {
	blank := true
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil
	}

	if b.maxRows > 0 && len(b.table.Rows) >= b.maxRows {
		return &domain.ValidationError{Field: "rows", Reason: fmt.Sprintf("file holds more than %d rows", b.maxRows)}
	}

	row := domain.ImportRow{RowNumber: line}
	for i, v := range record {
		if i < len(b.setters) && b.setters[i] != nil {
			b.setters[i](&row, v)
		}
	}
	b.table.Rows = append(b.table.Rows, row)
	return nil
}
