package importfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rl1809/shipstore/internal/core/domain"
)

// ParseCSV reads a UTF-8 CSV file, with or without a byte order mark.
func ParseCSV(r io.Reader, maxRows int) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.ValidationError{Field: "file", Reason: "file is empty"}
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	b, err := newTableBuilder(header, maxRows)
	if err != nil {
		return nil, err
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.ValidationError{Field: "file", Reason: err.Error()}
		}
		line, _ := reader.FieldPos(0)
		if err := b.add(record, line); err != nil {
			return nil, err
		}
	}
	return b.table, nil
}

var reportHeader = []string{"row_number", "part_number", "name", "barcode", "status", "message"}

// WriteReportCSV writes one line per outcome.
func WriteReportCSV(w io.Writer, report *domain.ImportReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, o := range report.Outcomes {
		record := []string{strconv.Itoa(o.RowNumber), o.PartNumber, o.Name, o.Barcode, string(o.Status), o.Message}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
