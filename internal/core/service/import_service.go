package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/core/barcode"
	"github.com/rl1809/shipstore/internal/core/coerce"
	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/metrics"
	"github.com/rl1809/shipstore/internal/port"
)

const (
	defaultImportMaxRows = 5000
	defaultImportRemark  = "Imported via bulk upload"
)

type ImportRequest struct {
	ChildDepartmentID string
	// ParentDepartmentID, when set, must be the parent of the child department
	ParentDepartmentID string
	Rows               []domain.ImportRow
	// RemarkMissing reports that the file had no remark column at all, in
	// which case every part gets the default remark.
	RemarkMissing bool
}

type ImportService struct {
	store   port.Store
	parts   *PartService
	maxRows int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewImportService(store port.Store, parts *PartService, maxRows int, logger *zap.Logger, m *metrics.Metrics) *ImportService {
	if maxRows < 1 {
		maxRows = defaultImportMaxRows
	}
	return &ImportService{store: store, parts: parts, maxRows: maxRows, logger: logger, metrics: m}
}

// batch tracks the identities seen while a file is imported.
type batch struct {
	path     *domain.DepartmentPath
	prefix   string
	existing map[string]bool
	accepted map[string]bool
	serial   int
}

// accept records a committed code; generated codes continue after the
// highest serial seen under the prefix.
func (b *batch) accept(code string) {
	b.accepted[code] = true
	if strings.HasPrefix(code, b.prefix+"-") {
		if n, ok := barcode.Serial(code); ok && n > b.serial {
			b.serial = n
		}
	}
}

func (b *batch) nextCode() (string, bool) {
	for b.serial < barcode.MaxSerial {
		b.serial++
		code := fmt.Sprintf("%s-%04d", b.prefix, b.serial)
		if !b.existing[code] && !b.accepted[code] {
			return code, true
		}
	}
	return "", false
}

// Import validates and inserts each row in its own unit. Row failures are
// recorded in the report and never stop the batch. A cancelled context or
// an unexpected storage failure stops the remaining rows; the report then
// holds every row processed so far and is returned with the error.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*domain.ImportReport, error) {
	if len(req.Rows) > s.maxRows {
		return nil, &domain.ValidationError{Field: "rows", Reason: fmt.Sprintf("import holds %d rows, the limit is %d", len(req.Rows), s.maxRows)}
	}

	b, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &domain.ImportReport{Outcomes: make([]domain.ImportOutcome, 0, len(req.Rows))}
	for _, row := range req.Rows {
		if err := ctx.Err(); err != nil {
			return s.abort(report, fmt.Errorf("import cancelled: %w", err))
		}

		outcome, err := s.importRow(ctx, b, row, req.RemarkMissing)
		report.Record(outcome)
		s.metrics.ImportRow(string(outcome.Status))
		if err != nil {
			return s.abort(report, err)
		}
	}

	report.Summarize()
	s.logger.Info("import finished",
		zap.String("department_id", b.path.Child.ID),
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.SuccessCount),
		zap.Int("failed", report.FailedCount),
	)
	return report, nil
}

func (s *ImportService) prepare(ctx context.Context, req ImportRequest) (*batch, error) {
	repos := s.store.Repos()
	path, err := resolvePath(ctx, repos.Departments, strings.TrimSpace(req.ChildDepartmentID))
	if err != nil {
		return nil, err
	}
	if parentID := strings.TrimSpace(req.ParentDepartmentID); parentID != "" && parentID != path.Parent.ID {
		return nil, &domain.ValidationError{
			Field:  "parent_department_id",
			Reason: fmt.Sprintf("department %q does not belong to the selected parent", path.Child.Name),
		}
	}
	prefix, err := barcodePrefix(path)
	if err != nil {
		return nil, err
	}

	codes, err := repos.Parts.ListBarcodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload barcodes: %w", err)
	}
	b := &batch{
		path:     path,
		prefix:   prefix,
		existing: make(map[string]bool, len(codes)),
		accepted: make(map[string]bool),
		serial:   highestSerial(codes, prefix),
	}
	for _, code := range codes {
		b.existing[code] = true
	}
	return b, nil
}

func (s *ImportService) abort(report *domain.ImportReport, err error) (*domain.ImportReport, error) {
	report.Aborted = true
	report.Summarize()
	s.logger.Error("import aborted",
		zap.Int("processed", report.Total),
		zap.Int("succeeded", report.SuccessCount),
		zap.Error(err),
	)
	return report, err
}

// rowFailure reports whether err only concerns the row being imported.
func rowFailure(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrDuplicate) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrStorageBusy)
}

func (s *ImportService) importRow(ctx context.Context, b *batch, row domain.ImportRow, remarkMissing bool) (domain.ImportOutcome, error) {
	outcome := domain.ImportOutcome{
		RowNumber:  row.RowNumber,
		PartNumber: coerce.Text(row.PartNumber),
		Name:       coerce.Text(row.Name),
		Barcode:    coerce.Text(row.Barcode),
		Status:     domain.ImportFailed,
	}
	fail := func(msg string) (domain.ImportOutcome, error) {
		outcome.Message = msg
		return outcome, nil
	}

	boxNo, compartmentNo := coerce.Text(row.BoxNo), coerce.Text(row.CompartmentNo)
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"part_number", outcome.PartNumber},
		{"name", outcome.Name},
		{"box_no", boxNo},
		{"compartment_no", compartmentNo},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fail(domain.MissingFieldsError(missing).Error())
	}

	if outcome.Barcode != "" {
		code, err := barcode.Validate(outcome.Barcode)
		if err != nil {
			return fail(err.Error())
		}
		outcome.Barcode = code
		if b.existing[code] {
			return fail(fmt.Sprintf("barcode %s already exists in database", code))
		}
		if b.accepted[code] {
			return fail(fmt.Sprintf("barcode %s duplicated in this import file", code))
		}
	}

	taken, err := s.store.Repos().Parts.PartNumberExists(ctx, outcome.PartNumber, b.path.Child.ID)
	if err != nil {
		if rowFailure(err) {
			return fail(err.Error())
		}
		outcome.Message = err.Error()
		return outcome, err
	}
	if taken {
		return fail(fmt.Sprintf("part number %s already exists in this department", outcome.PartNumber))
	}

	for _, f := range []struct{ name, value string }{
		{"quantity", row.Quantity},
		{"min_order_level", row.MinOrderLevel},
		{"min_order_quantity", row.MinOrderQuantity},
	} {
		if d, ok := coerce.ParseDecimal(f.value); ok && !domain.QuantityInRange(d) {
			return fail(fmt.Sprintf("%s %s is out of range", f.name, coerce.Text(f.value)))
		}
	}

	quantity := coerce.Decimal(row.Quantity, decimal.Zero)
	if quantity.IsNegative() {
		return fail(fmt.Sprintf("quantity %s must not be negative", quantity.String()))
	}

	generated := outcome.Barcode == ""
	if generated {
		code, ok := b.nextCode()
		if !ok {
			return fail(fmt.Sprintf("no barcode serials left under prefix %s", b.prefix))
		}
		outcome.Barcode = code
	}

	remark := coerce.Text(row.Remark)
	if remark == "" && remarkMissing {
		remark = defaultImportRemark
	}

	in := NewPart{
		PartNumber:          outcome.PartNumber,
		Name:                outcome.Name,
		Description:         coerce.Text(row.Description),
		Quantity:            quantity,
		MinOrderLevel:       coerce.Decimal(row.MinOrderLevel, decimal.Zero),
		MinOrderQuantity:    coerce.Decimal(row.MinOrderQuantity, decimal.Zero),
		Barcode:             outcome.Barcode,
		DepartmentID:        b.path.Child.ID,
		CompartmentNo:       compartmentNo,
		BoxNo:               boxNo,
		LineNo:              coerce.Int(row.LineNo, 0),
		PageNo:              coerce.Text(row.PageNo),
		OrderNo:             coerce.Text(row.OrderNo),
		MaterialCode:        coerce.Text(row.MaterialCode),
		IlmsCode:            coerce.Text(row.IlmsCode),
		ItemDenomination:    coerce.Text(row.ItemDenomination),
		Mustered:            coerce.Bool(row.Mustered),
		Remark:              remark,
		Status:              domain.PartStatusInStore,
		LastMaintenanceDate: coerce.Date(row.LastMaintenanceDate),
		NextMaintenanceDate: coerce.Date(row.NextMaintenanceDate),
	}

	for attempt := 1; ; attempt++ {
		in.Barcode = outcome.Barcode
		_, err := s.parts.Add(ctx, in)
		if err == nil {
			break
		}
		// another writer took the generated code after the batch snapshot
		var dup *domain.DuplicateError
		if generated && attempt < barcodeAttempts && errors.As(err, &dup) && dup.Kind == domain.DuplicateBarcode {
			b.existing[outcome.Barcode] = true
			code, ok := b.nextCode()
			if !ok {
				return fail(fmt.Sprintf("no barcode serials left under prefix %s", b.prefix))
			}
			outcome.Barcode = code
			continue
		}
		if rowFailure(err) {
			return fail(err.Error())
		}
		outcome.Message = err.Error()
		return outcome, err
	}

	b.accept(outcome.Barcode)
	outcome.Status = domain.ImportSuccess
	outcome.Message = "imported"
	return outcome, nil
}
