package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/core/barcode"
	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/port"
)

// barcodeAttempts bounds how often an add with a generated barcode redraws
// the code after losing it to a concurrent writer.
const barcodeAttempts = 3

// NewPart is the input of a single add. An empty Barcode asks for the next
// code of the department; an empty Status means In Store.
type NewPart struct {
	PartNumber          string
	Name                string
	Description         string
	Quantity            decimal.Decimal
	MinOrderLevel       decimal.Decimal
	MinOrderQuantity    decimal.Decimal
	Barcode             string
	DepartmentID        string
	CompartmentNo       string
	BoxNo               string
	LineNo              int
	PageNo              string
	OrderNo             string
	MaterialCode        string
	IlmsCode            string
	ItemDenomination    string
	Mustered            bool
	Remark              string
	Status              domain.PartStatus
	LastMaintenanceDate *time.Time
	NextMaintenanceDate *time.Time
}

// PartUpdate carries every editable field. There is no quantity: stock
// changes only through LedgerService.
type PartUpdate = domain.PartDetails

type PartService struct {
	store  port.Store
	logger *zap.Logger
}

func NewPartService(store port.Store, logger *zap.Logger) *PartService {
	return &PartService{store: store, logger: logger}
}

func (in NewPart) normalize() (NewPart, error) {
	in.PartNumber = strings.TrimSpace(in.PartNumber)
	in.Name = strings.TrimSpace(in.Name)
	in.DepartmentID = strings.TrimSpace(in.DepartmentID)
	in.CompartmentNo = strings.TrimSpace(in.CompartmentNo)
	in.BoxNo = strings.TrimSpace(in.BoxNo)
	in.Barcode = strings.TrimSpace(in.Barcode)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"part_number", in.PartNumber},
		{"name", in.Name},
		{"box_no", in.BoxNo},
		{"compartment_no", in.CompartmentNo},
		{"department_id", in.DepartmentID},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return in, domain.MissingFieldsError(missing)
	}

	q, err := domain.CheckQuantity("quantity", in.Quantity)
	if err != nil {
		return in, err
	}
	in.Quantity = q
	if in.Quantity.IsNegative() {
		return in, &domain.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if in.Status == "" {
		in.Status = domain.PartStatusInStore
	}
	return in, nil
}

// validateDetails checks the fields shared by add and update.
func validateDetails(d *domain.PartDetails) error {
	var err error
	if d.MinOrderLevel, err = domain.CheckQuantity("min_order_level", d.MinOrderLevel); err != nil {
		return err
	}
	if d.MinOrderQuantity, err = domain.CheckQuantity("min_order_quantity", d.MinOrderQuantity); err != nil {
		return err
	}
	if d.MinOrderLevel.IsNegative() {
		return &domain.ValidationError{Field: "min_order_level", Reason: "must not be negative"}
	}
	if d.MinOrderQuantity.IsNegative() {
		return &domain.ValidationError{Field: "min_order_quantity", Reason: "must not be negative"}
	}
	if !d.Status.Valid() {
		return &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", d.Status)}
	}

	last, next := d.LastMaintenanceDate, d.NextMaintenanceDate
	if last != nil && last.After(now()) {
		return &domain.ValidationError{Field: "last_maintenance_date", Reason: "must not be in the future"}
	}
	if last != nil && next != nil && !next.After(*last) {
		return &domain.ValidationError{Field: "next_maintenance_date", Reason: "must be after the last maintenance date"}
	}
	return nil
}

func (s *PartService) Add(ctx context.Context, in NewPart) (string, error) {
	in, err := in.normalize()
	if err != nil {
		return "", err
	}

	at := now()
	part := domain.Part{
		ID:                  newID(),
		PartNumber:          in.PartNumber,
		Name:                in.Name,
		Description:         strings.TrimSpace(in.Description),
		Quantity:            in.Quantity,
		InitialQuantity:     in.Quantity,
		MinOrderLevel:       in.MinOrderLevel,
		MinOrderQuantity:    in.MinOrderQuantity,
		DepartmentID:        in.DepartmentID,
		CompartmentNo:       in.CompartmentNo,
		BoxNo:               in.BoxNo,
		LineNo:              in.LineNo,
		PageNo:              strings.TrimSpace(in.PageNo),
		OrderNo:             strings.TrimSpace(in.OrderNo),
		MaterialCode:        strings.TrimSpace(in.MaterialCode),
		IlmsCode:            strings.TrimSpace(in.IlmsCode),
		ItemDenomination:    strings.TrimSpace(in.ItemDenomination),
		Mustered:            in.Mustered,
		Remark:              strings.TrimSpace(in.Remark),
		Status:              in.Status,
		LastMaintenanceDate: in.LastMaintenanceDate,
		NextMaintenanceDate: in.NextMaintenanceDate,
		CreatedAt:           at,
		LastUpdated:         at,
	}
	details := part.Details()
	if err := validateDetails(&details); err != nil {
		return "", err
	}
	part.MinOrderLevel = details.MinOrderLevel
	part.MinOrderQuantity = details.MinOrderQuantity

	if in.Barcode != "" {
		if part.Barcode, err = barcode.Validate(in.Barcode); err != nil {
			return "", err
		}
	}

	generated := part.Barcode == ""
	for attempt := 1; ; attempt++ {
		err = s.addOnce(ctx, &part, generated)
		var dup *domain.DuplicateError
		if err == nil || !generated || attempt >= barcodeAttempts ||
			!errors.As(err, &dup) || dup.Kind != domain.DuplicateBarcode {
			break
		}
		s.logger.Warn("generated barcode taken by a concurrent add, retrying",
			zap.String("barcode", dup.Value),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("part added",
		zap.String("part_id", part.ID),
		zap.String("part_number", part.PartNumber),
		zap.String("barcode", part.Barcode),
		zap.String("quantity", part.Quantity.String()),
	)
	return part.ID, nil
}

// addOnce inserts part in one unit, drawing the next department code first
// when generate is set.
func (s *PartService) addOnce(ctx context.Context, part *domain.Part, generate bool) error {
	return s.store.WithinTx(ctx, func(r port.Repositories) error {
		if _, err := resolvePath(ctx, r.Departments, part.DepartmentID); err != nil {
			return err
		}

		if generate {
			code, err := nextBarcode(ctx, r, part.DepartmentID)
			if err != nil {
				return err
			}
			part.Barcode = code
		}

		taken, err := r.Parts.PartNumberExists(ctx, part.PartNumber, part.DepartmentID)
		if err != nil {
			return err
		}
		if taken {
			return &domain.DuplicateError{Kind: domain.DuplicatePartNumber, Value: part.PartNumber}
		}

		taken, err = r.Parts.BarcodeExists(ctx, part.Barcode)
		if err != nil {
			return err
		}
		if taken {
			return &domain.DuplicateError{Kind: domain.DuplicateBarcode, Value: part.Barcode}
		}

		return r.Parts.CreatePart(ctx, *part)
	})
}

func (s *PartService) Update(ctx context.Context, id string, upd PartUpdate) error {
	upd.Name = strings.TrimSpace(upd.Name)
	upd.CompartmentNo = strings.TrimSpace(upd.CompartmentNo)
	upd.BoxNo = strings.TrimSpace(upd.BoxNo)

	var missing []string
	if upd.Name == "" {
		missing = append(missing, "name")
	}
	if upd.BoxNo == "" {
		missing = append(missing, "box_no")
	}
	if upd.CompartmentNo == "" {
		missing = append(missing, "compartment_no")
	}
	if len(missing) > 0 {
		return domain.MissingFieldsError(missing)
	}
	if upd.Status == "" {
		upd.Status = domain.PartStatusInStore
	}
	if err := validateDetails(&upd); err != nil {
		return err
	}

	err := s.store.WithinTx(ctx, func(r port.Repositories) error {
		part, err := r.Parts.GetPart(ctx, id)
		if err != nil {
			return err
		}
		if part == nil {
			return &domain.NotFoundError{Entity: "part", ID: id}
		}
		return r.Parts.UpdatePartDetails(ctx, id, upd, now())
	})
	if err != nil {
		return err
	}

	s.logger.Info("part updated", zap.String("part_id", id))
	return nil
}

func (s *PartService) Get(ctx context.Context, id string) (*domain.Part, error) {
	part, err := s.store.Repos().Parts.GetPart(ctx, id)
	if err != nil {
		return nil, err
	}
	if part == nil {
		return nil, &domain.NotFoundError{Entity: "part", ID: id}
	}
	return part, nil
}

// GetByBarcode serves scanner lookups; the raw scan is cleaned first.
func (s *PartService) GetByBarcode(ctx context.Context, raw string) (*domain.Part, error) {
	code, err := barcode.Validate(raw)
	if err != nil {
		return nil, err
	}
	part, err := s.store.Repos().Parts.GetPartByBarcode(ctx, code)
	if err != nil {
		return nil, err
	}
	if part == nil {
		return nil, &domain.NotFoundError{Entity: "part", ID: code}
	}
	return part, nil
}

func (s *PartService) ListByDepartment(ctx context.Context, departmentID string) ([]domain.PartView, error) {
	return s.store.Repos().Parts.ListPartsByDepartment(ctx, departmentID)
}

// LowStock lists parts at or below their reorder level but above the last
// piece. An empty departmentID covers every department.
func (s *PartService) LowStock(ctx context.Context, departmentID string) ([]domain.PartView, error) {
	return s.store.Repos().Parts.ListLowStock(ctx, departmentID)
}

func (s *PartService) LastPiece(ctx context.Context, departmentID string) ([]domain.PartView, error) {
	return s.store.Repos().Parts.ListLastPiece(ctx, departmentID)
}

// Delete removes a part. With history present it fails unless cascade is
// set, in which case the transactions go first, in the same unit.
func (s *PartService) Delete(ctx context.Context, id string, cascade bool) error {
	var removed int64
	err := s.store.WithinTx(ctx, func(r port.Repositories) error {
		part, err := r.Parts.GetPart(ctx, id)
		if err != nil {
			return err
		}
		if part == nil {
			return &domain.NotFoundError{Entity: "part", ID: id}
		}

		n, err := r.Transactions.CountByPart(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 && !cascade {
			return &domain.ReferentialError{Entity: "part", ID: id, Dependents: "transactions", Count: n}
		}

		if removed, err = r.Transactions.DeleteByPart(ctx, id); err != nil {
			return err
		}
		return r.Parts.DeletePart(ctx, id)
	})
	if err != nil {
		if errors.Is(err, domain.ErrReferential) {
			s.logger.Debug("part delete blocked", zap.String("part_id", id), zap.Error(err))
		}
		return err
	}

	s.logger.Info("part deleted", zap.String("part_id", id), zap.Int64("transactions_removed", removed))
	return nil
}
