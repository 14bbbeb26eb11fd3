package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/core/barcode"
	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/port"
)

type IdentityService struct {
	store  port.Store
	logger *zap.Logger
}

func NewIdentityService(store port.Store, logger *zap.Logger) *IdentityService {
	return &IdentityService{store: store, logger: logger}
}

func (s *IdentityService) Validate(raw string) (string, error) {
	return barcode.Validate(raw)
}

func (s *IdentityService) Generate(parentName, childName string, lastSerial int) string {
	return barcode.Generate(parentName, childName, lastSerial)
}

// IsUnique reports whether no part carries code yet. code must already be
// cleaned by Validate.
func (s *IdentityService) IsUnique(ctx context.Context, code string) (bool, error) {
	exists, err := s.store.Repos().Parts.BarcodeExists(ctx, code)
	if err != nil {
		return false, fmt.Errorf("check barcode: %w", err)
	}
	return !exists, nil
}

// NextBarcode proposes the code following the highest serial already used
// under the department's prefix.
func (s *IdentityService) NextBarcode(ctx context.Context, childDepartmentID string) (string, error) {
	return nextBarcode(ctx, s.store.Repos(), childDepartmentID)
}

func nextBarcode(ctx context.Context, r port.Repositories, childDepartmentID string) (string, error) {
	path, err := resolvePath(ctx, r.Departments, childDepartmentID)
	if err != nil {
		return "", err
	}
	prefix, err := barcodePrefix(path)
	if err != nil {
		return "", err
	}

	codes, err := r.Parts.ListBarcodesWithPrefix(ctx, prefix+"-")
	if err != nil {
		return "", fmt.Errorf("list barcodes: %w", err)
	}
	last := highestSerial(codes, prefix)
	if last >= barcode.MaxSerial {
		return "", &domain.ValidationError{Field: "barcode", Reason: fmt.Sprintf("no serials left under prefix %s", prefix)}
	}
	return barcode.Generate(path.Parent.Name, path.Child.Name, last), nil
}

func barcodePrefix(path *domain.DepartmentPath) (string, error) {
	prefix := barcode.Prefix(path.Parent.Name, path.Child.Name)
	if len(prefix) != 5 {
		return "", &domain.ValidationError{
			Field:  "department",
			Reason: fmt.Sprintf("cannot derive a barcode prefix from %q / %q", path.Parent.Name, path.Child.Name),
		}
	}
	return prefix, nil
}

func highestSerial(codes []string, prefix string) int {
	last := 0
	for _, code := range codes {
		if len(code) < len(prefix) || code[:len(prefix)] != prefix {
			continue
		}
		if n, ok := barcode.Serial(code); ok && n > last {
			last = n
		}
	}
	return last
}
