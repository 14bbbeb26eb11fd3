package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrDuplicate         = errors.New("duplicate")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotFound          = errors.New("not found")
	ErrReferential       = errors.New("referenced by dependents")
	ErrStorageBusy       = errors.New("storage busy")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrOptimisticLock    = errors.New("optimistic lock conflict")
)

// ValidationError rejects malformed or missing input for one unit of work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type DuplicateKind string

const (
	DuplicatePartNumber     DuplicateKind = "part_number"
	DuplicateBarcode        DuplicateKind = "barcode"
	DuplicateDepartmentCode DuplicateKind = "code"
)

type DuplicateError struct {
	Kind  DuplicateKind
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Value)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

type InsufficientStockError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock. Available: %s, Requested: %s",
		e.Available.StringFixed(QuantityPlaces), e.Requested.StringFixed(QuantityPlaces))
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ReferentialError blocks a deletion while dependents still exist.
type ReferentialError struct {
	Entity     string
	ID         string
	Dependents string
	Count      int
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("cannot delete %s %q: %d %s reference it", e.Entity, e.ID, e.Count, e.Dependents)
}

func (e *ReferentialError) Is(target error) bool { return target == ErrReferential }

// StorageBusyError is transient; callers may retry.
type StorageBusyError struct {
	Op  string
	Err error
}

func (e *StorageBusyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: storage busy", e.Op)
	}
	return fmt.Sprintf("%s: storage busy: %v", e.Op, e.Err)
}

func (e *StorageBusyError) Is(target error) bool { return target == ErrStorageBusy }

func (e *StorageBusyError) Unwrap() error { return e.Err }

// MissingFieldsError builds the validation error for a set of blank
// required fields, naming all of them.
func MissingFieldsError(fields []string) *ValidationError {
	return &ValidationError{Reason: "missing required field(s): " + strings.Join(fields, ", ")}
}
