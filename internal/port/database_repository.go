package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shipstore/internal/core/domain"
)

// Lookups that find nothing return (nil, nil).

type DepartmentRepository interface {
	CreateDepartment(ctx context.Context, dept domain.Department) error

	GetDepartment(ctx context.Context, id string) (*domain.Department, error)

	GetDepartmentByCode(ctx context.Context, code string) (*domain.Department, error)

	// ListDepartments returns parents first, each followed by its children
	ListDepartments(ctx context.Context) ([]domain.Department, error)

	// ListChildren returns the children of parentID, or the top-level
	// departments when parentID is empty
	ListChildren(ctx context.Context, parentID string) ([]domain.Department, error)

	UpdateDepartment(ctx context.Context, dept domain.Department) error

	DeleteDepartment(ctx context.Context, id string) error

	CountChildren(ctx context.Context, id string) (int, error)

	CountParts(ctx context.Context, departmentID string) (int, error)
}

type PartRepository interface {
	// CreatePart inserts a part; a storage uniqueness failure is reported as *domain.DuplicateError
	CreatePart(ctx context.Context, part domain.Part) error

	GetPart(ctx context.Context, id string) (*domain.Part, error)

	// GetPartForUpdate reads a part and locks its row until the enclosing transaction ends
	GetPartForUpdate(ctx context.Context, id string) (*domain.Part, error)

	GetPartByBarcode(ctx context.Context, barcode string) (*domain.Part, error)

	PartNumberExists(ctx context.Context, partNumber, departmentID string) (bool, error)

	BarcodeExists(ctx context.Context, barcode string) (bool, error)

	ListBarcodes(ctx context.Context) ([]string, error)

	ListBarcodesWithPrefix(ctx context.Context, prefix string) ([]string, error)

	ListPartsByDepartment(ctx context.Context, departmentID string) ([]domain.PartView, error)

	// ListLowStock returns parts with 1 < quantity <= min_order_level; an empty departmentID means all departments
	ListLowStock(ctx context.Context, departmentID string) ([]domain.PartView, error)

	// ListLastPiece returns parts with exactly one unit left
	ListLastPiece(ctx context.Context, departmentID string) ([]domain.PartView, error)

	UpdatePartDetails(ctx context.Context, id string, details domain.PartDetails, at time.Time) error

	// SetQuantity writes a new quantity with a version check for optimistic locking
	SetQuantity(ctx context.Context, id string, quantity decimal.Decimal, version int, at time.Time) error

	DeletePart(ctx context.Context, id string) error
}

type TransactionRepository interface {
	AppendTransaction(ctx context.Context, txn domain.Transaction) error

	ListByPart(ctx context.Context, partID string) ([]domain.Transaction, error)

	CountByPart(ctx context.Context, partID string) (int, error)

	DeleteByPart(ctx context.Context, partID string) (int64, error)

	// History returns movements at or after since, newest first; an empty departmentID means all departments
	History(ctx context.Context, since time.Time, departmentID string) ([]domain.TransactionView, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Departments  DepartmentRepository
	Parts        PartRepository
	Transactions TransactionRepository
}

type Store interface {
	// Repos returns repositories running outside any transaction
	Repos() Repositories

	// WithinTx runs fn in a single atomic unit, committing only when fn returns nil
	WithinTx(ctx context.Context, fn func(r Repositories) error) error
}
