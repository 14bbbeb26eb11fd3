package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// QuantityPlaces is the number of decimal places kept for every quantity.
const QuantityPlaces = 3

// QuantityIntegerDigits bounds the integer part of a quantity: every
// quantity is strictly below 10^15, which keeps DECIMAL(18,3) and a scaled
// int64 exact.
const QuantityIntegerDigits = 15

// maxQuantityScale bounds the exponent of accepted input so rounding never
// expands a huge coefficient.
const maxQuantityScale = 32

type PartStatus string

const (
	PartStatusInStore          PartStatus = "In Store"
	PartStatusOperational      PartStatus = "Operational"
	PartStatusUnderMaintenance PartStatus = "Under Maintenance"
)

func (s PartStatus) Valid() bool {
	switch s {
	case PartStatusInStore, PartStatusOperational, PartStatusUnderMaintenance:
		return true
	}
	return false
}

type Part struct {
	ID                  string
	PartNumber          string
	Name                string
	Description         string
	Quantity            decimal.Decimal
	InitialQuantity     decimal.Decimal
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
	Status              PartStatus
	LastMaintenanceDate *time.Time
	NextMaintenanceDate *time.Time
	Version             int // optimistic locking
	CreatedAt           time.Time
	LastUpdated         time.Time
}

// Apply returns the quantity that results from moving qty units in the given
// direction. A check-out larger than the stock on hand is rejected.
func (p Part) Apply(t TransactionType, qty decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case TransactionCheckIn:
		next := p.Quantity.Add(qty)
		if !QuantityInRange(next) {
			return p.Quantity, &ValidationError{Field: "quantity", Reason: "resulting stock exceeds the largest storable quantity"}
		}
		return next, nil
	case TransactionCheckOut:
		if qty.GreaterThan(p.Quantity) {
			return p.Quantity, &InsufficientStockError{Available: p.Quantity, Requested: qty}
		}
		return p.Quantity.Sub(qty), nil
	}
	return p.Quantity, &ValidationError{Field: "transaction_type", Reason: "must be check_in or check_out"}
}

// IsLowStock matches the dashboard's low stock tier; the last piece is
// reported separately.
func (p Part) IsLowStock() bool {
	return p.Quantity.LessThanOrEqual(p.MinOrderLevel) && p.Quantity.GreaterThan(decimal.NewFromInt(1))
}

func (p Part) IsLastPiece() bool {
	return p.Quantity.Equal(decimal.NewFromInt(1))
}

// PartDetails holds every field that may change after a part is created.
// Quantity is deliberately absent: stock moves only through the ledger.
type PartDetails struct {
	Name                string
	Description         string
	MinOrderLevel       decimal.Decimal
	MinOrderQuantity    decimal.Decimal
	CompartmentNo       string
	BoxNo               string
	IlmsCode            string
	ItemDenomination    string
	Mustered            bool
	Remark              string
	Status              PartStatus
	LastMaintenanceDate *time.Time
	NextMaintenanceDate *time.Time
}

// Details extracts the mutable projection of the part.
func (p Part) Details() PartDetails {
	return PartDetails{
		Name:                p.Name,
		Description:         p.Description,
		MinOrderLevel:       p.MinOrderLevel,
		MinOrderQuantity:    p.MinOrderQuantity,
		CompartmentNo:       p.CompartmentNo,
		BoxNo:               p.BoxNo,
		IlmsCode:            p.IlmsCode,
		ItemDenomination:    p.ItemDenomination,
		Mustered:            p.Mustered,
		Remark:              p.Remark,
		Status:              p.Status,
		LastMaintenanceDate: p.LastMaintenanceDate,
		NextMaintenanceDate: p.NextMaintenanceDate,
	}
}

// PartView is a part joined with the names of its department path.
type PartView struct {
	Part
	ParentDepartment string
	ChildDepartment  string
}

// QuantityInRange reports whether |q| < 10^15 with an exponent small enough
// to round cheaply. It inspects the coefficient without rescaling it.
func QuantityInRange(q decimal.Decimal) bool {
	exp := int(q.Exponent())
	if exp < -maxQuantityScale || exp > QuantityIntegerDigits {
		return false
	}
	if q.IsZero() {
		return true
	}
	digits := len(new(big.Int).Abs(q.Coefficient()).String())
	return digits+exp <= QuantityIntegerDigits
}

// CheckQuantity rounds q to the store precision after rejecting values
// outside the storable range.
func CheckQuantity(field string, q decimal.Decimal) (decimal.Decimal, error) {
	if !QuantityInRange(q) {
		return q, &ValidationError{Field: field, Reason: fmt.Sprintf("must be below 1e%d with at most %d decimal places", QuantityIntegerDigits, maxQuantityScale)}
	}
	return NormalizeQuantity(q), nil
}

// NormalizeQuantity rounds q to the precision kept by the store.
func NormalizeQuantity(q decimal.Decimal) decimal.Decimal {
	return q.Round(QuantityPlaces)
}
