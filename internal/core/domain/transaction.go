package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCheckIn  TransactionType = "check_in"
	TransactionCheckOut TransactionType = "check_out"
)

func (t TransactionType) Valid() bool {
	return t == TransactionCheckIn || t == TransactionCheckOut
}

// Signed returns qty with the sign the movement applies to stock.
func (t TransactionType) Signed(qty decimal.Decimal) decimal.Decimal {
	if t == TransactionCheckOut {
		return qty.Neg()
	}
	return qty
}

// Transaction is an immutable stock movement.
type Transaction struct {
	ID          string
	PartID      string
	Type        TransactionType
	Quantity    decimal.Decimal
	Timestamp   time.Time
	Reason      string
	Remarks     string
	PerformedBy string
}

// TransactionView is a transaction joined with its part and department.
type TransactionView struct {
	Transaction
	PartNumber       string
	PartName         string
	DepartmentID     string
	ParentDepartment string
	ChildDepartment  string
}

// Reconciliation compares a part's stored quantity with its ledger.
type Reconciliation struct {
	PartID          string
	InitialQuantity decimal.Decimal
	CheckedIn       decimal.Decimal
	CheckedOut      decimal.Decimal
	Expected        decimal.Decimal
	Actual          decimal.Decimal
	Transactions    int
}

func (r Reconciliation) Balanced() bool {
	return r.Expected.Equal(r.Actual)
}
