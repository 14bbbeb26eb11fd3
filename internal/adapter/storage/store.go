package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/port"
)

var _ port.Store = (*SQLStore)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect captures what differs between the supported SQL engines.
type dialect struct {
	name      string
	schema    []string
	forUpdate string
	isBusy    func(error) bool
	isUnique  func(error) bool
	// isRange reports a value the column type cannot hold; nil when the
	// engine never raises one
	isRange func(error) bool
	// scaled stores quantities as integer thousandths
	scaled bool
}

// wrap annotates err with op and turns lock timeouts into StorageBusyError.
func (d *dialect) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if d.isBusy(err) {
		return &domain.StorageBusyError{Op: op, Err: err}
	}
	if d.isRange != nil && d.isRange(err) {
		return &domain.ValidationError{Field: "quantity", Reason: op + ": value out of range"}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// quantity converts q to the column value of the dialect.
func (d *dialect) quantity(q decimal.Decimal) any {
	if d.scaled {
		return q.Shift(domain.QuantityPlaces).IntPart()
	}
	return q
}

// scanQuantity returns a scan destination that reads a quantity column
// into dst.
func (d *dialect) scanQuantity(dst *decimal.Decimal) sql.Scanner {
	return quantityScanner{dst: dst, scaled: d.scaled}
}

type quantityScanner struct {
	dst    *decimal.Decimal
	scaled bool
}

func (s quantityScanner) Scan(value any) error {
	if n, ok := value.(int64); ok && s.scaled {
		*s.dst = decimal.New(n, -domain.QuantityPlaces)
		return nil
	}
	return s.dst.Scan(value)
}

// SQLStore implements port.Store over database/sql.
type SQLStore struct {
	db *sql.DB
	d  *dialect
}

func newSQLStore(db *sql.DB, d *dialect) *SQLStore {
	return &SQLStore{db: db, d: d}
}

// Migrate creates the tables when they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Repos() port.Repositories {
	return s.bind(s.db)
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(r port.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.d.wrap("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(s.bind(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return s.d.wrap("commit tx", err)
	}
	return nil
}

func (s *SQLStore) bind(q queryer) port.Repositories {
	return port.Repositories{
		Departments:  &departmentRepo{q: q, d: s.d},
		Parts:        &partRepo{q: q, d: s.d},
		Transactions: &transactionRepo{q: q, d: s.d},
	}
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect names the SQL engine behind the store.
func (s *SQLStore) Dialect() string { return s.d.name }

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
