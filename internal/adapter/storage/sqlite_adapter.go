package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const defaultSQLitePath = "shipstore.db"

type SQLiteOptions struct {
	Path         string
	LockTimeout  time.Duration
	MaxOpenConns int
}

func (o SQLiteOptions) dsn() string {
	timeout := o.LockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// Write transactions take the database lock up front so that a stock
	// check and its balance update never interleave with another writer.
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate&_time_format=sqlite",
		o.Path, timeout.Milliseconds())
}

// OpenSQLite opens (creating if needed) an embedded database file.
func OpenSQLite(ctx context.Context, opts SQLiteOptions) (*SQLStore, error) {
	if opts.Path == "" {
		opts.Path = defaultSQLitePath
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	db, err := sql.Open("sqlite", opts.dsn())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := newSQLStore(db, sqliteDialect())
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

func sqliteDialect() *dialect {
	return &dialect{
		name:   "sqlite",
		schema: sqliteSchema,
		scaled: true,
		isBusy: func(err error) bool {
			code, ok := sqliteCode(err)
			if !ok {
				return false
			}
			primary := code & 0xff
			return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
		},
		isUnique: func(err error) bool {
			code, ok := sqliteCode(err)
			if !ok {
				return false
			}
			return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE")
		},
	}
}

// Quantities are integer thousandths; SQLite has no exact decimal type.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id TEXT NOT NULL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		parent_id TEXT NULL REFERENCES departments (id),
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS spare_parts (
		id TEXT NOT NULL PRIMARY KEY,
		part_number TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		initial_quantity INTEGER NOT NULL,
		min_order_level INTEGER NOT NULL DEFAULT 0,
		min_order_quantity INTEGER NOT NULL DEFAULT 0,
		barcode TEXT NOT NULL UNIQUE,
		department_id TEXT NOT NULL REFERENCES departments (id),
		compartment_no TEXT NOT NULL,
		box_no TEXT NOT NULL,
		line_no INTEGER NOT NULL DEFAULT 0,
		page_no TEXT NOT NULL DEFAULT '',
		order_no TEXT NOT NULL DEFAULT '',
		material_code TEXT NOT NULL DEFAULT '',
		ilms_code TEXT NOT NULL DEFAULT '',
		item_denomination TEXT NOT NULL DEFAULT '',
		mustered INTEGER NOT NULL DEFAULT 0,
		remark TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		last_maintenance_date DATE NULL,
		next_maintenance_date DATE NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_updated DATETIME NOT NULL,
		UNIQUE (part_number, department_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT NOT NULL PRIMARY KEY,
		part_id TEXT NOT NULL REFERENCES spare_parts (id),
		transaction_type TEXT NOT NULL CHECK (transaction_type IN ('check_in', 'check_out')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		timestamp DATETIME NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		performed_by TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_part ON transactions (part_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_spare_parts_department ON spare_parts (department_id)`,
}
