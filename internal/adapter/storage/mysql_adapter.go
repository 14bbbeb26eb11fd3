package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrDupEntry        = 1062
	mysqlErrOutOfRange      = 1264
)

type MySQLOptions struct {
	// DSN, when set, is used as is apart from forcing parseTime
	DSN             string
	Addr            string
	User            string
	Password        string
	DBName          string
	LockTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (o MySQLOptions) config() (*mysql.Config, error) {
	var cfg *mysql.Config
	if o.DSN != "" {
		parsed, err := mysql.ParseDSN(o.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = o.Addr
		cfg.User = o.User
		cfg.Passwd = o.Password
		cfg.DBName = o.DBName
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// report matched rows so unchanged updates are not mistaken for misses
	cfg.ClientFoundRows = true

	if o.LockTimeout > 0 {
		secs := int(o.LockTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params["innodb_lock_wait_timeout"] = strconv.Itoa(secs)
	}
	return cfg, nil
}

// OpenMySQL connects to MySQL and prepares the schema.
func OpenMySQL(ctx context.Context, opts MySQLOptions) (*SQLStore, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	store := newSQLStore(db, mysqlDialect())
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func mysqlDialect() *dialect {
	return &dialect{
		name:      "mysql",
		schema:    mysqlSchema,
		forUpdate: " FOR UPDATE",
		isBusy: func(err error) bool {
			var me *mysql.MySQLError
			if errors.As(err, &me) {
				return me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlock
			}
			return false
		},
		isUnique: func(err error) bool {
			var me *mysql.MySQLError
			return errors.As(err, &me) && me.Number == mysqlErrDupEntry
		},
		isRange: func(err error) bool {
			var me *mysql.MySQLError
			return errors.As(err, &me) && me.Number == mysqlErrOutOfRange
		},
	}
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		code VARCHAR(20) NOT NULL,
		name VARCHAR(100) NOT NULL,
		parent_id VARCHAR(36) NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_departments_code (code),
		CONSTRAINT fk_departments_parent FOREIGN KEY (parent_id) REFERENCES departments (id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS spare_parts (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		part_number VARCHAR(50) NOT NULL,
		name VARCHAR(200) NOT NULL,
		description TEXT NOT NULL,
		quantity DECIMAL(18,3) NOT NULL,
		initial_quantity DECIMAL(18,3) NOT NULL,
		min_order_level DECIMAL(18,3) NOT NULL DEFAULT 0,
		min_order_quantity DECIMAL(18,3) NOT NULL DEFAULT 0,
		barcode VARCHAR(20) NOT NULL,
		department_id VARCHAR(36) NOT NULL,
		compartment_no VARCHAR(50) NOT NULL,
		box_no VARCHAR(50) NOT NULL,
		line_no INT NOT NULL DEFAULT 0,
		page_no VARCHAR(50) NOT NULL DEFAULT '',
		order_no VARCHAR(50) NOT NULL DEFAULT '',
		material_code VARCHAR(100) NOT NULL DEFAULT '',
		ilms_code VARCHAR(100) NOT NULL DEFAULT '',
		item_denomination VARCHAR(100) NOT NULL DEFAULT '',
		mustered BOOLEAN NOT NULL DEFAULT FALSE,
		remark TEXT NOT NULL,
		status VARCHAR(20) NOT NULL,
		last_maintenance_date DATE NULL,
		next_maintenance_date DATE NULL,
		version INT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		last_updated DATETIME(6) NOT NULL,
		UNIQUE KEY uq_spare_parts_barcode (barcode),
		UNIQUE KEY uq_spare_parts_part_department (part_number, department_id),
		CONSTRAINT fk_spare_parts_department FOREIGN KEY (department_id) REFERENCES departments (id),
		CONSTRAINT chk_spare_parts_quantity CHECK (quantity >= 0)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		part_id VARCHAR(36) NOT NULL,
		transaction_type VARCHAR(10) NOT NULL,
		quantity DECIMAL(18,3) NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		reason VARCHAR(100) NOT NULL DEFAULT '',
		remarks TEXT NOT NULL,
		performed_by VARCHAR(100) NOT NULL DEFAULT '',
		KEY idx_transactions_part (part_id),
		KEY idx_transactions_timestamp (timestamp),
		CONSTRAINT fk_transactions_part FOREIGN KEY (part_id) REFERENCES spare_parts (id),
		CONSTRAINT chk_transactions_type CHECK (transaction_type IN ('check_in', 'check_out')),
		CONSTRAINT chk_transactions_quantity CHECK (quantity > 0)
	) ENGINE=InnoDB`,
}
