package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shipstore/internal/core/domain"
)

type partRepo struct {
	q queryer
	d *dialect
}

const partColumns = `p.id, p.part_number, p.name, p.description, p.quantity, p.initial_quantity,
	p.min_order_level, p.min_order_quantity, p.barcode, p.department_id, p.compartment_no, p.box_no,
	p.line_no, p.page_no, p.order_no, p.material_code, p.ilms_code, p.item_denomination, p.mustered,
	p.remark, p.status, p.last_maintenance_date, p.next_maintenance_date, p.version, p.created_at, p.last_updated`

const partViewFrom = `
	FROM spare_parts p
	LEFT JOIN departments c ON c.id = p.department_id
	LEFT JOIN departments pd ON pd.id = c.parent_id`

func scanPart(d *dialect, row interface{ Scan(...any) error }, extra ...any) (domain.Part, error) {
	var (
		p                  domain.Part
		status             string
		lastMaint, nextMnt sql.NullTime
	)
	dest := []any{
		&p.ID, &p.PartNumber, &p.Name, &p.Description, d.scanQuantity(&p.Quantity), d.scanQuantity(&p.InitialQuantity),
		d.scanQuantity(&p.MinOrderLevel), d.scanQuantity(&p.MinOrderQuantity), &p.Barcode, &p.DepartmentID, &p.CompartmentNo, &p.BoxNo,
		&p.LineNo, &p.PageNo, &p.OrderNo, &p.MaterialCode, &p.IlmsCode, &p.ItemDenomination, &p.Mustered,
		&p.Remark, &status, &lastMaint, &nextMnt, &p.Version, &p.CreatedAt, &p.LastUpdated,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return p, err
	}
	p.Status = domain.PartStatus(status)
	p.LastMaintenanceDate = timePtr(lastMaint)
	p.NextMaintenanceDate = timePtr(nextMnt)
	return p, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// violatedConstraint extracts the key or column list a driver names in a
// uniqueness failure. MySQL reports "... for key 'table.key'", SQLite
// "UNIQUE constraint failed: table.col[, table.col] (code)". The name
// always follows the offending values, so the last marker wins.
func violatedConstraint(msg string) string {
	if i := strings.LastIndex(msg, "for key '"); i >= 0 {
		return strings.TrimSuffix(msg[i+len("for key '"):], "'")
	}
	if i := strings.LastIndex(msg, "constraint failed: "); i >= 0 {
		name := msg[i+len("constraint failed: "):]
		if j := strings.Index(name, " ("); j >= 0 {
			name = name[:j]
		}
		return name
	}
	return ""
}

// duplicateFromConstraint attributes a storage uniqueness failure to the
// barcode key or, failing that, the part number key.
func duplicateFromConstraint(err error, p domain.Part) *domain.DuplicateError {
	switch name := violatedConstraint(err.Error()); {
	case name == "spare_parts.barcode", strings.HasSuffix(name, "uq_spare_parts_barcode"):
		return &domain.DuplicateError{Kind: domain.DuplicateBarcode, Value: p.Barcode}
	}
	return &domain.DuplicateError{Kind: domain.DuplicatePartNumber, Value: p.PartNumber}
}

func (r *partRepo) CreatePart(ctx context.Context, p domain.Part) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO spare_parts (id, part_number, name, description, quantity, initial_quantity,
			min_order_level, min_order_quantity, barcode, department_id, compartment_no, box_no,
			line_no, page_no, order_no, material_code, ilms_code, item_denomination, mustered,
			remark, status, last_maintenance_date, next_maintenance_date, version, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PartNumber, p.Name, p.Description, r.d.quantity(p.Quantity), r.d.quantity(p.InitialQuantity),
		r.d.quantity(p.MinOrderLevel), r.d.quantity(p.MinOrderQuantity), p.Barcode, p.DepartmentID, p.CompartmentNo, p.BoxNo,
		p.LineNo, p.PageNo, p.OrderNo, p.MaterialCode, p.IlmsCode, p.ItemDenomination, p.Mustered,
		p.Remark, string(p.Status), nullTime(p.LastMaintenanceDate), nullTime(p.NextMaintenanceDate),
		p.Version, p.CreatedAt, p.LastUpdated,
	)
	if err != nil && r.d.isUnique(err) {
		return duplicateFromConstraint(err, p)
	}
	return r.d.wrap("insert part", err)
}

func (r *partRepo) getOne(ctx context.Context, op, where string, arg any) (*domain.Part, error) {
	p, err := scanPart(r.d, r.q.QueryRowContext(ctx, `SELECT `+partColumns+` FROM spare_parts p WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.d.wrap(op, err)
	}
	return &p, nil
}

func (r *partRepo) GetPart(ctx context.Context, id string) (*domain.Part, error) {
	return r.getOne(ctx, "query part", "p.id = ?", id)
}

func (r *partRepo) GetPartForUpdate(ctx context.Context, id string) (*domain.Part, error) {
	return r.getOne(ctx, "lock part", "p.id = ?"+r.d.forUpdate, id)
}

func (r *partRepo) GetPartByBarcode(ctx context.Context, barcode string) (*domain.Part, error) {
	return r.getOne(ctx, "query part by barcode", "p.barcode = ?", barcode)
}

func (r *partRepo) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, r.d.wrap("check part", err)
	}
	return n > 0, nil
}

func (r *partRepo) PartNumberExists(ctx context.Context, partNumber, departmentID string) (bool, error) {
	return r.exists(ctx, `SELECT COUNT(*) FROM spare_parts WHERE part_number = ? AND department_id = ?`,
		partNumber, departmentID)
}

func (r *partRepo) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	return r.exists(ctx, `SELECT COUNT(*) FROM spare_parts WHERE barcode = ?`, barcode)
}

func (r *partRepo) barcodes(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.d.wrap("query barcodes", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, r.d.wrap("scan barcode", err)
		}
		codes = append(codes, code)
	}
	return codes, r.d.wrap("iterate barcodes", rows.Err())
}

func (r *partRepo) ListBarcodes(ctx context.Context) ([]string, error) {
	return r.barcodes(ctx, `SELECT barcode FROM spare_parts`)
}

func (r *partRepo) ListBarcodesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return r.barcodes(ctx, `SELECT barcode FROM spare_parts WHERE barcode LIKE ?`, prefix+"%")
}

func (r *partRepo) views(ctx context.Context, where string, args ...any) ([]domain.PartView, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+partColumns+`, COALESCE(pd.name, ''), COALESCE(c.name, '')`+partViewFrom+`
		WHERE `+where+`
		ORDER BY p.name, p.part_number`, args...)
	if err != nil {
		return nil, r.d.wrap("query parts", err)
	}
	defer rows.Close()

	var parts []domain.PartView
	for rows.Next() {
		var v domain.PartView
		v.Part, err = scanPart(r.d, rows, &v.ParentDepartment, &v.ChildDepartment)
		if err != nil {
			return nil, r.d.wrap("scan part", err)
		}
		parts = append(parts, v)
	}
	return parts, r.d.wrap("iterate parts", rows.Err())
}

func departmentFilter(where, departmentID string) (string, []any) {
	if departmentID == "" {
		return where, nil
	}
	return where + " AND p.department_id = ?", []any{departmentID}
}

func (r *partRepo) ListPartsByDepartment(ctx context.Context, departmentID string) ([]domain.PartView, error) {
	return r.views(ctx, "p.department_id = ?", departmentID)
}

func (r *partRepo) ListLowStock(ctx context.Context, departmentID string) ([]domain.PartView, error) {
	where, args := departmentFilter("p.quantity <= p.min_order_level AND p.quantity > ?", departmentID)
	return r.views(ctx, where, append([]any{r.d.quantity(decimal.NewFromInt(1))}, args...)...)
}

func (r *partRepo) ListLastPiece(ctx context.Context, departmentID string) ([]domain.PartView, error) {
	where, args := departmentFilter("p.quantity = ?", departmentID)
	return r.views(ctx, where, append([]any{r.d.quantity(decimal.NewFromInt(1))}, args...)...)
}

func (r *partRepo) UpdatePartDetails(ctx context.Context, id string, d domain.PartDetails, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE spare_parts
		SET name = ?, description = ?, min_order_level = ?, min_order_quantity = ?,
			compartment_no = ?, box_no = ?, ilms_code = ?, item_denomination = ?, mustered = ?,
			remark = ?, status = ?, last_maintenance_date = ?, next_maintenance_date = ?,
			version = version + 1, last_updated = ?
		WHERE id = ?`,
		d.Name, d.Description, r.d.quantity(d.MinOrderLevel), r.d.quantity(d.MinOrderQuantity),
		d.CompartmentNo, d.BoxNo, d.IlmsCode, d.ItemDenomination, d.Mustered,
		d.Remark, string(d.Status), nullTime(d.LastMaintenanceDate), nullTime(d.NextMaintenanceDate),
		at, id,
	)
	if err != nil {
		return r.d.wrap("update part", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: "part", ID: id}
	}
	return nil
}

func (r *partRepo) SetQuantity(ctx context.Context, id string, quantity decimal.Decimal, version int, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE spare_parts
		SET quantity = ?, version = version + 1, last_updated = ?
		WHERE id = ? AND version = ?`,
		r.d.quantity(quantity), at, id, version,
	)
	if err != nil {
		return r.d.wrap("update quantity", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

func (r *partRepo) DeletePart(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM spare_parts WHERE id = ?`, id)
	if err != nil {
		return r.d.wrap("delete part", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: "part", ID: id}
	}
	return nil
}
