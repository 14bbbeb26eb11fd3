package storage

import (
	"context"
	"time"

	"github.com/rl1809/shipstore/internal/core/domain"
)

type transactionRepo struct {
	q queryer
	d *dialect
}

const transactionColumns = `t.id, t.part_id, t.transaction_type, t.quantity, t.timestamp, t.reason, t.remarks, t.performed_by`

func scanTransaction(d *dialect, row interface{ Scan(...any) error }, extra ...any) (domain.Transaction, error) {
	var (
		txn domain.Transaction
		typ string
	)
	dest := []any{&txn.ID, &txn.PartID, &typ, d.scanQuantity(&txn.Quantity), &txn.Timestamp, &txn.Reason, &txn.Remarks, &txn.PerformedBy}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return txn, err
	}
	txn.Type = domain.TransactionType(typ)
	txn.Timestamp = txn.Timestamp.UTC()
	return txn, nil
}

func (r *transactionRepo) AppendTransaction(ctx context.Context, txn domain.Transaction) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (id, part_id, transaction_type, quantity, timestamp, reason, remarks, performed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.PartID, string(txn.Type), r.d.quantity(txn.Quantity), txn.Timestamp.UTC(), txn.Reason, txn.Remarks, txn.PerformedBy,
	)
	return r.d.wrap("insert transaction", err)
}

func (r *transactionRepo) ListByPart(ctx context.Context, partID string) ([]domain.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions t
		WHERE t.part_id = ?
		ORDER BY t.timestamp DESC, t.id`, partID)
	if err != nil {
		return nil, r.d.wrap("query transactions", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(r.d, rows)
		if err != nil {
			return nil, r.d.wrap("scan transaction", err)
		}
		txns = append(txns, txn)
	}
	return txns, r.d.wrap("iterate transactions", rows.Err())
}

func (r *transactionRepo) CountByPart(ctx context.Context, partID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE part_id = ?`, partID).Scan(&n)
	return n, r.d.wrap("count transactions", err)
}

func (r *transactionRepo) DeleteByPart(ctx context.Context, partID string) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE part_id = ?`, partID)
	if err != nil {
		return 0, r.d.wrap("delete transactions", err)
	}
	return result.RowsAffected()
}

func (r *transactionRepo) History(ctx context.Context, since time.Time, departmentID string) ([]domain.TransactionView, error) {
	query := `
		SELECT ` + transactionColumns + `, p.part_number, p.name, p.department_id,
			COALESCE(pd.name, ''), COALESCE(c.name, '')
		FROM transactions t
		JOIN spare_parts p ON p.id = t.part_id
		LEFT JOIN departments c ON c.id = p.department_id
		LEFT JOIN departments pd ON pd.id = c.parent_id
		WHERE t.timestamp >= ?`
	args := []any{since.UTC()}
	if departmentID != "" {
		query += ` AND p.department_id = ?`
		args = append(args, departmentID)
	}
	query += ` ORDER BY t.timestamp DESC, t.id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.d.wrap("query history", err)
	}
	defer rows.Close()

	var views []domain.TransactionView
	for rows.Next() {
		var v domain.TransactionView
		v.Transaction, err = scanTransaction(r.d, rows,
			&v.PartNumber, &v.PartName, &v.DepartmentID, &v.ParentDepartment, &v.ChildDepartment)
		if err != nil {
			return nil, r.d.wrap("scan history", err)
		}
		views = append(views, v)
	}
	return views, r.d.wrap("iterate history", rows.Err())
}
