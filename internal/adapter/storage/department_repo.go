package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rl1809/shipstore/internal/core/domain"
)

type departmentRepo struct {
	q queryer
	d *dialect
}

const departmentColumns = `id, code, name, parent_id, created_at`

func scanDepartment(row interface{ Scan(...any) error }) (domain.Department, error) {
	var (
		dept   domain.Department
		parent sql.NullString
	)
	if err := row.Scan(&dept.ID, &dept.Code, &dept.Name, &parent, &dept.CreatedAt); err != nil {
		return dept, err
	}
	if parent.Valid {
		dept.ParentID = &parent.String
	}
	return dept, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (r *departmentRepo) CreateDepartment(ctx context.Context, dept domain.Department) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO departments (id, code, name, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		dept.ID, dept.Code, dept.Name, nullString(dept.ParentID), dept.CreatedAt,
	)
	if err != nil && r.d.isUnique(err) {
		return &domain.DuplicateError{Kind: domain.DuplicateDepartmentCode, Value: dept.Code}
	}
	return r.d.wrap("insert department", err)
}

func (r *departmentRepo) getOne(ctx context.Context, where string, arg any) (*domain.Department, error) {
	dept, err := scanDepartment(r.q.QueryRowContext(ctx,
		`SELECT `+departmentColumns+` FROM departments WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.d.wrap("query department", err)
	}
	return &dept, nil
}

func (r *departmentRepo) GetDepartment(ctx context.Context, id string) (*domain.Department, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *departmentRepo) GetDepartmentByCode(ctx context.Context, code string) (*domain.Department, error) {
	return r.getOne(ctx, "code = ?", code)
}

func (r *departmentRepo) list(ctx context.Context, query string, args ...any) ([]domain.Department, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.d.wrap("query departments", err)
	}
	defer rows.Close()

	var depts []domain.Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, r.d.wrap("scan department", err)
		}
		depts = append(depts, dept)
	}
	return depts, r.d.wrap("iterate departments", rows.Err())
}

func (r *departmentRepo) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	return r.list(ctx, `
		SELECT `+departmentColumns+` FROM departments
		ORDER BY COALESCE(parent_id, id), parent_id IS NOT NULL, name`)
}

func (r *departmentRepo) ListChildren(ctx context.Context, parentID string) ([]domain.Department, error) {
	if parentID == "" {
		return r.list(ctx, `SELECT `+departmentColumns+` FROM departments WHERE parent_id IS NULL ORDER BY name`)
	}
	return r.list(ctx, `SELECT `+departmentColumns+` FROM departments WHERE parent_id = ? ORDER BY name`, parentID)
}

func (r *departmentRepo) UpdateDepartment(ctx context.Context, dept domain.Department) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE departments SET code = ?, name = ?, parent_id = ?
		WHERE id = ?`,
		dept.Code, dept.Name, nullString(dept.ParentID), dept.ID,
	)
	if err != nil {
		if r.d.isUnique(err) {
			return &domain.DuplicateError{Kind: domain.DuplicateDepartmentCode, Value: dept.Code}
		}
		return r.d.wrap("update department", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: "department", ID: dept.ID}
	}
	return nil
}

func (r *departmentRepo) DeleteDepartment(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM departments WHERE id = ?`, id)
	return r.d.wrap("delete department", err)
}

func (r *departmentRepo) count(ctx context.Context, query string, arg any) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, query, arg).Scan(&n); err != nil {
		return 0, r.d.wrap("count", err)
	}
	return n, nil
}

func (r *departmentRepo) CountChildren(ctx context.Context, id string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM departments WHERE parent_id = ?`, id)
}

func (r *departmentRepo) CountParts(ctx context.Context, departmentID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM spare_parts WHERE department_id = ?`, departmentID)
}
