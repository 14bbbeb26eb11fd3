package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/core/barcode"
	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/port"
)

const maxDepartmentCodeLen = 10

type NewDepartment struct {
	Code string
	Name string
	// ParentID is empty for a top-level department
	ParentID string
}

type DepartmentUpdate = NewDepartment

type DepartmentService struct {
	store  port.Store
	logger *zap.Logger
}

func NewDepartmentService(store port.Store, logger *zap.Logger) *DepartmentService {
	return &DepartmentService{store: store, logger: logger}
}

func (in NewDepartment) normalize() (NewDepartment, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.ParentID = strings.TrimSpace(in.ParentID)

	var missing []string
	if in.Code == "" {
		missing = append(missing, "code")
	}
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return in, domain.MissingFieldsError(missing)
	}
	if len(in.Code) > maxDepartmentCodeLen {
		return in, &domain.ValidationError{Field: "code", Reason: fmt.Sprintf("must be at most %d characters", maxDepartmentCodeLen)}
	}

	// Part barcodes take three letters from a parent name and one from a child name.
	need := 3
	if in.ParentID != "" {
		need = 1
	}
	if len(barcode.Initials(in.Name, need)) < need {
		return in, &domain.ValidationError{Field: "name", Reason: fmt.Sprintf("must contain at least %d letters", need)}
	}
	return in, nil
}

// checkParent enforces the two level depth limit.
func checkParent(ctx context.Context, r port.DepartmentRepository, parentID, selfID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == selfID {
		return &domain.ValidationError{Field: "parent_id", Reason: "a department cannot be its own parent"}
	}
	parent, err := r.GetDepartment(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return &domain.NotFoundError{Entity: "department", ID: parentID}
	}
	if !parent.IsParent() {
		return &domain.ValidationError{Field: "parent_id", Reason: fmt.Sprintf("department %q is itself a child department", parent.Name)}
	}
	return nil
}

func (s *DepartmentService) Create(ctx context.Context, in NewDepartment) (*domain.Department, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	dept := domain.Department{
		ID:        newID(),
		Code:      in.Code,
		Name:      in.Name,
		CreatedAt: now(),
	}
	if in.ParentID != "" {
		dept.ParentID = &in.ParentID
	}

	err = s.store.WithinTx(ctx, func(r port.Repositories) error {
		if err := checkParent(ctx, r.Departments, in.ParentID, ""); err != nil {
			return err
		}
		existing, err := r.Departments.GetDepartmentByCode(ctx, in.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.DuplicateError{Kind: domain.DuplicateDepartmentCode, Value: in.Code}
		}
		return r.Departments.CreateDepartment(ctx, dept)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("department created",
		zap.String("department_id", dept.ID),
		zap.String("code", dept.Code),
		zap.Bool("parent", dept.IsParent()),
	)
	return &dept, nil
}

// Update renames or moves a department. A department keeps its level when
// it has children or parts: parents with children stay parents, children
// with parts stay children.
func (s *DepartmentService) Update(ctx context.Context, id string, in DepartmentUpdate) (*domain.Department, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	var dept domain.Department
	err = s.store.WithinTx(ctx, func(r port.Repositories) error {
		current, err := r.Departments.GetDepartment(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return &domain.NotFoundError{Entity: "department", ID: id}
		}
		if err := checkParent(ctx, r.Departments, in.ParentID, id); err != nil {
			return err
		}

		if in.ParentID != "" && current.IsParent() {
			children, err := r.Departments.CountChildren(ctx, id)
			if err != nil {
				return err
			}
			if children > 0 {
				return &domain.ValidationError{Field: "parent_id", Reason: "a department with children cannot become a child"}
			}
		}
		if in.ParentID == "" && !current.IsParent() {
			parts, err := r.Departments.CountParts(ctx, id)
			if err != nil {
				return err
			}
			if parts > 0 {
				return &domain.ValidationError{Field: "parent_id", Reason: "a department holding parts must stay a child"}
			}
		}

		if in.Code != current.Code {
			existing, err := r.Departments.GetDepartmentByCode(ctx, in.Code)
			if err != nil {
				return err
			}
			if existing != nil {
				return &domain.DuplicateError{Kind: domain.DuplicateDepartmentCode, Value: in.Code}
			}
		}

		dept = *current
		dept.Code = in.Code
		dept.Name = in.Name
		dept.ParentID = nil
		if in.ParentID != "" {
			parentID := in.ParentID
			dept.ParentID = &parentID
		}
		return r.Departments.UpdateDepartment(ctx, dept)
	})
	if err != nil {
		return nil, err
	}
	return &dept, nil
}

func (s *DepartmentService) Delete(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(r port.Repositories) error {
		dept, err := r.Departments.GetDepartment(ctx, id)
		if err != nil {
			return err
		}
		if dept == nil {
			return &domain.NotFoundError{Entity: "department", ID: id}
		}

		children, err := r.Departments.CountChildren(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return &domain.ReferentialError{Entity: "department", ID: id, Dependents: "child departments", Count: children}
		}

		parts, err := r.Departments.CountParts(ctx, id)
		if err != nil {
			return err
		}
		if parts > 0 {
			return &domain.ReferentialError{Entity: "department", ID: id, Dependents: "parts", Count: parts}
		}

		return r.Departments.DeleteDepartment(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("department deleted", zap.String("department_id", id))
	return nil
}

func (s *DepartmentService) Get(ctx context.Context, id string) (*domain.Department, error) {
	dept, err := s.store.Repos().Departments.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	if dept == nil {
		return nil, &domain.NotFoundError{Entity: "department", ID: id}
	}
	return dept, nil
}

// List returns every department, each parent followed by its children.
func (s *DepartmentService) List(ctx context.Context) ([]domain.Department, error) {
	return s.store.Repos().Departments.ListDepartments(ctx)
}

func (s *DepartmentService) Parents(ctx context.Context) ([]domain.Department, error) {
	return s.store.Repos().Departments.ListChildren(ctx, "")
}

func (s *DepartmentService) Children(ctx context.Context, parentID string) ([]domain.Department, error) {
	if _, err := s.Get(ctx, parentID); err != nil {
		return nil, err
	}
	return s.store.Repos().Departments.ListChildren(ctx, parentID)
}

// Path resolves a child department together with its parent.
func (s *DepartmentService) Path(ctx context.Context, childID string) (*domain.DepartmentPath, error) {
	return resolvePath(ctx, s.store.Repos().Departments, childID)
}

func resolvePath(ctx context.Context, r port.DepartmentRepository, childID string) (*domain.DepartmentPath, error) {
	child, err := r.GetDepartment(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, &domain.NotFoundError{Entity: "department", ID: childID}
	}
	if child.IsParent() {
		return nil, &domain.ValidationError{
			Field:  "department_id",
			Reason: fmt.Sprintf("department %q is not a child department", child.Name),
		}
	}

	parent, err := r.GetDepartment(ctx, *child.ParentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, &domain.NotFoundError{Entity: "department", ID: *child.ParentID}
	}
	return &domain.DepartmentPath{Parent: *parent, Child: *child}, nil
}
