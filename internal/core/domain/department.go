package domain

import "time"

type Department struct {
	ID        string
	Code      string
	Name      string
	ParentID  *string
	CreatedAt time.Time
}

// IsParent reports whether the department sits at the top of the hierarchy.
func (d Department) IsParent() bool {
	return d.ParentID == nil
}

// DepartmentPath is a child department together with its parent.
type DepartmentPath struct {
	Parent Department
	Child  Department
}
