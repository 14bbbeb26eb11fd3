package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/shipstore/internal/core/coerce"
	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/core/service"
)

type DepartmentRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

type DepartmentResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id,omitempty"`
	IsParent  bool      `json:"is_parent"`
	CreatedAt time.Time `json:"created_at"`
}

func newDepartmentResponse(d domain.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:        d.ID,
		Code:      d.Code,
		Name:      d.Name,
		ParentID:  d.ParentID,
		IsParent:  d.IsParent(),
		CreatedAt: d.CreatedAt,
	}
}

func newDepartmentList(depts []domain.Department) []DepartmentResponse {
	out := make([]DepartmentResponse, 0, len(depts))
	for _, d := range depts {
		out = append(out, newDepartmentResponse(d))
	}
	return out
}

// PartRequest is the body of both add and update. Quantity and Barcode are
// ignored on update. Dates use the YYYY-MM-DD layout.
type PartRequest struct {
	PartNumber          string          `json:"part_number"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Quantity            decimal.Decimal `json:"quantity"`
	MinOrderLevel       decimal.Decimal `json:"min_order_level"`
	MinOrderQuantity    decimal.Decimal `json:"min_order_quantity"`
	Barcode             string          `json:"barcode"`
	DepartmentID        string          `json:"department_id"`
	CompartmentNo       string          `json:"compartment_no"`
	BoxNo               string          `json:"box_no"`
	LineNo              int             `json:"line_no"`
	PageNo              string          `json:"page_no"`
	OrderNo             string          `json:"order_no"`
	MaterialCode        string          `json:"material_code"`
	IlmsCode            string          `json:"ilms_code"`
	ItemDenomination    string          `json:"item_denomination"`
	Mustered            bool            `json:"mustered"`
	Remark              string          `json:"remark"`
	Status              string          `json:"status"`
	LastMaintenanceDate string          `json:"last_maintenance_date"`
	NextMaintenanceDate string          `json:"next_maintenance_date"`
}

func parseDate(field, value string) (*time.Time, error) {
	if coerce.Text(value) == "" {
		return nil, nil
	}
	d := coerce.Date(value)
	if d == nil {
		return nil, &domain.ValidationError{Field: field, Reason: "must be a date in YYYY-MM-DD form"}
	}
	return d, nil
}

func (r PartRequest) dates() (last, next *time.Time, err error) {
	if last, err = parseDate("last_maintenance_date", r.LastMaintenanceDate); err != nil {
		return nil, nil, err
	}
	if next, err = parseDate("next_maintenance_date", r.NextMaintenanceDate); err != nil {
		return nil, nil, err
	}
	return last, next, nil
}

func (r PartRequest) toNewPart() (service.NewPart, error) {
	last, next, err := r.dates()
	if err != nil {
		return service.NewPart{}, err
	}
	return service.NewPart{
		PartNumber:          r.PartNumber,
		Name:                r.Name,
		Description:         r.Description,
		Quantity:            r.Quantity,
		MinOrderLevel:       r.MinOrderLevel,
		MinOrderQuantity:    r.MinOrderQuantity,
		Barcode:             r.Barcode,
		DepartmentID:        r.DepartmentID,
		CompartmentNo:       r.CompartmentNo,
		BoxNo:               r.BoxNo,
		LineNo:              r.LineNo,
		PageNo:              r.PageNo,
		OrderNo:             r.OrderNo,
		MaterialCode:        r.MaterialCode,
		IlmsCode:            r.IlmsCode,
		ItemDenomination:    r.ItemDenomination,
		Mustered:            r.Mustered,
		Remark:              r.Remark,
		Status:              domain.PartStatus(r.Status),
		LastMaintenanceDate: last,
		NextMaintenanceDate: next,
	}, nil
}

func (r PartRequest) toUpdate() (service.PartUpdate, error) {
	last, next, err := r.dates()
	if err != nil {
		return service.PartUpdate{}, err
	}
	return service.PartUpdate{
		Name:                r.Name,
		Description:         r.Description,
		MinOrderLevel:       r.MinOrderLevel,
		MinOrderQuantity:    r.MinOrderQuantity,
		CompartmentNo:       r.CompartmentNo,
		BoxNo:               r.BoxNo,
		IlmsCode:            r.IlmsCode,
		ItemDenomination:    r.ItemDenomination,
		Mustered:            r.Mustered,
		Remark:              r.Remark,
		Status:              domain.PartStatus(r.Status),
		LastMaintenanceDate: last,
		NextMaintenanceDate: next,
	}, nil
}

type PartResponse struct {
	ID                  string          `json:"id"`
	PartNumber          string          `json:"part_number"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Quantity            decimal.Decimal `json:"quantity"`
	InitialQuantity     decimal.Decimal `json:"initial_quantity"`
	MinOrderLevel       decimal.Decimal `json:"min_order_level"`
	MinOrderQuantity    decimal.Decimal `json:"min_order_quantity"`
	Barcode             string          `json:"barcode"`
	DepartmentID        string          `json:"department_id"`
	ParentDepartment    string          `json:"parent_department,omitempty"`
	ChildDepartment     string          `json:"child_department,omitempty"`
	CompartmentNo       string          `json:"compartment_no"`
	BoxNo               string          `json:"box_no"`
	LineNo              int             `json:"line_no"`
	PageNo              string          `json:"page_no"`
	OrderNo             string          `json:"order_no"`
	MaterialCode        string          `json:"material_code"`
	IlmsCode            string          `json:"ilms_code"`
	ItemDenomination    string          `json:"item_denomination"`
	Mustered            bool            `json:"mustered"`
	Remark              string          `json:"remark"`
	Status              string          `json:"status"`
	LastMaintenanceDate string          `json:"last_maintenance_date,omitempty"`
	NextMaintenanceDate string          `json:"next_maintenance_date,omitempty"`
	LowStock            bool            `json:"low_stock"`
	LastPiece           bool            `json:"last_piece"`
	CreatedAt           time.Time       `json:"created_at"`
	LastUpdated         time.Time       `json:"last_updated"`
}

func newPartResponse(p domain.Part) PartResponse {
	return PartResponse{
		ID:                  p.ID,
		PartNumber:          p.PartNumber,
		Name:                p.Name,
		Description:         p.Description,
		Quantity:            p.Quantity,
		InitialQuantity:     p.InitialQuantity,
		MinOrderLevel:       p.MinOrderLevel,
		MinOrderQuantity:    p.MinOrderQuantity,
		Barcode:             p.Barcode,
		DepartmentID:        p.DepartmentID,
		CompartmentNo:       p.CompartmentNo,
		BoxNo:               p.BoxNo,
		LineNo:              p.LineNo,
		PageNo:              p.PageNo,
		OrderNo:             p.OrderNo,
		MaterialCode:        p.MaterialCode,
		IlmsCode:            p.IlmsCode,
		ItemDenomination:    p.ItemDenomination,
		Mustered:            p.Mustered,
		Remark:              p.Remark,
		Status:              string(p.Status),
		LastMaintenanceDate: coerce.FormatDate(p.LastMaintenanceDate),
		NextMaintenanceDate: coerce.FormatDate(p.NextMaintenanceDate),
		LowStock:            p.IsLowStock(),
		LastPiece:           p.IsLastPiece(),
		CreatedAt:           p.CreatedAt,
		LastUpdated:         p.LastUpdated,
	}
}

func newPartViewList(views []domain.PartView) []PartResponse {
	out := make([]PartResponse, 0, len(views))
	for _, v := range views {
		resp := newPartResponse(v.Part)
		resp.ParentDepartment = v.ParentDepartment
		resp.ChildDepartment = v.ChildDepartment
		out = append(out, resp)
	}
	return out
}

type TransactionRequest struct {
	RequestID string          `json:"request_id"`
	PartID    string          `json:"part_id"`
	Type      string          `json:"transaction_type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason"`
	Remarks   string          `json:"remarks"`
}

func (r TransactionRequest) toService() service.TransactionRequest {
	return service.TransactionRequest{
		RequestID: r.RequestID,
		PartID:    r.PartID,
		Type:      domain.TransactionType(r.Type),
		Quantity:  r.Quantity,
		Reason:    r.Reason,
		Remarks:   r.Remarks,
	}
}

type TransactionResponse struct {
	ID               string          `json:"id"`
	PartID           string          `json:"part_id"`
	Type             string          `json:"transaction_type"`
	Quantity         decimal.Decimal `json:"quantity"`
	Timestamp        time.Time       `json:"timestamp"`
	Reason           string          `json:"reason"`
	Remarks          string          `json:"remarks"`
	PerformedBy      string          `json:"performed_by"`
	PartNumber       string          `json:"part_number,omitempty"`
	PartName         string          `json:"part_name,omitempty"`
	ParentDepartment string          `json:"parent_department,omitempty"`
	ChildDepartment  string          `json:"child_department,omitempty"`
}

func newTransactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID,
		PartID:      t.PartID,
		Type:        string(t.Type),
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp,
		Reason:      t.Reason,
		Remarks:     t.Remarks,
		PerformedBy: t.PerformedBy,
	}
}

func newTransactionList(txns []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, newTransactionResponse(t))
	}
	return out
}

func newHistoryList(views []domain.TransactionView) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(views))
	for _, v := range views {
		resp := newTransactionResponse(v.Transaction)
		resp.PartNumber = v.PartNumber
		resp.PartName = v.PartName
		resp.ParentDepartment = v.ParentDepartment
		resp.ChildDepartment = v.ChildDepartment
		out = append(out, resp)
	}
	return out
}

type MovementResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Balance     decimal.Decimal     `json:"balance"`
}

type ReconciliationResponse struct {
	PartID          string          `json:"part_id"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	CheckedIn       decimal.Decimal `json:"checked_in"`
	CheckedOut      decimal.Decimal `json:"checked_out"`
	Expected        decimal.Decimal `json:"expected"`
	Actual          decimal.Decimal `json:"actual"`
	Transactions    int             `json:"transactions"`
	Balanced        bool            `json:"balanced"`
}

func newReconciliationResponse(r *domain.Reconciliation) ReconciliationResponse {
	return ReconciliationResponse{
		PartID:          r.PartID,
		InitialQuantity: r.InitialQuantity,
		CheckedIn:       r.CheckedIn,
		CheckedOut:      r.CheckedOut,
		Expected:        r.Expected,
		Actual:          r.Actual,
		Transactions:    r.Transactions,
		Balanced:        r.Balanced(),
	}
}

type BarcodeRequest struct {
	Barcode string `json:"barcode"`
}
