package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/core/domain"
)

func TestAddPart_MissingFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.parts.Add(context.Background(), NewPart{PartNumber: "P-1", DepartmentID: f.child.ID})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"name", "box_no", "compartment_no"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %s to be named in %q", field, err.Error())
		}
	}
}

func TestAddPart_DuplicatePartNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart(t, "P-1", 1)

	_, err := f.parts.Add(ctx, NewPart{
		PartNumber: "P-1", Name: "Again", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B",
	})
	var dup *domain.DuplicateError
	if !errors.As(err, &dup) || dup.Kind != domain.DuplicatePartNumber {
		t.Fatalf("expected part number duplicate, got %v", err)
	}

	// Same part number in another department is fine
	other, err := f.departments.Create(ctx, NewDepartment{Code: "ENG-AX", Name: "Auxiliaries", ParentID: f.parent.ID})
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	_, err = f.parts.Add(ctx, NewPart{
		PartNumber: "P-1", Name: "Again", DepartmentID: other.ID, CompartmentNo: "C", BoxNo: "B",
	})
	if err != nil {
		t.Errorf("expected success in another department, got %v", err)
	}
}

func TestAddPart_Barcodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.parts.Add(ctx, NewPart{
		PartNumber: "P-1", Name: "Injector", Barcode: "eng-m-0007", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	part, _ := f.parts.Get(ctx, id)
	if part.Barcode != "ENG-M-0007" {
		t.Errorf("expected cleaned barcode, got %s", part.Barcode)
	}

	_, err = f.parts.Add(ctx, NewPart{
		PartNumber: "P-2", Name: "Injector", Barcode: "ENG-M-0007", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B",
	})
	var dup *domain.DuplicateError
	if !errors.As(err, &dup) || dup.Kind != domain.DuplicateBarcode {
		t.Errorf("expected barcode duplicate, got %v", err)
	}

	_, err = f.parts.Add(ctx, NewPart{
		PartNumber: "P-3", Name: "Injector", Barcode: "ENGM7", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected format error, got %v", err)
	}

	// generated code continues after the highest serial
	id, err = f.parts.Add(ctx, NewPart{
		PartNumber: "P-4", Name: "Injector", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	part, _ = f.parts.Get(ctx, id)
	if part.Barcode != "ENG-M-0008" {
		t.Errorf("expected ENG-M-0008, got %s", part.Barcode)
	}

	found, err := f.parts.GetByBarcode(ctx, " eng-m-0008 ")
	if err != nil || found.ID != id {
		t.Errorf("scanner lookup failed: %+v (%v)", found, err)
	}
}

func TestAddPart_RejectsParentDepartmentAndNegativeStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.parts.Add(ctx, NewPart{PartNumber: "P", Name: "N", DepartmentID: f.parent.ID, CompartmentNo: "C", BoxNo: "B"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected parts to be refused on a parent department, got %v", err)
	}

	_, err = f.parts.Add(ctx, NewPart{PartNumber: "P", Name: "N", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B",
		Quantity: decimal.NewFromInt(-1)})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected negative quantity to be refused, got %v", err)
	}
}

func TestAddPart_QuantityBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := NewPart{PartNumber: "P", Name: "N", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B"}

	tests := []struct {
		name  string
		apply func(*NewPart)
		field string
	}{
		{"quantity at 1e15", func(in *NewPart) { in.Quantity = decimal.New(1, 15) }, "quantity"},
		{"quantity 1e400", func(in *NewPart) { in.Quantity = decimal.New(1, 400) }, "quantity"},
		{"min order level", func(in *NewPart) { in.MinOrderLevel = decimal.New(1, 400) }, "min_order_level"},
		{"min order quantity", func(in *NewPart) { in.MinOrderQuantity = decimal.New(5, -40) }, "min_order_quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.apply(&in)
			_, err := f.parts.Add(ctx, in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}

	in := base
	in.Quantity = decimal.RequireFromString("999999999999999.999")
	id, err := f.parts.Add(ctx, in)
	if err != nil {
		t.Fatalf("largest quantity refused: %v", err)
	}
	if q := f.quantity(t, id); q.String() != "999999999999999.999" {
		t.Errorf("expected exact quantity, got %s", q)
	}
}

func TestAddPart_RedrawsTakenGeneratedBarcode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPart(t, "P-1", 1) // ENG-M-0001

	store := &staleBarcodeStore{Store: f.store, n: 1}
	parts := NewPartService(store, zap.NewNop())
	id, err := parts.Add(ctx, NewPart{PartNumber: "P-2", Name: "N", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B"})
	if err != nil {
		t.Fatalf("expected the second draw to succeed, got %v", err)
	}
	part, _ := f.parts.Get(ctx, id)
	if part.Barcode != "ENG-M-0002" {
		t.Errorf("expected ENG-M-0002, got %s", part.Barcode)
	}

	// draws are bounded
	store.n = barcodeAttempts
	_, err = parts.Add(ctx, NewPart{PartNumber: "P-3", Name: "N", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B"})
	var dup *domain.DuplicateError
	if !errors.As(err, &dup) || dup.Kind != domain.DuplicateBarcode {
		t.Errorf("expected barcode duplicate after %d stale draws, got %v", barcodeAttempts, err)
	}
}

func TestAddPart_ConcurrentGeneratedBarcodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = make(map[string]bool)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := f.parts.Add(ctx, NewPart{
				PartNumber: fmt.Sprintf("P-%d", n), Name: "N", DepartmentID: f.child.ID, CompartmentNo: "C", BoxNo: "B",
			})
			if err != nil {
				t.Errorf("add %d failed: %v", n, err)
				return
			}
			part, err := f.parts.Get(ctx, id)
			if err != nil {
				t.Errorf("get %d failed: %v", n, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if codes[part.Barcode] {
				t.Errorf("barcode %s handed out twice", part.Barcode)
			}
			codes[part.Barcode] = true
		}(i)
	}
	wg.Wait()

	if len(codes) != workers {
		t.Errorf("expected %d distinct barcodes, got %d", workers, len(codes))
	}
	for i := 1; i <= workers; i++ {
		if code := fmt.Sprintf("ENG-M-%04d", i); !codes[code] {
			t.Errorf("expected %s to be issued", code)
		}
	}
}

func TestUpdatePart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addPart(t, "P-1", 4)

	last := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	next := last.AddDate(0, 6, 0)
	upd := PartUpdate{
		Name:                "Injector nozzle",
		CompartmentNo:       "C9",
		BoxNo:               "B9",
		MinOrderLevel:       decimal.NewFromInt(10),
		Status:              domain.PartStatusUnderMaintenance,
		LastMaintenanceDate: &last,
		NextMaintenanceDate: &next,
	}
	if err := f.parts.Update(ctx, id, upd); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	part, _ := f.parts.Get(ctx, id)
	if part.Name != "Injector nozzle" || part.Status != domain.PartStatusUnderMaintenance {
		t.Errorf("unexpected part after update: %+v", part)
	}
	if !part.Quantity.Equal(decimal.NewFromInt(4)) {
		t.Errorf("update must not touch quantity, got %s", part.Quantity)
	}

	upd.NextMaintenanceDate = &last
	if err := f.parts.Update(ctx, id, upd); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected next date before last to fail, got %v", err)
	}

	upd.NextMaintenanceDate = nil
	upd.Status = "Lost"
	if err := f.parts.Update(ctx, id, upd); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected unknown status to fail, got %v", err)
	}

	upd.Status = domain.PartStatusOperational
	if err := f.parts.Update(ctx, "missing", upd); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestStockAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPart(t, "LOW", 5)  // at the reorder level
	f.addPart(t, "LAST", 1) // last piece, not low stock
	f.addPart(t, "FINE", 6)

	low, err := f.parts.LowStock(ctx, "")
	if err != nil {
		t.Fatalf("LowStock failed: %v", err)
	}
	if len(low) != 1 || low[0].PartNumber != "LOW" {
		t.Errorf("expected only LOW, got %+v", low)
	}

	last, _ := f.parts.LastPiece(ctx, f.child.ID)
	if len(last) != 1 || last[0].PartNumber != "LAST" {
		t.Errorf("expected only LAST, got %+v", last)
	}

	all, _ := f.parts.ListByDepartment(ctx, f.child.ID)
	if len(all) != 3 || all[0].ParentDepartment != "Engineering" {
		t.Errorf("unexpected listing: %+v", all)
	}
}

func TestDeletePart_Cascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addPart(t, "P-1", 5)

	_, err := f.ledger.RecordTransaction(ctx, TransactionRequest{
		PartID: id, Type: domain.TransactionCheckOut, Quantity: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	err = f.parts.Delete(ctx, id, false)
	if !errors.Is(err, domain.ErrReferential) {
		t.Fatalf("expected referential error, got %v", err)
	}

	if err := f.parts.Delete(ctx, id, true); err != nil {
		t.Fatalf("cascade delete failed: %v", err)
	}
	if _, err := f.parts.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected part to be gone, got %v", err)
	}
	if _, err := f.ledger.PartHistory(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected history lookup to report the missing part, got %v", err)
	}
}
