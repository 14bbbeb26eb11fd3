package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/adapter/storage"
	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

func main() {
	maxAttempts := flag.Int("attempts", 5, "optimistic retry budget per movement")
	flag.Parse()

	ctx := context.Background()

	dir, err := os.MkdirTemp("", "shipstore-stress-")
	if err != nil {
		log.Fatalf("failed to create scratch dir: %v", err)
	}
	defer os.RemoveAll(dir)

	store, err := storage.OpenSQLite(ctx, storage.SQLiteOptions{
		Path:        filepath.Join(dir, "stress.db"),
		LockTimeout: 30 * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	zl := zap.NewNop()
	departments := service.NewDepartmentService(store, zl)
	parts := service.NewPartService(store, zl)
	ledger := service.NewLedgerService(store, nil, *maxAttempts, zl, nil)

	parent, err := departments.Create(ctx, service.NewDepartment{Code: "ENG", Name: "Engineering"})
	if err != nil {
		log.Fatalf("failed to create department: %v", err)
	}
	child, err := departments.Create(ctx, service.NewDepartment{Code: "ENG-ME", Name: "Main Engine Parts", ParentID: parent.ID})
	if err != nil {
		log.Fatalf("failed to create department: %v", err)
	}
	partID, err := parts.Add(ctx, service.NewPart{
		PartNumber:    "FP-100",
		Name:          "Fuel injection pump",
		Quantity:      decimal.NewFromInt(initialStock),
		DepartmentID:  child.ID,
		CompartmentNo: "C1",
		BoxNo:         "B1",
	})
	if err != nil {
		log.Fatalf("failed to add part: %v", err)
	}

	// Counters
	var successCount, insufficientCount, busyCount, otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := ledger.RecordTransaction(ctx, service.TransactionRequest{
				RequestID: fmt.Sprintf("stress-%d", n),
				PartID:    partID,
				Type:      domain.TransactionCheckOut,
				Quantity:  decimal.NewFromInt(1),
				Reason:    "stress",
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			case errors.Is(err, domain.ErrStorageBusy):
				busyCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("request %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	part, err := parts.Get(ctx, partID)
	if err != nil {
		log.Fatalf("failed to read part: %v", err)
	}
	rec, err := ledger.Reconcile(ctx, partID)
	if err != nil {
		log.Fatalf("failed to reconcile: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Insufficient:     %d\n", insufficientCount.Load())
	fmt.Printf("Storage Busy:     %d\n", busyCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Final Quantity:   %s\n", part.Quantity.StringFixed(domain.QuantityPlaces))
	fmt.Printf("Ledger Expected:  %s (%d movements)\n", rec.Expected.StringFixed(domain.QuantityPlaces), rec.Transactions)
	fmt.Println("==========================================")

	expected := decimal.NewFromInt(initialStock - int64(success))
	if part.Quantity.Equal(expected) && rec.Balanced() && int(success) == rec.Transactions {
		fmt.Println("PASS: quantity matches the ledger")
	} else {
		fmt.Printf("FAIL: quantity %s, expected %s, ledger balanced=%v\n", part.Quantity, expected, rec.Balanced())
	}
	if success > initialStock {
		fmt.Printf("FAIL: %d check-outs succeeded against a stock of %d\n", success, initialStock)
	}
}
