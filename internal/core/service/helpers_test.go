package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/adapter/storage"
	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/port"
)

func newTestStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), storage.SQLiteOptions{
		Path:        filepath.Join(t.TempDir(), "shipstore.db"),
		LockTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// fixture is a store seeded with Engineering / Main Engine Parts.
type fixture struct {
	store       port.Store
	departments *DepartmentService
	identity    *IdentityService
	parts       *PartService
	ledger      *LedgerService
	parent      *domain.Department
	child       *domain.Department
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newTestStore(t)
	log := zap.NewNop()
	f := &fixture{
		store:       store,
		departments: NewDepartmentService(store, log),
		identity:    NewIdentityService(store, log),
		parts:       NewPartService(store, log),
		ledger:      NewLedgerService(store, nil, 3, log, nil),
	}

	ctx := context.Background()
	var err error
	f.parent, err = f.departments.Create(ctx, NewDepartment{Code: "ENG", Name: "Engineering"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	f.child, err = f.departments.Create(ctx, NewDepartment{Code: "ENG-ME", Name: "Main Engine Parts", ParentID: f.parent.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return f
}

func (f *fixture) addPart(t *testing.T, partNumber string, qty int64) string {
	t.Helper()
	id, err := f.parts.Add(context.Background(), NewPart{
		PartNumber:    partNumber,
		Name:          "Part " + partNumber,
		Quantity:      decimal.NewFromInt(qty),
		MinOrderLevel: decimal.NewFromInt(5),
		DepartmentID:  f.child.ID,
		CompartmentNo: "C1",
		BoxNo:         "B1",
	})
	if err != nil {
		t.Fatalf("add part %s: %v", partNumber, err)
	}
	return id
}

func (f *fixture) quantity(t *testing.T, partID string) decimal.Decimal {
	t.Helper()
	part, err := f.parts.Get(context.Background(), partID)
	if err != nil {
		t.Fatalf("get part: %v", err)
	}
	return part.Quantity
}

// Mock IdempotencyGuard
type mockGuard struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
	err      error
}

func newMockGuard() *mockGuard {
	return &mockGuard{claimed: make(map[string]bool)}
}

func (m *mockGuard) Acquire(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockGuard) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, key)
	m.released = append(m.released, key)
	return nil
}

// conflictStore makes the first n quantity writes lose the version race.
type conflictStore struct {
	port.Store
	mu sync.Mutex
	n  int
}

func (s *conflictStore) WithinTx(ctx context.Context, fn func(r port.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(r port.Repositories) error {
		r.Parts = &conflictParts{PartRepository: r.Parts, s: s}
		return fn(r)
	})
}

type conflictParts struct {
	port.PartRepository
	s *conflictStore
}

func (p *conflictParts) SetQuantity(ctx context.Context, id string, qty decimal.Decimal, version int, at time.Time) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.s.n > 0 {
		p.s.n--
		return domain.ErrOptimisticLock
	}
	return p.PartRepository.SetQuantity(ctx, id, qty, version, at)
}

// staleBarcodeStore hides existing barcodes from the first n listings, as a
// snapshot taken before a concurrent add committed would.
type staleBarcodeStore struct {
	port.Store
	mu sync.Mutex
	n  int
}

func (s *staleBarcodeStore) wrap(r port.Repositories) port.Repositories {
	r.Parts = &staleParts{PartRepository: r.Parts, s: s}
	return r
}

func (s *staleBarcodeStore) Repos() port.Repositories {
	return s.wrap(s.Store.Repos())
}

func (s *staleBarcodeStore) WithinTx(ctx context.Context, fn func(r port.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(r port.Repositories) error {
		return fn(s.wrap(r))
	})
}

func (s *staleBarcodeStore) stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n > 0 {
		s.n--
		return true
	}
	return false
}

type staleParts struct {
	port.PartRepository
	s *staleBarcodeStore
}

func (p *staleParts) ListBarcodes(ctx context.Context) ([]string, error) {
	if p.s.stale() {
		return nil, nil
	}
	return p.PartRepository.ListBarcodes(ctx)
}

func (p *staleParts) ListBarcodesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	if p.s.stale() {
		return nil, nil
	}
	return p.PartRepository.ListBarcodesWithPrefix(ctx, prefix)
}
