package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/core/session"
	"github.com/rl1809/shipstore/internal/metrics"
	"github.com/rl1809/shipstore/internal/port"
)

const (
	defaultMaxAttempts = 3
	defaultHistoryDays = 30
)

type TransactionRequest struct {
	// RequestID, when set, makes the movement idempotent
	RequestID string
	PartID    string
	Type      domain.TransactionType
	Quantity  decimal.Decimal
	Reason    string
	Remarks   string
}

// Movement is a committed transaction with the balance it produced.
type Movement struct {
	Transaction domain.Transaction
	Balance     decimal.Decimal
}

type LedgerService struct {
	store       port.Store
	guard       port.IdempotencyGuard
	maxAttempts int
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewLedgerService wires the ledger. guard and m may be nil.
func NewLedgerService(store port.Store, guard port.IdempotencyGuard, maxAttempts int, logger *zap.Logger, m *metrics.Metrics) *LedgerService {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return &LedgerService{
		store:       store,
		guard:       guard,
		maxAttempts: maxAttempts,
		logger:      logger,
		metrics:     m,
	}
}

func (req TransactionRequest) validate() (TransactionRequest, error) {
	req.PartID = strings.TrimSpace(req.PartID)
	if req.PartID == "" {
		return req, domain.MissingFieldsError([]string{"part_id"})
	}
	if !req.Type.Valid() {
		return req, &domain.ValidationError{Field: "transaction_type", Reason: "must be check_in or check_out"}
	}
	q, err := domain.CheckQuantity("quantity", req.Quantity)
	if err != nil {
		return req, err
	}
	req.Quantity = q
	if !req.Quantity.IsPositive() {
		return req, &domain.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	req.Reason = strings.TrimSpace(req.Reason)
	req.Remarks = strings.TrimSpace(req.Remarks)
	return req, nil
}

// RecordTransaction appends a movement and adjusts the part's quantity in
// one unit. A check-out above the stock on hand changes nothing.
func (s *LedgerService) RecordTransaction(ctx context.Context, req TransactionRequest) (mv *Movement, err error) {
	req, err = req.validate()
	if err != nil {
		s.metrics.Rejected("validation")
		return nil, err
	}

	if req.RequestID != "" && s.guard != nil {
		ok, acqErr := s.guard.Acquire(ctx, req.RequestID)
		if acqErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", acqErr)
		}
		if !ok {
			s.metrics.Rejected("duplicate_request")
			return nil, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.guard.Release(context.WithoutCancel(ctx), req.RequestID); relErr != nil {
				s.logger.Warn("release request id failed", zap.String("request_id", req.RequestID), zap.Error(relErr))
			}
		}()
	}

	txn := domain.Transaction{
		ID:          newID(),
		PartID:      req.PartID,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		Remarks:     req.Remarks,
		PerformedBy: session.ActorFrom(ctx).Username,
	}

	var balance decimal.Decimal
	for attempt := 1; ; attempt++ {
		balance, err = s.apply(ctx, &txn)
		if !errors.Is(err, domain.ErrOptimisticLock) {
			break
		}
		if attempt >= s.maxAttempts {
			err = &domain.StorageBusyError{Op: "record transaction", Err: err}
			break
		}
		s.metrics.Retry()
		s.logger.Debug("version conflict, retrying",
			zap.String("part_id", txn.PartID),
			zap.Int("attempt", attempt),
		)
	}

	if err != nil {
		s.reject(txn, err)
		return nil, err
	}

	s.metrics.Movement(string(txn.Type))
	s.logger.Info("stock movement recorded",
		zap.String("transaction_id", txn.ID),
		zap.String("part_id", txn.PartID),
		zap.String("type", string(txn.Type)),
		zap.String("quantity", txn.Quantity.String()),
		zap.String("balance", balance.String()),
		zap.String("performed_by", txn.PerformedBy),
	)
	return &Movement{Transaction: txn, Balance: balance}, nil
}

func (s *LedgerService) apply(ctx context.Context, txn *domain.Transaction) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.WithinTx(ctx, func(r port.Repositories) error {
		part, err := r.Parts.GetPartForUpdate(ctx, txn.PartID)
		if err != nil {
			return err
		}
		if part == nil {
			return &domain.NotFoundError{Entity: "part", ID: txn.PartID}
		}

		balance, err = part.Apply(txn.Type, txn.Quantity)
		if err != nil {
			return err
		}

		txn.Timestamp = now()
		if err := r.Transactions.AppendTransaction(ctx, *txn); err != nil {
			return err
		}
		return r.Parts.SetQuantity(ctx, part.ID, balance, part.Version, txn.Timestamp)
	})
	return balance, err
}

func (s *LedgerService) reject(txn domain.Transaction, err error) {
	fields := []zap.Field{
		zap.String("part_id", txn.PartID),
		zap.String("type", string(txn.Type)),
		zap.String("quantity", txn.Quantity.String()),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		s.metrics.Rejected("insufficient_stock")
		s.logger.Info("check-out rejected", fields...)
	case errors.Is(err, domain.ErrValidation):
		s.metrics.Rejected("validation")
		s.logger.Info("movement rejected", fields...)
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.Rejected("not_found")
		s.logger.Info("movement for unknown part", fields...)
	case errors.Is(err, domain.ErrStorageBusy):
		s.metrics.Rejected("storage_busy")
		s.logger.Warn("movement not recorded, storage busy", fields...)
	default:
		s.metrics.Rejected("error")
		s.logger.Error("movement failed", fields...)
	}
}

// History returns the movements of the last days days, newest first. Zero
// days means the default window of 30.
func (s *LedgerService) History(ctx context.Context, days int, departmentID string) ([]domain.TransactionView, error) {
	if days < 0 {
		return nil, &domain.ValidationError{Field: "days", Reason: "must not be negative"}
	}
	if days == 0 {
		days = defaultHistoryDays
	}
	since := now().AddDate(0, 0, -days)
	return s.store.Repos().Transactions.History(ctx, since, strings.TrimSpace(departmentID))
}

func (s *LedgerService) PartHistory(ctx context.Context, partID string) ([]domain.Transaction, error) {
	repos := s.store.Repos()
	part, err := repos.Parts.GetPart(ctx, partID)
	if err != nil {
		return nil, err
	}
	if part == nil {
		return nil, &domain.NotFoundError{Entity: "part", ID: partID}
	}
	return repos.Transactions.ListByPart(ctx, partID)
}

// Reconcile replays a part's ledger against its stored quantity.
func (s *LedgerService) Reconcile(ctx context.Context, partID string) (*domain.Reconciliation, error) {
	var rec domain.Reconciliation
	err := s.store.WithinTx(ctx, func(r port.Repositories) error {
		part, err := r.Parts.GetPart(ctx, partID)
		if err != nil {
			return err
		}
		if part == nil {
			return &domain.NotFoundError{Entity: "part", ID: partID}
		}
		txns, err := r.Transactions.ListByPart(ctx, partID)
		if err != nil {
			return err
		}

		rec = domain.Reconciliation{
			PartID:          partID,
			InitialQuantity: part.InitialQuantity,
			Actual:          part.Quantity,
			Transactions:    len(txns),
		}
		for _, txn := range txns {
			if txn.Type == domain.TransactionCheckIn {
				rec.CheckedIn = rec.CheckedIn.Add(txn.Quantity)
			} else {
				rec.CheckedOut = rec.CheckedOut.Add(txn.Quantity)
			}
		}
		rec.Expected = rec.InitialQuantity.Add(rec.CheckedIn).Sub(rec.CheckedOut)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rec.Balanced() {
		s.logger.Warn("ledger out of balance",
			zap.String("part_id", partID),
			zap.String("expected", rec.Expected.String()),
			zap.String("actual", rec.Actual.String()),
		)
	}
	return &rec, nil
}
