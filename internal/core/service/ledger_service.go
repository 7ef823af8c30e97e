package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egms/storeledger/internal/core/domain"
	"github.com/egms/storeledger/internal/metrics"
	"github.com/egms/storeledger/internal/port"
)

// LedgerService is the single place movements enter the ledger. Every
// mutation validates its input, builds an immutable movement record, and
// hands it to the repository, which commits the balance check, the
// balance/custody change, and the movement append as one transaction.
//
// The cache is optional; when present it mirrors committed balances for
// read-heavy callers and is updated after each commit.
type LedgerService struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	logger *zap.Logger
}

func NewLedgerService(db port.DatabaseRepository, cache port.CacheRepository, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{db: db, cache: cache, logger: logger}
}

// RegisterOrRestock creates the item on first intake of a new name, or adds
// qty to an existing item's stock. An existing item keeps its unit; a
// differing supplied unit is rejected rather than silently merged.
func (s *LedgerService) RegisterOrRestock(ctx context.Context, name, unit string, qty decimal.Decimal) (domain.Item, error) {
	if !qty.IsPositive() {
		return domain.Item{}, countMovement(domain.KindEntry, fmt.Errorf("%w: %s", domain.ErrInvalidQuantity, qty))
	}
	mv := newMovement(name, domain.KindEntry, qty, domain.CounterpartyStore, "")
	item, err := s.db.ApplyEntry(ctx, unit, mv)
	if err != nil {
		return domain.Item{}, countMovement(domain.KindEntry, err)
	}
	s.logger.Info("stock entry recorded",
		zap.String("item", item.Name),
		zap.String("qty", qty.String()),
		zap.String("movement_id", mv.ID))
	s.syncBalance(ctx, item)
	return item, countMovement(domain.KindEntry, nil)
}

// RecordHandover moves qty from the store into a worker's custody.
func (s *LedgerService) RecordHandover(ctx context.Context, itemName, workerName string, qty decimal.Decimal) (domain.Item, error) {
	if !qty.IsPositive() {
		return domain.Item{}, countMovement(domain.KindHandover, fmt.Errorf("%w: %s", domain.ErrInvalidQuantity, qty))
	}
	mv := newMovement(itemName, domain.KindHandover, qty, workerName, "")
	item, err := s.db.ApplyHandover(ctx, mv)
	if err != nil {
		return domain.Item{}, countMovement(domain.KindHandover, err)
	}
	s.logger.Info("handover recorded",
		zap.String("item", item.Name),
		zap.String("worker", workerName),
		zap.String("qty", qty.String()),
		zap.String("movement_id", mv.ID))
	s.syncBalance(ctx, item)
	return item, countMovement(domain.KindHandover, nil)
}

// RecordReturn moves qty back from a worker's custody into the store.
func (s *LedgerService) RecordReturn(ctx context.Context, itemName, workerName string, qty decimal.Decimal) (domain.Item, error) {
	if !qty.IsPositive() {
		return domain.Item{}, countMovement(domain.KindReturn, fmt.Errorf("%w: %s", domain.ErrInvalidQuantity, qty))
	}
	mv := newMovement(itemName, domain.KindReturn, qty, workerName, "")
	item, err := s.db.ApplyReturn(ctx, mv)
	if err != nil {
		return domain.Item{}, countMovement(domain.KindReturn, err)
	}
	s.logger.Info("return recorded",
		zap.String("item", item.Name),
		zap.String("worker", workerName),
		zap.String("qty", qty.String()),
		zap.String("movement_id", mv.ID))
	s.syncBalance(ctx, item)
	return item, countMovement(domain.KindReturn, nil)
}

// RecordWaste writes qty off as irrecoverable loss. The reason is kept on
// the movement's note; waste has no custody association.
func (s *LedgerService) RecordWaste(ctx context.Context, itemName string, qty decimal.Decimal, reason string) (domain.Item, error) {
	if !qty.IsPositive() {
		return domain.Item{}, countMovement(domain.KindWaste, fmt.Errorf("%w: %s", domain.ErrInvalidQuantity, qty))
	}
	mv := newMovement(itemName, domain.KindWaste, qty, domain.CounterpartyStore, reason)
	item, err := s.db.ApplyWaste(ctx, mv)
	if err != nil {
		return domain.Item{}, countMovement(domain.KindWaste, err)
	}
	s.logger.Info("waste recorded",
		zap.String("item", item.Name),
		zap.String("qty", qty.String()),
		zap.String("reason", reason),
		zap.String("movement_id", mv.ID))
	s.syncBalance(ctx, item)
	return item, countMovement(domain.KindWaste, nil)
}

// GetBalance returns the current on-hand quantity and unit for an item. The
// cache is consulted first; mutations update it before returning, so a read
// immediately after a successful movement sees the new value.
func (s *LedgerService) GetBalance(ctx context.Context, itemName string) (domain.Balance, error) {
	if s.cache != nil {
		b, ok, err := s.cache.GetBalance(ctx, itemName)
		if err != nil {
			s.logger.Warn("balance mirror read failed", zap.String("item", itemName), zap.Error(err))
		} else if ok {
			return b, nil
		}
	}
	item, err := s.db.GetItem(ctx, itemName)
	if err != nil {
		return domain.Balance{}, err
	}
	b := domain.Balance{Qty: item.OnHand, Unit: item.Unit}
	if s.cache != nil {
		if err := s.cache.SetBalance(ctx, itemName, b); err != nil {
			s.logger.Warn("balance mirror refill failed", zap.String("item", itemName), zap.Error(err))
		}
	}
	return b, nil
}

// Items yields every catalog item in name order. The sequence is built from
// a committed snapshot: restartable, finite, and free of side effects.
func (s *LedgerService) Items(ctx context.Context) (iter.Seq[domain.Item], error) {
	items, err := s.db.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	return func(yield func(domain.Item) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}, nil
}

// History yields movements matching the filter, ordered by time ascending.
func (s *LedgerService) History(ctx context.Context, f port.MovementFilter) (iter.Seq2[int, domain.Movement], error) {
	if f.Kind != "" && !domain.ValidKind(f.Kind) {
		return nil, fmt.Errorf("unknown movement kind %q", f.Kind)
	}
	movements, err := s.db.ListMovements(ctx, f)
	if err != nil {
		return nil, err
	}
	return func(yield func(int, domain.Movement) bool) {
		for i, mv := range movements {
			if !yield(i, mv) {
				return
			}
		}
	}, nil
}

// OpenCustodyForWorker yields the worker's outstanding custody rows.
func (s *LedgerService) OpenCustodyForWorker(ctx context.Context, workerName string) (iter.Seq[domain.OpenCustody], error) {
	if _, err := s.db.GetWorker(ctx, workerName); err != nil {
		return nil, err
	}
	return s.openCustody(ctx, port.CustodyFilter{WorkerName: workerName})
}

// OpenCustodyForItem yields the item's outstanding custody rows across all
// workers.
func (s *LedgerService) OpenCustodyForItem(ctx context.Context, itemName string) (iter.Seq[domain.OpenCustody], error) {
	if _, err := s.db.GetItem(ctx, itemName); err != nil {
		return nil, err
	}
	return s.openCustody(ctx, port.CustodyFilter{ItemName: itemName})
}

func (s *LedgerService) openCustody(ctx context.Context, f port.CustodyFilter) (iter.Seq[domain.OpenCustody], error) {
	custody, err := s.db.ListOpenCustody(ctx, f)
	if err != nil {
		return nil, err
	}
	return func(yield func(domain.OpenCustody) bool) {
		for _, c := range custody {
			if !yield(c) {
				return
			}
		}
	}, nil
}

// Rebuild re-derives every balance and custody row from the movement log and
// drops the whole balance mirror so readers repopulate it from the database.
func (s *LedgerService) Rebuild(ctx context.Context) (port.RebuildReport, error) {
	report, err := s.db.Rebuild(ctx)
	if err != nil {
		return report, err
	}
	if s.cache != nil {
		if err := s.cache.FlushBalances(ctx); err != nil {
			s.logger.Warn("balance mirror flush failed", zap.Error(err))
		}
	}
	s.logger.Info("ledger rebuilt",
		zap.Int("movements", report.Movements),
		zap.Int("items", report.Items),
		zap.Int("custody_rows", report.CustodyRows))
	return report, nil
}

func (s *LedgerService) syncBalance(ctx context.Context, item domain.Item) {
	if s.cache == nil {
		return
	}
	b := domain.Balance{Qty: item.OnHand, Unit: item.Unit}
	if err := s.cache.SetBalance(ctx, item.Name, b); err != nil {
		s.logger.Warn("balance mirror write failed, dropping key",
			zap.String("item", item.Name), zap.Error(err))
		if err := s.cache.DeleteBalance(ctx, item.Name); err != nil {
			s.logger.Warn("balance mirror drop failed",
				zap.String("item", item.Name), zap.Error(err))
		}
	}
}

func newMovement(itemName string, kind domain.MovementKind, qty decimal.Decimal, counterparty, note string) domain.Movement {
	return domain.Movement{
		ID:           uuid.NewString(),
		ItemName:     itemName,
		Qty:          qty,
		Kind:         kind,
		Counterparty: counterparty,
		Note:         note,
		At:           time.Now().UTC(),
	}
}

// countMovement records the movement outcome metric and passes err through.
func countMovement(kind domain.MovementKind, err error) error {
	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsRequestError(err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	metrics.MovementsTotal.WithLabelValues(string(kind), outcome).Inc()
	return err
}
