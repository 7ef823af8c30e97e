package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egms/storeledger/internal/core/domain"
)

// ImportRow is one line of a bulk import batch. Worker is required for
// handover/return rows, Unit only matters on entry rows, and Note carries
// the waste reason.
type ImportRow struct {
	Item   string
	Unit   string
	Worker string
	Kind   domain.MovementKind
	Qty    decimal.Decimal
	Note   string
}

// ImportResult reports one row's outcome. Err is nil for applied rows.
type ImportResult struct {
	Row int
	Err error
}

// ImportMovements applies a batch one row at a time. A bad row is reported
// and skipped, never aborting the rest of the batch; each applied row went
// through the same guarded single-movement path as interactive callers.
func (s *LedgerService) ImportMovements(ctx context.Context, rows []ImportRow) []ImportResult {
	results := make([]ImportResult, len(rows))
	applied := 0
	for i, row := range rows {
		var err error
		switch row.Kind {
		case domain.KindEntry:
			_, err = s.RegisterOrRestock(ctx, row.Item, row.Unit, row.Qty)
		case domain.KindHandover:
			_, err = s.RecordHandover(ctx, row.Item, row.Worker, row.Qty)
		case domain.KindReturn:
			_, err = s.RecordReturn(ctx, row.Item, row.Worker, row.Qty)
		case domain.KindWaste:
			_, err = s.RecordWaste(ctx, row.Item, row.Qty, row.Note)
		default:
			err = fmt.Errorf("unknown movement kind %q", row.Kind)
		}
		results[i] = ImportResult{Row: i, Err: err}
		if err != nil {
			s.logger.Warn("import row rejected",
				zap.Int("row", i),
				zap.String("item", row.Item),
				zap.Error(err))
			continue
		}
		applied++
	}
	s.logger.Info("import finished",
		zap.Int("rows", len(rows)),
		zap.Int("applied", applied),
		zap.Int("rejected", len(rows)-applied))
	return results
}
