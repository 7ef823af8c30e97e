package port

import (
	"context"

	"github.com/egms/storeledger/internal/core/domain"
)

// CacheRepository mirrors committed on-hand balances for read-heavy callers.
// The database is the source of truth: the mirror is written after commit and
// dropped, never patched, when it cannot be kept current.
type CacheRepository interface {
	// SetBalance stores the committed balance for an item.
	SetBalance(ctx context.Context, itemName string, b domain.Balance) error

	// GetBalance returns the mirrored balance and whether it was present.
	GetBalance(ctx context.Context, itemName string) (domain.Balance, bool, error)

	// DeleteBalance drops one item's mirrored balance.
	DeleteBalance(ctx context.Context, itemName string) error

	// FlushBalances drops every mirrored balance (after a rebuild).
	FlushBalances(ctx context.Context) error
}
