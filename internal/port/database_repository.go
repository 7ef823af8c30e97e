package port

import (
	"context"

	"github.com/egms/storeledger/internal/core/domain"
)

// MovementFilter narrows a ledger history listing. Zero values mean "any".
type MovementFilter struct {
	ItemName   string
	WorkerName string
	Kind       domain.MovementKind
}

// CustodyFilter narrows an open-custody listing. Zero values mean "any".
type CustodyFilter struct {
	ItemName   string
	WorkerName string
}

// RebuildReport summarizes a replay of the movement log.
type RebuildReport struct {
	Movements   int
	Items       int
	CustodyRows int
}

// DatabaseRepository is the persistence boundary of the ledger.
//
// Each Apply* method executes the balance check, the balance/custody
// mutation, and the movement append as one transaction: either the whole
// movement commits or nothing does. Movements are append-only; the interface
// deliberately exposes no update or delete on recorded movements.
type DatabaseRepository interface {
	// ApplyEntry records a supplier intake. It creates the item on first
	// intake of a new name, which requires a non-empty unit; on an existing
	// item an empty unit keeps the current one and a differing unit is
	// rejected with domain.ErrUnitMismatch.
	ApplyEntry(ctx context.Context, unit string, mv domain.Movement) (domain.Item, error)

	// ApplyHandover moves stock into a worker's custody. Fails with
	// domain.ErrInsufficientStock when mv.Qty exceeds the on-hand balance.
	ApplyHandover(ctx context.Context, mv domain.Movement) (domain.Item, error)

	// ApplyReturn moves stock back from a worker's custody. Fails with
	// domain.ErrNoOpenCustody when the pair has nothing outstanding, or
	// domain.ErrExcessReturn when mv.Qty exceeds the outstanding quantity.
	ApplyReturn(ctx context.Context, mv domain.Movement) (domain.Item, error)

	// ApplyWaste records an irrecoverable loss. Fails with
	// domain.ErrInsufficientStock when mv.Qty exceeds the on-hand balance.
	ApplyWaste(ctx context.Context, mv domain.Movement) (domain.Item, error)

	GetItem(ctx context.Context, name string) (domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)

	CreateWorker(ctx context.Context, w domain.Worker) error
	GetWorker(ctx context.Context, name string) (domain.Worker, error)
	ListWorkers(ctx context.Context) ([]domain.Worker, error)

	// ListMovements returns matching movements ordered by time ascending.
	ListMovements(ctx context.Context, f MovementFilter) ([]domain.Movement, error)

	// ListOpenCustody returns the outstanding (item, worker, qty) rows.
	ListOpenCustody(ctx context.Context, f CustodyFilter) ([]domain.OpenCustody, error)

	// Rebuild replays the whole movement log inside one transaction and
	// rewrites every on-hand balance and open-custody row from it.
	Rebuild(ctx context.Context) (RebuildReport, error)
}
