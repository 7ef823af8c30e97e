package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenCustody is the outstanding quantity a worker currently holds for one
// item. It is derived state: Σ handover − Σ return for the pair, materialized
// for lookups and rebuildable from the movement log alone.
type OpenCustody struct {
	ItemID      string
	ItemName    string
	WorkerID    string
	WorkerName  string
	Outstanding decimal.Decimal
	UpdatedAt   time.Time
}
