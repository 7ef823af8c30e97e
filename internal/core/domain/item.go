package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a stock-keeping entry in the catalog. OnHand is the quantity
// physically in store, excluding anything currently out on custody. The unit
// is fixed at creation and never changes afterwards.
type Item struct {
	ID        string
	Name      string
	Unit      string
	OnHand    decimal.Decimal
	Version   int64 // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance is the read-side view of an item's current stock level.
type Balance struct {
	Qty  decimal.Decimal `json:"qty"`
	Unit string          `json:"unit"`
}
