package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementKind string

const (
	KindEntry    MovementKind = "entry"
	KindHandover MovementKind = "handover"
	KindReturn   MovementKind = "return"
	KindWaste    MovementKind = "waste"
)

// CounterpartyStore is the counterparty recorded on movements that have no
// worker on the other side (supplier intake and waste write-offs).
const CounterpartyStore = "STORE"

// Movement is one appended row in the ledger. Movements are immutable once
// recorded; a correction is a new compensating movement, never an edit.
type Movement struct {
	ID           string
	ItemID       string
	ItemName     string
	Qty          decimal.Decimal
	Kind         MovementKind
	Counterparty string // worker name for handover/return, CounterpartyStore otherwise
	Note         string
	At           time.Time
}

// ValidKind reports whether k is one of the four recorded movement kinds.
func ValidKind(k MovementKind) bool {
	switch k {
	case KindEntry, KindHandover, KindReturn, KindWaste:
		return true
	}
	return false
}
