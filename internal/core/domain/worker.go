package domain

import "time"

// Worker is an identity eligible to receive custody of stock. Plan is
// free-form descriptive text with no ledger semantics.
type Worker struct {
	ID        string
	Name      string
	Plan      string
	CreatedAt time.Time
}
