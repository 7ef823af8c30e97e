package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Quantities are stored as decimal strings and timestamps as unix
// nanoseconds so the same statements run on MySQL and SQLite unchanged.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id         VARCHAR(36)  PRIMARY KEY,
		name       VARCHAR(100) NOT NULL UNIQUE,
		unit       VARCHAR(50)  NOT NULL,
		on_hand    VARCHAR(64)  NOT NULL,
		version    BIGINT       NOT NULL,
		created_at BIGINT       NOT NULL,
		updated_at BIGINT       NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS workers (
		id         VARCHAR(36)  PRIMARY KEY,
		name       VARCHAR(100) NOT NULL UNIQUE,
		plan       VARCHAR(500) NOT NULL,
		created_at BIGINT       NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS movements (
		id           VARCHAR(36)  PRIMARY KEY,
		item_id      VARCHAR(36)  NOT NULL,
		kind         VARCHAR(20)  NOT NULL,
		qty          VARCHAR(64)  NOT NULL,
		counterparty VARCHAR(100) NOT NULL,
		note         VARCHAR(500) NOT NULL,
		at           BIGINT       NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS open_custody (
		item_id     VARCHAR(36) NOT NULL,
		worker_id   VARCHAR(36) NOT NULL,
		outstanding VARCHAR(64) NOT NULL,
		updated_at  BIGINT      NOT NULL,
		PRIMARY KEY (item_id, worker_id)
	)`,
}

// EnsureSchema creates the ledger tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	// MySQL has no IF NOT EXISTS for indexes; a duplicate-index error on a
	// second start is expected and harmless.
	_, _ = db.ExecContext(ctx, `CREATE INDEX idx_movements_item_at ON movements (item_id, at)`)
	return nil
}
