package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/egms/storeledger/internal/core/domain"
	"github.com/egms/storeledger/internal/port"
)

// ErrOptimisticLock is returned when a guarded update loses the race against
// a concurrent movement on the same item and the retry budget is exhausted.
var ErrOptimisticLock = errors.New("optimistic lock conflict")

const applyRetries = 5

// SQLAdapter implements port.DatabaseRepository on database/sql. It works
// unchanged against MySQL and SQLite: every statement uses ? placeholders,
// quantities travel as decimal strings and timestamps as unix nanoseconds.
//
// Concurrency control is per item: each movement re-reads the item row inside
// its transaction and commits through an UPDATE guarded by the version
// column. A lost race rolls back and retries with fresh state, so two
// concurrent handovers can never both pass the balance check against the
// same snapshot.
type SQLAdapter struct {
	db *sql.DB
}

func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

var _ port.DatabaseRepository = (*SQLAdapter)(nil)

func (a *SQLAdapter) ApplyEntry(ctx context.Context, unit string, mv domain.Movement) (domain.Item, error) {
	var out domain.Item
	err := a.withRetry(func() error {
		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		item, err := getItemTx(ctx, tx, mv.ItemName)
		switch {
		case errors.Is(err, domain.ErrUnknownItem):
			if unit == "" {
				return fmt.Errorf("%w: new item %q needs a unit", domain.ErrUnitMismatch, mv.ItemName)
			}
			item, err = createItemTx(ctx, tx, mv.ItemName, unit, mv.Qty, mv.At)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if unit != "" && unit != item.Unit {
				return fmt.Errorf("%w: %q has unit %q, got %q", domain.ErrUnitMismatch, item.Name, item.Unit, unit)
			}
			item, err = updateOnHandTx(ctx, tx, item, item.OnHand.Add(mv.Qty), mv.At)
			if err != nil {
				return err
			}
		}

		if err := insertMovementTx(ctx, tx, item.ID, mv); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		out = item
		return nil
	})
	return out, err
}

func (a *SQLAdapter) ApplyHandover(ctx context.Context, mv domain.Movement) (domain.Item, error) {
	var out domain.Item
	err := a.withRetry(func() error {
		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		item, err := getItemTx(ctx, tx, mv.ItemName)
		if err != nil {
			return err
		}
		worker, err := getWorkerTx(ctx, tx, mv.Counterparty)
		if err != nil {
			return err
		}
		if item.OnHand.LessThan(mv.Qty) {
			return fmt.Errorf("%w: %s on hand, %s requested", domain.ErrInsufficientStock, item.OnHand, mv.Qty)
		}

		item, err = updateOnHandTx(ctx, tx, item, item.OnHand.Sub(mv.Qty), mv.At)
		if err != nil {
			return err
		}
		outstanding, ok, err := getCustodyTx(ctx, tx, item.ID, worker.ID)
		if err != nil {
			return err
		}
		if ok {
			err = setCustodyTx(ctx, tx, item.ID, worker.ID, outstanding.Add(mv.Qty), mv.At)
		} else {
			err = insertCustodyTx(ctx, tx, item.ID, worker.ID, mv.Qty, mv.At)
		}
		if err != nil {
			return err
		}
		if err := insertMovementTx(ctx, tx, item.ID, mv); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		out = item
		return nil
	})
	return out, err
}

func (a *SQLAdapter) ApplyReturn(ctx context.Context, mv domain.Movement) (domain.Item, error) {
	var out domain.Item
	err := a.withRetry(func() error {
		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		item, err := getItemTx(ctx, tx, mv.ItemName)
		if err != nil {
			return err
		}
		worker, err := getWorkerTx(ctx, tx, mv.Counterparty)
		if err != nil {
			return err
		}
		outstanding, ok, err := getCustodyTx(ctx, tx, item.ID, worker.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s has no custody of %s", domain.ErrNoOpenCustody, worker.Name, item.Name)
		}
		if outstanding.LessThan(mv.Qty) {
			return fmt.Errorf("%w: %s outstanding, %s returned", domain.ErrExcessReturn, outstanding, mv.Qty)
		}

		item, err = updateOnHandTx(ctx, tx, item, item.OnHand.Add(mv.Qty), mv.At)
		if err != nil {
			return err
		}
		remaining := outstanding.Sub(mv.Qty)
		if remaining.IsZero() {
			err = deleteCustodyTx(ctx, tx, item.ID, worker.ID)
		} else {
			err = setCustodyTx(ctx, tx, item.ID, worker.ID, remaining, mv.At)
		}
		if err != nil {
			return err
		}
		if err := insertMovementTx(ctx, tx, item.ID, mv); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		out = item
		return nil
	})
	return out, err
}

func (a *SQLAdapter) ApplyWaste(ctx context.Context, mv domain.Movement) (domain.Item, error) {
	var out domain.Item
	err := a.withRetry(func() error {
		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		item, err := getItemTx(ctx, tx, mv.ItemName)
		if err != nil {
			return err
		}
		if item.OnHand.LessThan(mv.Qty) {
			return fmt.Errorf("%w: %s on hand, %s wasted", domain.ErrInsufficientStock, item.OnHand, mv.Qty)
		}

		item, err = updateOnHandTx(ctx, tx, item, item.OnHand.Sub(mv.Qty), mv.At)
		if err != nil {
			return err
		}
		if err := insertMovementTx(ctx, tx, item.ID, mv); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		out = item
		return nil
	})
	return out, err
}

func (a *SQLAdapter) GetItem(ctx context.Context, name string) (domain.Item, error) {
	return scanItem(a.db.QueryRowContext(ctx, `
		SELECT id, name, unit, on_hand, version, created_at, updated_at
		FROM items WHERE name = ?`, name))
}

func (a *SQLAdapter) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, unit, on_hand, version, created_at, updated_at
		FROM items ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (a *SQLAdapter) CreateWorker(ctx context.Context, w domain.Worker) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO workers (id, name, plan, created_at) VALUES (?, ?, ?, ?)`,
		w.ID, w.Name, w.Plan, w.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		// The unique index on name is the duplicate check; no racy pre-read.
		return fmt.Errorf("%w: %q", domain.ErrDuplicateWorker, w.Name)
	}
	if err != nil {
		return fmt.Errorf("insert worker: %w", err)
	}
	return nil
}

func (a *SQLAdapter) GetWorker(ctx context.Context, name string) (domain.Worker, error) {
	return scanWorker(a.db.QueryRowContext(ctx, `
		SELECT id, name, plan, created_at FROM workers WHERE name = ?`, name))
}

func (a *SQLAdapter) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, plan, created_at FROM workers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var workers []domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func (a *SQLAdapter) ListMovements(ctx context.Context, f port.MovementFilter) ([]domain.Movement, error) {
	query := `
		SELECT m.id, m.item_id, i.name, m.kind, m.qty, m.counterparty, m.note, m.at
		FROM movements m JOIN items i ON i.id = m.item_id`
	var (
		conds []string
		args  []any
	)
	if f.ItemName != "" {
		conds = append(conds, "i.name = ?")
		args = append(args, f.ItemName)
	}
	if f.WorkerName != "" {
		conds = append(conds, "m.counterparty = ? AND m.kind IN (?, ?)")
		args = append(args, f.WorkerName, string(domain.KindHandover), string(domain.KindReturn))
	}
	if f.Kind != "" {
		conds = append(conds, "m.kind = ?")
		args = append(args, string(f.Kind))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY m.at ASC, m.id ASC"

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var movements []domain.Movement
	for rows.Next() {
		var (
			mv  domain.Movement
			qty string
			at  int64
		)
		if err := rows.Scan(&mv.ID, &mv.ItemID, &mv.ItemName, &mv.Kind, &qty, &mv.Counterparty, &mv.Note, &at); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		if mv.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse movement qty: %w", err)
		}
		mv.At = time.Unix(0, at).UTC()
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func (a *SQLAdapter) ListOpenCustody(ctx context.Context, f port.CustodyFilter) ([]domain.OpenCustody, error) {
	query := `
		SELECT c.item_id, i.name, c.worker_id, w.name, c.outstanding, c.updated_at
		FROM open_custody c
		JOIN items i ON i.id = c.item_id
		JOIN workers w ON w.id = c.worker_id`
	var args []any
	switch {
	case f.ItemName != "" && f.WorkerName != "":
		query += " WHERE i.name = ? AND w.name = ?"
		args = append(args, f.ItemName, f.WorkerName)
	case f.ItemName != "":
		query += " WHERE i.name = ?"
		args = append(args, f.ItemName)
	case f.WorkerName != "":
		query += " WHERE w.name = ?"
		args = append(args, f.WorkerName)
	}
	query += " ORDER BY i.name, w.name"

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query open custody: %w", err)
	}
	defer rows.Close()

	var custody []domain.OpenCustody
	for rows.Next() {
		var (
			c           domain.OpenCustody
			outstanding string
			at          int64
		)
		if err := rows.Scan(&c.ItemID, &c.ItemName, &c.WorkerID, &c.WorkerName, &outstanding, &at); err != nil {
			return nil, fmt.Errorf("scan open custody: %w", err)
		}
		if c.Outstanding, err = decimal.NewFromString(outstanding); err != nil {
			return nil, fmt.Errorf("parse outstanding: %w", err)
		}
		c.UpdatedAt = time.Unix(0, at).UTC()
		custody = append(custody, c)
	}
	return custody, rows.Err()
}

// Rebuild recomputes every on-hand balance and open-custody row by replaying
// the movement log in timestamp order, all inside one transaction. The
// materialized aggregates are a cache of the log; this is their defined
// rebuild procedure.
func (a *SQLAdapter) Rebuild(ctx context.Context) (port.RebuildReport, error) {
	var report port.RebuildReport

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	workerIDs := map[string]string{} // name -> id
	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM workers`)
	if err != nil {
		return report, fmt.Errorf("query workers: %w", err)
	}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return report, fmt.Errorf("scan worker: %w", err)
		}
		workerIDs[name] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}

	type pair struct{ itemID, workerID string }
	onHand := map[string]decimal.Decimal{}
	outstanding := map[pair]decimal.Decimal{}

	rows, err = tx.QueryContext(ctx, `
		SELECT item_id, kind, qty, counterparty FROM movements ORDER BY at ASC, id ASC`)
	if err != nil {
		return report, fmt.Errorf("query movements: %w", err)
	}
	for rows.Next() {
		var itemID, kind, qtyStr, counterparty string
		if err := rows.Scan(&itemID, &kind, &qtyStr, &counterparty); err != nil {
			rows.Close()
			return report, fmt.Errorf("scan movement: %w", err)
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			rows.Close()
			return report, fmt.Errorf("parse movement qty: %w", err)
		}
		report.Movements++
		switch domain.MovementKind(kind) {
		case domain.KindEntry:
			onHand[itemID] = onHand[itemID].Add(qty)
		case domain.KindWaste:
			onHand[itemID] = onHand[itemID].Sub(qty)
		case domain.KindHandover:
			onHand[itemID] = onHand[itemID].Sub(qty)
			p := pair{itemID, workerIDs[counterparty]}
			outstanding[p] = outstanding[p].Add(qty)
		case domain.KindReturn:
			onHand[itemID] = onHand[itemID].Add(qty)
			p := pair{itemID, workerIDs[counterparty]}
			outstanding[p] = outstanding[p].Sub(qty)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}

	now := time.Now().UTC().UnixNano()
	for itemID, qty := range onHand {
		if _, err := tx.ExecContext(ctx, `
			UPDATE items SET on_hand = ?, version = version + 1, updated_at = ?
			WHERE id = ?`, qty.String(), now, itemID); err != nil {
			return report, fmt.Errorf("rewrite balance: %w", err)
		}
		report.Items++
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM open_custody`); err != nil {
		return report, fmt.Errorf("clear open custody: %w", err)
	}
	for p, qty := range outstanding {
		if qty.IsZero() {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO open_custody (item_id, worker_id, outstanding, updated_at)
			VALUES (?, ?, ?, ?)`, p.itemID, p.workerID, qty.String(), now); err != nil {
			return report, fmt.Errorf("rewrite open custody: %w", err)
		}
		report.CustodyRows++
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("commit: %w", err)
	}
	return report, nil
}

func (a *SQLAdapter) withRetry(fn func() error) error {
	var err error
	for i := 0; i < applyRetries; i++ {
		err = fn()
		if !errors.Is(err, ErrOptimisticLock) {
			return err
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		item                 domain.Item
		onHand               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&item.ID, &item.Name, &item.Unit, &onHand, &item.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.ErrUnknownItem
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("scan item: %w", err)
	}
	if item.OnHand, err = decimal.NewFromString(onHand); err != nil {
		return domain.Item{}, fmt.Errorf("parse on-hand qty: %w", err)
	}
	item.CreatedAt = time.Unix(0, createdAt).UTC()
	item.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return item, nil
}

func scanWorker(row rowScanner) (domain.Worker, error) {
	var (
		w         domain.Worker
		createdAt int64
	)
	err := row.Scan(&w.ID, &w.Name, &w.Plan, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Worker{}, domain.ErrUnknownWorker
	}
	if err != nil {
		return domain.Worker{}, fmt.Errorf("scan worker: %w", err)
	}
	w.CreatedAt = time.Unix(0, createdAt).UTC()
	return w, nil
}

func getItemTx(ctx context.Context, tx *sql.Tx, name string) (domain.Item, error) {
	return scanItem(tx.QueryRowContext(ctx, `
		SELECT id, name, unit, on_hand, version, created_at, updated_at
		FROM items WHERE name = ?`, name))
}

func getWorkerTx(ctx context.Context, tx *sql.Tx, name string) (domain.Worker, error) {
	return scanWorker(tx.QueryRowContext(ctx, `
		SELECT id, name, plan, created_at FROM workers WHERE name = ?`, name))
}

func createItemTx(ctx context.Context, tx *sql.Tx, name, unit string, qty decimal.Decimal, at time.Time) (domain.Item, error) {
	item := domain.Item{
		ID:        uuid.NewString(),
		Name:      name,
		Unit:      unit,
		OnHand:    qty,
		Version:   0,
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO items (id, name, unit, on_hand, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		item.ID, item.Name, item.Unit, item.OnHand.String(),
		item.CreatedAt.UnixNano(), item.UpdatedAt.UnixNano())
	if isUniqueViolation(err) {
		// Two first intakes of the same name raced; the loser reruns and
		// finds the winner's row, turning its create into a restock.
		return domain.Item{}, ErrOptimisticLock
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

func insertMovementTx(ctx context.Context, tx *sql.Tx, itemID string, mv domain.Movement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO movements (id, item_id, kind, qty, counterparty, note, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mv.ID, itemID, string(mv.Kind), mv.Qty.String(), mv.Counterparty, mv.Note, mv.At.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-index violation: MySQL
// error 1062, or SQLite's constraint message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// updateOnHandTx commits the new balance through the version guard. A lost
// race reports ErrOptimisticLock so the whole movement can rerun against
// fresh state.
func updateOnHandTx(ctx context.Context, tx *sql.Tx, item domain.Item, newOnHand decimal.Decimal, at time.Time) (domain.Item, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE items SET on_hand = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		newOnHand.String(), at.UTC().UnixNano(), item.ID, item.Version)
	if err != nil {
		return domain.Item{}, fmt.Errorf("update on-hand qty: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Item{}, ErrOptimisticLock
	}
	item.OnHand = newOnHand
	item.Version++
	item.UpdatedAt = at.UTC()
	return item, nil
}

func getCustodyTx(ctx context.Context, tx *sql.Tx, itemID, workerID string) (decimal.Decimal, bool, error) {
	var outstanding string
	err := tx.QueryRowContext(ctx, `
		SELECT outstanding FROM open_custody WHERE item_id = ? AND worker_id = ?`,
		itemID, workerID).Scan(&outstanding)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("query custody: %w", err)
	}
	qty, err := decimal.NewFromString(outstanding)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse outstanding: %w", err)
	}
	return qty, true, nil
}

func insertCustodyTx(ctx context.Context, tx *sql.Tx, itemID, workerID string, qty decimal.Decimal, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO open_custody (item_id, worker_id, outstanding, updated_at)
		VALUES (?, ?, ?, ?)`, itemID, workerID, qty.String(), at.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert custody: %w", err)
	}
	return nil
}

func setCustodyTx(ctx context.Context, tx *sql.Tx, itemID, workerID string, qty decimal.Decimal, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE open_custody SET outstanding = ?, updated_at = ?
		WHERE item_id = ? AND worker_id = ?`,
		qty.String(), at.UTC().UnixNano(), itemID, workerID)
	if err != nil {
		return fmt.Errorf("update custody: %w", err)
	}
	return nil
}

func deleteCustodyTx(ctx context.Context, tx *sql.Tx, itemID, workerID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM open_custody WHERE item_id = ? AND worker_id = ?`, itemID, workerID)
	if err != nil {
		return fmt.Errorf("delete custody: %w", err)
	}
	return nil
}
