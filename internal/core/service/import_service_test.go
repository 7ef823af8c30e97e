package service

import (
	"context"
	"errors"
	"testing"

	"github.com/egms/storeledger/internal/core/domain"
)

func TestImportMovements_PerRowPolicy(t *testing.T) {
	db := newMockDatabaseRepo()
	svc := NewLedgerService(db, nil, nil)
	seedWorker(t, db, "Ali")
	ctx := context.Background()

	rows := []ImportRow{
		{Item: "Cement", Unit: "bag", Kind: domain.KindEntry, Qty: qty(t, "100")},
		{Item: "Cement", Worker: "Ali", Kind: domain.KindHandover, Qty: qty(t, "30")},
		{Item: "Cement", Worker: "Ali", Kind: domain.KindHandover, Qty: qty(t, "500")}, // overdraws
		{Item: "Cement", Kind: domain.KindWaste, Qty: qty(t, "0"), Note: "typo row"},   // invalid qty
		{Item: "Cement", Kind: "teleport", Qty: qty(t, "1")},                           // unknown kind
		{Item: "Cement", Kind: domain.KindWaste, Qty: qty(t, "5"), Note: "spillage"},
	}

	results := svc.ImportMovements(ctx, rows)
	if len(results) != len(rows) {
		t.Fatalf("expected %d results, got %d", len(rows), len(results))
	}

	wantErr := []bool{false, false, true, true, true, false}
	for i, res := range results {
		if res.Row != i {
			t.Errorf("result %d carries row %d", i, res.Row)
		}
		if (res.Err != nil) != wantErr[i] {
			t.Errorf("row %d: expected err=%v, got %v", i, wantErr[i], res.Err)
		}
	}
	if !errors.Is(results[2].Err, domain.ErrInsufficientStock) {
		t.Errorf("row 2: expected ErrInsufficientStock, got %v", results[2].Err)
	}
	if !errors.Is(results[3].Err, domain.ErrInvalidQuantity) {
		t.Errorf("row 3: expected ErrInvalidQuantity, got %v", results[3].Err)
	}

	// Good rows around the bad ones were applied: 100 − 30 − 5.
	item, err := db.GetItem(ctx, "Cement")
	if err != nil {
		t.Fatal(err)
	}
	if !item.OnHand.Equal(qty(t, "65")) {
		t.Errorf("expected on-hand 65 after import, got %s", item.OnHand)
	}
}

func TestImportMovements_EmptyBatch(t *testing.T) {
	svc := NewLedgerService(newMockDatabaseRepo(), nil, nil)
	results := svc.ImportMovements(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
