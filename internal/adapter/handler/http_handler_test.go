package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/egms/storeledger/internal/adapter/storage"
	"github.com/egms/storeledger/internal/core/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := storage.EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adapter := storage.NewSQLAdapter(db)
	ledger := service.NewLedgerService(adapter, nil, nil)
	workers := service.NewWorkerRegistry(adapter, nil)
	srv := httptest.NewServer(NewRouter(NewHTTPHandler(ledger, workers, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAPI_RestockAndBalance(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/items/restock", map[string]any{
		"name": "Cement", "unit": "bag", "qty": "100",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var item struct {
		Name   string `json:"name"`
		Unit   string `json:"unit"`
		OnHand string `json:"on_hand"`
	}
	decode(t, resp, &item)
	if item.OnHand != "100" || item.Unit != "bag" {
		t.Errorf("unexpected item response: %+v", item)
	}

	var balance struct {
		Qty  string `json:"qty"`
		Unit string `json:"unit"`
	}
	resp = getJSON(t, srv.URL+"/api/v1/items/Cement/balance", &balance)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if balance.Qty != "100" || balance.Unit != "bag" {
		t.Errorf("unexpected balance: %+v", balance)
	}
}

func TestAPI_Balance_UnknownItem(t *testing.T) {
	srv := newTestServer(t)

	var apiErr struct {
		Code string `json:"code"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/items/Ghost/balance", &apiErr)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if apiErr.Code != "unknown_item" {
		t.Errorf("expected code unknown_item, got %q", apiErr.Code)
	}
}

func TestAPI_HandoverFlow(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/api/v1/items/restock", map[string]any{"name": "Cement", "unit": "bag", "qty": "100"}).Body.Close()
	resp := postJSON(t, srv.URL+"/api/v1/workers", map[string]any{"name": "Ali", "plan": "mason"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/handovers", map[string]any{"item": "Cement", "worker": "Ali", "qty": "30"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handover: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var custody []struct {
		Item        string `json:"item"`
		Worker      string `json:"worker"`
		Outstanding string `json:"outstanding"`
	}
	resp = getJSON(t, srv.URL+"/api/v1/custody?worker=Ali", &custody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("custody: expected 200, got %d", resp.StatusCode)
	}
	if len(custody) != 1 || custody[0].Outstanding != "30" {
		t.Errorf("unexpected custody: %+v", custody)
	}

	// Overdraw is a conflict, not a server error.
	var apiErr struct {
		Code string `json:"code"`
	}
	resp = postJSON(t, srv.URL+"/api/v1/handovers", map[string]any{"item": "Cement", "worker": "Ali", "qty": "500"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	decode(t, resp, &apiErr)
	if apiErr.Code != "insufficient_stock" {
		t.Errorf("expected code insufficient_stock, got %q", apiErr.Code)
	}
}

func TestAPI_DuplicateWorkerConflict(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/api/v1/workers", map[string]any{"name": "Ali"}).Body.Close()
	resp := postJSON(t, srv.URL+"/api/v1/workers", map[string]any{"name": "Ali"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAPI_CustodyRequiresExactlyOneFilter(t *testing.T) {
	srv := newTestServer(t)

	for _, url := range []string{
		srv.URL + "/api/v1/custody",
		srv.URL + "/api/v1/custody?item=Cement&worker=Ali",
	} {
		resp := getJSON(t, url, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", url, resp.StatusCode)
		}
	}
}

func TestAPI_MovementsFilter(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/api/v1/items/restock", map[string]any{"name": "Cement", "unit": "bag", "qty": "50"}).Body.Close()
	postJSON(t, srv.URL+"/api/v1/waste", map[string]any{"item": "Cement", "qty": "5", "reason": "rain damage"}).Body.Close()

	var movements []struct {
		Kind string `json:"kind"`
		Note string `json:"note"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/movements?kind=waste", &movements)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(movements) != 1 || movements[0].Note != "rain damage" {
		t.Errorf("unexpected movements: %+v", movements)
	}

	resp = getJSON(t, srv.URL+"/api/v1/movements?kind=teleport", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown kind, got %d", resp.StatusCode)
	}
}

func TestAPI_ImportReportsPerRow(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/import", map[string]any{
		"rows": []map[string]any{
			{"item": "Cement", "unit": "bag", "kind": "entry", "qty": "100"},
			{"item": "Cement", "kind": "waste", "qty": "500", "note": "flood"},
			{"item": "Cement", "kind": "waste", "qty": "10", "note": "flood"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var results []struct {
		Row   int    `json:"row"`
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	decode(t, resp, &results)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK || results[1].OK || !results[2].OK {
		t.Errorf("unexpected per-row outcomes: %+v", results)
	}
	if results[1].Error == "" {
		t.Error("rejected row must carry an error message")
	}

	var balance struct {
		Qty string `json:"qty"`
	}
	getJSON(t, srv.URL+"/api/v1/items/Cement/balance", &balance)
	if balance.Qty != "90" {
		t.Errorf("expected balance 90 after import, got %s", balance.Qty)
	}
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer(t)
	resp := getJSON(t, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
