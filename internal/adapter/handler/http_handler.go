package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egms/storeledger/internal/core/domain"
	"github.com/egms/storeledger/internal/core/service"
	"github.com/egms/storeledger/internal/port"
)

type HTTPHandler struct {
	ledger  *service.LedgerService
	workers *service.WorkerRegistry
	logger  *zap.Logger
}

func NewHTTPHandler(ledger *service.LedgerService, workers *service.WorkerRegistry, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{ledger: ledger, workers: workers, logger: logger}
}

type restockRequest struct {
	Name string          `json:"name"`
	Unit string          `json:"unit"`
	Qty  decimal.Decimal `json:"qty"`
}

type movementRequest struct {
	Item   string          `json:"item"`
	Worker string          `json:"worker"`
	Qty    decimal.Decimal `json:"qty"`
}

type wasteRequest struct {
	Item   string          `json:"item"`
	Qty    decimal.Decimal `json:"qty"`
	Reason string          `json:"reason"`
}

type workerRequest struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

type importRowRequest struct {
	Item   string          `json:"item"`
	Unit   string          `json:"unit"`
	Worker string          `json:"worker"`
	Kind   string          `json:"kind"`
	Qty    decimal.Decimal `json:"qty"`
	Note   string          `json:"note"`
}

type importRequest struct {
	Rows []importRowRequest `json:"rows"`
}

type itemResponse struct {
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	OnHand string `json:"on_hand"`
}

type workerResponse struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

type movementResponse struct {
	ID           string `json:"id"`
	Item         string `json:"item"`
	Kind         string `json:"kind"`
	Qty          string `json:"qty"`
	Counterparty string `json:"counterparty"`
	Note         string `json:"note,omitempty"`
	At           string `json:"at"`
}

type custodyResponse struct {
	Item        string `json:"item"`
	Worker      string `json:"worker"`
	Outstanding string `json:"outstanding"`
}

type importRowResponse struct {
	Row   int    `json:"row"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func itemJSON(item domain.Item) itemResponse {
	return itemResponse{Name: item.Name, Unit: item.Unit, OnHand: item.OnHand.String()}
}

func (h *HTTPHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "item name required")
		return
	}
	item, err := h.ledger.RegisterOrRestock(r.Context(), req.Name, req.Unit, req.Qty)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemJSON(item))
}

func (h *HTTPHandler) Handover(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Item == "" || req.Worker == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "item and worker required")
		return
	}
	item, err := h.ledger.RecordHandover(r.Context(), req.Item, req.Worker, req.Qty)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemJSON(item))
}

func (h *HTTPHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Item == "" || req.Worker == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "item and worker required")
		return
	}
	item, err := h.ledger.RecordReturn(r.Context(), req.Item, req.Worker, req.Qty)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemJSON(item))
}

func (h *HTTPHandler) Waste(w http.ResponseWriter, r *http.Request) {
	var req wasteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Item == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "item required")
		return
	}
	item, err := h.ledger.RecordWaste(r.Context(), req.Item, req.Qty, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemJSON(item))
}

func (h *HTTPHandler) Balance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b, err := h.ledger.GetBalance(r.Context(), name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"qty": b.Qty.String(), "unit": b.Unit})
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.Items(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := []itemResponse{}
	for item := range items {
		out = append(out, itemJSON(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req workerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "worker name required")
		return
	}
	worker, err := h.workers.Register(r.Context(), req.Name, req.Plan)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workerResponse{Name: worker.Name, Plan: worker.Plan})
}

func (h *HTTPHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := h.workers.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workerResponse{Name: worker.Name, Plan: worker.Plan})
}

func (h *HTTPHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.workers.Workers(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := []workerResponse{}
	for worker := range workers {
		out = append(out, workerResponse{Name: worker.Name, Plan: worker.Plan})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Movements(w http.ResponseWriter, r *http.Request) {
	f := port.MovementFilter{
		ItemName:   r.URL.Query().Get("item"),
		WorkerName: r.URL.Query().Get("worker"),
		Kind:       domain.MovementKind(r.URL.Query().Get("kind")),
	}
	if f.Kind != "" && !domain.ValidKind(f.Kind) {
		writeError(w, http.StatusBadRequest, "bad_request", "unknown movement kind")
		return
	}
	history, err := h.ledger.History(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := []movementResponse{}
	for _, mv := range history {
		out = append(out, movementResponse{
			ID:           mv.ID,
			Item:         mv.ItemName,
			Kind:         string(mv.Kind),
			Qty:          mv.Qty.String(),
			Counterparty: mv.Counterparty,
			Note:         mv.Note,
			At:           mv.At.Format("2006-01-02T15:04:05.000000000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) OpenCustody(w http.ResponseWriter, r *http.Request) {
	item := r.URL.Query().Get("item")
	worker := r.URL.Query().Get("worker")
	if (item == "") == (worker == "") {
		writeError(w, http.StatusBadRequest, "bad_request", "exactly one of item or worker required")
		return
	}
	var (
		custody func(func(domain.OpenCustody) bool)
		err     error
	)
	if worker != "" {
		custody, err = h.ledger.OpenCustodyForWorker(r.Context(), worker)
	} else {
		custody, err = h.ledger.OpenCustodyForItem(r.Context(), item)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := []custodyResponse{}
	for c := range custody {
		out = append(out, custodyResponse{
			Item:        c.ItemName,
			Worker:      c.WorkerName,
			Outstanding: c.Outstanding.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	rows := make([]service.ImportRow, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = service.ImportRow{
			Item:   row.Item,
			Unit:   row.Unit,
			Worker: row.Worker,
			Kind:   domain.MovementKind(row.Kind),
			Qty:    row.Qty,
			Note:   row.Note,
		}
	}
	results := h.ledger.ImportMovements(r.Context(), rows)
	out := make([]importRowResponse, len(results))
	for i, res := range results {
		out[i] = importRowResponse{Row: res.Row, OK: res.Err == nil}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownItem):
		writeError(w, http.StatusNotFound, "unknown_item", err.Error())
	case errors.Is(err, domain.ErrUnknownWorker):
		writeError(w, http.StatusNotFound, "unknown_worker", err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, domain.ErrUnitMismatch):
		writeError(w, http.StatusBadRequest, "unit_mismatch", err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, domain.ErrNoOpenCustody):
		writeError(w, http.StatusConflict, "no_open_custody", err.Error())
	case errors.Is(err, domain.ErrExcessReturn):
		writeError(w, http.StatusConflict, "excess_return", err.Error())
	case errors.Is(err, domain.ErrDuplicateWorker):
		writeError(w, http.StatusConflict, "duplicate_worker", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Status: "error", Code: code, Message: message})
}
