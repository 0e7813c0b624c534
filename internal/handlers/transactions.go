package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/models"
	"github.com/ukydev/vehicle-marketplace/internal/sales"
)

// SalesService runs the transaction lifecycle.
type SalesService interface {
	CreateOffer(ctx context.Context, actor sales.Actor, req sales.OfferRequest) (*models.Transaction, error)
	Process(ctx context.Context, actor sales.Actor, id string) (*models.Transaction, error)
	Complete(ctx context.Context, actor sales.Actor, id, paymentReference string) (*models.Transaction, error)
	Cancel(ctx context.Context, actor sales.Actor, id, reason string) (*models.Transaction, error)
	Get(ctx context.Context, actor sales.Actor, id string) (*models.Transaction, error)
	List(ctx context.Context, actor sales.Actor, filter db.TransactionFilter) ([]models.Transaction, int64, error)
}

// TransactionHandler serves offers and their lifecycle.
type TransactionHandler struct {
	sales SalesService
}

// NewTransactionHandler creates a TransactionHandler.
func NewTransactionHandler(sales SalesService) *TransactionHandler {
	return &TransactionHandler{sales: sales}
}

// Create places an offer on a listing.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req sales.OfferRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txn, err := h.sales.CreateOffer(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// List returns the caller's transactions. Admins see all.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	filter := db.TransactionFilter{
		VehicleID: r.URL.Query().Get("vehicle_id"),
		Status:    models.TransactionStatus(r.URL.Query().Get("status")),
	}
	var err error
	if filter.Page, err = queryInt(r, "page"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txns, total, err := h.sales.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, limit := db.NormalizePage(filter.Page, filter.Limit)
	writeJSON(w, http.StatusOK, Page{Items: txns, Total: total, Page: page, Limit: limit})
}

// Get returns one transaction.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	txn, err := h.sales.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// Process moves a pending offer to processing.
func (h *TransactionHandler) Process(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	txn, err := h.sales.Process(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// Complete settles a processing transaction.
func (h *TransactionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req struct {
		PaymentReference string `json:"payment_reference"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txn, err := h.sales.Complete(r.Context(), actor, chi.URLParam(r, "id"), req.PaymentReference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// Cancel aborts an open transaction.
func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txn, err := h.sales.Cancel(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}
