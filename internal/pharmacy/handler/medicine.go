package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/curamed/curamed-backend/internal/pharmacy/service"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/httputil"
	"github.com/curamed/curamed-backend/pkg/logger"
)

// MedicineHandler handles medicine catalog and batch endpoints
type MedicineHandler struct {
	medicines   *service.MedicineService
	replenisher *service.ReplenishmentService
	logger      *logger.Logger
}

// NewMedicineHandler creates a new medicine handler
func NewMedicineHandler(medicines *service.MedicineService, replenisher *service.ReplenishmentService, log *logger.Logger) *MedicineHandler {
	return &MedicineHandler{
		medicines:   medicines,
		replenisher: replenisher,
		logger:      log,
	}
}

// Upsert creates or updates a medicine keyed by its code
func (h *MedicineHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var input service.UpsertMedicineInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	medicine, err := h.medicines.UpsertMedicine(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicine)
}

// List lists medicines with computed totals. Supports lowStock=true and
// expiringInDays=N filters.
func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := service.ListMedicinesOptions{
		LowStockOnly: r.URL.Query().Get("lowStock") == "true",
	}
	if raw := r.URL.Query().Get("expiringInDays"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			httputil.Error(w, errors.BadRequest("expiringInDays must be a non-negative integer"))
			return
		}
		opts.ExpiringInDays = days
	}

	medicines, err := h.medicines.ListMedicines(r.Context(), opts)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, medicines)
}

// Get returns one medicine with its batches
func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	detail, err := h.medicines.GetMedicine(r.Context(), code)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, detail)
}

// ListBatches lists the batches of one medicine in intake order
func (h *MedicineHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	batches, err := h.medicines.ListBatches(r.Context(), code)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// stockInRequest is a direct single-batch intake against an existing
// medicine.
type stockInRequest struct {
	BatchNo    string          `json:"batch_no" validate:"required"`
	Quantity   int             `json:"quantity" validate:"required,gt=0"`
	Unit       *string         `json:"unit,omitempty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	ExpiryDate *time.Time      `json:"expiry_date" validate:"required"`
}

// StockIn books a single batch against an existing medicine
func (h *MedicineHandler) StockIn(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req stockInRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	line := service.ShipmentLine{
		BatchNo:    req.BatchNo,
		Quantity:   req.Quantity,
		Unit:       req.Unit,
		UnitPrice:  req.UnitPrice,
		ExpiryDate: req.ExpiryDate,
	}

	batch, err := h.replenisher.StockIn(r.Context(), code, line, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// UpdateBatch applies an administrative correction to a batch
func (h *MedicineHandler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	batchNo := chi.URLParam(r, "batchNo")

	var input service.UpdateBatchInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.medicines.UpdateBatch(r.Context(), code, batchNo, input, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// DeleteBatch removes a batch
func (h *MedicineHandler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	batchNo := chi.URLParam(r, "batchNo")

	if err := h.medicines.DeleteBatch(r.Context(), code, batchNo, httputil.GetActor(r.Context())); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// ListMovements returns the stock movement audit trail of one medicine
func (h *MedicineHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	movements, err := h.medicines.ListMovements(r.Context(), code)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, movements)
}
