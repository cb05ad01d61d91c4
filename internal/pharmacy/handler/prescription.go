package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/curamed/curamed-backend/internal/pharmacy/service"
	"github.com/curamed/curamed-backend/pkg/httputil"
	"github.com/curamed/curamed-backend/pkg/logger"
)

// PrescriptionHandler handles prescription endpoints
type PrescriptionHandler struct {
	prescriptions *service.PrescriptionService
	dispenser     *service.DispenseService
	logger        *logger.Logger
}

// NewPrescriptionHandler creates a new prescription handler
func NewPrescriptionHandler(prescriptions *service.PrescriptionService, dispenser *service.DispenseService, log *logger.Logger) *PrescriptionHandler {
	return &PrescriptionHandler{
		prescriptions: prescriptions,
		dispenser:     dispenser,
		logger:        log,
	}
}

// Create registers a PENDING prescription
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreatePrescriptionInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	prescription, err := h.prescriptions.Create(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, prescription)
}

// Get returns a prescription with its items
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	prescriptionNo := chi.URLParam(r, "prescriptionNo")

	prescription, err := h.prescriptions.Get(r.Context(), prescriptionNo)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, prescription)
}

// Dispense dispenses a PENDING prescription in one atomic unit
func (h *PrescriptionHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	prescriptionNo := chi.URLParam(r, "prescriptionNo")

	prescription, err := h.dispenser.Dispense(r.Context(), prescriptionNo, httputil.GetActor(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, prescription)
}
