package service

import (
	"context"

	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/pkg/logger"
)

// PrescriptionItemInput is one requested line of a new prescription.
type PrescriptionItemInput struct {
	MedicineCode string `json:"medicine_code" validate:"required"`
	Quantity     int    `json:"quantity" validate:"required,gt=0"`
}

// CreatePrescriptionInput carries a new prescription. Stock is not checked
// at creation time; availability only matters when the prescription is
// dispensed.
type CreatePrescriptionInput struct {
	PrescriptionNo string                  `json:"prescription_no" validate:"required"`
	PatientName    *string                 `json:"patient_name,omitempty"`
	PrescriberName *string                 `json:"prescriber_name,omitempty"`
	Items          []PrescriptionItemInput `json:"items" validate:"required,min=1,dive"`
}

// PrescriptionService handles prescription intake and lookup. Dispensing is
// DispenseService's job.
type PrescriptionService struct {
	prescriptionRepo *repository.PrescriptionRepository
	logger           *logger.Logger
}

// NewPrescriptionService creates a new prescription service
func NewPrescriptionService(prescriptionRepo *repository.PrescriptionRepository, log *logger.Logger) *PrescriptionService {
	return &PrescriptionService{prescriptionRepo: prescriptionRepo, logger: log}
}

// Create registers a PENDING prescription with its ordered items.
func (s *PrescriptionService) Create(ctx context.Context, input CreatePrescriptionInput) (*repository.Prescription, error) {
	prescription := &repository.Prescription{
		PrescriptionNo: input.PrescriptionNo,
		PatientName:    input.PatientName,
		PrescriberName: input.PrescriberName,
		Status:         repository.StatusPending,
	}
	for i, item := range input.Items {
		prescription.Items = append(prescription.Items, &repository.PrescriptionItem{
			MedicineCode: item.MedicineCode,
			Quantity:     item.Quantity,
			Position:     i,
		})
	}

	if err := s.prescriptionRepo.Create(ctx, prescription); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_no", prescription.PrescriptionNo).
		Int("items", len(prescription.Items)).
		Msg("prescription created")
	return prescription, nil
}

// Get returns a prescription with its items by prescription number.
func (s *PrescriptionService) Get(ctx context.Context, prescriptionNo string) (*repository.Prescription, error) {
	return s.prescriptionRepo.GetByNumber(ctx, prescriptionNo)
}
