package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/pkg/logger"
)

// Stock status labels shown on medicine detail and list views.
const (
	StockStatusOut = "Out of Stock"
	StockStatusLow = "Low Stock"
	StockStatusOK  = "In Stock"
)

// UpsertMedicineInput carries the catalog fields of a medicine.
type UpsertMedicineInput struct {
	Code         string  `json:"code" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Form         *string `json:"form,omitempty"`
	Strength     *string `json:"strength,omitempty"`
	ReorderLevel int     `json:"reorder_level" validate:"gte=0"`
}

// UpdateBatchInput is a partial administrative correction of a batch. Nil
// fields are left untouched.
type UpdateBatchInput struct {
	Quantity   *int             `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	Unit       *string          `json:"unit,omitempty"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	ExpiryDate *time.Time       `json:"expiry_date,omitempty"`
}

// MedicineDetail is the full read model of one medicine: catalog fields plus
// the live batch list and the derived total.
type MedicineDetail struct {
	*repository.Medicine
	Batches       []*repository.Batch `json:"batches"`
	TotalQuantity int                 `json:"total_quantity"`
	StockStatus   string              `json:"stock_status"`
}

// ListMedicinesOptions selects which slice of the catalog a list call
// returns.
type ListMedicinesOptions struct {
	LowStockOnly   bool
	ExpiringInDays int
}

// MedicineService handles the medicine catalog and administrative batch
// corrections. Allocation-driven mutations live in DispenseService and
// ReplenishmentService.
type MedicineService struct {
	medicineRepo *repository.MedicineRepository
	batchRepo    *repository.BatchRepository
	movementRepo *repository.MovementRepository
	logger       *logger.Logger
}

// NewMedicineService creates a new medicine service
func NewMedicineService(
	medicineRepo *repository.MedicineRepository,
	batchRepo *repository.BatchRepository,
	movementRepo *repository.MovementRepository,
	log *logger.Logger,
) *MedicineService {
	return &MedicineService{
		medicineRepo: medicineRepo,
		batchRepo:    batchRepo,
		movementRepo: movementRepo,
		logger:       log,
	}
}

// UpsertMedicine creates or updates a medicine keyed by its code.
func (s *MedicineService) UpsertMedicine(ctx context.Context, input UpsertMedicineInput) (*repository.Medicine, error) {
	medicine := &repository.Medicine{
		Code:         input.Code,
		Name:         input.Name,
		Form:         input.Form,
		Strength:     input.Strength,
		ReorderLevel: input.ReorderLevel,
	}
	if err := s.medicineRepo.Upsert(ctx, medicine); err != nil {
		return nil, err
	}

	s.logger.Info().Str("medicine_code", medicine.Code).Msg("medicine upserted")
	return medicine, nil
}

// GetMedicine returns one medicine with its batches and derived stock state.
func (s *MedicineService) GetMedicine(ctx context.Context, code string) (*MedicineDetail, error) {
	medicine, err := s.medicineRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.ListByMedicine(ctx, medicine.ID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, b := range batches {
		total += b.Quantity
	}

	return &MedicineDetail{
		Medicine:      medicine,
		Batches:       batches,
		TotalQuantity: total,
		StockStatus:   stockStatus(total, medicine.ReorderLevel),
	}, nil
}

// ListMedicines returns the catalog with computed totals, optionally
// narrowed to low-stock medicines or medicines holding near-expiry batches.
func (s *MedicineService) ListMedicines(ctx context.Context, opts ListMedicinesOptions) ([]*repository.MedicineStock, error) {
	var (
		medicines []*repository.MedicineStock
		err       error
	)
	if opts.LowStockOnly {
		medicines, err = s.medicineRepo.ListLowStock(ctx)
	} else {
		medicines, err = s.medicineRepo.ListWithStock(ctx)
	}
	if err != nil {
		return nil, err
	}

	if opts.ExpiringInDays > 0 {
		expiring, err := s.batchRepo.ListExpiringWithin(ctx, opts.ExpiringInDays)
		if err != nil {
			return nil, err
		}

		codes := make(map[string]bool, len(expiring))
		for _, b := range expiring {
			codes[b.MedicineCode] = true
		}

		filtered := medicines[:0]
		for _, m := range medicines {
			if codes[m.Code] {
				filtered = append(filtered, m)
			}
		}
		medicines = filtered
	}

	return medicines, nil
}

// ListBatches returns the batch list of one medicine in intake order.
func (s *MedicineService) ListBatches(ctx context.Context, code string) ([]*repository.Batch, error) {
	medicine, err := s.medicineRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.batchRepo.ListByMedicine(ctx, medicine.ID)
}

// UpdateBatch applies an administrative correction to a batch. A quantity
// change is recorded as an adjust movement so the audit trail stays complete.
func (s *MedicineService) UpdateBatch(ctx context.Context, code, batchNo string, input UpdateBatchInput, actor string) (*repository.Batch, error) {
	medicine, err := s.medicineRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	batch, err := s.batchRepo.GetByBatchNo(ctx, medicine.ID, batchNo)
	if err != nil {
		return nil, err
	}

	delta := 0
	if input.Quantity != nil {
		delta = *input.Quantity - batch.Quantity
		batch.Quantity = *input.Quantity
	}
	if input.Unit != nil {
		batch.Unit = input.Unit
	}
	if input.UnitPrice != nil {
		batch.UnitPrice = *input.UnitPrice
	}
	if input.ExpiryDate != nil {
		batch.ExpiryDate = *input.ExpiryDate
	}

	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return nil, err
	}

	if delta != 0 {
		reference := "manual correction"
		if err := s.movementRepo.RecordDirect(ctx, &repository.StockMovement{
			MedicineCode: medicine.Code,
			BatchNo:      batch.BatchNo,
			MovementType: repository.MovementAdjust,
			Delta:        delta,
			Reference:    &reference,
			PerformedBy:  &actor,
		}); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("medicine_code", code).
		Str("batch_no", batchNo).
		Int("delta", delta).
		Str("actor", actor).
		Msg("batch updated")
	return batch, nil
}

// DeleteBatch removes a batch entirely. Remaining quantity is written off as
// an adjust movement before the row goes away.
func (s *MedicineService) DeleteBatch(ctx context.Context, code, batchNo, actor string) error {
	medicine, err := s.medicineRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	batch, err := s.batchRepo.GetByBatchNo(ctx, medicine.ID, batchNo)
	if err != nil {
		return err
	}

	if err := s.batchRepo.Delete(ctx, medicine.ID, batchNo); err != nil {
		return err
	}

	if batch.Quantity != 0 {
		reference := "batch removed"
		if err := s.movementRepo.RecordDirect(ctx, &repository.StockMovement{
			MedicineCode: medicine.Code,
			BatchNo:      batchNo,
			MovementType: repository.MovementAdjust,
			Delta:        -batch.Quantity,
			Reference:    &reference,
			PerformedBy:  &actor,
		}); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("medicine_code", code).
		Str("batch_no", batchNo).
		Str("actor", actor).
		Msg("batch deleted")
	return nil
}

// ListMovements returns the audit trail of one medicine, newest first.
func (s *MedicineService) ListMovements(ctx context.Context, code string) ([]*repository.StockMovement, error) {
	if _, err := s.medicineRepo.GetByCode(ctx, code); err != nil {
		return nil, err
	}
	return s.movementRepo.ListByMedicine(ctx, code)
}

func stockStatus(total, reorderLevel int) string {
	switch {
	case total <= 0:
		return StockStatusOut
	case total <= reorderLevel:
		return StockStatusLow
	default:
		return StockStatusOK
	}
}
