package service

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/curamed/curamed-backend/internal/pharmacy/allocation"
	"github.com/curamed/curamed-backend/internal/pharmacy/events"
	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/pkg/database"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/logger"
)

// DefaultCommitRetries bounds how many times a dispense re-plans after a
// commit-time conflict before giving up.
const DefaultCommitRetries = 3

// DispenseService converts a prescription's requested quantities into
// committed batch deductions. All deductions across all referenced
// medicines, plus the status flip, commit as one transaction; a failed
// attempt leaves the prescription PENDING and the ledger untouched.
type DispenseService struct {
	db               *database.DB
	medicineRepo     *repository.MedicineRepository
	batchRepo        *repository.BatchRepository
	prescriptionRepo *repository.PrescriptionRepository
	movementRepo     *repository.MovementRepository
	publisher        *events.PharmacyEventPublisher
	logger           *logger.Logger
	commitRetries    int
}

// NewDispenseService creates a new dispense service
func NewDispenseService(
	db *database.DB,
	medicineRepo *repository.MedicineRepository,
	batchRepo *repository.BatchRepository,
	prescriptionRepo *repository.PrescriptionRepository,
	movementRepo *repository.MovementRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *DispenseService {
	return &DispenseService{
		db:               db,
		medicineRepo:     medicineRepo,
		batchRepo:        batchRepo,
		prescriptionRepo: prescriptionRepo,
		movementRepo:     movementRepo,
		publisher:        publisher,
		logger:           log,
		commitRetries:    DefaultCommitRetries,
	}
}

// WithCommitRetries overrides the bounded retry count
func (s *DispenseService) WithCommitRetries(n int) *DispenseService {
	if n > 0 {
		s.commitRetries = n
	}
	return s
}

// Dispense dispenses the named prescription. The plan is computed under row
// locks on every referenced medicine and applied in the same transaction, so
// concurrent dispenses against overlapping medicines serialize and each
// commit reflects fresh state. Serialization failures retry the whole
// plan-then-commit cycle from scratch.
func (s *DispenseService) Dispense(ctx context.Context, prescriptionNo, actor string) (*repository.Prescription, error) {
	prescription, err := s.prescriptionRepo.GetByNumber(ctx, prescriptionNo)
	if err != nil {
		return nil, err
	}

	if prescription.Status != repository.StatusPending {
		return nil, errors.AlreadyProcessed("prescription " + prescriptionNo)
	}

	if len(prescription.Items) == 0 {
		return nil, errors.BadRequest("prescription has no items")
	}
	for _, item := range prescription.Items {
		if item.Quantity <= 0 {
			return nil, errors.BadRequest("prescription item quantity must be positive")
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.commitRetries; attempt++ {
		err := s.planAndCommit(ctx, prescription, actor)
		if err == nil {
			s.logger.Info().
				Str("prescription_no", prescriptionNo).
				Str("actor", actor).
				Int("attempt", attempt).
				Msg("prescription dispensed")

			s.publisher.PublishPrescriptionDispensed(ctx, prescription)
			return prescription, nil
		}

		if !database.IsRetryable(err) {
			return nil, err
		}

		lastErr = err
		s.logger.Warn().
			Err(err).
			Str("prescription_no", prescriptionNo).
			Int("attempt", attempt).
			Msg("dispense commit conflicted, replanning")
	}

	return nil, errors.ConcurrencyConflict("dispense failed after retries").WithDetails(map[string]string{
		"prescription_no": prescriptionNo,
		"cause":           lastErr.Error(),
	})
}

// requirement is the aggregated need for one medicine across all line items
// referencing the same code.
type requirement struct {
	code string
	need int
}

func (s *DispenseService) planAndCommit(ctx context.Context, prescription *repository.Prescription, actor string) error {
	requirements := aggregateItems(prescription.Items)
	now := time.Now().UTC()

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		// Lock all referenced medicines in code order so two overlapping
		// dispenses never lock in opposite order.
		medicines := make(map[string]*repository.Medicine, len(requirements))
		for _, req := range requirements {
			medicine, err := s.medicineRepo.GetByCodeForUpdate(ctx, tx, req.code)
			if err != nil {
				return err
			}
			medicines[req.code] = medicine
		}

		// Plan every line item before touching anything. A single shortfall
		// aborts the transaction with zero mutations.
		type plannedMedicine struct {
			medicine    *repository.Medicine
			allocations []allocation.Allocation
		}
		plans := make([]plannedMedicine, 0, len(requirements))
		for _, req := range requirements {
			medicine := medicines[req.code]

			batches, err := s.batchRepo.ListByMedicineTx(ctx, tx, medicine.ID)
			if err != nil {
				return err
			}

			snapshot := make([]allocation.Batch, len(batches))
			for i, b := range batches {
				snapshot[i] = allocation.Batch{
					BatchNo:  b.BatchNo,
					Quantity: b.Quantity,
					Expiry:   b.ExpiryDate,
				}
			}

			allocations, err := allocation.Plan(snapshot, req.need, now)
			if err != nil {
				var insufficient *allocation.InsufficientError
				if errors.As(err, &insufficient) {
					return errors.InsufficientStock(req.code, insufficient.Shortfall)
				}
				return errors.BadRequest(err.Error())
			}

			plans = append(plans, plannedMedicine{medicine: medicine, allocations: allocations})
		}

		// Commit: apply every deduction, record the audit trail, flip the
		// prescription status. Any failure rolls the whole unit back.
		for _, plan := range plans {
			for _, alloc := range plan.allocations {
				if err := s.batchRepo.ApplyDelta(ctx, tx, plan.medicine.ID, alloc.BatchNo, -alloc.Quantity); err != nil {
					return err
				}

				movement := &repository.StockMovement{
					MedicineCode: plan.medicine.Code,
					BatchNo:      alloc.BatchNo,
					MovementType: repository.MovementDispense,
					Delta:        -alloc.Quantity,
					Reference:    &prescription.PrescriptionNo,
					PerformedBy:  &actor,
				}
				if err := s.movementRepo.Record(ctx, tx, movement); err != nil {
					return err
				}
			}
		}

		return s.prescriptionRepo.MarkDispensed(ctx, tx, prescription.ID, now, actor)
	})
	if err != nil {
		return err
	}

	prescription.Status = repository.StatusDispensed
	prescription.DispensedAt = &now
	prescription.DispensedBy = &actor
	return nil
}

// aggregateItems folds line items into one requirement per medicine code,
// preserving first-appearance order.
func aggregateItems(items []*repository.PrescriptionItem) []requirement {
	index := make(map[string]int, len(items))
	var requirements []requirement
	for _, item := range items {
		if i, ok := index[item.MedicineCode]; ok {
			requirements[i].need += item.Quantity
			continue
		}
		index[item.MedicineCode] = len(requirements)
		requirements = append(requirements, requirement{code: item.MedicineCode, need: item.Quantity})
	}

	sort.SliceStable(requirements, func(i, j int) bool {
		return requirements[i].code < requirements[j].code
	})
	return requirements
}
