package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/curamed/curamed-backend/internal/pharmacy/events"
	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/pkg/database"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/logger"
)

// ShipmentLine is one medicine/batch entry of an inbound supplier shipment.
type ShipmentLine struct {
	MedicineCode string          `json:"medicine_code" validate:"required"`
	MedicineName string          `json:"medicine_name"`
	BatchNo      string          `json:"batch_no" validate:"required"`
	Quantity     int             `json:"quantity" validate:"required,gt=0"`
	Unit         *string         `json:"unit,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
}

// MergeResult summarizes how a shipment merge went. Skipped lines are
// tolerated, never fatal, but the count is surfaced so a lossy shipment is
// visible to operators. Duplicate marks a redelivery that was ignored whole.
type MergeResult struct {
	Applied   int  `json:"applied"`
	Skipped   int  `json:"skipped"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// ReplenishmentService folds incoming stock into the batch ledger. The same
// batch arriving twice accumulates quantity instead of duplicating rows.
type ReplenishmentService struct {
	db           *database.DB
	medicineRepo *repository.MedicineRepository
	batchRepo    *repository.BatchRepository
	movementRepo *repository.MovementRepository
	shipmentRepo *repository.ShipmentRepository
	publisher    *events.PharmacyEventPublisher
	logger       *logger.Logger
}

// NewReplenishmentService creates a new replenishment service
func NewReplenishmentService(
	db *database.DB,
	medicineRepo *repository.MedicineRepository,
	batchRepo *repository.BatchRepository,
	movementRepo *repository.MovementRepository,
	shipmentRepo *repository.ShipmentRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *ReplenishmentService {
	return &ReplenishmentService{
		db:           db,
		medicineRepo: medicineRepo,
		batchRepo:    batchRepo,
		movementRepo: movementRepo,
		shipmentRepo: shipmentRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// MergeShipment applies every usable line of a shipment to the ledger. Lines
// with a missing or past expiry date, a blank code, or a non-positive
// quantity are skipped and logged; the remaining lines still apply. Medicines
// unknown to the catalog are created on the fly so intake never blocks on
// catalog upkeep. All applied lines commit as one transaction.
func (s *ReplenishmentService) MergeShipment(ctx context.Context, supplierName string, lines []ShipmentLine) (*MergeResult, error) {
	return s.merge(ctx, "", supplierName, lines)
}

// MergeShipmentEvent merges a broker-delivered shipment exactly once. The
// shipment ID is claimed in the same transaction as the line applications:
// a redelivery after a mid-merge failure starts over from a clean ledger,
// and a redelivery after success is ignored whole.
func (s *ReplenishmentService) MergeShipmentEvent(ctx context.Context, shipmentID, supplierName string, lines []ShipmentLine) (*MergeResult, error) {
	return s.merge(ctx, shipmentID, supplierName, lines)
}

func (s *ReplenishmentService) merge(ctx context.Context, shipmentID, supplierName string, lines []ShipmentLine) (*MergeResult, error) {
	result := &MergeResult{}
	now := time.Now().UTC()

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if shipmentID != "" {
			fresh, err := s.shipmentRepo.MarkProcessed(ctx, tx, shipmentID, supplierName)
			if err != nil {
				return err
			}
			if !fresh {
				result.Duplicate = true
				return nil
			}
		}

		for _, line := range lines {
			if reason := intakeSkipReason(line, now); reason != "" {
				result.Skipped++
				s.logger.Warn().
					Str("supplier", supplierName).
					Str("medicine_code", line.MedicineCode).
					Str("batch_no", line.BatchNo).
					Str("reason", reason).
					Msg("skipping shipment line")
				continue
			}

			if err := s.applyLine(ctx, tx, supplierName, line); err != nil {
				return err
			}
			result.Applied++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		s.logger.Info().
			Str("supplier", supplierName).
			Str("shipment_id", shipmentID).
			Msg("shipment already merged, ignoring redelivery")
		return result, nil
	}

	s.logger.Info().
		Str("supplier", supplierName).
		Int("applied", result.Applied).
		Int("skipped", result.Skipped).
		Msg("shipment merged")

	s.publisher.PublishStockReplenished(ctx, supplierName, result.Applied, result.Skipped)
	return result, nil
}

// StockIn books a single batch against an existing medicine. Unlike shipment
// intake it is strict: an unusable line is an error, not a silent skip, and
// the medicine must already exist.
func (s *ReplenishmentService) StockIn(ctx context.Context, medicineCode string, line ShipmentLine, actor string) (*repository.Batch, error) {
	line.MedicineCode = medicineCode
	now := time.Now().UTC()
	if reason := intakeSkipReason(line, now); reason != "" {
		return nil, errors.BadRequest(reason)
	}

	medicine, err := s.medicineRepo.GetByCode(ctx, medicineCode)
	if err != nil {
		return nil, err
	}

	batch := &repository.Batch{
		MedicineID: medicine.ID,
		BatchNo:    line.BatchNo,
		Quantity:   line.Quantity,
		Unit:       line.Unit,
		UnitPrice:  line.UnitPrice,
		ExpiryDate: *line.ExpiryDate,
		ReceivedAt: now,
	}
	if err := s.batchRepo.UpsertIntake(ctx, batch); err != nil {
		return nil, err
	}

	if err := s.movementRepo.RecordDirect(ctx, &repository.StockMovement{
		MedicineCode: medicine.Code,
		BatchNo:      batch.BatchNo,
		MovementType: repository.MovementReplenish,
		Delta:        line.Quantity,
		PerformedBy:  &actor,
	}); err != nil {
		return nil, err
	}

	return batch, nil
}

func (s *ReplenishmentService) applyLine(ctx context.Context, tx *sqlx.Tx, supplierName string, line ShipmentLine) error {
	medicine, err := s.medicineRepo.EnsureByCodeTx(ctx, tx, line.MedicineCode, line.MedicineName)
	if err != nil {
		return err
	}

	batch := &repository.Batch{
		MedicineID: medicine.ID,
		BatchNo:    line.BatchNo,
		Quantity:   line.Quantity,
		Unit:       line.Unit,
		UnitPrice:  line.UnitPrice,
		ExpiryDate: *line.ExpiryDate,
		ReceivedAt: time.Now().UTC(),
	}
	if supplierName != "" {
		batch.SupplierName = &supplierName
	}

	if err := s.batchRepo.UpsertIntakeTx(ctx, tx, batch); err != nil {
		return err
	}

	reference := "shipment:" + supplierName
	return s.movementRepo.Record(ctx, tx, &repository.StockMovement{
		MedicineCode: medicine.Code,
		BatchNo:      line.BatchNo,
		MovementType: repository.MovementReplenish,
		Delta:        line.Quantity,
		Reference:    &reference,
	})
}

// intakeSkipReason returns a non-empty reason when a line must not enter the
// ledger. Stock without a future expiry date can never be allocated, so
// admitting it would only inflate totals.
func intakeSkipReason(line ShipmentLine, now time.Time) string {
	switch {
	case line.MedicineCode == "":
		return "missing medicine code"
	case line.BatchNo == "":
		return "missing batch number"
	case line.Quantity <= 0:
		return "quantity must be positive"
	case line.ExpiryDate == nil:
		return "missing expiry date"
	case !line.ExpiryDate.After(now):
		return "expiry date is in the past"
	default:
		return ""
	}
}
