package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/curamed/curamed-backend/pkg/database"
)

// Movement types
const (
	MovementReplenish = "replenish"
	MovementDispense  = "dispense"
	MovementAdjust    = "adjust"
)

// StockMovement is the audit record of one applied quantity delta. The sum
// of deltas per medicine reconciles against the batch quantities.
type StockMovement struct {
	ID           string    `db:"id" json:"id"`
	MedicineCode string    `db:"medicine_code" json:"medicine_code"`
	BatchNo      string    `db:"batch_no" json:"batch_no"`
	MovementType string    `db:"movement_type" json:"movement_type"`
	Delta        int       `db:"delta" json:"delta"`
	Reference    *string   `db:"reference" json:"reference,omitempty"`
	PerformedBy  *string   `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MovementRepository handles stock movement persistence
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Record inserts a movement. Accepts an ExtContext so dispense deductions
// land in the same transaction as the batch deltas they describe.
func (r *MovementRepository) Record(ctx context.Context, ext sqlx.ExtContext, m *StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_movements (id, medicine_code, batch_no, movement_type, delta, reference, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err := ext.ExecContext(ctx, query,
		m.ID, m.MedicineCode, m.BatchNo, m.MovementType, m.Delta, m.Reference, m.PerformedBy,
	); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// RecordDirect inserts a movement outside any transaction
func (r *MovementRepository) RecordDirect(ctx context.Context, m *StockMovement) error {
	return r.Record(ctx, r.db, m)
}

// ListByMedicine lists movements for a medicine, newest first
func (r *MovementRepository) ListByMedicine(ctx context.Context, medicineCode string) ([]*StockMovement, error) {
	var movements []*StockMovement
	query := `SELECT * FROM stock_movements WHERE medicine_code = $1 ORDER BY created_at DESC, id`
	if err := r.db.SelectContext(ctx, &movements, query, medicineCode); err != nil {
		return nil, err
	}
	return movements, nil
}
