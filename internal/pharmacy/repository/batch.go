package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/curamed/curamed-backend/pkg/database"
	"github.com/curamed/curamed-backend/pkg/errors"
)

// Batch is a dated, quantified lot of one medicine. A batch that reaches
// zero quantity stays on record for audit; it is simply never allocated
// again. Expiry is re-evaluated on every allocation attempt, not flagged at
// write time.
type Batch struct {
	ID           string          `db:"id" json:"id"`
	Seq          int64           `db:"seq" json:"-"`
	MedicineID   string          `db:"medicine_id" json:"medicine_id"`
	BatchNo      string          `db:"batch_no" json:"batch_no"`
	Quantity     int             `db:"quantity" json:"quantity"`
	Unit         *string         `db:"unit" json:"unit,omitempty"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	ExpiryDate   time.Time       `db:"expiry_date" json:"expiry_date"`
	ReceivedAt   time.Time       `db:"received_at" json:"received_at"`
	SupplierName *string         `db:"supplier_name" json:"supplier_name,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// IsExpired returns true if the batch has expired as of now
func (b *Batch) IsExpired(now time.Time) bool {
	return !b.ExpiryDate.After(now)
}

// ExpiringBatch is a batch joined with its medicine identity, used by the
// near-expiry report.
type ExpiringBatch struct {
	Batch
	MedicineCode string `db:"medicine_code" json:"medicine_code"`
	MedicineName string `db:"medicine_name" json:"medicine_name"`
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// batchOrder keeps listings in intake order. The seq column is assigned by
// the database at first insert, so allocation tie-breaking between batches
// with the same expiry date always follows the order the stock arrived in.
const batchOrder = `ORDER BY seq`

// ListByMedicine lists all batches of a medicine in insertion order
func (r *BatchRepository) ListByMedicine(ctx context.Context, medicineID string) ([]*Batch, error) {
	return listBatches(ctx, r.db, medicineID)
}

// ListByMedicineTx lists all batches of a medicine inside the caller's
// transaction
func (r *BatchRepository) ListByMedicineTx(ctx context.Context, tx *sqlx.Tx, medicineID string) ([]*Batch, error) {
	return listBatches(ctx, tx, medicineID)
}

func listBatches(ctx context.Context, q sqlx.QueryerContext, medicineID string) ([]*Batch, error) {
	var batches []*Batch
	query := `SELECT * FROM medicine_batches WHERE medicine_id = $1 ` + batchOrder
	if err := sqlx.SelectContext(ctx, q, &batches, query, medicineID); err != nil {
		return nil, err
	}
	return batches, nil
}

// GetByBatchNo gets one batch by its number within a medicine
func (r *BatchRepository) GetByBatchNo(ctx context.Context, medicineID, batchNo string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM medicine_batches WHERE medicine_id = $1 AND batch_no = $2`
	if err := r.db.GetContext(ctx, &batch, query, medicineID, batchNo); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// UpsertIntake folds a replenishment line into the medicine's batch list as
// a single atomic statement: quantity is additive, descriptive fields are
// last-write-wins. Safe against concurrent dispensing because the increment
// happens in the database, not in application memory.
func (r *BatchRepository) UpsertIntake(ctx context.Context, batch *Batch) error {
	return upsertIntake(ctx, r.db, batch)
}

// UpsertIntakeTx folds a replenishment line into the batch list inside the
// caller's transaction
func (r *BatchRepository) UpsertIntakeTx(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	return upsertIntake(ctx, tx, batch)
}

func upsertIntake(ctx context.Context, q sqlx.QueryerContext, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO medicine_batches (
			id, medicine_id, batch_no, quantity, unit, unit_price,
			expiry_date, received_at, supplier_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (medicine_id, batch_no) DO UPDATE SET
			quantity = medicine_batches.quantity + EXCLUDED.quantity,
			unit = EXCLUDED.unit,
			unit_price = EXCLUDED.unit_price,
			expiry_date = EXCLUDED.expiry_date,
			supplier_name = EXCLUDED.supplier_name,
			updated_at = NOW()
		RETURNING id, quantity, received_at, created_at, updated_at
	`

	err := q.QueryRowxContext(ctx, query,
		batch.ID, batch.MedicineID, batch.BatchNo, batch.Quantity, batch.Unit,
		batch.UnitPrice, batch.ExpiryDate, batch.ReceivedAt, batch.SupplierName,
	).Scan(&batch.ID, &batch.Quantity, &batch.ReceivedAt, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Update overwrites a batch's fields. This is an administrative correction
// and bypasses allocation accounting.
func (r *BatchRepository) Update(ctx context.Context, batch *Batch) error {
	query := `
		UPDATE medicine_batches SET
			quantity = $3, unit = $4, unit_price = $5, expiry_date = $6,
			supplier_name = $7, updated_at = NOW()
		WHERE medicine_id = $1 AND batch_no = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		batch.MedicineID, batch.BatchNo, batch.Quantity, batch.Unit,
		batch.UnitPrice, batch.ExpiryDate, batch.SupplierName,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}

	return nil
}

// Delete removes a batch record entirely. Administrative; dispensing never
// deletes batches.
func (r *BatchRepository) Delete(ctx context.Context, medicineID, batchNo string) error {
	query := `DELETE FROM medicine_batches WHERE medicine_id = $1 AND batch_no = $2`
	result, err := r.db.ExecContext(ctx, query, medicineID, batchNo)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}

	return nil
}

// ApplyDelta adjusts one batch's quantity inside the caller's transaction.
// The statement refuses to drive the quantity negative; a zero row count
// means the planned deduction no longer matches stored state.
func (r *BatchRepository) ApplyDelta(ctx context.Context, ext sqlx.ExtContext, medicineID, batchNo string, delta int) error {
	query := `
		UPDATE medicine_batches
		SET quantity = quantity + $3, updated_at = NOW()
		WHERE medicine_id = $1 AND batch_no = $2 AND quantity + $3 >= 0
	`

	result, err := ext.ExecContext(ctx, query, medicineID, batchNo, delta)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.InvariantViolation(
			fmt.Sprintf("delta %d on batch %s would violate ledger state", delta, batchNo))
	}

	return nil
}

// TotalQuantity computes the total quantity across all batches of a medicine
func (r *BatchRepository) TotalQuantity(ctx context.Context, medicineID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity) FROM medicine_batches WHERE medicine_id = $1`
	if err := r.db.GetContext(ctx, &total, query, medicineID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// ListExpiringWithin lists non-empty batches expiring within the given
// number of days. Already-expired stock is included: the report exists to
// make wastage visible, unlike allocation which excludes it.
func (r *BatchRepository) ListExpiringWithin(ctx context.Context, days int) ([]*ExpiringBatch, error) {
	var batches []*ExpiringBatch
	query := `
		SELECT b.*, m.code AS medicine_code, m.name AS medicine_name
		FROM medicine_batches b
		JOIN medicines m ON m.id = b.medicine_id
		WHERE b.quantity > 0
		AND b.expiry_date <= NOW() + make_interval(days => $1)
		ORDER BY b.expiry_date
	`
	if err := r.db.SelectContext(ctx, &batches, query, days); err != nil {
		return nil, err
	}
	return batches, nil
}
