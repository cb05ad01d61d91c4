package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/curamed/curamed-backend/pkg/database"
	"github.com/curamed/curamed-backend/pkg/errors"
)

// Medicine is the aggregate root of the ledger: one record per unique code.
// The code is immutable after creation; descriptive fields are not.
type Medicine struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	Form         *string   `db:"form" json:"form,omitempty"`
	Strength     *string   `db:"strength" json:"strength,omitempty"`
	ReorderLevel int       `db:"reorder_level" json:"reorder_level"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// MedicineStock is a medicine together with its computed total quantity.
// The total is always derived from the batch rows, never stored.
type MedicineStock struct {
	Medicine
	TotalQuantity int `db:"total_quantity" json:"total_quantity"`
}

// MedicineRepository handles medicine persistence
type MedicineRepository struct {
	db *database.DB
}

// NewMedicineRepository creates a new medicine repository
func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

// Upsert creates a medicine or updates its descriptive fields, keyed by code.
func (r *MedicineRepository) Upsert(ctx context.Context, m *Medicine) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medicines (id, code, name, form, strength, reorder_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			form = EXCLUDED.form,
			strength = EXCLUDED.strength,
			reorder_level = EXCLUDED.reorder_level,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID, m.Code, m.Name, m.Form, m.Strength, m.ReorderLevel,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// EnsureByCode returns the medicine with the given code, creating a minimal
// record on first sight. Used by replenishment when a shipment references an
// unknown code.
func (r *MedicineRepository) EnsureByCode(ctx context.Context, code, name string) (*Medicine, error) {
	return ensureByCode(ctx, r.db, code, name)
}

// EnsureByCodeTx is EnsureByCode inside the caller's transaction
func (r *MedicineRepository) EnsureByCodeTx(ctx context.Context, tx *sqlx.Tx, code, name string) (*Medicine, error) {
	return ensureByCode(ctx, tx, code, name)
}

func ensureByCode(ctx context.Context, q sqlx.QueryerContext, code, name string) (*Medicine, error) {
	if name == "" {
		name = code
	}

	var m Medicine
	query := `
		INSERT INTO medicines (id, code, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
		RETURNING *
	`
	if err := sqlx.GetContext(ctx, q, &m, query, uuid.New().String(), code, name); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByCode gets a medicine by its code
func (r *MedicineRepository) GetByCode(ctx context.Context, code string) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE code = $1`
	if err := r.db.GetContext(ctx, &m, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// GetByCodeForUpdate locks the medicine row for the duration of the caller's
// transaction. Dispensing locks all referenced medicines before planning, so
// concurrent dispenses against the same medicine serialize.
func (r *MedicineRepository) GetByCodeForUpdate(ctx context.Context, tx *sqlx.Tx, code string) (*Medicine, error) {
	var m Medicine
	query := `SELECT * FROM medicines WHERE code = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &m, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medicine")
		}
		return nil, err
	}
	return &m, nil
}

// List lists all medicines ordered by code
func (r *MedicineRepository) List(ctx context.Context) ([]*Medicine, error) {
	var medicines []*Medicine
	query := `SELECT * FROM medicines ORDER BY code`
	if err := r.db.SelectContext(ctx, &medicines, query); err != nil {
		return nil, err
	}
	return medicines, nil
}

// ListWithStock lists all medicines with their computed total quantities
func (r *MedicineRepository) ListWithStock(ctx context.Context) ([]*MedicineStock, error) {
	var result []*MedicineStock
	query := `
		SELECT m.*, COALESCE(SUM(b.quantity), 0) AS total_quantity
		FROM medicines m
		LEFT JOIN medicine_batches b ON b.medicine_id = m.id
		GROUP BY m.id
		ORDER BY m.code
	`
	if err := r.db.SelectContext(ctx, &result, query); err != nil {
		return nil, err
	}
	return result, nil
}

// ListLowStock lists medicines whose total quantity is at or below their
// reorder level
func (r *MedicineRepository) ListLowStock(ctx context.Context) ([]*MedicineStock, error) {
	var result []*MedicineStock
	query := `
		SELECT m.*, COALESCE(SUM(b.quantity), 0) AS total_quantity
		FROM medicines m
		LEFT JOIN medicine_batches b ON b.medicine_id = m.id
		GROUP BY m.id
		HAVING COALESCE(SUM(b.quantity), 0) <= m.reorder_level
		ORDER BY m.code
	`
	if err := r.db.SelectContext(ctx, &result, query); err != nil {
		return nil, err
	}
	return result, nil
}
