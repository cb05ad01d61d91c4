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

// Prescription statuses. DISPENSED is terminal; the only transition is
// PENDING -> DISPENSED and it happens exactly once, through dispensing.
const (
	StatusPending   = "PENDING"
	StatusDispensed = "DISPENSED"
)

// Prescription is the requirement to satisfy: an ordered list of medicine
// quantities, created by the clinical workflow and consumed exactly once.
type Prescription struct {
	ID             string     `db:"id" json:"id"`
	PrescriptionNo string     `db:"prescription_no" json:"prescription_no"`
	PatientName    *string    `db:"patient_name" json:"patient_name,omitempty"`
	PrescriberName *string    `db:"prescriber_name" json:"prescriber_name,omitempty"`
	Status         string     `db:"status" json:"status"`
	DispensedAt    *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	DispensedBy    *string    `db:"dispensed_by" json:"dispensed_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`

	Items []*PrescriptionItem `db:"-" json:"items"`
}

// PrescriptionItem is one line of a prescription
type PrescriptionItem struct {
	ID             string `db:"id" json:"id"`
	PrescriptionID string `db:"prescription_id" json:"prescription_id"`
	MedicineCode   string `db:"medicine_code" json:"medicine_code"`
	Quantity       int    `db:"quantity" json:"quantity"`
	Position       int    `db:"position" json:"position"`
}

// PrescriptionRepository handles prescription persistence
type PrescriptionRepository struct {
	db *database.DB
}

// NewPrescriptionRepository creates a new prescription repository
func NewPrescriptionRepository(db *database.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

// Create creates a PENDING prescription with its items
func (r *PrescriptionRepository) Create(ctx context.Context, p *Prescription) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO prescriptions (id, prescription_no, patient_name, prescriber_name, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			p.ID, p.PrescriptionNo, p.PatientName, p.PrescriberName, p.Status,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}

		itemQuery := `
			INSERT INTO prescription_items (id, prescription_id, medicine_code, quantity, position)
			VALUES ($1, $2, $3, $4, $5)
		`
		for i, item := range p.Items {
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			item.PrescriptionID = p.ID
			item.Position = i
			if _, err := tx.ExecContext(ctx, itemQuery,
				item.ID, item.PrescriptionID, item.MedicineCode, item.Quantity, item.Position,
			); err != nil {
				if appErr := database.MapPQError(err); appErr != nil {
					return appErr
				}
				return err
			}
		}

		return nil
	})
}

// GetByNumber gets a prescription with its items by its business ID
func (r *PrescriptionRepository) GetByNumber(ctx context.Context, prescriptionNo string) (*Prescription, error) {
	var p Prescription
	query := `SELECT * FROM prescriptions WHERE prescription_no = $1`
	if err := r.db.GetContext(ctx, &p, query, prescriptionNo); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("prescription")
		}
		return nil, err
	}

	itemQuery := `SELECT * FROM prescription_items WHERE prescription_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &p.Items, itemQuery, p.ID); err != nil {
		return nil, err
	}

	return &p, nil
}

// MarkDispensed flips the prescription to DISPENSED inside the caller's
// transaction. The status guard in the WHERE clause is the idempotency
// check: a zero row count means another dispense already won.
func (r *PrescriptionRepository) MarkDispensed(ctx context.Context, ext sqlx.ExtContext, prescriptionID string, dispensedAt time.Time, actor string) error {
	query := `
		UPDATE prescriptions
		SET status = $2, dispensed_at = $3, dispensed_by = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`

	result, err := ext.ExecContext(ctx, query,
		prescriptionID, StatusDispensed, dispensedAt, actor, StatusPending,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.AlreadyProcessed("prescription")
	}

	return nil
}
