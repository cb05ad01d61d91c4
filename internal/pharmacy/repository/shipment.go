package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/curamed/curamed-backend/pkg/database"
)

// ShipmentRepository tracks which supplier shipment events have been merged.
// Broker redelivery of an already-merged shipment must not apply its lines a
// second time, since intake is additive.
type ShipmentRepository struct {
	db *database.DB
}

// NewShipmentRepository creates a new shipment repository
func NewShipmentRepository(db *database.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// MarkProcessed claims a shipment ID. A false return means the shipment was
// already merged by an earlier delivery. Run inside the same transaction as
// the line applications so a mid-merge failure releases the claim.
func (r *ShipmentRepository) MarkProcessed(ctx context.Context, ext sqlx.ExtContext, shipmentID, supplierName string) (bool, error) {
	query := `
		INSERT INTO processed_shipments (shipment_id, supplier_name)
		VALUES ($1, $2)
		ON CONFLICT (shipment_id) DO NOTHING
	`

	result, err := ext.ExecContext(ctx, query, shipmentID, supplierName)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return false, appErr
		}
		return false, err
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
