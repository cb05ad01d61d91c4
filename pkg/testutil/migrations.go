package testutil

// PharmacyMigrations returns the pharmacy service schema as individual
// statements. Kept in sync with migrations/0001_pharmacy.sql.
func PharmacyMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS medicines (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			code VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			form VARCHAR(100),
			strength VARCHAR(100),
			reorder_level INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT medicines_code_unique UNIQUE (code),
			CONSTRAINT medicines_reorder_level_non_negative CHECK (reorder_level >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS medicine_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			seq BIGSERIAL,
			medicine_id UUID NOT NULL REFERENCES medicines(id) ON DELETE CASCADE,
			batch_no VARCHAR(64) NOT NULL,
			quantity INT NOT NULL DEFAULT 0,
			unit VARCHAR(32),
			unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			expiry_date TIMESTAMPTZ NOT NULL,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			supplier_name VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT medicine_batches_batch_no_unique UNIQUE (medicine_id, batch_no),
			CONSTRAINT medicine_batches_quantity_non_negative CHECK (quantity >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_medicine_batches_medicine_id ON medicine_batches(medicine_id)`,
		`CREATE INDEX IF NOT EXISTS idx_medicine_batches_expiry ON medicine_batches(expiry_date) WHERE quantity > 0`,
		`CREATE TABLE IF NOT EXISTS prescriptions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			prescription_no VARCHAR(64) NOT NULL,
			patient_name VARCHAR(255),
			prescriber_name VARCHAR(255),
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			dispensed_at TIMESTAMPTZ,
			dispensed_by VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT prescriptions_prescription_no_unique UNIQUE (prescription_no),
			CONSTRAINT prescriptions_status_valid CHECK (status IN ('PENDING', 'DISPENSED'))
		)`,
		`CREATE TABLE IF NOT EXISTS prescription_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			prescription_id UUID NOT NULL REFERENCES prescriptions(id) ON DELETE CASCADE,
			medicine_code VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			position INT NOT NULL DEFAULT 0,
			CONSTRAINT prescription_items_quantity_positive CHECK (quantity > 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prescription_items_prescription_id ON prescription_items(prescription_id)`,
		`CREATE TABLE IF NOT EXISTS processed_shipments (
			shipment_id VARCHAR(128) PRIMARY KEY,
			supplier_name VARCHAR(255),
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			medicine_code VARCHAR(64) NOT NULL,
			batch_no VARCHAR(64) NOT NULL,
			movement_type VARCHAR(16) NOT NULL,
			delta INT NOT NULL,
			reference VARCHAR(255),
			performed_by VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_movements_type_valid CHECK (movement_type IN ('replenish', 'dispense', 'adjust'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_medicine_code ON stock_movements(medicine_code)`,
	}
}

// PharmacyTables lists the pharmacy tables in dependency order, children
// first. Used by ResetPharmacyTables.
func PharmacyTables() []string {
	return []string{
		"stock_movements",
		"processed_shipments",
		"prescription_items",
		"prescriptions",
		"medicine_batches",
		"medicines",
	}
}
