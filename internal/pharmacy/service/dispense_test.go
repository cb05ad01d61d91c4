package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/internal/pharmacy/service"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/logger"
	"github.com/curamed/curamed-backend/pkg/testutil"
)

// newMockDispenser wires a dispense service against a sqlmock database so
// commit-time conflicts can be scripted deterministically.
func newMockDispenser(t *testing.T) (*testutil.MockDB, *service.DispenseService) {
	t.Helper()

	mockDB := testutil.NewMockDB(t)

	medicineRepo := repository.NewMedicineRepository(mockDB.DB)
	batchRepo := repository.NewBatchRepository(mockDB.DB)
	prescriptionRepo := repository.NewPrescriptionRepository(mockDB.DB)
	movementRepo := repository.NewMovementRepository(mockDB.DB)

	dispenser := service.NewDispenseService(
		mockDB.DB, medicineRepo, batchRepo, prescriptionRepo, movementRepo,
		nil, logger.New("test", "test"),
	)
	return mockDB, dispenser
}

func expectPrescriptionLookup(mockDB *testutil.MockDB, prescriptionID, prescriptionNo string, quantity int) {
	now := time.Now().UTC()

	mockDB.ExpectQuery("SELECT * FROM prescriptions WHERE prescription_no = $1").
		WithArgs(prescriptionNo).
		WillReturnRows(testutil.MockRows(
			"id", "prescription_no", "patient_name", "prescriber_name",
			"status", "dispensed_at", "dispensed_by", "created_at", "updated_at",
		).AddRow(prescriptionID, prescriptionNo, nil, nil, repository.StatusPending, nil, nil, now, now))

	mockDB.ExpectQuery("SELECT * FROM prescription_items WHERE prescription_id = $1").
		WithArgs(prescriptionID).
		WillReturnRows(testutil.MockRows("id", "prescription_id", "medicine_code", "quantity", "position").
			AddRow("item-1", prescriptionID, "PARA500", quantity, 0))
}

// expectPlanPhase scripts the lock and snapshot reads of one attempt: the
// medicine row lock followed by the batch listing.
func expectPlanPhase(mockDB *testutil.MockDB, medicineID string, batchQuantity int) {
	now := time.Now().UTC()
	expiry := now.AddDate(0, 0, 30)

	mockDB.ExpectQuery("SELECT * FROM medicines WHERE code = $1 FOR UPDATE").
		WithArgs("PARA500").
		WillReturnRows(testutil.MockRows(
			"id", "code", "name", "form", "strength", "reorder_level", "created_at", "updated_at",
		).AddRow(medicineID, "PARA500", "Paracetamol 500mg", nil, nil, 10, now, now))

	mockDB.ExpectQuery("SELECT * FROM medicine_batches WHERE medicine_id = $1 ORDER BY seq").
		WithArgs(medicineID).
		WillReturnRows(testutil.MockRows(
			"id", "seq", "medicine_id", "batch_no", "quantity", "unit", "unit_price",
			"expiry_date", "received_at", "supplier_name", "created_at", "updated_at",
		).AddRow("batch-1", 1, medicineID, "B1", batchQuantity, nil, "1.50", expiry, now, nil, now, now))
}

func TestDispense_ReplansAfterCommitConflict(t *testing.T) {
	mockDB, dispenser := newMockDispenser(t)
	defer mockDB.Close()

	expectPrescriptionLookup(mockDB, "rx-id-1", "RX-9", 5)

	// First attempt: the batch deduction loses a serialization race and the
	// transaction rolls back.
	mockDB.ExpectBegin()
	expectPlanPhase(mockDB, "med-1", 50)
	mockDB.ExpectExec("UPDATE medicine_batches").
		WithArgs("med-1", "B1", -5).
		WillReturnError(&pq.Error{Code: "40001"})
	mockDB.ExpectRollback()

	// Second attempt: re-plans against fresh state and commits.
	mockDB.ExpectBegin()
	expectPlanPhase(mockDB, "med-1", 50)
	mockDB.ExpectExec("UPDATE medicine_batches").
		WithArgs("med-1", "B1", -5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO stock_movements").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE prescriptions").
		WithArgs("rx-id-1", repository.StatusDispensed, testutil.AnyTime{}, "nurse-1", repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	dispensed, err := dispenser.Dispense(context.Background(), "RX-9", "nurse-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDispensed, dispensed.Status)
	require.NotNil(t, dispensed.DispensedBy)
	assert.Equal(t, "nurse-1", *dispensed.DispensedBy)

	mockDB.ExpectationsWereMet(t)
}

func TestDispense_GivesUpAfterRepeatedCommitConflicts(t *testing.T) {
	mockDB, dispenser := newMockDispenser(t)
	defer mockDB.Close()
	dispenser.WithCommitRetries(2)

	expectPrescriptionLookup(mockDB, "rx-id-2", "RX-10", 5)

	// Every attempt conflicts; no prescription update ever runs, so the
	// record stays PENDING.
	for i := 0; i < 2; i++ {
		mockDB.ExpectBegin()
		expectPlanPhase(mockDB, "med-1", 50)
		mockDB.ExpectExec("UPDATE medicine_batches").
			WithArgs("med-1", "B1", -5).
			WillReturnError(&pq.Error{Code: "40001"})
		mockDB.ExpectRollback()
	}

	dispensed, err := dispenser.Dispense(context.Background(), "RX-10", "nurse-1")
	require.Error(t, err)
	assert.Nil(t, dispensed)
	assert.True(t, errors.Is(err, errors.ErrConcurrencyConflict))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONCURRENCY_CONFLICT", appErr.Code)
	assert.Equal(t, "RX-10", appErr.Details["prescription_no"])

	mockDB.ExpectationsWereMet(t)
}
