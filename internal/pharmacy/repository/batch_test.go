package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/testutil"
)

func TestBatchRepository_ApplyDelta(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewBatchRepository(mockDB.DB)

	mockDB.ExpectExec("UPDATE medicine_batches").
		WithArgs("med-1", "BATCH001", -25).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyDelta(context.Background(), mockDB.DB, "med-1", "BATCH001", -25)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_ApplyDelta_RefusesNegativeQuantity(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewBatchRepository(mockDB.DB)

	// The conditional update matches no row when the deduction would drive
	// the quantity below zero.
	mockDB.ExpectExec("UPDATE medicine_batches").
		WithArgs("med-1", "BATCH001", -500).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyDelta(context.Background(), mockDB.DB, "med-1", "BATCH001", -500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvariantViolation))

	mockDB.ExpectationsWereMet(t)
}

func TestBatchRepository_UpsertIntake_AccumulatesQuantity(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewBatchRepository(mockDB.DB)

	expiry := time.Now().UTC().AddDate(1, 0, 0)
	batch := &repository.Batch{
		MedicineID: "med-1",
		BatchNo:    "BATCH001",
		Quantity:   40,
		UnitPrice:  decimal.NewFromFloat(2.50),
		ExpiryDate: expiry,
	}

	now := time.Now().UTC()
	// The database folds the new quantity into the existing row, so the
	// returned quantity reflects the accumulated total.
	mockDB.ExpectQuery("INSERT INTO medicine_batches").
		WillReturnRows(testutil.MockRows("id", "quantity", "received_at", "created_at", "updated_at").
			AddRow("batch-id", 100, now, now, now))

	err := repo.UpsertIntake(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 100, batch.Quantity)

	mockDB.ExpectationsWereMet(t)
}
