package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/testutil"
)

func TestPrescriptionRepository_MarkDispensed(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewPrescriptionRepository(mockDB.DB)

	dispensedAt := time.Now().UTC()
	mockDB.ExpectExec("UPDATE prescriptions").
		WithArgs("rx-1", repository.StatusDispensed, dispensedAt, "pharmacy-desk", repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkDispensed(context.Background(), mockDB.DB, "rx-1", dispensedAt, "pharmacy-desk")
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestPrescriptionRepository_MarkDispensed_GuardsTerminalState(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewPrescriptionRepository(mockDB.DB)

	// The status guard in the WHERE clause matches no row once another
	// dispense has flipped the prescription.
	dispensedAt := time.Now().UTC()
	mockDB.ExpectExec("UPDATE prescriptions").
		WithArgs("rx-1", repository.StatusDispensed, dispensedAt, "pharmacy-desk", repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDispensed(context.Background(), mockDB.DB, "rx-1", dispensedAt, "pharmacy-desk")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyProcessed))

	mockDB.ExpectationsWereMet(t)
}
