package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/internal/pharmacy/service"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/testutil"
)

func futureDate(days int) *time.Time {
	d := time.Now().UTC().AddDate(0, 0, days)
	return &d
}

func TestMergeShipment_SameBatchAccumulates(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	svc.seedMedicine(t, ctx, "PARA500", 10)

	line := service.ShipmentLine{
		MedicineCode: "PARA500",
		BatchNo:      "B1",
		Quantity:     30,
		UnitPrice:    decimal.NewFromFloat(0.80),
		ExpiryDate:   futureDate(90),
	}

	result, err := svc.replenisher.MergeShipment(ctx, "PharmaSupply", []service.ShipmentLine{line})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)

	// The same batch in a later shipment folds into the existing row.
	result, err = svc.replenisher.MergeShipment(ctx, "PharmaSupply", []service.ShipmentLine{line})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)

	medicine, err := svc.medicineRepo.GetByCode(ctx, "PARA500")
	require.NoError(t, err)

	batches, err := svc.batchRepo.ListByMedicine(ctx, medicine.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 60, batches[0].Quantity)
}

func TestMergeShipmentEvent_RedeliveryIsIgnored(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	svc.seedMedicine(t, ctx, "PARA500", 10)

	lines := []service.ShipmentLine{{
		MedicineCode: "PARA500",
		BatchNo:      "B1",
		Quantity:     30,
		UnitPrice:    decimal.NewFromFloat(0.80),
		ExpiryDate:   futureDate(90),
	}}

	result, err := svc.replenisher.MergeShipmentEvent(ctx, "SHIP-001", "PharmaSupply", lines)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.False(t, result.Duplicate)

	// A redelivered event with the same shipment ID must not add stock.
	result, err = svc.replenisher.MergeShipmentEvent(ctx, "SHIP-001", "PharmaSupply", lines)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, 0, result.Applied)

	medicine, err := svc.medicineRepo.GetByCode(ctx, "PARA500")
	require.NoError(t, err)

	batches, err := svc.batchRepo.ListByMedicine(ctx, medicine.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 30, batches[0].Quantity)

	movements, err := svc.movementRepo.ListByMedicine(ctx, "PARA500")
	require.NoError(t, err)
	replenishCount := 0
	for _, m := range movements {
		if m.MovementType == repository.MovementReplenish {
			replenishCount++
		}
	}
	assert.Equal(t, 1, replenishCount)

	// A genuinely new shipment still applies.
	result, err = svc.replenisher.MergeShipmentEvent(ctx, "SHIP-002", "PharmaSupply", lines)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.False(t, result.Duplicate)

	batches, err = svc.batchRepo.ListByMedicine(ctx, medicine.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 60, batches[0].Quantity)
}

func TestMergeShipment_SkipsUnusableLines(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	lines := []service.ShipmentLine{
		{MedicineCode: "GOOD1", MedicineName: "Good One", BatchNo: "B1", Quantity: 10, ExpiryDate: futureDate(60)},
		{MedicineCode: "NOEXP", MedicineName: "No Expiry", BatchNo: "B1", Quantity: 10},
		{MedicineCode: "PAST1", MedicineName: "Past Expiry", BatchNo: "B1", Quantity: 10, ExpiryDate: futureDate(-5)},
		{MedicineCode: "GOOD2", MedicineName: "Good Two", BatchNo: "B1", Quantity: 5, ExpiryDate: futureDate(60)},
	}

	result, err := svc.replenisher.MergeShipment(ctx, "PharmaSupply", lines)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 2, result.Skipped)

	// Skipped lines leave no trace: no medicine, no batch.
	_, err = svc.medicineRepo.GetByCode(ctx, "NOEXP")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = svc.medicineRepo.GetByCode(ctx, "PAST1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	// Applied lines created their medicines on the fly.
	medicine, err := svc.medicineRepo.GetByCode(ctx, "GOOD1")
	require.NoError(t, err)
	assert.Equal(t, "Good One", medicine.Name)
}

func TestStockIn_RejectsPastExpiry(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	svc.seedMedicine(t, ctx, "PARA500", 10)

	_, err := svc.replenisher.StockIn(ctx, "PARA500", service.ShipmentLine{
		BatchNo:    "B1",
		Quantity:   10,
		ExpiryDate: futureDate(-1),
	}, "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
}

func TestStockIn_UnknownMedicineIsNotFound(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	_, err := svc.replenisher.StockIn(ctx, "GHOST", service.ShipmentLine{
		BatchNo:    "B1",
		Quantity:   10,
		ExpiryDate: futureDate(30),
	}, "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAlertScanner_LowStockAfterDispense(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	svc.seedMedicine(t, ctx, "PARA500", 10)
	svc.seedBatch(t, ctx, "PARA500", "B1", 15, 60)

	flagged, err := svc.scanner.LowStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, flagged)

	_, err = svc.prescriptions.Create(ctx, service.CreatePrescriptionInput{
		PrescriptionNo: "RX-100",
		Items:          []service.PrescriptionItemInput{{MedicineCode: "PARA500", Quantity: 8}},
	})
	require.NoError(t, err)
	_, err = svc.dispenser.Dispense(ctx, "RX-100", "nurse-7")
	require.NoError(t, err)

	// 15 - 8 = 7, at or below the reorder level of 10.
	flagged, err = svc.scanner.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "PARA500", flagged[0].Code)
	assert.Equal(t, 7, flagged[0].TotalQuantity)
}

func TestAlertScanner_NearExpiryWindow(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	medicine := svc.seedMedicine(t, ctx, "PARA500", 0)
	svc.seedBatch(t, ctx, "PARA500", "SOON", 10, 5)
	svc.seedBatch(t, ctx, "PARA500", "LATER", 10, 200)
	svc.seedExpiredBatch(t, ctx, medicine.ID, "EXPIRED", 10)

	report, err := svc.scanner.Report(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, report.WindowDays)

	batchNos := make([]string, 0, len(report.NearExpiry))
	for _, b := range report.NearExpiry {
		batchNos = append(batchNos, b.BatchNo)
	}

	// Expired-but-nonempty stock shows up so it can be pulled; stock far
	// beyond the window does not.
	assert.Contains(t, batchNos, "SOON")
	assert.Contains(t, batchNos, "EXPIRED")
	assert.NotContains(t, batchNos, "LATER")
}

func TestAlertScanner_MedicineCanBeInBothLists(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	svc.seedMedicine(t, ctx, "RARE", 20)
	svc.seedBatch(t, ctx, "RARE", "B1", 5, 10)

	report, err := svc.scanner.Report(ctx, 30)
	require.NoError(t, err)

	require.Len(t, report.LowStock, 1)
	assert.Equal(t, "RARE", report.LowStock[0].Code)
	require.Len(t, report.NearExpiry, 1)
	assert.Equal(t, "RARE", report.NearExpiry[0].MedicineCode)
}

func TestMedicineService_DeleteBatchWritesOffStock(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	svc := newServices(t)

	medicine := svc.seedMedicine(t, ctx, "PARA500", 0)
	svc.seedBatch(t, ctx, "PARA500", "B1", 25, 60)

	err := svc.medicines.DeleteBatch(ctx, "PARA500", "B1", "admin")
	require.NoError(t, err)

	batches, err := svc.batchRepo.ListByMedicine(ctx, medicine.ID)
	require.NoError(t, err)
	assert.Empty(t, batches)

	movements, err := svc.movementRepo.ListByMedicine(ctx, "PARA500")
	require.NoError(t, err)

	var adjustDelta int
	for _, m := range movements {
		if m.MovementType == repository.MovementAdjust {
			adjustDelta += m.Delta
		}
	}
	assert.Equal(t, -25, adjustDelta)
}
