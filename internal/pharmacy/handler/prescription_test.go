package handler_test

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curamed/curamed-backend/internal/pharmacy/handler"
	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/internal/pharmacy/service"
	"github.com/curamed/curamed-backend/pkg/httputil"
	"github.com/curamed/curamed-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

// newTestRouter wires the full pharmacy API against the shared database,
// without a message broker.
func newTestRouter() chi.Router {
	medicineRepo := repository.NewMedicineRepository(suite.DB)
	batchRepo := repository.NewBatchRepository(suite.DB)
	prescriptionRepo := repository.NewPrescriptionRepository(suite.DB)
	movementRepo := repository.NewMovementRepository(suite.DB)

	medicines := service.NewMedicineService(medicineRepo, batchRepo, movementRepo, suite.Logger)
	prescriptions := service.NewPrescriptionService(prescriptionRepo, suite.Logger)
	replenisher := service.NewReplenishmentService(suite.DB, medicineRepo, batchRepo, movementRepo, repository.NewShipmentRepository(suite.DB), nil, suite.Logger)
	dispenser := service.NewDispenseService(suite.DB, medicineRepo, batchRepo, prescriptionRepo, movementRepo, nil, suite.Logger)
	scanner := service.NewAlertScanner(medicineRepo, batchRepo, nil, suite.Logger, 30)

	medicineHandler := handler.NewMedicineHandler(medicines, replenisher, suite.Logger)
	prescriptionHandler := handler.NewPrescriptionHandler(prescriptions, dispenser, suite.Logger)
	reportHandler := handler.NewReportHandler(scanner, suite.Logger)

	r := chi.NewRouter()
	r.Use(httputil.Actor)
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", medicineHandler.List)
			r.Post("/", medicineHandler.Upsert)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", medicineHandler.Get)
				r.Post("/batches", medicineHandler.StockIn)
				r.Get("/movements", medicineHandler.ListMovements)
			})
		})
		r.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", prescriptionHandler.Create)
			r.Get("/{prescriptionNo}", prescriptionHandler.Get)
			r.Post("/{prescriptionNo}/dispense", prescriptionHandler.Dispense)
		})
		r.Get("/reports/alerts", reportHandler.Alerts)
	})
	return r
}

func seedMedicineWithStock(t *testing.T, router chi.Router, code string, quantity int) {
	t.Helper()

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/pharmacy/medicines", map[string]interface{}{
		"code":          code,
		"name":          "Test " + code,
		"reorder_level": 5,
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/pharmacy/medicines/"+code+"/batches", map[string]interface{}{
		"batch_no":    "B1",
		"quantity":    quantity,
		"unit_price":  decimal.NewFromFloat(1.20),
		"expiry_date": time.Now().UTC().AddDate(1, 0, 0),
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)
}

func TestPrescriptionEndpoints_DispenseFlow(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	router := newTestRouter()

	seedMedicineWithStock(t, router, "PARA500", 50)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/pharmacy/prescriptions", map[string]interface{}{
		"prescription_no": "RX-HTTP-1",
		"patient_name":    "Jamie Doe",
		"items": []map[string]interface{}{
			{"medicine_code": "PARA500", "quantity": 20},
		},
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/pharmacy/prescriptions/RX-HTTP-1/dispense", nil)
	req = testutil.WithActorHeader(req, "nurse-42")
	rr = testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp struct {
		Data repository.Prescription `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	assert.Equal(t, repository.StatusDispensed, resp.Data.Status)
	require.NotNil(t, resp.Data.DispensedBy)
	assert.Equal(t, "nurse-42", *resp.Data.DispensedBy)

	// A repeat dispense is rejected without touching stock.
	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/pharmacy/prescriptions/RX-HTTP-1/dispense", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "ALREADY_PROCESSED")
}

func TestPrescriptionEndpoints_InsufficientStock(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	router := newTestRouter()

	seedMedicineWithStock(t, router, "IBU400", 5)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/pharmacy/prescriptions", map[string]interface{}{
		"prescription_no": "RX-HTTP-2",
		"items": []map[string]interface{}{
			{"medicine_code": "IBU400", "quantity": 10},
		},
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/pharmacy/prescriptions/RX-HTTP-2/dispense", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "INSUFFICIENT_STOCK")
	testutil.AssertBodyContains(t, rr, "shortfall")
}

func TestPrescriptionEndpoints_UnknownPrescription(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	router := newTestRouter()

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/pharmacy/prescriptions/NOPE", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestPrescriptionEndpoints_RejectsEmptyItems(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	suite.ResetPharmacyTables(t, ctx)
	router := newTestRouter()

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/pharmacy/prescriptions", map[string]interface{}{
		"prescription_no": "RX-HTTP-3",
		"items":           []map[string]interface{}{},
	}))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
