package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/curamed/curamed-backend/internal/pharmacy/consumers"
	"github.com/curamed/curamed-backend/internal/pharmacy/events"
	"github.com/curamed/curamed-backend/internal/pharmacy/handler"
	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/internal/pharmacy/service"
	"github.com/curamed/curamed-backend/pkg/config"
	"github.com/curamed/curamed-backend/pkg/database"
	"github.com/curamed/curamed-backend/pkg/httputil"
	"github.com/curamed/curamed-backend/pkg/logger"
	"github.com/curamed/curamed-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewPharmacyEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	medicineRepo := repository.NewMedicineRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	prescriptionRepo := repository.NewPrescriptionRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	shipmentRepo := repository.NewShipmentRepository(db)

	// Initialize services
	medicineService := service.NewMedicineService(medicineRepo, batchRepo, movementRepo, log)
	prescriptionService := service.NewPrescriptionService(prescriptionRepo, log)
	replenishmentService := service.NewReplenishmentService(db, medicineRepo, batchRepo, movementRepo, shipmentRepo, publisher, log)
	dispenseService := service.NewDispenseService(db, medicineRepo, batchRepo, prescriptionRepo, movementRepo, publisher, log).
		WithCommitRetries(cfg.Pharmacy.DispenseCommitRetries)
	alertScanner := service.NewAlertScanner(medicineRepo, batchRepo, publisher, log, cfg.Pharmacy.ExpiryWindowDays)

	// Initialize handlers
	medicineHandler := handler.NewMedicineHandler(medicineService, replenishmentService, log)
	prescriptionHandler := handler.NewPrescriptionHandler(prescriptionService, dispenseService, log)
	reportHandler := handler.NewReportHandler(alertScanner, log)

	// Start supplier shipment consumer
	shipmentConsumer, err := consumers.NewShipmentConsumer(rmq, replenishmentService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create shipment consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := shipmentConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start shipment consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.Actor)

	// CORS for the hospital frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		// Medicine routes
		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", medicineHandler.List)
			r.Post("/", medicineHandler.Upsert)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", medicineHandler.Get)
				r.Get("/batches", medicineHandler.ListBatches)
				r.Post("/batches", medicineHandler.StockIn)
				r.Put("/batches/{batchNo}", medicineHandler.UpdateBatch)
				r.Delete("/batches/{batchNo}", medicineHandler.DeleteBatch)
				r.Get("/movements", medicineHandler.ListMovements)
			})
		})

		// Prescription routes
		r.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", prescriptionHandler.Create)
			r.Get("/{prescriptionNo}", prescriptionHandler.Get)
			r.Post("/{prescriptionNo}/dispense", prescriptionHandler.Dispense)
		})

		// Reports
		r.Get("/reports/alerts", reportHandler.Alerts)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
