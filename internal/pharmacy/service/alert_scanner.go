package service

import (
	"context"
	"time"

	"github.com/curamed/curamed-backend/internal/pharmacy/events"
	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/logger"
)

// DefaultExpiryWindowDays is the near-expiry horizon used when a caller does
// not set one.
const DefaultExpiryWindowDays = 30

// AlertReport is the combined low-stock and near-expiry view produced on
// demand. It is computed from live ledger state, never cached.
type AlertReport struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	WindowDays  int                         `json:"window_days"`
	LowStock    []*repository.MedicineStock `json:"low_stock"`
	NearExpiry  []*repository.ExpiringBatch `json:"near_expiry"`
}

// AlertScanner flags medicines whose total stock has fallen to the reorder
// level and batches approaching (or past) expiry. A medicine can appear in
// both lists at once.
type AlertScanner struct {
	medicineRepo *repository.MedicineRepository
	batchRepo    *repository.BatchRepository
	publisher    *events.PharmacyEventPublisher
	logger       *logger.Logger
	windowDays   int
}

// NewAlertScanner creates a new alert scanner
func NewAlertScanner(
	medicineRepo *repository.MedicineRepository,
	batchRepo *repository.BatchRepository,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
	windowDays int,
) *AlertScanner {
	if windowDays <= 0 {
		windowDays = DefaultExpiryWindowDays
	}
	return &AlertScanner{
		medicineRepo: medicineRepo,
		batchRepo:    batchRepo,
		publisher:    publisher,
		logger:       log,
		windowDays:   windowDays,
	}
}

// LowStock lists medicines whose summed batch quantity is at or below their
// reorder level. Expired batches still count toward the sum here; the
// threshold compares raw on-hand stock, not allocatable stock.
func (s *AlertScanner) LowStock(ctx context.Context) ([]*repository.MedicineStock, error) {
	return s.medicineRepo.ListLowStock(ctx)
}

// NearExpiry lists non-empty batches expiring within the window. Already
// expired batches that still hold quantity are included so they can be
// pulled from the shelf.
func (s *AlertScanner) NearExpiry(ctx context.Context, windowDays int) ([]*repository.ExpiringBatch, error) {
	if windowDays < 0 {
		return nil, errors.BadRequest("expiry window must not be negative")
	}
	if windowDays == 0 {
		windowDays = s.windowDays
	}
	return s.batchRepo.ListExpiringWithin(ctx, windowDays)
}

// Report runs both scans against the current ledger state.
func (s *AlertScanner) Report(ctx context.Context, windowDays int) (*AlertReport, error) {
	if windowDays <= 0 {
		windowDays = s.windowDays
	}

	lowStock, err := s.LowStock(ctx)
	if err != nil {
		return nil, err
	}

	nearExpiry, err := s.NearExpiry(ctx, windowDays)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("low_stock", len(lowStock)).
		Int("near_expiry", len(nearExpiry)).
		Int("window_days", windowDays).
		Msg("alert report generated")

	return &AlertReport{
		GeneratedAt: time.Now().UTC(),
		WindowDays:  windowDays,
		LowStock:    lowStock,
		NearExpiry:  nearExpiry,
	}, nil
}

// NotifyLowStock publishes a low-stock event for every flagged medicine.
// Used after mutations that can push a medicine under its threshold.
func (s *AlertScanner) NotifyLowStock(ctx context.Context) {
	flagged, err := s.LowStock(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("low stock notification scan failed")
		return
	}
	for _, stock := range flagged {
		s.publisher.PublishLowStockDetected(ctx, stock)
	}
}
