package events

import (
	"context"

	"github.com/curamed/curamed-backend/internal/pharmacy/repository"
	"github.com/curamed/curamed-backend/pkg/logger"
	"github.com/curamed/curamed-backend/pkg/messaging"
)

// PharmacyEventPublisher publishes pharmacy-related events
type PharmacyEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher creates a new pharmacy event publisher
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishPrescriptionDispensed publishes a prescription dispensed event
func (p *PharmacyEventPublisher) PublishPrescriptionDispensed(ctx context.Context, prescription *repository.Prescription) {
	if p == nil {
		return
	}

	codes := make([]string, 0, len(prescription.Items))
	for _, item := range prescription.Items {
		codes = append(codes, item.MedicineCode)
	}

	dispensedBy := ""
	if prescription.DispensedBy != nil {
		dispensedBy = *prescription.DispensedBy
	}

	data := messaging.PrescriptionDispensedEvent{
		PrescriptionNo: prescription.PrescriptionNo,
		DispensedBy:    dispensedBy,
		MedicineCodes:  codes,
	}
	if prescription.DispensedAt != nil {
		data.DispensedAt = *prescription.DispensedAt
	}

	if err := p.publisher.Publish(ctx, messaging.EventPrescriptionDispensed, data); err != nil {
		p.logger.Error().Err(err).Str("prescription_no", prescription.PrescriptionNo).Msg("failed to publish prescription dispensed event")
	}
}

// PublishStockReplenished publishes a stock replenished event
func (p *PharmacyEventPublisher) PublishStockReplenished(ctx context.Context, supplierName string, applied, skipped int) {
	if p == nil {
		return
	}

	data := messaging.StockReplenishedEvent{
		SupplierName: supplierName,
		Applied:      applied,
		Skipped:      skipped,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReplenished, data); err != nil {
		p.logger.Error().Err(err).Str("supplier", supplierName).Msg("failed to publish stock replenished event")
	}
}

// PublishLowStockDetected publishes a low stock event
func (p *PharmacyEventPublisher) PublishLowStockDetected(ctx context.Context, stock *repository.MedicineStock) {
	if p == nil {
		return
	}

	data := messaging.LowStockDetectedEvent{
		MedicineCode:  stock.Code,
		MedicineName:  stock.Name,
		TotalQuantity: stock.TotalQuantity,
		ReorderLevel:  stock.ReorderLevel,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLowStockDetected, data); err != nil {
		p.logger.Error().Err(err).Str("medicine_code", stock.Code).Msg("failed to publish low stock event")
	}
}
