package consumers

import (
	"context"
	"fmt"

	"github.com/curamed/curamed-backend/internal/pharmacy/service"
	"github.com/curamed/curamed-backend/pkg/logger"
	"github.com/curamed/curamed-backend/pkg/messaging"
)

const supplierEventsQueue = "pharmacy-service.supplier-events"

// ShipmentConsumer feeds supplier shipment events into the replenishment
// merge. A failed merge is retried through the queue's retry/DLQ cycle;
// redeliveries of an already-merged shipment are recognized by shipment ID
// and ignored.
type ShipmentConsumer struct {
	consumer    *messaging.Consumer
	replenisher *service.ReplenishmentService
	logger      *logger.Logger
}

// NewShipmentConsumer declares the supplier events queue and binds it to the
// supplier exchange.
func NewShipmentConsumer(rmq *messaging.RabbitMQ, replenisher *service.ReplenishmentService, log *logger.Logger) (*ShipmentConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, supplierEventsQueue, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create supplier events consumer: %w", err)
	}

	if err := consumer.Subscribe(messaging.ExchangeSupplierEvents, "supplier.#"); err != nil {
		return nil, fmt.Errorf("failed to subscribe to supplier events: %w", err)
	}

	sc := &ShipmentConsumer{
		consumer:    consumer,
		replenisher: replenisher,
		logger:      log.WithComponent("shipment-consumer"),
	}

	consumer.RegisterHandler(messaging.EventShipmentReceived, sc.handleShipmentReceived)
	return sc, nil
}

// Start begins consuming in a background goroutine until ctx is cancelled.
func (c *ShipmentConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *ShipmentConsumer) handleShipmentReceived(ctx context.Context, event *messaging.Event) error {
	var shipment messaging.ShipmentReceivedEvent
	if err := event.UnmarshalData(&shipment); err != nil {
		return fmt.Errorf("failed to decode shipment event: %w", err)
	}

	lines := make([]service.ShipmentLine, len(shipment.Lines))
	for i, l := range shipment.Lines {
		line := service.ShipmentLine{
			MedicineCode: l.MedicineCode,
			MedicineName: l.MedicineName,
			BatchNo:      l.BatchNo,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			ExpiryDate:   l.ExpiryDate,
		}
		if l.Unit != "" {
			unit := l.Unit
			line.Unit = &unit
		}
		lines[i] = line
	}

	result, err := c.replenisher.MergeShipmentEvent(ctx, shipment.ShipmentID, shipment.SupplierName, lines)
	if err != nil {
		return fmt.Errorf("failed to merge shipment %s: %w", shipment.ShipmentID, err)
	}

	c.logger.Info().
		Str("shipment_id", shipment.ShipmentID).
		Str("supplier", shipment.SupplierName).
		Int("applied", result.Applied).
		Int("skipped", result.Skipped).
		Bool("duplicate", result.Duplicate).
		Msg("shipment event processed")
	return nil
}
