package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Supplier events (published by the supplier management service)
	EventShipmentReceived = "supplier.shipment.received"
	EventSupplierCreated  = "supplier.created"

	// Pharmacy events
	EventPrescriptionDispensed = "pharmacy.prescription.dispensed"
	EventStockReplenished      = "pharmacy.stock.replenished"
	EventLowStockDetected      = "pharmacy.stock.low"
)

// Exchange names
const (
	ExchangeSupplierEvents = "supplier.events"
	ExchangePharmacyEvents = "pharmacy.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Supplier events

// ShipmentLineEvent is one line item of a supplier shipment.
type ShipmentLineEvent struct {
	MedicineCode string          `json:"medicine_code"`
	MedicineName string          `json:"medicine_name,omitempty"`
	BatchNo      string          `json:"batch_no"`
	Quantity     int             `json:"quantity"`
	Unit         string          `json:"unit,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
}

// ShipmentReceivedEvent is published when a supplier shipment is booked in.
type ShipmentReceivedEvent struct {
	ShipmentID   string              `json:"shipment_id"`
	SupplierName string              `json:"supplier_name"`
	ReceivedAt   time.Time           `json:"received_at"`
	Lines        []ShipmentLineEvent `json:"lines"`
}

// Pharmacy events

// PrescriptionDispensedEvent is published after a prescription has been
// dispensed and the ledger deductions committed.
type PrescriptionDispensedEvent struct {
	PrescriptionNo string    `json:"prescription_no"`
	DispensedAt    time.Time `json:"dispensed_at"`
	DispensedBy    string    `json:"dispensed_by"`
	MedicineCodes  []string  `json:"medicine_codes"`
}

// StockReplenishedEvent is published after shipment lines have been merged
// into the ledger.
type StockReplenishedEvent struct {
	SupplierName string `json:"supplier_name"`
	Applied      int    `json:"applied"`
	Skipped      int    `json:"skipped"`
}

// LowStockDetectedEvent is published when a medicine drops to or below its
// reorder level.
type LowStockDetectedEvent struct {
	MedicineCode  string `json:"medicine_code"`
	MedicineName  string `json:"medicine_name"`
	TotalQuantity int    `json:"total_quantity"`
	ReorderLevel  int    `json:"reorder_level"`
}
