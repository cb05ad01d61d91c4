package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MedicineFixture represents test medicine data
type MedicineFixture struct {
	ID           string
	Code         string
	Name         string
	Form         *string
	Strength     *string
	ReorderLevel int
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID         string
	BatchNo    string
	Quantity   int
	Unit       *string
	UnitPrice  decimal.Decimal
	ExpiryDate time.Time
	ReceivedAt time.Time
}

// PrescriptionFixture represents test prescription data
type PrescriptionFixture struct {
	ID             string
	PrescriptionNo string
	PatientName    *string
	Items          []PrescriptionItemFixture
}

// PrescriptionItemFixture is one line of a test prescription
type PrescriptionItemFixture struct {
	MedicineCode string
	Quantity     int
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Medicine creates a medicine fixture with defaults
func (f *FixtureFactory) Medicine(opts ...func(*MedicineFixture)) MedicineFixture {
	seq := f.nextSeq()

	medicine := MedicineFixture{
		ID:           uuid.New().String(),
		Code:         fmt.Sprintf("MED%03d", seq),
		Name:         fmt.Sprintf("Medicine %d", seq),
		Form:         PtrString("tablet"),
		Strength:     PtrString("500mg"),
		ReorderLevel: 10,
	}

	for _, opt := range opts {
		opt(&medicine)
	}

	return medicine
}

// WithCode sets the medicine code
func WithCode(code string) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.Code = code
	}
}

// WithReorderLevel sets the medicine reorder level
func WithReorderLevel(level int) func(*MedicineFixture) {
	return func(m *MedicineFixture) {
		m.ReorderLevel = level
	}
}

// Batch creates a batch fixture with defaults: 100 units expiring in a year
func (f *FixtureFactory) Batch(opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()

	batch := BatchFixture{
		ID:         uuid.New().String(),
		BatchNo:    fmt.Sprintf("BATCH%03d", seq),
		Quantity:   100,
		Unit:       PtrString("box"),
		UnitPrice:  decimal.NewFromFloat(9.99),
		ExpiryDate: time.Now().UTC().AddDate(1, 0, 0),
		ReceivedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&batch)
	}

	return batch
}

// WithBatchNo sets the batch number
func WithBatchNo(batchNo string) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.BatchNo = batchNo
	}
}

// WithQuantity sets the batch quantity
func WithQuantity(quantity int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.Quantity = quantity
	}
}

// WithExpiry sets the batch expiry date
func WithExpiry(expiry time.Time) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ExpiryDate = expiry
	}
}

// ExpiringInDays sets the batch expiry relative to now
func ExpiringInDays(days int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ExpiryDate = time.Now().UTC().AddDate(0, 0, days)
	}
}

// Prescription creates a prescription fixture with defaults
func (f *FixtureFactory) Prescription(items []PrescriptionItemFixture, opts ...func(*PrescriptionFixture)) PrescriptionFixture {
	seq := f.nextSeq()

	prescription := PrescriptionFixture{
		ID:             uuid.New().String(),
		PrescriptionNo: fmt.Sprintf("RX%05d", seq),
		PatientName:    PtrString(fmt.Sprintf("Patient %d", seq)),
		Items:          items,
	}

	for _, opt := range opts {
		opt(&prescription)
	}

	return prescription
}
