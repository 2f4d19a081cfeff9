package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType identifies the direction of an inventory movement.
type TransactionType string

const (
	TransactionInbound    TransactionType = "inbound"
	TransactionOutbound   TransactionType = "outbound"
	TransactionAdjustment TransactionType = "adjustment"
)

// InventoryTransaction is one movement in the append-only stock ledger.
// Quantity is signed by type: outbound rows are stored negative, inbound
// positive, adjustments either way. Rows are never mutated after insert.
type InventoryTransaction struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Type      TransactionType `json:"type"`
	Quantity  int             `json:"quantity"`
	Reference *string         `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DailyDemand is realized demand for one product on one date, aggregated
// from outbound transactions.
type DailyDemand struct {
	Date   time.Time `json:"date"`
	Demand float64   `json:"actual_demand"`
}
