package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a stocked item identified by its SKU.
// CurrentStock is mutated only through inventory transactions; UnitCost is
// money and therefore a decimal, never a float.
type Product struct {
	ID           uuid.UUID       `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	CurrentStock int             `json:"current_stock"`
	ReorderPoint int             `json:"reorder_point"`
	SupplierID   *uuid.UUID      `json:"supplier_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductWithSupplier is a product joined with its owning supplier.
// Supplier is nil when the product has no supplier assigned.
type ProductWithSupplier struct {
	Product
	Supplier *Supplier `json:"supplier,omitempty"`
}
