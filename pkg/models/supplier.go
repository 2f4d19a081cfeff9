// Package models contains domain types for velocityiq-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel is the administratively assigned supplier risk tier.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Supplier represents a product supplier.
// ReliabilityScore is a fraction in [0,1]; LeadTimeDays is the expected
// number of days between placing an order and receiving stock.
type Supplier struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	ContactEmail     *string   `json:"contact_email,omitempty"`
	LeadTimeDays     int       `json:"lead_time_days"`
	ReliabilityScore float64   `json:"reliability_score"`
	RiskLevel        RiskLevel `json:"risk_level"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
