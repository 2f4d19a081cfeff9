package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertType identifies the condition an alert reports.
type AlertType string

const (
	AlertStockLow        AlertType = "stock_low"
	AlertDemandSpike     AlertType = "demand_spike"
	AlertSupplierRisk    AlertType = "supplier_risk"
	AlertForecastAnomaly AlertType = "forecast_anomaly"
)

// AlertSeverity grades how urgent an alert is.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// severityRanks orders severities worst-first for dashboard sorting.
var severityRanks = map[AlertSeverity]int{
	SeverityCritical: 1,
	SeverityHigh:     2,
	SeverityMedium:   3,
	SeverityLow:      4,
}

// Rank returns the sort rank for the severity (critical=1 .. low=4).
// Unknown severities sort last.
func (s AlertSeverity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return len(severityRanks) + 1
}

// Alert is one alert row. Alerts are append-only until resolution:
// resolving sets IsResolved and ResolvedAt, never deletes, and a later
// recurrence of the condition creates a new row.
type Alert struct {
	ID          uuid.UUID     `json:"id"`
	Type        AlertType     `json:"type"`
	Severity    AlertSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ProductID   *uuid.UUID    `json:"product_id,omitempty"`
	SupplierID  *uuid.UUID    `json:"supplier_id,omitempty"`
	IsResolved  bool          `json:"is_resolved"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// AlertWithContext is an alert joined with the names the dashboard shows.
type AlertWithContext struct {
	Alert
	ProductName  *string `json:"product_name,omitempty"`
	SKU          *string `json:"sku,omitempty"`
	SupplierName *string `json:"supplier_name,omitempty"`
}

// AlertKey identifies the subject+type pair the open-alert uniqueness
// indexes enforce. Exactly one of ProductID and SupplierID is set.
type AlertKey struct {
	ProductID  *uuid.UUID
	SupplierID *uuid.UUID
	Type       AlertType
}

// AlertPlan is the diff one rule-engine pass wants applied: new alerts to
// open, and recovered subjects whose open alerts should close. The alert
// repository applies a plan atomically.
type AlertPlan struct {
	Creates  []*Alert
	Resolves []AlertKey
}

// IsEmpty reports whether applying the plan would change nothing.
func (p *AlertPlan) IsEmpty() bool {
	return p == nil || (len(p.Creates) == 0 && len(p.Resolves) == 0)
}

// AlertPlanResult reports what actually changed. Creates skipped by the
// uniqueness indexes and resolves that matched no open alert are omitted.
type AlertPlanResult struct {
	Created  []*Alert
	Resolved []*Alert
}
