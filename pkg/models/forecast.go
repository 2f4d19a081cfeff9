package models

import (
	"time"

	"github.com/google/uuid"
)

// ForecastPoint is one stored forecast row: the predicted demand for a
// product on a single future date, with its confidence interval. Each
// (product, date) pair has at most one row. ActualDemand is backfilled once
// the date has passed and realized demand is known.
type ForecastPoint struct {
	ID           uuid.UUID `json:"id"`
	ProductID    uuid.UUID `json:"product_id"`
	Date         time.Time `json:"date"`
	Predicted    float64   `json:"predicted_demand"`
	Lower        float64   `json:"confidence_interval_lower"`
	Upper        float64   `json:"confidence_interval_upper"`
	ModelVersion string    `json:"model_version,omitempty"`
	ActualDemand *float64  `json:"actual_demand,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ForecastWithProduct is a forecast row joined with identifying product
// fields for the dashboard listing.
type ForecastWithProduct struct {
	ForecastPoint
	ProductName  string `json:"product_name"`
	SKU          string `json:"sku"`
	Category     string `json:"category"`
	CurrentStock int    `json:"current_stock"`
}

// RunStatus is the lifecycle state of a forecast pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ForecastRun is the outcome of one pipeline run. The most recent one powers
// the dashboard staleness indicator and is returned by the manual trigger
// endpoint.
type ForecastRun struct {
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	Status             RunStatus  `json:"status"`
	ProductsTotal      int        `json:"products_total"`
	ProductsForecasted int        `json:"products_forecasted"`
	ForecastDays       int        `json:"forecast_days"`
	PointsStored       int        `json:"points_stored"`
	AlertsCreated      int        `json:"alerts_created"`
	AlertsResolved     int        `json:"alerts_resolved"`
	DurationSeconds    float64    `json:"duration_seconds"`
	Error              string     `json:"error,omitempty"`
}
