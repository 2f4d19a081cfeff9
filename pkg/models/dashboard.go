package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velocityiq/velocityiq-engine/pkg/stock"
)

// DashboardOverview is the headline metric block for the dashboard landing
// view. LastForecastRun is nil until a pipeline run has completed (or, after
// a restart, when no stored forecast rows exist to date it from).
type DashboardOverview struct {
	TotalProducts       int        `json:"total_products"`
	LowStockProducts    int        `json:"low_stock_products"`
	CriticalAlerts      int        `json:"critical_alerts"`
	TotalInventoryValue float64    `json:"total_inventory_value"`
	ForecastRecords     int        `json:"forecast_records"`
	LastUpdated         time.Time  `json:"last_updated"`
	LastForecastRun     *time.Time `json:"last_forecast_run"`
	ForecastStale       bool       `json:"forecast_stale"`
}

// StockStatusRow is one product's posture on the stock-status table.
// AvgDailyDemand is rounded to 2 decimal places, DaysUntilStockout to 1;
// DaysUntilStockout is nil when there is no predicted demand to burn stock.
// Supplier fields are nil when the product has no supplier on file, except
// ReliabilityScore which reports 0.
type StockStatusRow struct {
	ID                uuid.UUID    `json:"id"`
	ProductName       string       `json:"product_name"`
	SKU               string       `json:"sku"`
	Category          string       `json:"category"`
	CurrentStock      int          `json:"current_stock"`
	ReorderPoint      int          `json:"reorder_point"`
	UnitCost          float64      `json:"unit_cost"`
	AvgDailyDemand    float64      `json:"avg_daily_demand"`
	DaysUntilStockout *float64     `json:"days_until_stockout"`
	StockStatus       stock.Status `json:"stock_status"`
	SupplierName      *string      `json:"supplier_name"`
	LeadTimeDays      *int         `json:"lead_time_days"`
	ReliabilityScore  float64      `json:"reliability_score"`
}

// ForecastListRow is one joined forecast row on the dashboard forecast table.
// ForecastDate is a date-only string (2006-01-02).
type ForecastListRow struct {
	ProductName     string    `json:"product_name"`
	SKU             string    `json:"sku"`
	Category        string    `json:"category"`
	CurrentStock    int       `json:"current_stock"`
	ForecastDate    string    `json:"forecast_date"`
	Predicted       float64   `json:"predicted_demand"`
	Lower           float64   `json:"confidence_interval_lower"`
	Upper           float64   `json:"confidence_interval_upper"`
	ForecastCreated time.Time `json:"forecast_created"`
}

// TrendDirection labels whether predicted demand is moving enough to care
// about. The cutoff is the same spike threshold the alert engine uses.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendPoint is one (product, date) sample on the demand-trends view,
// comparing each day against the value seven points earlier in the same
// product's series. WeekAgo and ChangePct are nil on a product's first
// point, where no earlier value exists; a zero prior yields a 0 change,
// not a division error. Values are rounded to 1 decimal place.
type TrendPoint struct {
	ProductName string         `json:"product_name"`
	SKU         string         `json:"sku"`
	Category    string         `json:"category"`
	Date        string         `json:"date"`
	Predicted   float64        `json:"predicted_demand"`
	WeekAgo     *float64       `json:"demand_7_days_ago"`
	ChangePct   *float64       `json:"change_percentage"`
	Trend       TrendDirection `json:"trend_direction"`
}

// InsightsDigest is a model-written operations briefing over the current
// posture. Advisory only.
type InsightsDigest struct {
	Digest      string    `json:"digest"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ChartData is the per-SKU chart payload: realized daily demand behind
// today, forecast band ahead of it.
type ChartData struct {
	ProductSKU string               `json:"product_sku"`
	Historical []ChartHistoryPoint  `json:"historical"`
	Forecasts  []ChartForecastPoint `json:"forecasts"`
}

// ChartHistoryPoint is one realized-demand sample; Date is date-only.
type ChartHistoryPoint struct {
	Date         string  `json:"date"`
	ActualDemand float64 `json:"actual_demand"`
}

// ChartForecastPoint is one forecast sample with its confidence band;
// Date is date-only.
type ChartForecastPoint struct {
	Date      string  `json:"date"`
	Predicted float64 `json:"predicted_demand"`
	Lower     float64 `json:"confidence_interval_lower"`
	Upper     float64 `json:"confidence_interval_upper"`
}
