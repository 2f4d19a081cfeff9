// Package stock holds the pure rule-engine core: stock status
// classification, alert thresholds, and forecast aggregation math.
// Nothing in this package performs I/O or holds state; services feed it
// data already fetched and persist what it returns.
package stock

import (
	"fmt"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
)

// Status is the categorical stock posture of a product, ordered worst to best.
type Status string

const (
	StatusReorderNow Status = "REORDER_NOW"
	StatusLowStock   Status = "LOW_STOCK"
	StatusMonitor    Status = "MONITOR"
	StatusOK         Status = "OK"
)

// statusRanks orders statuses worst-first.
var statusRanks = map[Status]int{
	StatusReorderNow: 0,
	StatusLowStock:   1,
	StatusMonitor:    2,
	StatusOK:         3,
}

// Rank returns the ordering rank of the status (REORDER_NOW=0 .. OK=3).
func (s Status) Rank() int {
	if r, ok := statusRanks[s]; ok {
		return r
	}
	return len(statusRanks)
}

// WorseThan reports whether s is a more urgent status than other.
func (s Status) WorseThan(other Status) bool {
	return s.Rank() < other.Rank()
}

// Thresholds are the named constants the rule engine and the dashboard
// display share. Defaults are the authoritative values; configuration may
// override individual fields but both consumers always read the same
// resolved struct, so the engine and the UI cannot disagree.
type Thresholds struct {
	// MonitorBufferPct is the buffer zone above the reorder point that
	// classifies as MONITOR: stock within reorder_point*(1+pct).
	MonitorBufferPct float64

	// ReorderDays and LowStockDays are the projected-stockout windows for
	// REORDER_NOW and LOW_STOCK.
	ReorderDays  float64
	LowStockDays float64

	// SpikeThresholdPct is the shared significance threshold: a demand
	// spike alert fires when near-term demand exceeds the trailing average
	// by this fraction, and the display uses the same value to grade
	// trend changes.
	SpikeThresholdPct float64

	// SpikeNearDays is the near-term window compared against the trailing
	// average for spike detection.
	SpikeNearDays int

	// MaxLeadTimeDays and MinReliabilityScore gate supplier risk alerts.
	MaxLeadTimeDays     int
	MinReliabilityScore float64

	// AnomalyTolerancePct is the relative deviation of realized vs
	// predicted demand beyond which a forecast anomaly alert fires.
	AnomalyTolerancePct float64

	// MaxInvalidShare is the fraction of invalid records in a batch above
	// which the whole run aborts instead of skipping records.
	MaxInvalidShare float64
}

// DefaultThresholds returns the authoritative threshold values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MonitorBufferPct:    0.20,
		ReorderDays:         3,
		LowStockDays:        7,
		SpikeThresholdPct:   0.15,
		SpikeNearDays:       3,
		MaxLeadTimeDays:     21,
		MinReliabilityScore: 0.85,
		AnomalyTolerancePct: 0.50,
		MaxInvalidShare:     0.5,
	}
}

// Classify maps a product's stock posture to a Status.
//
// daysUntilStockout is the projected days of cover (fractional); nil means
// unknown (no demand signal) and disables the day-based rules. The function
// is total over valid inputs and monotonic: lowering currentStock or
// daysUntilStockout never improves the result.
func Classify(currentStock, reorderPoint int, daysUntilStockout *float64, t Thresholds) (Status, error) {
	if currentStock < 0 {
		return "", fmt.Errorf("%w: current_stock %d is negative", apperrors.ErrInvalidInput, currentStock)
	}
	if reorderPoint < 0 {
		return "", fmt.Errorf("%w: reorder_point %d is negative", apperrors.ErrInvalidInput, reorderPoint)
	}
	if daysUntilStockout != nil && *daysUntilStockout < 0 {
		return "", fmt.Errorf("%w: days_until_stockout %.2f is negative", apperrors.ErrInvalidInput, *daysUntilStockout)
	}

	if currentStock <= reorderPoint {
		return StatusReorderNow, nil
	}
	if daysUntilStockout != nil {
		if *daysUntilStockout <= t.ReorderDays {
			return StatusReorderNow, nil
		}
		if *daysUntilStockout <= t.LowStockDays {
			return StatusLowStock, nil
		}
	}
	if float64(currentStock) <= float64(reorderPoint)*(1+t.MonitorBufferPct) {
		return StatusMonitor, nil
	}
	return StatusOK, nil
}
