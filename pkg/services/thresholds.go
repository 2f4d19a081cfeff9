package services

import (
	"github.com/velocityiq/velocityiq-engine/pkg/config"
	"github.com/velocityiq/velocityiq-engine/pkg/stock"
)

// ResolveThresholds overlays the configured overrides onto the stock
// defaults. Nil overrides keep the default, so the alert engine and the
// dashboard display always agree on what "significant" means.
func ResolveThresholds(cfg *config.ThresholdsConfig) stock.Thresholds {
	thresholds := stock.DefaultThresholds()
	if cfg == nil {
		return thresholds
	}

	if cfg.MonitorBufferPct != nil {
		thresholds.MonitorBufferPct = *cfg.MonitorBufferPct
	}
	if cfg.ReorderDays != nil {
		thresholds.ReorderDays = *cfg.ReorderDays
	}
	if cfg.LowStockDays != nil {
		thresholds.LowStockDays = *cfg.LowStockDays
	}
	if cfg.SpikeThresholdPct != nil {
		thresholds.SpikeThresholdPct = *cfg.SpikeThresholdPct
	}
	if cfg.MaxLeadTimeDays != nil {
		thresholds.MaxLeadTimeDays = *cfg.MaxLeadTimeDays
	}
	if cfg.MinReliabilityScore != nil {
		thresholds.MinReliabilityScore = *cfg.MinReliabilityScore
	}
	if cfg.AnomalyTolerancePct != nil {
		thresholds.AnomalyTolerancePct = *cfg.AnomalyTolerancePct
	}
	if cfg.MaxInvalidShare != nil {
		thresholds.MaxInvalidShare = *cfg.MaxInvalidShare
	}

	return thresholds
}
