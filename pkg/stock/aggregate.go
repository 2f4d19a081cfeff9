package stock

import "math"

// Summary are the roll-up statistics for a forecast window.
type Summary struct {
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Peak    float64 `json:"peak"`
	Min     float64 `json:"min"`
}

// Summarize rolls the first window values of a date-ordered demand series
// into summary statistics. A window of 0 or less covers the whole series.
// An empty series yields a zero-valued summary, not an error.
func Summarize(values []float64, window int) Summary {
	if window <= 0 || window > len(values) {
		window = len(values)
	}
	if window == 0 {
		return Summary{}
	}

	s := Summary{Peak: values[0], Min: values[0]}
	for _, v := range values[:window] {
		s.Total += v
		if v > s.Peak {
			s.Peak = v
		}
		if v < s.Min {
			s.Min = v
		}
	}
	s.Average = s.Total / float64(window)
	return s
}

// PercentChanges returns the day-over-day percentage change for each
// consecutive pair in a date-ordered series: (current-previous)/previous*100.
// A zero previous value yields 0 for that step (no defined change), never a
// division error. Series shorter than two points yield an empty slice.
// Values are not rounded; rounding is display-only.
func PercentChanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	changes := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			changes = append(changes, 0)
			continue
		}
		changes = append(changes, (values[i]-prev)/prev*100)
	}
	return changes
}

// Volatility is the population standard deviation of the day-over-day
// percentage changes of a series. Fewer than two points yield 0.
func Volatility(values []float64) float64 {
	changes := PercentChanges(values)
	if len(changes) == 0 {
		return 0
	}

	var sum float64
	for _, c := range changes {
		sum += c
	}
	mean := sum / float64(len(changes))

	var variance float64
	for _, c := range changes {
		d := c - mean
		variance += d * d
	}
	variance /= float64(len(changes))
	return math.Sqrt(variance)
}

// AvgDailyDemand is the mean of the first days values of a forecast median
// series (the trailing average the day-based rules compare against).
// An empty series yields 0.
func AvgDailyDemand(medians []float64, days int) float64 {
	s := Summarize(medians, days)
	return s.Average
}

// minDemandFloor keeps the stockout projection finite for near-zero demand.
const minDemandFloor = 0.1

// DaysUntilStockout projects the days of cover left at the average daily
// demand rate. A non-positive rate means there is no demand signal and the
// projection is undefined (nil).
func DaysUntilStockout(currentStock int, avgDailyDemand float64) *float64 {
	if avgDailyDemand <= 0 {
		return nil
	}
	days := float64(currentStock) / math.Max(avgDailyDemand, minDemandFloor)
	return &days
}

// TrendDirection grades a percentage change against the shared significance
// threshold: "increasing" or "decreasing" beyond it, "stable" within.
func TrendDirection(changePct float64, t Thresholds) string {
	threshold := t.SpikeThresholdPct * 100
	switch {
	case changePct >= threshold:
		return "increasing"
	case changePct <= -threshold:
		return "decreasing"
	default:
		return "stable"
	}
}
