package benefit

import (
	"math"
	"time"
)

// The productive window used for grid-downtime benefit: a fixed
// 09:00–16:00 local slot. The derating factor represents expected output
// across that slot and is part of the benefit formula, not configuration.
const (
	windowStartHour = 9
	windowEndHour   = 16
	deratingFactor  = 0.5
)

// GridDowntime estimates the energy (kWh) a plant would have produced
// during an outage. Returns nil when either timestamp is missing, the
// interval is empty or inverted, capacity is missing or non-positive, or
// the outage never overlaps the productive window.
//
// The overlap is summed day by day in the start timestamp's location, one
// fixed 09:00–16:00 slot per day, no daylight-saving adjustment.
func GridDowntime(start, end *time.Time, capacityKw *float64) *float64 {
	if start == nil || end == nil || capacityKw == nil {
		return nil
	}
	if !end.After(*start) || *capacityKw <= 0 {
		return nil
	}

	hours := overlapHours(*start, end.In(start.Location()))
	if hours <= 0 {
		return nil
	}

	benefit := round3(deratingFactor * hours * *capacityKw)
	return &benefit
}

func overlapHours(start, end time.Time) float64 {
	loc := start.Location()
	total := 0.0

	for day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc); day.Before(end); day = day.AddDate(0, 0, 1) {
		windowStart := time.Date(day.Year(), day.Month(), day.Day(), windowStartHour, 0, 0, 0, loc)
		windowEnd := time.Date(day.Year(), day.Month(), day.Day(), windowEndHour, 0, 0, 0, loc)

		overlapStart := laterOf(start, windowStart)
		overlapEnd := earlierOf(end, windowEnd)
		if overlapEnd.After(overlapStart) {
			total += overlapEnd.Sub(overlapStart).Hours()
		}
	}

	return total
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
