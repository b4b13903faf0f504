package core

import "time"

// Canonical records produced by vendor adapters after normalization.
// Identity and persistence concerns (ids, org references, TTLs) are added
// by the sync pipelines; adapters only ever deal in these shapes.

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Plant is a vendor-native plant mapped to the canonical shape.
// VendorPlantID is the vendor's own identifier and, together with the
// vendor id, forms the sole upsert identity downstream.
type Plant struct {
	VendorPlantID string
	Name          string
	CapacityKw    float64
	Latitude      *float64
	Longitude     *float64
	Address       *string

	CurrentPowerKw float64
	EnergyTodayKwh float64
	EnergyMonthKwh float64
	EnergyYearKwh  float64
	EnergyTotalKwh float64
	Online         bool
	LastVendorPush *time.Time
}

// Alert is a vendor fault/event for one plant. VendorAlertID is nil for
// vendors that do not expose a native alert identifier; those alerts are
// deduplicated by the (plant, title, day) fallback instead of the ternary
// key.
type Alert struct {
	VendorAlertID *string
	VendorPlantID string
	Title         string
	Description   string
	Severity      Severity
	StartedAt     time.Time
	EndedAt       *time.Time
}

// Reading is one time-series telemetry sample.
type Reading struct {
	TakenAt   time.Time
	PowerKw   float64
	EnergyKwh float64
}

// Realtime is a point-in-time production snapshot.
type Realtime struct {
	TakenAt time.Time
	PowerKw float64
	Online  bool
}
