package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type VendorType string

const (
	VendorTypeSolarman VendorType = "solarman"
	VendorTypeFoxESS   VendorType = "foxess"
	VendorTypeKstar    VendorType = "kstar"
	VendorTypeHuawei   VendorType = "huawei"
	VendorTypeGrowatt  VendorType = "growatt"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "ACTIVE"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
)

// Retention applied as advisory expiry timestamps. A storage-side job
// removes expired rows; the sync pipelines never issue deletes.
const (
	AlertTTL   = 180 * 24 * time.Hour
	ReadingTTL = 100 * 24 * time.Hour
)

// Vendor is a configured monitoring-platform account. Created and edited
// by the CRUD collaborator; the sync pipelines only read it and stamp
// last_synced_at.
type Vendor struct {
	ID           string      `json:"id" db:"id"`
	OrgID        string      `json:"org_id" db:"org_id"`
	Name         string      `json:"name" db:"name"`
	Type         VendorType  `json:"type" db:"type"`
	BaseURL      string      `json:"base_url" db:"base_url"`
	Credentials  Credentials `json:"-" db:"credentials"`
	Active       bool        `json:"active" db:"active"`
	SyncMode     string      `json:"sync_mode" db:"sync_mode"`
	SyncInterval int         `json:"sync_interval" db:"sync_interval"`
	LastSyncedAt *time.Time  `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// Credentials is the vendor-type-specific key/value bag. The required keys
// vary per vendor type and are validated at adapter construction.
type Credentials map[string]string

func (c Credentials) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *Credentials) Scan(value interface{}) error {
	if value == nil {
		*c = make(map[string]string)
		return nil
	}
	return json.Unmarshal(value.([]byte), c)
}

// Plant is one physical installation under one vendor and organization.
// (vendor_id, vendor_plant_id) is unique and is the sole identity used for
// upsert matching; id is assigned once on first insert and never changes.
type Plant struct {
	ID            string   `json:"id" db:"id"`
	OrgID         string   `json:"org_id" db:"org_id"`
	VendorID      string   `json:"vendor_id" db:"vendor_id"`
	VendorPlantID string   `json:"vendor_plant_id" db:"vendor_plant_id"`
	Name          string   `json:"name" db:"name"`
	CapacityKw    float64  `json:"capacity_kw" db:"capacity_kw"`
	Latitude      *float64 `json:"latitude" db:"latitude"`
	Longitude     *float64 `json:"longitude" db:"longitude"`
	Address       *string  `json:"address" db:"address"`

	CurrentPowerKw  float64    `json:"current_power_kw" db:"current_power_kw"`
	EnergyTodayKwh  float64    `json:"energy_today_kwh" db:"energy_today_kwh"`
	EnergyMonthKwh  float64    `json:"energy_month_kwh" db:"energy_month_kwh"`
	EnergyYearKwh   float64    `json:"energy_year_kwh" db:"energy_year_kwh"`
	EnergyTotalKwh  float64    `json:"energy_total_kwh" db:"energy_total_kwh"`
	Online          bool       `json:"online" db:"online"`
	LastUpdateAt    *time.Time `json:"last_update_at" db:"last_update_at"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at" db:"last_refreshed_at"`

	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Alert is one vendor fault occurrence. (vendor_id, vendor_plant_id,
// vendor_alert_id) identifies a unique occurrence when the vendor exposes
// an alert id. ExpiresAt = AlertAt + AlertTTL.
type Alert struct {
	ID              string        `json:"id" db:"id"`
	PlantID         string        `json:"plant_id" db:"plant_id"`
	VendorID        string        `json:"vendor_id" db:"vendor_id"`
	VendorPlantID   string        `json:"vendor_plant_id" db:"vendor_plant_id"`
	VendorAlertID   *string       `json:"vendor_alert_id" db:"vendor_alert_id"`
	Title           string        `json:"title" db:"title"`
	Description     string        `json:"description" db:"description"`
	Severity        AlertSeverity `json:"severity" db:"severity"`
	Status          AlertStatus   `json:"status" db:"status"`
	AlertAt         time.Time     `json:"alert_at" db:"alert_at"`
	EndedAt         *time.Time    `json:"ended_at" db:"ended_at"`
	GridDownSeconds *int64        `json:"grid_down_seconds" db:"grid_down_seconds"`
	BenefitKwh      *float64      `json:"benefit_kwh" db:"benefit_kwh"`
	ExpiresAt       time.Time     `json:"expires_at" db:"expires_at"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// Reading is one persisted telemetry sample. ExpiresAt = TakenAt + ReadingTTL.
type Reading struct {
	PlantID   string    `json:"plant_id" db:"plant_id"`
	TakenAt   time.Time `json:"taken_at" db:"taken_at"`
	PowerKw   float64   `json:"power_kw" db:"power_kw"`
	EnergyKwh float64   `json:"energy_kwh" db:"energy_kwh"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}
