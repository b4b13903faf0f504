package syncer

import (
	"time"

	"github.com/google/uuid"

	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
)

// newPlant builds the stored record for a plant seen for the first time.
// The id is assigned here, once, and never changes afterwards.
func newPlant(v *db.Vendor, in core.Plant, now time.Time) *db.Plant {
	return &db.Plant{
		ID:            uuid.New().String(),
		OrgID:         v.OrgID,
		VendorID:      v.ID,
		VendorPlantID: in.VendorPlantID,
		Name:          in.Name,
		CapacityKw:    in.CapacityKw,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		Address:       in.Address,

		CurrentPowerKw:  in.CurrentPowerKw,
		EnergyTodayKwh:  in.EnergyTodayKwh,
		EnergyMonthKwh:  in.EnergyMonthKwh,
		EnergyYearKwh:   in.EnergyYearKwh,
		EnergyTotalKwh:  in.EnergyTotalKwh,
		Online:          in.Online,
		LastUpdateAt:    in.LastVendorPush,
		LastRefreshedAt: &now,

		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// mergePlant overwrites the mutable production and metadata fields of an
// existing plant from a fresh vendor snapshot. Identity fields and the
// stored id are left untouched.
func mergePlant(existing *db.Plant, in core.Plant, now time.Time) *db.Plant {
	merged := *existing

	merged.Name = in.Name
	merged.CapacityKw = in.CapacityKw
	merged.Latitude = in.Latitude
	merged.Longitude = in.Longitude
	merged.Address = in.Address

	applyProduction(&merged, in, now)
	return &merged
}

// applyProduction updates only the production snapshot. The telemetry
// pipeline uses this directly so identity and metadata fields are never
// touched by a lightweight refresh.
func applyProduction(p *db.Plant, in core.Plant, now time.Time) {
	p.CurrentPowerKw = in.CurrentPowerKw
	p.EnergyTodayKwh = in.EnergyTodayKwh
	p.EnergyMonthKwh = in.EnergyMonthKwh
	p.EnergyYearKwh = in.EnergyYearKwh
	p.EnergyTotalKwh = in.EnergyTotalKwh
	p.Online = in.Online
	p.LastUpdateAt = in.LastVendorPush
	p.LastRefreshedAt = &now
	p.UpdatedAt = now
}
