package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/core"
	"github.com/sunwatch/solarsync/internal/db"
	"github.com/sunwatch/solarsync/internal/vendors"
)

// SyncTelemetry runs the lightweight production refresh: for each plant
// already known under a vendor, fetch a single-plant snapshot and update
// only the production fields. Plants fan out in their own nested windows
// inside the vendor task.
func (o *Orchestrator) SyncTelemetry(ctx context.Context) (*Summary, error) {
	return o.run(ctx, "telemetry", o.syncVendorTelemetry)
}

// vendorListing lazily fetches the vendor's full plant listing, once, for
// adapters that cannot serve single-plant lookups. Safe under the nested
// plant fan-out.
type vendorListing struct {
	adapter vendors.Adapter

	mu      sync.Mutex
	fetched bool
	byID    map[string]core.Plant
	err     error
}

func (l *vendorListing) lookup(ctx context.Context, vendorPlantID string) (*core.Plant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.fetched {
		l.fetched = true
		plants, err := l.adapter.ListPlants(ctx)
		if err != nil {
			l.err = err
		} else {
			l.byID = make(map[string]core.Plant, len(plants))
			for _, p := range plants {
				l.byID[p.VendorPlantID] = p
			}
		}
	}

	if l.err != nil {
		return nil, l.err
	}
	if p, ok := l.byID[vendorPlantID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (o *Orchestrator) syncVendorTelemetry(ctx context.Context, v *db.Vendor) VendorResult {
	logger := o.logger.With(zap.String("vendor", v.Name), zap.String("pipeline", "telemetry"))

	adapter, err := o.adapters(v)
	if err != nil {
		return failedResult(v, err)
	}

	plants, err := o.store.GetPlantsByVendor(v.ID)
	if err != nil {
		return failedResult(v, err)
	}

	res := VendorResult{VendorID: v.ID, VendorName: v.Name, OrgID: v.OrgID}
	if len(plants) == 0 {
		res.Success = true
		return res
	}

	listing := &vendorListing{adapter: adapter}
	now := time.Now()
	today := now.In(o.config.Location())

	window := o.config.PlantWindow
	if window <= 0 {
		window = 20
	}

	var mu sync.Mutex
	var readings []*db.Reading
	storedReadings := 0

	for ws := 0; ws < len(plants); ws += window {
		we := ws + window
		if we > len(plants) {
			we = len(plants)
		}

		var wg sync.WaitGroup
		for _, plant := range plants[ws:we] {
			wg.Add(1)
			go func(plant *db.Plant) {
				defer wg.Done()

				snapshot, err := adapter.GetPlant(ctx, plant.VendorPlantID)
				if errors.Is(err, vendors.ErrUnsupported) {
					snapshot, err = listing.lookup(ctx, plant.VendorPlantID)
				}
				if err != nil {
					logger.Warn("Failed to refresh plant",
						zap.String("vendor_plant_id", plant.VendorPlantID),
						zap.Error(err),
					)
					mu.Lock()
					res.Failed++
					mu.Unlock()
					return
				}
				if snapshot == nil {
					// Known locally but gone upstream; nothing to refresh.
					mu.Lock()
					res.Skipped++
					mu.Unlock()
					return
				}

				refreshed := *plant
				applyProduction(&refreshed, *snapshot, now)
				if err := o.store.UpdatePlant(&refreshed); err != nil {
					logger.Error("Failed to persist plant refresh",
						zap.String("plant_id", plant.ID),
						zap.Error(err),
					)
					mu.Lock()
					res.Failed++
					mu.Unlock()
					return
				}

				mu.Lock()
				res.Updated++
				res.Synced++
				mu.Unlock()

				// Time-series samples, for vendors that expose them.
				samples, err := adapter.GetTelemetry(ctx, plant.VendorPlantID, today)
				if errors.Is(err, vendors.ErrUnsupported) {
					return
				}
				if err != nil {
					logger.Warn("Failed to fetch telemetry samples",
						zap.String("vendor_plant_id", plant.VendorPlantID),
						zap.Error(err),
					)
					return
				}

				mu.Lock()
				for _, s := range samples {
					readings = append(readings, &db.Reading{
						PlantID:   plant.ID,
						TakenAt:   s.TakenAt,
						PowerKw:   s.PowerKw,
						EnergyKwh: s.EnergyKwh,
						ExpiresAt: s.TakenAt.Add(db.ReadingTTL),
					})
				}
				mu.Unlock()
			}(plant)
		}
		wg.Wait()
	}

	if len(readings) > 0 {
		if err := o.store.BatchCreateReadings(readings); err != nil {
			var batchErr *db.BatchError
			if errors.As(err, &batchErr) {
				o.metrics.RecordBatchFallback("readings")
				storedReadings = len(readings) - len(batchErr.Items)
			} else {
				logger.Error("Failed to persist telemetry readings", zap.Error(err))
			}
		} else {
			storedReadings = len(readings)
		}
	}

	// The vendor is still a success unless every plant failed.
	res.Success = res.Failed < len(plants)
	if !res.Success {
		res.Error = "all plant refreshes failed"
	}

	o.metrics.RecordReadings(v.Name, v.OrgID, storedReadings)
	return res
}
