package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sunwatch/solarsync/internal/db"
)

// SyncPlants runs the plant pipeline: per active vendor, list everything
// the vendor exposes, split into new and known plants by the vendor-native
// id, insert the new ones individually and batch-update the rest.
func (o *Orchestrator) SyncPlants(ctx context.Context) (*Summary, error) {
	return o.run(ctx, "plants", o.syncVendorPlants)
}

func (o *Orchestrator) syncVendorPlants(ctx context.Context, v *db.Vendor) VendorResult {
	logger := o.logger.With(zap.String("vendor", v.Name), zap.String("pipeline", "plants"))

	adapter, err := o.adapters(v)
	if err != nil {
		return failedResult(v, err)
	}

	remote, err := adapter.ListPlants(ctx)
	if err != nil {
		logger.Error("Failed to list vendor plants", zap.Error(err))
		return failedResult(v, err)
	}

	existing, err := o.store.GetPlantsByVendor(v.ID)
	if err != nil {
		return failedResult(v, err)
	}
	known := make(map[string]*db.Plant, len(existing))
	for _, p := range existing {
		known[p.VendorPlantID] = p
	}

	now := time.Now()
	res := VendorResult{VendorID: v.ID, VendorName: v.Name, OrgID: v.OrgID}

	var updates []*db.Plant
	for _, in := range remote {
		if match, ok := known[in.VendorPlantID]; ok {
			updates = append(updates, mergePlant(match, in, now))
			continue
		}

		// Insert individually so one bad record cannot sink the rest.
		if err := o.store.CreatePlant(newPlant(v, in, now)); err != nil {
			logger.Error("Failed to insert plant",
				zap.String("vendor_plant_id", in.VendorPlantID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		res.Created++
	}

	if err := o.store.BatchUpdatePlants(updates); err != nil {
		var batchErr *db.BatchError
		if errors.As(err, &batchErr) {
			// The serial fallback already ran; only the stragglers failed.
			o.metrics.RecordBatchFallback("plants")
			res.Failed += len(batchErr.Items)
			res.Updated += len(updates) - len(batchErr.Items)
			logger.Warn("Batch plant update fell back with residual failures",
				zap.Int("failed_items", len(batchErr.Items)),
			)
		} else {
			logger.Error("Failed to update plants", zap.Error(err))
			res.Error = err.Error()
			return res
		}
	} else {
		res.Updated += len(updates)
	}

	res.Synced = res.Created + res.Updated
	res.Success = true

	if err := o.store.UpdateVendorLastSynced(v.ID, now); err != nil {
		logger.Warn("Failed to stamp vendor last_synced_at", zap.Error(err))
	}

	o.metrics.RecordPlants(v.Name, v.OrgID, res.Created, res.Updated)
	return res
}
